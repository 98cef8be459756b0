package config

import (
	"os"
	"path/filepath"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/file"
	"github.com/pkg/errors"
)

// MaxBatchSize bounds the external-store insert batch. One batch is one
// statement; anything past this risks the server's max_allowed_packet.
const MaxBatchSize = 10000

type StoreConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	Schema   string `koanf:"schema"`
}

type NotificationsConfig struct {
	WebhookURL   string `koanf:"webhook_url"`
	SkipEmptyRun bool   `koanf:"skip_empty_run"`
}

type Configuration struct {
	// MinSize in bytes; files below it are ignored by the scanner.
	MinSize int64 `koanf:"min_size"`
	// ExcludePatterns are regular expressions matched against the
	// full path of every scanned file.
	ExcludePatterns []string `koanf:"exclude_patterns"`
	// FilterExpr is an optional boolean expression evaluated against
	// each scanned file, e.g. `Size > 4096 && Ext != ".log"`.
	FilterExpr string `koanf:"filter"`

	HashWorkers int `koanf:"hash_workers"`
	// HashRate caps hashed files per second; 0 means unlimited.
	HashRate int `koanf:"hash_rate"`

	// BatchSize is the external-store insert batch size.
	BatchSize int `koanf:"batch_size"`

	Store         StoreConfig         `koanf:"store"`
	Notifications NotificationsConfig `koanf:"notifications"`
}

var (
	k = koanf.New(".")

	// Config is the loaded configuration, populated by Load.
	Config Configuration

	Delimiter = "."
)

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"min_size":     1,
		"hash_workers": 0,
		"hash_rate":    0,
		"batch_size":   1000,
		"store.host":   "localhost",
		"store.port":   3306,
		"store.schema": "dfm",
	}
}

// Load reads the YAML configuration file if it exists and merges it
// over the built-in defaults. A missing file is not an error.
func Load(configDir string, configFile string) error {
	if err := k.Load(confmap.Provider(defaults(), Delimiter), nil); err != nil {
		return errors.Wrap(err, "load default configuration")
	}

	cfgPath := configFile
	if !filepath.IsAbs(cfgPath) && configDir != "" {
		cfgPath = filepath.Join(configDir, configFile)
	}

	if _, err := os.Stat(cfgPath); err == nil {
		if err := k.Load(file.Provider(cfgPath), yaml.Parser()); err != nil {
			return errors.Wrapf(err, "load configuration file: %s", cfgPath)
		}
	}

	if err := k.Unmarshal("", &Config); err != nil {
		return errors.Wrap(err, "unmarshal configuration")
	}

	return Config.Validate()
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Configuration) Validate() error {
	if c.BatchSize < 1 || c.BatchSize > MaxBatchSize {
		return errors.Errorf("batch_size must be between 1 and %d, got %d", MaxBatchSize, c.BatchSize)
	}
	if c.HashWorkers < 0 {
		return errors.Errorf("hash_workers must not be negative, got %d", c.HashWorkers)
	}
	if c.HashRate < 0 {
		return errors.Errorf("hash_rate must not be negative, got %d", c.HashRate)
	}
	if c.MinSize < 1 {
		// zero-byte files are never cataloged, so a minimum below
		// one byte is meaningless
		c.MinSize = 1
	}
	return nil
}

// GetDefaultConfigDirectory returns the default config dir for the app.
func GetDefaultConfigDirectory(app string, configFile string) string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", app)
	}
	return "."
}
