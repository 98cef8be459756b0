package logger

import (
	"io"
	"os"

	"github.com/natefinch/lumberjack"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Init configures the global logger. Verbosity maps the -v count to a
// logrus level (0 = info, 1 = debug, >= 2 = trace). When logFilePath is
// non-empty, output is mirrored to a rotating log file.
func Init(verbosity int, logFilePath string) {
	switch {
	case verbosity <= 0:
		logrus.SetLevel(logrus.InfoLevel)
	case verbosity == 1:
		logrus.SetLevel(logrus.DebugLevel)
	default:
		logrus.SetLevel(logrus.TraceLevel)
	}

	logrus.SetFormatter(&prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
		ForceFormatting: true,
	})

	// logs go to stderr so the duplicate listing on stdout stays parseable
	if logFilePath != "" {
		logrus.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   logFilePath,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
		}))
	} else {
		logrus.SetOutput(os.Stderr)
	}
}

// GetLogger returns a logger entry with the given prefix.
func GetLogger(prefix string) *logrus.Entry {
	return logrus.WithField("prefix", prefix)
}
