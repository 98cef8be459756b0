package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dedupfs/dfm/pkg/action"
	"github.com/dedupfs/dfm/pkg/backend"
	"github.com/dedupfs/dfm/pkg/backend/memory"
	"github.com/dedupfs/dfm/pkg/backend/store"
	"github.com/dedupfs/dfm/pkg/catalog"
	"github.com/dedupfs/dfm/pkg/config"
	"github.com/dedupfs/dfm/pkg/digest"
	"github.com/dedupfs/dfm/pkg/filter"
	"github.com/dedupfs/dfm/pkg/logger"
	"github.com/dedupfs/dfm/pkg/notification"
	"github.com/dedupfs/dfm/pkg/pipeline"
)

var (
	// Global flags
	FlagLogLevel     = 0
	FlagConfigFile   = "config.yaml"
	FlagConfigFolder = config.GetDefaultConfigDirectory("dfm", FlagConfigFile)
	FlagLogFile      = ""
	FlagDryRun       bool

	// Pipeline flags
	flagBackend     string
	flagBatchSize   int
	flagHashWorkers int
	flagMinSize     int64

	initialized bool
)

func initCore() {
	if initialized {
		return
	}

	logger.Init(FlagLogLevel, FlagLogFile)

	log := logger.GetLogger("dfm")
	if err := config.Load(FlagConfigFolder, FlagConfigFile); err != nil {
		log.WithError(err).Fatal("Failed loading configuration")
	}

	// CLI flags override file configuration
	if flagBatchSize > 0 {
		config.Config.BatchSize = flagBatchSize
	}
	if flagHashWorkers > 0 {
		config.Config.HashWorkers = flagHashWorkers
	}
	if flagMinSize > 0 {
		config.Config.MinSize = flagMinSize
	}
	if err := config.Config.Validate(); err != nil {
		log.WithError(err).Fatal("Invalid configuration")
	}

	initialized = true
}

func addPipelineFlags(command *cobra.Command) {
	command.Flags().StringVar(&flagBackend, "backend", "in-memory", "Backend: in-memory or external-store")
	command.Flags().IntVar(&flagBatchSize, "batch-size", 0, "External-store insert batch size")
	command.Flags().IntVar(&flagHashWorkers, "hash-workers", 0, "Hash worker pool size (0 = auto)")
	command.Flags().Int64Var(&flagMinSize, "min-size", 0, "Minimum file size in bytes")
}

func newBackend(ctx context.Context) (backend.Backend, error) {
	switch flagBackend {
	case "in-memory":
		return memory.New(), nil
	case "external-store":
		return store.New(ctx, config.Config.Store, config.Config.BatchSize)
	default:
		return nil, fmt.Errorf("unknown backend: %q", flagBackend)
	}
}

// runPipeline is the shared body of the scan, link and delete commands.
func runPipeline(cmd *cobra.Command, args []string, mode action.Mode) {
	ctx := cmd.Context()
	start := time.Now()

	initCore()

	log := logger.GetLogger(cmd.Name())

	fileFilter, err := filter.New(filter.Options{
		MinSize:         config.Config.MinSize,
		ExcludePatterns: config.Config.ExcludePatterns,
		Expression:      config.Config.FilterExpr,
	})
	if err != nil {
		log.WithError(err).Fatal("Failed compiling file filter")
	}

	be, err := newBackend(ctx)
	if err != nil {
		log.WithError(err).Fatal("Failed initializing backend")
	}
	defer be.Close()

	log.Infof("Starting %s run over %d root(s), backend: %s", mode, len(args), flagBackend)

	result, err := pipeline.Run(ctx, be, pipeline.Options{
		Roots:  args,
		Filter: fileFilter,
		HashOpts: digest.Options{
			Workers:    config.Config.HashWorkers,
			RatePerSec: config.Config.HashRate,
		},
		Mode:   mode,
		DryRun: FlagDryRun,
	})
	if err != nil {
		log.WithError(err).Fatal("Run failed")
	}

	pipeline.PrintSets(os.Stdout, result.Sets)
	pipeline.LogSummary(log, result, mode)

	sendNotification(log, result, mode, start)
}

func sendNotification(log *logrus.Entry, result *pipeline.Result, mode action.Mode, start time.Time) {
	noti := notification.NewWebhookSender(log, config.Config.Notifications)
	if !noti.CanSend() {
		log.Debug("Notifications disabled, skipping...")
		return
	}
	if result.Stats.DuplicateSets == 0 && config.Config.Notifications.SkipEmptyRun {
		log.Debug("Nothing found and skip_empty_run set, skipping notification")
		return
	}

	title := fmt.Sprintf("Duplicates (%s)", mode)
	if FlagDryRun {
		title += " (Dry Run)"
	}

	description := fmt.Sprintf("Found **%d** duplicate sets (**%d** redundant files) | Reclaimable **%s**",
		result.Stats.DuplicateSets, result.Stats.DuplicateFiles, humanize.IBytes(result.Stats.WastedBytes))

	if err := noti.Send(title, description, time.Since(start), summaryFields(result.Stats, result.Actions)); err != nil {
		log.WithError(err).Error("Failed sending notification")
	}
}

func summaryFields(stats catalog.RunStats, rep action.Report) []notification.Field {
	return []notification.Field{
		{Name: "Files scanned", Value: fmt.Sprintf("%d", stats.FilesScanned)},
		{Name: "Files hashed", Value: fmt.Sprintf("%d", stats.FilesHashed)},
		{Name: "Duplicate sets", Value: fmt.Sprintf("%d", stats.DuplicateSets)},
		{Name: "Redundant files", Value: fmt.Sprintf("%d", stats.DuplicateFiles)},
		{Name: "Actions failed", Value: fmt.Sprintf("%d", rep.Failed)},
	}
}
