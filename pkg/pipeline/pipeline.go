// Package pipeline drives a full run: scan, group, collapse hardlinks,
// resolve duplicates, act, report. It is backend-agnostic; the backend
// decides whether the catalog lives in memory or in the external store.
package pipeline

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/dedupfs/dfm/pkg/action"
	"github.com/dedupfs/dfm/pkg/backend"
	"github.com/dedupfs/dfm/pkg/catalog"
	"github.com/dedupfs/dfm/pkg/digest"
	"github.com/dedupfs/dfm/pkg/filter"
	"github.com/dedupfs/dfm/pkg/logger"
	"github.com/dedupfs/dfm/pkg/scanner"
)

type Options struct {
	Roots    []string
	Filter   *filter.FileFilter
	HashOpts digest.Options
	Mode     action.Mode
	DryRun   bool
}

// Result is the immutable outcome of one run.
type Result struct {
	Stats   catalog.RunStats
	Sets    []catalog.DuplicateSet
	Actions action.Report
	Elapsed time.Duration
}

// Run executes the pipeline over the given backend. The filesystem is
// read-only until the action stage; cancelling earlier leaves it
// untouched and, for the store backend, leaves only committed batches
// behind.
func Run(ctx context.Context, be backend.Backend, opts Options) (*Result, error) {
	start := time.Now()
	log := logger.GetLogger("pipeline")

	sc := scanner.New(opts.Filter)
	stats, err := sc.Scan(ctx, opts.Roots, be.LoadRecord)
	if err != nil {
		return nil, errors.Wrap(err, "scan")
	}
	if err := be.Flush(ctx); err != nil {
		return nil, errors.Wrap(err, "load catalog")
	}

	log.Infof("Cataloged %d files (%d zero-byte, %d filtered, %d scan errors)",
		stats.FilesScanned, stats.ZeroByte, stats.Filtered, stats.ScanErrors)

	groups, err := be.CandidateGroups(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "candidate groups")
	}

	groups, err = be.CollapseHardlinks(ctx, groups)
	if err != nil {
		return nil, errors.Wrap(err, "collapse hardlinks")
	}

	log.Infof("Hashing %d candidate groups", len(groups))

	sets, err := be.DuplicateSets(ctx, groups, opts.HashOpts)
	if err != nil {
		return nil, errors.Wrap(err, "resolve duplicates")
	}

	stats.Merge(be.Stats())
	for i := range sets {
		stats.DuplicateSets++
		stats.DuplicateFiles += int64(len(sets[i].Files) - 1)
		stats.WastedBytes += sets[i].WastedBytes()
	}

	result := &Result{
		Stats: stats,
		Sets:  sets,
	}

	if opts.Mode != action.ModeReport && len(sets) > 0 {
		engine := action.NewEngine(opts.DryRun)
		result.Actions = engine.Consolidate(ctx, sets, opts.Mode)
	}

	result.Elapsed = time.Since(start)
	return result, nil
}
