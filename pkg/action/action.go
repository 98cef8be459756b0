// Package action consolidates confirmed duplicate sets by hardlinking
// or deleting the redundant members.
package action

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dedupfs/dfm/pkg/catalog"
	"github.com/dedupfs/dfm/pkg/logger"
)

type Mode int

const (
	// ModeReport only lists duplicates; nothing is touched.
	ModeReport Mode = iota
	// ModeHardlink replaces redundant members with hardlinks to the
	// canonical member.
	ModeHardlink
	// ModeDelete removes redundant members.
	ModeDelete
)

func (m Mode) String() string {
	switch m {
	case ModeHardlink:
		return "hardlink"
	case ModeDelete:
		return "delete"
	default:
		return "report"
	}
}

// Failure records one member the engine could not consolidate.
type Failure struct {
	Path string
	Err  error
}

// Report aggregates the outcome of one consolidation batch.
type Report struct {
	Linked         int64
	Deleted        int64
	Skipped        int64
	Failed         int64
	ReclaimedBytes uint64
	Failures       []Failure
}

type Engine struct {
	log    *logrus.Entry
	dryRun bool
}

func NewEngine(dryRun bool) *Engine {
	return &Engine{
		log:    logger.GetLogger("action"),
		dryRun: dryRun,
	}
}

// Consolidate processes every set. The canonical member is always the
// lexicographically first path, so a dry run, a real run and a re-run
// all pick the same survivor. Failures on one member never stop the
// rest of the batch; cancellation stops between sets.
func (e *Engine) Consolidate(ctx context.Context, sets []catalog.DuplicateSet, mode Mode) Report {
	var report Report

	for _, set := range sets {
		if err := ctx.Err(); err != nil {
			e.log.Warn("Consolidation cancelled, remaining sets untouched")
			break
		}

		canonical := set.Canonical()
		e.log.Debugf("Consolidating set %s: keeping %q", set.Digest[:12], canonical.Path)

		for _, member := range set.Files[1:] {
			switch mode {
			case ModeHardlink:
				e.hardlink(canonical, member, set.Size, &report)
			case ModeDelete:
				e.delete(member, set.Size, &report)
			}
		}
	}

	return report
}

// hardlink atomically replaces member with a link to canonical: the
// link is created under a temporary name and renamed over the member,
// so a crash never leaves the member path missing.
func (e *Engine) hardlink(canonical, member *catalog.FileRecord, size int64, report *Report) {
	if member.ID.Equal(canonical.ID) {
		e.log.Debugf("Already hardlinked, skipping: %q", member.Path)
		report.Skipped++
		return
	}

	if member.ID.Device != canonical.ID.Device {
		// hardlinks cannot cross device boundaries
		err := errors.Errorf("cannot hardlink across devices: %q (device %d) -> %q (device %d)",
			member.Path, member.ID.Device, canonical.Path, canonical.ID.Device)
		e.log.WithError(err).Error("Failed consolidating member")
		report.Failed++
		report.Failures = append(report.Failures, Failure{Path: member.Path, Err: err})
		return
	}

	if e.dryRun {
		e.log.Warnf("Dry-run enabled, would hardlink %q -> %q", member.Path, canonical.Path)
		report.Linked++
		report.ReclaimedBytes += uint64(size)
		return
	}

	tmp := tempLinkPath(member.Path)

	if err := os.Link(canonical.Path, tmp); err != nil {
		err = errors.Wrapf(err, "link %q", canonical.Path)
		e.log.WithError(err).Errorf("Failed consolidating member: %q", member.Path)
		report.Failed++
		report.Failures = append(report.Failures, Failure{Path: member.Path, Err: err})
		return
	}

	if err := os.Rename(tmp, member.Path); err != nil {
		_ = os.Remove(tmp)
		err = errors.Wrapf(err, "rename over %q", member.Path)
		e.log.WithError(err).Errorf("Failed consolidating member: %q", member.Path)
		report.Failed++
		report.Failures = append(report.Failures, Failure{Path: member.Path, Err: err})
		return
	}

	e.log.Infof("Hardlinked %q -> %q", member.Path, canonical.Path)
	report.Linked++
	report.ReclaimedBytes += uint64(size)
}

func (e *Engine) delete(member *catalog.FileRecord, size int64, report *Report) {
	if e.dryRun {
		e.log.Warnf("Dry-run enabled, would delete %q", member.Path)
		report.Deleted++
		report.ReclaimedBytes += uint64(size)
		return
	}

	if err := os.Remove(member.Path); err != nil {
		err = errors.Wrapf(err, "remove %q", member.Path)
		e.log.WithError(err).Error("Failed deleting member")
		report.Failed++
		report.Failures = append(report.Failures, Failure{Path: member.Path, Err: err})
		return
	}

	e.log.Infof("Deleted %q", member.Path)
	report.Deleted++
	report.ReclaimedBytes += uint64(size)
}

func tempLinkPath(memberPath string) string {
	dir := filepath.Dir(memberPath)
	base := filepath.Base(memberPath)
	return filepath.Join(dir, fmt.Sprintf(".%s.dfm-%d.tmp", base, os.Getpid()))
}
