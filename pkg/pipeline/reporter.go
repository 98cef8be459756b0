package pipeline

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/dedupfs/dfm/pkg/action"
	"github.com/dedupfs/dfm/pkg/catalog"
)

// PrintSets writes the grouped-by-digest duplicate listing. This is the
// only user-facing artifact besides filesystem mutations.
func PrintSets(w io.Writer, sets []catalog.DuplicateSet) {
	for _, set := range sets {
		fmt.Fprintf(w, "%s  %s  x%d\n", set.Digest, humanize.IBytes(uint64(set.Size)), len(set.Files))
		for _, rec := range set.Files {
			fmt.Fprintf(w, "  %s\n", rec.Path)
		}
		fmt.Fprintln(w)
	}
}

// LogSummary emits the final run summary. Files compared, duplicates
// found and actions failed stay separate lines so a clean run is
// distinguishable from one with partial failures.
func LogSummary(log *logrus.Entry, result *Result, mode action.Mode) {
	stats := result.Stats

	log.Info("-----")
	log.Infof("Files compared: %d hashed of %d scanned (%d hash failures)",
		stats.FilesHashed, stats.FilesScanned, stats.HashFailures)
	log.Infof("Eliminations: %d zero-byte, %d unique size, %d hardlinks",
		stats.ZeroByte, stats.UniqueSizeEliminated, stats.HardlinkEliminated)
	log.WithField("wasted_space", humanize.IBytes(stats.WastedBytes)).
		Infof("Duplicates found: %d sets, %d redundant files", stats.DuplicateSets, stats.DuplicateFiles)

	if mode == action.ModeReport {
		return
	}

	rep := result.Actions
	log.WithField("reclaimed_space", humanize.IBytes(rep.ReclaimedBytes)).
		Infof("Actions (%s): %d linked, %d deleted, %d skipped, %d failed",
			mode, rep.Linked, rep.Deleted, rep.Skipped, rep.Failed)

	for _, failure := range rep.Failures {
		log.WithError(failure.Err).Errorf("Action failed: %q", failure.Path)
	}
}
