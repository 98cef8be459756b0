// Package scanner walks directory trees and emits one catalog record
// per regular, non-empty file.
package scanner

import (
	"context"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/dedupfs/dfm/pkg/catalog"
	"github.com/dedupfs/dfm/pkg/filter"
	"github.com/dedupfs/dfm/pkg/logger"
)

// EmitFunc receives each surviving record. An error aborts the scan;
// backends use this to surface fatal batch-insert failures.
type EmitFunc func(rec *catalog.FileRecord) error

type Scanner struct {
	log    *logrus.Entry
	filter *filter.FileFilter
}

func New(f *filter.FileFilter) *Scanner {
	return &Scanner{
		log:    logger.GetLogger("scanner"),
		filter: f,
	}
}

// Scan walks each root and feeds surviving records to emit. Per-entry
// stat and permission errors are logged and skipped; only an emit error
// or a fully unreadable root aborts the scan.
func (s *Scanner) Scan(ctx context.Context, roots []string, emit EmitFunc) (catalog.RunStats, error) {
	var (
		stats catalog.RunStats
		mu    sync.Mutex
	)

	cleaned, err := normalizeRoots(roots)
	if err != nil {
		return stats, err
	}

	conf := &fastwalk.Config{
		Follow: false,
	}

	for _, root := range cleaned {
		s.log.Debugf("Walking root: %q", root)

		walkErr := fastwalk.Walk(conf, root, func(path string, d fs.DirEntry, err error) error {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}

			if err != nil {
				mu.Lock()
				stats.ScanErrors++
				s.log.WithError(err).Warnf("Skipping unreadable entry: %q", path)
				mu.Unlock()
				return nil
			}

			if d.IsDir() || !d.Type().IsRegular() {
				// symlinks (broken or not) and other irregular
				// entries never enter the catalog
				return nil
			}

			rec, err := statRecord(path)
			if err != nil {
				mu.Lock()
				stats.ScanErrors++
				s.log.WithError(err).Warnf("Skipping entry, stat failed: %q", path)
				mu.Unlock()
				return nil
			}

			mu.Lock()
			defer mu.Unlock()

			if rec.Size == 0 {
				stats.ZeroByte++
				return nil
			}

			stats.FilesScanned++

			match, ferr := s.filter.Match(rec)
			if ferr != nil {
				stats.ScanErrors++
				s.log.WithError(ferr).Warnf("Skipping entry, filter failed: %q", path)
				return nil
			}
			if !match {
				stats.Filtered++
				return nil
			}

			return emit(rec)
		})

		if walkErr != nil {
			return stats, errors.Wrapf(walkErr, "walk root: %q", root)
		}
	}

	return stats, nil
}

// normalizeRoots makes roots absolute and drops any root nested inside
// another, so overlapping roots cannot catalog the same file twice.
func normalizeRoots(roots []string) ([]string, error) {
	if len(roots) == 0 {
		return nil, errors.New("no root paths given")
	}

	abs := make([]string, 0, len(roots))
	for _, root := range roots {
		a, err := filepath.Abs(root)
		if err != nil {
			return nil, errors.Wrapf(err, "resolve root: %q", root)
		}
		abs = append(abs, filepath.Clean(a))
	}

	sort.Strings(abs)

	cleaned := make([]string, 0, len(abs))
	for _, root := range abs {
		nested := false
		for _, parent := range cleaned {
			if root == parent || strings.HasPrefix(root, parent+string(filepath.Separator)) {
				nested = true
				break
			}
		}
		if !nested {
			cleaned = append(cleaned, root)
		}
	}

	return cleaned, nil
}
