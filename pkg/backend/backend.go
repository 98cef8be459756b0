// Package backend defines the storage contract behind the duplicate
// detection pipeline and the resolver logic both implementations share.
package backend

import (
	"context"

	"github.com/dedupfs/dfm/pkg/catalog"
	"github.com/dedupfs/dfm/pkg/digest"
)

// Backend is the pipeline's storage substrate. The in-memory
// implementation suits catalogs that fit in RAM (roughly 1KB per file);
// the external-store implementation re-expresses each stage as bulk
// loads and aggregate queries. Both must yield identical duplicate-set
// membership for the same input tree.
//
// The driver calls the methods in order: LoadRecord (per scanned file),
// Flush, CandidateGroups, CollapseHardlinks, DuplicateSets, Close.
type Backend interface {
	// LoadRecord consumes one scanner record. Errors are fatal: a
	// partially loaded catalog must not produce a partial analysis.
	LoadRecord(rec *catalog.FileRecord) error

	// Flush completes catalog loading (the store backend commits its
	// final insert batch here).
	Flush(ctx context.Context) error

	// CandidateGroups returns every (device, size) group with at
	// least two members, sorted by key. Singleton groups are
	// discarded and counted as unique-size eliminations.
	CandidateGroups(ctx context.Context) ([]catalog.CandidateGroup, error)

	// CollapseHardlinks removes all but one representative per inode
	// from each group, then discards groups reduced below two
	// members.
	CollapseHardlinks(ctx context.Context, groups []catalog.CandidateGroup) ([]catalog.CandidateGroup, error)

	// DuplicateSets digests the surviving members and partitions them
	// into confirmed duplicate sets, sorted by digest.
	DuplicateSets(ctx context.Context, groups []catalog.CandidateGroup, opts digest.Options) ([]catalog.DuplicateSet, error)

	// Stats returns the counters accumulated by the backend stages.
	// Only meaningful once DuplicateSets has returned.
	Stats() catalog.RunStats

	Close() error
}
