package backend

import (
	"context"
	"sort"

	"github.com/scylladb/go-set/u64set"

	"github.com/dedupfs/dfm/pkg/catalog"
	"github.com/dedupfs/dfm/pkg/digest"
	"github.com/dedupfs/dfm/pkg/logger"
)

var log = logger.GetLogger("resolver")

// CollapseGroup keeps exactly one representative per distinct inode and
// returns the eliminated entries (the store backend deletes their
// rows). Files already hardlinked to each other are identical by
// definition; hashing them would waste IO and the action engine must
// never try to re-link them.
//
// Members are ordered by path first, so the surviving representative is
// deterministic. The representative's link count is normalized to 1,
// which also makes the collapse idempotent.
func CollapseGroup(files []*catalog.FileRecord) (survivors, eliminated []*catalog.FileRecord) {
	sorted := make([]*catalog.FileRecord, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})

	seen := u64set.New()
	survivors = make([]*catalog.FileRecord, 0, len(sorted))

	for _, rec := range sorted {
		if rec.Nlink > 1 {
			if seen.Has(rec.ID.Inode) {
				eliminated = append(eliminated, rec)
				continue
			}
			seen.Add(rec.ID.Inode)

			representative := *rec
			representative.Nlink = 1
			survivors = append(survivors, &representative)
			continue
		}

		survivors = append(survivors, rec)
	}

	return survivors, eliminated
}

// PersistFunc stores a computed digest (the external-store backend
// writes it back by primary key). A persist error is fatal.
type PersistFunc func(rec *catalog.FileRecord) error

// ResolveGroups digests every member of every group and partitions them
// into duplicate sets. Hash errors drop the affected file from its
// group and are counted, never fatal. Sets come back sorted by digest
// with members sorted by path.
func ResolveGroups(ctx context.Context, groups []catalog.CandidateGroup, opts digest.Options, stats *catalog.RunStats, persist PersistFunc) ([]catalog.DuplicateSet, error) {
	var sets []catalog.DuplicateSet

	for _, group := range groups {
		candidates := group.Files

		// first-block prefilter: files whose leading blocks differ
		// cannot be duplicates, so they skip the full read
		if group.Key.Size > digest.PrefilterThreshold {
			candidates = prefilter(group.Files, stats)
		}

		if len(candidates) < 2 {
			continue
		}

		results := digest.SumAll(ctx, candidates, opts)
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		byDigest := make(map[string][]*catalog.FileRecord)
		for _, res := range results {
			if res.Err != nil {
				stats.HashFailures++
				log.WithError(res.Err).Warnf("Excluding file, hash failed: %q", res.Rec.Path)
				continue
			}

			stats.FilesHashed++
			res.Rec.Digest = res.Digest

			if persist != nil {
				if err := persist(res.Rec); err != nil {
					return nil, err
				}
			}

			byDigest[res.Digest] = append(byDigest[res.Digest], res.Rec)
		}

		for sum, members := range byDigest {
			if len(members) < 2 {
				// same size, different content
				continue
			}

			set := catalog.DuplicateSet{
				Digest: sum,
				Size:   group.Key.Size,
				Files:  members,
			}
			set.SortFiles()
			sets = append(sets, set)
		}
	}

	catalog.SortSets(sets)
	return sets, nil
}

// prefilter partitions files by their first-block digest and keeps only
// partitions that can still contain a duplicate. Partial-block matches
// are never trusted: survivors still get a full digest.
func prefilter(files []*catalog.FileRecord, stats *catalog.RunStats) []*catalog.FileRecord {
	partitions := make(map[uint64][]*catalog.FileRecord)

	for _, rec := range files {
		sum, err := digest.SumFirstBlock(rec.Path)
		if err != nil {
			stats.HashFailures++
			log.WithError(err).Warnf("Excluding file, first-block hash failed: %q", rec.Path)
			continue
		}
		partitions[sum] = append(partitions[sum], rec)
	}

	survivors := make([]*catalog.FileRecord, 0, len(files))
	for _, members := range partitions {
		if len(members) > 1 {
			survivors = append(survivors, members...)
		}
	}

	sort.Slice(survivors, func(i, j int) bool {
		return survivors[i].Path < survivors[j].Path
	})

	return survivors
}
