package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/dedupfs/dfm/pkg/backend"
	"github.com/dedupfs/dfm/pkg/catalog"
	"github.com/dedupfs/dfm/pkg/digest"
)

const (
	uniqueSizeCountQuery = `
SELECT COUNT(*) FROM (
    SELECT device, size FROM files GROUP BY device, size HAVING COUNT(*) = 1
) u`

	candidateMembersQuery = `
SELECT f.id, f.device, f.inode, f.nlink, f.size, f.path, f.mode, f.uid, f.gid
FROM files f
JOIN (
    SELECT device, size FROM files GROUP BY device, size HAVING COUNT(*) > 1
) c ON c.device = f.device AND c.size = f.size
ORDER BY f.device, f.size, f.path`

	updateDigestStmt = `UPDATE files SET digest = ? WHERE id = ?`

	duplicateMembersQuery = `
SELECT f.id, f.device, f.inode, f.nlink, f.size, f.path, f.mode, f.uid, f.gid, f.digest
FROM files f
JOIN (
    SELECT device, size, digest FROM files
    WHERE digest IS NOT NULL
    GROUP BY device, size, digest HAVING COUNT(*) > 1
) d ON d.device = f.device AND d.size = f.size AND d.digest = f.digest
ORDER BY f.digest, f.device, f.path`
)

// insertStatement builds a multi-row insert for n records.
func insertStatement(n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO files (device, inode, nlink, size, path, mode, uid, gid) VALUES ")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?)")
	}
	return b.String()
}

func insertArgs(recs []*catalog.FileRecord) []any {
	args := make([]any, 0, len(recs)*8)
	for _, rec := range recs {
		args = append(args, rec.ID.Device, rec.ID.Inode, rec.Nlink, rec.Size,
			[]byte(rec.Path), rec.Mode, rec.UID, rec.GID)
	}
	return args
}

// CandidateGroups re-expresses the grouping stage as a group-by-count
// query and streams the members back ordered by (device, size, path),
// so groups are assembled on key change without holding the catalog.
func (s *Store) CandidateGroups(ctx context.Context) ([]catalog.CandidateGroup, error) {
	if err := s.db.QueryRowContext(ctx, uniqueSizeCountQuery).Scan(&s.stats.UniqueSizeEliminated); err != nil {
		return nil, errors.Wrap(err, "count unique sizes")
	}

	rows, err := s.db.QueryContext(ctx, candidateMembersQuery)
	if err != nil {
		return nil, errors.Wrap(err, "query candidate groups")
	}
	defer rows.Close()

	var (
		groups  []catalog.CandidateGroup
		current *catalog.CandidateGroup
	)

	for rows.Next() {
		rec, err := scanRecord(rows, false)
		if err != nil {
			return nil, err
		}

		key := catalog.GroupKey{Device: rec.ID.Device, Size: rec.Size}
		if current == nil || current.Key != key {
			groups = append(groups, catalog.CandidateGroup{Key: key})
			current = &groups[len(groups)-1]
		}
		current.Files = append(current.Files, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate candidate groups")
	}

	s.log.Debugf("Fetched %d candidate groups (%d unique sizes eliminated)",
		len(groups), s.stats.UniqueSizeEliminated)

	return groups, nil
}

// CollapseHardlinks applies the shared per-inode collapse and deletes
// the eliminated rows so later digest queries never see them.
func (s *Store) CollapseHardlinks(ctx context.Context, groups []catalog.CandidateGroup) ([]catalog.CandidateGroup, error) {
	collapsed := make([]catalog.CandidateGroup, 0, len(groups))

	var eliminatedIDs []int64
	for _, group := range groups {
		survivors, eliminated := backend.CollapseGroup(group.Files)
		s.stats.HardlinkEliminated += int64(len(eliminated))

		for _, rec := range eliminated {
			eliminatedIDs = append(eliminatedIDs, rec.StoreID)
		}

		if len(survivors) < 2 {
			s.stats.UniqueSizeEliminated++
			continue
		}

		collapsed = append(collapsed, catalog.CandidateGroup{Key: group.Key, Files: survivors})
	}

	if err := s.deleteByID(ctx, eliminatedIDs); err != nil {
		return nil, err
	}

	return collapsed, nil
}

func (s *Store) deleteByID(ctx context.Context, ids []int64) error {
	for start := 0; start < len(ids); start += s.batchSize {
		end := start + s.batchSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		stmt := "DELETE FROM files WHERE id IN (?" + strings.Repeat(", ?", len(chunk)-1) + ")"
		args := make([]any, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		if _, err := s.db.ExecContext(ctx, stmt, args...); err != nil {
			return errors.Wrapf(err, "delete %d hardlink rows", len(chunk))
		}
	}
	return nil
}

// DuplicateSets digests the surviving members (persisting each digest
// back by primary key) and assembles the final sets from the store's
// own group-by-digest query.
func (s *Store) DuplicateSets(ctx context.Context, groups []catalog.CandidateGroup, opts digest.Options) ([]catalog.DuplicateSet, error) {
	persist := func(rec *catalog.FileRecord) error {
		if _, err := s.db.ExecContext(ctx, updateDigestStmt, []byte(rec.Digest), rec.StoreID); err != nil {
			return errors.Wrapf(err, "persist digest for row %d", rec.StoreID)
		}
		return nil
	}

	if _, err := backend.ResolveGroups(ctx, groups, opts, &s.stats, persist); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, duplicateMembersQuery)
	if err != nil {
		return nil, errors.Wrap(err, "query duplicate sets")
	}
	defer rows.Close()

	var (
		sets    []catalog.DuplicateSet
		current *catalog.DuplicateSet
	)

	for rows.Next() {
		rec, err := scanRecord(rows, true)
		if err != nil {
			return nil, err
		}

		if current == nil || current.Digest != rec.Digest || current.Files[0].ID.Device != rec.ID.Device {
			sets = append(sets, catalog.DuplicateSet{Digest: rec.Digest, Size: rec.Size})
			current = &sets[len(sets)-1]
		}
		current.Files = append(current.Files, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate duplicate sets")
	}

	for i := range sets {
		sets[i].SortFiles()
	}
	catalog.SortSets(sets)

	return sets, nil
}

func scanRecord(rows *sql.Rows, withDigest bool) (*catalog.FileRecord, error) {
	var (
		rec    catalog.FileRecord
		path   []byte
		sum    []byte
		fields = []any{&rec.StoreID, &rec.ID.Device, &rec.ID.Inode, &rec.Nlink,
			&rec.Size, &path, &rec.Mode, &rec.UID, &rec.GID}
	)

	if withDigest {
		fields = append(fields, &sum)
	}

	if err := rows.Scan(fields...); err != nil {
		return nil, errors.Wrap(err, "scan catalog row")
	}

	rec.Path = string(path)
	rec.Digest = string(sum)
	return &rec, nil
}
