// Package memory implements the backend contract with in-process maps.
package memory

import (
	"context"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/dedupfs/dfm/pkg/backend"
	"github.com/dedupfs/dfm/pkg/catalog"
	"github.com/dedupfs/dfm/pkg/digest"
	"github.com/dedupfs/dfm/pkg/logger"
)

type Memory struct {
	log     *logrus.Entry
	catalog map[catalog.GroupKey][]*catalog.FileRecord
	stats   catalog.RunStats
}

func New() *Memory {
	return &Memory{
		log:     logger.GetLogger("memory"),
		catalog: make(map[catalog.GroupKey][]*catalog.FileRecord),
	}
}

func (m *Memory) LoadRecord(rec *catalog.FileRecord) error {
	key := catalog.GroupKey{Device: rec.ID.Device, Size: rec.Size}
	m.catalog[key] = append(m.catalog[key], rec)
	return nil
}

func (m *Memory) Flush(_ context.Context) error {
	return nil
}

func (m *Memory) CandidateGroups(_ context.Context) ([]catalog.CandidateGroup, error) {
	groups := make([]catalog.CandidateGroup, 0, len(m.catalog))

	for key, files := range m.catalog {
		if len(files) < 2 {
			// a unique (device, size) cannot contain a duplicate
			m.stats.UniqueSizeEliminated++
			continue
		}
		groups = append(groups, catalog.CandidateGroup{Key: key, Files: files})
	}

	sortGroups(groups)

	m.log.Debugf("Partitioned catalog into %d candidate groups (%d unique sizes eliminated)",
		len(groups), m.stats.UniqueSizeEliminated)

	return groups, nil
}

func (m *Memory) CollapseHardlinks(_ context.Context, groups []catalog.CandidateGroup) ([]catalog.CandidateGroup, error) {
	collapsed := make([]catalog.CandidateGroup, 0, len(groups))

	for _, group := range groups {
		survivors, eliminated := backend.CollapseGroup(group.Files)
		m.stats.HardlinkEliminated += int64(len(eliminated))

		if len(survivors) < 2 {
			// every member was a link to one inode
			m.stats.UniqueSizeEliminated++
			continue
		}

		collapsed = append(collapsed, catalog.CandidateGroup{Key: group.Key, Files: survivors})
	}

	return collapsed, nil
}

func (m *Memory) DuplicateSets(ctx context.Context, groups []catalog.CandidateGroup, opts digest.Options) ([]catalog.DuplicateSet, error) {
	return backend.ResolveGroups(ctx, groups, opts, &m.stats, nil)
}

func (m *Memory) Stats() catalog.RunStats {
	return m.stats
}

func (m *Memory) Close() error {
	m.catalog = nil
	return nil
}

func sortGroups(groups []catalog.CandidateGroup) {
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].Key.Device != groups[j].Key.Device {
			return groups[i].Key.Device < groups[j].Key.Device
		}
		return groups[i].Key.Size < groups[j].Key.Size
	})
}
