package action

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/dedupfs/dfm/pkg/catalog"
)

func TestMode_String(t *testing.T) {
	assert.Equal(t, "report", ModeReport.String())
	assert.Equal(t, "hardlink", ModeHardlink.String())
	assert.Equal(t, "delete", ModeDelete.String())
}

func writeFile(t *testing.T, dir, name, content string) *catalog.FileRecord {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	var st unix.Stat_t
	require.NoError(t, unix.Lstat(path, &st))

	return &catalog.FileRecord{
		Path:  path,
		ID:    catalog.FileID{Device: uint64(st.Dev), Inode: uint64(st.Ino)},
		Size:  int64(len(content)),
		Nlink: 1,
	}
}

func makeSet(digest string, files ...*catalog.FileRecord) catalog.DuplicateSet {
	set := catalog.DuplicateSet{Digest: digest, Size: files[0].Size, Files: files}
	sort.Slice(set.Files, func(i, j int) bool { return set.Files[i].Path < set.Files[j].Path })
	return set
}

func TestConsolidate_Hardlink(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "same bytes")
	b := writeFile(t, dir, "b", "same bytes")
	c := writeFile(t, dir, "c", "same bytes")

	sets := []catalog.DuplicateSet{makeSet(strings.Repeat("ab", 32), a, b, c)}

	report := NewEngine(false).Consolidate(context.Background(), sets, ModeHardlink)

	assert.Equal(t, int64(2), report.Linked)
	assert.Equal(t, int64(0), report.Failed)
	assert.Equal(t, uint64(20), report.ReclaimedBytes)

	// every member path still resolves to the same bytes
	sa, err := os.Stat(a.Path)
	require.NoError(t, err)
	for _, rec := range []*catalog.FileRecord{b, c} {
		si, err := os.Stat(rec.Path)
		require.NoError(t, err)
		assert.True(t, os.SameFile(sa, si), "%q should share the canonical inode", rec.Path)

		data, err := os.ReadFile(rec.Path)
		require.NoError(t, err)
		assert.Equal(t, "same bytes", string(data))
	}

	// no temp files left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasSuffix(entry.Name(), ".tmp"))
	}
}

func TestConsolidate_HardlinkSkipsAlreadyLinked(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "same bytes")

	bPath := filepath.Join(dir, "b")
	require.NoError(t, os.Link(a.Path, bPath))
	b := &catalog.FileRecord{Path: bPath, ID: a.ID, Size: a.Size, Nlink: 2}

	sets := []catalog.DuplicateSet{makeSet(strings.Repeat("cd", 32), a, b)}

	report := NewEngine(false).Consolidate(context.Background(), sets, ModeHardlink)

	assert.Equal(t, int64(0), report.Linked)
	assert.Equal(t, int64(1), report.Skipped)
	assert.Equal(t, uint64(0), report.ReclaimedBytes)
}

func TestConsolidate_HardlinkRejectsCrossDevice(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "same bytes")
	b := writeFile(t, dir, "b", "same bytes")
	b.ID.Device = a.ID.Device + 1

	sets := []catalog.DuplicateSet{makeSet(strings.Repeat("ef", 32), a, b)}

	report := NewEngine(false).Consolidate(context.Background(), sets, ModeHardlink)

	assert.Equal(t, int64(0), report.Linked)
	assert.Equal(t, int64(1), report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, b.Path, report.Failures[0].Path)
	assert.Contains(t, report.Failures[0].Err.Error(), "across devices")

	// the member itself is untouched
	si, err := os.Stat(b.Path)
	require.NoError(t, err)
	sa, err := os.Stat(a.Path)
	require.NoError(t, err)
	assert.False(t, os.SameFile(sa, si))
}

func TestConsolidate_Delete(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "same bytes")
	b := writeFile(t, dir, "b", "same bytes")
	c := writeFile(t, dir, "c", "same bytes")

	sets := []catalog.DuplicateSet{makeSet(strings.Repeat("01", 32), a, b, c)}

	report := NewEngine(false).Consolidate(context.Background(), sets, ModeDelete)

	assert.Equal(t, int64(2), report.Deleted)
	assert.Equal(t, int64(0), report.Failed)
	assert.Equal(t, uint64(20), report.ReclaimedBytes)

	_, err := os.Stat(a.Path)
	assert.NoError(t, err, "canonical member must survive")
	for _, rec := range []*catalog.FileRecord{b, c} {
		_, err := os.Stat(rec.Path)
		assert.True(t, os.IsNotExist(err), "%q should be gone", rec.Path)
	}
}

func TestConsolidate_DeleteReportsMissingMember(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "same bytes")
	b := writeFile(t, dir, "b", "same bytes")
	c := writeFile(t, dir, "c", "same bytes")
	require.NoError(t, os.Remove(b.Path))

	sets := []catalog.DuplicateSet{makeSet(strings.Repeat("23", 32), a, b, c)}

	report := NewEngine(false).Consolidate(context.Background(), sets, ModeDelete)

	// the failure on b does not stop c from being deleted
	assert.Equal(t, int64(1), report.Deleted)
	assert.Equal(t, int64(1), report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, b.Path, report.Failures[0].Path)

	_, err := os.Stat(c.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestConsolidate_DryRunTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "same bytes")
	b := writeFile(t, dir, "b", "same bytes")

	sets := []catalog.DuplicateSet{makeSet(strings.Repeat("45", 32), a, b)}

	engine := NewEngine(true)

	report := engine.Consolidate(context.Background(), sets, ModeHardlink)
	assert.Equal(t, int64(1), report.Linked)
	assert.Equal(t, uint64(10), report.ReclaimedBytes)

	report = engine.Consolidate(context.Background(), sets, ModeDelete)
	assert.Equal(t, int64(1), report.Deleted)

	sa, err := os.Stat(a.Path)
	require.NoError(t, err)
	sb, err := os.Stat(b.Path)
	require.NoError(t, err)
	assert.False(t, os.SameFile(sa, sb), "dry run must not link")
}

func TestConsolidate_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a", "same bytes")
	b := writeFile(t, dir, "b", "same bytes")

	sets := []catalog.DuplicateSet{makeSet(strings.Repeat("67", 32), a, b)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := NewEngine(false).Consolidate(ctx, sets, ModeDelete)

	assert.Equal(t, int64(0), report.Deleted)
	_, err := os.Stat(b.Path)
	assert.NoError(t, err, "cancelled run must leave members alone")
}
