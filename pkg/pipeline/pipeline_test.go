package pipeline

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dedupfs/dfm/pkg/action"
	"github.com/dedupfs/dfm/pkg/backend/memory"
	"github.com/dedupfs/dfm/pkg/digest"
)

// populate builds the reference tree: a and b share content, c differs
// at the same size, d is empty, e and f are one hardlinked inode.
func populate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	write("a", "X")
	write("b", "X")
	write("c", "Y")
	write("d", "")
	e := write("e", "ZZ")
	require.NoError(t, os.Link(e, filepath.Join(dir, "f")))

	return dir
}

func TestRun_Report(t *testing.T) {
	dir := populate(t)

	result, err := Run(context.Background(), memory.New(), Options{
		Roots: []string{dir},
		Mode:  action.ModeReport,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(5), result.Stats.FilesScanned)
	assert.Equal(t, int64(1), result.Stats.ZeroByte)
	assert.Equal(t, int64(1), result.Stats.HardlinkEliminated)
	assert.Equal(t, int64(1), result.Stats.UniqueSizeEliminated)
	assert.Equal(t, int64(3), result.Stats.FilesHashed)
	assert.Equal(t, int64(1), result.Stats.DuplicateSets)
	assert.Equal(t, int64(1), result.Stats.DuplicateFiles)
	assert.Equal(t, uint64(1), result.Stats.WastedBytes)

	require.Len(t, result.Sets, 1)
	set := result.Sets[0]
	require.Len(t, set.Files, 2)
	assert.Equal(t, filepath.Join(dir, "a"), set.Files[0].Path)
	assert.Equal(t, filepath.Join(dir, "b"), set.Files[1].Path)

	// report mode never touches the tree
	assert.Equal(t, int64(0), result.Actions.Linked)
	assert.Equal(t, int64(0), result.Actions.Deleted)
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err)
	}
}

func TestRun_HardlinkThenConverges(t *testing.T) {
	dir := populate(t)

	result, err := Run(context.Background(), memory.New(), Options{
		Roots: []string{dir},
		Mode:  action.ModeHardlink,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Actions.Linked)
	assert.Equal(t, int64(0), result.Actions.Failed)

	// a and b now share an inode with identical content
	sa, err := os.Stat(filepath.Join(dir, "a"))
	require.NoError(t, err)
	sb, err := os.Stat(filepath.Join(dir, "b"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(sa, sb))

	data, err := os.ReadFile(filepath.Join(dir, "b"))
	require.NoError(t, err)
	assert.Equal(t, "X", string(data))

	// a second run over the linked tree finds nothing left to do
	result, err = Run(context.Background(), memory.New(), Options{
		Roots: []string{dir},
		Mode:  action.ModeHardlink,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Sets)
	assert.Equal(t, int64(2), result.Stats.HardlinkEliminated)
	assert.Equal(t, int64(0), result.Actions.Linked)
}

func TestRun_DeleteThenConverges(t *testing.T) {
	dir := populate(t)

	result, err := Run(context.Background(), memory.New(), Options{
		Roots: []string{dir},
		Mode:  action.ModeDelete,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Actions.Deleted)
	assert.Equal(t, uint64(1), result.Actions.ReclaimedBytes)

	_, err = os.Stat(filepath.Join(dir, "a"))
	assert.NoError(t, err, "canonical member must survive")
	_, err = os.Stat(filepath.Join(dir, "b"))
	assert.True(t, os.IsNotExist(err))

	result, err = Run(context.Background(), memory.New(), Options{
		Roots: []string{dir},
		Mode:  action.ModeDelete,
	})
	require.NoError(t, err)

	assert.Empty(t, result.Sets)
	assert.Equal(t, int64(0), result.Actions.Deleted)
}

func TestRun_DryRunLeavesTreeAlone(t *testing.T) {
	dir := populate(t)

	result, err := Run(context.Background(), memory.New(), Options{
		Roots:  []string{dir},
		Mode:   action.ModeDelete,
		DryRun: true,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(1), result.Actions.Deleted)
	_, err = os.Stat(filepath.Join(dir, "b"))
	assert.NoError(t, err)
}

func TestRun_NoRoots(t *testing.T) {
	_, err := Run(context.Background(), memory.New(), Options{Mode: action.ModeReport})
	assert.Error(t, err)
}

func TestRun_HashOptionsPropagate(t *testing.T) {
	dir := populate(t)

	result, err := Run(context.Background(), memory.New(), Options{
		Roots:    []string{dir},
		Mode:     action.ModeReport,
		HashOpts: digest.Options{Workers: 1, RatePerSec: 1000},
	})
	require.NoError(t, err)
	assert.Len(t, result.Sets, 1)
}

func TestPrintSets(t *testing.T) {
	dir := populate(t)

	result, err := Run(context.Background(), memory.New(), Options{
		Roots: []string{dir},
		Mode:  action.ModeReport,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	PrintSets(&buf, result.Sets)

	out := buf.String()
	assert.Contains(t, out, filepath.Join(dir, "a"))
	assert.Contains(t, out, filepath.Join(dir, "b"))
	assert.NotContains(t, out, filepath.Join(dir, "c"))
	assert.Contains(t, out, result.Sets[0].Digest)
}
