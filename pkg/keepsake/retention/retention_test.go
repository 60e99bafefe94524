package retention

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAged(t *testing.T, dir, name string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestList_OrdersOldestFirstWithNameTieBreak(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)

	writeAged(t, dir, "c.txt", base.Add(2*time.Minute))
	writeAged(t, dir, "b.txt", base)
	writeAged(t, dir, "a.txt", base)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))

	entries, err := List(dir, RegularFiles)
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, names)
}

func TestPrune_KeepsNewest(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)

	for i, name := range []string{"one", "two", "three", "four", "five"} {
		writeAged(t, dir, name, base.Add(time.Duration(i)*time.Hour))
	}

	removed, err := Prune(dir, 2, RegularFiles, nil)
	require.NoError(t, err)
	assert.Len(t, removed, 3)

	entries, err := List(dir, nil)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "four", entries[0].Name)
	assert.Equal(t, "five", entries[1].Name)
}

func TestPrune_UnderLimitIsNoop(t *testing.T) {
	dir := t.TempDir()
	writeAged(t, dir, "only", time.Now())

	removed, err := Prune(dir, 3, RegularFiles, nil)
	require.NoError(t, err)
	assert.Empty(t, removed)
}

func TestPrune_MatcherIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local)

	writeAged(t, dir, "notes.md", base)
	writeAged(t, dir, "summary_20250301.txt", base.Add(time.Hour))
	writeAged(t, dir, "summary_20250302.txt", base.Add(2*time.Hour))
	writeAged(t, dir, "summary_20250303.txt", base.Add(3*time.Hour))

	removed, err := Prune(dir, 2, FilesWithAffixes("summary_", ".txt"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "summary_20250301.txt")}, removed)

	_, err = os.Stat(filepath.Join(dir, "notes.md"))
	assert.NoError(t, err)
}

func TestPrune_Directories(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local)

	for i, name := range []string{"w_01", "w_02", "w_03"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Join(p, "nested"), 0o755))
		mtime := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}

	removed, err := Prune(dir, 1, Directories, os.RemoveAll)
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	entries, err := List(dir, Directories)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "w_03", entries[0].Name)
}

func TestPrune_CollectsRemovalErrors(t *testing.T) {
	dir := t.TempDir()
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local)
	writeAged(t, dir, "a", base)
	writeAged(t, dir, "b", base.Add(time.Hour))
	writeAged(t, dir, "c", base.Add(2*time.Hour))

	errBoom := errors.New("boom")
	calls := 0
	removed, err := Prune(dir, 1, RegularFiles, func(string) error {
		calls++
		return errBoom
	})

	assert.Equal(t, 2, calls)
	assert.Empty(t, removed)
	assert.ErrorIs(t, err, errBoom)
}

func TestPrune_MissingDir(t *testing.T) {
	_, err := Prune(filepath.Join(t.TempDir(), "missing"), 1, nil, nil)
	assert.Error(t, err)
}
