package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
}

func TestTake_CopiesTree(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "docs")
	writeTree(t, src, map[string]string{
		"a.txt":         "alpha",
		"sub/b.txt":     "bravo",
		"sub/deep/c.md": "charlie",
		"empty/.keep":   "",
	})
	require.NoError(t, os.Symlink("a.txt", filepath.Join(src, "link.txt")))

	at := time.Date(2025, 3, 1, 14, 5, 9, 0, time.Local)
	s := New(filepath.Join(base, "snaps"), WithClock(func() time.Time { return at }))

	res, err := s.Take(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(base, "snaps", "docs_01-03-2025_14-05-09"), res.Path)
	assert.Equal(t, int64(4), res.Files)
	assert.Equal(t, int64(3), res.Dirs)
	assert.Equal(t, int64(len("alpha")+len("bravo")+len("charlie")), res.Bytes)
	assert.Empty(t, res.Errors)

	got, err := os.ReadFile(filepath.Join(res.Path, "sub", "deep", "c.md"))
	require.NoError(t, err)
	assert.Equal(t, "charlie", string(got))

	link, err := os.Readlink(filepath.Join(res.Path, "link.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a.txt", link)
}

func TestTake_SkipsIgnoredRoots(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"keep.txt":            "x",
		"backups/old.txt":     "y",
		"backups/n/older.txt": "z",
	})

	// The snapshot root lives inside the source as well.
	s := New(filepath.Join(src, "snapshots"), WithIgnoredRoots(filepath.Join(src, "backups")))

	res, err := s.Take(context.Background(), src)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(res.Path, "keep.txt"))
	assert.NoDirExists(t, filepath.Join(res.Path, "backups"))
	assert.NoDirExists(t, filepath.Join(res.Path, "snapshots"))
	assert.Equal(t, int64(1), res.Files)
}

func TestTake_PrunesOldest(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "docs")
	writeTree(t, src, map[string]string{"a.txt": "a"})
	root := filepath.Join(base, "snaps")

	// An unrelated directory is never counted or removed.
	require.NoError(t, os.MkdirAll(filepath.Join(root, "other"), 0o755))

	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local)
	s := New(root, WithMaxSnapshots(2), WithClock(func() time.Time { return at }))

	var paths []string
	for i := 0; i < 3; i++ {
		res, err := s.Take(context.Background(), src)
		require.NoError(t, err)
		paths = append(paths, res.Path)
		// Directory mtimes order the retention pass.
		old := time.Now().Add(time.Duration(i-10) * time.Minute)
		require.NoError(t, os.Chtimes(res.Path, old, old))
		at = at.Add(time.Second)
	}

	assert.NoDirExists(t, paths[0])
	assert.DirExists(t, paths[1])
	assert.DirExists(t, paths[2])
	assert.DirExists(t, filepath.Join(root, "other"))
}

func TestTake_PruneIgnoresTreesWithSharedPrefix(t *testing.T) {
	base := t.TempDir()
	docs := filepath.Join(base, "docs")
	docsOld := filepath.Join(base, "docs_old")
	writeTree(t, docs, map[string]string{"a.txt": "a"})
	writeTree(t, docsOld, map[string]string{"b.txt": "b"})
	root := filepath.Join(base, "snaps")

	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local)
	s := New(root, WithMaxSnapshots(1), WithClock(func() time.Time { return at }))

	old, err := s.Take(context.Background(), docsOld)
	require.NoError(t, err)
	stamp := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(old.Path, stamp, stamp))

	at = at.Add(time.Second)
	first, err := s.Take(context.Background(), docs)
	require.NoError(t, err)
	stamp = time.Now().Add(-30 * time.Minute)
	require.NoError(t, os.Chtimes(first.Path, stamp, stamp))

	at = at.Add(time.Second)
	second, err := s.Take(context.Background(), docs)
	require.NoError(t, err)

	assert.DirExists(t, old.Path, "docs_old snapshot counted against docs")
	assert.NoDirExists(t, first.Path)
	assert.DirExists(t, second.Path)

	assert.True(t, snapshotsOf("docs")("docs_01-03-2025_00-00-01", true))
	assert.False(t, snapshotsOf("docs")("docs_old_01-03-2025_00-00-00", true))
	assert.False(t, snapshotsOf("docs")("docs_01-03-2025_00-00-01", false))
}

func TestTake_Disabled(t *testing.T) {
	s := New("")
	assert.False(t, s.Enabled())
	_, err := s.Take(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestTake_SourceMustBeDirectory(t *testing.T) {
	base := t.TempDir()
	file := filepath.Join(base, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	s := New(filepath.Join(base, "snaps"))
	_, err := s.Take(context.Background(), file)
	assert.Error(t, err)
}

func TestTake_Cancelled(t *testing.T) {
	base := t.TempDir()
	src := filepath.Join(base, "docs")
	writeTree(t, src, map[string]string{"a.txt": "a", "b/c.txt": "c"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := New(filepath.Join(base, "snaps"))
	_, err := s.Take(ctx, src)
	require.ErrorIs(t, err, context.Canceled)

	entries, err := os.ReadDir(filepath.Join(base, "snaps"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}
