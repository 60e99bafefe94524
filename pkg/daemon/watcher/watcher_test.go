package watcher

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jamesainslie/keepsake/pkg/daemon/backup"
	"github.com/jamesainslie/keepsake/pkg/daemon/coordinator"
	"github.com/jamesainslie/keepsake/pkg/daemon/ledger"
	"github.com/jamesainslie/keepsake/pkg/keepsake/audit"
	"github.com/jamesainslie/keepsake/pkg/keepsake/filter"
)

type call struct {
	kind  string
	path  string
	isDir bool
}

// recordingSink collects delivered events.
type recordingSink struct {
	mu    sync.Mutex
	calls []call
}

func (s *recordingSink) add(kind, path string, isDir bool) {
	s.mu.Lock()
	s.calls = append(s.calls, call{kind, path, isDir})
	s.mu.Unlock()
}

func (s *recordingSink) Created(path string, isDir bool)  { s.add("created", path, isDir) }
func (s *recordingSink) Modified(path string, isDir bool) { s.add("modified", path, isDir) }
func (s *recordingSink) Deleted(path string, isDir bool)  { s.add("deleted", path, isDir) }

// waitFor polls until a matching call arrives.
func (s *recordingSink) waitFor(t *testing.T, kind, path string) call {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		for _, c := range s.calls {
			if c.kind == kind && c.path == path {
				s.mu.Unlock()
				return c
			}
		}
		s.mu.Unlock()
		time.Sleep(20 * time.Millisecond)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t.Fatalf("no %s event for %s, got %v", kind, path, s.calls)
	return call{}
}

func (s *recordingSink) seen(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.calls {
		if c.path == path {
			return true
		}
	}
	return false
}

// startWatcher watches dir and runs the loop until the test ends.
func startWatcher(t *testing.T, dir string, opts ...Option) (*Watcher, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	w, err := New(sink, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Watch(dir); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		_ = w.Close()
	})
	return w, sink
}

func TestWatch(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "subdir")
	if err := os.MkdirAll(filepath.Join(subDir, "deeper"), 0o755); err != nil {
		t.Fatalf("failed to create subdir: %v", err)
	}

	w, err := New(&recordingSink{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	if err := w.Watch(tmpDir); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	w.mu.RLock()
	rootTracked := w.paths[tmpDir]
	subDirTracked := w.paths[subDir]
	w.mu.RUnlock()

	if !rootTracked {
		t.Error("Watch() did not track root directory")
	}
	if !subDirTracked {
		t.Error("Watch() did not track subdirectory")
	}
	if got := w.Watched(); got != 3 {
		t.Errorf("Watched() = %d, want 3", got)
	}
}

func TestWatchErrors(t *testing.T) {
	w, err := New(&recordingSink{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	if err := w.Watch("/nonexistent/path/that/does/not/exist"); err == nil {
		t.Error("Watch() should return error for non-existent path")
	}

	file := filepath.Join(t.TempDir(), "f.txt")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := w.Watch(file); err == nil {
		t.Error("Watch() should return error for a regular file")
	}
}

func TestWatchSkipsIgnoredRoots(t *testing.T) {
	tmpDir := t.TempDir()
	ignored := filepath.Join(tmpDir, "backups")
	if err := os.MkdirAll(filepath.Join(ignored, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	w, sink := startWatcher(t, tmpDir, WithIgnoredRoots(ignored))

	w.mu.RLock()
	tracked := w.paths[ignored]
	w.mu.RUnlock()
	if tracked {
		t.Error("ignored root should not be watched")
	}

	// Creating the marker file in the root proves events flow at all.
	inIgnored := filepath.Join(ignored, "copy.txt")
	marker := filepath.Join(tmpDir, "marker.txt")
	if err := os.WriteFile(inIgnored, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(marker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	sink.waitFor(t, "created", marker)

	if sink.seen(inIgnored) {
		t.Error("event under ignored root was delivered")
	}
}

func TestRunDetectsFileCreate(t *testing.T) {
	tmpDir := t.TempDir()
	_, sink := startWatcher(t, tmpDir)

	testFile := filepath.Join(tmpDir, "testfile.txt")
	if err := os.WriteFile(testFile, []byte("hello"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	c := sink.waitFor(t, "created", testFile)
	if c.isDir {
		t.Error("file reported as directory")
	}
}

func TestRunDetectsFileModify(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "testfile.txt")
	if err := os.WriteFile(testFile, []byte("hello"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	_, sink := startWatcher(t, tmpDir)

	if err := os.WriteFile(testFile, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("failed to modify test file: %v", err)
	}
	sink.waitFor(t, "modified", testFile)
}

func TestRunDetectsFileDelete(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "testfile.txt")
	if err := os.WriteFile(testFile, []byte("hello"), 0o644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	_, sink := startWatcher(t, tmpDir)

	if err := os.Remove(testFile); err != nil {
		t.Fatalf("failed to delete test file: %v", err)
	}
	c := sink.waitFor(t, "deleted", testFile)
	if c.isDir {
		t.Error("deleted file reported as directory")
	}
}

func TestRunIgnoresRenamedAwayName(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "testfile.txt")
	if err := os.WriteFile(testFile, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, sink := startWatcher(t, tmpDir)

	moved := testFile + "~"
	if err := os.Rename(testFile, moved); err != nil {
		t.Fatal(err)
	}
	sink.waitFor(t, "created", moved)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	for _, c := range sink.calls {
		if c.kind == "deleted" {
			t.Errorf("rename reported as delete: %v", c)
		}
	}
}

// An editor save that renames the old file away and writes a new one is
// backed up and counted once.
func TestRenameThenCreateIsBackedUp(t *testing.T) {
	root := t.TempDir()
	watch := filepath.Join(root, "watch")
	backups := filepath.Join(root, "backups")
	if err := os.MkdirAll(watch, 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(watch, "a.txt")
	if err := os.WriteFile(file, []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}

	store, err := backup.New(backups, backup.WithMaxBackups(5))
	if err != nil {
		t.Fatalf("backup.New() error = %v", err)
	}
	led, err := ledger.New(filepath.Join(root, "summaries"), filepath.Join(root, "logs"))
	if err != nil {
		t.Fatalf("ledger.New() error = %v", err)
	}
	f, err := filter.New(filter.WithExtensions(".txt"), filter.WithIgnoredRoots(backups))
	if err != nil {
		t.Fatalf("filter.New() error = %v", err)
	}
	trail := &audit.Memory{}
	coord := coordinator.New(f, store, led, coordinator.WithAudit(trail))
	defer coord.Close()

	w, err := New(coord, WithIgnoredRoots(backups))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Watch(watch); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
		_ = w.Close()
	}()

	if err := os.Rename(file, file+"~"); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(file, []byte("v2"), 0o644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	snap := led.Snapshot()
	for snap.Total == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
		snap = led.Snapshot()
	}
	if snap.Total != 1 || snap.PerFile["a"] != 1 {
		t.Fatalf("ledger total=%d perfile=%v, want 1 for a (audit %v)", snap.Total, snap.PerFile, trail.Lines())
	}

	entries, err := store.List("a")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("backups = %d, want 1", len(entries))
	}
	for _, line := range trail.Lines() {
		if strings.Contains(line, "DELETADO") {
			t.Errorf("unexpected delete line: %s", line)
		}
	}
}

func TestRunFollowsNewDirectories(t *testing.T) {
	tmpDir := t.TempDir()
	w, sink := startWatcher(t, tmpDir)

	newDir := filepath.Join(tmpDir, "newdir")
	if err := os.Mkdir(newDir, 0o755); err != nil {
		t.Fatal(err)
	}
	c := sink.waitFor(t, "created", newDir)
	if !c.isDir {
		t.Error("directory create not flagged as directory")
	}

	nested := filepath.Join(newDir, "inner.txt")
	if err := os.WriteFile(nested, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	sink.waitFor(t, "created", nested)

	if err := os.RemoveAll(newDir); err != nil {
		t.Fatal(err)
	}
	c = sink.waitFor(t, "deleted", newDir)
	if !c.isDir {
		t.Error("directory delete not flagged as directory")
	}

	w.mu.RLock()
	tracked := w.paths[newDir]
	w.mu.RUnlock()
	if tracked {
		t.Error("removed directory still tracked")
	}
}

func TestRunContextCancellation(t *testing.T) {
	w, err := New(&recordingSink{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer w.Close()

	if err := w.Watch(t.TempDir()); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Error("Run() did not return after context cancellation")
	}
}

func TestCloseIdempotent(t *testing.T) {
	w, err := New(&recordingSink{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}

func TestIsSubPath(t *testing.T) {
	tests := []struct {
		path, parent string
		want         bool
	}{
		{"/a/b", "/a", true},
		{"/a", "/a", false},
		{"/ab", "/a", false},
	}
	for _, tt := range tests {
		if got := isSubPath(tt.path, tt.parent); got != tt.want {
			t.Errorf("isSubPath(%q, %q) = %v, want %v", tt.path, tt.parent, got, tt.want)
		}
	}
}
