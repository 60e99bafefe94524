// Package watcher turns fsnotify notifications for a directory tree into
// created, modified and deleted callbacks.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/jamesainslie/keepsake/pkg/keepsake/filter"
	"github.com/jamesainslie/keepsake/pkg/keepsake/logging"
)

// Sink receives watched events. Implementations must be safe for use from
// the watcher goroutine.
type Sink interface {
	Created(path string, isDir bool)
	Modified(path string, isDir bool)
	Deleted(path string, isDir bool)
}

// Watcher watches a directory tree recursively.
type Watcher struct {
	watcher *fsnotify.Watcher
	sink    Sink
	ignore  []string
	logger  *logging.Logger

	mu     sync.RWMutex
	paths  map[string]bool
	closed bool
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithIgnoredRoots keeps the watcher out of these directories.
func WithIgnoredRoots(roots ...string) Option {
	return func(w *Watcher) {
		for _, r := range roots {
			if r != "" {
				w.ignore = append(w.ignore, filepath.Clean(r))
			}
		}
	}
}

// New creates a Watcher delivering to sink.
func New(sink Sink, opts ...Option) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher: fsw,
		sink:    sink,
		paths:   make(map[string]bool),
		logger:  logging.Get("watcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch starts watching root and every directory below it.
// Symlinks are not followed to avoid loops.
func (w *Watcher) Watch(root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return err
	}

	info, err := os.Lstat(absRoot)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return &fs.PathError{Op: "watch", Path: absRoot, Err: fs.ErrInvalid}
	}

	if err := w.addWatch(absRoot); err != nil {
		return err
	}
	w.addTree(absRoot)
	return nil
}

// addTree adds watches for every directory below root, best effort.
func (w *Watcher) addTree(root string) {
	_ = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil //nolint:nilerr // Skip entries with errors
		}
		if d.Type()&fs.ModeSymlink != 0 || !d.IsDir() || path == root {
			return nil
		}
		if w.ignored(path) {
			return filepath.SkipDir
		}
		_ = w.addWatch(path)
		return nil
	})
}

func (w *Watcher) ignored(path string) bool {
	for _, root := range w.ignore {
		if filter.IsUnder(path, root) {
			return true
		}
	}
	return false
}

// addWatch adds a single directory to the watch list.
func (w *Watcher) addWatch(path string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed || w.paths[path] {
		return nil
	}

	if err := w.watcher.Add(path); err != nil {
		w.logger.Warn("failed to add watch", "path", path, "error", err)
		return err
	}

	w.paths[path] = true
	return nil
}

// Watched returns the number of watched directories.
func (w *Watcher) Watched() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.paths)
}

// Run starts the event loop. It blocks until the context is cancelled or
// the watcher is closed.
func (w *Watcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// handleEvent processes a single filesystem event.
func (w *Watcher) handleEvent(event fsnotify.Event) {
	if w.ignored(event.Name) {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		w.handleCreate(event.Name)
	case event.Op&fsnotify.Write != 0:
		w.handleWrite(event.Name)
	case event.Op&fsnotify.Remove != 0:
		w.handleRemove(event.Name)
	case event.Op&fsnotify.Rename != 0:
		// Editors save by renaming the old file away and writing a new one,
		// so the old name is not reported. The new name arrives as a create.
		w.untrack(event.Name)
	}
}

func (w *Watcher) handleCreate(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		return // already gone
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return
	}

	if info.IsDir() {
		_ = w.addWatch(path)
		w.addTree(path)
	}
	w.sink.Created(path, info.IsDir())
}

func (w *Watcher) handleWrite(path string) {
	info, err := os.Lstat(path)
	if err != nil {
		return
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return
	}
	w.sink.Modified(path, info.IsDir())
}

func (w *Watcher) handleRemove(path string) {
	isDir := w.untrack(path)
	w.sink.Deleted(path, isDir)
}

// untrack drops the watches for path and everything below it and reports
// whether path was a watched directory.
func (w *Watcher) untrack(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	isDir := w.paths[path]
	if isDir {
		_ = w.watcher.Remove(path)
		delete(w.paths, path)
	}
	for childPath := range w.paths {
		if isSubPath(childPath, path) {
			_ = w.watcher.Remove(childPath)
			delete(w.paths, childPath)
		}
	}
	return isDir
}

// Close closes the watcher and releases resources.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true
	w.paths = make(map[string]bool)
	return w.watcher.Close()
}

// isSubPath checks if path is under parent directory.
func isSubPath(path, parent string) bool {
	return len(path) > len(parent) && path[:len(parent)+1] == parent+string(filepath.Separator)
}
