// Package snapshot copies the whole watched tree into a dated directory.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charlievieth/fastwalk"

	"github.com/jamesainslie/keepsake/pkg/daemon/backup"
	"github.com/jamesainslie/keepsake/pkg/daemon/metrics"
	"github.com/jamesainslie/keepsake/pkg/keepsake/filter"
	"github.com/jamesainslie/keepsake/pkg/keepsake/logging"
	"github.com/jamesainslie/keepsake/pkg/keepsake/retention"
)

// DefaultMaxSnapshots is the number of snapshot directories kept.
const DefaultMaxSnapshots = 5

// NameLayout is the timestamp layout in snapshot directory names.
const NameLayout = "02-01-2006_15-04-05"

// ErrDisabled is returned by Take when no snapshot root is configured.
var ErrDisabled = errors.New("snapshots are disabled")

// Result describes a finished snapshot.
type Result struct {
	Path     string
	Files    int64
	Dirs     int64
	Bytes    int64
	Errors   []string
	Duration time.Duration
}

// Snapshotter writes snapshots under a root directory.
type Snapshotter struct {
	root    string
	max     int
	ignore  []string
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *logging.Logger

	mu sync.Mutex // one snapshot at a time
}

// Option configures a Snapshotter.
type Option func(*Snapshotter)

// WithMaxSnapshots sets how many snapshot directories are kept.
func WithMaxSnapshots(n int) Option {
	return func(s *Snapshotter) {
		if n > 0 {
			s.max = n
		}
	}
}

// WithIgnoredRoots skips these directories when they lie inside the source.
func WithIgnoredRoots(roots ...string) Option {
	return func(s *Snapshotter) {
		for _, r := range roots {
			if r != "" {
				s.ignore = append(s.ignore, filepath.Clean(r))
			}
		}
	}
}

// WithClock overrides the time source for directory names.
func WithClock(now func() time.Time) Option {
	return func(s *Snapshotter) {
		s.now = now
	}
}

// WithMetrics records pruned snapshots.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Snapshotter) {
		s.metrics = m
	}
}

// New returns a Snapshotter writing to root. An empty root yields a
// Snapshotter whose Take always returns ErrDisabled.
func New(root string, opts ...Option) *Snapshotter {
	s := &Snapshotter{
		root:   root,
		max:    DefaultMaxSnapshots,
		now:    time.Now,
		logger: logging.Get("snapshot"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether a snapshot root is configured.
func (s *Snapshotter) Enabled() bool {
	return s.root != ""
}

// Take copies source to {root}/{dirname}_{DD-MM-YYYY_HH-MM-SS} and prunes
// old snapshots. Unreadable entries are recorded in Result.Errors and
// skipped; the snapshot is still kept.
func (s *Snapshotter) Take(ctx context.Context, source string) (*Result, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	src, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("resolving source: %w", err)
	}
	info, err := os.Stat(src)
	if err != nil {
		return nil, fmt.Errorf("stat source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", src)
	}
	if filter.IsUnder(s.root, src) {
		s.ignore = appendUnique(s.ignore, filepath.Clean(s.root))
	}

	start := time.Now()
	name := filepath.Base(src) + "_" + s.now().Format(NameLayout)
	dest := filepath.Join(s.root, name)

	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot root: %w", err)
	}
	if err := os.Mkdir(dest, info.Mode().Perm()|0o700); err != nil {
		return nil, fmt.Errorf("creating snapshot: %w", err)
	}

	res := &Result{Path: dest}
	if err := s.copyTree(ctx, src, dest, res); err != nil {
		_ = os.RemoveAll(dest)
		return nil, err
	}
	res.Duration = time.Since(start)

	s.logger.Info("snapshot written", "path", dest, "files", res.Files, "dirs", res.Dirs,
		"bytes", res.Bytes, "errors", len(res.Errors), "took", res.Duration)

	s.prune(filepath.Base(src))
	return res, nil
}

func (s *Snapshotter) copyTree(ctx context.Context, src, dest string, res *Result) error {
	var (
		files, dirs, size atomic.Int64
		errMu             sync.Mutex
	)
	record := func(path string, err error) {
		errMu.Lock()
		res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", path, err))
		errMu.Unlock()
	}

	conf := fastwalk.Config{Follow: false}
	walkErr := fastwalk.Walk(&conf, src, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			record(path, err)
			return nil
		}
		if path == src {
			return nil
		}
		for _, root := range s.ignore {
			if filter.IsUnder(path, root) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			record(path, err)
			return nil
		}
		target := filepath.Join(dest, rel)

		// Callbacks run concurrently, so a file can be seen before its
		// parent directory has been created.
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			record(path, err)
			return nil
		}

		switch {
		case d.IsDir():
			if err := os.MkdirAll(target, 0o755); err != nil {
				record(path, err)
				return nil
			}
			dirs.Add(1)
		case d.Type()&fs.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err == nil {
				err = os.Symlink(link, target)
			}
			if err != nil {
				record(path, err)
			}
		case d.Type().IsRegular():
			if err := backup.CopyFile(path, target); err != nil {
				record(path, err)
				return nil
			}
			if info, err := d.Info(); err == nil {
				size.Add(info.Size())
			}
			files.Add(1)
		}
		return nil
	})

	res.Files, res.Dirs, res.Bytes = files.Load(), dirs.Load(), size.Load()
	if walkErr != nil {
		return fmt.Errorf("walking %s: %w", src, walkErr)
	}
	return nil
}

// snapshotsOf matches the snapshot directories of a tree named dirname:
// "{dirname}_" followed by a NameLayout timestamp.
func snapshotsOf(dirname string) retention.Matcher {
	prefix := dirname + "_"
	return func(name string, isDir bool) bool {
		if !isDir || !strings.HasPrefix(name, prefix) {
			return false
		}
		_, err := time.Parse(NameLayout, strings.TrimPrefix(name, prefix))
		return err == nil
	}
}

func (s *Snapshotter) prune(dirname string) {
	removed, err := retention.Prune(s.root, s.max, snapshotsOf(dirname), os.RemoveAll)
	for _, p := range removed {
		s.logger.Info("old snapshot removed", "path", p)
	}
	s.metrics.Prune("snapshots", len(removed))
	if err != nil {
		s.logger.Warn("pruning snapshots", "error", err)
	}
}

// List returns the snapshot directories under root, oldest first.
func (s *Snapshotter) List() ([]retention.Entry, error) {
	if !s.Enabled() {
		return nil, ErrDisabled
	}
	return retention.List(s.root, retention.Directories)
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}
