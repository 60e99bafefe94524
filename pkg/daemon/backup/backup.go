// Package backup keeps timestamped, user-attributed copies of monitored files.
//
// Each file stem gets its own directory under the store root:
//
//	{root}/{stem}/{stem}_{YYYYMMDD_HHMMSS}_{user}{ext}
//
// After every successful copy the stem directory is rotated down to the
// configured maximum, oldest first.
package backup

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jamesainslie/keepsake/pkg/daemon/metrics"
	"github.com/jamesainslie/keepsake/pkg/keepsake/identity"
	"github.com/jamesainslie/keepsake/pkg/keepsake/logging"
	"github.com/jamesainslie/keepsake/pkg/keepsake/retention"
)

// DefaultMaxBackups is the number of copies kept per stem.
const DefaultMaxBackups = 10

// TimestampLayout is embedded in backup file names.
const TimestampLayout = "20060102_150405"

// ErrInvalidStem is returned by List for a stem that cannot name a backup
// directory.
var ErrInvalidStem = errors.New("invalid stem")

// Result reports the outcome of CreateBackup.
type Result struct {
	Success    bool
	BackupPath string
}

// Entry is one retained backup.
type Entry = retention.Entry

// Store writes backups under a single root.
type Store struct {
	root    string
	max     int
	user    func() string
	now     func() time.Time
	metrics *metrics.Metrics
	logger  *logging.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxBackups sets the number of backups kept per stem.
func WithMaxBackups(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.max = n
		}
	}
}

// WithUser overrides how the acting user is resolved.
func WithUser(fn func() string) Option {
	return func(s *Store) {
		s.user = fn
	}
}

// WithClock overrides the time source used for backup names.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithMetrics records backup attempts and pruning.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// New creates the root directory and returns a Store writing to it.
func New(root string, opts ...Option) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("backup root is empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup root: %w", err)
	}

	s := &Store{
		root:   root,
		max:    DefaultMaxBackups,
		user:   identity.Current,
		now:    time.Now,
		logger: logging.Get("backup"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the store root.
func (s *Store) Root() string {
	return s.root
}

// MaxBackups returns the per-stem retention count.
func (s *Store) MaxBackups() int {
	return s.max
}

// SplitName returns the stem and extension of a path's base name.
// "report.final.txt" splits into "report.final" and ".txt".
func SplitName(path string) (stem, ext string) {
	base := filepath.Base(path)
	ext = filepath.Ext(base)
	stem = strings.TrimSuffix(base, ext)
	if stem == "" {
		// Dotfiles such as ".txt" have no stem of their own.
		stem, ext = base, ""
	}
	return stem, ext
}

// CreateBackup copies path into the store and rotates its stem directory.
// Failures are logged and reported through Result; they never panic.
func (s *Store) CreateBackup(path string) Result {
	start := time.Now()
	stem, ext := SplitName(path)
	dir := filepath.Join(s.root, stem)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		s.logger.Error("creating backup directory", "dir", dir, "error", err)
		s.metrics.Backup(false, 0)
		return Result{}
	}

	user := identity.Sanitize(s.user())
	name := fmt.Sprintf("%s_%s_%s%s", stem, s.now().Format(TimestampLayout), user, ext)
	dest := filepath.Join(dir, name)

	if err := CopyFile(path, dest); err != nil {
		s.logger.Warn("backup failed", "path", path, "error", err)
		s.metrics.Backup(false, 0)
		return Result{}
	}
	s.metrics.Backup(true, time.Since(start))
	s.logger.Debug("backup created", "path", path, "backup", dest)

	s.rotate(dir, name)

	return Result{Success: true, BackupPath: dest}
}

// rotate prunes dir so that at most max files remain, never removing the
// backup that was just written.
func (s *Store) rotate(dir, keepName string) {
	others := func(name string, isDir bool) bool {
		return !isDir && name != keepName
	}
	removed, err := retention.Prune(dir, s.max-1, others, os.Remove)
	for _, p := range removed {
		s.logger.Info("old backup removed", "path", p)
	}
	s.metrics.Prune("backups", len(removed))
	if err != nil {
		s.logger.Warn("rotating backups", "dir", dir, "error", err)
	}
}

// List returns the retained backups of a stem, newest first.
// A stem that has never been backed up yields an empty list.
func (s *Store) List(stem string) ([]Entry, error) {
	if stem == "" || stem != filepath.Base(stem) || stem == "." || stem == ".." {
		return nil, fmt.Errorf("%w %q", ErrInvalidStem, stem)
	}

	entries, err := retention.List(filepath.Join(s.root, stem), retention.RegularFiles)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Entry{}, nil
		}
		return nil, err
	}

	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return entries, nil
}

// Stems returns the stems that have a backup directory, sorted by name.
func (s *Store) Stems() ([]string, error) {
	entries, err := retention.List(s.root, retention.Directories)
	if err != nil {
		return nil, err
	}
	stems := make([]string, 0, len(entries))
	for _, e := range entries {
		stems = append(stems, e.Name)
	}
	sort.Strings(stems)
	return stems, nil
}

// CopyFile copies content, permission bits and modification time.
// A partial destination is removed on failure.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%s is not a regular file", src)
	}

	if err := writeCopy(in, dst, info.Mode().Perm()); err != nil {
		_ = os.Remove(dst)
		return err
	}
	if err := os.Chtimes(dst, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("setting times: %w", err)
	}
	return nil
}

func writeCopy(in io.Reader, dst string, perm fs.FileMode) error {
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("creating backup: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copying: %w", err)
	}
	// OpenFile applies the umask; set the source bits explicitly.
	if err := out.Chmod(perm); err != nil {
		_ = out.Close()
		return fmt.Errorf("setting mode: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing backup: %w", err)
	}
	return nil
}
