// Package retention keeps a directory down to a fixed number of entries,
// evicting the oldest by modification time.
package retention

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Entry is a directory entry considered for retention.
type Entry struct {
	Name    string
	Path    string
	ModTime time.Time
	IsDir   bool
}

// Matcher selects which directory entries count toward retention.
type Matcher func(name string, isDir bool) bool

// RemoveFunc deletes a single entry.
type RemoveFunc func(path string) error

// RegularFiles matches every regular file.
func RegularFiles(_ string, isDir bool) bool {
	return !isDir
}

// Directories matches every directory.
func Directories(_ string, isDir bool) bool {
	return isDir
}

// FilesWithAffixes matches regular files named prefix*suffix.
func FilesWithAffixes(prefix, suffix string) Matcher {
	return func(name string, isDir bool) bool {
		return !isDir && strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix)
	}
}

// List returns the matching entries of dir ordered oldest first.
// Entries with equal modification times are ordered by name. Symlinks and
// other irregular files are skipped.
func List(dir string, match Matcher) ([]Entry, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}

	entries := make([]Entry, 0, len(dirEntries))
	for _, de := range dirEntries {
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		mode := info.Mode()
		if !mode.IsRegular() && !mode.IsDir() {
			continue
		}
		if match != nil && !match(de.Name(), mode.IsDir()) {
			continue
		}
		entries = append(entries, Entry{
			Name:    de.Name(),
			Path:    filepath.Join(dir, de.Name()),
			ModTime: info.ModTime(),
			IsDir:   mode.IsDir(),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].Name < entries[j].Name
		}
		return entries[i].ModTime.Before(entries[j].ModTime)
	})

	return entries, nil
}

// Prune deletes the oldest matching entries of dir until at most keep remain.
// It returns the paths that were removed. A failed removal does not stop the
// pass; all failures are joined into the returned error.
func Prune(dir string, keep int, match Matcher, remove RemoveFunc) ([]string, error) {
	if keep < 0 {
		keep = 0
	}
	if remove == nil {
		remove = os.Remove
	}

	entries, err := List(dir, match)
	if err != nil {
		return nil, err
	}

	excess := len(entries) - keep
	if excess <= 0 {
		return nil, nil
	}

	var (
		removed []string
		errs    []error
	)
	for _, e := range entries[:excess] {
		if err := remove(e.Path); err != nil {
			errs = append(errs, fmt.Errorf("removing %s: %w", e.Path, err))
			continue
		}
		removed = append(removed, e.Path)
	}

	return removed, errors.Join(errs...)
}
