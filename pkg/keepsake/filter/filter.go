// Package filter decides which filesystem events keepsake cares about.
// A Filter combines the monitored extension set, glob exclusions for editor
// scratch files and the directories keepsake writes its own artifacts to.
package filter

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// Verdict is the result of matching a path against a Filter.
type Verdict int

const (
	// Accept means the path is monitored.
	Accept Verdict = iota
	// RejectDirectory means the event is for a directory.
	RejectDirectory
	// RejectExtension means the extension is not in the monitored set.
	RejectExtension
	// RejectExcluded means the path matched an exclude pattern.
	RejectExcluded
	// RejectIgnoredRoot means the path lives under one of keepsake's own roots.
	RejectIgnoredRoot
)

// String returns a short name for the verdict, used in logs and metrics labels.
func (v Verdict) String() string {
	switch v {
	case Accept:
		return "accepted"
	case RejectDirectory:
		return "directory"
	case RejectExtension:
		return "extension"
	case RejectExcluded:
		return "excluded"
	case RejectIgnoredRoot:
		return "ignored_root"
	default:
		return "unknown"
	}
}

// ErrInvalidPattern is returned when an exclude pattern does not compile.
var ErrInvalidPattern = errors.New("invalid exclude pattern")

// Filter matches paths against the monitored extension set.
type Filter struct {
	// Extensions are the monitored extensions, lowercase with a leading dot.
	// An empty set matches nothing.
	Extensions []string

	// Exclude contains glob patterns matched against the base name and the
	// slash-separated full path.
	Exclude []string

	// IgnoredRoots are directories whose contents are never monitored.
	IgnoredRoots []string

	excludes []glob.Glob
}

// Option is a functional option for configuring a Filter.
type Option func(*Filter)

// WithExtensions sets the monitored extensions.
// Extensions are normalized: lowercase and prefixed with "." if missing.
func WithExtensions(extensions ...string) Option {
	return func(f *Filter) {
		f.Extensions = NormalizeExtensions(extensions)
	}
}

// WithExclude sets the exclude glob patterns.
func WithExclude(patterns ...string) Option {
	return func(f *Filter) {
		f.Exclude = patterns
	}
}

// WithIgnoredRoots sets directories whose contents are never monitored.
// Empty entries are dropped.
func WithIgnoredRoots(roots ...string) Option {
	return func(f *Filter) {
		for _, r := range roots {
			if r == "" {
				continue
			}
			f.IgnoredRoots = append(f.IgnoredRoots, filepath.Clean(r))
		}
	}
}

// New creates a Filter and compiles its exclude patterns.
func New(opts ...Option) (*Filter, error) {
	f := &Filter{}
	for _, opt := range opts {
		opt(f)
	}

	for _, pattern := range f.Exclude {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, pattern, err)
		}
		f.excludes = append(f.excludes, g)
	}

	return f, nil
}

// NormalizeExtensions lowercases extensions, adds the leading dot and drops
// empty and duplicate entries.
func NormalizeExtensions(extensions []string) []string {
	seen := make(map[string]bool, len(extensions))
	normalized := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" || ext == "." {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if seen[ext] {
			continue
		}
		seen[ext] = true
		normalized = append(normalized, ext)
	}
	return normalized
}

// Match classifies a path. Checks run in order: directory flag, ignored
// roots, extension, exclude patterns.
func (f *Filter) Match(path string, isDir bool) Verdict {
	if isDir {
		return RejectDirectory
	}
	if f.underIgnoredRoot(path) {
		return RejectIgnoredRoot
	}
	if !f.MatchExtension(path) {
		return RejectExtension
	}
	if f.excluded(path) {
		return RejectExcluded
	}
	return Accept
}

// MatchExtension reports whether the path ends with a monitored extension,
// ignoring case.
func (f *Filter) MatchExtension(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range f.Extensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func (f *Filter) excluded(path string) bool {
	base := filepath.Base(path)
	slashed := filepath.ToSlash(path)
	for _, g := range f.excludes {
		if g.Match(base) || g.Match(slashed) {
			return true
		}
	}
	return false
}

func (f *Filter) underIgnoredRoot(path string) bool {
	clean := filepath.Clean(path)
	for _, root := range f.IgnoredRoots {
		if IsUnder(clean, root) {
			return true
		}
	}
	return false
}

// IsUnder reports whether path equals root or lies inside it.
func IsUnder(path, root string) bool {
	path = filepath.Clean(path)
	root = filepath.Clean(root)
	if path == root {
		return true
	}
	return strings.HasPrefix(path, root+string(filepath.Separator))
}
