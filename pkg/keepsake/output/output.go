// Package output renders keepsake reports (daemon status, archived day
// history, retained backups and live events) in several formats.
//
// The package uses a registry so the CLI can pick a formatter by name:
//
//	formatter, err := output.Get("pretty")
//	if err != nil {
//	    return err
//	}
//	var buf bytes.Buffer
//	if err := formatter.Format(&buf, report); err != nil {
//	    return err
//	}
//	fmt.Print(buf.String())
package output

import (
	"bytes"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jamesainslie/keepsake/pkg/keepsake/types"
)

// Status describes a running monitor.
type Status struct {
	// Running is false when no daemon answered.
	Running bool `json:"running" yaml:"running"`

	PID     int    `json:"pid,omitempty" yaml:"pid,omitempty"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`

	// Uptime is the time since the daemon started.
	Uptime time.Duration `json:"uptime" yaml:"uptime"`

	// WatchRoot is the monitored directory.
	WatchRoot string `json:"watch_root,omitempty" yaml:"watch_root,omitempty"`

	// Today is the in-memory tally for the current day.
	Today Day `json:"today" yaml:"today"`

	// DebounceEntries is the number of paths currently held in the debounce table.
	DebounceEntries int `json:"debounce_entries" yaml:"debounce_entries"`

	// NextRollover is the next scheduled day-rollover check.
	NextRollover time.Time `json:"next_rollover,omitempty" yaml:"next_rollover,omitempty"`

	// Subscribers is the number of connected event streams.
	Subscribers int `json:"subscribers" yaml:"subscribers"`
}

// Day is the activity tally for one calendar day.
type Day struct {
	// Date is formatted as YYYY-MM-DD.
	Date string `json:"date" yaml:"date"`

	Total int            `json:"total" yaml:"total"`
	Files map[string]int `json:"files,omitempty" yaml:"files,omitempty"`

	// Events is the number of consolidated log lines.
	Events int `json:"events" yaml:"events"`

	FlushedAt time.Time `json:"flushed_at,omitempty" yaml:"flushed_at,omitempty"`
}

// Backup is one retained backup copy.
type Backup struct {
	Path      string    `json:"path" yaml:"path"`
	Name      string    `json:"name" yaml:"name"`
	Size      int64     `json:"size" yaml:"size"`
	SizeHuman string    `json:"size_human" yaml:"size_human"`
	ModTime   time.Time `json:"mod_time" yaml:"mod_time"`
}

// Report is the data handed to a formatter. Formatters render only the
// sections that are set.
type Report struct {
	Status   *Status            `json:"status,omitempty" yaml:"status,omitempty"`
	History  []Day              `json:"history,omitempty" yaml:"history,omitempty"`
	Stem     string             `json:"stem,omitempty" yaml:"stem,omitempty"`
	Backups  []Backup           `json:"backups,omitempty" yaml:"backups,omitempty"`
	Events   []types.AuditEvent `json:"events,omitempty" yaml:"events,omitempty"`
	Warnings []string           `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// TotalBackupSize returns the sum of all backup sizes in the report.
func (r *Report) TotalBackupSize() int64 {
	var total int64
	for _, b := range r.Backups {
		total += b.Size
	}
	return total
}

// Formatter is the interface that all output formatters must implement.
type Formatter interface {
	// Format writes the formatted output to the buffer.
	Format(w *bytes.Buffer, r *Report) error
}

// FormatterFactory is a function that creates a new Formatter instance.
type FormatterFactory func() Formatter

// Registry manages formatter registration and lookup.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]FormatterFactory
}

// NewRegistry creates a new formatter registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]FormatterFactory),
	}
}

// Register adds a formatter factory to the registry.
// It will replace any existing formatter with the same name.
func (r *Registry) Register(name string, factory FormatterFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Get returns a new formatter instance by name.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, ok := r.factories[name]
	if !ok {
		return nil, fmt.Errorf("unknown formatter: %s", name)
	}
	return factory(), nil
}

// Available returns a sorted list of all registered formatter names.
func (r *Registry) Available() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DefaultRegistry is the global formatter registry.
var DefaultRegistry = NewRegistry()

// Register adds a formatter factory to the default registry.
func Register(name string, factory FormatterFactory) {
	DefaultRegistry.Register(name, factory)
}

// Get returns a new formatter instance from the default registry.
func Get(name string) (Formatter, error) {
	return DefaultRegistry.Get(name)
}

// Available returns all formatter names from the default registry.
func Available() []string {
	return DefaultRegistry.Available()
}

// sortedFiles returns the file names of a tally in lexicographic order.
func sortedFiles(files map[string]int) []string {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
