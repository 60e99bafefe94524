// Package audit writes the human-readable activity trail: one line per
// accepted event and one per backup created.
package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/adrg/xdg"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/jamesainslie/keepsake/pkg/keepsake/output"
)

// Sink receives finished audit lines without a trailing newline.
type Sink interface {
	Record(line string)
}

// Discard drops every line.
var Discard Sink = discard{}

type discard struct{}

func (discard) Record(string) {}

// FileConfig configures the rotating audit file.
type FileConfig struct {
	// Path is the audit file. Empty uses DefaultPath().
	Path string

	// MaxSize is the size in bytes at which the file rotates.
	// Values below one megabyte round up to one megabyte.
	MaxSize uint64

	// MaxBackups is the number of rotated files kept. Zero keeps all.
	MaxBackups int

	// Compress gzips rotated files.
	Compress bool
}

// DefaultPath returns $XDG_STATE_HOME/keepsake/audit.log.
func DefaultPath() string {
	return filepath.Join(xdg.StateHome, "keepsake", "audit.log")
}

// FileSink appends audit lines to a size-rotated file.
type FileSink struct {
	mu  sync.Mutex
	out *lumberjack.Logger
}

// NewFileSink creates the parent directory and returns a sink writing to it.
// The file itself is opened on the first write.
func NewFileSink(cfg FileConfig) (*FileSink, error) {
	path := cfg.Path
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	const megabyte = 1024 * 1024
	maxMB := int((cfg.MaxSize + megabyte - 1) / megabyte)
	if maxMB < 1 {
		maxMB = 1
	}

	return &FileSink{
		out: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    maxMB,
			MaxBackups: cfg.MaxBackups,
			LocalTime:  true,
			Compress:   cfg.Compress,
		},
	}, nil
}

// Record appends the line. Write failures are reported on stderr only; the
// audit trail never blocks event processing.
func (s *FileSink) Record(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := io.WriteString(s.out, line+"\n"); err != nil {
		fmt.Fprintf(os.Stderr, "audit: %v\n", err)
	}
}

// Path returns the file the sink writes to.
func (s *FileSink) Path() string {
	return s.out.Filename
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out.Close()
}

// ConsoleSink mirrors audit lines to a terminal, colored by event label.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink returns a sink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

// Record writes the styled line.
func (s *ConsoleSink) Record(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.w, styleFor(line).Render(line))
}

func styleFor(line string) lipgloss.Style {
	switch {
	case strings.Contains(line, " - DELETADO: "):
		return output.WarningStyle
	case strings.Contains(line, " - CRIADO: "):
		return output.SuccessStyle
	case strings.Contains(line, " - Backup criado: "):
		return output.MutedStyle
	default:
		return output.ValueStyle
	}
}

// Multi fans a line out to several sinks in order.
type Multi []Sink

// Record forwards the line to every non-nil sink.
func (m Multi) Record(line string) {
	for _, s := range m {
		if s != nil {
			s.Record(line)
		}
	}
}

// Memory keeps lines in memory. Useful in tests and for status snapshots.
type Memory struct {
	mu    sync.Mutex
	lines []string
}

// Record appends the line.
func (m *Memory) Record(line string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, line)
}

// Lines returns a copy of the recorded lines.
func (m *Memory) Lines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.lines...)
}
