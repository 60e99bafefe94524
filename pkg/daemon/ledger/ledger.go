// Package ledger keeps the daily activity tally and writes the daily summary
// and consolidated log reports.
//
// The tally always covers exactly one calendar day. The first modification
// seen on a new day, or an explicit Rollover call, flushes the previous day's
// reports and starts a fresh tally.
package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jamesainslie/keepsake/pkg/daemon/backup"
	"github.com/jamesainslie/keepsake/pkg/daemon/metrics"
	"github.com/jamesainslie/keepsake/pkg/keepsake/logging"
	"github.com/jamesainslie/keepsake/pkg/keepsake/retention"
)

// Default retention counts.
const (
	DefaultMaxSummaries = 30
	DefaultMaxLogs      = 30
)

// Tally is the activity of one calendar day.
type Tally struct {
	// Day is local midnight of the tallied day.
	Day time.Time

	// Total counts every registered modification.
	Total int

	// PerFile counts modifications per file stem.
	PerFile map[string]int

	// Events holds the consolidated log lines in arrival order.
	Events []string
}

func (t Tally) clone() Tally {
	c := Tally{Day: t.Day, Total: t.Total, PerFile: make(map[string]int, len(t.PerFile))}
	for k, v := range t.PerFile {
		c.PerFile[k] = v
	}
	c.Events = append([]string(nil), t.Events...)
	return c
}

// FlushHook receives a copy of the tally after each successful summary flush.
type FlushHook func(Tally)

// Ledger accumulates the tally. It is safe for concurrent use.
type Ledger struct {
	mu sync.Mutex

	summaryDir   string
	logDir       string
	maxSummaries int
	maxLogs      int
	consolidated bool

	now     func() time.Time
	hook    FlushHook
	metrics *metrics.Metrics
	logger  *logging.Logger

	tally Tally
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source used for day boundaries and report timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithMaxSummaries sets how many summary files are kept.
func WithMaxSummaries(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxSummaries = n
		}
	}
}

// WithMaxLogs sets how many consolidated log files are kept.
func WithMaxLogs(n int) Option {
	return func(l *Ledger) {
		if n > 0 {
			l.maxLogs = n
		}
	}
}

// WithConsolidated enables or disables the consolidated log.
func WithConsolidated(enabled bool) Option {
	return func(l *Ledger) {
		l.consolidated = enabled
	}
}

// WithFlushHook registers a hook called after each successful summary flush.
func WithFlushHook(hook FlushHook) Option {
	return func(l *Ledger) {
		l.hook = hook
	}
}

// WithMetrics records flushes and pruning.
func WithMetrics(m *metrics.Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// New creates the report directories, starts a tally for today and writes
// the day-0 summary. A failed day-0 summary is logged, not returned.
func New(summaryDir, logDir string, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		summaryDir:   summaryDir,
		logDir:       logDir,
		maxSummaries: DefaultMaxSummaries,
		maxLogs:      DefaultMaxLogs,
		consolidated: true,
		now:          time.Now,
		logger:       logging.Get("ledger"),
	}
	for _, opt := range opts {
		opt(l)
	}

	if err := os.MkdirAll(summaryDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating summary directory: %w", err)
	}
	if l.consolidated {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
	}

	l.tally = Tally{Day: dayOf(l.now()), PerFile: make(map[string]int)}
	l.logger.Info("ledger started", "day", l.tally.Day.Format("2006-01-02"), "summaries", summaryDir)

	if err := l.FlushSummary(); err != nil {
		l.logger.Error("writing initial summary", "error", err)
	}

	return l, nil
}

// RegisterModification counts one modification of path, rolling the tally
// over first when the calendar day has changed.
func (l *Ledger) RegisterModification(path string) {
	stem, _ := backup.SplitName(path)

	l.mu.Lock()
	flushed, rolled := l.rolloverLocked()
	l.tally.Total++
	l.tally.PerFile[stem]++
	l.mu.Unlock()

	if rolled {
		l.runHook(flushed)
	}
}

// AppendLogEntry adds a line to the consolidated log buffer.
// It does nothing when the consolidated log is disabled.
func (l *Ledger) AppendLogEntry(line string) {
	if !l.consolidated {
		return
	}
	l.mu.Lock()
	l.tally.Events = append(l.tally.Events, line)
	l.mu.Unlock()
}

// Rollover flushes and resets the tally if the calendar day has changed.
// It reports whether a rollover happened.
func (l *Ledger) Rollover() bool {
	l.mu.Lock()
	flushed, rolled := l.rolloverLocked()
	l.mu.Unlock()

	if rolled {
		l.runHook(flushed)
	}
	return rolled
}

// rolloverLocked returns the flushed tally when a successful summary flush
// should be handed to the hook.
func (l *Ledger) rolloverLocked() (*Tally, bool) {
	today := dayOf(l.now())
	if today.Equal(l.tally.Day) {
		return nil, false
	}

	l.logger.Info("day rollover", "from", l.tally.Day.Format("2006-01-02"), "to", today.Format("2006-01-02"))

	var flushed *Tally
	if err := l.flushSummaryLocked(); err != nil {
		// The tally is reset regardless; the summary for that day is lost.
		l.logger.Error("flushing summary at rollover", "day", l.tally.Day.Format("2006-01-02"), "error", err)
	} else {
		c := l.tally.clone()
		flushed = &c
	}
	if err := l.flushLogLocked(); err != nil {
		l.logger.Error("flushing consolidated log at rollover", "day", l.tally.Day.Format("2006-01-02"), "error", err)
	}

	l.tally = Tally{Day: today, PerFile: make(map[string]int)}
	return flushed, true
}

// FlushSummary writes summary_{YYYYMMDD}.txt for the current tally and
// prunes old summaries.
func (l *Ledger) FlushSummary() error {
	l.mu.Lock()
	err := l.flushSummaryLocked()
	var snapshot Tally
	if err == nil {
		snapshot = l.tally.clone()
	}
	l.mu.Unlock()

	if err == nil {
		l.runHook(&snapshot)
	}
	return err
}

// FlushLog writes log_{YYYYMMDD}.txt when the event buffer is non-empty and
// prunes old logs.
func (l *Ledger) FlushLog() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.flushLogLocked()
}

func (l *Ledger) flushSummaryLocked() error {
	path := filepath.Join(l.summaryDir, SummaryName(l.tally.Day))
	err := writeFileAtomic(path, RenderSummary(l.tally, l.now()))
	l.metrics.Flush("summary", err)
	if err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	l.logger.Info("summary written", "path", path, "total", l.tally.Total, "files", len(l.tally.PerFile))

	l.prune(l.summaryDir, l.maxSummaries, retention.FilesWithAffixes("summary_", ".txt"), "summaries")
	return nil
}

func (l *Ledger) flushLogLocked() error {
	if !l.consolidated || len(l.tally.Events) == 0 {
		return nil
	}

	path := filepath.Join(l.logDir, LogName(l.tally.Day))
	err := writeFileAtomic(path, RenderLog(l.tally, l.now()))
	l.metrics.Flush("log", err)
	if err != nil {
		return fmt.Errorf("writing consolidated log: %w", err)
	}
	l.logger.Info("consolidated log written", "path", path, "events", len(l.tally.Events))

	l.prune(l.logDir, l.maxLogs, retention.FilesWithAffixes("log_", ".txt"), "logs")
	return nil
}

func (l *Ledger) prune(dir string, keep int, match retention.Matcher, scope string) {
	removed, err := retention.Prune(dir, keep, match, os.Remove)
	for _, p := range removed {
		l.logger.Info("old report removed", "path", p)
	}
	l.metrics.Prune(scope, len(removed))
	if err != nil {
		l.logger.Warn("pruning reports", "dir", dir, "error", err)
	}
}

func (l *Ledger) runHook(t *Tally) {
	if l.hook == nil || t == nil {
		return
	}
	l.hook(*t)
}

// Snapshot returns a copy of the current tally.
func (l *Ledger) Snapshot() Tally {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tally.clone()
}

// Consolidated reports whether the consolidated log is enabled.
func (l *Ledger) Consolidated() bool {
	return l.consolidated
}

// SummaryDir returns the directory summaries are written to.
func (l *Ledger) SummaryDir() string {
	return l.summaryDir
}

// LogDir returns the directory consolidated logs are written to.
func (l *Ledger) LogDir() string {
	return l.logDir
}

func dayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// writeFileAtomic replaces path with data through a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return nil
}
