package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jamesainslie/keepsake/pkg/daemon/archive"
	"github.com/jamesainslie/keepsake/pkg/daemon/backup"
	"github.com/jamesainslie/keepsake/pkg/daemon/broadcaster"
	"github.com/jamesainslie/keepsake/pkg/daemon/coordinator"
	"github.com/jamesainslie/keepsake/pkg/daemon/ledger"
	"github.com/jamesainslie/keepsake/pkg/daemon/metrics"
	"github.com/jamesainslie/keepsake/pkg/daemon/scheduler"
	"github.com/jamesainslie/keepsake/pkg/daemon/snapshot"
	"github.com/jamesainslie/keepsake/pkg/daemon/watcher"
	"github.com/jamesainslie/keepsake/pkg/keepsake/audit"
	"github.com/jamesainslie/keepsake/pkg/keepsake/config"
	"github.com/jamesainslie/keepsake/pkg/keepsake/filter"
	"github.com/jamesainslie/keepsake/pkg/keepsake/logging"
	"github.com/jamesainslie/keepsake/pkg/keepsake/output"
	"github.com/jamesainslie/keepsake/pkg/keepsake/types"
)

// ArchiveRetention is how long archived day records are kept.
const ArchiveRetention = 400 * 24 * time.Hour

// ErrNoArchive is returned by History when the monitor runs without an archive.
var ErrNoArchive = errors.New("history archive not available")

// Monitor wires the watcher, coordinator, backup store and ledger together
// for one watched tree.
type Monitor struct {
	cfg     *config.Config
	version string
	started time.Time
	now     func() time.Time
	logger  *logging.Logger

	metrics *metrics.Metrics

	// archiveMu guards archive. release closes it and sets it to nil.
	archiveMu sync.RWMutex
	archive   *archive.Archive

	audit     audit.Sink
	auditFile *audit.FileSink
	backups   *backup.Store
	ledger    *ledger.Ledger
	coord     *coordinator.Coordinator
	bcast     *broadcaster.Broadcaster
	snaps     *snapshot.Snapshotter
	sched     *scheduler.Scheduler
	watcher   *watcher.Watcher

	shutdown     chan struct{}
	shutdownOnce sync.Once
	closeOnce    sync.Once
	closeErr     error
}

// MonitorOption configures a Monitor.
type MonitorOption func(*Monitor)

// WithVersion sets the version reported by Status.
func WithVersion(v string) MonitorOption {
	return func(m *Monitor) {
		m.version = v
	}
}

// WithClock overrides the time source of every component.
func WithClock(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		m.now = now
	}
}

// WithArchive uses an already opened archive instead of opening
// the configured one. The monitor closes it.
func WithArchive(a *archive.Archive) MonitorOption {
	return func(m *Monitor) {
		m.archive = a
	}
}

// WithAuditSink replaces the configured audit file and console sinks.
func WithAuditSink(s audit.Sink) MonitorOption {
	return func(m *Monitor) {
		m.audit = s
	}
}

// WithMetrics uses m instead of a fresh registry.
func WithMetrics(mt *metrics.Metrics) MonitorOption {
	return func(m *Monitor) {
		m.metrics = mt
	}
}

// NewMonitor validates cfg and builds every component. Nothing is watched
// until Run.
func NewMonitor(cfg *config.Config, opts ...MonitorOption) (mon *Monitor, err error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:      cfg,
		now:      time.Now,
		logger:   logging.Get("daemon"),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.started = m.now()

	// Release whatever was opened if a later step fails.
	defer func() {
		if err != nil {
			m.release()
		}
	}()

	if m.metrics == nil {
		m.metrics = metrics.New()
	}
	if m.archive == nil {
		if m.archive, err = archive.Open(cfg.ArchivePath()); err != nil {
			return nil, err
		}
	}
	if m.audit == nil {
		if err = m.openAudit(); err != nil {
			return nil, err
		}
	}

	ignored := m.ignoredRoots()

	f, err := filter.New(
		filter.WithExtensions(cfg.Watch.Extensions...),
		filter.WithExclude(cfg.Watch.Exclude...),
		filter.WithIgnoredRoots(ignored...),
	)
	if err != nil {
		return nil, err
	}

	m.backups, err = backup.New(cfg.Backup.Root,
		backup.WithMaxBackups(cfg.Backup.Max),
		backup.WithClock(m.now),
		backup.WithMetrics(m.metrics),
	)
	if err != nil {
		return nil, err
	}

	m.ledger, err = ledger.New(cfg.Ledger.SummaryDir, cfg.Ledger.LogDir,
		ledger.WithClock(m.now),
		ledger.WithMaxSummaries(cfg.Ledger.MaxSummaries),
		ledger.WithMaxLogs(cfg.Ledger.MaxLogs),
		ledger.WithConsolidated(cfg.Ledger.Consolidated),
		ledger.WithMetrics(m.metrics),
		ledger.WithFlushHook(m.archiveTally),
	)
	if err != nil {
		return nil, err
	}

	m.bcast = broadcaster.New()
	m.coord = coordinator.New(f, m.backups, m.ledger,
		coordinator.WithClock(m.now),
		coordinator.WithAudit(m.audit),
		coordinator.WithPublisher(m.bcast),
		coordinator.WithMetrics(m.metrics),
	)

	m.snaps = snapshot.New(cfg.Snapshot.Root,
		snapshot.WithMaxSnapshots(cfg.Snapshot.Max),
		snapshot.WithIgnoredRoots(ignored...),
		snapshot.WithClock(m.now),
		snapshot.WithMetrics(m.metrics),
	)

	m.sched, err = scheduler.New(cfg.Ledger.RolloverSchedule, m.ledger, scheduler.WithClock(m.now))
	if err != nil {
		return nil, err
	}

	m.watcher, err = watcher.New(m.coord, watcher.WithIgnoredRoots(ignored...))
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	return m, nil
}

func (m *Monitor) openAudit() error {
	maxSize, err := m.cfg.AuditMaxBytes()
	if err != nil {
		return err
	}
	m.auditFile, err = audit.NewFileSink(audit.FileConfig{
		Path:       m.cfg.Audit.Path,
		MaxSize:    maxSize,
		MaxBackups: m.cfg.Audit.MaxBackups,
		Compress:   m.cfg.Audit.Compress,
	})
	if err != nil {
		return err
	}

	if m.cfg.Audit.Console {
		m.audit = audit.Multi{m.auditFile, audit.NewConsoleSink(os.Stdout)}
	} else {
		m.audit = m.auditFile
	}
	return nil
}

func (m *Monitor) ignoredRoots() []string {
	var roots []string
	for _, r := range m.cfg.ArtifactRoots() {
		if r != "" {
			roots = append(roots, r)
		}
	}
	if m.auditFile != nil {
		roots = append(roots, m.auditFile.Path())
	}
	return roots
}

// archiveTally stores a flushed tally and drops expired records.
func (m *Monitor) archiveTally(t ledger.Tally) {
	m.archiveMu.RLock()
	defer m.archiveMu.RUnlock()
	if m.archive == nil {
		return
	}
	if err := m.archive.Put(archive.FromTally(t, m.now())); err != nil {
		m.logger.Warn("archiving tally", "day", t.Day.Format("2006-01-02"), "error", err)
		return
	}
	if n, err := m.archive.Prune(t.Day.Add(-ArchiveRetention)); err != nil {
		m.logger.Warn("pruning archive", "error", err)
	} else if n > 0 {
		m.logger.Info("archive pruned", "records", n)
	}
}

// Run watches the configured root until ctx is cancelled or Shutdown is
// requested, then runs the shutdown sequence.
func (m *Monitor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := m.watcher.Watch(m.cfg.Watch.Root); err != nil {
		_ = m.Close()
		return fmt.Errorf("watching %s: %w", m.cfg.Watch.Root, err)
	}
	if err := m.sched.Start(); err != nil {
		_ = m.Close()
		return err
	}

	var wg sync.WaitGroup
	wg.Go(func() { m.watcher.Run(ctx) })

	if addr := m.cfg.Daemon.MetricsAddr; addr != "" {
		wg.Go(func() {
			if err := m.metrics.Serve(ctx, addr); err != nil {
				m.logger.Error("metrics server", "addr", addr, "error", err)
			}
		})
	}

	m.logger.Info("monitoring", "root", m.cfg.Watch.Root, "extensions", m.cfg.Watch.Extensions,
		"backups", m.cfg.Backup.Root, "next_rollover", m.sched.NextRun())

	select {
	case <-ctx.Done():
	case <-m.shutdown:
	}

	m.coord.Close()
	cancel()
	wg.Wait()

	return m.Close()
}

// Close runs the shutdown sequence: stop accepting events, flush the
// summary and consolidated log, take the shutdown snapshot when enabled,
// then release the watcher, scheduler, subscribers, audit file and archive.
// It is safe to call more than once.
func (m *Monitor) Close() error {
	m.closeOnce.Do(func() {
		m.coord.Close()

		var errs []error
		if err := m.Flush(); err != nil {
			errs = append(errs, err)
		}

		if m.cfg.Snapshot.OnShutdown && m.snaps.Enabled() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := m.snaps.Take(ctx, m.cfg.Watch.Root); err != nil {
				m.logger.Error("shutdown snapshot", "error", err)
				errs = append(errs, fmt.Errorf("shutdown snapshot: %w", err))
			}
			cancel()
		}

		errs = append(errs, m.release())
		m.closeErr = errors.Join(errs...)
		m.logger.Info("monitor stopped", "uptime", m.now().Sub(m.started).Round(time.Second))
	})
	return m.closeErr
}

// release closes the resources that exist, in reverse dependency order.
func (m *Monitor) release() error {
	var errs []error
	if m.watcher != nil {
		errs = append(errs, m.watcher.Close())
	}
	if m.sched != nil {
		errs = append(errs, m.sched.Stop())
	}
	if m.bcast != nil {
		m.bcast.Close()
	}
	if m.auditFile != nil {
		errs = append(errs, m.auditFile.Close())
	}
	m.archiveMu.Lock()
	if m.archive != nil {
		errs = append(errs, m.archive.Close())
		m.archive = nil
	}
	m.archiveMu.Unlock()
	return errors.Join(errs...)
}

// RequestShutdown makes Run return. It does not wait.
func (m *Monitor) RequestShutdown() {
	m.shutdownOnce.Do(func() {
		m.logger.Info("shutdown requested")
		close(m.shutdown)
	})
}

// Handle feeds a watched event straight to the coordinator.
func (m *Monitor) Handle(ev types.WatchedEvent) coordinator.Outcome {
	return m.coord.Handle(ev)
}

// Flush writes today's summary and consolidated log.
func (m *Monitor) Flush() error {
	return errors.Join(m.ledger.FlushSummary(), m.ledger.FlushLog())
}

// Snapshot copies the watched tree now.
func (m *Monitor) Snapshot(ctx context.Context) (*snapshot.Result, error) {
	return m.snaps.Take(ctx, m.cfg.Watch.Root)
}

// Status reports the running state.
func (m *Monitor) Status() *output.Status {
	return &output.Status{
		Running:         true,
		PID:             os.Getpid(),
		Version:         m.version,
		Uptime:          m.now().Sub(m.started),
		WatchRoot:       m.cfg.Watch.Root,
		Today:           dayFromTally(m.ledger.Snapshot()),
		DebounceEntries: m.coord.DebounceEntries(),
		NextRollover:    m.sched.NextRun(),
		Subscribers:     m.bcast.SubscriberCount(),
	}
}

// History returns up to limit archived days, newest first.
func (m *Monitor) History(limit int) ([]output.Day, error) {
	m.archiveMu.RLock()
	defer m.archiveMu.RUnlock()
	if m.archive == nil {
		return nil, ErrNoArchive
	}
	records, err := m.archive.History(limit)
	if err != nil {
		return nil, err
	}
	days := make([]output.Day, 0, len(records))
	for _, r := range records {
		days = append(days, dayFromRecord(r))
	}
	return days, nil
}

// Backups lists the retained backups of a file, newest first. name may be
// a path, a file name or a bare stem.
func (m *Monitor) Backups(name string) (string, []output.Backup, error) {
	stem, _ := backup.SplitName(filepath.Base(name))
	entries, err := m.backups.List(stem)
	if err != nil {
		return stem, nil, err
	}
	out := make([]output.Backup, 0, len(entries))
	for _, e := range entries {
		var size int64
		if info, err := os.Stat(e.Path); err == nil {
			size = info.Size()
		}
		out = append(out, output.Backup{
			Path:      e.Path,
			Name:      e.Name,
			Size:      size,
			SizeHuman: types.FormatSize(size),
			ModTime:   e.ModTime,
		})
	}
	return stem, out, nil
}

// Broadcaster returns the event fan-out used for live streams.
func (m *Monitor) Broadcaster() *broadcaster.Broadcaster {
	return m.bcast
}

// Metrics returns the metrics registry.
func (m *Monitor) Metrics() *metrics.Metrics {
	return m.metrics
}

func dayFromTally(t ledger.Tally) output.Day {
	files := make(map[string]int, len(t.PerFile))
	for k, v := range t.PerFile {
		files[k] = v
	}
	return output.Day{
		Date:   t.Day.Format("2006-01-02"),
		Total:  t.Total,
		Files:  files,
		Events: len(t.Events),
	}
}

func dayFromRecord(r *archive.Record) output.Day {
	date := r.Date
	if d, err := r.Day(); err == nil {
		date = d.Format("2006-01-02")
	}
	return output.Day{
		Date:      date,
		Total:     r.Total,
		Files:     r.Files,
		Events:    r.Events,
		FlushedAt: r.FlushedAt,
	}
}
