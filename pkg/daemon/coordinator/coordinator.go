// Package coordinator turns raw watcher notifications into backups, audit
// lines and ledger updates.
//
// Every event passes three stages: the filter (directories, extensions,
// exclude globs, keepsake's own directories), the per-path debounce window,
// and dispatch. Only events that survive both filter and debounce leave a
// trace.
package coordinator

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/jamesainslie/keepsake/pkg/daemon/backup"
	"github.com/jamesainslie/keepsake/pkg/daemon/metrics"
	"github.com/jamesainslie/keepsake/pkg/keepsake/audit"
	"github.com/jamesainslie/keepsake/pkg/keepsake/filter"
	"github.com/jamesainslie/keepsake/pkg/keepsake/identity"
	"github.com/jamesainslie/keepsake/pkg/keepsake/logging"
	"github.com/jamesainslie/keepsake/pkg/keepsake/types"
)

// DebounceWindow is the minimum spacing between two accepted events for the
// same path.
const DebounceWindow = 5 * time.Second

// Decision explains what happened to an event.
type Decision int

// Decisions in the order the stages run.
const (
	Accepted Decision = iota
	RejectedDirectory
	RejectedExtension
	RejectedExcluded
	RejectedIgnoredRoot
	Debounced
	Closed
)

// String returns the decision name used in logs and metric labels.
func (d Decision) String() string {
	switch d {
	case Accepted:
		return "accepted"
	case RejectedDirectory:
		return "directory"
	case RejectedExtension:
		return "extension"
	case RejectedExcluded:
		return "excluded"
	case RejectedIgnoredRoot:
		return "ignored_root"
	case Debounced:
		return "debounced"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

func fromVerdict(v filter.Verdict) Decision {
	switch v {
	case filter.Accept:
		return Accepted
	case filter.RejectDirectory:
		return RejectedDirectory
	case filter.RejectExtension:
		return RejectedExtension
	case filter.RejectExcluded:
		return RejectedExcluded
	default:
		return RejectedIgnoredRoot
	}
}

// Outcome is the result of handling one event.
type Outcome struct {
	Accepted   bool
	Reason     Decision
	BackupPath string
}

// EventSink is the capability a watcher needs: one call per notification.
type EventSink interface {
	Created(path string, isDir bool)
	Modified(path string, isDir bool)
	Deleted(path string, isDir bool)
}

// Backuper creates backup copies.
type Backuper interface {
	CreateBackup(path string) backup.Result
}

// Recorder is the part of the ledger the coordinator drives.
type Recorder interface {
	Rollover() bool
	RegisterModification(path string)
	AppendLogEntry(line string)
}

// Publisher receives every accepted event, e.g. for live streams.
type Publisher interface {
	Publish(ev types.AuditEvent)
}

// Coordinator implements EventSink.
type Coordinator struct {
	mu       sync.Mutex
	debounce *cache.Cache
	closed   atomic.Bool

	filter    *filter.Filter
	backups   Backuper
	ledger    Recorder
	audit     audit.Sink
	publisher Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
	user      func() string
	logger    *logging.Logger
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source for debounce checks and audit timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		c.now = now
	}
}

// WithAudit sets the sink audit lines are written to.
func WithAudit(sink audit.Sink) Option {
	return func(c *Coordinator) {
		if sink != nil {
			c.audit = sink
		}
	}
}

// WithPublisher sets where accepted events are published.
func WithPublisher(p Publisher) Option {
	return func(c *Coordinator) {
		c.publisher = p
	}
}

// WithUser overrides how the acting user is resolved.
func WithUser(fn func() string) Option {
	return func(c *Coordinator) {
		c.user = fn
	}
}

// WithMetrics records decisions and the debounce table size.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

// New returns a coordinator dispatching to the given backup store and ledger.
func New(f *filter.Filter, backups Backuper, ledger Recorder, opts ...Option) *Coordinator {
	c := &Coordinator{
		// Entries expire after six windows.
		debounce: cache.New(6*DebounceWindow, 12*DebounceWindow),
		filter:   f,
		backups:  backups,
		ledger:   ledger,
		audit:    audit.Discard,
		now:      time.Now,
		user:     identity.Current,
		logger:   logging.Get("coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Created handles a create notification.
func (c *Coordinator) Created(path string, isDir bool) {
	c.Handle(types.WatchedEvent{Path: path, Kind: types.KindCreated, IsDir: isDir})
}

// Modified handles a modify notification.
func (c *Coordinator) Modified(path string, isDir bool) {
	c.Handle(types.WatchedEvent{Path: path, Kind: types.KindModified, IsDir: isDir})
}

// Deleted handles a delete notification.
func (c *Coordinator) Deleted(path string, isDir bool) {
	c.Handle(types.WatchedEvent{Path: path, Kind: types.KindDeleted, IsDir: isDir})
}

// Handle runs an event through filter, debounce and dispatch.
func (c *Coordinator) Handle(ev types.WatchedEvent) Outcome {
	if c.closed.Load() {
		return c.reject(ev, Closed)
	}

	if d := fromVerdict(c.filter.Match(ev.Path, ev.IsDir)); d != Accepted {
		return c.reject(ev, d)
	}

	now, ok := c.admit(ev.Path)
	if !ok {
		return c.reject(ev, Debounced)
	}

	c.metrics.Event(ev.Kind.String(), Accepted.String())
	return c.dispatch(ev, now)
}

func (c *Coordinator) reject(ev types.WatchedEvent, d Decision) Outcome {
	c.logger.Debug("event ignored", "path", ev.Path, "kind", ev.Kind, "reason", d)
	c.metrics.Event(ev.Kind.String(), d.String())
	return Outcome{Reason: d}
}

// admit performs the debounce check-and-set for path.
func (c *Coordinator) admit(path string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if v, found := c.debounce.Get(path); found {
		if last, ok := v.(time.Time); ok && now.Sub(last) < DebounceWindow {
			return now, false
		}
	}
	c.debounce.Set(path, now, cache.DefaultExpiration)
	c.metrics.SetDebounceEntries(c.debounce.ItemCount())
	return now, true
}

func (c *Coordinator) dispatch(ev types.WatchedEvent, at time.Time) Outcome {
	// Roll the day over before the first line lands in the new day's buffer.
	c.ledger.Rollover()

	user := c.user()
	c.emit(types.EventLine(at, ev.Kind, ev.Path, user))

	out := Outcome{Accepted: true, Reason: Accepted}
	if ev.Kind.TriggersBackup() {
		res := c.backups.CreateBackup(ev.Path)
		if res.Success {
			out.BackupPath = res.BackupPath
			c.emit(types.BackupLine(c.now(), res.BackupPath))
		}
		c.ledger.RegisterModification(ev.Path)
	}

	if c.publisher != nil {
		c.publisher.Publish(types.AuditEvent{
			Time:       at,
			Kind:       ev.Kind,
			Path:       ev.Path,
			User:       user,
			BackupPath: out.BackupPath,
		})
	}
	return out
}

// emit writes an audit line to the process log, the audit sink and the ledger buffer.
func (c *Coordinator) emit(line string) {
	c.logger.Info(line)
	c.audit.Record(line)
	c.ledger.AppendLogEntry(line)
}

// Close stops accepting events. Events already in dispatch complete.
func (c *Coordinator) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.logger.Info("coordinator closed")
	}
}

// DebounceEntries returns the number of paths in the debounce table.
func (c *Coordinator) DebounceEntries() int {
	return c.debounce.ItemCount()
}

var _ EventSink = (*Coordinator)(nil)
