package coordinator

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/keepsake/pkg/daemon/backup"
	"github.com/jamesainslie/keepsake/pkg/daemon/ledger"
	"github.com/jamesainslie/keepsake/pkg/daemon/metrics"
	"github.com/jamesainslie/keepsake/pkg/keepsake/audit"
	"github.com/jamesainslie/keepsake/pkg/keepsake/filter"
	"github.com/jamesainslie/keepsake/pkg/keepsake/types"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fakeBackups struct {
	mu    sync.Mutex
	calls []string
	fail  bool
}

func (f *fakeBackups) CreateBackup(path string) backup.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, path)
	if f.fail {
		return backup.Result{}
	}
	return backup.Result{Success: true, BackupPath: "/b/" + filepath.Base(path)}
}

type fakeLedger struct {
	mu        sync.Mutex
	modified  []string
	lines     []string
	rollovers int
}

func (f *fakeLedger) Rollover() bool {
	f.mu.Lock()
	f.rollovers++
	f.mu.Unlock()
	return false
}

func (f *fakeLedger) RegisterModification(path string) {
	f.mu.Lock()
	f.modified = append(f.modified, path)
	f.mu.Unlock()
}

func (f *fakeLedger) AppendLogEntry(line string) {
	f.mu.Lock()
	f.lines = append(f.lines, line)
	f.mu.Unlock()
}

type fakePublisher struct{ events []types.AuditEvent }

func (f *fakePublisher) Publish(ev types.AuditEvent) { f.events = append(f.events, ev) }

type fixture struct {
	c       *Coordinator
	clock   *clock
	backups *fakeBackups
	ledger  *fakeLedger
	audit   *audit.Memory
	pub     *fakePublisher
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f, err := filter.New(
		filter.WithExtensions(".txt"),
		filter.WithExclude("~$*", "*.tmp"),
		filter.WithIgnoredRoots("/b"),
	)
	require.NoError(t, err)

	fx := &fixture{
		clock:   &clock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local)},
		backups: &fakeBackups{},
		ledger:  &fakeLedger{},
		audit:   &audit.Memory{},
		pub:     &fakePublisher{},
		metrics: metrics.New(),
	}
	fx.c = New(f, fx.backups, fx.ledger,
		WithClock(fx.clock.now),
		WithAudit(fx.audit),
		WithPublisher(fx.pub),
		WithUser(func() string { return "alice" }),
		WithMetrics(fx.metrics),
	)
	return fx
}

func TestHandle_ModifiedDispatch(t *testing.T) {
	fx := newFixture(t)

	out := fx.c.Handle(types.WatchedEvent{Path: "/w/report.txt", Kind: types.KindModified})

	assert.True(t, out.Accepted)
	assert.Equal(t, Accepted, out.Reason)
	assert.Equal(t, "/b/report.txt", out.BackupPath)

	want := []string{
		"2025-03-01 10:00:00 - MODIFICADO: /w/report.txt | Usuário: alice",
		"2025-03-01 10:00:00 - Backup criado: /b/report.txt",
	}
	assert.Equal(t, want, fx.audit.Lines())
	assert.Equal(t, want, fx.ledger.lines)
	assert.Equal(t, []string{"/w/report.txt"}, fx.ledger.modified)
	assert.Equal(t, 1, fx.ledger.rollovers)

	require.Len(t, fx.pub.events, 1)
	assert.Equal(t, "/b/report.txt", fx.pub.events[0].BackupPath)
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.Events.WithLabelValues("modified", "accepted")))
}

func TestHandle_DeletedIsLoggedOnly(t *testing.T) {
	fx := newFixture(t)

	out := fx.c.Handle(types.WatchedEvent{Path: "/w/old.txt", Kind: types.KindDeleted})

	assert.True(t, out.Accepted)
	assert.Empty(t, out.BackupPath)
	assert.Empty(t, fx.backups.calls)
	assert.Empty(t, fx.ledger.modified)
	assert.Equal(t, []string{"2025-03-01 10:00:00 - DELETADO: /w/old.txt | Usuário: alice"}, fx.audit.Lines())
}

func TestHandle_FailedBackupStillCounts(t *testing.T) {
	fx := newFixture(t)
	fx.backups.fail = true

	out := fx.c.Handle(types.WatchedEvent{Path: "/w/a.txt", Kind: types.KindCreated})

	assert.True(t, out.Accepted)
	assert.Empty(t, out.BackupPath)
	assert.Equal(t, []string{"2025-03-01 10:00:00 - CRIADO: /w/a.txt | Usuário: alice"}, fx.audit.Lines())
	assert.Equal(t, []string{"/w/a.txt"}, fx.ledger.modified)
}

func TestHandle_Rejections(t *testing.T) {
	tests := []struct {
		name string
		ev   types.WatchedEvent
		want Decision
	}{
		{"directory", types.WatchedEvent{Path: "/w/dir.txt", Kind: types.KindCreated, IsDir: true}, RejectedDirectory},
		{"log file", types.WatchedEvent{Path: "/w/app.log", Kind: types.KindModified}, RejectedExtension},
		{"office lock", types.WatchedEvent{Path: "/w/~$report.txt", Kind: types.KindCreated}, RejectedExcluded},
		{"own backups", types.WatchedEvent{Path: "/b/report/report_1.txt", Kind: types.KindCreated}, RejectedIgnoredRoot},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			out := fx.c.Handle(tt.ev)

			assert.False(t, out.Accepted)
			assert.Equal(t, tt.want, out.Reason)
			assert.Empty(t, fx.audit.Lines())
			assert.Empty(t, fx.ledger.lines)
			assert.Empty(t, fx.ledger.modified)
			assert.Empty(t, fx.backups.calls)
			assert.Equal(t, 0, fx.c.DebounceEntries(), "rejected events leave no debounce entry")
		})
	}
}

func TestHandle_Debounce(t *testing.T) {
	fx := newFixture(t)
	ev := types.WatchedEvent{Path: "/w/a.txt", Kind: types.KindModified}

	assert.True(t, fx.c.Handle(ev).Accepted)

	fx.clock.advance(4999 * time.Millisecond)
	out := fx.c.Handle(ev)
	assert.False(t, out.Accepted)
	assert.Equal(t, Debounced, out.Reason)

	// Another path is independent.
	assert.True(t, fx.c.Handle(types.WatchedEvent{Path: "/w/b.txt", Kind: types.KindModified}).Accepted)

	fx.clock.advance(1 * time.Millisecond)
	assert.True(t, fx.c.Handle(ev).Accepted, "exactly one window later is accepted")

	assert.Len(t, fx.backups.calls, 3)
	assert.Equal(t, 2, fx.c.DebounceEntries())
	assert.Equal(t, 1.0, testutil.ToFloat64(fx.metrics.Events.WithLabelValues("modified", "debounced")))
}

func TestHandle_DebounceSpansKinds(t *testing.T) {
	fx := newFixture(t)

	assert.True(t, fx.c.Handle(types.WatchedEvent{Path: "/w/a.txt", Kind: types.KindCreated}).Accepted)
	assert.False(t, fx.c.Handle(types.WatchedEvent{Path: "/w/a.txt", Kind: types.KindModified}).Accepted)
}

func TestSinkMethods(t *testing.T) {
	fx := newFixture(t)

	fx.c.Created("/w/a.txt", false)
	fx.c.Modified("/w/b.txt", false)
	fx.c.Deleted("/w/c.txt", false)
	fx.c.Modified("/w/sub", true)

	lines := fx.audit.Lines()
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "CRIADO: /w/a.txt")
	assert.Contains(t, lines[2], "MODIFICADO: /w/b.txt")
	assert.Contains(t, lines[4], "DELETADO: /w/c.txt")
}

func TestClose(t *testing.T) {
	fx := newFixture(t)
	fx.c.Close()
	fx.c.Close()

	out := fx.c.Handle(types.WatchedEvent{Path: "/w/a.txt", Kind: types.KindModified})
	assert.False(t, out.Accepted)
	assert.Equal(t, Closed, out.Reason)
	assert.Empty(t, fx.audit.Lines())
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "debounced", Debounced.String())
	assert.Equal(t, "ignored_root", RejectedIgnoredRoot.String())
	assert.Equal(t, "unknown", Decision(99).String())
}

// Saves of report.txt at T0, T0+1s, T0+6s and T0+12s with two backups
// retained: the T0+1s save is debounced and the T0 copy is evicted.
func TestAliceWalkthrough(t *testing.T) {
	root := t.TempDir()
	watch := filepath.Join(root, "watch")
	require.NoError(t, os.MkdirAll(watch, 0o755))
	backups := filepath.Join(root, "backups")

	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local)
	clk := &clock{t: t0}
	alice := func() string { return "alice" }

	store, err := backup.New(backups, backup.WithMaxBackups(2), backup.WithClock(clk.now), backup.WithUser(alice))
	require.NoError(t, err)
	led, err := ledger.New(filepath.Join(root, "summaries"), filepath.Join(root, "logs"), ledger.WithClock(clk.now))
	require.NoError(t, err)
	f, err := filter.New(filter.WithExtensions(".txt"), filter.WithIgnoredRoots(backups))
	require.NoError(t, err)

	sink := &audit.Memory{}
	c := New(f, store, led, WithClock(clk.now), WithUser(alice), WithAudit(sink))

	report := filepath.Join(watch, "report.txt")
	save := func(offset time.Duration) Outcome {
		clk.set(t0.Add(offset))
		require.NoError(t, os.WriteFile(report, []byte(offset.String()), 0o644))
		mtime := clk.now()
		require.NoError(t, os.Chtimes(report, mtime, mtime))
		return c.Handle(types.WatchedEvent{Path: report, Kind: types.KindModified})
	}

	assert.True(t, save(0).Accepted)
	out := save(time.Second)
	assert.False(t, out.Accepted)
	assert.Equal(t, Debounced, out.Reason)
	assert.True(t, save(6*time.Second).Accepted)

	entries, err := store.List("report")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "report_20250301_090006_alice.txt", entries[0].Name)
	assert.Equal(t, "report_20250301_090000_alice.txt", entries[1].Name)

	assert.True(t, save(12*time.Second).Accepted)

	// The .log file never reaches the ledger.
	out = c.Handle(types.WatchedEvent{Path: filepath.Join(watch, "app.log"), Kind: types.KindModified})
	assert.Equal(t, RejectedExtension, out.Reason)

	entries, err = store.List("report")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "report_20250301_090012_alice.txt", entries[0].Name)
	assert.Equal(t, "report_20250301_090006_alice.txt", entries[1].Name)

	snap := led.Snapshot()
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, map[string]int{"report": 3}, snap.PerFile)
	assert.Len(t, snap.Events, 6)
	assert.Len(t, sink.Lines(), 6)
}
