package ledger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
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

func newLedger(t *testing.T, c *clock, opts ...Option) (*Ledger, string, string) {
	t.Helper()
	root := t.TempDir()
	summaries := filepath.Join(root, "summaries")
	logs := filepath.Join(root, "logs")
	l, err := New(summaries, logs, append([]Option{WithClock(c.now)}, opts...)...)
	require.NoError(t, err)
	return l, summaries, logs
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestRenderSummary(t *testing.T) {
	tally := Tally{
		Day:     time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local),
		Total:   3,
		PerFile: map[string]int{"report": 2, "notes": 1},
	}
	got := string(RenderSummary(tally, time.Date(2025, 3, 2, 0, 1, 0, 0, time.Local)))

	eq := strings.Repeat("=", 70)
	dash := strings.Repeat("-", 70)
	want := eq + "\n" +
		"RESUMO DE MONITORAMENTO - 01/03/2025\n" +
		eq + "\n" +
		"\n" +
		"1. TOTAL DE MODIFICAÇÕES: 3\n" +
		"   Número de alterações realizadas no diretório monitorado.\n" +
		"\n" +
		"2. ARQUIVOS MODIFICADOS: 2\n" +
		"   Quantidade de arquivos diferentes que sofreram alterações.\n" +
		"\n" +
		"3. DETALHAMENTO POR ARQUIVO:\n" +
		dash + "\n" +
		"   notes                                    -   1 modificações\n" +
		"   report                                   -   2 modificações\n" +
		dash + "\n" +
		"Gerado em: 2025-03-02 00:01:00\n"

	assert.Equal(t, want, got)
}

func TestRenderLog(t *testing.T) {
	tally := Tally{
		Day:    time.Date(2025, 3, 1, 0, 0, 0, 0, time.Local),
		Events: []string{"line one", "line two"},
	}
	got := string(RenderLog(tally, time.Date(2025, 3, 1, 18, 0, 0, 0, time.Local)))

	eq := strings.Repeat("=", 80)
	want := eq + "\n" +
		"LOG CONSOLIDADO - 01/03/2025\n" +
		eq + "\n" +
		"\n" +
		"line one\n" +
		"line two\n" +
		"\n" +
		eq + "\n" +
		"Total de eventos registrados: 2\n" +
		"Gerado em: 2025-03-01 18:00:00\n" +
		eq + "\n"

	assert.Equal(t, want, got)
}

func TestNew_WritesDayZeroSummaryOnly(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.Local)}
	_, summaries, logs := newLedger(t, c)

	assert.Equal(t, []string{"summary_20250301.txt"}, dirNames(t, summaries))
	assert.Empty(t, dirNames(t, logs))

	data, err := os.ReadFile(filepath.Join(summaries, "summary_20250301.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "1. TOTAL DE MODIFICAÇÕES: 0")
	assert.Contains(t, string(data), "2. ARQUIVOS MODIFICADOS: 0")
}

func TestRegisterModification_Counts(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 8, 0, 0, 0, time.Local)}
	l, _, _ := newLedger(t, c)

	paths := []string{"/w/a.txt", "/w/b.txt", "/w/sub/a.txt", "/w/c.TXT", "/w/a.txt"}
	for _, p := range paths {
		l.RegisterModification(p)
	}

	snap := l.Snapshot()
	assert.Equal(t, len(paths), snap.Total)
	assert.Len(t, snap.PerFile, 3)
	assert.Equal(t, 3, snap.PerFile["a"])
	assert.Equal(t, 1, snap.PerFile["c"])
}

func TestRegisterModification_DayBoundary(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 23, 59, 0, 0, time.Local)}
	var hooked []Tally
	l, summaries, logs := newLedger(t, c, WithFlushHook(func(t Tally) { hooked = append(hooked, t) }))

	l.RegisterModification("/w/a.txt")
	l.AppendLogEntry("event on day one")
	l.RegisterModification("/w/b.txt")

	c.set(time.Date(2025, 3, 2, 0, 0, 30, 0, time.Local))
	l.RegisterModification("/w/c.txt")

	assert.Equal(t, []string{"summary_20250301.txt"}, dirNames(t, summaries))
	assert.Equal(t, []string{"log_20250301.txt"}, dirNames(t, logs))

	data, err := os.ReadFile(filepath.Join(summaries, "summary_20250301.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "1. TOTAL DE MODIFICAÇÕES: 2")
	assert.Contains(t, string(data), "Gerado em: 2025-03-02 00:00:30")

	snap := l.Snapshot()
	assert.Equal(t, time.Date(2025, 3, 2, 0, 0, 0, 0, time.Local), snap.Day)
	assert.Equal(t, 1, snap.Total)
	assert.Equal(t, map[string]int{"c": 1}, snap.PerFile)
	assert.Empty(t, snap.Events)

	// day-0 flush and the rollover flush
	require.Len(t, hooked, 2)
	assert.Equal(t, 2, hooked[1].Total)
}

func TestRollover(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)}
	l, summaries, _ := newLedger(t, c)

	assert.False(t, l.Rollover())

	l.RegisterModification("/w/a.txt")
	c.set(time.Date(2025, 3, 2, 0, 1, 0, 0, time.Local))

	assert.True(t, l.Rollover())
	assert.False(t, l.Rollover())

	assert.Equal(t, []string{"summary_20250301.txt"}, dirNames(t, summaries))
	assert.Equal(t, 0, l.Snapshot().Total)
}

func TestRollover_FlushFailureStillResets(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)}
	l, summaries, _ := newLedger(t, c)
	l.RegisterModification("/w/a.txt")

	require.NoError(t, os.RemoveAll(summaries))
	require.NoError(t, os.WriteFile(summaries, []byte("not a dir"), 0o644))

	c.set(time.Date(2025, 3, 2, 9, 0, 0, 0, time.Local))
	assert.True(t, l.Rollover())

	snap := l.Snapshot()
	assert.Equal(t, 0, snap.Total)
	assert.Empty(t, snap.PerFile)
}

func TestAppendLogEntry_DisabledIsNoop(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)}
	l, _, logs := newLedger(t, c, WithConsolidated(false))

	l.AppendLogEntry("ignored")
	assert.Empty(t, l.Snapshot().Events)
	require.NoError(t, l.FlushLog())
	assert.Empty(t, dirNames(t, logs))
	assert.False(t, l.Consolidated())
}

func TestFlushLog(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)}
	l, _, logs := newLedger(t, c)

	require.NoError(t, l.FlushLog())
	assert.Empty(t, dirNames(t, logs), "zero entries writes nothing")

	l.AppendLogEntry("2025-03-01 12:00:00 - CRIADO: /w/a.txt | Usuário: alice")
	require.NoError(t, l.FlushLog())

	data, err := os.ReadFile(filepath.Join(logs, "log_20250301.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "CRIADO: /w/a.txt")
	assert.Contains(t, string(data), "Total de eventos registrados: 1")
}

func TestFlushSummary_PrunesOnlySummaries(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)}
	root := t.TempDir()
	summaries := filepath.Join(root, "summaries")
	require.NoError(t, os.MkdirAll(summaries, 0o755))

	for i, day := range []string{"20250301", "20250302", "20250303"} {
		p := filepath.Join(summaries, "summary_"+day+".txt")
		require.NoError(t, os.WriteFile(p, []byte(day), 0o644))
		mtime := time.Date(2025, 3, 1+i, 23, 0, 0, 0, time.Local)
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}
	notes := filepath.Join(summaries, "README.md")
	require.NoError(t, os.WriteFile(notes, []byte("keep"), 0o644))
	old := time.Date(2000, 1, 1, 0, 0, 0, 0, time.Local)
	require.NoError(t, os.Chtimes(notes, old, old))

	_, err := New(summaries, filepath.Join(root, "logs"), WithClock(c.now), WithMaxSummaries(2))
	require.NoError(t, err)

	assert.ElementsMatch(t,
		[]string{"README.md", "summary_20250303.txt", "summary_20250310.txt"},
		dirNames(t, summaries))
}

func TestFlushLog_PrunesOnlyLogs(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 10, 12, 0, 0, 0, time.Local)}
	root := t.TempDir()
	logs := filepath.Join(root, "logs")
	require.NoError(t, os.MkdirAll(logs, 0o755))

	for i, day := range []string{"20250301", "20250302", "20250303"} {
		p := filepath.Join(logs, "log_"+day+".txt")
		require.NoError(t, os.WriteFile(p, []byte(day), 0o644))
		mtime := time.Date(2025, 3, 1+i, 23, 0, 0, 0, time.Local)
		require.NoError(t, os.Chtimes(p, mtime, mtime))
	}
	notes := filepath.Join(logs, "README.md")
	require.NoError(t, os.WriteFile(notes, []byte("keep"), 0o644))
	old := time.Date(2000, 1, 1, 0, 0, 0, 0, time.Local)
	require.NoError(t, os.Chtimes(notes, old, old))

	l, err := New(filepath.Join(root, "summaries"), logs, WithClock(c.now), WithMaxLogs(2))
	require.NoError(t, err)

	// Nothing buffered yet: no log is written and nothing is pruned.
	require.NoError(t, l.FlushLog())
	assert.Len(t, dirNames(t, logs), 4)

	l.AppendLogEntry("2025-03-10 12:00:00 - MODIFICADO: /w/a.txt | Usuário: alice")
	require.NoError(t, l.FlushLog())

	assert.ElementsMatch(t,
		[]string{"README.md", "log_20250303.txt", "log_20250310.txt"},
		dirNames(t, logs))
}

func TestSnapshotIsACopy(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)}
	l, _, _ := newLedger(t, c)
	l.RegisterModification("/w/a.txt")
	l.AppendLogEntry("x")

	snap := l.Snapshot()
	snap.PerFile["a"] = 99
	snap.Events[0] = "changed"

	again := l.Snapshot()
	assert.Equal(t, 1, again.PerFile["a"])
	assert.Equal(t, "x", again.Events[0])
}

func TestConcurrentRegistration(t *testing.T) {
	c := &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.Local)}
	l, _, _ := newLedger(t, c)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				l.RegisterModification("/w/a.txt")
				l.AppendLogEntry("e")
				_ = l.Rollover()
			}
		}()
	}
	wg.Wait()

	snap := l.Snapshot()
	assert.Equal(t, 800, snap.Total)
	assert.Len(t, snap.Events, 800)
}
