// Package metrics exposes keepsake's Prometheus metrics.
//
// Every method is safe to call on a nil *Metrics, so components can run
// without metrics in tests and in foreground mode.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jamesainslie/keepsake/pkg/keepsake/logging"
)

// Metrics holds the keepsake collectors and the registry they live in.
type Metrics struct {
	Registry *prometheus.Registry

	Events          *prometheus.CounterVec
	Backups         *prometheus.CounterVec
	BackupDuration  prometheus.Histogram
	Flushes         *prometheus.CounterVec
	Pruned          *prometheus.CounterVec
	DebounceEntries prometheus.Gauge
}

// New creates the collectors on a fresh registry, along with the Go runtime
// and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keepsake_events_total",
			Help: "Filesystem events seen by the coordinator, by kind and decision",
		}, []string{"kind", "decision"}),

		Backups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keepsake_backups_total",
			Help: "Backup attempts by result",
		}, []string{"result"}),

		BackupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "keepsake_backup_duration_seconds",
			Help:    "Time spent copying a file into the backup store",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),

		Flushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keepsake_flushes_total",
			Help: "Summary and consolidated log flushes by artifact and result",
		}, []string{"artifact", "result"}),

		Pruned: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "keepsake_pruned_total",
			Help: "Files and directories removed by retention, by scope",
		}, []string{"scope"}),

		DebounceEntries: factory.NewGauge(prometheus.GaugeOpts{
			Name: "keepsake_debounce_entries",
			Help: "Paths currently held in the debounce table",
		}),
	}
}

// Event records a coordinator decision.
func (m *Metrics) Event(kind, decision string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(kind, decision).Inc()
}

// Backup records a backup attempt and how long it took.
func (m *Metrics) Backup(ok bool, took time.Duration) {
	if m == nil {
		return
	}
	m.Backups.WithLabelValues(result(ok)).Inc()
	if ok {
		m.BackupDuration.Observe(took.Seconds())
	}
}

// Flush records a summary or log flush.
func (m *Metrics) Flush(artifact string, err error) {
	if m == nil {
		return
	}
	m.Flushes.WithLabelValues(artifact, result(err == nil)).Inc()
}

// Prune records n entries removed by retention.
func (m *Metrics) Prune(scope string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.Pruned.WithLabelValues(scope).Add(float64(n))
}

// SetDebounceEntries sets the debounce table size.
func (m *Metrics) SetDebounceEntries(n int) {
	if m == nil {
		return
	}
	m.DebounceEntries.Set(float64(n))
}

// Handler returns the HTTP handler serving the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger := logging.Get("metrics")
	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
