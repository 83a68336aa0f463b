// Package metrics exposes tracker health as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keytally"

// HookStats is the subset of hook dispatcher counters that gets exported.
type HookStats interface {
	Delivered() uint64
	Injected() uint64
	Panics() uint64
}

// Metrics owns a private registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	flushes       *prometheus.CounterVec
	flushDuration prometheus.Histogram
	flushRows     prometheus.Counter
	hookInstalled prometheus.Gauge
	bufferedKeys  prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		flushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flush",
			Name:      "cycles_total",
			Help:      "Flush cycles by outcome (ok, empty, error).",
		}, []string{"result"}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "flush",
			Name:      "duration_seconds",
			Help:      "Time spent writing one flush batch.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		}),
		flushRows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flush",
			Name:      "rows_total",
			Help:      "Rows upserted by successful flush cycles.",
		}),
		hookInstalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hook",
			Name:      "installed",
			Help:      "1 while the global input hooks are installed.",
		}),
		bufferedKeys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "buffer",
			Name:      "keys",
			Help:      "Key presses buffered but not yet persisted.",
		}),
	}

	m.registry.MustRegister(
		m.flushes,
		m.flushDuration,
		m.flushRows,
		m.hookInstalled,
		m.bufferedKeys,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterHook exports the dispatcher counters of stats.
func (m *Metrics) RegisterHook(stats HookStats) {
	counter := func(name, help string, fn func() uint64) prometheus.CounterFunc {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hook",
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(fn()) })
	}

	m.registry.MustRegister(
		counter("events_total", "Input events forwarded to the aggregator.", stats.Delivered),
		counter("injected_total", "Synthetic key presses that were discarded.", stats.Injected),
		counter("panics_total", "Panics recovered inside the hook callback.", stats.Panics),
	)
}

// FlushSucceeded records a committed flush of rows upserts.
func (m *Metrics) FlushSucceeded(d time.Duration, rows int) {
	m.flushes.WithLabelValues("ok").Inc()
	m.flushDuration.Observe(d.Seconds())
	m.flushRows.Add(float64(rows))
}

// FlushSkipped records a cycle with nothing to write.
func (m *Metrics) FlushSkipped() {
	m.flushes.WithLabelValues("empty").Inc()
}

// FlushFailed records a rolled back flush.
func (m *Metrics) FlushFailed(d time.Duration) {
	m.flushes.WithLabelValues("error").Inc()
	m.flushDuration.Observe(d.Seconds())
}

// SetHookInstalled flips the hook gauge.
func (m *Metrics) SetHookInstalled(installed bool) {
	if installed {
		m.hookInstalled.Set(1)
	} else {
		m.hookInstalled.Set(0)
	}
}

// SetBufferedKeys reports the size of the unflushed key counter.
func (m *Metrics) SetBufferedKeys(n int64) {
	m.bufferedKeys.Set(float64(n))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
