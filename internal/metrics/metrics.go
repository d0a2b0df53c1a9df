// Package metrics provides Prometheus instrumentation for the relay SDK.
//
// All collectors live in a private [prometheus.Registry] so SDK metrics
// never collide with the embedding application's; expose them via
// [Metrics.Handler] if wanted.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Push-event handling outcomes.
const (
	PushApplied   = "applied"
	PushRefetched = "refetched"
	PushEmpty     = "empty"
	PushError     = "error"
)

// Metrics holds all Prometheus collectors used by a relay client.
type Metrics struct {
	Registry *prometheus.Registry

	FetchesTotal        *prometheus.CounterVec
	FetchDuration       prometheus.Histogram
	PushEventsTotal     *prometheus.CounterVec
	SnapshotFlags       prometheus.Gauge
	SnapshotsTotal      prometheus.Counter
	PersistFailures     prometheus.Counter
	ActiveSubscriptions prometheus.Gauge
}

// New creates and registers all relay client metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		FetchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_fetches_total",
			Help: "Total number of flag fetches.",
		}, []string{"result"}),

		FetchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_fetch_duration_seconds",
			Help:    "Flag fetch latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}),

		PushEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_push_events_total",
			Help: "Total number of push channel events by handling outcome.",
		}, []string{"action"}),

		SnapshotFlags: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_snapshot_flags",
			Help: "Number of flags in the current snapshot.",
		}),

		SnapshotsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_snapshot_replacements_total",
			Help: "Total number of snapshot replacements.",
		}),

		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_persist_failures_total",
			Help: "Total number of swallowed snapshot persistence failures.",
		}),

		ActiveSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relay_active_subscriptions",
			Help: "Number of registered change listeners.",
		}),
	}

	reg.MustRegister(
		m.FetchesTotal,
		m.FetchDuration,
		m.PushEventsTotal,
		m.SnapshotFlags,
		m.SnapshotsTotal,
		m.PersistFailures,
		m.ActiveSubscriptions,
	)

	return m
}

// Handler returns an [http.Handler] that serves the SDK's metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordFetch records one fetch attempt and its latency.
func (m *Metrics) RecordFetch(start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.FetchesTotal.WithLabelValues(result).Inc()
	m.FetchDuration.Observe(time.Since(start).Seconds())
}

// RecordPushEvent counts one push channel event by outcome.
func (m *Metrics) RecordPushEvent(action string) {
	m.PushEventsTotal.WithLabelValues(action).Inc()
}

// RecordSnapshot updates the snapshot gauges after a replacement.
func (m *Metrics) RecordSnapshot(size int) {
	m.SnapshotFlags.Set(float64(size))
	m.SnapshotsTotal.Inc()
}
