// Package observability provides Prometheus metrics for the batch read engine.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors shared by the read engine.
type Metrics struct {
	// Aggregate path
	AggregateCalls  *prometheus.CounterVec
	BatchSize       prometheus.Histogram
	FallbackBursts  prometheus.Counter
	FailedSlots     *prometheus.CounterVec
	AggregateTiming prometheus.Histogram

	// Supplementary data
	ExternalRequests *prometheus.CounterVec

	// Poller
	SnapshotsWritten prometheus.Counter
	LastSnapshot     prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a Metrics instance registered on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "vaultscope"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		AggregateCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "aggregate_calls_total",
			Help:      "Aggregate read submissions by outcome.",
		}, []string{"outcome"}),
		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Number of calls per aggregate submission.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		FallbackBursts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fallback_bursts_total",
			Help:      "Times the per-call fallback path was taken.",
		}),
		FailedSlots: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failed_slots_total",
			Help:      "Result slots that degraded to null data.",
		}, []string{"path"}),
		AggregateTiming: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregate_duration_seconds",
			Help:      "Latency of batch execution including fallback.",
			Buckets:   prometheus.DefBuckets,
		}),
		ExternalRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "external_requests_total",
			Help:      "Platform and explorer API requests by source and outcome.",
		}, []string{"source", "outcome"}),
		SnapshotsWritten: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_written_total",
			Help:      "Yield snapshots persisted.",
		}),
		LastSnapshot: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_snapshot_timestamp_seconds",
			Help:      "Unix time of the last successful snapshot write.",
		}),
		registry: reg,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler serving the metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveExternal records an external API request outcome. Safe on a nil receiver.
func (m *Metrics) ObserveExternal(source string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ExternalRequests.WithLabelValues(source, outcome).Inc()
}
