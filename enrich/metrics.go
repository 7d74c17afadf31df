package enrich

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the enrichment pipeline.
type Metrics struct {
	Registry      *prometheus.Registry
	ItemsTotal    *prometheus.CounterVec
	FetchesTotal  *prometheus.CounterVec
	FetchDuration prometheus.Histogram
	CoversTotal   *prometheus.CounterVec
	BatchAborts   prometheus.Counter
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	items := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_items_total",
			Help: "Identifiers processed by final state.",
		},
		[]string{"state"},
	)
	fetches := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_fetches_total",
			Help: "Upstream fetches by source and outcome.",
		},
		[]string{"source", "outcome"},
	)
	fetchDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "enrich_fetch_duration_seconds",
			Help:    "Upstream fetch latency.",
			Buckets: prometheus.DefBuckets,
		},
	)
	covers := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "enrich_covers_total",
			Help: "Cover fetch attempts by outcome.",
		},
		[]string{"outcome"},
	)
	aborts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "enrich_batch_aborts_total",
			Help: "Batch runs aborted by an upstream block signal.",
		},
	)

	registry.MustRegister(items, fetches, fetchDuration, covers, aborts)

	return &Metrics{
		Registry:      registry,
		ItemsTotal:    items,
		FetchesTotal:  fetches,
		FetchDuration: fetchDuration,
		CoversTotal:   covers,
		BatchAborts:   aborts,
	}
}

// IncItem increments the per-state item counter.
func (m *Metrics) IncItem(state string) {
	if m == nil {
		return
	}
	m.ItemsTotal.WithLabelValues(state).Inc()
}

// ObserveFetch records one upstream fetch.
func (m *Metrics) ObserveFetch(sourceName, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchesTotal.WithLabelValues(sourceName, outcome).Inc()
	m.FetchDuration.Observe(d.Seconds())
}

// IncCover increments the cover outcome counter.
func (m *Metrics) IncCover(outcome string) {
	if m == nil {
		return
	}
	m.CoversTotal.WithLabelValues(outcome).Inc()
}

// IncAbort counts a batch aborted by a block signal.
func (m *Metrics) IncAbort() {
	if m == nil {
		return
	}
	m.BatchAborts.Inc()
}
