// Package metrics holds the Prometheus collectors of the query engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "kpiq"

	MetricQueriesTotal        = "queries_total"
	MetricQueryDuration       = "query_duration_seconds"
	MetricPoolConnections     = "pool_connections"
	MetricCatalogLoadsTotal   = "catalog_loads_total"
	MetricPartialResultsTotal = "partial_results_total"
)

// Outcome label values besides an error kind.
const OutcomeSuccess = "success"

// Metrics is the set of engine collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Queries        *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	CatalogLoads   *prometheus.CounterVec
	PartialResults prometheus.Counter

	registerer prometheus.Registerer
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Queries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricQueriesTotal,
				Help:      "Query requests by backend, mode and outcome.",
			},
			[]string{"backend", "mode", "outcome"},
		),
		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      MetricQueryDuration,
				Help:      "Query request latency.",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"backend", "mode"},
		),
		CatalogLoads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricCatalogLoadsTotal,
				Help:      "Schema provider round trips by kind (tables, rows).",
			},
			[]string{"kind"},
		),
		PartialResults: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      MetricPartialResultsTotal,
				Help:      "Results returned with conditions left unevaluated.",
			},
		),
		registerer: reg,
	}
	if reg != nil {
		reg.MustRegister(m.Queries, m.QueryDuration, m.CatalogLoads, m.PartialResults)
	}
	return m
}

// ObserveQuery records one finished request.
func (m *Metrics) ObserveQuery(backend, mode, outcome string, elapsed time.Duration, partial bool) {
	if m == nil {
		return
	}
	m.Queries.WithLabelValues(backend, mode, outcome).Inc()
	m.QueryDuration.WithLabelValues(backend, mode).Observe(elapsed.Seconds())
	if partial {
		m.PartialResults.Inc()
	}
}

// CatalogLoaded counts a provider round trip. It matches catalog.OnLoad.
func (m *Metrics) CatalogLoaded(kind string) {
	if m == nil {
		return
	}
	m.CatalogLoads.WithLabelValues(kind).Inc()
}

// RegisterPoolGauge exposes the live connection count reported by fn.
func (m *Metrics) RegisterPoolGauge(fn func() float64) {
	if m == nil || m.registerer == nil {
		return
	}
	m.registerer.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      MetricPoolConnections,
			Help:      "Live connections held by the networked backend pool.",
		},
		fn,
	))
}
