package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus collectors for the query workflow. A
// dedicated registry keeps test instances from colliding on the default
// global one.
type Metrics struct {
	registry *prometheus.Registry

	queriesTotal   *prometheus.CounterVec
	queryDuration  prometheus.Histogram
	stageDuration  *prometheus.HistogramVec
	ingestionRuns  prometheus.Counter
	cacheHitsTotal *prometheus.CounterVec
}

// New creates a metrics set backed by its own registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		queriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "queries_total",
			Help:      "Repurposing queries processed, by outcome.",
		}, []string{"status"}),
		queryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nexus",
			Name:      "query_duration_seconds",
			Help:      "End-to-end query workflow duration.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "nexus",
			Name:      "stage_duration_seconds",
			Help:      "Per-stage execution duration, by stage and outcome.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 120},
		}, []string{"stage", "status"}),
		ingestionRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "ingestion_runs_total",
			Help:      "Literature ingestion runs triggered by missing graph coverage.",
		}),
		cacheHitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nexus",
			Name:      "cache_requests_total",
			Help:      "Result cache lookups, by outcome.",
		}, []string{"outcome"}),
	}

	registry.MustRegister(
		m.queriesTotal,
		m.queryDuration,
		m.stageDuration,
		m.ingestionRuns,
		m.cacheHitsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveQuery records one finished workflow.
func (m *Metrics) ObserveQuery(status string, d time.Duration) {
	m.queriesTotal.WithLabelValues(status).Inc()
	m.queryDuration.Observe(d.Seconds())
}

// ObserveStage records one finished stage.
func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// IncIngestion counts an ingestion run.
func (m *Metrics) IncIngestion() {
	m.ingestionRuns.Inc()
}

// ObserveCache counts a result cache lookup. outcome is "hit" or "miss".
func (m *Metrics) ObserveCache(outcome string) {
	m.cacheHitsTotal.WithLabelValues(outcome).Inc()
}
