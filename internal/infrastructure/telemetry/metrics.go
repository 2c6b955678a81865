package telemetry

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "salesplan"

// Assistant outcomes
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Metrics holds the Prometheus collectors for the service on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	asks          *prometheus.CounterVec
	guardRejects  *prometheus.CounterVec
	guardRepairs  prometheus.Counter
	queryDuration *prometheus.HistogramVec
	cacheLookups  *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors, including Go runtime and
// process collectors.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		asks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "assistant",
				Name:      "questions_total",
				Help:      "Questions answered by the assistant by route source and outcome",
			},
			[]string{"source", "outcome"},
		),
		guardRejects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "guard",
				Name:      "rejections_total",
				Help:      "Generated statements rejected by the SQL guard, by reason",
			},
			[]string{"reason"},
		),
		guardRepairs: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "guard",
				Name:      "repairs_total",
				Help:      "Generated statements rewritten by the SQL guard",
			},
		),
		queryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "db",
				Name:      "query_duration_seconds",
				Help:      "Read query latency in seconds by kind",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"kind"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Preview cache lookups by result",
			},
			[]string{"result"},
		),
	}

	registry.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.asks,
		m.guardRejects,
		m.guardRepairs,
		m.queryDuration,
		m.cacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// RegisterDBStats exports connection pool statistics for db.
func (m *Metrics) RegisterDBStats(db *sql.DB, dbName string) error {
	return m.registry.Register(collectors.NewDBStatsCollector(db, dbName))
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// ObserveHTTP records one finished HTTP request.
func (m *Metrics) ObserveHTTP(method, route, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, status).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ObserveAsk records one assistant question.
func (m *Metrics) ObserveAsk(source, outcome string) {
	if m == nil {
		return
	}
	m.asks.WithLabelValues(source, outcome).Inc()
}

// ObserveGuardRejection records a guard rejection reason.
func (m *Metrics) ObserveGuardRejection(reason string) {
	if m == nil {
		return
	}
	m.guardRejects.WithLabelValues(reason).Inc()
}

// ObserveGuardRepair records a statement changed by the guard.
func (m *Metrics) ObserveGuardRepair() {
	if m == nil {
		return
	}
	m.guardRepairs.Inc()
}

// ObserveQuery records the latency of a read query.
func (m *Metrics) ObserveQuery(kind string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.queryDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// ObserveCache records a preview cache hit or miss.
func (m *Metrics) ObserveCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}
