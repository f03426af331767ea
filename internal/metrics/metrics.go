// Package metrics provides Prometheus instrumentation for the rule evaluation
// server.
//
// All metrics are registered in a custom [prometheus.Registry] (not the global
// default) so that only service metrics appear on the /metrics endpoint.
package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/liamcoop/ruleeval/rules"
)

// Metrics holds all Prometheus collectors used by the server.
type Metrics struct {
	Registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	EvaluationsTotal    prometheus.Counter
	EvaluationDuration  prometheus.Histogram
	RuleOutcomesTotal   *prometheus.CounterVec
	SnapshotLoadsTotal  *prometheus.CounterVec
	DBOpenConnections   prometheus.Gauge
	DBInUseConnections  prometheus.Gauge
	DBIdleConnections   prometheus.Gauge
}

// New creates and registers all metrics in a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ruleeval_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ruleeval_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),

		EvaluationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ruleeval_evaluations_total",
			Help: "Total number of payload evaluations.",
		}),

		EvaluationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ruleeval_evaluation_duration_seconds",
			Help:    "Time to evaluate every rule against one payload.",
			Buckets: prometheus.DefBuckets,
		}),

		RuleOutcomesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ruleeval_rule_outcomes_total",
			Help: "Per-rule evaluation outcomes (matched, unmatched, error).",
		}, []string{"outcome"}),

		SnapshotLoadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ruleeval_snapshot_loads_total",
			Help: "Rule and variable snapshot loads by source (cache, store).",
		}, []string{"source"}),

		DBOpenConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruleeval_db_open_connections",
			Help: "Number of established database connections.",
		}),

		DBInUseConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruleeval_db_in_use_connections",
			Help: "Number of database connections currently in use.",
		}),

		DBIdleConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ruleeval_db_idle_connections",
			Help: "Number of idle database connections.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.EvaluationsTotal,
		m.EvaluationDuration,
		m.RuleOutcomesTotal,
		m.SnapshotLoadsTotal,
		m.DBOpenConnections,
		m.DBInUseConnections,
		m.DBIdleConnections,
	)

	return m
}

// Handler returns an [http.Handler] that serves Prometheus metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware records request count and latency per chi route pattern, so
// /api/v1/rules/1 and /api/v1/rules/2 share a series.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		m.HTTPRequestsTotal.WithLabelValues(r.Method, route, code).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, route, code).Observe(time.Since(start).Seconds())
	})
}

// ObserveEvaluation records one payload evaluation and its latency.
func (m *Metrics) ObserveEvaluation(d time.Duration) {
	m.EvaluationsTotal.Inc()
	m.EvaluationDuration.Observe(d.Seconds())
}

// RecordRuleOutcome implements rules.Recorder.
func (m *Metrics) RecordRuleOutcome(outcome rules.Outcome) {
	m.RuleOutcomesTotal.WithLabelValues(string(outcome)).Inc()
}

// RecordSnapshotLoad implements rules.Recorder.
func (m *Metrics) RecordSnapshotLoad(cached bool) {
	source := "store"
	if cached {
		source = "cache"
	}
	m.SnapshotLoadsTotal.WithLabelValues(source).Inc()
}

// SetDBStats updates the connection pool gauges.
func (m *Metrics) SetDBStats(stats sql.DBStats) {
	m.DBOpenConnections.Set(float64(stats.OpenConnections))
	m.DBInUseConnections.Set(float64(stats.InUse))
	m.DBIdleConnections.Set(float64(stats.Idle))
}
