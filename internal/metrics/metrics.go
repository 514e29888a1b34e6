// Package metrics provides Prometheus instrumentation for Athenaeum.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the server.
type Metrics struct {
	registry *prometheus.Registry

	// BorrowAttempts counts borrow operations by outcome
	// (success, unavailable, conflict, error).
	BorrowAttempts *prometheus.CounterVec

	// ReturnAttempts counts return operations by outcome
	// (success, already_available, not_holder, conflict, error).
	ReturnAttempts *prometheus.CounterVec

	// VersionConflicts counts optimistic concurrency retries lost at
	// commit time, by operation.
	VersionConflicts *prometheus.CounterVec

	// EventsAppended counts events appended to the lending log by action.
	EventsAppended *prometheus.CounterVec

	// HTTPRequestDuration observes request latency by method, route and
	// status code.
	HTTPRequestDuration *prometheus.HistogramVec

	// HTTPRequestsInFlight tracks currently executing requests.
	HTTPRequestsInFlight prometheus.Gauge
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		BorrowAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "athenaeum",
				Subsystem: "lending",
				Name:      "borrow_attempts_total",
				Help:      "Borrow operations by outcome.",
			},
			[]string{"outcome"},
		),

		ReturnAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "athenaeum",
				Subsystem: "lending",
				Name:      "return_attempts_total",
				Help:      "Return operations by outcome.",
			},
			[]string{"outcome"},
		),

		VersionConflicts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "athenaeum",
				Subsystem: "lending",
				Name:      "version_conflicts_total",
				Help:      "Commits rejected by the optimistic concurrency check.",
			},
			[]string{"operation"},
		),

		EventsAppended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "athenaeum",
				Subsystem: "lending",
				Name:      "events_appended_total",
				Help:      "Events appended to the lending log by action.",
			},
			[]string{"action"},
		),

		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "athenaeum",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request latency.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),

		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "athenaeum",
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Currently executing HTTP requests.",
			},
		),
	}

	registry.MustRegister(
		m.BorrowAttempts,
		m.ReturnAttempts,
		m.VersionConflicts,
		m.EventsAppended,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
	)

	return m
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, duration time.Duration) {
	m.HTTPRequestDuration.
		WithLabelValues(method, route, strconv.Itoa(status)).
		Observe(duration.Seconds())
}
