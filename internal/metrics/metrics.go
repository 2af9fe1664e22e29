// Package metrics provides Prometheus instrumentation for the risk service.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route pattern, and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskguard",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status class.",
		},
		[]string{"method", "route", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riskguard",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	// DecisionsTotal counts scored events by event type and action.
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskguard",
			Name:      "decisions_total",
			Help:      "Total risk decisions by event type and action.",
		},
		[]string{"event_type", "action"},
	)

	// ReasonsTotal counts fired reason codes.
	ReasonsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskguard",
			Name:      "reasons_total",
			Help:      "Total reason codes attached to decisions.",
		},
		[]string{"reason"},
	)

	// EvaluationDuration observes the time spent gathering signals and deciding.
	EvaluationDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riskguard",
		Name:      "evaluation_duration_seconds",
		Help:      "Time to gather signals and decide, in seconds.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1},
	})

	// SignalDegradedTotal counts signal reads that failed and contributed nothing.
	SignalDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskguard",
			Name:      "signal_degraded_total",
			Help:      "Signal reads that failed or timed out.",
		},
		[]string{"signal"},
	)

	// PersistenceFailuresTotal counts failed writes after a decision was made.
	PersistenceFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riskguard",
			Name:      "persistence_failures_total",
			Help:      "Failed device registry upserts and ledger appends.",
		},
		[]string{"store"},
	)

	// AuditWritesInFlight tracks ledger appends not yet completed.
	AuditWritesInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riskguard",
		Name:      "audit_writes_in_flight",
		Help:      "Ledger appends currently running.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DecisionsTotal,
		ReasonsTotal,
		EvaluationDuration,
		SignalDegradedTotal,
		PersistenceFailuresTotal,
		AuditWritesInFlight,
	)
}

// Handler returns the Prometheus metrics HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRequest records one served request. route must be the mux pattern,
// never the raw path, to keep label cardinality bounded.
func ObserveRequest(method, route string, status int, seconds float64) {
	HTTPRequestDuration.WithLabelValues(method, route).Observe(seconds)
	HTTPRequestsTotal.WithLabelValues(method, route, StatusBucket(status)).Inc()
}

// StatusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func StatusBucket(code int) string {
	if code < 100 || code > 599 {
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code/100) + "xx"
}
