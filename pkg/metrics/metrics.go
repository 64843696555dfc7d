// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	authAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_auth_attempts_total",
			Help: "Authentication attempts by outcome",
		},
		[]string{"outcome"},
	)

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_operations_total",
			Help: "Account service operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "account_http_request_duration_seconds",
			Help:    "HTTP request latency by method, route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "account_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter, by route",
		},
		[]string{"route"},
	)

	registerOnce sync.Once
)

// Register adds the collectors to reg. Safe to call more than once; only the
// first call registers.
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(authAttempts, operations, httpDuration, rateLimited)
	})
}

// RecordAuthAttempt counts an authentication attempt ("success", "failure", "error").
func RecordAuthAttempt(outcome string) {
	authAttempts.WithLabelValues(outcome).Inc()
}

// RecordOperation counts a service operation with its outcome.
func RecordOperation(operation, outcome string) {
	operations.WithLabelValues(operation, outcome).Inc()
}

// ObserveHTTP records one HTTP request.
func ObserveHTTP(method, route, status string, seconds float64) {
	httpDuration.WithLabelValues(method, route, status).Observe(seconds)
}

// RecordRateLimited counts a request rejected with 429.
func RecordRateLimited(route string) {
	rateLimited.WithLabelValues(route).Inc()
}
