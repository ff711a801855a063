// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the registry every collector in this package is registered on.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

var (
	// HTTP
	HTTPRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route"},
	)

	HTTPRateLimited = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "http_rate_limited_total",
			Help: "Requests rejected by the per-IP rate limiter",
		},
	)

	// Authentication
	LoginAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by outcome",
		},
		[]string{"outcome"}, // success, invalid_credentials, locked, two_factor_required, error
	)

	AccountLockouts = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "auth_account_lockouts_total",
			Help: "Accounts locked after repeated failures",
		},
	)

	// Sessions
	SessionsCreated = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_created_total",
			Help: "Sessions created",
		},
	)

	SessionsEvicted = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "sessions_evicted_total",
			Help: "Sessions terminated to stay within the per-user limit",
		},
	)

	SessionsTerminated = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sessions_terminated_total",
			Help: "Sessions terminated by reason",
		},
		[]string{"reason"}, // logout, others, all, inactive
	)

	// Two-factor
	TwoFactorIssued = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twofactor_codes_issued_total",
			Help: "Verification codes issued by delivery result",
		},
		[]string{"result"}, // delivered, failed
	)

	TwoFactorVerifications = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "twofactor_verifications_total",
			Help: "Verification attempts by outcome",
		},
		[]string{"outcome"}, // success, invalid, expired, exhausted
	)

	// Background jobs
	JobRuns = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Scheduled job runs by job and result",
		},
		[]string{"job", "result"},
	)

	JobAffected = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_affected_rows_total",
			Help: "Rows changed or removed by scheduled jobs",
		},
		[]string{"job"},
	)
)

// Handler serves Registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}
