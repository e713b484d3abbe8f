// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the screenleads request pipeline.
package observability

import "github.com/prometheus/client_golang/prometheus"

// RequestBuckets covers API latencies from 5ms to 10s.
var RequestBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

var (
	// RequestsTotal counts all HTTP requests by method, status class, and route pattern.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenleads_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds by method and route pattern.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "screenleads_request_duration_seconds",
			Help:    "Request duration",
			Buckets: RequestBuckets,
		},
		[]string{"method", "route"},
	)

	// AuthAttemptsTotal counts bearer authentication stage outcomes.
	AuthAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenleads_auth_attempts_total",
			Help: "Bearer authentication outcomes",
		},
		[]string{"outcome"},
	)

	// APIKeyAttemptsTotal counts API key authentication outcomes.
	APIKeyAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenleads_apikey_attempts_total",
			Help: "API key authentication outcomes",
		},
		[]string{"outcome"},
	)

	// RestrictionActivationsTotal counts tenant restrictions put in place, by scope kind.
	RestrictionActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenleads_restriction_activations_total",
			Help: "Tenant restriction activations",
		},
		[]string{"scope"},
	)

	// RestrictionActivationFailuresTotal counts requests rejected because the
	// restriction could not be activated.
	RestrictionActivationFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screenleads_restriction_activation_failures_total",
			Help: "Tenant restriction activation failures",
		},
	)

	// RestrictionDeactivationsTotal counts restrictions removed at request end.
	RestrictionDeactivationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screenleads_restriction_deactivations_total",
			Help: "Tenant restriction deactivations",
		},
	)

	// RestrictionCleanupFailuresTotal counts deactivations that failed and were swallowed.
	RestrictionCleanupFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "screenleads_restriction_cleanup_failures_total",
			Help: "Tenant restriction cleanup failures",
		},
	)

	// ActiveRestrictions tracks requests currently running under a tenant restriction.
	ActiveRestrictions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "screenleads_restrictions_active",
			Help: "Requests running under a tenant restriction",
		},
	)

	// RealtimeSessions tracks connected realtime sessions.
	RealtimeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "screenleads_realtime_sessions_active",
			Help: "Connected realtime sessions",
		},
	)

	// RealtimeSubscriptions tracks destination subscriptions across all sessions.
	RealtimeSubscriptions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "screenleads_realtime_subscriptions_active",
			Help: "Active realtime subscriptions",
		},
	)

	// RateLimitRejectedTotal counts requests rejected by a rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "screenleads_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"limiter"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		AuthAttemptsTotal,
		APIKeyAttemptsTotal,
		RestrictionActivationsTotal,
		RestrictionActivationFailuresTotal,
		RestrictionDeactivationsTotal,
		RestrictionCleanupFailuresTotal,
		ActiveRestrictions,
		RealtimeSessions,
		RealtimeSubscriptions,
		RateLimitRejectedTotal,
	)
}
