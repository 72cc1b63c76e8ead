// Package metrics provides Prometheus metrics for crm-hub.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution outcomes.
const (
	OutcomeResolved  = "resolved"
	OutcomeNoProfile = "no_profile"
	OutcomeTimeout   = "timeout"
	OutcomeExhausted = "exhausted"
	OutcomeCancelled = "cancelled"
)

var (
	// ProfileQueryAttemptsTotal counts individual profile queries by status.
	ProfileQueryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crmhub",
			Name:      "profile_query_attempts_total",
			Help:      "Total number of profile query attempts",
		},
		[]string{"status"},
	)

	// ProfileResolutionsTotal counts profile resolutions by outcome.
	ProfileResolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crmhub",
			Name:      "profile_resolutions_total",
			Help:      "Total number of profile resolutions",
		},
		[]string{"outcome"},
	)

	// ProfileResolutionDuration measures end-to-end resolution latency.
	ProfileResolutionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crmhub",
			Name:      "profile_resolution_duration_seconds",
			Help:      "Duration of profile resolutions in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15},
		},
		[]string{"outcome"},
	)

	// SignOutsTotal counts sign-outs by trigger.
	SignOutsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crmhub",
			Name:      "sign_outs_total",
			Help:      "Total number of sign-outs",
		},
		[]string{"trigger"},
	)

	// SessionCacheLookupsTotal counts session cache fast-path checks.
	SessionCacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crmhub",
			Name:      "session_cache_lookups_total",
			Help:      "Total number of session cache lookups on controller start",
		},
		[]string{"result"},
	)

	// RateLimitedTotal counts requests rejected by a rate limiter.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crmhub",
			Name:      "rate_limited_requests_total",
			Help:      "Total number of requests rejected by rate limiting",
		},
		[]string{"limiter"},
	)

	// ActiveControllers tracks live session controllers.
	ActiveControllers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "crmhub",
			Name:      "active_session_controllers",
			Help:      "Number of live session controllers",
		},
	)
)

// RecordAttempt records a single profile query attempt.
func RecordAttempt(status string) {
	ProfileQueryAttemptsTotal.WithLabelValues(status).Inc()
}

// RecordResolution records a finished profile resolution.
func RecordResolution(outcome string, seconds float64) {
	ProfileResolutionsTotal.WithLabelValues(outcome).Inc()
	ProfileResolutionDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordSignOut records a sign-out by trigger ("user", "forced", "deactivated", "overtaken").
func RecordSignOut(trigger string) {
	SignOutsTotal.WithLabelValues(trigger).Inc()
}

// RecordCacheLookup records a fast-path cache check ("hit" or "miss").
func RecordCacheLookup(result string) {
	SessionCacheLookupsTotal.WithLabelValues(result).Inc()
}
