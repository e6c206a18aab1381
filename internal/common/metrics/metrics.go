// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WizardTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wizard_transitions_total",
			Help: "Total number of step transitions attempted, by outcome",
		},
		[]string{"surface", "outcome"},
	)

	WizardPersistDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wizard_persist_duration_seconds",
			Help:    "Duration of persistence gateway calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "status"},
	)

	WizardSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wizard_sessions_active",
			Help: "Number of open wizard sessions",
		},
	)

	ApplicationCacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "application_cache_requests_total",
			Help: "Application cache lookups, by result",
		},
		[]string{"result"},
	)

	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests handled",
		},
		[]string{"method", "route", "status"},
	)
)
