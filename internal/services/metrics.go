package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vocalis/internal/cache"
)

// Metrics holds all custom Prometheus metrics for the application
type Metrics struct {
	// Session lifecycle
	SessionsCreated   prometheus.Counter
	SessionsCompleted prometheus.Counter

	// Event ingestion
	EventsAppended  prometheus.Counter
	EventDuplicates prometheus.Counter

	// Session snapshot cache
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	BreakerTransitions *prometheus.CounterVec
}

var globalMetrics *Metrics

// InitMetrics initializes the Prometheus metrics. breakerState reports
// the cache breaker state for the gauge (nil disables it).
func InitMetrics(breakerState func() cache.State) *Metrics {
	metrics := &Metrics{
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vocalis_sessions_created_total",
			Help: "Total number of session create operations (including idempotent re-creates)",
		}),
		SessionsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vocalis_sessions_completed_total",
			Help: "Total number of sessions transitioned to completed",
		}),
		EventsAppended: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vocalis_events_appended_total",
			Help: "Total number of events appended to sessions",
		}),
		EventDuplicates: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vocalis_event_duplicates_total",
			Help: "Total number of duplicate event submissions resolved to the existing event",
		}),
		CacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vocalis_session_cache_hits_total",
			Help: "Total number of session snapshot cache hits",
		}),
		CacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vocalis_session_cache_misses_total",
			Help: "Total number of session snapshot cache misses (including breaker short-circuits)",
		}),
		BreakerTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vocalis_cache_breaker_transitions_total",
			Help: "Total number of cache circuit breaker state transitions",
		}, []string{"from", "to"}),
	}

	if breakerState != nil {
		prometheus.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: "vocalis_cache_breaker_state",
				Help: "Cache circuit breaker state (0=closed, 1=half_open, 2=open)",
			},
			func() float64 {
				switch breakerState() {
				case cache.StateOpen:
					return 2
				case cache.StateHalfOpen:
					return 1
				default:
					return 0
				}
			},
		))
	}

	globalMetrics = metrics
	return metrics
}

// GetMetrics returns the global metrics instance
func GetMetrics() *Metrics {
	return globalMetrics
}
