// Package metrics holds the Prometheus collectors shared across packages.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthnexus_cache_hits_total",
		Help: "Read-through cache hits by entity.",
	}, []string{"entity"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthnexus_cache_misses_total",
		Help: "Read-through cache misses by entity.",
	}, []string{"entity"})

	CacheErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthnexus_cache_errors_total",
		Help: "Cache store operations that failed and were absorbed.",
	}, []string{"op"})

	CacheInvalidations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "healthnexus_cache_invalidated_keys_total",
		Help: "Cache keys deleted by pattern invalidation.",
	})

	RateLimitRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "healthnexus_rate_limit_rejections_total",
		Help: "Requests rejected by the rate limiter.",
	})

	AppointmentTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "healthnexus_appointment_transitions_total",
		Help: "Appointment status transitions by source and target status.",
	}, []string{"from", "to"})

	IndexesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "healthnexus_indexes_created_total",
		Help: "Indexes created by the optimizer.",
	})
)

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
