package cache

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CacheHits tracks cache hits by key namespace
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moneywise_cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"namespace"}, // "budget:overview", "budget:categories", "budget:item"
	)

	// CacheMisses tracks cache misses by key namespace
	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moneywise_cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"namespace"},
	)

	// CacheWrittenBytes tracks payload bytes written to the backend
	CacheWrittenBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moneywise_cache_written_bytes_total",
			Help: "Total number of payload bytes written to the cache",
		},
		[]string{"namespace"},
	)

	// CacheInvalidations tracks deleted keys
	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "moneywise_cache_invalidations_total",
			Help: "Total number of cache keys invalidated",
		},
	)

	// CacheSelfHeals tracks undecodable entries purged on read
	CacheSelfHeals = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moneywise_cache_self_heals_total",
			Help: "Total number of corrupted cache entries purged on read",
		},
		[]string{"namespace"},
	)

	// CacheDegraded tracks operations that fell back instead of failing the caller
	CacheDegraded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moneywise_cache_degraded_total",
			Help: "Total number of cache operations served in degraded mode",
		},
		[]string{"operation"}, // "get", "delete"
	)

	// CacheErrors tracks cache operation errors
	CacheErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moneywise_cache_errors_total",
			Help: "Total number of cache operation errors",
		},
		[]string{"operation", "kind"},
	)

	// BreakerTransitions tracks circuit breaker state changes
	BreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moneywise_cache_breaker_transitions_total",
			Help: "Total number of cache circuit breaker state transitions",
		},
		[]string{"from", "to"},
	)
)

// namespaceOf returns the first two segments of a key, used as a metric label.
func namespaceOf(key string) string {
	first, rest, ok := strings.Cut(key, ":")
	if !ok {
		return first
	}
	second, _, _ := strings.Cut(rest, ":")
	return first + ":" + second
}
