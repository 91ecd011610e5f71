// Package metrics exposes the MoneyWise Prometheus metrics and holds the
// HTTP request metrics. Cache and rate limit metrics are defined in their
// own packages (cache, ratelimit) and registered via promauto.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by MoneyWise.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moneywise_http_requests_total",
		Help: "Total HTTP requests by method, route and status",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moneywise_http_request_duration_seconds",
		Help:    "HTTP request duration by method and route",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})
)

// ObserveRequest records one served HTTP request. route is the matched
// route pattern, not the raw path, to keep label cardinality bounded.
func ObserveRequest(method, route string, status int, duration time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	httpRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler serves every registered metric in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Metrics Documentation
//
// Cache Metrics (pkg/cache):
//   - moneywise_cache_hits_total{namespace} (Counter): Cache hits by key namespace
//   - moneywise_cache_misses_total{namespace} (Counter): Cache misses by key namespace
//   - moneywise_cache_written_bytes_total{namespace} (Counter): Encoded bytes written
//   - moneywise_cache_invalidations_total (Counter): Keys deleted by invalidation
//   - moneywise_cache_self_heals_total{namespace} (Counter): Undecodable entries purged
//   - moneywise_cache_degraded_total{operation} (Counter): Operations that fell back
//   - moneywise_cache_errors_total{operation, kind} (Counter): Failed operations by error kind
//   - moneywise_cache_breaker_transitions_total{from, to} (Counter): Circuit breaker state changes
//
// Retry Metrics (pkg/cache):
//   - moneywise_cache_retries_total{kind} (Counter): Retry attempts by error kind
//   - moneywise_cache_retry_backoff_seconds{kind} (Histogram): Backoff duration by error kind
//   - moneywise_cache_retry_exhausted_total{kind} (Counter): Operations that exhausted retries
//
// Rate Limit Metrics (pkg/ratelimit):
//   - moneywise_rate_limit_checks_total{type, outcome} (Counter): Checks by outcome
//   - moneywise_rate_limit_degraded_total (Counter): Requests allowed without Redis
//
// HTTP Metrics (pkg/metrics):
//   - moneywise_http_requests_total{method, route, status} (Counter)
//   - moneywise_http_request_duration_seconds{method, route} (Histogram)
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(moneywise_cache_hits_total[5m])) /
//   (sum(rate(moneywise_cache_hits_total[5m])) + sum(rate(moneywise_cache_misses_total[5m])))
//
//   # Redis trouble
//   sum by (kind) (rate(moneywise_cache_errors_total[5m]))
//
//   # P95 API Latency
//   histogram_quantile(0.95, rate(moneywise_http_request_duration_seconds_bucket[5m]))
