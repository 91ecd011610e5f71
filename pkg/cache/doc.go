// Package cache provides a read-through/write-through cache over a
// Redis-compatible backend.
//
// The cache is domain-agnostic. It offers:
//
// - Typed put/get over any codec (JSON, Msgpack, CBOR)
// - Fail-open reads: backend trouble is reported as a miss, never as an error
// - Self-healing reads: an entry that does not decode is deleted
// - Best-effort batched deletes
// - Retries with exponential backoff and full jitter for transient failures
// - An optional circuit breaker in front of the backend
// - A fixed-size, round-robin connection pool
// - Prometheus metrics and OpenTelemetry spans
//
// # Basic Usage
//
//	cfg := cache.ConfigFromEnv(logger)
//
//	svc, err := cache.New(ctx, cfg, logger)
//	if err != nil {
//		return err
//	}
//	defer svc.Close()
//
//	overviews := cache.NewTyped(svc, codec.JSON[Overview]{})
//
//	if err := overviews.Put(ctx, "budget:overview:2024:01:USD", ov, cfg.TTL(cache.TTLOverview)); err != nil {
//		// backend unavailable after retries
//	}
//
//	ov, ok, err := overviews.Get(ctx, "budget:overview:2024:01:USD")
//	if err != nil {
//		// ctx is done
//	}
//	if !ok {
//		// miss, corrupt entry or degraded backend: load from the database
//	}
//
// # Error Kinds
//
// Backend errors are classified once, at the client boundary, into an
// ErrorKind. KindIO, KindTimeout and KindRedirect are retried; KindAuth,
// KindProtocol and KindOther are not.
//
// # Metrics
//
//   - moneywise_cache_hits_total{namespace} - Cache hits
//   - moneywise_cache_misses_total{namespace} - Cache misses
//   - moneywise_cache_written_bytes_total{namespace} - Payload bytes written
//   - moneywise_cache_invalidations_total - Keys deleted
//   - moneywise_cache_self_heals_total{namespace} - Corrupt entries purged
//   - moneywise_cache_degraded_total{operation} - Operations served degraded
//   - moneywise_cache_errors_total{operation, kind} - Backend errors
//   - moneywise_cache_breaker_transitions_total{from, to} - Breaker state changes
//   - moneywise_cache_retries_total{kind} - Retry attempts
//   - moneywise_cache_retry_backoff_seconds{kind} - Backoff before retries
//   - moneywise_cache_retry_exhausted_total{kind} - Operations out of attempts
package cache
