package cache

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for retry operations.
var (
	cacheRetriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moneywise_cache_retries_total",
		Help: "Total number of cache retry attempts by error kind",
	}, []string{"kind"})

	cacheRetryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "moneywise_cache_retry_backoff_seconds",
		Help:    "Backoff duration before cache retries by error kind",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"kind"})

	cacheRetryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moneywise_cache_retry_exhausted_total",
		Help: "Total number of cache operations that exhausted their retry attempts by error kind",
	}, []string{"kind"})
)

// RetryPolicy holds the configuration for retrying backend calls.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts (including the first one).
	MaxAttempts int

	// BaseDelay is the backoff ceiling before the first retry.
	BaseDelay time.Duration

	// MaxDelay caps the backoff ceiling.
	MaxDelay time.Duration

	// AttemptTimeout bounds every single attempt. Zero leaves attempts bounded
	// by the caller's context only.
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		AttemptTimeout: 5 * time.Second,
	}
}

// Backoff returns the upper bound of the wait before retry n (1-based):
// min(MaxDelay, BaseDelay * 2^(n-1)).
func (p RetryPolicy) Backoff(n int) time.Duration {
	if n < 1 || p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < n; i++ {
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
		if d > time.Duration(1<<62) {
			break
		}
		d *= 2
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// jitter picks a uniformly random duration in [0, d]. Replaced in tests.
var jitter = func(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(d) + 1))
}

// Operation is one attempt of a backend call. It is invoked once per attempt
// and must be safe to call repeatedly.
type Operation[T any] func(ctx context.Context) (T, error)

// Do runs fn until it succeeds, fails with a permanent error, or the policy
// runs out of attempts. Transient failures wait a fully jittered exponential
// backoff before the next attempt. Cancelling ctx stops the loop and returns ctx.Err().
func Do[T any](ctx context.Context, policy RetryPolicy, op string, fn Operation[T]) (T, error) {
	var zero T

	attempts := policy.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	var lastKind ErrorKind

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if policy.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, policy.AttemptTimeout)
		}
		v, err := fn(attemptCtx)
		cancel()

		if err == nil {
			if attempt > 1 {
				log.Info().
					Str("op", op).
					Int("attempt", attempt).
					Msg("Cache operation succeeded after retry")
			}
			return v, nil
		}

		// The caller gave up; its error wins over whatever the attempt reported.
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		lastErr = err
		lastKind = Classify(err)

		if !lastKind.Transient() {
			return zero, err
		}

		if attempt >= attempts {
			break
		}

		delay := jitter(policy.Backoff(attempt))
		cacheRetriesTotal.WithLabelValues(string(lastKind)).Inc()
		cacheRetryBackoffSeconds.WithLabelValues(string(lastKind)).Observe(delay.Seconds())

		log.Warn().
			Err(err).
			Str("op", op).
			Str("kind", string(lastKind)).
			Int("attempt", attempt).
			Dur("backoff", delay).
			Msg("Retrying cache operation after backoff")

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}

	cacheRetryExhaustedTotal.WithLabelValues(string(lastKind)).Inc()
	log.Error().
		Err(lastErr).
		Str("op", op).
		Str("kind", string(lastKind)).
		Int("max_attempts", attempts).
		Msg("Cache retry attempts exhausted")

	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetryExhausted, attempts, lastErr)
}
