package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName is the OpenTelemetry tracer name for cache operations.
const tracerName = "github.com/lykimq/MoneyWise/pkg/cache"

// Options tune a Service.
type Options struct {
	// Retry drives every backend call.
	Retry RetryPolicy

	// BreakerFailures is the number of consecutive transient failures that
	// opens the circuit breaker. Zero disables the breaker.
	BreakerFailures int

	// BreakerOpenTimeout is how long the breaker stays open before probing.
	BreakerOpenTimeout time.Duration

	// ComputeTimeout bounds a shared GetOrCompute load. It runs detached
	// from the caller that started it. Zero means DefaultComputeTimeout.
	ComputeTimeout time.Duration
}

// DefaultComputeTimeout bounds shared loads when Options.ComputeTimeout is unset.
const DefaultComputeTimeout = 30 * time.Second

// DefaultOptions returns the default service options.
func DefaultOptions() Options {
	return Options{
		Retry:              DefaultRetryPolicy(),
		BreakerFailures:    5,
		BreakerOpenTimeout: 30 * time.Second,
		ComputeTimeout:     DefaultComputeTimeout,
	}
}

// Service is a domain-agnostic cache over a Store. It retries transient
// backend failures, never lets a read failure reach the caller and treats
// deletes as best effort. Typed binds it to a value type.
type Service struct {
	store          Store
	retry          RetryPolicy
	breaker        *gobreaker.CircuitBreaker
	computeTimeout time.Duration
	logger         zerolog.Logger
}

// NewService creates a cache service over store.
func NewService(store Store, opts Options, logger zerolog.Logger) *Service {
	if store == nil {
		panic("cache store cannot be nil")
	}
	if opts.ComputeTimeout <= 0 {
		opts.ComputeTimeout = DefaultComputeTimeout
	}
	return &Service{
		store:          store,
		retry:          opts.Retry,
		breaker:        newBreaker(opts, logger),
		computeTimeout: opts.ComputeTimeout,
		logger:         logger,
	}
}

// New builds the connection pool described by cfg and a Service on top of it.
// Close releases the pool.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Service, error) {
	svc, _, err := Open(ctx, cfg, logger)
	return svc, err
}

// Open is New that also returns the pool, for callers that share its
// connections with other Redis users. The Service owns the pool.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (*Service, *Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	pool, err := NewPool(ctx, cfg.PoolConfig(), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("open cache pool: %w", err)
	}

	return NewService(NewRedisStore(pool), cfg.Options(), logger), pool, nil
}

func newBreaker(opts Options, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	if opts.BreakerFailures <= 0 {
		return nil
	}
	threshold := uint32(opts.BreakerFailures) //nolint:gosec // positive, checked above

	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "cache",
		MaxRequests: 1,
		Timeout:     opts.BreakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Only backend trouble counts against the breaker; a bad command does not.
		IsSuccessful: func(err error) bool {
			return err == nil || !Classify(err).Transient()
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			BreakerTransitions.WithLabelValues(from.String(), to.String()).Inc()
			logger.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Cache circuit breaker state change")
		},
	})
}

// guard runs fn through the circuit breaker when one is configured.
func guard[T any](s *Service, fn Operation[T]) Operation[T] {
	if s.breaker == nil {
		return fn
	}
	return func(ctx context.Context) (T, error) {
		res, err := s.breaker.Execute(func() (interface{}, error) {
			return fn(ctx)
		})
		if err != nil {
			var zero T
			return zero, err
		}
		v, _ := res.(T)
		return v, nil
	}
}

type lookup struct {
	data  []byte
	found bool
}

// fetch reads the raw payload under key with retries. The error is whatever
// the retry loop gave up with; callers decide how to degrade.
func (s *Service) fetch(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.Get",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.String("cache.key", key)),
	)
	defer span.End()

	res, err := Do(ctx, s.retry, "get", guard(s, func(ctx context.Context) (lookup, error) {
		data, found, err := s.store.Get(ctx, key)
		return lookup{data: data, found: found}, err
	}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cache get failed")
		CacheErrors.WithLabelValues("get", string(Classify(err))).Inc()
		return nil, false, err
	}

	ns := namespaceOf(key)
	span.SetAttributes(attribute.Bool("cache.hit", res.found))
	if !res.found {
		CacheMisses.WithLabelValues(ns).Inc()
		s.logger.Debug().Str("key", key).Msg("Cache miss")
		return nil, false, nil
	}

	CacheHits.WithLabelValues(ns).Inc()
	s.logger.Debug().Str("key", key).Int("bytes", len(res.data)).Msg("Cache hit")
	return res.data, true, nil
}

// write stores payload under key with retries.
func (s *Service) write(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.Set",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("cache.key", key),
			attribute.Int("cache.bytes", len(payload)),
			attribute.Int64("cache.ttl_ms", ttl.Milliseconds()),
		),
	)
	defer span.End()

	_, err := Do(ctx, s.retry, "set", guard(s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.Set(ctx, key, payload, ttl)
	}))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "cache set failed")
		CacheErrors.WithLabelValues("set", string(Classify(err))).Inc()
		s.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
		return err
	}

	CacheWrittenBytes.WithLabelValues(namespaceOf(key)).Add(float64(len(payload)))
	s.logger.Debug().
		Str("key", key).
		Int("bytes", len(payload)).
		Dur("ttl", ttl).
		Msg("Cache write")
	return nil
}

// Delete removes keys in one batch. Missing keys are not an error. When the
// backend stays unreachable through every retry the failure is logged and nil
// is returned; permanent failures are returned to the caller.
func (s *Service) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	ctx, span := otel.Tracer(tracerName).Start(ctx, "cache.Delete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(attribute.StringSlice("cache.keys", keys)),
	)
	defer span.End()

	_, err := Do(ctx, s.retry, "delete", guard(s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.Del(ctx, keys...)
	}))
	if err == nil {
		CacheInvalidations.Add(float64(len(keys)))
		s.logger.Debug().Strs("keys", keys).Msg("Cache invalidate")
		return nil
	}

	span.RecordError(err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	CacheErrors.WithLabelValues("delete", string(Classify(err))).Inc()
	if errors.Is(err, ErrRetryExhausted) {
		CacheDegraded.WithLabelValues("delete").Inc()
		s.logger.Warn().Err(err).Strs("keys", keys).Msg("Cache invalidate skipped, backend unavailable")
		return nil
	}

	span.SetStatus(codes.Error, "cache delete failed")
	s.logger.Error().Err(err).Strs("keys", keys).Msg("Cache invalidate failed")
	return err
}

// Ping checks that the backend is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Close releases the backend if it holds resources.
func (s *Service) Close() error {
	if c, ok := s.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
