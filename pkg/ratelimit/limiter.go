package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Prometheus metrics for rate limiting.
var (
	rateLimitChecksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "moneywise_rate_limit_checks_total",
		Help: "Total number of rate limit checks by transaction type and outcome",
	}, []string{"type", "outcome"})

	rateLimitDegradedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "moneywise_rate_limit_degraded_total",
		Help: "Total number of requests allowed without counting because Redis failed",
	})
)

// incrementScript increments a window counter and sets its expiry on the
// first hit, atomically.
// KEYS[1] = counter key
// ARGV[1] = expiry in seconds
var incrementScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('EXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// ClientSource hands out Redis connections. *cache.Pool satisfies it.
type ClientSource interface {
	Select() *redis.Client
}

// Limiter counts requests per client in fixed windows stored in Redis.
type Limiter struct {
	clients ClientSource
	logger  zerolog.Logger
	now     func() time.Time
}

// NewLimiter creates a limiter drawing connections from clients.
func NewLimiter(clients ClientSource, logger zerolog.Logger) *Limiter {
	if clients == nil {
		panic("rate limiter client source cannot be nil")
	}
	return &Limiter{
		clients: clients,
		logger:  logger,
		now:     time.Now,
	}
}

// Check records one request for key and reports whether it is allowed.
// When Redis cannot be reached the request is allowed and the result is
// marked Degraded; Check itself never fails.
func (l *Limiter) Check(ctx context.Context, key Key) Result {
	now := l.now()
	start := windowStart(now)
	redisKey := key.RedisKey(start)

	count, err := l.increment(ctx, redisKey)
	if err != nil {
		rateLimitDegradedTotal.Inc()
		l.logger.Warn().
			Err(err).
			Str("key", redisKey).
			Msg("Rate limit check failed, allowing request")

		res := newResult(key.Type, 1, start, now)
		res.Degraded = true
		return res
	}

	res := newResult(key.Type, count, start, now)
	if !res.Allowed {
		rateLimitChecksTotal.WithLabelValues(string(key.Type), "limited").Inc()
		l.logger.Info().
			Str("ip", key.IP).
			Str("device_id", key.DeviceID).
			Str("type", string(key.Type)).
			Int("count", count).
			Dur("retry_after", res.RetryAfter).
			Msg("Rate limit exceeded")
		return res
	}

	rateLimitChecksTotal.WithLabelValues(string(key.Type), "allowed").Inc()
	return res
}

// Reset drops the counter of the current window for key.
func (l *Limiter) Reset(ctx context.Context, key Key) error {
	redisKey := key.RedisKey(windowStart(l.now()))
	if err := l.clients.Select().Del(ctx, redisKey).Err(); err != nil {
		return fmt.Errorf("reset rate limit %s: %w", redisKey, err)
	}
	return nil
}

func (l *Limiter) increment(ctx context.Context, redisKey string) (int, error) {
	ttl := int64((Window + ExpiryBuffer) / time.Second)

	count, err := incrementScript.Run(ctx, l.clients.Select(), []string{redisKey}, ttl).Int()
	if err != nil {
		return 0, fmt.Errorf("increment rate limit counter: %w", err)
	}
	return count, nil
}
