package cache

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lykimq/MoneyWise/pkg/codec"
	"github.com/rs/zerolog"
)

// TTLClass groups cached data by how quickly it goes stale.
type TTLClass string

const (
	// TTLOverview is for aggregates over a whole period. Longest lived.
	TTLOverview TTLClass = "overview"

	// TTLCollection is for per-category breakdowns. Shortest lived.
	TTLCollection TTLClass = "collection"

	// TTLItem is for single records.
	TTLItem TTLClass = "item"
)

// Environment variables read by LoadConfig.
const (
	EnvRedisURL           = "REDIS_URL"
	EnvOverviewTTL        = "CACHE_OVERVIEW_TTL_SECS"
	EnvCategoriesTTL      = "CACHE_CATEGORIES_TTL_SECS"
	EnvBudgetTTL          = "CACHE_BUDGET_TTL_SECS"
	EnvMaxConnections     = "REDIS_MAX_CONNECTIONS"
	EnvConnectionTimeout  = "REDIS_CONNECTION_TIMEOUT_SECS"
	EnvRetryAttempts      = "REDIS_RETRY_ATTEMPTS"
	EnvRetryBaseDelay     = "REDIS_RETRY_BASE_DELAY_MS"
	EnvRetryMaxDelay      = "REDIS_RETRY_MAX_DELAY_MS"
	EnvCodec              = "CACHE_CODEC"
	EnvBreakerFailures    = "CACHE_BREAKER_FAILURES"
	EnvBreakerOpenTimeout = "CACHE_BREAKER_OPEN_SECS"
)

// Config holds the cache configuration. It is built once at startup and not
// mutated afterwards.
type Config struct {
	// RedisURL locates the backend.
	RedisURL string

	// OverviewTTL, CollectionTTL and ItemTTL are the lifetimes of each TTLClass.
	OverviewTTL   time.Duration
	CollectionTTL time.Duration
	ItemTTL       time.Duration

	// MaxConnections is the connection pool size.
	MaxConnections int

	// ConnectionTimeout bounds dialing and every backend call attempt.
	ConnectionTimeout time.Duration

	// RetryAttempts is the number of attempts per backend call.
	RetryAttempts int

	// RetryBaseDelay and RetryMaxDelay shape the backoff between attempts.
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration

	// Codec names the payload encoding: json, msgpack or cbor.
	Codec string

	// BreakerFailures opens the circuit breaker after that many consecutive
	// transient failures. Zero disables it.
	BreakerFailures int

	// BreakerOpenTimeout is how long the breaker stays open.
	BreakerOpenTimeout time.Duration
}

// DefaultConfig returns the default cache configuration.
func DefaultConfig() Config {
	return Config{
		RedisURL:           "redis://localhost:6379",
		OverviewTTL:        900 * time.Second,
		CollectionTTL:      300 * time.Second,
		ItemTTL:            600 * time.Second,
		MaxConnections:     10,
		ConnectionTimeout:  5 * time.Second,
		RetryAttempts:      3,
		RetryBaseDelay:     100 * time.Millisecond,
		RetryMaxDelay:      5 * time.Second,
		Codec:              codec.NameJSON,
		BreakerFailures:    5,
		BreakerOpenTimeout: 30 * time.Second,
	}
}

// ConfigFromEnv loads the configuration from the process environment.
func ConfigFromEnv(logger zerolog.Logger) Config {
	return LoadConfig(os.Getenv, logger)
}

// LoadConfig builds a Config from getenv. Unset variables take their default;
// malformed or out-of-range values are logged and replaced by the default.
// It never fails.
func LoadConfig(getenv func(string) string, logger zerolog.Logger) Config {
	cfg := DefaultConfig()
	l := envLoader{getenv: getenv, logger: logger}

	if v := strings.TrimSpace(getenv(EnvRedisURL)); v != "" {
		cfg.RedisURL = v
	}

	cfg.OverviewTTL = l.duration(EnvOverviewTTL, time.Second, cfg.OverviewTTL, 1)
	cfg.CollectionTTL = l.duration(EnvCategoriesTTL, time.Second, cfg.CollectionTTL, 1)
	cfg.ItemTTL = l.duration(EnvBudgetTTL, time.Second, cfg.ItemTTL, 1)

	// Zero is kept so pool construction can reject it.
	cfg.MaxConnections = l.int(EnvMaxConnections, cfg.MaxConnections, 0)

	cfg.ConnectionTimeout = l.duration(EnvConnectionTimeout, time.Second, cfg.ConnectionTimeout, 1)
	cfg.RetryAttempts = l.int(EnvRetryAttempts, cfg.RetryAttempts, 1)
	cfg.RetryBaseDelay = l.duration(EnvRetryBaseDelay, time.Millisecond, cfg.RetryBaseDelay, 0)
	cfg.RetryMaxDelay = l.duration(EnvRetryMaxDelay, time.Millisecond, cfg.RetryMaxDelay, 0)

	if v := strings.TrimSpace(getenv(EnvCodec)); v != "" {
		if codec.Valid(v) {
			cfg.Codec = strings.ToLower(v)
		} else {
			logger.Warn().
				Str("var", EnvCodec).
				Str("value", v).
				Str("default", cfg.Codec).
				Msg("Unknown cache codec, using default")
		}
	}

	cfg.BreakerFailures = l.int(EnvBreakerFailures, cfg.BreakerFailures, 0)
	cfg.BreakerOpenTimeout = l.duration(EnvBreakerOpenTimeout, time.Second, cfg.BreakerOpenTimeout, 1)

	return cfg
}

type envLoader struct {
	getenv func(string) string
	logger zerolog.Logger
}

// int parses name as an integer >= min, falling back to def.
func (l envLoader) int(name string, def, min int) int {
	if v, ok := l.parse(name, min); ok {
		return v
	}
	return def
}

// duration parses name as an integer count of unit >= min, falling back to def.
func (l envLoader) duration(name string, unit, def time.Duration, min int) time.Duration {
	if v, ok := l.parse(name, min); ok {
		return time.Duration(v) * unit
	}
	return def
}

func (l envLoader) parse(name string, min int) (int, bool) {
	raw := strings.TrimSpace(l.getenv(name))
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min {
		l.logger.Warn().
			Str("var", name).
			Str("value", raw).
			Msg("Invalid cache configuration value, using default")
		return 0, false
	}
	return v, true
}

// TTL returns the lifetime of class.
func (c Config) TTL(class TTLClass) time.Duration {
	switch class {
	case TTLOverview:
		return c.OverviewTTL
	case TTLCollection:
		return c.CollectionTTL
	default:
		return c.ItemTTL
	}
}

// Validate reports the first setting a cache cannot be built with.
func (c Config) Validate() error {
	switch {
	case c.MaxConnections <= 0:
		return fmt.Errorf("%w: max connections must be positive, got %d", ErrInvalidConfig, c.MaxConnections)
	case c.RetryAttempts < 1:
		return fmt.Errorf("%w: retry attempts must be at least 1, got %d", ErrInvalidConfig, c.RetryAttempts)
	case c.OverviewTTL < time.Millisecond, c.CollectionTTL < time.Millisecond, c.ItemTTL < time.Millisecond:
		return fmt.Errorf("%w: ttls must be at least 1ms", ErrInvalidConfig)
	case !codec.Valid(c.Codec):
		return fmt.Errorf("%w: unknown codec %q", ErrInvalidConfig, c.Codec)
	}
	return nil
}

// PoolConfig returns the connection pool settings.
func (c Config) PoolConfig() PoolConfig {
	return PoolConfig{
		URL:     c.RedisURL,
		Size:    c.MaxConnections,
		Timeout: c.ConnectionTimeout,
	}
}

// RetryPolicy returns the retry settings. Each attempt is bounded by ConnectionTimeout.
func (c Config) RetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    c.RetryAttempts,
		BaseDelay:      c.RetryBaseDelay,
		MaxDelay:       c.RetryMaxDelay,
		AttemptTimeout: c.ConnectionTimeout,
	}
}

// Options returns the service settings.
func (c Config) Options() Options {
	return Options{
		Retry:              c.RetryPolicy(),
		BreakerFailures:    c.BreakerFailures,
		BreakerOpenTimeout: c.BreakerOpenTimeout,
	}
}
