package cache

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// PoolConfig describes the fixed set of backend connections.
type PoolConfig struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string

	// Size is the number of independent connections. Must be positive.
	Size int

	// Timeout bounds dialing, each read/write and the startup ping.
	Timeout time.Duration
}

// Pool is a fixed-size set of single-connection clients handed out round-robin.
// Select is lock-free and safe for concurrent use.
type Pool struct {
	clients []*redis.Client
	next    atomic.Uint64
	logger  zerolog.Logger
}

// NewPool opens cfg.Size connections and pings each one. A failure on any
// connection closes the ones already opened; no partial pool is returned.
func NewPool(ctx context.Context, cfg PoolConfig, logger zerolog.Logger) (*Pool, error) {
	if cfg.Size <= 0 {
		return nil, fmt.Errorf("%w: pool size must be positive, got %d", ErrInvalidConfig, cfg.Size)
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse redis url: %v", ErrInvalidConfig, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	clients := make([]*redis.Client, 0, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		o := *opts
		o.PoolSize = 1
		o.MinIdleConns = 0
		// Retries are driven by the cache service so every attempt is visible to it.
		o.MaxRetries = -1
		o.DialTimeout = timeout
		o.ReadTimeout = timeout
		o.WriteTimeout = timeout
		o.ContextTimeoutEnabled = true

		client := redis.NewClient(&o)

		pingCtx, cancel := context.WithTimeout(ctx, timeout)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			_ = client.Close()
			closeClients(clients)
			logger.Error().
				Err(err).
				Int("connection", i).
				Int("size", cfg.Size).
				Msg("Failed to open cache connection")
			return nil, wrapRemote("connect", err)
		}

		clients = append(clients, client)
	}

	logger.Info().
		Str("addr", opts.Addr).
		Int("size", cfg.Size).
		Msg("Cache connection pool ready")

	return &Pool{clients: clients, logger: logger}, nil
}

// Select returns the next connection in round-robin order.
func (p *Pool) Select() *redis.Client {
	i := p.next.Add(1) - 1
	return p.clients[i%uint64(len(p.clients))]
}

// Size returns the number of connections.
func (p *Pool) Size() int {
	return len(p.clients)
}

// Ping checks every connection.
func (p *Pool) Ping(ctx context.Context) error {
	for i, c := range p.clients {
		if err := c.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping connection %d: %w", i, wrapRemote("ping", err))
		}
	}
	return nil
}

// Close closes every connection.
func (p *Pool) Close() error {
	return closeClients(p.clients)
}

func closeClients(clients []*redis.Client) error {
	var errs []error
	for _, c := range clients {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
