package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the byte-level backend the cache service talks to. Get reports a
// missing key as (nil, false, nil). Set stores value and TTL atomically.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// RedisStore implements Store over a connection Pool. Errors are returned as
// *RemoteError carrying their ErrorKind.
type RedisStore struct {
	pool *Pool
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a store that spreads commands over pool.
func NewRedisStore(pool *Pool) *RedisStore {
	if pool == nil {
		panic("cache pool cannot be nil")
	}
	return &RedisStore{pool: pool}
}

// Get fetches the payload stored under key.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := s.pool.Select().Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, wrapRemote("get", err)
	}
	return data, true, nil
}

// Set stores value under key with ttl in one command.
func (s *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return wrapRemote("set", s.pool.Select().Set(ctx, key, value, ttl).Err())
}

// Del removes keys in one command. Missing keys are not an error.
func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return wrapRemote("del", s.pool.Select().Del(ctx, keys...).Err())
}

// Ping checks every pooled connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the underlying pool.
func (s *RedisStore) Close() error {
	return s.pool.Close()
}
