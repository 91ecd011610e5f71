package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/lykimq/MoneyWise/pkg/codec"
	"golang.org/x/sync/singleflight"
)

// Typed stores values of type V in a Service using a codec.
type Typed[V any] struct {
	svc   *Service
	codec codec.Codec[V]
	group singleflight.Group
}

// NewTyped binds svc to values of type V encoded with c.
func NewTyped[V any](svc *Service, c codec.Codec[V]) *Typed[V] {
	if svc == nil {
		panic("cache service cannot be nil")
	}
	if c == nil {
		c = codec.JSON[V]{}
	}
	return &Typed[V]{svc: svc, codec: c}
}

// Put encodes value and stores it under key for ttl. Encoding failures are
// returned without touching the backend; backend failures are returned after retries.
func (t *Typed[V]) Put(ctx context.Context, key string, value V, ttl time.Duration) error {
	if ttl < time.Millisecond {
		return fmt.Errorf("%w: %v for key %s", ErrInvalidTTL, ttl, key)
	}

	payload, err := t.codec.Encode(value)
	if err != nil {
		CacheErrors.WithLabelValues("encode", string(KindOther)).Inc()
		return fmt.Errorf("%w for key %s: %w", ErrEncode, key, err)
	}

	return t.svc.write(ctx, key, payload, ttl)
}

// Get returns the value stored under key. A missing key, a payload that does
// not decode and an unreachable backend are all reported as absent; an
// undecodable payload is deleted so the next write can replace it. The error
// is non-nil only when ctx itself is done.
func (t *Typed[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V

	data, found, err := t.svc.fetch(ctx, key)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, false, ctxErr
		}
		CacheDegraded.WithLabelValues("get").Inc()
		t.svc.logger.Warn().
			Err(err).
			Str("key", key).
			Str("kind", string(Classify(err))).
			Msg("Cache read degraded, treating as miss")
		return zero, false, nil
	}
	if !found {
		return zero, false, nil
	}

	v, err := t.codec.Decode(data)
	if err != nil {
		CacheSelfHeals.WithLabelValues(namespaceOf(key)).Inc()
		t.svc.logger.Warn().
			Err(err).
			Str("key", key).
			Int("bytes", len(data)).
			Msg("Undecodable cache entry, purging")
		if delErr := t.svc.Delete(ctx, key); delErr != nil {
			t.svc.logger.Warn().Err(delErr).Str("key", key).Msg("Failed to purge undecodable cache entry")
		}
		return zero, false, nil
	}

	return v, true, nil
}

// GetOrCompute returns the cached value under key, or calls compute, stores
// its result for ttl and returns it. Concurrent misses on the same key share
// one compute call. The shared call is detached from the caller that started
// it and bounded by the service's compute timeout, so one caller giving up
// never fails the others. Each caller still returns as soon as its own ctx is
// done. A failed write-back is logged and does not fail the call.
func (t *Typed[V]) GetOrCompute(ctx context.Context, key string, ttl time.Duration, compute func(context.Context) (V, error)) (V, error) {
	var zero V

	v, ok, err := t.Get(ctx, key)
	if err != nil {
		return zero, err
	}
	if ok {
		return v, nil
	}

	ch := t.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.svc.computeTimeout)
		defer cancel()

		v, err := compute(loadCtx)
		if err != nil {
			return nil, err
		}
		if err := t.Put(loadCtx, key, v, ttl); err != nil {
			t.svc.logger.Warn().Err(err).Str("key", key).Msg("Cache write-back failed")
		}
		return v, nil
	})

	select {
	case <-ctx.Done():
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Err
		}
		if res.Shared {
			t.svc.logger.Debug().Str("key", key).Msg("Shared in-flight computation")
		}
		v, _ = res.Val.(V)
		return v, nil
	}
}

// Delete removes keys. See Service.Delete.
func (t *Typed[V]) Delete(ctx context.Context, keys ...string) error {
	return t.svc.Delete(ctx, keys...)
}
