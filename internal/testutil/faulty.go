// Package testutil provides test doubles for the MoneyWise cache.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"syscall"
	"time"
)

// byteStore is the method set of cache.Store.
type byteStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}

// FaultyStore wraps a cache.Store and fails calls on demand while counting
// every call it receives.
type FaultyStore struct {
	inner byteStore

	mu       sync.Mutex
	failures map[string]fault

	// Tracking
	GetCount  int
	SetCount  int
	DelCount  int
	PingCount int
	LastDel   []string
}

type fault struct {
	err       error
	remaining int // <0: fail forever
}

// Operation names accepted by FailNext and FailAlways.
const (
	OpGet  = "get"
	OpSet  = "set"
	OpDel  = "del"
	OpPing = "ping"
)

// NewFaultyStore wraps inner. A nil inner uses an unbounded MemoryStore.
func NewFaultyStore(inner byteStore) *FaultyStore {
	if inner == nil {
		inner = NewMemoryStore(1 << 30)
	}
	return &FaultyStore{
		inner:    inner,
		failures: make(map[string]fault),
	}
}

// FailNext makes the next n calls of op return err.
func (f *FaultyStore) FailNext(op string, n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = fault{err: err, remaining: n}
}

// FailAlways makes every call of op return err until Reset.
func (f *FaultyStore) FailAlways(op string, err error) {
	f.FailNext(op, -1, err)
}

// Reset clears all injected failures and tracking counters.
func (f *FaultyStore) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = make(map[string]fault)
	f.GetCount = 0
	f.SetCount = 0
	f.DelCount = 0
	f.PingCount = 0
	f.LastDel = nil
}

// Calls returns the number of calls received for op.
func (f *FaultyStore) Calls(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch op {
	case OpGet:
		return f.GetCount
	case OpSet:
		return f.SetCount
	case OpDel:
		return f.DelCount
	case OpPing:
		return f.PingCount
	}
	return 0
}

// track counts a call of op and returns the injected error, if any.
func (f *FaultyStore) track(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch op {
	case OpGet:
		f.GetCount++
	case OpSet:
		f.SetCount++
	case OpDel:
		f.DelCount++
	case OpPing:
		f.PingCount++
	}

	ft, ok := f.failures[op]
	if !ok || ft.remaining == 0 {
		return nil
	}
	if ft.remaining > 0 {
		ft.remaining--
		f.failures[op] = ft
	}
	return ft.err
}

// Get implements cache.Store.
func (f *FaultyStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := f.track(OpGet); err != nil {
		return nil, false, err
	}
	return f.inner.Get(ctx, key)
}

// Set implements cache.Store.
func (f *FaultyStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := f.track(OpSet); err != nil {
		return err
	}
	return f.inner.Set(ctx, key, value, ttl)
}

// Del implements cache.Store.
func (f *FaultyStore) Del(ctx context.Context, keys ...string) error {
	f.mu.Lock()
	f.LastDel = append([]string(nil), keys...)
	f.mu.Unlock()

	if err := f.track(OpDel); err != nil {
		return err
	}
	return f.inner.Del(ctx, keys...)
}

// Ping implements cache.Store.
func (f *FaultyStore) Ping(ctx context.Context) error {
	if err := f.track(OpPing); err != nil {
		return err
	}
	return f.inner.Ping(ctx)
}

// Transient returns a connection reset, which the cache retries.
func Transient(op string) error {
	return fmt.Errorf("%s: %w", op, syscall.ECONNRESET)
}

// Permanent returns a NOAUTH server reply, which the cache does not retry.
func Permanent(op string) error {
	return fmt.Errorf("%s: %w", op, replyError("NOAUTH Authentication required"))
}
