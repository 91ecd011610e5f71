package testutil

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// memEntry is one value held by MemoryStore.
type memEntry struct {
	value     []byte
	expiresAt time.Time // zero: never expires
	elem      *list.Element
}

// isExpired reports whether the entry is past its expiry at now.
func (e *memEntry) isExpired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// MemoryStore is an in-memory cache.Store with TTL expiry and LRU eviction
// under a byte ceiling. An entry costs len(key)+len(value) bytes.
//
// Before each write, least recently used entries are evicted until the new
// entry fits or nothing is left to evict; a single entry larger than the
// ceiling is still stored. Reads refresh recency and drop expired entries.
type MemoryStore struct {
	mu        sync.Mutex
	entries   map[string]*memEntry
	lru       *list.List // front: least recently used
	maxMemory int
	used      int
	now       func() time.Time
}

// NewMemoryStore creates an empty store holding at most maxMemory bytes.
func NewMemoryStore(maxMemory int) *MemoryStore {
	return &MemoryStore{
		entries:   make(map[string]*memEntry),
		lru:       list.New(),
		maxMemory: maxMemory,
		now:       time.Now,
	}
}

// SetClock replaces the time source used for expiry.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// Get returns the live value under key.
func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if e.isExpired(m.now()) {
		m.remove(key)
		return nil, false, nil
	}

	m.lru.MoveToBack(e.elem)
	return append([]byte(nil), e.value...), true, nil
}

// Set stores value under key. ttl <= 0 stores without expiry.
func (m *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := len(key) + len(value)
	m.evictIfNeeded(size)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = m.now().Add(ttl)
	}

	if e, ok := m.entries[key]; ok {
		m.used = saturatingSub(m.used, len(key)+len(e.value))
		e.value = append([]byte(nil), value...)
		e.expiresAt = expiresAt
		m.lru.MoveToBack(e.elem)
	} else {
		m.entries[key] = &memEntry{
			value:     append([]byte(nil), value...),
			expiresAt: expiresAt,
			elem:      m.lru.PushBack(key),
		}
	}
	m.used += size

	return nil
}

// Del removes keys. Missing keys are ignored.
func (m *MemoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		m.remove(k)
	}
	return nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Used returns the bytes currently accounted for.
func (m *MemoryStore) Used() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.used
}

// Keys returns the stored keys from least to most recently used.
func (m *MemoryStore) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]string, 0, m.lru.Len())
	for el := m.lru.Front(); el != nil; el = el.Next() {
		keys = append(keys, el.Value.(string))
	}
	return keys
}

// Put stores a raw payload, bypassing any codec. Useful for planting corrupt entries.
func (m *MemoryStore) Put(key string, value []byte, ttl time.Duration) {
	_ = m.Set(context.Background(), key, value, ttl)
}

// evictIfNeeded drops least recently used entries until size more bytes fit.
// Caller holds mu.
func (m *MemoryStore) evictIfNeeded(size int) {
	for m.used+size > m.maxMemory {
		front := m.lru.Front()
		if front == nil {
			return
		}
		m.remove(front.Value.(string))
	}
}

// remove deletes key and its accounting. Caller holds mu.
func (m *MemoryStore) remove(key string) {
	e, ok := m.entries[key]
	if !ok {
		return
	}
	delete(m.entries, key)
	m.lru.Remove(e.elem)
	m.used = saturatingSub(m.used, len(key)+len(e.value))
}

func saturatingSub(a, b int) int {
	if b > a {
		return 0
	}
	return a - b
}
