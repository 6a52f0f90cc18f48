// Package cache provides the TTL caches that sit in front of signal sources.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache stores opaque values for a bounded time. A miss and a backend
// failure look the same to callers: both mean "fetch it again".
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
}

type entry struct {
	value  []byte
	stored time.Time
	ttl    time.Duration
}

// MemoryCache is an in-process Cache keyed by string with an injectable clock.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	now     func() time.Time
}

// Option configures a MemoryCache.
type Option func(*MemoryCache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *MemoryCache) { c.now = now }
}

// NewMemory creates an empty in-memory cache.
func NewMemory(opts ...Option) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a copy of the value if it has not expired.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if e.ttl > 0 && c.now().Sub(e.stored) >= e.ttl {
		return nil, false
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

// Set stores value for ttl. A zero ttl never expires.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	v := make([]byte, len(value))
	copy(v, value)

	c.mu.Lock()
	c.entries[key] = entry{value: v, stored: c.now(), ttl: ttl}
	c.mu.Unlock()
}

// Delete removes key.
func (c *MemoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge drops expired entries and returns how many were removed.
func (c *MemoryCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if e.ttl > 0 && now.Sub(e.stored) >= e.ttl {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
