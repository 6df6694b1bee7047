// Package cache provides a small in-memory TTL cache used by the
// monitoring facade's query surface. Reads that tolerate slightly stale
// results (series slices, summaries) go through it; alert writes never
// do.
package cache

import (
	"context"
	"sync"
	"time"
)

// Cache is a key-value store with per-entry expiry.
type Cache interface {
	Get(ctx context.Context, key string) (any, bool)
	Set(ctx context.Context, key string, value any, ttl time.Duration)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
}

type entry struct {
	value     any
	expiresAt time.Time
}

// TTLCache is the in-memory Cache implementation. Expired entries are
// dropped lazily on read and swept whenever the map grows past its
// high-water mark.
type TTLCache struct {
	mu         sync.RWMutex
	entries    map[string]entry
	defaultTTL time.Duration
	maxEntries int
}

// DefaultTTL applies when Set receives a non-positive ttl.
const DefaultTTL = 30 * time.Second

const defaultMaxEntries = 4096

// NewTTL creates a TTLCache. A non-positive defaultTTL falls back to
// DefaultTTL.
func NewTTL(defaultTTL time.Duration) *TTLCache {
	if defaultTTL <= 0 {
		defaultTTL = DefaultTTL
	}
	return &TTLCache{
		entries:    make(map[string]entry),
		defaultTTL: defaultTTL,
		maxEntries: defaultMaxEntries,
	}
}

func (c *TTLCache) Get(_ context.Context, key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		c.mu.Lock()
		// Re-check under the write lock; a concurrent Set may have
		// refreshed the entry.
		if cur, ok := c.entries[key]; ok && time.Now().After(cur.expiresAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (c *TTLCache) Set(_ context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	now := time.Now()
	c.mu.Lock()
	if len(c.entries) >= c.maxEntries {
		c.sweepLocked(now)
	}
	c.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}
	c.mu.Unlock()
}

func (c *TTLCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *TTLCache) Clear(_ context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}

// Len reports the number of live entries.
func (c *TTLCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TTLCache) sweepLocked(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
