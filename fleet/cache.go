/*
cache.go - Injected TTL cache collaborator

PURPOSE:
  Directory list lookups (vehicles, contracts) are read far more often than
  they change. The cache is an explicitly injected collaborator with
  Get/Set/Has and TTL eviction - never a process-wide singleton - so tests
  can substitute a no-op or deterministic cache.
*/
package fleet

import (
	"sync"
	"time"
)

type Cache interface {
	Get(key string) (any, bool)
	Set(key string, value any, ttl time.Duration)
	Has(key string) bool
	Invalidate(key string)
}

// =============================================================================
// TTL CACHE
// =============================================================================

type ttlEntry struct {
	value     any
	expiresAt time.Time
}

// TTLCache is a mutex-guarded map with lazy eviction on read.
type TTLCache struct {
	mu      sync.RWMutex
	entries map[string]ttlEntry
	// now is swappable for deterministic tests.
	now func() time.Time
}

func NewTTLCache() *TTLCache {
	return &TTLCache{entries: make(map[string]ttlEntry), now: time.Now}
}

// NewTTLCacheWithClock builds a cache with an injected clock.
func NewTTLCacheWithClock(now func() time.Time) *TTLCache {
	return &TTLCache{entries: make(map[string]ttlEntry), now: now}
}

func (c *TTLCache) Get(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		c.mu.Lock()
		delete(c.entries, key)
		c.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (c *TTLCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = ttlEntry{value: value, expiresAt: c.now().Add(ttl)}
}

func (c *TTLCache) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

func (c *TTLCache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// =============================================================================
// NOP CACHE - For tests and cache-disabled deployments
// =============================================================================

type NopCache struct{}

func (NopCache) Get(string) (any, bool)             { return nil, false }
func (NopCache) Set(string, any, time.Duration)     {}
func (NopCache) Has(string) bool                    { return false }
func (NopCache) Invalidate(string)                  {}
