package analytics

import (
	"sync"
	"time"
)

type cacheEntry struct {
	value      any
	computedAt time.Time
}

// Cache is an in-process result cache with per-read TTL. Entries keep their
// computation timestamp; a hit returns it so callers can surface staleness.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// Get returns the cached value and its computation time if it is younger
// than ttl as of now.
func (c *Cache) Get(key string, ttl time.Duration, now time.Time) (any, time.Time, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || now.Sub(entry.computedAt) > ttl {
		return nil, time.Time{}, false
	}
	return entry.value, entry.computedAt, true
}

// Set stores a value with its computation time.
func (c *Cache) Set(key string, value any, computedAt time.Time) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: value, computedAt: computedAt}
	c.mu.Unlock()
}
