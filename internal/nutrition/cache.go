package nutrition

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long a cached estimate stays valid. Nutrition data for a
// given food description is effectively static; 30 days matches the upstream
// database refresh cadence.
const DefaultTTL = 30 * 24 * time.Hour

type memoryEntry struct {
	est       Estimate
	expiresAt time.Time
}

// MemoryCache is an in-process Cache with TTL expiry and last-writer-wins
// semantics. Estimates are idempotent given the same input, so concurrent
// writers for one key need no stricter coordination.
type MemoryCache struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemoryCache creates a cache with the given TTL (DefaultTTL if zero).
func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]memoryEntry),
	}
}

// Get returns the cached estimate for key if present and unexpired.
func (c *MemoryCache) Get(_ context.Context, key string) (Estimate, bool, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(entry.expiresAt) {
		return Estimate{}, false, nil
	}
	return entry.est, true, nil
}

// Set stores an estimate, replacing any previous value for key.
func (c *MemoryCache) Set(_ context.Context, key string, est Estimate) error {
	c.mu.Lock()
	c.entries[key] = memoryEntry{est: est, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return nil
}

// Evict removes expired entries. Called opportunistically by owners with a
// long-lived cache; correctness does not depend on it.
func (c *MemoryCache) Evict() {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
}
