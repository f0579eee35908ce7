// Package cache holds search results between index mutations. Entries expire
// after a TTL, and any mutation of the index invalidates everything at once,
// so a cached result can never outlive the rows it refers to.
package cache

import (
	"sync"
	"time"
)

// DefaultTTL matches the historical cache lifetime for search results.
const DefaultTTL = 24 * time.Hour

type entry struct {
	value      any
	generation uint64
	expiresAt  time.Time
}

// QueryCache caches search results keyed by query string. A generation
// counter is bumped on InvalidateAll; stale-generation entries are treated as
// misses and dropped lazily on the next Get.
type QueryCache struct {
	ttl        time.Duration
	mu         sync.Mutex
	entries    map[string]entry
	generation uint64
	now        func() time.Time
}

// New returns a cache whose entries live for ttl. Zero means DefaultTTL.
func New(ttl time.Duration) *QueryCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &QueryCache{
		ttl:     ttl,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Get returns the cached value for key if it is from the current generation
// and has not expired.
func (c *QueryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if e.generation != c.generation || c.now().After(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set stores value for key in the current generation.
func (c *QueryCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{
		value:      value,
		generation: c.generation,
		expiresAt:  c.now().Add(c.ttl),
	}
}

// InvalidateAll drops every entry. Called after any index mutation.
func (c *QueryCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.entries = make(map[string]entry)
}

// Len returns the number of stored entries, expired or not.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
