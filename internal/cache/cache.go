// Package cache keeps values that expire after a period without use.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is an in-memory map whose entries expire ttl after they were last
// read or written.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]*entry[V]
	ttl     time.Duration
	now     func() time.Time

	// OnEvict is called for entries removed by expiry, outside the lock.
	OnEvict func(key string, value V)

	// For background cleanup
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once // Ensures Stop() is idempotent
}

// New creates a cache and starts its cleanup goroutine.
func New[V any](ttl time.Duration) *Cache[V] {
	interval := time.Minute
	if ttl > 0 && ttl < interval {
		interval = ttl
	}
	c := &Cache[V]{
		entries:         make(map[string]*entry[V]),
		ttl:             ttl,
		now:             time.Now,
		cleanupInterval: interval,
		stopCleanup:     make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// SetClock replaces the time source used for expiry.
func (c *Cache[V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Get returns the value for key and extends its lifetime.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	now := c.now()
	if now.After(e.expiresAt) {
		delete(c.entries, key)
		return zero, false
	}
	e.expiresAt = now.Add(c.ttl)
	return e.value, true
}

// Set stores value under key.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &entry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
}

// GetOrCreate returns the live value for key, storing create() when there is
// none. The second result reports whether the value was created.
func (c *Cache[V]) GetOrCreate(key string, create func() V) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if e, ok := c.entries[key]; ok && !now.After(e.expiresAt) {
		e.expiresAt = now.Add(c.ttl)
		return e.value, false
	}
	v := create()
	c.entries[key] = &entry[V]{value: v, expiresAt: now.Add(c.ttl)}
	return v, true
}

// Delete removes key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Range calls fn for each live entry until fn returns false. fn runs
// without the lock held.
func (c *Cache[V]) Range(fn func(key string, value V) bool) {
	c.mu.Lock()
	now := c.now()
	keys := make([]string, 0, len(c.entries))
	values := make([]V, 0, len(c.entries))
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			continue
		}
		keys = append(keys, k)
		values = append(values, e.value)
	}
	c.mu.Unlock()

	for i, k := range keys {
		if !fn(k, values[i]) {
			return
		}
	}
}

// cleanupLoop periodically removes expired entries
func (c *Cache[V]) cleanupLoop() {
	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired entries
func (c *Cache[V]) cleanup() {
	type evicted struct {
		key   string
		value V
	}
	var gone []evicted

	c.mu.Lock()
	now := c.now()
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			gone = append(gone, evicted{key, e.value})
		}
	}
	onEvict := c.OnEvict
	c.mu.Unlock()

	if onEvict == nil {
		return
	}
	for _, g := range gone {
		onEvict(g.key, g.value)
	}
}

// Stop stops the background cleanup goroutine
// Safe to call multiple times
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCleanup)
	})
}

// Len returns the number of entries in the cache, expired ones included
// until the next cleanup.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
