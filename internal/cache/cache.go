// Package cache memoizes duplicate-detection and category results for a short time.
package cache

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL is how long an entry stays fresh.
const DefaultTTL = 30 * time.Minute

type entry[V any] struct {
	expiry time.Time
	value  V
}

// TTLCache is a thread-safe map whose entries expire after a fixed duration.
// Expired entries read as absent.
type TTLCache[V any] struct {
	entries map[string]entry[V]
	now     func() time.Time
	ttl     time.Duration
	mu      sync.Mutex
}

// NewTTLCache creates a cache with the given TTL; zero means DefaultTTL.
func NewTTLCache[V any](ttl time.Duration) *TTLCache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &TTLCache[V]{
		entries: make(map[string]entry[V]),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Set stores value with expiry now + TTL, replacing any existing entry.
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = entry[V]{
		value:  value,
		expiry: c.now().Add(c.ttl),
	}
}

// Get returns the value if present and fresh. An expired entry is evicted.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if !c.now().Before(e.expiry) {
		delete(c.entries, key)
		return zero, false
	}
	return e.value, true
}

// CleanExpired removes every expired entry and returns how many were removed.
func (c *TTLCache[V]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiry) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear drops everything and returns the prior size.
func (c *TTLCache[V]) Clear() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	c.entries = make(map[string]entry[V])
	return n
}

// Len counts stored entries, expired or not.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// StartJanitor sweeps expired entries every interval until ctx is done.
// onSweep, when non-nil, receives each sweep's removal count.
func (c *TTLCache[V]) StartJanitor(ctx context.Context, interval time.Duration, onSweep func(removed int)) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed := c.CleanExpired()
				if onSweep != nil {
					onSweep(removed)
				}
			}
		}
	}()
}
