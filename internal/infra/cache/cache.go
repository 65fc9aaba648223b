// Package cache is a small in-process TTL cache. It backs the item
// catalog lookups and resolved gateway payers, both of which are read
// far more often than they change during a checkout.
package cache

import (
	"sync"
	"time"
)

const sweepInterval = time.Minute

type entry[T any] struct {
	value    T
	deadline time.Time
}

// InMemory is a concurrency-safe map with per-entry expiry. All entries
// share the TTL given at construction.
type InMemory[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
	ttl     time.Duration
}

func New[T any](ttl time.Duration) *InMemory[T] {
	c := &InMemory[T]{
		entries: make(map[string]entry[T]),
		ttl:     ttl,
	}
	go c.sweep()
	return c
}

// Get returns the cached value, reporting false for unknown or expired
// keys. Expired entries are left for the sweeper.
func (c *InMemory[T]) Get(key string) (T, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok || !time.Now().Before(e.deadline) {
		var zero T
		return zero, false
	}
	return e.value, true
}

func (c *InMemory[T]) Set(key string, value T) {
	c.mu.Lock()
	c.entries[key] = entry[T]{value: value, deadline: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

func (c *InMemory[T]) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

func (c *InMemory[T]) sweep() {
	interval := sweepInterval
	if c.ttl < interval {
		interval = c.ttl
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for now := range ticker.C {
		c.mu.Lock()
		for k, e := range c.entries {
			if now.After(e.deadline) {
				delete(c.entries, k)
			}
		}
		c.mu.Unlock()
	}
}
