package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryCache is a bounded LRU with a per-entry TTL.
type MemoryCache struct {
	lru *expirable.LRU[string, []byte]
}

// NewMemoryCache creates a cache holding at most capacity entries for ttl each.
func NewMemoryCache(capacity int, ttl time.Duration) *MemoryCache {
	if capacity <= 0 {
		capacity = 1000
	}
	return &MemoryCache{lru: expirable.NewLRU[string, []byte](capacity, nil, ttl)}
}

// Get returns a cached value.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, ok := c.lru.Get(key)
	return value, ok, nil
}

// Set stores a value, evicting the least recently used entry when full.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte) error {
	c.lru.Add(key, value)
	return nil
}

// Len reports the number of live entries.
func (c *MemoryCache) Len() int {
	return c.lru.Len()
}

// Close releases nothing; it exists to satisfy Cache.
func (c *MemoryCache) Close() error {
	return nil
}
