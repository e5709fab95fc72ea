// Package lru provides a bounded, mutable fetch.Cache backed by an LRU map.
// Unlike the default immutable cache it is shared: Update returns the
// receiver, so deduplication carries across executions until eviction.
package lru

import (
	lru "github.com/hashicorp/golang-lru/v2"

	fetch "github.com/TimothyKlim/fetch"
)

// Cache is a size-bounded fetch.Cache. Safe for concurrent executions.
type Cache struct {
	inner *lru.Cache[fetch.CacheKey, any]
}

// New creates a cache holding at most size entries.
func New(size int) (*Cache, error) {
	inner, err := lru.New[fetch.CacheKey, any](size)
	if err != nil {
		return nil, err
	}
	return &Cache{inner: inner}, nil
}

// Get implements fetch.Cache.
func (c *Cache) Get(key fetch.CacheKey) (any, bool) {
	return c.inner.Get(key)
}

// Update implements fetch.Cache. The write lands in place.
func (c *Cache) Update(key fetch.CacheKey, value any) fetch.Cache {
	c.inner.Add(key, value)
	return c
}

// Merge implements fetch.Merger.
func (c *Cache) Merge(entries map[fetch.CacheKey]any) fetch.Cache {
	for k, v := range entries {
		c.inner.Add(k, v)
	}
	return c
}

// Len reports the number of resident entries.
func (c *Cache) Len() int { return c.inner.Len() }
