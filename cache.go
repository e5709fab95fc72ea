package fetch

// Cache is a functional store of already-resolved values. Get must return a
// value only for keys previously written through this cache; Update returns
// the cache reflecting the write. An implementation is free to return itself
// from Update (a mutable shared cache) or to discard writes entirely (a
// forgetful cache, forcing refetches).
//
// The engine threads the cache through the environment: each round reads the
// current cache before dispatch and derives the next cache from the round's
// results. It keeps no private memo, so cache behavior fully determines
// deduplication across rounds.
type Cache interface {
	Get(key CacheKey) (any, bool)
	Update(key CacheKey, value any) Cache
}

// Merger is an optional batch-write extension of Cache. Implementations that
// can apply a round's results in one operation (pipelined stores, persistent
// maps) should implement it; others get the per-key fallback.
type Merger interface {
	Merge(entries map[CacheKey]any) Cache
}

// MergeInto batch-writes entries into c, using Merger when the cache
// implements it and falling back to per-key updates otherwise. Cache
// implementations that wrap another Cache can delegate their own batch
// writes to it.
func MergeInto(c Cache, entries map[CacheKey]any) Cache {
	if m, ok := c.(Merger); ok {
		return m.Merge(entries)
	}
	for k, v := range entries {
		c = c.Update(k, v)
	}
	return c
}

// InMemoryCache is the default cache: an immutable in-memory map. Update and
// Merge copy, so every derived cache is an independent snapshot — an
// environment captured in a FetchFailedError is not observable through later
// writes.
type InMemoryCache struct {
	entries map[CacheKey]any
}

// NewCache returns an empty immutable cache.
func NewCache() InMemoryCache { return InMemoryCache{} }

// CacheOf returns an immutable cache seeded with entries.
func CacheOf(entries map[CacheKey]any) InMemoryCache {
	return InMemoryCache{}.copyWith(entries)
}

func (c InMemoryCache) copyWith(entries map[CacheKey]any) InMemoryCache {
	next := make(map[CacheKey]any, len(c.entries)+len(entries))
	for k, v := range c.entries {
		next[k] = v
	}
	for k, v := range entries {
		next[k] = v
	}
	return InMemoryCache{entries: next}
}

// Get implements Cache.
func (c InMemoryCache) Get(key CacheKey) (any, bool) {
	v, ok := c.entries[key]
	return v, ok
}

// Update implements Cache.
func (c InMemoryCache) Update(key CacheKey, value any) Cache {
	return c.copyWith(map[CacheKey]any{key: value})
}

// Merge implements Merger.
func (c InMemoryCache) Merge(entries map[CacheKey]any) Cache {
	return c.copyWith(entries)
}

// Len reports the number of cached entries.
func (c InMemoryCache) Len() int { return len(c.entries) }
