package fetch

import "testing"

func TestInMemoryCacheIsPersistent(t *testing.T) {
	k1 := CacheKey{Source: "S", Identity: "1"}
	k2 := CacheKey{Source: "S", Identity: "2"}

	c0 := NewCache()
	c1 := c0.Update(k1, "a")
	c2 := c1.Update(k2, "b")

	if _, ok := c0.Get(k1); ok {
		t.Fatal("write observable through the original cache")
	}
	if v, ok := c1.Get(k1); !ok || v != "a" {
		t.Fatalf("c1[k1] = %v/%v, want a/true", v, ok)
	}
	if _, ok := c1.Get(k2); ok {
		t.Fatal("later write observable through earlier snapshot")
	}
	if v, ok := c2.Get(k2); !ok || v != "b" {
		t.Fatalf("c2[k2] = %v/%v, want b/true", v, ok)
	}
}

func TestInMemoryCacheMerge(t *testing.T) {
	k1 := CacheKey{Source: "S", Identity: "1"}
	k2 := CacheKey{Source: "T", Identity: "1"}
	c := NewCache().Merge(map[CacheKey]any{k1: 1, k2: 2})
	if v, ok := c.Get(k1); !ok || v != 1 {
		t.Fatalf("c[k1] = %v/%v", v, ok)
	}
	if v, ok := c.Get(k2); !ok || v != 2 {
		t.Fatalf("c[k2] = %v/%v", v, ok)
	}
}

func TestCacheKeysNamespacedBySource(t *testing.T) {
	c := NewCache().Update(CacheKey{Source: "A", Identity: "1"}, "a")
	if _, ok := c.Get(CacheKey{Source: "B", Identity: "1"}); ok {
		t.Fatal("identity leaked across source namespaces")
	}
}

// plainCache implements only Get/Update; MergeInto must fall back to
// per-key updates.
type plainCache struct {
	entries map[CacheKey]any
}

func (c *plainCache) Get(k CacheKey) (any, bool) {
	v, ok := c.entries[k]
	return v, ok
}

func (c *plainCache) Update(k CacheKey, v any) Cache {
	c.entries[k] = v
	return c
}

func TestMergeIntoFallback(t *testing.T) {
	c := &plainCache{entries: map[CacheKey]any{}}
	got := MergeInto(c, map[CacheKey]any{
		{Source: "S", Identity: "1"}: 1,
		{Source: "S", Identity: "2"}: 2,
	})
	if len(c.entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(c.entries))
	}
	if got != Cache(c) {
		t.Fatal("fallback must thread the returned cache")
	}
}
