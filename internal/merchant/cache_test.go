package merchant

import (
	"testing"
	"time"
)

func TestReadCacheRoundTrip(t *testing.T) {
	cache := newReadCache(time.Minute)
	key := cacheKey("agent_info", "0x1")
	if _, ok := cache.get(key); ok {
		t.Fatal("empty cache should miss")
	}
	cache.set(key, 42)
	value, ok := cache.get(key)
	if !ok || value.(int) != 42 {
		t.Fatalf("get = (%v, %v), want (42, true)", value, ok)
	}
}

func TestReadCacheExpiry(t *testing.T) {
	cache := newReadCache(10 * time.Millisecond)
	cache.set("k", 1)
	time.Sleep(25 * time.Millisecond)
	if _, ok := cache.get("k"); ok {
		t.Fatal("entry should have expired")
	}
}

func TestReadCachePrefixInvalidation(t *testing.T) {
	cache := newReadCache(time.Minute)
	cache.set(cacheKey("agent_info", "0x1"), 1)
	cache.set(cacheKey("agent_info", "0x2"), 2)
	cache.set(cacheKey("owner"), 3)

	cache.invalidatePrefix("agent_info")
	if _, ok := cache.get(cacheKey("agent_info", "0x1")); ok {
		t.Fatal("prefix invalidation missed an entry")
	}
	if _, ok := cache.get(cacheKey("owner")); !ok {
		t.Fatal("unrelated entry should survive prefix invalidation")
	}

	cache.invalidateAll()
	if _, ok := cache.get(cacheKey("owner")); ok {
		t.Fatal("invalidateAll should drop everything")
	}
}

func TestReadCacheDisabledWhenNoTTL(t *testing.T) {
	cache := newReadCache(0)
	cache.set("k", 1)
	if _, ok := cache.get("k"); ok {
		t.Fatal("zero TTL disables caching")
	}
}
