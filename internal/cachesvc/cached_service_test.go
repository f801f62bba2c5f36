package cachesvc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vidsum-dev/vidsum/internal/infrastructure/cache"
	"github.com/vidsum-dev/vidsum/internal/model"
)

func mockCompletedEntry(cacheKey, summary string) model.CacheEntry {
	now := time.Now()
	return model.CacheEntry{
		CacheKey: cacheKey, SourceType: model.SourceTypeURL, Status: model.CacheStatusCompleted,
		ProfileVersion: "p1", SummaryText: &summary, BundlePath: "/bundles/" + cacheKey,
		CreatedAt: now, UpdatedAt: now,
	}
}

func completedStatus() model.CacheStatus {
	return model.CacheStatusCompleted
}

type memLookupCache struct {
	mu      sync.Mutex
	entries map[string]cache.Entry
	gets    int
	sets    int
	deletes int
}

func newMemLookupCache() *memLookupCache {
	return &memLookupCache{entries: make(map[string]cache.Entry)}
}

func (c *memLookupCache) Get(ctx context.Context, cacheKey string) (*cache.Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	e, ok := c.entries[cacheKey]
	if !ok {
		return nil, nil
	}
	cp := e
	return &cp, nil
}

func (c *memLookupCache) Set(ctx context.Context, e cache.Entry, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	c.entries[e.CacheKey] = e
	return nil
}

func (c *memLookupCache) Delete(ctx context.Context, cacheKey string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deletes++
	delete(c.entries, cacheKey)
	return nil
}

func newTestCachedService(t *testing.T) (*CachedService, *memStore, *memLookupCache) {
	t.Helper()
	svc, store, _ := newTestService(t)
	lc := newMemLookupCache()
	cs := NewCachedService(CachedServiceConfig{Delegate: svc, Cache: lc, TTL: time.Minute})
	return cs, store, lc
}

func TestCachedService_Lookup_PopulatesCacheOnCompletedHit(t *testing.T) {
	cs, store, lc := newTestCachedService(t)
	ctx := context.Background()

	cacheKey, err := computeTestKey(ctx, "url", "https://example.com/cached")
	if err != nil {
		t.Fatal(err)
	}
	summary := "cached summary"
	entry := mockCompletedEntry(cacheKey, summary)
	store.entries[cacheKey] = &entry

	result, err := cs.Lookup(ctx, "url", "https://example.com/cached", "", false, false, false)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !result.Hit {
		t.Fatalf("expected a hit, got %+v", result)
	}
	if lc.sets != 1 {
		t.Fatalf("expected the lookup cache to be populated once, got %d sets", lc.sets)
	}
}

func TestCachedService_Lookup_ServesFromCacheOnSecondCall(t *testing.T) {
	cs, store, lc := newTestCachedService(t)
	ctx := context.Background()

	cacheKey, err := computeTestKey(ctx, "url", "https://example.com/cached2")
	if err != nil {
		t.Fatal(err)
	}
	entry := mockCompletedEntry(cacheKey, "summary two")
	store.entries[cacheKey] = &entry

	if _, err := cs.Lookup(ctx, "url", "https://example.com/cached2", "", false, false, false); err != nil {
		t.Fatal(err)
	}
	// Remove the store row entirely to prove the second call is served from cache.
	delete(store.entries, cacheKey)

	result, err := cs.Lookup(ctx, "url", "https://example.com/cached2", "", false, false, false)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if !result.Hit || result.SummaryText == nil || *result.SummaryText != "summary two" {
		t.Fatalf("expected cache-served hit, got %+v", result)
	}
	if lc.gets < 2 {
		t.Fatalf("expected at least 2 cache gets, got %d", lc.gets)
	}
}

func TestCachedService_Lookup_StrictBypassesCache(t *testing.T) {
	cs, store, lc := newTestCachedService(t)
	ctx := context.Background()

	cacheKey, err := computeTestKey(ctx, "url", "https://example.com/strict")
	if err != nil {
		t.Fatal(err)
	}
	entry := mockCompletedEntry(cacheKey, "strict summary")
	lc.entries[cacheKey] = cache.Entry{CacheKey: cacheKey, SummaryText: entry.SummaryText, BundlePath: entry.BundlePath}
	// No store row and no bundle on disk: strict revalidation must fail even
	// though the advisory cache has a (stale) completed entry.
	_ = store

	result, err := cs.Lookup(ctx, "url", "https://example.com/strict", "", true, false, false)
	if err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if result.Hit {
		t.Fatal("strict lookups must never be served from the advisory cache")
	}
}

func TestCachedService_UpdateStatus_InvalidatesCache(t *testing.T) {
	cs, _, lc := newTestCachedService(t)
	ctx := context.Background()
	lc.entries["key1"] = cache.Entry{CacheKey: "key1"}

	status := completedStatus()
	if err := cs.UpdateStatus(ctx, "key1", status, nil, nil, nil); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if lc.deletes != 1 {
		t.Fatalf("expected UpdateStatus to invalidate the cache, got %d deletes", lc.deletes)
	}
}
