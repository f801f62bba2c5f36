package gc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vidsum-dev/vidsum/internal/model"
)

type memStore struct {
	mu      sync.Mutex
	entries map[string]model.CacheEntry
}

func newMemStore(entries ...model.CacheEntry) *memStore {
	m := &memStore{entries: make(map[string]model.CacheEntry)}
	for _, e := range entries {
		m.entries[e.CacheKey] = e
	}
	return m
}

func (m *memStore) ListCacheEntries(ctx context.Context) ([]model.CacheEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.CacheEntry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) DeleteCacheEntry(ctx context.Context, cacheKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, cacheKey)
	return nil
}

type memBundles struct {
	mu       sync.Mutex
	sizes    map[string]int64
	deleted  map[string]bool
	archived map[string]bool
}

func newMemBundles(sizes map[string]int64) *memBundles {
	return &memBundles{sizes: sizes, deleted: map[string]bool{}, archived: map[string]bool{}}
}

func (b *memBundles) Size(cacheKey, sourceType string) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sizes[cacheKey]
}

func (b *memBundles) DeleteBundle(cacheKey, sourceType string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted[cacheKey] = true
	return true
}

func (b *memBundles) DeleteBundleWithArchive(cacheKey, sourceType string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted[cacheKey] = true
	b.archived[cacheKey] = true
	return true
}

func entry(key string, status model.CacheStatus, updatedAgo time.Duration, lastAccessedAgo *time.Duration) model.CacheEntry {
	now := time.Now()
	e := model.CacheEntry{
		CacheKey:   key,
		SourceType: model.SourceTypeURL,
		Status:     status,
		UpdatedAt:  now.Add(-updatedAgo),
		CreatedAt:  now.Add(-updatedAgo),
	}
	if lastAccessedAgo != nil {
		t := now.Add(-*lastAccessedAgo)
		e.LastAccessed = &t
	}
	return e
}

func TestRunOnce_FailedFastSweep(t *testing.T) {
	store := newMemStore(
		entry("old-failed", model.CacheStatusFailed, 48*time.Hour, nil),
		entry("new-failed", model.CacheStatusFailed, time.Hour, nil),
	)
	bundles := newMemBundles(map[string]int64{"old-failed": 100, "new-failed": 100})

	c := NewCollector(store, bundles, Config{}, nil)
	result := c.RunOnce(context.Background())

	if result.FailedFastDeleted != 1 {
		t.Fatalf("expected 1 failed-fast delete, got %d", result.FailedFastDeleted)
	}
	if !bundles.deleted["old-failed"] {
		t.Error("expected old-failed to be deleted")
	}
	if bundles.archived["old-failed"] {
		t.Error("failed-fast deletes must not be archive-aware")
	}
	if bundles.deleted["new-failed"] {
		t.Error("new-failed has not yet exceeded the failed TTL and must survive")
	}
}

func TestRunOnce_TTLSweepSkipsRunningAndPending(t *testing.T) {
	store := newMemStore(
		entry("old-completed", model.CacheStatusCompleted, 31*24*time.Hour, nil),
		entry("old-running", model.CacheStatusRunning, 31*24*time.Hour, nil),
		entry("old-pending", model.CacheStatusPending, 31*24*time.Hour, nil),
	)
	bundles := newMemBundles(map[string]int64{"old-completed": 100, "old-running": 100, "old-pending": 100})

	c := NewCollector(store, bundles, Config{}, nil)
	result := c.RunOnce(context.Background())

	if result.TTLDeleted != 1 {
		t.Fatalf("expected 1 TTL delete, got %d", result.TTLDeleted)
	}
	if !bundles.deleted["old-completed"] {
		t.Error("expected old-completed to be deleted")
	}
	if !bundles.archived["old-completed"] {
		t.Error("TTL deletes must be archive-aware")
	}
	if bundles.deleted["old-running"] || bundles.deleted["old-pending"] {
		t.Error("running/pending entries must never be deleted regardless of age")
	}
}

func TestRunOnce_SizeBudgetDeletesLeastRecentlyUsedFirst(t *testing.T) {
	lruAgo := 3 * time.Hour
	mruAgo := time.Minute
	store := newMemStore(
		entry("lru", model.CacheStatusCompleted, time.Hour, &lruAgo),
		entry("mru", model.CacheStatusCompleted, time.Hour, &mruAgo),
	)
	bundles := newMemBundles(map[string]int64{"lru": 60, "mru": 60})

	c := NewCollector(store, bundles, Config{MaxBytes: 100}, nil)
	result := c.RunOnce(context.Background())

	if result.SizeBudgetDeleted != 1 {
		t.Fatalf("expected exactly 1 size-budget delete, got %d", result.SizeBudgetDeleted)
	}
	if !bundles.deleted["lru"] {
		t.Error("expected the least-recently-used entry to be deleted first")
	}
	if bundles.deleted["mru"] {
		t.Error("expected the more-recently-used entry to survive")
	}
}

func TestRunOnce_SizeBudgetSkipsRunningAndPending(t *testing.T) {
	veryOldAgo := 10 * time.Hour
	store := newMemStore(
		entry("running", model.CacheStatusRunning, time.Hour, &veryOldAgo),
	)
	bundles := newMemBundles(map[string]int64{"running": 1000})

	c := NewCollector(store, bundles, Config{MaxBytes: 10}, nil)
	c.RunOnce(context.Background())

	if bundles.deleted["running"] {
		t.Error("a running job's bundle must never be deleted for size-budget reasons")
	}
}

func TestRunOnce_UnderBudgetDeletesNothing(t *testing.T) {
	store := newMemStore(entry("small", model.CacheStatusCompleted, time.Hour, nil))
	bundles := newMemBundles(map[string]int64{"small": 10})

	c := NewCollector(store, bundles, Config{MaxBytes: 1000}, nil)
	result := c.RunOnce(context.Background())

	if result.SizeBudgetDeleted != 0 {
		t.Fatalf("expected no size-budget deletes, got %d", result.SizeBudgetDeleted)
	}
}

func TestRun_StopsOnContextCancellation(t *testing.T) {
	store := newMemStore()
	bundles := newMemBundles(nil)
	c := NewCollector(store, bundles, Config{Interval: time.Millisecond}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return promptly after ctx cancellation")
	}
}
