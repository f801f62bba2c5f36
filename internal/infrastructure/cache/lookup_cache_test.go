package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cleanup := func() {
		client.Close()
		mr.Close()
	}

	return client, cleanup
}

func TestRedisLookupCache_Get_CacheMiss(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	c := NewRedisLookupCache(client)
	got, err := c.Get(context.Background(), "missing-key")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected cache miss, got %+v", got)
	}
}

func TestRedisLookupCache_SetThenGet_RoundTrips(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	c := NewRedisLookupCache(client)
	summary := "a cached summary"
	entry := Entry{
		CacheKey: "key1", SummaryText: &summary, BundlePath: "/bundles/key1",
		CreatedAt: time.Now().Format(time.RFC3339Nano), UpdatedAt: time.Now().Format(time.RFC3339Nano),
	}

	if err := c.Set(context.Background(), entry, 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	got, err := c.Get(context.Background(), "key1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.SummaryText == nil || *got.SummaryText != summary {
		t.Fatalf("expected round-tripped entry, got %+v", got)
	}
}

func TestRedisLookupCache_Delete_RemovesEntry(t *testing.T) {
	client, cleanup := setupTestRedis(t)
	defer cleanup()

	c := NewRedisLookupCache(client)
	entry := Entry{CacheKey: "key2", BundlePath: "/bundles/key2"}
	if err := c.Set(context.Background(), entry, 5*time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Delete(context.Background(), "key2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	got, err := c.Get(context.Background(), "key2")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected entry to be gone after delete, got %+v", got)
	}
}
