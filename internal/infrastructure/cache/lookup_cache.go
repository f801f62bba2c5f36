// Package cache provides an advisory, Redis-backed cache-aside layer in
// front of cachesvc.Service.Lookup. It is never the system of record: the
// store and the bundle tree remain authoritative, and a cache miss or
// Redis outage always falls through to them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vidsum-dev/vidsum/internal/infrastructure/metrics"
)

const lookupKeyPrefix = "lookup:"

// Entry is the JSON-serialized shape cached for a completed lookup. It
// mirrors the fields of cachesvc.LookupResult that are immutable once a
// cache entry reaches "completed" — the only status this cache ever stores,
// since running/pending/failed entries change too quickly to be worth the
// round trip.
type Entry struct {
	CacheKey    string  `json:"cache_key"`
	SourceName  *string `json:"source_name,omitempty"`
	SummaryText *string `json:"summary_text,omitempty"`
	BundlePath  string  `json:"bundle_path"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// RedisLookupCache implements a cache-aside store for completed lookup
// results, keyed by cache_key.
type RedisLookupCache struct {
	client *redis.Client
}

func NewRedisLookupCache(client *redis.Client) *RedisLookupCache {
	return &RedisLookupCache{client: client}
}

// Get returns the cached entry, or nil, nil on a cache miss.
func (c *RedisLookupCache) Get(ctx context.Context, cacheKey string) (*Entry, error) {
	data, err := c.client.Get(ctx, lookupKeyPrefix+cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			metrics.LookupCacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusMiss).Inc()
			return nil, nil
		}
		metrics.LookupCacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError).Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		metrics.LookupCacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusError).Inc()
		return nil, fmt.Errorf("unmarshal lookup cache entry: %w", err)
	}
	metrics.LookupCacheOperationsTotal.WithLabelValues(metrics.CacheOpGet, metrics.CacheStatusHit).Inc()
	return &e, nil
}

// Set stores a completed lookup result with the given TTL.
func (c *RedisLookupCache) Set(ctx context.Context, e Entry, ttl time.Duration) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal lookup cache entry: %w", err)
	}
	if err := c.client.Set(ctx, lookupKeyPrefix+e.CacheKey, data, ttl).Err(); err != nil {
		metrics.LookupCacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusError).Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	metrics.LookupCacheOperationsTotal.WithLabelValues(metrics.CacheOpSet, metrics.CacheStatusSuccess).Inc()
	return nil
}

// Delete invalidates a cached lookup result, e.g. when a cache entry is
// reset to pending after a profile-version mismatch, or deleted outright.
func (c *RedisLookupCache) Delete(ctx context.Context, cacheKey string) error {
	if err := c.client.Del(ctx, lookupKeyPrefix+cacheKey).Err(); err != nil {
		metrics.LookupCacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusError).Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	metrics.LookupCacheOperationsTotal.WithLabelValues(metrics.CacheOpDelete, metrics.CacheStatusSuccess).Inc()
	return nil
}
