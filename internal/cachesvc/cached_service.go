package cachesvc

import (
	"context"
	"log/slog"
	"time"

	"github.com/vidsum-dev/vidsum/internal/cachekey"
	"github.com/vidsum-dev/vidsum/internal/infrastructure/cache"
	"github.com/vidsum-dev/vidsum/internal/model"
)

// LookupCache is the advisory cache-aside collaborator; the Redis
// implementation lives in internal/infrastructure/cache.
type LookupCache interface {
	Get(ctx context.Context, cacheKey string) (*cache.Entry, error)
	Set(ctx context.Context, e cache.Entry, ttl time.Duration) error
	Delete(ctx context.Context, cacheKey string) error
}

// CachedService wraps *Service with a cache-aside layer over Lookup,
// decorator-style, mirroring the teacher's cachedVideoService: the cache
// only ever short-circuits the "completed, non-strict" path, never
// running/pending/failed lookups, and never bypasses strict revalidation —
// it is advisory, not authoritative.
type CachedService struct {
	*Service // promotes CreateJob/GetJob/UpdateJob/GetEntry/GetBundleManifest unchanged
	cache    LookupCache
	ttl      time.Duration
	logger   *slog.Logger
}

// CachedServiceConfig wires a CachedService's dependencies.
type CachedServiceConfig struct {
	Delegate *Service
	Cache    LookupCache
	TTL      time.Duration // default 5 minutes
	Logger   *slog.Logger
}

func NewCachedService(cfg CachedServiceConfig) *CachedService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedService{Service: cfg.Delegate, cache: cfg.Cache, ttl: ttl, logger: logger}
}

// Lookup serves a non-strict "completed" result straight from the advisory
// cache when present, otherwise delegates to Service.Lookup and populates
// the cache on a completed hit. Strict lookups always go to the delegate,
// since only the delegate runs bundle revalidation.
func (s *CachedService) Lookup(ctx context.Context, sourceType, sourceURL, fileHash string, strict, touch, allowStale bool) (LookupResult, error) {
	if strict {
		return s.Service.Lookup(ctx, sourceType, sourceURL, fileHash, strict, touch, allowStale)
	}

	cacheKey, err := cachekey.ComputeFromSource(ctx, sourceType, sourceURL, fileHash, nil)
	if err == nil {
		if entry, cacheErr := s.cache.Get(ctx, cacheKey); cacheErr != nil {
			s.logger.Warn("cachesvc: lookup cache get failed, falling back to store", "cache_key", cacheKey, "error", cacheErr)
		} else if entry != nil {
			return resultFromCacheEntry(*entry), nil
		}
	}

	result, err := s.Service.Lookup(ctx, sourceType, sourceURL, fileHash, strict, touch, allowStale)
	if err != nil {
		return result, err
	}

	if result.Hit && result.Status == "completed" {
		entry := cacheEntryFromResult(result)
		if setErr := s.cache.Set(ctx, entry, s.ttl); setErr != nil {
			s.logger.Warn("cachesvc: failed to populate lookup cache", "cache_key", result.CacheKey, "error", setErr)
		}
	}
	return result, nil
}

// InvalidateCache removes a cache_key's advisory entry. Call this whenever
// the underlying store entry is reset or deleted, so a stale "completed"
// result can never outlive the store row it mirrors.
func (s *CachedService) InvalidateCache(ctx context.Context, cacheKey string) {
	if err := s.cache.Delete(ctx, cacheKey); err != nil {
		s.logger.Warn("cachesvc: lookup cache invalidation failed", "cache_key", cacheKey, "error", err)
	}
}

// GetOrCreateEntry invalidates the advisory cache before delegating, since a
// reset to pending (profile-version mismatch) must never be masked by a
// stale completed cache entry.
func (s *CachedService) GetOrCreateEntry(ctx context.Context, cacheKey, sourceType, sourceRef string, sourceName *string) (*model.CacheEntry, error) {
	s.InvalidateCache(ctx, cacheKey)
	return s.Service.GetOrCreateEntry(ctx, cacheKey, sourceType, sourceRef, sourceName)
}

// UpdateStatus invalidates the advisory cache after delegating, so the next
// Lookup observes the new status rather than a stale cached one.
func (s *CachedService) UpdateStatus(ctx context.Context, cacheKey string, status model.CacheStatus, summaryText, errMsg, sourceName *string) error {
	err := s.Service.UpdateStatus(ctx, cacheKey, status, summaryText, errMsg, sourceName)
	s.InvalidateCache(ctx, cacheKey)
	return err
}

// DeleteEntry invalidates the advisory cache and delegates.
func (s *CachedService) DeleteEntry(ctx context.Context, cacheKey string) (bool, error) {
	s.InvalidateCache(ctx, cacheKey)
	return s.Service.DeleteEntry(ctx, cacheKey)
}

func cacheEntryFromResult(r LookupResult) cache.Entry {
	return cache.Entry{
		CacheKey: r.CacheKey, SourceName: r.SourceName, SummaryText: r.SummaryText,
		BundlePath: r.BundlePath, CreatedAt: r.CreatedAt.Format(time.RFC3339Nano), UpdatedAt: r.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func resultFromCacheEntry(e cache.Entry) LookupResult {
	r := LookupResult{Hit: true, Status: "completed", CacheKey: e.CacheKey, SourceName: e.SourceName, SummaryText: e.SummaryText, BundlePath: e.BundlePath}
	if t, err := time.Parse(time.RFC3339Nano, e.CreatedAt); err == nil {
		r.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339Nano, e.UpdatedAt); err == nil {
		r.UpdatedAt = t
	}
	return r
}
