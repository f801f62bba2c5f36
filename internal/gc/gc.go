// Package gc implements background garbage collection over the cache tree:
// a failed-fast sweep, a general TTL sweep, and an LRU size-budget sweep.
package gc

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/vidsum-dev/vidsum/internal/model"
)

// Store is the slice of cachesvc.Store GC depends on.
type Store interface {
	ListCacheEntries(ctx context.Context) ([]model.CacheEntry, error)
	DeleteCacheEntry(ctx context.Context, cacheKey string) error
}

// Bundles is the slice of bundle.Manager GC depends on. Archive-aware
// deletes are used for everything except failed-fast removals, which are
// not worth mirroring (see Collector.sweepFailedFast).
type Bundles interface {
	Size(cacheKey, sourceType string) int64
	DeleteBundle(cacheKey, sourceType string) bool
	DeleteBundleWithArchive(cacheKey, sourceType string) bool
}

// Config tunes GC's thresholds. Zero values take the documented defaults.
type Config struct {
	FailedTTL time.Duration // default 24h
	TTL       time.Duration // default 30 * 24h
	MaxBytes  int64         // default 50 GiB
	Interval  time.Duration // default 1h
}

func (c Config) withDefaults() Config {
	if c.FailedTTL <= 0 {
		c.FailedTTL = 24 * time.Hour
	}
	if c.TTL <= 0 {
		c.TTL = 30 * 24 * time.Hour
	}
	if c.MaxBytes <= 0 {
		c.MaxBytes = 50 << 30
	}
	if c.Interval <= 0 {
		c.Interval = time.Hour
	}
	return c
}

// Result reports one cycle's outcome.
type Result struct {
	FailedFastDeleted int
	TTLDeleted        int
	SizeBudgetDeleted int
	FreedBytes        int64
}

// Collector runs GC cycles on a timer or on demand.
type Collector struct {
	store   Store
	bundles Bundles
	cfg     Config
	logger  *slog.Logger

	now func() time.Time
}

func NewCollector(store Store, bundles Bundles, cfg Config, logger *slog.Logger) *Collector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{
		store:   store,
		bundles: bundles,
		cfg:     cfg.withDefaults(),
		logger:  logger,
		now:     time.Now,
	}
}

// Run blocks, running a cycle immediately and then on every tick, until ctx
// is cancelled.
func (c *Collector) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce executes all three sweep phases in order: failed-fast, TTL,
// then size-budget. GC never touches entries with status running or
// pending, and never touches tmp directories — those are owned by the
// worker between create_tmp_dir and finalize_from_tmp.
func (c *Collector) RunOnce(ctx context.Context) Result {
	entries, err := c.store.ListCacheEntries(ctx)
	if err != nil {
		c.logger.Error("gc: list cache entries failed", "error", err)
		return Result{}
	}

	now := c.now()
	var result Result

	remaining := make([]model.CacheEntry, 0, len(entries))
	for _, e := range entries {
		if e.Status == model.CacheStatusFailed && now.Sub(e.UpdatedAt) > c.cfg.FailedTTL {
			freed := c.bundles.Size(e.CacheKey, string(e.SourceType))
			c.deleteEntry(ctx, e, false)
			result.FailedFastDeleted++
			result.FreedBytes += freed
			continue
		}
		remaining = append(remaining, e)
	}

	survivors := make([]model.CacheEntry, 0, len(remaining))
	for _, e := range remaining {
		if isActive(e.Status) {
			survivors = append(survivors, e)
			continue
		}
		if now.Sub(e.UpdatedAt) > c.cfg.TTL {
			freed := c.bundles.Size(e.CacheKey, string(e.SourceType))
			c.deleteEntry(ctx, e, true)
			result.TTLDeleted++
			result.FreedBytes += freed
			continue
		}
		survivors = append(survivors, e)
	}

	c.sweepSizeBudget(ctx, survivors, &result)

	c.logger.Info("gc: cycle complete",
		"failed_fast_deleted", result.FailedFastDeleted,
		"ttl_deleted", result.TTLDeleted,
		"size_budget_deleted", result.SizeBudgetDeleted,
		"freed_bytes", result.FreedBytes,
	)
	return result
}

// sweepSizeBudget deletes entries in least-recently-used order (by
// coalesce(last_accessed, updated_at)) until total size is back under
// MaxBytes, skipping running/pending entries.
func (c *Collector) sweepSizeBudget(ctx context.Context, entries []model.CacheEntry, result *Result) {
	sizes := make(map[string]int64, len(entries))
	var total int64
	for _, e := range entries {
		size := c.bundles.Size(e.CacheKey, string(e.SourceType))
		sizes[e.CacheKey] = size
		total += size
	}
	if total <= c.cfg.MaxBytes {
		return
	}

	candidates := make([]model.CacheEntry, 0, len(entries))
	for _, e := range entries {
		if !isActive(e.Status) {
			candidates = append(candidates, e)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return lastTouched(candidates[i]).Before(lastTouched(candidates[j]))
	})

	for _, e := range candidates {
		if total <= c.cfg.MaxBytes {
			break
		}
		freed := sizes[e.CacheKey]
		c.deleteEntry(ctx, e, true)
		total -= freed
		result.SizeBudgetDeleted++
		result.FreedBytes += freed
	}
}

// deleteEntry removes both the bundle directory and the store row.
// archiveAware selects DeleteBundleWithArchive for TTL/size-budget deletes
// (worth mirroring to cold storage) versus plain DeleteBundle for
// failed-fast deletes (not worth archiving a run that never produced a
// usable summary).
func (c *Collector) deleteEntry(ctx context.Context, e model.CacheEntry, archiveAware bool) {
	var ok bool
	if archiveAware {
		ok = c.bundles.DeleteBundleWithArchive(e.CacheKey, string(e.SourceType))
	} else {
		ok = c.bundles.DeleteBundle(e.CacheKey, string(e.SourceType))
	}
	if !ok {
		c.logger.Warn("gc: bundle delete reported failure", "cache_key", e.CacheKey)
	}
	if err := c.store.DeleteCacheEntry(ctx, e.CacheKey); err != nil {
		c.logger.Error("gc: delete cache entry failed", "cache_key", e.CacheKey, "error", err)
	}
}

func isActive(status model.CacheStatus) bool {
	return status == model.CacheStatusRunning || status == model.CacheStatusPending
}

func lastTouched(e model.CacheEntry) time.Time {
	if e.LastAccessed != nil {
		return *e.LastAccessed
	}
	return e.UpdatedAt
}
