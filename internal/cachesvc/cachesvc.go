// Package cachesvc implements the cache lookup/creation/validation service:
// the single place that decides whether a cache entry's summary is trusted
// enough to serve without running the pipeline again.
package cachesvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vidsum-dev/vidsum/internal/bundle"
	"github.com/vidsum-dev/vidsum/internal/cachekey"
	"github.com/vidsum-dev/vidsum/internal/infrastructure/metrics"
	"github.com/vidsum-dev/vidsum/internal/model"
)

// Store is the persistence contract cachesvc depends on. The postgres
// implementation lives under internal/infrastructure/store.
type Store interface {
	GetCacheEntry(ctx context.Context, cacheKey string) (*model.CacheEntry, error)
	ListCacheEntries(ctx context.Context) ([]model.CacheEntry, error)
	CreateCacheEntry(ctx context.Context, entry model.CacheEntry) error
	UpdateCacheEntry(ctx context.Context, cacheKey string, fields UpdateFields) error
	TouchCacheEntry(ctx context.Context, cacheKey string) error
	DeleteCacheEntry(ctx context.Context, cacheKey string) error

	CreateJob(ctx context.Context, job model.JobRecord) error
	GetJob(ctx context.Context, jobID string) (*model.JobRecord, error)
	UpdateJob(ctx context.Context, jobID string, status model.JobStatus, errMsg *string) error
	GetLatestJobForCacheKey(ctx context.Context, cacheKey string) (*model.JobRecord, error)
}

// UpdateFields is a sparse patch for UpdateCacheEntry; nil fields are left
// unchanged except where noted.
type UpdateFields struct {
	Status         *model.CacheStatus
	SummaryText    *string
	Error          *string
	SourceName     *string
	ProfileVersion *string
}

// LookupResult mirrors the original service's CacheLookupResult: the
// outcome of a cache lookup regardless of hit/miss/in-progress/failed.
type LookupResult struct {
	Hit         bool
	Status      string // completed | running | pending | failed | not_found
	CacheKey    string
	SourceName  *string
	SummaryText *string
	BundlePath  string
	JobID       string
	Error       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Service is the cache lookup/creation/validation/GC-support surface.
type Service struct {
	store          Store
	bundles        *bundle.Manager
	profileVersion string
	logger         *slog.Logger

	createGroup singleflight.Group
}

// Config wires a Service's dependencies.
type Config struct {
	Store          Store
	Bundles        *bundle.Manager
	ProfileVersion string
	Logger         *slog.Logger
}

func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:          cfg.Store,
		bundles:        cfg.Bundles,
		profileVersion: cfg.ProfileVersion,
		logger:         logger,
	}
}

// Lookup resolves a source (URL or local file hash) to a cache_key and
// reports its current status. When the stored status is "completed" and
// strict is true, the entry is revalidated against its bundle before being
// reported as a hit; an entry that fails revalidation is demoted to
// "failed" and reported as a miss, matching the reference service's
// self-healing behavior so a corrupted bundle never masquerades as a hit.
func (s *Service) Lookup(ctx context.Context, sourceType, sourceURL, fileHash string, strict, touch, allowStale bool) (LookupResult, error) {
	cacheKey, err := cachekey.ComputeFromSource(ctx, sourceType, sourceURL, fileHash, nil)
	if err != nil {
		return LookupResult{Hit: false, Status: "not_found", Error: err.Error()}, nil
	}

	entry, err := s.store.GetCacheEntry(ctx, cacheKey)
	if err != nil {
		return LookupResult{}, fmt.Errorf("cachesvc: lookup: %w", err)
	}
	if entry == nil {
		return LookupResult{Hit: false, Status: "not_found", CacheKey: cacheKey}, nil
	}

	if touch {
		if err := s.store.TouchCacheEntry(ctx, cacheKey); err != nil {
			s.logger.Warn("cachesvc: touch failed", "cache_key", cacheKey, "error", err)
		}
	}

	switch entry.Status {
	case model.CacheStatusCompleted:
		if strict {
			valid, reason := s.isCacheValid(ctx, entry)
			if !valid {
				s.logger.Warn("cachesvc: cache entry invalid", "cache_key", cacheKey, "reason", reason)
				_ = s.UpdateStatus(ctx, cacheKey, model.CacheStatusFailed, nil, &reason, nil)
				return LookupResult{
					Hit: false, Status: "failed", CacheKey: cacheKey,
					SourceName: entry.SourceName, Error: reason,
					CreatedAt: entry.CreatedAt, UpdatedAt: entry.UpdatedAt,
				}, nil
			}
		}
		return LookupResult{
			Hit: true, Status: "completed", CacheKey: cacheKey,
			SourceName: entry.SourceName, SummaryText: entry.SummaryText,
			BundlePath: entry.BundlePath, CreatedAt: entry.CreatedAt, UpdatedAt: entry.UpdatedAt,
		}, nil

	case model.CacheStatusRunning, model.CacheStatusPending:
		jobID := ""
		if job, err := s.store.GetLatestJobForCacheKey(ctx, cacheKey); err == nil && job != nil {
			jobID = job.JobID
		}
		return LookupResult{
			Hit: false, Status: string(entry.Status), CacheKey: cacheKey,
			SourceName: entry.SourceName, JobID: jobID,
			CreatedAt: entry.CreatedAt, UpdatedAt: entry.UpdatedAt,
		}, nil

	case model.CacheStatusFailed:
		errMsg := ""
		if entry.Error != nil {
			errMsg = *entry.Error
		}
		result := LookupResult{Hit: false, Status: "failed", CacheKey: cacheKey, SourceName: entry.SourceName, Error: errMsg}
		if allowStale {
			result.CreatedAt = entry.CreatedAt
			result.UpdatedAt = entry.UpdatedAt
		}
		return result, nil
	}

	return LookupResult{Hit: false, Status: "not_found", CacheKey: cacheKey}, nil
}

// isCacheValid runs the strict validation chain: store status, store
// summary_text, bundle manifest existence/profile/status, bundle
// summary.json schema/profile/text, and cross-consistency between the
// store's summary_text and the bundle's.
func (s *Service) isCacheValid(ctx context.Context, entry *model.CacheEntry) (bool, string) {
	if entry.Status != model.CacheStatusCompleted {
		return false, "cache_status_invalid"
	}
	if !model.IsSummaryTextValid(entry.SummaryText) {
		return false, "summary_text_invalid"
	}

	manifest, err := s.bundles.LoadManifest(entry.CacheKey, string(entry.SourceType))
	if err != nil || manifest == nil {
		return false, "bundle_manifest_missing"
	}
	if manifest.ProfileVersion != s.profileVersion {
		return false, "profile_version_mismatch"
	}
	if manifest.Status != string(model.CacheStatusCompleted) {
		return false, "bundle_status_invalid"
	}

	summaryJSON, ok := s.loadSummaryJSON(entry.CacheKey, string(entry.SourceType))
	if !ok {
		return false, "summary_json_invalid"
	}
	if !model.IsSummaryTextValid(&summaryJSON.SummaryText) {
		return false, "summary_text_invalid"
	}
	if summaryJSON.ProfileVersion != s.profileVersion {
		return false, "summary_json_invalid"
	}
	if entry.SummaryText != nil && strings.TrimSpace(summaryJSON.SummaryText) != strings.TrimSpace(*entry.SummaryText) {
		return false, "summary_text_mismatch"
	}

	return true, ""
}

type summaryJSON struct {
	SummaryText    string `json:"summary_text"`
	Model          string `json:"model"`
	InputChars     int    `json:"input_chars"`
	ProfileVersion string `json:"profile_version"`
}

func (s *Service) loadSummaryJSON(cacheKey, sourceType string) (summaryJSON, bool) {
	path := filepath.Join(s.bundles.BundleDir(cacheKey, sourceType), "summary.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return summaryJSON{}, false
	}
	var out summaryJSON
	if err := json.Unmarshal(data, &out); err != nil {
		return summaryJSON{}, false
	}
	if out.Model == "" || out.ProfileVersion == "" {
		return summaryJSON{}, false
	}
	return out, true
}

// GetOrCreateEntry returns the existing cache entry for cacheKey, or creates
// a fresh pending one. Concurrent calls for the same cache_key are
// coalesced through a singleflight group so two simultaneous first-time
// lookups create exactly one row, resolving the
// reference service's documented per-key locking gap.
func (s *Service) GetOrCreateEntry(ctx context.Context, cacheKey, sourceType, sourceRef string, sourceName *string) (*model.CacheEntry, error) {
	v, err, shared := s.createGroup.Do(cacheKey, func() (any, error) {
		return s.getOrCreateEntryLocked(ctx, cacheKey, sourceType, sourceRef, sourceName)
	})
	if shared {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightShared).Inc()
	} else {
		metrics.SingleflightRequestsTotal.WithLabelValues(metrics.SingleflightInitiated).Inc()
	}
	if err != nil {
		return nil, err
	}
	return v.(*model.CacheEntry), nil
}

func (s *Service) getOrCreateEntryLocked(ctx context.Context, cacheKey, sourceType, sourceRef string, sourceName *string) (*model.CacheEntry, error) {
	existing, err := s.store.GetCacheEntry(ctx, cacheKey)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		if existing.ProfileVersion != s.profileVersion {
			pending := model.CacheStatusPending
			empty := ""
			if err := s.store.UpdateCacheEntry(ctx, cacheKey, UpdateFields{
				Status: &pending, SummaryText: &empty, Error: &empty, ProfileVersion: &s.profileVersion,
			}); err != nil {
				return nil, err
			}
			return s.store.GetCacheEntry(ctx, cacheKey)
		}
		if sourceName != nil && *sourceName != "" && (existing.SourceName == nil || *existing.SourceName == "") {
			if err := s.store.UpdateCacheEntry(ctx, cacheKey, UpdateFields{SourceName: sourceName}); err != nil {
				return nil, err
			}
			return s.store.GetCacheEntry(ctx, cacheKey)
		}
		return existing, nil
	}

	bundlePath := s.bundles.BundleDir(cacheKey, sourceType)
	entry := model.CacheEntry{
		CacheKey:       cacheKey,
		SourceType:     model.SourceType(sourceType),
		SourceRef:      sourceRef,
		SourceName:     sourceName,
		Status:         model.CacheStatusPending,
		ProfileVersion: s.profileVersion,
		BundlePath:     bundlePath,
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	}
	if err := s.store.CreateCacheEntry(ctx, entry); err != nil {
		return nil, err
	}
	s.logger.Info("cachesvc: created cache entry", "cache_key", cacheKey, "source_type", sourceType)

	created, err := s.store.GetCacheEntry(ctx, cacheKey)
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = &entry
	}
	return created, nil
}

// UpdateStatus updates a cache entry's status and, when the entry's bundle
// manifest exists, keeps it in sync so the two never disagree.
func (s *Service) UpdateStatus(ctx context.Context, cacheKey string, status model.CacheStatus, summaryText, errMsg, sourceName *string) error {
	if err := s.store.UpdateCacheEntry(ctx, cacheKey, UpdateFields{
		Status: &status, SummaryText: summaryText, Error: errMsg, SourceName: sourceName,
	}); err != nil {
		return fmt.Errorf("cachesvc: update status: %w", err)
	}

	entry, err := s.store.GetCacheEntry(ctx, cacheKey)
	if err != nil || entry == nil {
		return nil
	}

	manifest, err := s.bundles.LoadManifest(cacheKey, string(entry.SourceType))
	if err != nil || manifest == nil {
		return nil
	}
	manifest.Status = string(status)
	if summaryText != nil {
		manifest.SummaryText = summaryText
	}
	if errMsg != nil {
		manifest.Error = errMsg
	}
	if err := s.bundles.SaveManifest(cacheKey, string(entry.SourceType), manifest); err != nil {
		s.logger.Warn("cachesvc: failed to sync bundle manifest", "cache_key", cacheKey, "error", err)
	}

	s.logger.Info("cachesvc: status updated", "cache_key", cacheKey, "status", status)
	return nil
}

// CreateJob creates and persists a new job row tied to cacheKey.
func (s *Service) CreateJob(ctx context.Context, jobID, cacheKey string) error {
	return s.store.CreateJob(ctx, model.JobRecord{
		JobID: jobID, CacheKey: cacheKey, Status: model.JobStatusPending,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})
}

// GetJob returns a job by ID.
func (s *Service) GetJob(ctx context.Context, jobID string) (*model.JobRecord, error) {
	return s.store.GetJob(ctx, jobID)
}

// UpdateJob updates a job's status and optional error.
func (s *Service) UpdateJob(ctx context.Context, jobID string, status model.JobStatus, errMsg *string) error {
	return s.store.UpdateJob(ctx, jobID, status, errMsg)
}

// GetEntry returns the raw cache entry for a key, or nil if absent.
func (s *Service) GetEntry(ctx context.Context, cacheKey string) (*model.CacheEntry, error) {
	return s.store.GetCacheEntry(ctx, cacheKey)
}

// TouchEntry records a last_accessed hit on a known cache_key and returns the
// entry, or nil if it doesn't exist. Unlike Lookup, it never recomputes the
// cache_key from a source, since the caller already has it in hand.
func (s *Service) TouchEntry(ctx context.Context, cacheKey string) (*model.CacheEntry, error) {
	entry, err := s.store.GetCacheEntry(ctx, cacheKey)
	if err != nil {
		return nil, fmt.Errorf("cachesvc: touch entry: %w", err)
	}
	if entry == nil {
		return nil, nil
	}
	if err := s.store.TouchCacheEntry(ctx, cacheKey); err != nil {
		s.logger.Warn("cachesvc: touch failed", "cache_key", cacheKey, "error", err)
		return entry, nil
	}
	updated, err := s.store.GetCacheEntry(ctx, cacheKey)
	if err != nil || updated == nil {
		return entry, nil
	}
	return updated, nil
}

// GetBundleManifest loads the bundle manifest for a cache entry's key.
func (s *Service) GetBundleManifest(ctx context.Context, cacheKey string) (*bundle.Manifest, error) {
	entry, err := s.store.GetCacheEntry(ctx, cacheKey)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, nil
	}
	return s.bundles.LoadManifest(cacheKey, string(entry.SourceType))
}

// DeleteEntry removes a cache entry's bundle and database row.
func (s *Service) DeleteEntry(ctx context.Context, cacheKey string) (bool, error) {
	entry, err := s.store.GetCacheEntry(ctx, cacheKey)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	s.bundles.DeleteBundleWithArchive(cacheKey, string(entry.SourceType))
	if err := s.store.DeleteCacheEntry(ctx, cacheKey); err != nil {
		return false, err
	}
	s.logger.Info("cachesvc: deleted cache entry", "cache_key", cacheKey)
	return true, nil
}
