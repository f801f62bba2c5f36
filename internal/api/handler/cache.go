package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vidsum-dev/vidsum/internal/cachesvc"
	"github.com/vidsum-dev/vidsum/internal/model"
	"github.com/vidsum-dev/vidsum/internal/upload"
)

// SourceRequest is the common body shape for any endpoint that resolves a
// source: either a remote URL, or a local file already ingested through
// POST /api/uploads, identified by file_id or a raw file_hash.
type SourceRequest struct {
	SourceType string `json:"source_type" validate:"required,oneof=url local"`
	SourceURL  string `json:"source_url,omitempty"`
	FileID     string `json:"file_id,omitempty"`
	FileHash   string `json:"file_hash,omitempty"`
}

// LookupResponse mirrors cachesvc.LookupResult's externally-visible fields.
type LookupResponse struct {
	Hit         bool    `json:"hit"`
	Status      string  `json:"status"`
	CacheKey    string  `json:"cache_key,omitempty"`
	SourceName  *string `json:"source_name,omitempty"`
	SummaryText *string `json:"summary_text,omitempty"`
	BundlePath  string  `json:"bundle_path,omitempty"`
	JobID       string  `json:"job_id,omitempty"`
	Error       string  `json:"error,omitempty"`
}

func lookupResponseFromResult(r cachesvc.LookupResult) LookupResponse {
	return LookupResponse{
		Hit: r.Hit, Status: r.Status, CacheKey: r.CacheKey,
		SourceName: r.SourceName, SummaryText: r.SummaryText,
		BundlePath: r.BundlePath, JobID: r.JobID, Error: r.Error,
	}
}

// CacheEntryResponse is the full cache entry shape returned by GET
// /api/cache/{cache_key}, which exposes internal bookkeeping the lookup
// endpoints deliberately omit.
type CacheEntryResponse struct {
	CacheKey       string  `json:"cache_key"`
	SourceType     string  `json:"source_type"`
	Status         string  `json:"status"`
	ProfileVersion string  `json:"profile_version"`
	SourceName     *string `json:"source_name,omitempty"`
	SummaryText    *string `json:"summary_text,omitempty"`
	BundlePath     string  `json:"bundle_path"`
	Error          *string `json:"error,omitempty"`
	CreatedAt      string  `json:"created_at"`
	UpdatedAt      string  `json:"updated_at"`
}

func cacheEntryResponseFromModel(e *model.CacheEntry) CacheEntryResponse {
	return CacheEntryResponse{
		CacheKey: e.CacheKey, SourceType: string(e.SourceType), Status: string(e.Status),
		ProfileVersion: e.ProfileVersion, SourceName: e.SourceName, SummaryText: e.SummaryText,
		BundlePath: e.BundlePath, Error: e.Error,
		CreatedAt: e.CreatedAt.Format(timeLayout), UpdatedAt: e.UpdatedAt.Format(timeLayout),
	}
}

const timeLayout = "2006-01-02T15:04:05Z07:00"

// CacheHandler serves the cache lookup/read/delete surface.
type CacheHandler struct {
	cache    *cachesvc.CachedService
	uploads  *upload.Manager
	logger   *slog.Logger
}

func NewCacheHandler(cache *cachesvc.CachedService, uploads *upload.Manager, logger *slog.Logger) *CacheHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &CacheHandler{cache: cache, uploads: uploads, logger: logger}
}

// resolveSource turns a SourceRequest into the (sourceType, sourceURL,
// fileHash) triple cachesvc needs, resolving file_id against the upload
// manager when the caller didn't already have the hash in hand.
func (h *CacheHandler) resolveSource(w http.ResponseWriter, r *http.Request, req SourceRequest) (sourceType, sourceURL, fileHash string, ok bool) {
	if req.SourceType == "url" {
		if req.SourceURL == "" {
			Error(w, r, http.StatusBadRequest, CodeBadRequest, "source_url is required for source_type=url")
			return "", "", "", false
		}
		return "url", req.SourceURL, "", true
	}

	fileHash = req.FileHash
	if fileHash == "" && req.FileID != "" {
		record, err := h.uploads.Get(r.Context(), req.FileID)
		if err != nil {
			if errors.Is(err, upload.ErrNotFound) {
				Error(w, r, http.StatusNotFound, CodeNotFound, "file_id not found")
				return "", "", "", false
			}
			h.logger.Error("cache: resolve file_id failed", "error", err)
			InternalError(w, r)
			return "", "", "", false
		}
		fileHash = record.FileHash
	}
	if fileHash == "" {
		Error(w, r, http.StatusBadRequest, CodeBadRequest, "file_id or file_hash is required for source_type=local")
		return "", "", "", false
	}
	return "local", "", fileHash, true
}

// Lookup serves POST /api/cache/lookup: a strict, non-touching read of the
// current cache state for a source.
func (h *CacheHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	var req SourceRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	sourceType, sourceURL, fileHash, ok := h.resolveSource(w, r, req)
	if !ok {
		return
	}

	result, err := h.cache.Lookup(r.Context(), sourceType, sourceURL, fileHash, true, false, false)
	if err != nil {
		h.logger.Error("cache: lookup failed", "error", err)
		InternalError(w, r)
		return
	}

	JSON(w, http.StatusOK, lookupResponseFromResult(result))
}

// Get serves GET /api/cache/{cache_key}: returns the full cache entry and
// records a last_accessed touch.
func (h *CacheHandler) Get(w http.ResponseWriter, r *http.Request) {
	cacheKey := chi.URLParam(r, "cache_key")

	entry, err := h.cache.TouchEntry(r.Context(), cacheKey)
	if err != nil {
		h.logger.Error("cache: get failed", "error", err, "cache_key", cacheKey)
		InternalError(w, r)
		return
	}
	if entry == nil {
		Error(w, r, http.StatusNotFound, CodeNotFound, "cache entry not found")
		return
	}

	JSON(w, http.StatusOK, cacheEntryResponseFromModel(entry))
}

// Delete serves DELETE /api/cache/{cache_key}: removes the entry's bundle
// and database row.
func (h *CacheHandler) Delete(w http.ResponseWriter, r *http.Request) {
	cacheKey := chi.URLParam(r, "cache_key")

	deleted, err := h.cache.DeleteEntry(r.Context(), cacheKey)
	if err != nil {
		h.logger.Error("cache: delete failed", "error", err, "cache_key", cacheKey)
		InternalError(w, r)
		return
	}
	if !deleted {
		Error(w, r, http.StatusNotFound, CodeNotFound, "cache entry not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
