package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/vidsum-dev/vidsum/internal/cachesvc"
	"github.com/vidsum-dev/vidsum/internal/jobqueue"
	"github.com/vidsum-dev/vidsum/internal/model"
	"github.com/vidsum-dev/vidsum/internal/upload"
)

// SummaryRequest extends SourceRequest with the refresh flag that forces a
// new pipeline run even over a completed hit.
type SummaryRequest struct {
	SourceType string `json:"source_type" validate:"required,oneof=url local"`
	SourceURL  string `json:"source_url,omitempty"`
	FileID     string `json:"file_id,omitempty"`
	FileHash   string `json:"file_hash,omitempty"`
	Refresh    bool   `json:"refresh,omitempty"`
}

// JobEnqueuedResponse is returned with 202 when a summary isn't immediately
// available and the caller must poll GET /api/jobs/{job_id}.
type JobEnqueuedResponse struct {
	JobID    string `json:"job_id"`
	CacheKey string `json:"cache_key"`
	Status   string `json:"status"`
}

// SummaryHandler serves POST /api/summaries: the "give me a summary for
// this source, running the pipeline if necessary" entry point.
type SummaryHandler struct {
	cache   *cachesvc.CachedService
	uploads *upload.Manager
	queue   *jobqueue.Queue
	logger  *slog.Logger
}

func NewSummaryHandler(cache *cachesvc.CachedService, uploads *upload.Manager, queue *jobqueue.Queue, logger *slog.Logger) *SummaryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryHandler{cache: cache, uploads: uploads, queue: queue, logger: logger}
}

// resolvedSource carries everything needed both to compute/lookup a
// cache_key and, if a job must be enqueued, to build the jobqueue.Job.
type resolvedSource struct {
	sourceType string
	sourceURL  string
	fileHash   string

	localInputType string
	localInputPath string
	sourceName     *string
}

func (h *SummaryHandler) resolve(w http.ResponseWriter, r *http.Request, sourceType, sourceURL, fileID, fileHash string) (resolvedSource, bool) {
	if sourceType == "url" {
		if sourceURL == "" {
			Error(w, r, http.StatusBadRequest, CodeBadRequest, "source_url is required for source_type=url")
			return resolvedSource{}, false
		}
		return resolvedSource{sourceType: "url", sourceURL: sourceURL}, true
	}

	if fileID == "" {
		if fileHash == "" {
			Error(w, r, http.StatusBadRequest, CodeBadRequest, "file_id or file_hash is required for source_type=local")
			return resolvedSource{}, false
		}
		return resolvedSource{sourceType: "local", fileHash: fileHash}, true
	}

	record, err := h.uploads.Get(r.Context(), fileID)
	if err != nil {
		if errors.Is(err, upload.ErrNotFound) {
			Error(w, r, http.StatusNotFound, CodeNotFound, "file_id not found")
			return resolvedSource{}, false
		}
		h.logger.Error("summary: resolve file_id failed", "error", err)
		InternalError(w, r)
		return resolvedSource{}, false
	}

	return resolvedSource{
		sourceType:     "local",
		fileHash:       record.FileHash,
		localInputType: record.FileType,
		localInputPath: record.StoredPath,
		sourceName:     &record.OriginalName,
	}, true
}

// Create implements the lookup-or-enqueue decision: a completed, non-refresh
// hit returns 200 immediately; a pending/running entry (or a freshly
// enqueued one) returns 202 with a job_id to poll.
func (h *SummaryHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req SummaryRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	src, ok := h.resolve(w, r, req.SourceType, req.SourceURL, req.FileID, req.FileHash)
	if !ok {
		return
	}

	result, err := h.cache.Lookup(r.Context(), src.sourceType, src.sourceURL, src.fileHash, true, true, false)
	if err != nil {
		h.logger.Error("summary: lookup failed", "error", err)
		InternalError(w, r)
		return
	}

	if result.Hit && !req.Refresh {
		JSON(w, http.StatusOK, lookupResponseFromResult(result))
		return
	}
	if !req.Refresh && (result.Status == "running" || result.Status == "pending") {
		JSON(w, http.StatusAccepted, JobEnqueuedResponse{JobID: result.JobID, CacheKey: result.CacheKey, Status: result.Status})
		return
	}

	h.enqueue(w, r, result.CacheKey, src, req.Refresh, result.Status)
}

func (h *SummaryHandler) enqueue(w http.ResponseWriter, r *http.Request, cacheKey string, src resolvedSource, refresh bool, currentStatus string) {
	entry, err := h.cache.GetOrCreateEntry(r.Context(), cacheKey, src.sourceType, sourceRef(src), src.sourceName)
	if err != nil {
		h.logger.Error("summary: get_or_create_entry failed", "error", err, "cache_key", cacheKey)
		InternalError(w, r)
		return
	}

	if refresh && entry.Status != model.CacheStatusPending {
		if err := h.cache.UpdateStatus(r.Context(), cacheKey, model.CacheStatusPending, nil, nil, nil); err != nil {
			h.logger.Error("summary: reset to pending failed", "error", err, "cache_key", cacheKey)
			InternalError(w, r)
			return
		}
	}

	jobID := uuid.NewString()
	if err := h.cache.CreateJob(r.Context(), jobID, cacheKey); err != nil {
		h.logger.Error("summary: create_job failed", "error", err, "cache_key", cacheKey)
		InternalError(w, r)
		return
	}

	job := jobqueue.Job{
		JobID:          jobID,
		CacheKey:       cacheKey,
		SourceType:     src.sourceType,
		SourceURL:      src.sourceURL,
		LocalInputType: src.localInputType,
		LocalInputPath: src.localInputPath,
		FileHash:       src.fileHash,
		RequestID:      requestIDOf(r),
	}
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.logger.Error("summary: enqueue failed", "error", err, "cache_key", cacheKey)
		InternalError(w, r)
		return
	}

	JSON(w, http.StatusAccepted, JobEnqueuedResponse{JobID: jobID, CacheKey: cacheKey, Status: "pending"})
}

func sourceRef(src resolvedSource) string {
	if src.sourceType == "url" {
		return src.sourceURL
	}
	return src.fileHash
}
