package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vidsum-dev/vidsum/internal/cachesvc"
)

// JobResponse merges a job record with its cache entry's current state, so
// a poller never has to make a second request to learn the outcome.
type JobResponse struct {
	JobID       string  `json:"job_id"`
	CacheKey    string  `json:"cache_key"`
	Status      string  `json:"status"`
	Error       *string `json:"error,omitempty"`
	SummaryText *string `json:"summary_text,omitempty"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}

// JobHandler serves GET /api/jobs/{job_id}.
type JobHandler struct {
	cache  *cachesvc.CachedService
	logger *slog.Logger
}

func NewJobHandler(cache *cachesvc.CachedService, logger *slog.Logger) *JobHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobHandler{cache: cache, logger: logger}
}

func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")

	job, err := h.cache.GetJob(r.Context(), jobID)
	if err != nil {
		h.logger.Error("job: get failed", "error", err, "job_id", jobID)
		InternalError(w, r)
		return
	}
	if job == nil {
		Error(w, r, http.StatusNotFound, CodeNotFound, "job not found")
		return
	}

	resp := JobResponse{
		JobID: job.JobID, CacheKey: job.CacheKey, Status: string(job.Status), Error: job.Error,
		CreatedAt: job.CreatedAt.Format(timeLayout), UpdatedAt: job.UpdatedAt.Format(timeLayout),
	}

	if entry, err := h.cache.GetEntry(r.Context(), job.CacheKey); err == nil && entry != nil {
		resp.SummaryText = entry.SummaryText
	}

	JSON(w, http.StatusOK, resp)
}
