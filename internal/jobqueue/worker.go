package jobqueue

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/vidsum-dev/vidsum/internal/bundle"
	"github.com/vidsum-dev/vidsum/internal/model"
	"github.com/vidsum-dev/vidsum/internal/pipeline"
	"github.com/vidsum-dev/vidsum/internal/pipeline/stage"
)

// CacheService is the slice of cachesvc.Service the executor depends on,
// kept narrow so tests can supply a stub.
type CacheService interface {
	GetEntry(ctx context.Context, cacheKey string) (*model.CacheEntry, error)
	UpdateStatus(ctx context.Context, cacheKey string, status model.CacheStatus, summaryText, errMsg, sourceName *string) error
	UpdateJob(ctx context.Context, jobID string, status model.JobStatus, errMsg *string) error
}

// Executor runs one job's pipeline end to end: DAG construction, stage
// execution, publication-gate validation, manifest write, and finalize.
type Executor struct {
	cache     CacheService
	bundles   *bundle.Manager
	registry  *pipeline.Registry
	publisher EventPublisher

	profileVersion string
	logger         *slog.Logger
}

// ExecutorConfig wires an Executor's dependencies.
type ExecutorConfig struct {
	Cache          CacheService
	Bundles        *bundle.Manager
	Registry       *pipeline.Registry
	Publisher      EventPublisher // optional
	ProfileVersion string
	Logger         *slog.Logger
}

func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		cache:          cfg.Cache,
		bundles:        cfg.Bundles,
		registry:       cfg.Registry,
		publisher:      cfg.Publisher,
		profileVersion: cfg.ProfileVersion,
		logger:         logger,
	}
}

// Execute runs job to completion, always leaving the cache entry and job
// record in a terminal state (completed or failed).
func (e *Executor) Execute(ctx context.Context, job Job) {
	logger := e.logger.With("job_id", job.JobID, "cache_key", job.CacheKey)

	// Step 1: mark running.
	_ = e.cache.UpdateJob(ctx, job.JobID, model.JobStatusRunning, nil)
	if err := e.cache.UpdateStatus(ctx, job.CacheKey, model.CacheStatusRunning, nil, nil, nil); err != nil {
		logger.Error("jobqueue: failed to mark cache entry running", "error", err)
	}

	summaryText, sourceName, err := e.run(ctx, job, logger)
	if err != nil {
		e.fail(ctx, job, logger, err)
		return
	}
	e.complete(ctx, job, logger, summaryText, sourceName)
}

func (e *Executor) run(ctx context.Context, job Job, logger *slog.Logger) (summaryText string, sourceName *string, err error) {
	// Step 2: tmp dir + bundle scaffold + pipeline context.
	tmpDir, err := e.bundles.CreateTmpDir(job.JobID)
	if err != nil {
		return "", nil, fmt.Errorf("create_tmp_dir_failed: %w", err)
	}

	entry, err := e.cache.GetEntry(ctx, job.CacheKey)
	if err != nil || entry == nil {
		return "", nil, fmt.Errorf("cache_entry_missing")
	}
	sourceName = entry.SourceName

	if _, err := e.bundles.CreateBundle(tmpDir, job.CacheKey, job.SourceType, entry.SourceRef, sourceName); err != nil {
		return "", nil, fmt.Errorf("bundle_create_failed: %w", err)
	}

	pctx := pipeline.NewContext(job.JobID, job.CacheKey, job.SourceType, tmpDir)
	pctx.Set(stage.KeySourceType, job.SourceType)
	pctx.Set(stage.KeySourceURL, job.SourceURL)
	pctx.Set(stage.KeyLocalInputType, job.LocalInputType)
	pctx.Set(stage.KeyLocalInputPath, job.LocalInputPath)

	// Step 3: build the DAG for this job's source.
	graph, err := BuildGraph(job)
	if err != nil {
		return "", sourceName, fmt.Errorf("dag_build_failed: %w", err)
	}

	// Step 4: run the pipeline.
	runner := pipeline.NewRunner(graph, e.registry, logger)
	if err := runner.Run(pctx); err != nil {
		return "", sourceName, fmt.Errorf("pipeline_failed: %w", err)
	}

	// Steps 5-6: publication gate — summary.json must exist, parse, carry a
	// non-empty non-sentinel summary_text, and match the running profile
	// version.
	summaryText, err = stage.ReadSummaryArtifact(tmpDir, e.profileVersion)
	if err != nil {
		return "", sourceName, fmt.Errorf("summary_invalid: %w", err)
	}

	// Step 7: populate the manifest's artifact entries with computed sizes
	// and hashes for whichever files the stages actually produced.
	for artifactType, name := range bundle.ArtifactNames {
		path := filepath.Join(tmpDir, name)
		if _, statErr := os.Stat(path); statErr != nil {
			continue
		}
		if _, err := e.bundles.AddArtifact(tmpDir, artifactType, path, true); err != nil {
			return "", sourceName, fmt.Errorf("bundle_artifact_failed: %w", err)
		}
	}

	manifest, err := e.bundles.LoadManifestFromDir(tmpDir)
	if err != nil || manifest == nil {
		return "", sourceName, fmt.Errorf("bundle_manifest_missing")
	}
	manifest.Status = string(model.CacheStatusCompleted)
	manifest.SummaryText = &summaryText
	if err := e.bundles.SaveManifestToDir(tmpDir, manifest); err != nil {
		return "", sourceName, fmt.Errorf("bundle_manifest_write_failed: %w", err)
	}

	// Step 8: atomically publish the bundle.
	if err := e.bundles.FinalizeFromTmp(job.JobID, job.CacheKey, job.SourceType); err != nil {
		return "", sourceName, fmt.Errorf("bundle_finalize_failed: %w", err)
	}

	return summaryText, sourceName, nil
}

// complete is step 9's success branch.
func (e *Executor) complete(ctx context.Context, job Job, logger *slog.Logger, summaryText string, sourceName *string) {
	if err := e.cache.UpdateStatus(ctx, job.CacheKey, model.CacheStatusCompleted, &summaryText, nil, sourceName); err != nil {
		logger.Error("jobqueue: failed to mark cache entry completed", "error", err)
	}
	if err := e.cache.UpdateJob(ctx, job.JobID, model.JobStatusCompleted, nil); err != nil {
		logger.Error("jobqueue: failed to mark job completed", "error", err)
	}
	logger.Info("jobqueue: job completed")
	e.publish(ctx, JobEvent{JobID: job.JobID, CacheKey: job.CacheKey, Status: "completed"})
}

// fail is step 9's failure branch: record the error and clean up the tmp
// directory, since FinalizeFromTmp was never reached.
func (e *Executor) fail(ctx context.Context, job Job, logger *slog.Logger, runErr error) {
	reason := runErr.Error()
	if err := e.cache.UpdateStatus(ctx, job.CacheKey, model.CacheStatusFailed, nil, &reason, nil); err != nil {
		logger.Error("jobqueue: failed to mark cache entry failed", "error", err)
	}
	if err := e.cache.UpdateJob(ctx, job.JobID, model.JobStatusFailed, &reason); err != nil {
		logger.Error("jobqueue: failed to mark job failed", "error", err)
	}
	logger.Warn("jobqueue: job failed", "reason", reason)
	e.bundles.CleanupTmp(job.JobID)
	e.publish(ctx, JobEvent{JobID: job.JobID, CacheKey: job.CacheKey, Status: "failed", Error: reason})
}

func (e *Executor) publish(ctx context.Context, event JobEvent) {
	if e.publisher == nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.publisher.Publish(publishCtx, event); err != nil {
		e.logger.Warn("jobqueue: failed to publish job event", "job_id", event.JobID, "error", err)
	}
	_ = ctx
}
