package jobqueue

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/vidsum-dev/vidsum/internal/model"
	"github.com/vidsum-dev/vidsum/internal/pipeline"
)

func TestQueue_ProcessesEnqueuedJobs(t *testing.T) {
	bundles := newTestBundleManager(t)
	cache := &stubCacheService{
		entry: &model.CacheEntry{CacheKey: "ck", SourceType: model.SourceTypeLocal, SourceRef: "ref"},
	}
	registry := newTestRegistry(func(ctx *pipeline.Context, params map[string]any) error {
		writeTestSummary(t, ctx.WorkDir, "summary")
		return nil
	})

	exec := NewExecutor(ExecutorConfig{
		Cache:          cache,
		Bundles:        bundles,
		Registry:       registry,
		ProfileVersion: testProfileVersion,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	queue := NewQueue(QueueConfig{
		Executor:    exec,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		WorkerCount: 2,
		BufferSize:  8,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	queue.Start(ctx)
	queue.Start(ctx) // idempotent: must not start a second pool

	const jobCount = 5
	for i := 0; i < jobCount; i++ {
		job := Job{JobID: "job", CacheKey: "ck", SourceType: "local", LocalInputType: "audio"}
		if err := queue.Enqueue(ctx, job); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	deadline := time.After(2 * time.Second)
	for cache.completedCount() < jobCount {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for jobs to complete, got %d/%d", cache.completedCount(), jobCount)
		case <-time.After(10 * time.Millisecond):
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	queue.Stop(shutdownCtx)
}

func TestQueue_EnqueueRespectsContextCancellation(t *testing.T) {
	bundles := newTestBundleManager(t)
	cache := &stubCacheService{entry: &model.CacheEntry{CacheKey: "ck", SourceType: model.SourceTypeLocal}}
	registry := newTestRegistry(func(ctx *pipeline.Context, params map[string]any) error { return nil })

	exec := NewExecutor(ExecutorConfig{
		Cache:          cache,
		Bundles:        bundles,
		Registry:       registry,
		ProfileVersion: testProfileVersion,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	// Single-slot queue with no workers running: the first Enqueue fills the
	// channel, the second must block until ctx is cancelled.
	queue := NewQueue(QueueConfig{Executor: exec, BufferSize: 1})

	fullCtx := context.Background()
	if err := queue.Enqueue(fullCtx, Job{JobID: "a"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	cancelCtx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := queue.Enqueue(cancelCtx, Job{JobID: "b"}); err == nil {
		t.Fatal("expected Enqueue to return an error once ctx is cancelled")
	}
}
