package jobqueue

import (
	"context"
	"log/slog"
	"sync"
)

// Queue is an in-process FIFO job queue backed by a buffered channel and a
// fixed pool of workers, each driving jobs through an Executor. Start is
// idempotent; Stop lets in-flight jobs drain before returning (or until the
// deadline baked into the context passed to Stop elapses).
type Queue struct {
	executor *Executor
	logger   *slog.Logger

	jobs chan Job

	workerCount int
	wg          sync.WaitGroup

	startOnce sync.Once
	cancel    context.CancelFunc
}

// QueueConfig wires a Queue's dependencies and tunables.
type QueueConfig struct {
	Executor *Executor
	Logger   *slog.Logger

	// WorkerCount is the number of concurrent job executions. Defaults to 1.
	WorkerCount int

	// BufferSize bounds how many jobs can be enqueued before Enqueue blocks.
	// Defaults to 64.
	BufferSize int
}

func NewQueue(cfg QueueConfig) *Queue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}
	bufferSize := cfg.BufferSize
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Queue{
		executor:    cfg.Executor,
		logger:      logger,
		jobs:        make(chan Job, bufferSize),
		workerCount: workerCount,
	}
}

// Enqueue submits a job for processing. It blocks if the internal buffer is
// full, or returns ctx.Err() if ctx is cancelled first.
func (q *Queue) Enqueue(ctx context.Context, job Job) error {
	select {
	case q.jobs <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Start launches the worker pool. Calling Start more than once is a no-op.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		workerCtx, cancel := context.WithCancel(ctx)
		q.cancel = cancel

		for i := 0; i < q.workerCount; i++ {
			q.wg.Add(1)
			go q.worker(workerCtx, i)
		}
		q.logger.Info("jobqueue: worker pool started", "workers", q.workerCount)
	})
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()
	logger := q.logger.With("worker_id", id)

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-q.jobs:
			if !ok {
				return
			}
			logger.Info("jobqueue: executing job", "job_id", job.JobID)
			q.executor.Execute(ctx, job)
		}
	}
}

// Stop cancels the worker pool's context so workers exit once their current
// job finishes, then waits for them to drain or for shutdownCtx to expire,
// whichever comes first.
func (q *Queue) Stop(shutdownCtx context.Context) {
	if q.cancel != nil {
		q.cancel()
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("jobqueue: all workers drained")
	case <-shutdownCtx.Done():
		q.logger.Warn("jobqueue: shutdown deadline exceeded, workers may still be running")
	}
}
