package jobqueue

import "context"

// JobEvent is published once a job reaches a terminal state.
type JobEvent struct {
	JobID    string
	CacheKey string
	Status   string // "completed" | "failed"
	Error    string
}

// EventPublisher is a one-way sink for job-lifecycle events. A nil
// EventPublisher is valid — the worker simply skips publishing.
type EventPublisher interface {
	Publish(ctx context.Context, event JobEvent) error
}
