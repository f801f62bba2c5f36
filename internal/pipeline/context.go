package pipeline

import (
	"sync"
	"time"
)

// TraceEvent records one node's execution outcome for observability.
type TraceEvent struct {
	NodeID     string    `json:"node_id"`
	Status     string    `json:"status"` // completed | skipped | failed
	ElapsedMS  int64     `json:"elapsed_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	OutputKeys []string  `json:"output_keys,omitempty"`
	At         time.Time `json:"at"`
}

// Context is threaded through every stage's Run call. It carries the job's
// inputs, a free-form extra bag for stage outputs, and the execution trace.
// It is intentionally NOT a package-level singleton: callers construct and
// pass one per job.
type Context struct {
	mu sync.RWMutex

	JobID      string
	CacheKey   string
	SourceType string
	WorkDir    string // the job's tmp bundle directory

	extra map[string]any
	trace []TraceEvent
}

// NewContext creates an empty pipeline context for one job run.
func NewContext(jobID, cacheKey, sourceType, workDir string) *Context {
	return &Context{
		JobID:      jobID,
		CacheKey:   cacheKey,
		SourceType: sourceType,
		WorkDir:    workDir,
		extra:      make(map[string]any),
	}
}

// Get retrieves a value set by an earlier stage.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.extra[key]
	return v, ok
}

// Set stores a value for downstream stages and condition evaluation.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.extra[key] = value
}

// ToEvalNamespace returns a snapshot safe to hand to the condition evaluator.
func (c *Context) ToEvalNamespace() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	ns := make(map[string]any, len(c.extra)+3)
	for k, v := range c.extra {
		ns[k] = v
	}
	ns["job_id"] = c.JobID
	ns["cache_key"] = c.CacheKey
	ns["source_type"] = c.SourceType
	return ns
}

// AddTrace appends an execution trace entry.
func (c *Context) AddTrace(event TraceEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	event.At = time.Now()
	c.trace = append(c.trace, event)
}

// Trace returns a copy of the accumulated trace events.
func (c *Context) Trace() []TraceEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]TraceEvent, len(c.trace))
	copy(out, c.trace)
	return out
}
