// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vidsum"

var (
	// LookupCacheOperationsTotal tracks the advisory Redis lookup cache.
	// Labels:
	//   - operation: get, set, delete
	//   - status: hit, miss, success, error
	LookupCacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lookup_cache_operations_total",
			Help:      "Total number of advisory lookup cache operations",
		},
		[]string{"operation", "status"},
	)

	// DBQueriesTotal tracks store queries.
	// Labels:
	//   - query_type: select, insert, update, delete
	//   - table: cache_entries, jobs, uploads
	DBQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "db_queries_total",
			Help:      "Total number of database queries",
		},
		[]string{"query_type", "table"},
	)

	// SingleflightRequestsTotal tracks cachesvc.GetOrCreateEntry coalescing.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight get_or_create_entry requests",
		},
		[]string{"result"},
	)

	// GCSweepTotal tracks garbage collector outcomes per sweep phase.
	// Labels:
	//   - phase: failed_fast, ttl, size_budget
	GCSweepTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_sweep_entries_total",
			Help:      "Total number of cache entries deleted per GC sweep phase",
		},
		[]string{"phase"},
	)

	// GCFreedBytesTotal tracks bytes reclaimed by GC.
	GCFreedBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gc_freed_bytes_total",
			Help:      "Total number of bytes freed by garbage collection",
		},
	)

	// PipelineStageDuration tracks how long each pipeline stage takes to run.
	// Labels:
	//   - stage: input, fetch_metadata, download_subtitle, ...
	//   - outcome: completed, failed, skipped
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "pipeline_stage_duration_seconds",
			Help:      "Duration of a single pipeline stage execution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage", "outcome"},
	)

	// JobQueueDepth is the gauge for the number of jobs buffered in the
	// in-process queue. jobqueue.Queue does not set it, so it stays at zero.
	JobQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "job_queue_depth",
			Help:      "Number of jobs currently buffered in the in-process queue",
		},
	)
)

// ObserveStageDuration records a pipeline stage's wall-clock duration.
func ObserveStageDuration(stage, outcome string, d time.Duration) {
	PipelineStageDuration.WithLabelValues(stage, outcome).Observe(d.Seconds())
}

// Lookup cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
)

// Lookup cache operation type constants.
const (
	CacheOpGet    = "get"
	CacheOpSet    = "set"
	CacheOpDelete = "delete"
)

// DB query type constants.
const (
	DBQuerySelect = "select"
	DBQueryInsert = "insert"
	DBQueryUpdate = "update"
	DBQueryDelete = "delete"
)

// Table name constants.
const (
	TableCacheEntries = "cache_entries"
	TableJobs         = "jobs"
	TableUploads      = "uploads"
)

// GC sweep phase constants.
const (
	GCPhaseFailedFast = "failed_fast"
	GCPhaseTTL        = "ttl"
	GCPhaseSizeBudget = "size_budget"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)
