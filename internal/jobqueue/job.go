// Package jobqueue is the in-process FIFO job queue and worker pool that
// drives a pipeline.Runner per job: build a DAG for the job's source, run
// it against a tmp bundle directory, validate the result, and finalize or
// fail the cache entry.
package jobqueue

// Job is one unit of pipeline work, keyed to a cache entry.
type Job struct {
	JobID      string
	CacheKey   string
	SourceType string // "url" | "local"

	SourceURL string // required when SourceType == "url"

	LocalInputType string // "subtitle" | "audio" | "video", required when SourceType == "local"
	LocalInputPath string

	FileHash  string
	RequestID string
}
