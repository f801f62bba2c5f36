// Package model holds the core domain types shared across the service:
// uploads, cache entries, jobs and their status enums.
package model

import (
	"strings"
	"time"
)

// CacheStatus is the lifecycle state of a cache entry.
type CacheStatus string

const (
	CacheStatusPending   CacheStatus = "pending"
	CacheStatusRunning   CacheStatus = "running"
	CacheStatusCompleted CacheStatus = "completed"
	CacheStatusFailed    CacheStatus = "failed"
)

func (s CacheStatus) IsValid() bool {
	switch s {
	case CacheStatusPending, CacheStatusRunning, CacheStatusCompleted, CacheStatusFailed:
		return true
	default:
		return false
	}
}

// SourceType identifies where a cache entry's bytes originated from.
type SourceType string

const (
	SourceTypeURL   SourceType = "url"
	SourceTypeLocal SourceType = "local"
)

func (s SourceType) IsValid() bool {
	return s == SourceTypeURL || s == SourceTypeLocal
}

// CacheEntry is the persistence-authoritative record for a cache_key.
// In-memory/Redis copies are advisory; this row is the serialization point.
type CacheEntry struct {
	CacheKey        string
	SourceType      SourceType
	SourceRef       string // normalized URL or file hash
	SourceName      *string
	Status          CacheStatus
	ProfileVersion  string
	SummaryText     *string
	BundlePath      string
	Error           *string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastAccessed    *time.Time
}

// JobStatus is the lifecycle state of a processing job.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// JobRecord tracks a single pipeline run against a cache_key.
type JobRecord struct {
	JobID     string
	CacheKey  string
	Status    JobStatus
	Error     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UploadRecord tracks a locally-stored uploaded file pending or used by a job.
type UploadRecord struct {
	FileID       string
	OriginalName string
	StoredPath   string
	SizeBytes    int64
	ContentType  string
	FileType     string // "video" | "audio" | "subtitle"
	FileHash     string
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// InvalidSummaryPrefixes are sentinel prefixes that mark a summary_text as a
// failure description rather than real content, even though it was written
// to a "completed" entry. Kept as literal strings (not translated) because
// they are produced verbatim by the summarization stage.
var InvalidSummaryPrefixes = []string{
	"无法生成摘要",
	"总结生成失败",
	"无有效信息",
}

// IsSummaryTextValid reports whether text is a usable, non-sentinel summary.
func IsSummaryTextValid(text *string) bool {
	if text == nil {
		return false
	}
	trimmed := strings.TrimSpace(*text)
	if trimmed == "" {
		return false
	}
	for _, prefix := range InvalidSummaryPrefixes {
		if strings.HasPrefix(trimmed, prefix) {
			return false
		}
	}
	return true
}
