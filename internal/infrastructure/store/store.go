package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vidsum-dev/vidsum/internal/cachesvc"
	"github.com/vidsum-dev/vidsum/internal/model"
)

// DBTX abstracts pgxpool.Pool and pgx.Tx for testability.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CacheStore implements cachesvc.Store against cache_entries and jobs tables.
type CacheStore struct {
	db DBTX
}

// NewCacheStore creates a new CacheStore instance.
func NewCacheStore(db DBTX) *CacheStore {
	return &CacheStore{db: db}
}

func (s *CacheStore) GetCacheEntry(ctx context.Context, cacheKey string) (*model.CacheEntry, error) {
	const query = `
		SELECT cache_key, source_type, source_ref, source_name, status, profile_version,
		       summary_text, bundle_path, error, created_at, updated_at, last_accessed
		FROM cache_entries
		WHERE cache_key = $1
	`

	entry, err := scanCacheEntry(s.db.QueryRow(ctx, query, cacheKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get cache entry: %w", err)
	}
	return entry, nil
}

func (s *CacheStore) ListCacheEntries(ctx context.Context) ([]model.CacheEntry, error) {
	const query = `
		SELECT cache_key, source_type, source_ref, source_name, status, profile_version,
		       summary_text, bundle_path, error, created_at, updated_at, last_accessed
		FROM cache_entries
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list cache entries: %w", err)
	}
	defer rows.Close()

	var entries []model.CacheEntry
	for rows.Next() {
		entry, err := scanCacheEntryFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan cache entry: %w", err)
		}
		entries = append(entries, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list cache entries: %w", err)
	}
	return entries, nil
}

func (s *CacheStore) CreateCacheEntry(ctx context.Context, entry model.CacheEntry) error {
	const query = `
		INSERT INTO cache_entries
			(cache_key, source_type, source_ref, source_name, status, profile_version,
			 summary_text, bundle_path, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (cache_key) DO NOTHING
	`

	_, err := s.db.Exec(ctx, query,
		entry.CacheKey,
		string(entry.SourceType),
		entry.SourceRef,
		entry.SourceName,
		string(entry.Status),
		entry.ProfileVersion,
		entry.SummaryText,
		entry.BundlePath,
		entry.Error,
		entry.CreatedAt,
		entry.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil
		}
		return fmt.Errorf("store: create cache entry: %w", err)
	}
	return nil
}

func (s *CacheStore) UpdateCacheEntry(ctx context.Context, cacheKey string, fields cachesvc.UpdateFields) error {
	const query = `
		UPDATE cache_entries
		SET status = COALESCE($2, status),
		    summary_text = CASE WHEN $3::boolean THEN $4 ELSE summary_text END,
		    error = CASE WHEN $5::boolean THEN $6 ELSE error END,
		    source_name = CASE WHEN $7::boolean THEN $8 ELSE source_name END,
		    profile_version = COALESCE($9, profile_version),
		    updated_at = $10
		WHERE cache_key = $1
	`

	var status *string
	if fields.Status != nil {
		s := string(*fields.Status)
		status = &s
	}

	_, err := s.db.Exec(ctx, query,
		cacheKey,
		status,
		fields.SummaryText != nil, fields.SummaryText,
		fields.Error != nil, fields.Error,
		fields.SourceName != nil, fields.SourceName,
		fields.ProfileVersion,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("store: update cache entry: %w", err)
	}
	return nil
}

func (s *CacheStore) TouchCacheEntry(ctx context.Context, cacheKey string) error {
	const query = `UPDATE cache_entries SET last_accessed = $2 WHERE cache_key = $1`
	_, err := s.db.Exec(ctx, query, cacheKey, time.Now())
	if err != nil {
		return fmt.Errorf("store: touch cache entry: %w", err)
	}
	return nil
}

func (s *CacheStore) DeleteCacheEntry(ctx context.Context, cacheKey string) error {
	const query = `DELETE FROM cache_entries WHERE cache_key = $1`
	_, err := s.db.Exec(ctx, query, cacheKey)
	if err != nil {
		return fmt.Errorf("store: delete cache entry: %w", err)
	}
	return nil
}

func (s *CacheStore) CreateJob(ctx context.Context, job model.JobRecord) error {
	const query = `
		INSERT INTO jobs (job_id, cache_key, status, error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := s.db.Exec(ctx, query, job.JobID, job.CacheKey, string(job.Status), job.Error, job.CreatedAt, job.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create job: %w", err)
	}
	return nil
}

func (s *CacheStore) GetJob(ctx context.Context, jobID string) (*model.JobRecord, error) {
	const query = `
		SELECT job_id, cache_key, status, error, created_at, updated_at
		FROM jobs
		WHERE job_id = $1
	`
	job, err := scanJob(s.db.QueryRow(ctx, query, jobID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get job: %w", err)
	}
	return job, nil
}

func (s *CacheStore) UpdateJob(ctx context.Context, jobID string, status model.JobStatus, errMsg *string) error {
	const query = `
		UPDATE jobs
		SET status = $2, error = $3, updated_at = $4
		WHERE job_id = $1
	`
	_, err := s.db.Exec(ctx, query, jobID, string(status), errMsg, time.Now())
	if err != nil {
		return fmt.Errorf("store: update job: %w", err)
	}
	return nil
}

func (s *CacheStore) GetLatestJobForCacheKey(ctx context.Context, cacheKey string) (*model.JobRecord, error) {
	const query = `
		SELECT job_id, cache_key, status, error, created_at, updated_at
		FROM jobs
		WHERE cache_key = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	job, err := scanJob(s.db.QueryRow(ctx, query, cacheKey))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get latest job for cache key: %w", err)
	}
	return job, nil
}

func scanCacheEntry(row pgx.Row) (*model.CacheEntry, error) {
	var (
		entry      model.CacheEntry
		sourceType string
		status     string
	)

	err := row.Scan(
		&entry.CacheKey,
		&sourceType,
		&entry.SourceRef,
		&entry.SourceName,
		&status,
		&entry.ProfileVersion,
		&entry.SummaryText,
		&entry.BundlePath,
		&entry.Error,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&entry.LastAccessed,
	)
	if err != nil {
		return nil, err
	}

	entry.SourceType = model.SourceType(sourceType)
	entry.Status = model.CacheStatus(status)
	return &entry, nil
}

func scanCacheEntryFromRows(rows pgx.Rows) (*model.CacheEntry, error) {
	var (
		entry      model.CacheEntry
		sourceType string
		status     string
	)

	err := rows.Scan(
		&entry.CacheKey,
		&sourceType,
		&entry.SourceRef,
		&entry.SourceName,
		&status,
		&entry.ProfileVersion,
		&entry.SummaryText,
		&entry.BundlePath,
		&entry.Error,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&entry.LastAccessed,
	)
	if err != nil {
		return nil, err
	}

	entry.SourceType = model.SourceType(sourceType)
	entry.Status = model.CacheStatus(status)
	return &entry, nil
}

func scanJob(row pgx.Row) (*model.JobRecord, error) {
	var (
		job    model.JobRecord
		status string
	)

	err := row.Scan(&job.JobID, &job.CacheKey, &status, &job.Error, &job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return nil, err
	}

	job.Status = model.JobStatus(status)
	return &job, nil
}

// Compile-time verification that CacheStore implements cachesvc.Store.
var _ cachesvc.Store = (*CacheStore)(nil)
