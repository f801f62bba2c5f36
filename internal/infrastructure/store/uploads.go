package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vidsum-dev/vidsum/internal/model"
	"github.com/vidsum-dev/vidsum/internal/upload"
)

// UploadStore implements upload.Store against the uploads table.
type UploadStore struct {
	db DBTX
}

func NewUploadStore(db DBTX) *UploadStore {
	return &UploadStore{db: db}
}

func (s *UploadStore) CreateUpload(ctx context.Context, record model.UploadRecord) error {
	const query = `
		INSERT INTO uploads
			(file_id, original_name, stored_path, size_bytes, content_type, file_type, file_hash, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.Exec(ctx, query,
		record.FileID,
		record.OriginalName,
		record.StoredPath,
		record.SizeBytes,
		record.ContentType,
		record.FileType,
		record.FileHash,
		record.CreatedAt,
		record.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("store: create upload: %w", err)
	}
	return nil
}

func (s *UploadStore) GetUpload(ctx context.Context, fileID string) (*model.UploadRecord, error) {
	const query = `
		SELECT file_id, original_name, stored_path, size_bytes, content_type, file_type, file_hash, created_at, expires_at
		FROM uploads
		WHERE file_id = $1
	`
	record, err := scanUpload(s.db.QueryRow(ctx, query, fileID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: get upload: %w", err)
	}
	return record, nil
}

func (s *UploadStore) DeleteUpload(ctx context.Context, fileID string) error {
	const query = `DELETE FROM uploads WHERE file_id = $1`
	_, err := s.db.Exec(ctx, query, fileID)
	if err != nil {
		return fmt.Errorf("store: delete upload: %w", err)
	}
	return nil
}

func (s *UploadStore) ListUploads(ctx context.Context) ([]model.UploadRecord, error) {
	const query = `
		SELECT file_id, original_name, stored_path, size_bytes, content_type, file_type, file_hash, created_at, expires_at
		FROM uploads
	`
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("store: list uploads: %w", err)
	}
	defer rows.Close()

	var records []model.UploadRecord
	for rows.Next() {
		record, err := scanUploadFromRows(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan upload: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list uploads: %w", err)
	}
	return records, nil
}

func scanUpload(row pgx.Row) (*model.UploadRecord, error) {
	var record model.UploadRecord
	err := row.Scan(
		&record.FileID,
		&record.OriginalName,
		&record.StoredPath,
		&record.SizeBytes,
		&record.ContentType,
		&record.FileType,
		&record.FileHash,
		&record.CreatedAt,
		&record.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func scanUploadFromRows(rows pgx.Rows) (*model.UploadRecord, error) {
	var record model.UploadRecord
	err := rows.Scan(
		&record.FileID,
		&record.OriginalName,
		&record.StoredPath,
		&record.SizeBytes,
		&record.ContentType,
		&record.FileType,
		&record.FileHash,
		&record.CreatedAt,
		&record.ExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Compile-time verification that UploadStore implements upload.Store.
var _ upload.Store = (*UploadStore)(nil)
