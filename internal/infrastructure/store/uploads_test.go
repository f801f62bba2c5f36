package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"

	"github.com/vidsum-dev/vidsum/internal/model"
)

func TestUploadStore_CreateUpload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer mock.Close()

	now := time.Now()
	record := model.UploadRecord{
		FileID:       "f1",
		OriginalName: "clip.mp4",
		StoredPath:   "/uploads/f1/clip.mp4",
		SizeBytes:    1024,
		ContentType:  "video/mp4",
		FileType:     "video",
		FileHash:     "deadbeef",
		CreatedAt:    now,
		ExpiresAt:    now.Add(24 * time.Hour),
	}

	mock.ExpectExec("INSERT INTO uploads").
		WithArgs(record.FileID, record.OriginalName, record.StoredPath, record.SizeBytes,
			record.ContentType, record.FileType, record.FileHash, record.CreatedAt, record.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	s := NewUploadStore(mock)
	if err := s.CreateUpload(context.Background(), record); err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUploadStore_GetUpload(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		mockFn  func(mock pgxmock.PgxPoolIface)
		want    *model.UploadRecord
		wantErr bool
	}{
		{
			name: "found",
			mockFn: func(mock pgxmock.PgxPoolIface) {
				rows := pgxmock.NewRows([]string{
					"file_id", "original_name", "stored_path", "size_bytes", "content_type", "file_type", "file_hash", "created_at", "expires_at",
				}).AddRow("f1", "clip.mp4", "/uploads/f1/clip.mp4", int64(1024), "video/mp4", "video", "deadbeef", now, now.Add(time.Hour))
				mock.ExpectQuery("SELECT .* FROM uploads WHERE file_id").WithArgs("f1").WillReturnRows(rows)
			},
			want: &model.UploadRecord{
				FileID: "f1", OriginalName: "clip.mp4", StoredPath: "/uploads/f1/clip.mp4",
				SizeBytes: 1024, ContentType: "video/mp4", FileType: "video", FileHash: "deadbeef",
				CreatedAt: now, ExpiresAt: now.Add(time.Hour),
			},
		},
		{
			name: "not found returns nil, nil",
			mockFn: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery("SELECT .* FROM uploads WHERE file_id").WithArgs("missing").WillReturnError(pgx.ErrNoRows)
			},
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			if err != nil {
				t.Fatalf("NewPool: %v", err)
			}
			defer mock.Close()
			tt.mockFn(mock)

			s := NewUploadStore(mock)
			fileID := "f1"
			if tt.want == nil {
				fileID = "missing"
			}
			got, err := s.GetUpload(context.Background(), fileID)
			if (err != nil) != tt.wantErr {
				t.Fatalf("GetUpload() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.want == nil {
				if got != nil {
					t.Fatalf("expected nil record, got %+v", got)
				}
				return
			}
			if got == nil || *got != *tt.want {
				t.Fatalf("GetUpload() = %+v, want %+v", got, tt.want)
			}
			if err := mock.ExpectationsWereMet(); err != nil {
				t.Errorf("unmet expectations: %v", err)
			}
		})
	}
}

func TestUploadStore_DeleteUpload(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec("DELETE FROM uploads WHERE file_id").
		WithArgs("f1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	s := NewUploadStore(mock)
	if err := s.DeleteUpload(context.Background(), "f1"); err != nil {
		t.Fatalf("DeleteUpload: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestUploadStore_ListUploads(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}
	defer mock.Close()

	now := time.Now()
	rows := pgxmock.NewRows([]string{
		"file_id", "original_name", "stored_path", "size_bytes", "content_type", "file_type", "file_hash", "created_at", "expires_at",
	}).
		AddRow("f1", "clip.mp4", "/uploads/f1/clip.mp4", int64(1024), "video/mp4", "video", "deadbeef", now, now.Add(time.Hour)).
		AddRow("f2", "sub.srt", "/uploads/f2/sub.srt", int64(128), "text/plain", "subtitle", "cafebabe", now, now.Add(time.Hour))
	mock.ExpectQuery("SELECT .* FROM uploads").WillReturnRows(rows)

	s := NewUploadStore(mock)
	records, err := s.ListUploads(context.Background())
	if err != nil {
		t.Fatalf("ListUploads: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
