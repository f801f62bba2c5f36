package upload

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/vidsum-dev/vidsum/internal/model"
)

type memStore struct {
	mu      sync.Mutex
	records map[string]model.UploadRecord
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]model.UploadRecord)}
}

func (m *memStore) CreateUpload(ctx context.Context, record model.UploadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[record.FileID] = record
	return nil
}

func (m *memStore) GetUpload(ctx context.Context, fileID string) (*model.UploadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.records[fileID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *memStore) DeleteUpload(ctx context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, fileID)
	return nil
}

func (m *memStore) ListUploads(ctx context.Context) ([]model.UploadRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.UploadRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out, nil
}

func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()
	id := 0
	mgr, err := NewManager(store, Config{
		RootPath:  t.TempDir(),
		ChunkSize: 4,
		IDGenerator: func() string {
			id++
			return "file-" + string(rune('a'+id))
		},
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return mgr
}

func TestSaveStream_StoresRecordAndComputesHash(t *testing.T) {
	store := newMemStore()
	mgr := newTestManager(t, store)

	content := "hello world, this is a test video payload"
	record, err := mgr.SaveStream(context.Background(), strings.NewReader(content), "My Clip.mp4", "video/mp4")
	if err != nil {
		t.Fatalf("SaveStream: %v", err)
	}
	if record.FileType != "video" {
		t.Fatalf("expected file_type video, got %s", record.FileType)
	}
	if record.SizeBytes != int64(len(content)) {
		t.Fatalf("expected size %d, got %d", len(content), record.SizeBytes)
	}
	if record.FileHash == "" {
		t.Fatal("expected a non-empty content hash")
	}

	got, err := mgr.Get(context.Background(), record.FileID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.StoredPath != record.StoredPath {
		t.Fatalf("round-tripped record mismatch: %+v vs %+v", got, record)
	}
}

func TestSaveStream_RejectsUnsupportedType(t *testing.T) {
	store := newMemStore()
	mgr := newTestManager(t, store)

	_, err := mgr.SaveStream(context.Background(), strings.NewReader("data"), "malware.exe", "application/octet-stream")
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestSaveStream_RejectsEmptyBody(t *testing.T) {
	store := newMemStore()
	mgr := newTestManager(t, store)

	_, err := mgr.SaveStream(context.Background(), strings.NewReader(""), "clip.mp4", "video/mp4")
	if !errors.Is(err, ErrEmptyBody) {
		t.Fatalf("expected ErrEmptyBody, got %v", err)
	}
}

func TestSaveStream_RejectsOversizedBody(t *testing.T) {
	store := newMemStore()
	id := 0
	mgr, err := NewManager(store, Config{
		RootPath:     t.TempDir(),
		ChunkSize:    4,
		MaxSizeBytes: 8,
		IDGenerator:  func() string { id++; return "file" },
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	_, err = mgr.SaveStream(context.Background(), strings.NewReader("this payload is definitely too large"), "clip.mp4", "video/mp4")
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}

	if len(store.records) != 0 {
		t.Fatal("expected no record to be persisted after a TooLarge abort")
	}
}

type slowReader struct{ delay time.Duration }

func (r slowReader) Read(p []byte) (int, error) {
	time.Sleep(r.delay)
	return 0, io.EOF
}

func TestSaveStream_TimesOutOnSlowChunk(t *testing.T) {
	store := newMemStore()
	id := 0
	mgr, err := NewManager(store, Config{
		RootPath:     t.TempDir(),
		ChunkSize:    4,
		ChunkTimeout: 5 * time.Millisecond,
		IDGenerator:  func() string { id++; return "file" },
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	_, err = mgr.SaveStream(context.Background(), slowReader{delay: 50 * time.Millisecond}, "clip.mp4", "video/mp4")
	if !errors.Is(err, ErrTimedOut) {
		t.Fatalf("expected ErrTimedOut, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	store := newMemStore()
	mgr := newTestManager(t, store)

	_, err := mgr.Get(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"strips path components", "../../etc/passwd.mp4", "passwd.mp4"},
		{"embedded separator strips everything before it", `a<b>c:d"e/f\g|h?i*j.mp4`, "g_h_i_j.mp4"},
		{"replaces reserved chars", `a<b>c:d"e|h?i*j.mp4`, "a_b_c_d_e_h_i_j.mp4"},
		{"trims trailing dots and spaces", "clip.mp4 . .", "clip.mp4"},
		{"caps stem length", strings.Repeat("a", 300) + ".mp4", strings.Repeat("a", 200) + ".mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeFilename(tt.in)
			if got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestManager_ConcurrencyBound(t *testing.T) {
	store := newMemStore()
	id := 0
	mgr, err := NewManager(store, Config{
		RootPath:    t.TempDir(),
		Concurrency: 1,
		IDGenerator: func() string { id++; return "file" },
	})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mgr.sem <- struct{}{} // occupy the single slot
	_, err = mgr.SaveStream(ctx, bytes.NewReader([]byte("x")), "clip.mp4", "video/mp4")
	if err == nil {
		t.Fatal("expected SaveStream to respect ctx cancellation while waiting on the semaphore")
	}
}
