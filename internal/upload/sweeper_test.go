package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/vidsum-dev/vidsum/internal/model"
)

func TestSweeper_RunOnce_RemovesExpiredAndMissing(t *testing.T) {
	store := newMemStore()
	root := t.TempDir()

	freshDir := filepath.Join(root, "fresh")
	if err := os.MkdirAll(freshDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	freshPath := filepath.Join(freshDir, "clip.mp4")
	if err := os.WriteFile(freshPath, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	expiredDir := filepath.Join(root, "expired")
	if err := os.MkdirAll(expiredDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	expiredPath := filepath.Join(expiredDir, "clip.mp4")
	if err := os.WriteFile(expiredPath, []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	now := time.Now()
	store.records["fresh"] = model.UploadRecord{FileID: "fresh", StoredPath: freshPath, ExpiresAt: now.Add(time.Hour)}
	store.records["expired"] = model.UploadRecord{FileID: "expired", StoredPath: expiredPath, ExpiresAt: now.Add(-time.Hour)}
	store.records["missing-file"] = model.UploadRecord{FileID: "missing-file", StoredPath: filepath.Join(root, "gone", "clip.mp4"), ExpiresAt: now.Add(time.Hour)}

	sweeper := NewSweeper(SweeperConfig{Store: store})
	sweeper.RunOnce(context.Background())

	if _, ok := store.records["fresh"]; !ok {
		t.Error("expected the fresh, present record to survive the sweep")
	}
	if _, ok := store.records["expired"]; ok {
		t.Error("expected the expired record to be removed")
	}
	if _, ok := store.records["missing-file"]; ok {
		t.Error("expected the record with a missing file to be removed")
	}
	if _, err := os.Stat(expiredPath); !os.IsNotExist(err) {
		t.Error("expected the expired file to be deleted from disk")
	}
	if _, err := os.Stat(freshPath); err != nil {
		t.Error("expected the fresh file to remain on disk")
	}
}

func TestSweeper_Run_StopsOnContextCancellation(t *testing.T) {
	store := newMemStore()
	sweeper := NewSweeper(SweeperConfig{Store: store, Interval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweeper.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Run to return promptly after ctx cancellation")
	}
}
