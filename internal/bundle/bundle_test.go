package bundle

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Config{RootPath: t.TempDir(), ProfileVersion: "v1"})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestSaveManifestToDir_WritesManifestAtomically(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	manifest := &Manifest{
		Version:        Version,
		ProfileVersion: "v1",
		CacheKey:       "key-1",
		SourceType:     "url",
		SourceRef:      "https://example.com/video",
		Status:         "pending",
		Artifacts:      map[string]ArtifactInfo{},
	}

	if err := m.SaveManifestToDir(dir, manifest); err != nil {
		t.Fatalf("SaveManifestToDir: %v", err)
	}

	path := filepath.Join(dir, "bundle.json")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("bundle.json missing: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if e.Name() != "bundle.json" {
			t.Fatalf("unexpected leftover file in bundle dir: %s", e.Name())
		}
	}

	loaded, err := m.LoadManifestFromDir(dir)
	if err != nil {
		t.Fatalf("LoadManifestFromDir: %v", err)
	}
	if loaded == nil || loaded.CacheKey != "key-1" {
		t.Fatalf("LoadManifestFromDir returned %+v", loaded)
	}
	if loaded.UpdatedAt == 0 {
		t.Fatal("SaveManifestToDir did not stamp UpdatedAt")
	}
}

func TestSaveManifestToDir_OverwritesWithoutLeavingTmpFile(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	first := &Manifest{Version: Version, CacheKey: "key-1", Status: "pending", Artifacts: map[string]ArtifactInfo{}}
	if err := m.SaveManifestToDir(dir, first); err != nil {
		t.Fatalf("first SaveManifestToDir: %v", err)
	}

	second := &Manifest{Version: Version, CacheKey: "key-1", Status: "completed", Artifacts: map[string]ArtifactInfo{}}
	if err := m.SaveManifestToDir(dir, second); err != nil {
		t.Fatalf("second SaveManifestToDir: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "bundle.json.tmp")); !os.IsNotExist(err) {
		t.Fatalf("expected bundle.json.tmp to be gone after rename, stat err = %v", err)
	}

	loaded, err := m.LoadManifestFromDir(dir)
	if err != nil {
		t.Fatalf("LoadManifestFromDir: %v", err)
	}
	if loaded.Status != "completed" {
		t.Fatalf("expected overwritten manifest status %q, got %q", "completed", loaded.Status)
	}
}

// TestSaveManifestToDir_CrashBetweenWriteAndRename simulates a crash after
// the tmp file is written but before the rename lands: bundle.json must
// still reflect the last successfully finalized manifest, never a partial
// write.
func TestSaveManifestToDir_CrashBetweenWriteAndRename(t *testing.T) {
	m := newTestManager(t)
	dir := t.TempDir()

	original := &Manifest{Version: Version, CacheKey: "key-1", Status: "pending", Artifacts: map[string]ArtifactInfo{}}
	if err := m.SaveManifestToDir(dir, original); err != nil {
		t.Fatalf("SaveManifestToDir: %v", err)
	}

	// Simulate a crash mid-write: a stale tmp file sits next to a valid
	// bundle.json. A subsequent load must still see the last good manifest.
	if err := os.WriteFile(filepath.Join(dir, "bundle.json.tmp"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write stale tmp file: %v", err)
	}

	loaded, err := m.LoadManifestFromDir(dir)
	if err != nil {
		t.Fatalf("LoadManifestFromDir: %v", err)
	}
	if loaded == nil || loaded.Status != "pending" {
		t.Fatalf("expected last good manifest to survive a crashed write, got %+v", loaded)
	}
}

func TestFinalizeFromTmp_MovesDirectoryAndReplacesExisting(t *testing.T) {
	m := newTestManager(t)

	jobID := "job-1"
	tmpDir, err := m.CreateTmpDir(jobID)
	if err != nil {
		t.Fatalf("CreateTmpDir: %v", err)
	}
	manifest := &Manifest{Version: Version, CacheKey: "key-1", Status: "completed", Artifacts: map[string]ArtifactInfo{}}
	if err := m.SaveManifestToDir(tmpDir, manifest); err != nil {
		t.Fatalf("SaveManifestToDir: %v", err)
	}

	bundleDir := m.BundleDir("key-1", "url")
	if err := os.MkdirAll(bundleDir, 0o755); err != nil {
		t.Fatalf("MkdirAll stale bundle dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(bundleDir, "stale.txt"), []byte("old"), 0o644); err != nil {
		t.Fatalf("write stale file: %v", err)
	}

	if err := m.FinalizeFromTmp(jobID, "key-1", "url"); err != nil {
		t.Fatalf("FinalizeFromTmp: %v", err)
	}

	if _, err := os.Stat(tmpDir); !os.IsNotExist(err) {
		t.Fatalf("expected tmp dir to be gone after finalize, stat err = %v", err)
	}
	if _, err := os.Stat(filepath.Join(bundleDir, "stale.txt")); !os.IsNotExist(err) {
		t.Fatal("expected stale bundle contents to be replaced by finalize")
	}

	loaded, err := m.LoadManifest("key-1", "url")
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if loaded == nil || loaded.Status != "completed" {
		t.Fatalf("expected finalized manifest status %q, got %+v", "completed", loaded)
	}
}

func TestFinalizeFromTmp_MissingTmpDir(t *testing.T) {
	m := newTestManager(t)
	if err := m.FinalizeFromTmp("missing-job", "key-1", "url"); err != ErrTmpDirMissing {
		t.Fatalf("FinalizeFromTmp with missing tmp dir: got %v, want %v", err, ErrTmpDirMissing)
	}
}
