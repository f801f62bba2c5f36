// Package bundle manages the on-disk storage unit for a cache entry's
// artifacts: a manifest (bundle.json), a source descriptor, and the
// pipeline's output files. Finalization moves a job's tmp working directory
// into place with a single atomic rename.
package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Version is the on-disk bundle manifest format version.
const Version = "v2"

// ArtifactNames maps a logical artifact type to its standard file name
// within a bundle directory.
var ArtifactNames = map[string]string{
	"video":    "video.mp4",
	"audio":    "audio.wav",
	"subtitle": "subtitle.vtt",
	"asr":      "asr.json",
	"summary":  "summary.json",
}

// ArtifactInfo describes one stored artifact.
type ArtifactInfo struct {
	Path   string `json:"path"` // relative to the bundle directory
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256,omitempty"`
}

// Manifest is the JSON-serialized contents of bundle.json.
type Manifest struct {
	Version        string                  `json:"version"`
	ProfileVersion string                  `json:"profile_version"`
	CacheKey       string                  `json:"cache_key"`
	SourceType     string                  `json:"source_type"`
	SourceRef      string                  `json:"source_ref"`
	SourceName     *string                 `json:"source_name,omitempty"`
	Status         string                  `json:"status"`
	CreatedAt      float64                 `json:"created_at"`
	UpdatedAt      float64                 `json:"updated_at"`
	Artifacts      map[string]ArtifactInfo `json:"artifacts"`
	SummaryText    *string                 `json:"summary_text,omitempty"`
	Error          *string                 `json:"error,omitempty"`
}

var ErrTmpDirMissing = errors.New("bundle: tmp directory does not exist")

// ArchiveMirror is an optional cold-storage sink for completed bundles,
// wired to MinIO in internal/infrastructure/objectstore. GC calls it just
// before deleting a bundle past its TTL; failures never block the delete.
type ArchiveMirror interface {
	Mirror(cacheKey, sourceType string, manifest *Manifest) error
}

// Manager owns the cache and tmp directory trees and the atomic handoff
// between them.
type Manager struct {
	basePath string // <root>/cache
	tmpPath  string // <root>/tmp

	profileVersion string
	archive        ArchiveMirror
	logger         *slog.Logger
}

// Config configures a Manager.
type Config struct {
	RootPath       string
	ProfileVersion string
	Archive        ArchiveMirror // optional
	Logger         *slog.Logger
}

// NewManager creates the cache/tmp directory tree if needed and returns a
// Manager rooted at cfg.RootPath.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	base := filepath.Join(cfg.RootPath, "cache")
	tmp := filepath.Join(cfg.RootPath, "tmp")

	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("bundle: create cache dir: %w", err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, fmt.Errorf("bundle: create tmp dir: %w", err)
	}

	return &Manager{
		basePath:       base,
		tmpPath:        tmp,
		profileVersion: cfg.ProfileVersion,
		archive:        cfg.Archive,
		logger:         cfg.Logger,
	}, nil
}

// BundleDir returns the canonical directory for a cache_key/source_type pair.
func (m *Manager) BundleDir(cacheKey, sourceType string) string {
	return filepath.Join(m.basePath, sourceType, cacheKey)
}

// TmpDir returns the scratch working directory for a job.
func (m *Manager) TmpDir(jobID string) string {
	return filepath.Join(m.tmpPath, jobID)
}

// BasePath returns the root of the cache tree, used by GC for size sweeps.
func (m *Manager) BasePath() string {
	return m.basePath
}

// CreateTmpDir creates (idempotently) the scratch directory for a job.
func (m *Manager) CreateTmpDir(jobID string) (string, error) {
	dir := m.TmpDir(jobID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("bundle: create tmp dir: %w", err)
	}
	return dir, nil
}

// Exists reports whether a bundle manifest is present on disk.
func (m *Manager) Exists(cacheKey, sourceType string) bool {
	_, err := os.Stat(filepath.Join(m.BundleDir(cacheKey, sourceType), "bundle.json"))
	return err == nil
}

// LoadManifest reads bundle.json, or returns (nil, nil) if absent.
func (m *Manager) LoadManifest(cacheKey, sourceType string) (*Manifest, error) {
	manifest, err := m.LoadManifestFromDir(m.BundleDir(cacheKey, sourceType))
	if err != nil {
		return nil, err
	}
	if manifest == nil {
		return nil, nil
	}
	return manifest, nil
}

// LoadManifestFromDir reads bundle.json from an arbitrary directory —
// used by the job worker to read/update the manifest while it still lives
// in the tmp working directory, before FinalizeFromTmp moves it into place.
func (m *Manager) LoadManifestFromDir(dir string) (*Manifest, error) {
	path := filepath.Join(dir, "bundle.json")
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("bundle: read manifest: %w", err)
	}

	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		m.logger.Warn("bundle: manifest is corrupt", slog.String("dir", dir), slog.String("error", err.Error()))
		return nil, nil
	}
	return &manifest, nil
}

// SaveManifest writes bundle.json into the bundle directory, creating it if
// needed, and stamps UpdatedAt.
func (m *Manager) SaveManifest(cacheKey, sourceType string, manifest *Manifest) error {
	return m.saveManifestTo(m.BundleDir(cacheKey, sourceType), manifest)
}

// SaveManifestToDir writes bundle.json into an arbitrary directory — the
// tmp-dir counterpart to SaveManifest, used before FinalizeFromTmp.
func (m *Manager) SaveManifestToDir(dir string, manifest *Manifest) error {
	return m.saveManifestTo(dir, manifest)
}

func (m *Manager) saveManifestTo(dir string, manifest *Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("bundle: create bundle dir: %w", err)
	}

	manifest.UpdatedAt = nowUnix()

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("bundle: marshal manifest: %w", err)
	}

	path := filepath.Join(dir, "bundle.json")
	tmpPath := path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("bundle: open manifest tmp file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("bundle: write manifest tmp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("bundle: sync manifest tmp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("bundle: close manifest tmp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("bundle: rename manifest into place: %w", err)
	}
	return nil
}

// CreateBundle writes a fresh pending bundle.json and source.json into the
// (possibly tmp) target directory.
func (m *Manager) CreateBundle(dir, cacheKey, sourceType, sourceRef string, sourceName *string) (*Manifest, error) {
	now := nowUnix()
	manifest := &Manifest{
		Version:        Version,
		ProfileVersion: m.profileVersion,
		CacheKey:       cacheKey,
		SourceType:     sourceType,
		SourceRef:      sourceRef,
		SourceName:     sourceName,
		Status:         "pending",
		CreatedAt:      now,
		UpdatedAt:      now,
		Artifacts:      map[string]ArtifactInfo{},
	}

	if err := m.saveManifestTo(dir, manifest); err != nil {
		return nil, err
	}

	source := map[string]any{
		"source_type": sourceType,
		"source_ref":  sourceRef,
		"source_name": sourceName,
	}
	data, err := json.MarshalIndent(source, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("bundle: marshal source: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "source.json"), data, 0o644); err != nil {
		return nil, fmt.Errorf("bundle: write source.json: %w", err)
	}

	m.logger.Info("bundle created", slog.String("cache_key", cacheKey), slog.String("source_type", sourceType))
	return manifest, nil
}

// AddArtifact copies sourcePath into the bundle/tmp directory under the
// artifact's standard name, records its size and (optionally) sha256, and
// updates the manifest already present in dir.
func (m *Manager) AddArtifact(dir string, artifactType, sourcePath string, computeHash bool) (ArtifactInfo, error) {
	targetName, ok := ArtifactNames[artifactType]
	if !ok {
		targetName = artifactType + filepath.Ext(sourcePath)
	}
	targetPath := filepath.Join(dir, targetName)

	if filepath.Clean(sourcePath) != filepath.Clean(targetPath) {
		if err := copyFile(sourcePath, targetPath); err != nil {
			return ArtifactInfo{}, fmt.Errorf("bundle: copy artifact %s: %w", artifactType, err)
		}
	}

	info, err := os.Stat(targetPath)
	if err != nil {
		return ArtifactInfo{}, fmt.Errorf("bundle: stat artifact: %w", err)
	}

	artifact := ArtifactInfo{Path: targetName, Size: info.Size()}
	if computeHash {
		sum, err := fileSHA256(targetPath)
		if err != nil {
			return ArtifactInfo{}, fmt.Errorf("bundle: hash artifact: %w", err)
		}
		artifact.SHA256 = sum
	}

	manifestPath := filepath.Join(dir, "bundle.json")
	data, err := os.ReadFile(manifestPath)
	if err == nil {
		var manifest Manifest
		if jsonErr := json.Unmarshal(data, &manifest); jsonErr == nil {
			if manifest.Artifacts == nil {
				manifest.Artifacts = map[string]ArtifactInfo{}
			}
			manifest.Artifacts[artifactType] = artifact
			if saveErr := m.saveManifestTo(dir, &manifest); saveErr != nil {
				return artifact, saveErr
			}
		}
	}

	return artifact, nil
}

// FinalizeFromTmp atomically moves a job's tmp directory into its canonical
// bundle location. Any pre-existing bundle at the destination is replaced.
func (m *Manager) FinalizeFromTmp(jobID, cacheKey, sourceType string) error {
	tmpDir := m.TmpDir(jobID)
	if _, err := os.Stat(tmpDir); err != nil {
		return ErrTmpDirMissing
	}

	bundleDir := m.BundleDir(cacheKey, sourceType)
	if err := os.MkdirAll(filepath.Dir(bundleDir), 0o755); err != nil {
		return fmt.Errorf("bundle: create parent dir: %w", err)
	}

	if _, err := os.Stat(bundleDir); err == nil {
		if err := os.RemoveAll(bundleDir); err != nil {
			return fmt.Errorf("bundle: remove stale bundle: %w", err)
		}
	}

	if err := os.Rename(tmpDir, bundleDir); err != nil {
		return fmt.Errorf("bundle: finalize rename: %w", err)
	}

	m.logger.Info("bundle finalized", slog.String("cache_key", cacheKey))
	return nil
}

// CleanupTmp best-effort removes a job's scratch directory.
func (m *Manager) CleanupTmp(jobID string) {
	if err := os.RemoveAll(m.TmpDir(jobID)); err != nil {
		m.logger.Warn("bundle: cleanup tmp dir failed", slog.String("job_id", jobID), slog.String("error", err.Error()))
	}
}

// DeleteBundle removes a bundle directory. Returns false if it didn't exist.
func (m *Manager) DeleteBundle(cacheKey, sourceType string) bool {
	dir := m.BundleDir(cacheKey, sourceType)
	if _, err := os.Stat(dir); err != nil {
		return false
	}
	if err := os.RemoveAll(dir); err != nil {
		m.logger.Error("bundle: delete failed", slog.String("cache_key", cacheKey), slog.String("error", err.Error()))
		return false
	}
	return true
}

// DeleteBundleWithArchive mirrors a completed bundle before deleting it, if
// an ArchiveMirror is configured. Mirror errors are logged, never fatal.
func (m *Manager) DeleteBundleWithArchive(cacheKey, sourceType string) bool {
	if m.archive != nil {
		if manifest, err := m.LoadManifest(cacheKey, sourceType); err == nil && manifest != nil && manifest.Status == "completed" {
			if mirrorErr := m.archive.Mirror(cacheKey, sourceType, manifest); mirrorErr != nil {
				m.logger.Warn("bundle: archive mirror failed", slog.String("cache_key", cacheKey), slog.String("error", mirrorErr.Error()))
			}
		}
	}
	return m.DeleteBundle(cacheKey, sourceType)
}

// Size returns the total byte size of a bundle directory.
func (m *Manager) Size(cacheKey, sourceType string) int64 {
	dir := m.BundleDir(cacheKey, sourceType)
	var total int64
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d == nil || d.IsDir() {
			return nil
		}
		info, infoErr := d.Info()
		if infoErr == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

// BundleSummary is a row from ListBundles.
type BundleSummary struct {
	CacheKey   string
	SourceType string
	SourceName *string
	Status     string
	CreatedAt  float64
	UpdatedAt  float64
	SizeBytes  int64
}

// ListBundles enumerates all (or one source_type's) bundles on disk.
func (m *Manager) ListBundles(sourceType string) ([]BundleSummary, error) {
	sourceTypes := []string{"url", "local"}
	if sourceType != "" {
		sourceTypes = []string{sourceType}
	}

	var results []BundleSummary
	for _, st := range sourceTypes {
		typeDir := filepath.Join(m.basePath, st)
		entries, err := os.ReadDir(typeDir)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("bundle: list %s bundles: %w", st, err)
		}

		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			manifest, err := m.LoadManifest(entry.Name(), st)
			if err != nil || manifest == nil {
				continue
			}
			results = append(results, BundleSummary{
				CacheKey:   entry.Name(),
				SourceType: st,
				SourceName: manifest.SourceName,
				Status:     manifest.Status,
				CreatedAt:  manifest.CreatedAt,
				UpdatedAt:  manifest.UpdatedAt,
				SizeBytes:  m.Size(entry.Name(), st),
			})
		}
	}
	return results, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func nowUnix() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
