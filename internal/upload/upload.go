// Package upload implements streamed, size-capped ingest of user-supplied
// video/audio/subtitle files: filename sanitization, mime/extension
// validation, chunked hashing, and a background TTL sweeper.
package upload

import (
	"context"
	cryptorand "crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vidsum-dev/vidsum/internal/model"
)

var (
	// ErrUnsupportedType is returned when an upload's extension/mime pair
	// doesn't match any recognized file_type.
	ErrUnsupportedType = errors.New("upload: unsupported file type")

	// ErrTooLarge is returned when the streamed body exceeds MaxSizeBytes.
	ErrTooLarge = errors.New("upload: file too large")

	// ErrEmptyBody is returned when the request body contains zero bytes.
	ErrEmptyBody = errors.New("upload: empty body")

	// ErrTimedOut is returned when a chunk read or write exceeds ChunkTimeout.
	ErrTimedOut = errors.New("upload: timed out")

	// ErrNotFound is returned by Get when no record exists for a file_id.
	ErrNotFound = errors.New("upload: not found")
)

// extensionTypes maps a lowercase file extension to its file_type.
// Subtitle extensions are intentionally permissive, per contract.
var extensionTypes = map[string]string{
	".mp4":  "video",
	".mkv":  "video",
	".mov":  "video",
	".avi":  "video",
	".webm": "video",
	".mp3":  "audio",
	".wav":  "audio",
	".m4a":  "audio",
	".flac": "audio",
	".ogg":  "audio",
	".srt":  "subtitle",
	".vtt":  "subtitle",
	".ass":  "subtitle",
	".ssa":  "subtitle",
	".sub":  "subtitle",
}

// allowedMimePrefixes narrows video/audio mime types; subtitle mimes are not
// checked at all, since subtitle files are served with wildly inconsistent
// content-types in the wild.
var allowedMimePrefixes = map[string][]string{
	"video": {"video/"},
	"audio": {"audio/"},
}

// Store persists and retrieves upload records.
type Store interface {
	CreateUpload(ctx context.Context, record model.UploadRecord) error
	GetUpload(ctx context.Context, fileID string) (*model.UploadRecord, error)
	DeleteUpload(ctx context.Context, fileID string) error
	ListUploads(ctx context.Context) ([]model.UploadRecord, error)
}

// Config tunes a Manager's ingest limits and file layout.
type Config struct {
	RootPath string // <upload_root>

	MaxSizeBytes int64         // default 2 GiB
	ChunkSize    int           // default 8 MiB
	ChunkTimeout time.Duration // default 30s
	TTL          time.Duration // default 24h

	Concurrency int // default 2

	IDGenerator func() string // default: random hex token
	Logger      *slog.Logger
}

// Manager implements the streamed ingest contract: save_stream and get.
type Manager struct {
	store Store

	rootPath     string
	maxSizeBytes int64
	chunkSize    int
	chunkTimeout time.Duration
	ttl          time.Duration

	idGenerator func() string
	sem         chan struct{}
	logger      *slog.Logger
}

func NewManager(store Store, cfg Config) (*Manager, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("upload: RootPath is required")
	}
	if err := os.MkdirAll(cfg.RootPath, 0o755); err != nil {
		return nil, fmt.Errorf("upload: create root path: %w", err)
	}

	maxSizeBytes := cfg.MaxSizeBytes
	if maxSizeBytes <= 0 {
		maxSizeBytes = 2 << 30
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = 8 << 20
	}
	chunkTimeout := cfg.ChunkTimeout
	if chunkTimeout <= 0 {
		chunkTimeout = 30 * time.Second
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	idGenerator := cfg.IDGenerator
	if idGenerator == nil {
		idGenerator = randomFileID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		store:        store,
		rootPath:     cfg.RootPath,
		maxSizeBytes: maxSizeBytes,
		chunkSize:    chunkSize,
		chunkTimeout: chunkTimeout,
		ttl:          ttl,
		idGenerator:  idGenerator,
		sem:          make(chan struct{}, concurrency),
		logger:       logger,
	}, nil
}

// SaveStream reads r in fixed-size chunks, enforcing the size cap and a
// per-chunk timeout, computes a running SHA-256, and persists the result
// under <upload_root>/<file_id>/<sanitized_name>. Partial bytes are deleted
// on any failure.
func (m *Manager) SaveStream(ctx context.Context, r io.Reader, originalName, contentType string) (*model.UploadRecord, error) {
	select {
	case m.sem <- struct{}{}:
		defer func() { <-m.sem }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	fileType, err := classify(originalName, contentType)
	if err != nil {
		return nil, err
	}

	fileID := m.idGenerator()
	sanitized := SanitizeFilename(originalName)
	dir := filepath.Join(m.rootPath, fileID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("upload: create file dir: %w", err)
	}
	storedPath := filepath.Join(dir, sanitized)

	size, hash, err := m.writeChunked(ctx, r, storedPath)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	now := time.Now()
	record := model.UploadRecord{
		FileID:       fileID,
		OriginalName: originalName,
		StoredPath:   storedPath,
		SizeBytes:    size,
		ContentType:  contentType,
		FileType:     fileType,
		FileHash:     hash,
		CreatedAt:    now,
		ExpiresAt:    now.Add(m.ttl),
	}

	if err := m.store.CreateUpload(ctx, record); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("upload: persist record: %w", err)
	}

	m.logger.Info("upload stored", "file_id", fileID, "file_type", fileType, "size", size)
	return &record, nil
}

// writeChunked drains r into storedPath chunkSize bytes at a time, aborting
// early if the cumulative size exceeds maxSizeBytes or a chunk's read/write
// doesn't complete within chunkTimeout.
func (m *Manager) writeChunked(ctx context.Context, r io.Reader, storedPath string) (int64, string, error) {
	f, err := os.Create(storedPath)
	if err != nil {
		return 0, "", fmt.Errorf("upload: create file: %w", err)
	}
	defer f.Close()

	hasher := sha256.New()
	buf := make([]byte, m.chunkSize)
	var total int64

	for {
		n, readErr, timedOut := m.readChunkWithTimeout(ctx, r, buf)
		if timedOut {
			return 0, "", ErrTimedOut
		}
		if n > 0 {
			total += int64(n)
			if total > m.maxSizeBytes {
				return 0, "", ErrTooLarge
			}
			if _, err := f.Write(buf[:n]); err != nil {
				return 0, "", fmt.Errorf("upload: write chunk: %w", err)
			}
			hasher.Write(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return 0, "", fmt.Errorf("upload: read chunk: %w", readErr)
		}
	}

	if total == 0 {
		return 0, "", ErrEmptyBody
	}

	return total, hex.EncodeToString(hasher.Sum(nil)), nil
}

// readChunkWithTimeout reads one chunk on a goroutine so a slow/stalled
// client body can be abandoned once chunkTimeout elapses, without blocking
// the caller forever on Read.
func (m *Manager) readChunkWithTimeout(ctx context.Context, r io.Reader, buf []byte) (n int, err error, timedOut bool) {
	type result struct {
		n   int
		err error
	}
	resultCh := make(chan result, 1)
	go func() {
		n, err := r.Read(buf)
		resultCh <- result{n, err}
	}()

	select {
	case res := <-resultCh:
		return res.n, res.err, false
	case <-time.After(m.chunkTimeout):
		return 0, nil, true
	case <-ctx.Done():
		return 0, ctx.Err(), false
	}
}

// Get returns the upload record for fileID, or ErrNotFound.
func (m *Manager) Get(ctx context.Context, fileID string) (*model.UploadRecord, error) {
	record, err := m.store.GetUpload(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("upload: get: %w", err)
	}
	if record == nil {
		return nil, ErrNotFound
	}
	return record, nil
}

// classify derives file_type from originalName's extension and cross-checks
// it against the declared content type for video/audio (subtitle mimes are
// accepted unconditionally, per contract).
func classify(originalName, contentType string) (string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	fileType, ok := extensionTypes[ext]
	if !ok {
		return "", ErrUnsupportedType
	}
	prefixes, checked := allowedMimePrefixes[fileType]
	if !checked || contentType == "" {
		return fileType, nil
	}
	for _, prefix := range prefixes {
		if strings.HasPrefix(contentType, prefix) {
			return fileType, nil
		}
	}
	return "", ErrUnsupportedType
}

func randomFileID() string {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(cryptorand.Reader, buf); err != nil {
		return hex.EncodeToString([]byte(time.Now().String()))
	}
	return hex.EncodeToString(buf)
}
