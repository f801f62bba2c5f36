package stage

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/vidsum-dev/vidsum/internal/pipeline"
)

// DownloadSubtitle attempts to fetch a subtitle track alongside the source
// video. Absence of a subtitle is a valid outcome, never a pipeline failure
// — downstream stages fall back to transcription.
type DownloadSubtitle struct {
	client  *http.Client
	logger  *slog.Logger
	maxSize int64
}

func NewDownloadSubtitle(params map[string]any) (pipeline.Stage, error) {
	maxSize := int64(10 << 20)
	if v, ok := params["max_size_bytes"].(int64); ok && v > 0 {
		maxSize = v
	}
	return &DownloadSubtitle{
		client:  &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
		maxSize: maxSize,
	}, nil
}

func (s *DownloadSubtitle) Run(ctx *pipeline.Context, params map[string]any) error {
	sourceURL, _ := ctx.Get(KeySourceURL)
	url, ok := sourceURL.(string)
	if !ok || url == "" {
		return nil
	}

	subtitleURL, ok := params["subtitle_url"].(string)
	if !ok || subtitleURL == "" {
		// No discoverable subtitle for this source; that is expected for
		// most sources and not an error.
		return nil
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, subtitleURL, nil)
	if err != nil {
		s.logger.Warn("download_subtitle: building request failed", "error", err)
		return nil
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Info("download_subtitle: no subtitle fetched", "error", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		s.logger.Info("download_subtitle: non-200 response", "status", resp.StatusCode)
		return nil
	}

	dest := filepath.Join(ctx.WorkDir, "subtitle.vtt")
	f, err := os.Create(dest)
	if err != nil {
		s.logger.Warn("download_subtitle: creating destination failed", "error", err)
		return nil
	}
	defer f.Close()

	if _, err := io.Copy(f, io.LimitReader(resp.Body, s.maxSize)); err != nil {
		s.logger.Warn("download_subtitle: copy failed", "error", err)
		return nil
	}

	ctx.Set(KeySubtitlePath, dest)
	return nil
}
