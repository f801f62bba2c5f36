package stage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/time/rate"

	"github.com/vidsum-dev/vidsum/internal/pipeline"
)

// DownloadVideo fetches the source video to bundle_dir, enforcing both a
// maximum size cap and a throughput rate limit so one job cannot starve the
// process's outbound bandwidth. A non-recoverable network or size violation
// is fatal — the pipeline has no video to operate on downstream.
type DownloadVideo struct {
	client      *http.Client
	limiters    *Limiters
	maxBytes    int64
	rateLimiter *rate.Limiter // bytes/sec token bucket
}

// DownloadVideoConfig configures size and rate caps; rateBytesPerSec <= 0
// disables throttling.
type DownloadVideoConfig struct {
	MaxBytes        int64
	RateBytesPerSec int64
	Limiters        *Limiters
}

func NewDownloadVideoFactory(cfg DownloadVideoConfig) pipeline.StageFactory {
	return func(params map[string]any) (pipeline.Stage, error) {
		var limiter *rate.Limiter
		if cfg.RateBytesPerSec > 0 {
			limiter = rate.NewLimiter(rate.Limit(cfg.RateBytesPerSec), int(cfg.RateBytesPerSec))
		}
		return &DownloadVideo{
			client:      &http.Client{Timeout: 10 * time.Minute},
			limiters:    cfg.Limiters,
			maxBytes:    cfg.MaxBytes,
			rateLimiter: limiter,
		}, nil
	}
}

func (s *DownloadVideo) Run(ctx *pipeline.Context, params map[string]any) error {
	sourceURL, _ := ctx.Get(KeySourceURL)
	url, ok := sourceURL.(string)
	if !ok || url == "" {
		return fmt.Errorf("download_video: source_url is required")
	}

	background := context.Background()
	if s.limiters != nil {
		release, err := s.limiters.Transcode.Acquire(background, "download_video")
		if err != nil {
			return fmt.Errorf("download_video: %w", err)
		}
		defer release()
	}

	req, err := http.NewRequestWithContext(background, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("download_video: building request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("download_video: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download_video: unexpected status %d", resp.StatusCode)
	}

	if s.maxBytes > 0 && resp.ContentLength > s.maxBytes {
		return fmt.Errorf("download_video: content length %d exceeds max %d", resp.ContentLength, s.maxBytes)
	}

	dest := filepath.Join(ctx.WorkDir, "video.mp4")
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("download_video: creating destination: %w", err)
	}
	defer f.Close()

	var reader io.Reader = resp.Body
	if s.maxBytes > 0 {
		reader = io.LimitReader(reader, s.maxBytes+1)
	}

	written, err := s.copyThrottled(f, reader)
	if err != nil {
		return fmt.Errorf("download_video: writing output: %w", err)
	}
	if s.maxBytes > 0 && written > s.maxBytes {
		os.Remove(dest)
		return fmt.Errorf("download_video: downloaded size exceeds max %d bytes", s.maxBytes)
	}

	ctx.Set(KeyVideoPath, dest)
	return nil
}

// copyThrottled copies src to dst in fixed chunks, consuming s.rateLimiter
// tokens per byte written so the overall transfer stays under the
// configured throughput cap.
func (s *DownloadVideo) copyThrottled(dst io.Writer, src io.Reader) (int64, error) {
	if s.rateLimiter == nil {
		return io.Copy(dst, src)
	}

	// WaitN rejects any n above the limiter's burst, so chunks never exceed it.
	chunkSize := 64 * 1024
	if burst := s.rateLimiter.Burst(); burst < chunkSize {
		chunkSize = burst
	}
	buf := make([]byte, chunkSize)
	var total int64

	for {
		n, readErr := src.Read(buf)
		if n > 0 {
			if err := s.rateLimiter.WaitN(context.Background(), n); err != nil {
				return total, err
			}
			written, writeErr := dst.Write(buf[:n])
			total += int64(written)
			if writeErr != nil {
				return total, writeErr
			}
		}
		if readErr == io.EOF {
			return total, nil
		}
		if readErr != nil {
			return total, readErr
		}
	}
}
