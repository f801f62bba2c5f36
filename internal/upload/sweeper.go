package upload

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Sweeper runs a background loop that removes expired upload records (and
// their backing files), and purges rows whose stored file is already gone.
type Sweeper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
}

// SweeperConfig tunes the sweep interval. Defaults to one hour, per contract.
type SweeperConfig struct {
	Store    Store
	Interval time.Duration
	Logger   *slog.Logger
}

func NewSweeper(cfg SweeperConfig) *Sweeper {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{store: cfg.Store, interval: interval, logger: logger}
}

// Run blocks, sweeping once immediately (the startup load-and-purge pass)
// and then on every tick, until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce removes every upload record that is expired or whose stored file
// is missing from disk.
func (s *Sweeper) RunOnce(ctx context.Context) {
	records, err := s.store.ListUploads(ctx)
	if err != nil {
		s.logger.Error("upload sweeper: list uploads failed", "error", err)
		return
	}

	now := time.Now()
	removed := 0
	for _, record := range records {
		expired := now.After(record.ExpiresAt)
		missing := false
		if !expired {
			if _, statErr := os.Stat(record.StoredPath); statErr != nil {
				missing = true
			}
		}
		if !expired && !missing {
			continue
		}

		if err := os.RemoveAll(filepath.Dir(record.StoredPath)); err != nil {
			s.logger.Warn("upload sweeper: remove file failed", "file_id", record.FileID, "error", err)
		}
		if err := s.store.DeleteUpload(ctx, record.FileID); err != nil {
			s.logger.Warn("upload sweeper: delete record failed", "file_id", record.FileID, "error", err)
			continue
		}
		removed++
	}

	if removed > 0 {
		s.logger.Info("upload sweeper: removed expired uploads", "count", removed)
	}
}
