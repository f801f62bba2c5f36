package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vidsum-dev/vidsum/internal/bundle"
	"github.com/vidsum-dev/vidsum/internal/config"
	"github.com/vidsum-dev/vidsum/internal/gc"
	"github.com/vidsum-dev/vidsum/internal/infrastructure/objectstore"
	"github.com/vidsum-dev/vidsum/internal/infrastructure/store"
	"github.com/vidsum-dev/vidsum/internal/upload"
)

// cmd/worker is a background-maintenance daemon only: the GC collector and
// the upload sweeper. Pipeline execution itself runs inside cmd/api, since
// the job queue it drains (internal/jobqueue.Queue) is an in-process,
// buffered-channel queue rather than a broker consumer — there is no
// "Consume" side to run here (see internal/infrastructure/eventbus).
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Worker.TempDir, 0o755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	pgClient, err := store.NewClient(ctx, store.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")

	archive, err := objectstore.NewClient(ctx, objectstore.ClientConfig{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	logger.Info("connected to MinIO")

	bundles, err := bundle.NewManager(bundle.Config{
		RootPath:       cfg.Worker.TempDir,
		ProfileVersion: cfg.Pipeline.ProfileVersion,
		Archive:        archive,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize bundle manager: %w", err)
	}

	cacheStore := store.NewCacheStore(pgClient.Pool())
	uploadStore := store.NewUploadStore(pgClient.Pool())

	collector := gc.NewCollector(cacheStore, bundles, gc.Config{
		FailedTTL: cfg.Cache.FailedTTL,
		TTL:       time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour,
		MaxBytes:  cfg.Cache.MaxBytes,
		Interval:  cfg.GC.IntervalSeconds,
	}, logger)

	sweeper := upload.NewSweeper(upload.SweeperConfig{Store: uploadStore, Logger: logger})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		logger.Info("starting gc collector", slog.Duration("interval", cfg.GC.IntervalSeconds))
		collector.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		logger.Info("starting upload sweeper")
		sweeper.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info("shutting down worker", slog.String("signal", sig.String()))

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all background loops stopped")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, background loops may not have stopped")
	}

	logger.Info("worker stopped")
	return nil
}
