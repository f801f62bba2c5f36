package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vidsum-dev/vidsum/internal/api"
	"github.com/vidsum-dev/vidsum/internal/api/handler"
	"github.com/vidsum-dev/vidsum/internal/bundle"
	"github.com/vidsum-dev/vidsum/internal/cachesvc"
	"github.com/vidsum-dev/vidsum/internal/config"
	"github.com/vidsum-dev/vidsum/internal/infrastructure/asrengine"
	infracache "github.com/vidsum-dev/vidsum/internal/infrastructure/cache"
	"github.com/vidsum-dev/vidsum/internal/infrastructure/eventbus"
	"github.com/vidsum-dev/vidsum/internal/infrastructure/llmclient"
	"github.com/vidsum-dev/vidsum/internal/infrastructure/objectstore"
	"github.com/vidsum-dev/vidsum/internal/infrastructure/store"
	"github.com/vidsum-dev/vidsum/internal/jobqueue"
	"github.com/vidsum-dev/vidsum/internal/pipeline"
	"github.com/vidsum-dev/vidsum/internal/pipeline/stage"
	"github.com/vidsum-dev/vidsum/internal/ratelimit"
	"github.com/vidsum-dev/vidsum/internal/upload"
)

// version is reported by GET /health. The in-process job queue means this
// binary owns both the HTTP surface and the worker pool that executes
// enqueued jobs — see cmd/worker for the separate GC/sweeper maintenance
// daemon.
const version = "1.0.0"

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

	pgClient, err := store.NewClient(ctx, store.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

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

	eventPublisher, err := eventbus.NewClient(ctx, eventbus.DefaultClientConfig(cfg.RabbitMQ.URL()))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer eventPublisher.Close()
	logger.Info("connected to RabbitMQ")

	if err := os.MkdirAll(cfg.Worker.TempDir, 0o755); err != nil {
		return fmt.Errorf("failed to create worker temp dir: %w", err)
	}

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

	cacheSvc := cachesvc.New(cachesvc.Config{
		Store:          cacheStore,
		Bundles:        bundles,
		ProfileVersion: cfg.Pipeline.ProfileVersion,
		Logger:         logger,
	})
	cachedSvc := cachesvc.NewCachedService(cachesvc.CachedServiceConfig{
		Delegate: cacheSvc,
		Cache:    infracache.NewRedisLookupCache(redisClient),
		TTL:      5 * time.Minute,
		Logger:   logger,
	})

	uploadManager, err := upload.NewManager(uploadStore, upload.Config{
		RootPath:     cfg.Worker.TempDir + "/uploads",
		MaxSizeBytes: cfg.Upload.VideoMaxSizeMB << 20,
		ChunkSize:    int(cfg.Upload.ChunkSizeBytes),
		ChunkTimeout: cfg.Upload.ReadTimeout,
		Concurrency:  cfg.Upload.Concurrency,
		Logger:       logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize upload manager: %w", err)
	}

	limiters := stage.NewLimiters(cfg.Worker.TranscodeConcurrency, cfg.Worker.TranscribeConcurrency, cfg.Pipeline.StageWait)

	registry := pipeline.NewRegistry()
	stage.Register(registry, stage.Config{
		Limiters: limiters,
		Thresholds: stage.Thresholds{
			SubtitleCoverageMin:   0.8,
			TranscriptTokenPerMin: 1.0,
			MaxInputChars:         cfg.LLM.MaxInputChars,
		},
		DownloadVideo: stage.DownloadVideoConfig{
			MaxBytes:        cfg.Upload.VideoMaxSizeMB << 20,
			RateBytesPerSec: cfg.Upload.VideoDownloadRateLimitKB << 10,
			Limiters:        limiters,
		},
		Transcribe: stage.TranscribeConfig{
			Engine:   asrengine.NewWhisperEngine(asrengine.Config{}),
			Limiters: limiters,
		},
		TextSummarize: stage.TextSummarizeConfig{
			Summarizer:     llmclient.NewClient(llmclient.Config{}),
			Model:          cfg.LLM.Model,
			Prompt:         cfg.LLM.SummaryPrompt,
			MaxTokens:      cfg.LLM.MaxTokens,
			MaxInputChars:  cfg.LLM.MaxInputChars,
			ProfileVersion: cfg.Pipeline.ProfileVersion,
		},
	})

	executor := jobqueue.NewExecutor(jobqueue.ExecutorConfig{
		Cache:          cachedSvc,
		Bundles:        bundles,
		Registry:       registry,
		Publisher:      eventPublisher,
		ProfileVersion: cfg.Pipeline.ProfileVersion,
		Logger:         logger,
	})
	queue := jobqueue.NewQueue(jobqueue.QueueConfig{
		Executor:    executor,
		Logger:      logger,
		WorkerCount: cfg.Worker.JobWorkerCount,
	})
	queue.Start(ctx)

	handlers := api.Handlers{
		Health:  handler.NewHealthHandler(version),
		Upload:  handler.NewUploadHandler(uploadManager, logger),
		Cache:   handler.NewCacheHandler(cachedSvc, uploadManager, logger),
		Summary: handler.NewSummaryHandler(cachedSvc, uploadManager, queue, logger),
		Job:     handler.NewJobHandler(cachedSvc, logger),
	}
	limits := api.RateLimiters{
		Upload:  ratelimit.NewSlidingWindow(cfg.RateLimit.UploadPerMinute, time.Minute),
		Summary: ratelimit.NewSlidingWindow(cfg.RateLimit.SummaryPerMinute, time.Minute),
	}
	router := api.NewRouter(handlers, limits, logger)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	cancel()
	queue.Stop(shutdownCtx)

	logger.Info("server stopped")
	return nil
}
