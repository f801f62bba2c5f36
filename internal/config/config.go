package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the process-wide configuration surface for both cmd/api and
// cmd/worker. Each field group is processed from its own envconfig tags;
// both binaries load the same Config and use what they need: cmd/api reads
// Server/Upload/RateLimit/Worker/Pipeline/LLM plus the Database/MinIO/
// RabbitMQ/Redis connections, while cmd/worker reads Worker/Pipeline/Cache/GC
// plus the Database/MinIO connections.
type Config struct {
	Server    ServerConfig
	Upload    UploadConfig
	RateLimit RateLimitConfig
	Worker    WorkerConfig
	Pipeline  PipelineConfig
	Cache     CacheConfig
	GC        GCConfig
	LLM       LLMConfig
	Database  DatabaseConfig
	MinIO     MinIOConfig
	RabbitMQ  RabbitMQConfig
	Redis     RedisConfig
}

type ServerConfig struct {
	Port            int           `envconfig:"API_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"API_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"API_WRITE_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"API_SHUTDOWN_TIMEOUT" default:"10s"`
}

// UploadConfig governs the multipart upload surface: how many uploads may
// stream to disk concurrently, the chunk size used to copy each one, and
// the timeouts/slop applied around Content-Length enforcement.
type UploadConfig struct {
	Concurrency              int           `envconfig:"UPLOAD_CONCURRENCY" default:"4"`
	ChunkSizeBytes           int64         `envconfig:"UPLOAD_CHUNK_SIZE" default:"1048576"`
	ReadTimeout              time.Duration `envconfig:"UPLOAD_READ_TIMEOUT_SECONDS" default:"120s"`
	WriteTimeout             time.Duration `envconfig:"UPLOAD_WRITE_TIMEOUT_SECONDS" default:"120s"`
	ContentLengthGraceBytes  int64         `envconfig:"UPLOAD_CONTENT_LENGTH_GRACE_BYTES" default:"4096"`
	SubtitleMaxSizeMB        int64         `envconfig:"SUBTITLE_MAX_SIZE_MB" default:"5"`
	VideoMaxSizeMB           int64         `envconfig:"VIDEO_MAX_SIZE_MB" default:"2048"`
	VideoDownloadRateLimitKB int64         `envconfig:"VIDEO_DOWNLOAD_RATE_LIMIT" default:"0"`
}

// RateLimitConfig governs the two sliding-window limiters guarding the
// upload and summary endpoints; each is keyed per client (see
// internal/ratelimit.ClientKey).
type RateLimitConfig struct {
	UploadPerMinute  int `envconfig:"RATE_LIMIT_UPLOAD_PER_MINUTE" default:"10"`
	SummaryPerMinute int `envconfig:"RATE_LIMIT_SUMMARY_PER_MINUTE" default:"20"`
}

// WorkerConfig governs the in-process job queue's worker pool and the
// per-stage concurrency caps applied inside the pipeline.
type WorkerConfig struct {
	TempDir              string        `envconfig:"WORKER_TEMP_DIR" default:"/tmp/vidsum"`
	MaxRetries           int           `envconfig:"WORKER_MAX_RETRIES" default:"3"`
	ShutdownTimeout      time.Duration `envconfig:"WORKER_SHUTDOWN_TIMEOUT" default:"30s"`
	JobWorkerCount       int           `envconfig:"JOB_WORKER_COUNT" default:"4"`
	TranscodeConcurrency int           `envconfig:"TRANSCODE_CONCURRENCY" default:"2"`
	TranscribeConcurrency int          `envconfig:"TRANSCRIBE_CONCURRENCY" default:"2"`
}

// PipelineConfig carries StageWait, the longest a stage waits for a
// transcode or transcribe limiter slot before failing, and ProfileVersion.
type PipelineConfig struct {
	StageWait time.Duration `envconfig:"PIPELINE_STAGE_WAIT_SECONDS" default:"3600s"`
	ProfileVersion string   `envconfig:"PROFILE_VERSION" default:"v1"`
}

// CacheConfig governs the bundle-store retention policy enforced by the
// garbage collector: total size budget and per-status TTLs.
type CacheConfig struct {
	MaxBytes      int64         `envconfig:"CACHE_MAX_BYTES" default:"107374182400"`
	TTLDays       int           `envconfig:"CACHE_TTL_DAYS" default:"30"`
	FailedTTL     time.Duration `envconfig:"FAILED_TTL_HOURS" default:"24h"`
}

// GCConfig governs how often the collector sweeps the bundle store.
type GCConfig struct {
	IntervalSeconds time.Duration `envconfig:"GC_INTERVAL_SECONDS" default:"3600s"`
}

// LLMConfig governs the summarization backend invoked by the asr/summary
// pipeline stage.
type LLMConfig struct {
	Model          string `envconfig:"LLM_MODEL" default:"gpt-4o-mini"`
	SummaryPrompt  string `envconfig:"LLM_SUMMARY_PROMPT" default:"Summarize the following transcript in clear, concise prose."`
	MaxTokens      int    `envconfig:"LLM_MAX_TOKENS" default:"1024"`
	MaxInputChars  int    `envconfig:"LLM_MAX_INPUT_CHARS" default:"120000"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" default:"vidsum"`
	Password string `envconfig:"POSTGRES_PASSWORD" default:"vidsum"`
	DBName   string `envconfig:"POSTGRES_DB" default:"vidsum"`
	SSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

type MinIOConfig struct {
	Endpoint  string `envconfig:"MINIO_ENDPOINT" default:"localhost:9000"`
	AccessKey string `envconfig:"MINIO_ACCESS_KEY" default:"minioadmin"`
	SecretKey string `envconfig:"MINIO_SECRET_KEY" default:"minioadmin"`
	Bucket    string `envconfig:"MINIO_BUCKET" default:"vidsum-bundles"`
	UseSSL    bool   `envconfig:"MINIO_USE_SSL" default:"false"`
}

type RabbitMQConfig struct {
	Host     string `envconfig:"RABBITMQ_HOST" default:"localhost"`
	Port     int    `envconfig:"RABBITMQ_PORT" default:"5672"`
	User     string `envconfig:"RABBITMQ_USER" default:"vidsum"`
	Password string `envconfig:"RABBITMQ_PASSWORD" default:"vidsum"`
	VHost    string `envconfig:"RABBITMQ_VHOST" default:"/"`
}

func (c RabbitMQConfig) URL() string {
	return fmt.Sprintf(
		"amqp://%s:%s@%s:%d%s",
		c.User, c.Password, c.Host, c.Port, c.VHost,
	)
}

// RedisConfig backs the advisory lookup cache. cmd/api dials this
// directly rather than through envconfig.Process on a missing struct.
type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
