// Package objectstore mirrors completed bundle manifests to MinIO for cold
// retention once GC evicts them from the local cache tree.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/vidsum-dev/vidsum/internal/bundle"
)

// minioClient defines the subset of MinIO operations the mirror needs,
// abstracted for testability the way the teacher's storage.Client does.
type minioClient interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	PutObject(ctx context.Context, bucketName, objectName string, reader *bytes.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// ClientConfig holds configuration for the MinIO-backed archive mirror.
type ClientConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Client mirrors bundle manifests to a MinIO bucket. It implements
// bundle.ArchiveMirror.
type Client struct {
	client minioClient
	bucket string
}

var _ bundle.ArchiveMirror = (*Client)(nil)

// NewClient creates a MinIO-backed archive mirror, verifying the bucket
// exists during initialization to fail fast on misconfiguration.
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	raw, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return newClientWithMinioClient(ctx, raw, cfg.Bucket)
}

func newClientWithMinioClient(ctx context.Context, client minioClient, bucket string) (*Client, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("archive bucket does not exist: %s", bucket)
	}
	return &Client{client: client, bucket: bucket}, nil
}

// Mirror uploads a completed bundle's manifest (which embeds the summary
// text directly, per bundle.Manifest) as a single JSON object. Unlike the
// teacher's Upload, which streams arbitrary-size media, this always uploads
// a small, fully-buffered JSON document, so object size is known up front.
func (c *Client) Mirror(cacheKey, sourceType string, manifest *bundle.Manifest) error {
	data, err := json.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("failed to marshal manifest for archive: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key := objectKey(cacheKey, sourceType)
	_, err = c.client.PutObject(ctx, c.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to upload archived manifest: %w", err)
	}
	return nil
}

func objectKey(cacheKey, sourceType string) string {
	return fmt.Sprintf("%s/%s/bundle.json", sourceType, cacheKey)
}
