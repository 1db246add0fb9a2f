package imagehost

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog/log"
)

// MinioHost stores alert frames in an S3-compatible bucket and hands out presigned links
type MinioHost struct {
	client *minio.Client
	bucket string
	expiry time.Duration
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLExpiry time.Duration
}

func NewMinioHost(ctx context.Context, cfg MinioConfig) (*MinioHost, error) {
	if cfg.Endpoint == "" {
		return nil, ErrNotConfigured
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %s: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %s: %w", cfg.Bucket, err)
		}
		log.Info().Str("bucket", cfg.Bucket).Msg("Created alert image bucket")
	}

	return &MinioHost{client: client, bucket: cfg.Bucket, expiry: cfg.URLExpiry}, nil
}

func (h *MinioHost) Name() string { return "minio" }

func (h *MinioHost) Available() bool { return h != nil && h.client != nil }

// Upload stores the file under a dated key and returns a presigned GET URL
func (h *MinioHost) Upload(ctx context.Context, imagePath string) (string, error) {
	if !h.Available() {
		return "", ErrNotConfigured
	}

	f, err := os.Open(imagePath)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat image: %w", err)
	}

	key := ObjectKey(time.Now(), uuid.NewString())
	_, err = h.client.PutObject(ctx, h.bucket, key, f, info.Size(), minio.PutObjectOptions{
		ContentType: "image/jpeg",
	})
	if err != nil {
		return "", fmt.Errorf("failed to store alert image: %w", err)
	}

	u, err := h.client.PresignedGetObject(ctx, h.bucket, key, h.expiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// ObjectKey places alert frames under a per-day prefix
func ObjectKey(at time.Time, id string) string {
	return path.Join("alerts", at.Format("2006/01/02"), id+".jpg")
}
