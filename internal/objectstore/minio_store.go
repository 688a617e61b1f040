package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

var _ Store = (*MinioStore)(nil)

// MinioStore implements Store on a MinIO server, typically for local development.
type MinioStore struct {
	client *minio.Client
	bucket string
}

// NewMinioStore connects to the configured MinIO endpoint with static credentials.
func NewMinioStore(cfg *Config) (*MinioStore, error) {
	if cfg.Bucket == "" {
		return nil, ErrBucketEmpty
	}

	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.minioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioStore{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads body; metadata becomes MinIO user metadata.
func (s *MinioStore) Put(ctx context.Context, key string, body []byte, contentType string, opts ...PutOption) error {
	o := applyPutOptions(opts)

	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(body), int64(len(body)),
		minio.PutObjectOptions{
			ContentType:  contentType,
			UserMetadata: o.Metadata,
		})
	if err != nil {
		return fmt.Errorf("failed to put minio://%s/%s: %w", s.bucket, key, err)
	}

	return nil
}

// Get downloads the object body.
func (s *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.getError(key, err)
	}

	defer func() {
		_ = obj.Close()
	}()

	// GetObject is lazy: a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, s.getError(key, err)
	}

	return data, nil
}

func (s *MinioStore) getError(key string, err error) error {
	resp := minio.ToErrorResponse(err)
	if resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: minio://%s/%s", ErrNotFound, s.bucket, key)
	}

	return fmt.Errorf("failed to get minio://%s/%s: %w", s.bucket, key, err)
}
