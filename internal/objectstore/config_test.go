package objectstore

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("OBJECT_STORE_BACKEND", "MinIO")
	t.Setenv("S3_BUCKET_NAME", "flight-bucket")
	t.Setenv("MINIO_SECRET_KEY", "secret") // pragma: allowlist secret
	t.Setenv("MINIO_USE_SSL", "true")

	cfg := LoadConfig()

	assert.Equal(t, BackendMinio, cfg.Backend)
	assert.Equal(t, "flight-bucket", cfg.Bucket)
	assert.Equal(t, defaultRegion, cfg.Region)
	assert.Equal(t, defaultMinioEndpoint, cfg.MinioEndpoint)
	assert.Equal(t, "secret", cfg.minioSecretKey)
	assert.True(t, cfg.MinioUseSSL)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "s3 with bucket", cfg: Config{Backend: BackendS3, Bucket: "b"}},
		{name: "s3 without bucket", cfg: Config{Backend: BackendS3}, wantErr: ErrBucketEmpty},
		{name: "minio without bucket", cfg: Config{Backend: BackendMinio, Bucket: " "}, wantErr: ErrBucketEmpty},
		{name: "memory needs nothing", cfg: Config{Backend: BackendMemory}},
		{name: "unknown backend", cfg: Config{Backend: "gcs", Bucket: "b"}, wantErr: ErrUnknownBackend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)

				return
			}

			assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
		})
	}
}

func TestNew_Memory(t *testing.T) {
	store, err := New(&Config{Backend: BackendMemory})

	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
}

func TestNew_S3(t *testing.T) {
	store, err := New(&Config{Backend: BackendS3, Bucket: "flight-bucket", Region: "us-east-1"})

	require.NoError(t, err)
	assert.IsType(t, &S3Store{}, store)
}

func TestNew_Minio(t *testing.T) {
	store, err := New(&Config{Backend: BackendMinio, Bucket: "flight-bucket", MinioEndpoint: "localhost:9000"})

	require.NoError(t, err)
	assert.IsType(t, &MinioStore{}, store)
}
