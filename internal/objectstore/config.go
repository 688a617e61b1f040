package objectstore

import (
	"fmt"
	"strings"

	"github.com/flightpipe-io/flightpipe/internal/config"
)

// Supported backends.
const (
	BackendS3     = "s3"
	BackendMinio  = "minio"
	BackendMemory = "memory"
)

const (
	defaultRegion        = "us-east-1"
	defaultMinioEndpoint = "localhost:9000"
)

// Config selects and configures the object store backend.
type Config struct {
	Backend        string
	Bucket         string
	Region         string
	S3Endpoint     string
	MinioEndpoint  string
	MinioAccessKey string
	minioSecretKey string
	MinioUseSSL    bool
}

// LoadConfig loads object store configuration from environment variables.
func LoadConfig() *Config {
	return &Config{
		Backend:        strings.ToLower(config.GetEnvStr("OBJECT_STORE_BACKEND", BackendS3)),
		Bucket:         config.GetEnvStr("S3_BUCKET_NAME", ""),
		Region:         config.GetEnvStr("AWS_REGION", defaultRegion),
		S3Endpoint:     config.GetEnvStr("S3_ENDPOINT", ""),
		MinioEndpoint:  config.GetEnvStr("MINIO_ENDPOINT", defaultMinioEndpoint),
		MinioAccessKey: config.GetEnvStr("MINIO_ACCESS_KEY", ""),
		minioSecretKey: config.GetEnvStr("MINIO_SECRET_KEY", ""), // private, never logged
		MinioUseSSL:    config.GetEnvBool("MINIO_USE_SSL", false),
	}
}

// Validate checks the configuration for the selected backend.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendS3, BackendMinio:
		if strings.TrimSpace(c.Bucket) == "" {
			return ErrBucketEmpty
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, c.Backend)
	}

	return nil
}

// New builds the Store the configuration selects.
func New(cfg *Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case BackendMinio:
		return NewMinioStore(cfg)
	case BackendMemory:
		return NewMemoryStore(), nil
	default:
		return NewS3Store(cfg)
	}
}
