package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/flightpipe-io/flightpipe/internal/config"
)

const (
	defaultPort            int   = 8080
	maxPort                int   = 65535
	defaultHost                  = "0.0.0.0"
	defaultReadTimeout           = 30 * time.Second
	defaultWriteTimeout          = 15 * time.Minute // outlasts the default 10m stage deadline
	defaultShutdownTimeout       = 30 * time.Second
	defaultMaxRequestSize  int64 = 64 << 10
)

var (
	// ErrInvalidPort indicates the port number is outside valid range (1-65535).
	ErrInvalidPort = errors.New("invalid port")

	// ErrEmptyHost indicates the server host address is empty.
	ErrEmptyHost = errors.New("host cannot be empty")

	// ErrInvalidReadTimeout indicates the read timeout is zero or negative.
	ErrInvalidReadTimeout = errors.New("read timeout must be positive")

	// ErrInvalidWriteTimeout indicates the write timeout is zero or negative.
	ErrInvalidWriteTimeout = errors.New("write timeout must be positive")

	// ErrInvalidShutdownTimeout indicates the shutdown timeout is zero or negative.
	ErrInvalidShutdownTimeout = errors.New("shutdown timeout must be positive")

	// ErrInvalidMaxRequestSize indicates the max request size is zero or negative.
	ErrInvalidMaxRequestSize = errors.New("max request size must be positive")
)

// ServerConfig holds HTTP server configuration.
// Pure configuration only - no runtime dependencies.
type ServerConfig struct {
	Port int
	Host string

	ReadTimeout time.Duration
	// WriteTimeout bounds a whole trigger request, so it must exceed STAGE_TIMEOUT.
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// MaxRequestSize caps the trigger event body.
	MaxRequestSize int64
}

// LoadServerConfig loads server configuration from environment variables with sensible defaults.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:            config.GetEnvInt("FLIGHTPIPE_SERVER_PORT", defaultPort),
		Host:            config.GetEnvStr("FLIGHTPIPE_SERVER_HOST", defaultHost),
		ReadTimeout:     config.GetEnvDuration("FLIGHTPIPE_SERVER_READ_TIMEOUT", defaultReadTimeout),
		WriteTimeout:    config.GetEnvDuration("FLIGHTPIPE_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
		ShutdownTimeout: config.GetEnvDuration("FLIGHTPIPE_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		MaxRequestSize: int64(config.GetEnvInt(
			"FLIGHTPIPE_MAX_REQUEST_SIZE", int(defaultMaxRequestSize),
		)),
	}
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port <= 0 || c.Port > maxPort {
		return fmt.Errorf("%w: %d, must be between 1 and %d", ErrInvalidPort, c.Port, maxPort)
	}

	if c.Host == "" {
		return ErrEmptyHost
	}

	if c.ReadTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidReadTimeout, c.ReadTimeout)
	}

	if c.WriteTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidWriteTimeout, c.WriteTimeout)
	}

	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidShutdownTimeout, c.ShutdownTimeout)
	}

	if c.MaxRequestSize <= 0 {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidMaxRequestSize, c.MaxRequestSize)
	}

	return nil
}
