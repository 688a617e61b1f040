package flightapi

import (
	"errors"
	"strings"
	"time"

	"github.com/flightpipe-io/flightpipe/internal/config"
)

const (
	defaultEndpoint = "http://api.aviationstack.com/v1/flights"
	defaultTimeout  = 30 * time.Second
	defaultRPS      = 1.0
	defaultBurst    = 1
)

var (
	// ErrAccessKeyEmpty is returned when no API access key is configured.
	ErrAccessKeyEmpty = errors.New("flight API access key cannot be empty")
	// ErrEndpointEmpty is returned when the API endpoint is blank.
	ErrEndpointEmpty = errors.New("flight API endpoint cannot be empty")
	// ErrInvalidRate is returned for a non-positive request rate or burst.
	ErrInvalidRate = errors.New("flight API rate and burst must be greater than zero")
)

// Config holds flight API client configuration.
type Config struct {
	Endpoint  string
	accessKey string
	Timeout   time.Duration // Per-request timeout
	RPS       float64       // Sustained requests per second
	Burst     int           // Requests allowed back to back
}

// LoadConfig loads flight API configuration from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		Endpoint:  config.GetEnvStr("FLIGHTAPI_ENDPOINT", defaultEndpoint),
		accessKey: config.GetEnvStr("AVIATIONSTACK_API_KEY", ""), // private, never logged
		Timeout:   config.GetEnvDuration("FLIGHTAPI_TIMEOUT", defaultTimeout),
		RPS:       config.GetEnvFloat("FLIGHTAPI_RPS", defaultRPS),
		Burst:     config.GetEnvInt("FLIGHTAPI_BURST", defaultBurst),
	}
}

// NewConfig builds a configuration with defaults for everything but the endpoint and key.
func NewConfig(endpoint, accessKey string) *Config {
	return &Config{
		Endpoint:  endpoint,
		accessKey: accessKey,
		Timeout:   defaultTimeout,
		RPS:       defaultRPS,
		Burst:     defaultBurst,
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return ErrEndpointEmpty
	}

	if strings.TrimSpace(c.accessKey) == "" {
		return ErrAccessKeyEmpty
	}

	if c.RPS <= 0 || c.Burst <= 0 {
		return ErrInvalidRate
	}

	return nil
}
