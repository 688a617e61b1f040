package middleware

import (
	"github.com/flightpipe-io/flightpipe/internal/config"
)

const (
	defaultTriggerRPS   = 1.0
	defaultTriggerBurst = 5
)

// Config holds trigger authentication and rate limit settings.
type Config struct {
	// TokenHash is the bcrypt hash of the shared trigger token. Empty disables
	// authentication.
	TokenHash string
	RPS       float64
	Burst     int
}

// LoadConfig loads middleware config from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		TokenHash: config.GetEnvStr("FLIGHTPIPE_TRIGGER_TOKEN_HASH", ""),
		RPS:       config.GetEnvFloat("FLIGHTPIPE_TRIGGER_RPS", defaultTriggerRPS),
		Burst:     config.GetEnvInt("FLIGHTPIPE_TRIGGER_BURST", defaultTriggerBurst),
	}
}

// AuthEnabled reports whether a trigger token hash is configured.
func (c *Config) AuthEnabled() bool {
	return c.TokenHash != ""
}
