package storage

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/flightpipe-io/flightpipe/internal/config"
)

const (
	defaultMaxOpenConns    = 4
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
)

var (
	// ErrDatabaseURLEmpty is returned when the database url is an empty string.
	ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")
	// ErrNoDatabaseConnection is returned when a store is built without a connection.
	ErrNoDatabaseConnection = errors.New("database connection is required")
	// ErrInvalidPoolSize is returned when pool limits cannot be satisfied together.
	ErrInvalidPoolSize = errors.New("invalid connection pool size")
)

// Config holds the run ledger's PostgreSQL settings. An empty DATABASE_URL
// disables the ledger.
type Config struct {
	databaseURL     string
	MaxOpenConns    int           // Maximum number of open connections
	MaxIdleConns    int           // Maximum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of connections
	ConnMaxIdleTime time.Duration // Maximum idle time for connections
}

// LoadConfig loads PostgreSQL configuration from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		databaseURL:     config.GetEnvStr("DATABASE_URL", ""), // never logged unmasked
		MaxOpenConns:    config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
	}
}

// Enabled reports whether a database URL is configured.
func (c *Config) Enabled() bool {
	return strings.TrimSpace(c.databaseURL) != ""
}

// NewConfig builds a configuration for databaseURL with default pool settings.
func NewConfig(databaseURL string) *Config {
	return &Config{
		databaseURL:     databaseURL,
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnMaxIdleTime: defaultConnMaxIdleTime,
	}
}

// Validate checks the URL and pool sizes.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	if c.MaxOpenConns < 1 || c.MaxIdleConns < 0 || c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("%w: max open %d, max idle %d", ErrInvalidPoolSize, c.MaxOpenConns, c.MaxIdleConns)
	}

	return nil
}

// MaskDatabaseURL hides the password for logging. Both the URL form and the
// lib/pq key=value form are understood; anything else is returned unchanged.
func (c *Config) MaskDatabaseURL() string {
	dsn := c.databaseURL

	if dsn == "" {
		return ""
	}

	if strings.Contains(dsn, "://") {
		return maskURLPassword(dsn)
	}

	return keywordPassword.ReplaceAllString(dsn, "${1}***")
}

var keywordPassword = regexp.MustCompile(`(\bpassword\s*=\s*)('(?:[^'\\]|\\.)*'|\S+)`)

// maskURLPassword splits userinfo at the last '@' so unescaped '@' in a
// password still masks cleanly.
func maskURLPassword(dsn string) string {
	scheme, rest, _ := strings.Cut(dsn, "://")

	at := strings.LastIndex(rest, "@")
	if at == -1 {
		return dsn
	}

	user, password, found := strings.Cut(rest[:at], ":")
	if !found || password == "" {
		return dsn
	}

	return scheme + "://" + user + ":***" + rest[at:]
}
