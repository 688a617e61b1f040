// Package warehouse implements the final pipeline stage: bulk copy the combined
// CSVs from an external stage into the Snowflake staging table.
package warehouse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/snowflakedb/gosnowflake"

	"github.com/flightpipe-io/flightpipe/internal/config"
)

const (
	defaultWarehouse = "COMPUTE_WH"
	defaultDatabase  = "FLIGHT_DATA_PROJECT"
	defaultSchema    = "PUBLIC"
	defaultTable     = "staging_all_airlines"
	defaultStage     = "flight_data_stage"
	defaultPattern   = ".*all_airlines[.]csv"
)

var (
	// ErrCredentialsMissing is returned when user, password or account is empty.
	ErrCredentialsMissing = errors.New("snowflake user, password and account are required")
	// ErrInvalidIdentifier is returned for a table or stage name that is not a plain identifier.
	ErrInvalidIdentifier = errors.New("invalid snowflake identifier")
	// ErrPatternEmpty is returned when no file pattern is configured.
	ErrPatternEmpty = errors.New("copy pattern cannot be empty")
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_$.]*$`)

// Config holds Snowflake connection and COPY settings.
type Config struct {
	User      string
	password  string
	Account   string
	Warehouse string
	Database  string
	Schema    string

	Table   string // Target staging table
	Stage   string // External stage holding the combined CSVs, without the @
	Pattern string // Regex selecting staged files
}

// LoadConfig loads Snowflake configuration from environment variables with fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		User:      config.GetEnvStr("SNOWFLAKE_USER", ""),
		password:  config.GetEnvStr("SNOWFLAKE_PASSWORD", ""),
		Account:   config.GetEnvStr("SNOWFLAKE_ACCOUNT", ""),
		Warehouse: config.GetEnvStr("SNOWFLAKE_WAREHOUSE", defaultWarehouse),
		Database:  config.GetEnvStr("SNOWFLAKE_DATABASE", defaultDatabase),
		Schema:    config.GetEnvStr("SNOWFLAKE_SCHEMA", defaultSchema),
		Table:     config.GetEnvStr("SNOWFLAKE_TABLE", defaultTable),
		Stage:     config.GetEnvStr("SNOWFLAKE_STAGE", defaultStage),
		Pattern:   config.GetEnvStr("SNOWFLAKE_PATTERN", defaultPattern),
	}
}

// NewConfig builds a configuration with default placement for the given credentials.
func NewConfig(user, password, account string) *Config {
	return &Config{
		User:      user,
		password:  password,
		Account:   account,
		Warehouse: defaultWarehouse,
		Database:  defaultDatabase,
		Schema:    defaultSchema,
		Table:     defaultTable,
		Stage:     defaultStage,
		Pattern:   defaultPattern,
	}
}

// Validate checks credentials and the COPY target before any connection is made.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.User) == "" || c.password == "" || strings.TrimSpace(c.Account) == "" {
		return ErrCredentialsMissing
	}

	if !identifierPattern.MatchString(c.Table) {
		return fmt.Errorf("%w: table %q", ErrInvalidIdentifier, c.Table)
	}

	if !identifierPattern.MatchString(c.Stage) {
		return fmt.Errorf("%w: stage %q", ErrInvalidIdentifier, c.Stage)
	}

	if c.Pattern == "" {
		return ErrPatternEmpty
	}

	return nil
}

// DSN renders the gosnowflake connection string.
func (c *Config) DSN() (string, error) {
	return gosnowflake.DSN(&gosnowflake.Config{
		Account:   c.Account,
		User:      c.User,
		Password:  c.password,
		Warehouse: c.Warehouse,
		Database:  c.Database,
		Schema:    c.Schema,
	})
}

// String describes the target without credentials.
func (c *Config) String() string {
	return fmt.Sprintf("%s@%s/%s/%s table=%s stage=@%s", c.User, c.Account, c.Database, c.Schema, c.Table, c.Stage)
}
