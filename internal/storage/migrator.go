package storage

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/flightpipe-io/flightpipe/migrations"
)

const migrationsTable = "flightpipe_schema_migrations"

type (
	// Migrator applies the embedded ledger schema.
	Migrator struct {
		migrate *migrate.Migrate
		source  *migrations.Source
		logger  *slog.Logger
	}

	// MigrationStatus is the schema version the database is at.
	MigrationStatus struct {
		Version     uint
		Dirty       bool
		Latest      int
		NoneApplied bool
	}

	// migrateLogger routes golang-migrate's output to slog.
	migrateLogger struct {
		logger *slog.Logger
	}
)

var _ migrate.Logger = (*migrateLogger)(nil)

// NewMigrator validates the embedded migrations and binds them to conn.
// Pass a nil source for the embedded set.
func NewMigrator(conn *Connection, source *migrations.Source, logger *slog.Logger) (*Migrator, error) {
	if conn == nil || conn.DB == nil {
		return nil, ErrNoDatabaseConnection
	}

	if source == nil {
		source = migrations.New(nil)
	}

	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}

	if err := source.Validate(); err != nil {
		return nil, fmt.Errorf("embedded migration validation failed: %w", err)
	}

	driver, err := postgres.WithInstance(conn.DB, &postgres.Config{MigrationsTable: migrationsTable})
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(source.FS(), ".")
	if err != nil {
		return nil, fmt.Errorf("failed to create embedded migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	m.Log = &migrateLogger{logger: logger}

	return &Migrator{migrate: m, source: source, logger: logger}, nil
}

// Up applies all pending migrations. Already up to date is not an error.
func (m *Migrator) Up() error {
	err := m.migrate.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		m.logger.Info("No new migrations to apply")

		return nil
	}

	if err != nil {
		return fmt.Errorf("migration up failed: %w", err)
	}

	m.logger.Info("All migrations applied successfully")

	return nil
}

// Down rolls back the last applied migration.
func (m *Migrator) Down() error {
	err := m.migrate.Steps(-1)
	if errors.Is(err, migrate.ErrNoChange) || errors.Is(err, os.ErrNotExist) {
		m.logger.Info("No migrations to roll back")

		return nil
	}

	if err != nil {
		return fmt.Errorf("migration down failed: %w", err)
	}

	m.logger.Info("Last migration rolled back successfully")

	return nil
}

// Status reports the applied version against the newest embedded one.
func (m *Migrator) Status() (MigrationStatus, error) {
	status := MigrationStatus{Latest: m.source.MaxVersion()}

	version, dirty, err := m.migrate.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		status.NoneApplied = true

		return status, nil
	}

	if err != nil {
		return status, fmt.Errorf("failed to get migration version: %w", err)
	}

	status.Version = version
	status.Dirty = dirty

	return status, nil
}

// Close releases the migrate source and the database. golang-migrate's postgres
// driver owns the *sql.DB it was given, so the Connection is closed too.
func (m *Migrator) Close() error {
	sourceErr, dbErr := m.migrate.Close()

	return errors.Join(sourceErr, dbErr)
}

func (l *migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...), slog.String("component", "migrate"))
}

func (l *migrateLogger) Verbose() bool {
	return false
}
