package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
)

// MigrationsTable records the applied schema version.
const MigrationsTable = "schema_migrations"

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrator applies the records schema. It reads the migrations compiled into
// the binary unless a directory on disk is given.
type Migrator struct {
	m      *migrate.Migrate
	conn   *sql.DB
	logger zerolog.Logger
}

// NewMigrator creates a migrator on db's pool. An empty dir selects the
// embedded migrations.
func NewMigrator(db *DB, dir string, logger zerolog.Logger) (*Migrator, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if db.pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}
	logger = logger.With().Str("component", "migrator").Logger()

	src, srcName, err := openSource(dir)
	if err != nil {
		return nil, err
	}

	conn := stdlib.OpenDBFromPool(db.pool)
	driver, err := postgres.WithInstance(conn, &postgres.Config{MigrationsTable: MigrationsTable})
	if err != nil {
		_ = src.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("create postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance(srcName, src, "postgres", driver)
	if err != nil {
		_ = src.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	m.Log = migrateLogger{logger: logger}

	logger.Debug().Str("source", srcName).Msg("migrator ready")
	return &Migrator{m: m, conn: conn, logger: logger}, nil
}

func openSource(dir string) (source.Driver, string, error) {
	if dir == "" {
		src, err := iofs.New(embeddedMigrations, "migrations")
		if err != nil {
			return nil, "", fmt.Errorf("open embedded migrations: %w", err)
		}
		return src, "embedded", nil
	}

	if _, err := os.Stat(dir); err != nil {
		return nil, "", fmt.Errorf("migrations directory: %w", err)
	}
	src, err := source.Open("file://" + dir)
	if err != nil {
		return nil, "", fmt.Errorf("open migrations directory %s: %w", dir, err)
	}
	return src, dir, nil
}

// Up applies every pending migration. Being current is not an error.
func (m *Migrator) Up() error {
	return m.apply("up", m.m.Up)
}

// Down reverts every applied migration.
func (m *Migrator) Down() error {
	return m.apply("down", m.m.Down)
}

// Steps applies n migrations forward, or -n backward when n is negative.
// Running past the last or first migration is not an error.
func (m *Migrator) Steps(n int) error {
	return m.apply(fmt.Sprintf("steps(%d)", n), func() error {
		err := m.m.Steps(n)
		if errors.Is(err, os.ErrNotExist) {
			return migrate.ErrNoChange
		}
		return err
	})
}

func (m *Migrator) apply(op string, fn func() error) error {
	err := fn()
	switch {
	case errors.Is(err, migrate.ErrNoChange):
		m.logger.Info().Str("op", op).Msg("schema already current")
		return nil
	case err != nil:
		return fmt.Errorf("migrate %s: %w", op, err)
	}

	v, dirty, _ := m.Version()
	m.logger.Info().Str("op", op).Uint("version", v).Bool("dirty", dirty).Msg("migration applied")
	return nil
}

// Version returns the applied version and whether the last migration failed
// midway. A database without migrations reports version 0.
func (m *Migrator) Version() (uint, bool, error) {
	v, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// Force records version as applied and clears the dirty flag without running
// anything.
func (m *Migrator) Force(version int) error {
	m.logger.Warn().Int("version", version).Msg("forcing schema version")
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("force version %d: %w", version, err)
	}
	return nil
}

// Close releases the migration source and the database handle.
func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	connErr := m.conn.Close()
	return errors.Join(srcErr, dbErr, connErr)
}

// migrateLogger forwards golang-migrate's log lines to zerolog.
type migrateLogger struct {
	logger zerolog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug().Msgf(format, v...)
}

func (l migrateLogger) Verbose() bool {
	return l.logger.GetLevel() <= zerolog.DebugLevel
}
