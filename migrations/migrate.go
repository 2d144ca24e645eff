// Package migrations applies the embedded database schema.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/rs/zerolog"
)

//go:embed sql/*.sql
var migrationFiles embed.FS

// RunMigrations applies all pending migrations embedded in the binary.
func RunMigrations(db *sql.DB, logger zerolog.Logger) error {
	if err := checkFTS5(db); err != nil {
		return err
	}

	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite3 driver: %w", err)
	}

	source, err := iofs.New(migrationFiles, "sql")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to initialize migrations: %w", err)
	}

	logger.Info().Msg("Running database migrations")
	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	if err == migrate.ErrNoChange {
		logger.Info().Msg("Database is already up to date")
	} else {
		logger.Info().Msg("Database migrations applied successfully")
	}

	return nil
}

// checkFTS5 verifies the SQLite driver was compiled with FTS5 before the
// schema tries to create virtual tables against it. The stock
// mattn/go-sqlite3 build leaves FTS5 out, so a plain `go build` would
// otherwise fail here with an opaque "no such module: fts5".
func checkFTS5(db *sql.DB) error {
	var enabled int
	err := db.QueryRow(
		"SELECT count(*) FROM pragma_compile_options WHERE compile_options = 'ENABLE_FTS5'",
	).Scan(&enabled)
	if err != nil {
		return fmt.Errorf("failed to read sqlite compile options: %w", err)
	}
	if enabled == 0 {
		return fmt.Errorf("sqlite driver built without FTS5; rebuild with -tags sqlite_fts5 (see Makefile)")
	}
	return nil
}
