// Package migrate applies the golang-migrate-managed schema for the
// files/roles/file_permissions tables, the half of the schema owned by raw
// SQL rather than GORM's AutoMigrate (see internal/store/controlstore for
// the other half). Grounded on the teacher's
// pkg/store/metadata/postgres/migrate.go.
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/keelfs/keeld/internal/logger"
	"github.com/keelfs/keeld/internal/store/migrate/migrations"
)

// Run applies every pending migration against dsn. It relies on
// golang-migrate's PostgreSQL advisory locks to make concurrent
// invocations (e.g. two keeld instances booting at once) safe.
func Run(ctx context.Context, dsn string) error {
	logger.InfoCtx(ctx, "running database migrations")

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("migrate: open connection: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("migrate: ping database: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{
		MigrationsTable: "schema_migrations",
		DatabaseName:    "keeld",
	})
	if err != nil {
		return fmt.Errorf("migrate: create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("migrate: create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate: create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate: apply migrations: %w", err)
	} else if err == migrate.ErrNoChange {
		logger.InfoCtx(ctx, "no migrations to apply")
	} else {
		logger.InfoCtx(ctx, "migrations applied successfully")
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("migrate: read schema version: %w", err)
	}
	if err == migrate.ErrNilVersion {
		return nil
	}
	logger.InfoCtx(ctx, "schema version", slog.Int("version", int(version)), slog.Bool("dirty", dirty))
	if dirty {
		logger.WarnCtx(ctx, "database schema is dirty, manual intervention may be required")
	}
	return nil
}

// Version reports the currently applied schema version without running
// any migrations.
func Version(dsn string) (version uint, dirty bool, err error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return 0, false, fmt.Errorf("migrate: open connection: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{MigrationsTable: "schema_migrations"})
	if err != nil {
		return 0, false, fmt.Errorf("migrate: create postgres driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return 0, false, fmt.Errorf("migrate: create source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", driver)
	if err != nil {
		return 0, false, fmt.Errorf("migrate: create migrate instance: %w", err)
	}

	version, dirty, err = m.Version()
	if err == migrate.ErrNilVersion {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return version, dirty, nil
}
