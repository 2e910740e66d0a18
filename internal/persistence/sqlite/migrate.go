package sqlite

import (
	"context"
	"embed"
	"log/slog"

	"github.com/example/oficios-registry/internal/persistence/sqlite/migration"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const migrationDir = "migrations"

// Migrate applies every embedded migration that has not run yet.
func Migrate(ctx context.Context, pool *ConnectionPool, logger *slog.Logger) error {
	return newMigrationManager(pool, logger).RunMigrations(ctx)
}

// MigrationStatus reports the schema version of the database behind pool.
func MigrationStatus(ctx context.Context, pool *ConnectionPool, logger *slog.Logger) (*migration.MigrationStatus, error) {
	return newMigrationManager(pool, logger).GetMigrationStatus(ctx)
}

func newMigrationManager(pool *ConnectionPool, logger *slog.Logger) migration.MigrationManager {
	return migration.NewMigrationManager(
		migration.NewFileScanner(migrationFiles),
		migration.NewSQLiteExecutor(pool.DB()),
		migrationDir,
		logger,
	)
}
