// Package migration applies versioned SQL schema changes to the registry's
// SQLite database.
//
// Migration files live in an fs.FS (normally embedded into the binary) and
// follow the naming convention {version}_{description}.sql, for example
// 001_initial_schema.sql. Each file runs in its own transaction and is
// recorded in the schema_migrations table together with its checksum, so a
// database is never migrated twice.
//
// Example usage:
//
//	scanner := migration.NewFileScanner(migrationsFS)
//	executor := migration.NewSQLiteExecutor(db)
//	manager := migration.NewMigrationManager(scanner, executor, "migrations", logger)
//	if err := manager.RunMigrations(ctx); err != nil {
//		return err
//	}
package migration
