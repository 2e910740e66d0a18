package migration

import (
	"context"
	"time"
)

// Migration represents one versioned schema change.
type Migration struct {
	Version     string // numeric version taken from the file name, e.g. "001"
	Description string
	SQL         string
	FilePath    string
	Checksum    string // sha256 of SQL
}

// MigrationManager orchestrates scanning, ordering and execution.
type MigrationManager interface {
	// RunMigrations executes every pending migration in version order.
	RunMigrations(ctx context.Context) error

	// GetPendingMigrations returns the migrations not yet recorded as applied.
	GetPendingMigrations(ctx context.Context) ([]Migration, error)

	// GetMigrationStatus reports the applied and pending migrations.
	GetMigrationStatus(ctx context.Context) (*MigrationStatus, error)
}

// FileScanner finds and parses migration files.
type FileScanner interface {
	ScanMigrations(migrationDir string) ([]Migration, error)
	ValidateFileName(filename string) error
	ParseMigrationFile(filePath string) (*Migration, error)
}

// Executor runs migrations against the database and tracks applied versions.
type Executor interface {
	ExecuteMigration(ctx context.Context, migration Migration) error
	InitializeVersionTable(ctx context.Context) error
	RecordMigration(ctx context.Context, migration Migration, executionTime time.Duration) error
	IsVersionApplied(ctx context.Context, version string) (bool, error)
	GetAppliedVersions(ctx context.Context) ([]AppliedMigration, error)
}

// MigrationStatus summarises the migration state of a database.
type MigrationStatus struct {
	CurrentVersion    string
	PendingCount      int
	AppliedMigrations []AppliedMigration
	PendingMigrations []Migration
}

// AppliedMigration is one row of schema_migrations.
type AppliedMigration struct {
	Version       string
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}
