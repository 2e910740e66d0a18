package sqlite

import (
	"context"
	"log/slog"

	"github.com/example/oficios-registry/internal/persistence"
	"github.com/example/oficios-registry/internal/persistence/sqlite/migration"
)

// Storage bundles the SQLite repositories over one connection pool.
type Storage struct {
	*UserRepository
	*SessionRepository
	*YearRepository
	*SlotRepository

	pool   *ConnectionPool
	logger *slog.Logger
}

var (
	_ persistence.UserRepository    = (*Storage)(nil)
	_ persistence.SessionRepository = (*Storage)(nil)
	_ persistence.YearRepository    = (*Storage)(nil)
	_ persistence.SlotRepository    = (*Storage)(nil)
)

// Open opens the database file at path. Use migration.MemoryPath for a
// private in-memory database. Call Migrate before using the repositories.
func Open(path string, logger *slog.Logger) (*Storage, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pool, err := NewConnectionPool(migration.DefaultSQLiteConfig(path))
	if err != nil {
		return nil, err
	}
	return NewStorage(pool, logger), nil
}

// NewStorage wraps an existing pool.
func NewStorage(pool *ConnectionPool, logger *slog.Logger) *Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Storage{
		UserRepository:    NewUserRepository(pool),
		SessionRepository: NewSessionRepository(pool),
		YearRepository:    NewYearRepository(pool),
		SlotRepository:    NewSlotRepository(pool),
		pool:              pool,
		logger:            logger,
	}
}

// Migrate brings the schema up to date.
func (s *Storage) Migrate(ctx context.Context) error {
	return Migrate(ctx, s.pool, s.logger)
}

// Ping checks that the database answers.
func (s *Storage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Pool exposes the connection pool.
func (s *Storage) Pool() *ConnectionPool {
	return s.pool
}

// Close releases the connection pool.
func (s *Storage) Close() error {
	return s.pool.Close()
}
