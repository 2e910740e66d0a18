// Package server assembles the registry backend: SQLite storage, the
// application services over it and the realtime broker they publish to.
package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/example/oficios-registry/internal/application"
	"github.com/example/oficios-registry/internal/logging"
	"github.com/example/oficios-registry/internal/persistence/sqlite"
	"github.com/example/oficios-registry/internal/realtime"
)

// Options tunes the assembled backend. Zero values select defaults.
type Options struct {
	DBPath         string
	SessionTTL     time.Duration
	AutoConfirm    bool
	Logger         *slog.Logger
	Now            func() time.Time
	IDGenerator    func() string
	TokenGenerator func() string
}

// App is a ready to serve backend.
type App struct {
	Storage *sqlite.Storage
	Broker  *realtime.Broker
	Auth    *application.AuthService
	Years   *application.YearService
	Slots   *application.SlotService

	logger *slog.Logger
	rdb    *redis.Client
	bridge *realtime.RedisBridge
}

// Open opens and migrates the database at opts.DBPath and wires the services.
func Open(ctx context.Context, opts Options) (*App, error) {
	logger := logging.Or(opts.Logger)

	storage, err := sqlite.Open(opts.DBPath, logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	if err := storage.Migrate(ctx); err != nil {
		_ = storage.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}
	return New(storage, opts), nil
}

// New wires the services over an already migrated storage.
func New(storage *sqlite.Storage, opts Options) *App {
	logger := logging.Or(opts.Logger)
	idGenerator := opts.IDGenerator
	if idGenerator == nil {
		idGenerator = uuid.NewString
	}
	tokenGenerator := opts.TokenGenerator
	if tokenGenerator == nil {
		tokenGenerator = tokenSource(rand.Reader)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	broker := realtime.NewBroker(realtime.WithLogger(logger))
	years := newYearRepositoryAdapter(storage)

	return &App{
		Storage: storage,
		Broker:  broker,
		Auth: application.NewAuthServiceWithLogger(
			newCredentialStoreAdapter(storage),
			newSessionRepositoryAdapter(storage),
			tokenGenerator,
			now,
			application.AuthSettings{SessionTTL: opts.SessionTTL, AutoConfirm: opts.AutoConfirm},
			logger,
		),
		Years:  application.NewYearServiceWithLogger(years, broker, idGenerator, now, logger),
		Slots:  application.NewSlotServiceWithLogger(newSlotRepositoryAdapter(storage), years, broker, now, logger),
		logger: logger,
	}
}

// AttachRedis connects to the Redis server at addr and relays every published
// change through it on channel, or the default channel when empty. RunBridge
// must be started to receive remote changes.
func (a *App) AttachRedis(ctx context.Context, addr, channel string) error {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return fmt.Errorf("ping redis %s: %w", addr, err)
	}
	a.rdb = rdb
	opts := []realtime.RedisBridgeOption{realtime.WithBridgeLogger(a.logger)}
	if channel != "" {
		opts = append(opts, realtime.WithChannel(channel))
	}
	a.bridge = realtime.NewRedisBridge(rdb, a.Broker, opts...)
	a.Broker.SetRelay(a.bridge)
	a.logger.InfoContext(ctx, "realtime redis bridge attached", "addr", addr, "origin", a.bridge.Origin())
	return nil
}

// RunBridge relays changes published by other instances until ctx ends. It
// returns immediately when no Redis server is attached.
func (a *App) RunBridge(ctx context.Context) error {
	if a.bridge == nil {
		return nil
	}
	return a.bridge.Run(ctx)
}

// Ping checks the database and, when attached, the Redis server.
func (a *App) Ping(ctx context.Context) error {
	if err := a.Storage.Ping(ctx); err != nil {
		return err
	}
	if a.rdb != nil {
		return a.rdb.Ping(ctx).Err()
	}
	return nil
}

// Close releases Redis and the database.
func (a *App) Close() error {
	var errs []error
	if a.rdb != nil {
		a.Broker.SetRelay(nil)
		errs = append(errs, a.rdb.Close())
	}
	errs = append(errs, a.Storage.Close())
	return errors.Join(errs...)
}

// sessionToken reads n bytes from r and returns them hex encoded.
func sessionToken(r io.Reader, n int) (string, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// tokenSource generates 32 byte session tokens from r and panics when r
// fails.
func tokenSource(r io.Reader) func() string {
	return func() string {
		token, err := sessionToken(r, 32)
		if err != nil {
			panic(fmt.Sprintf("server: cannot generate session token: %v", err))
		}
		return token
	}
}
