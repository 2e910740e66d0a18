package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/example/oficios-registry/internal/config"
	httptransport "github.com/example/oficios-registry/internal/http"
	"github.com/example/oficios-registry/internal/persistence/sqlite"
	"github.com/example/oficios-registry/internal/server"
)

const (
	heartbeatInterval = 25 * time.Second
	limiterIdleTTL    = 10 * time.Minute
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	migrateOnly := flag.Bool("migrate", false, "apply pending migrations, print the schema status and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if *migrateOnly {
		if err := printMigrationStatus(ctx, cfg.DBPath, os.Stdout, logger); err != nil {
			logger.Error("failed to apply migrations", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server encountered error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	app, err := server.Open(ctx, server.Options{
		DBPath:      cfg.DBPath,
		SessionTTL:  cfg.SessionTTL,
		AutoConfirm: cfg.AutoConfirm,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			logger.Error("failed to close backend", "error", cerr)
		}
	}()

	if cfg.RedisAddr != "" {
		if err := app.AttachRedis(ctx, cfg.RedisAddr, cfg.RedisChannel); err != nil {
			return err
		}
		go func() {
			if err := app.RunBridge(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("realtime bridge stopped", "error", err)
			}
		}()
	}

	limiter := httptransport.NewLimiterStore(cfg.AuthRate, cfg.AuthBurst,
		httptransport.WithIdleTTL(limiterIdleTTL),
		httptransport.WithCleanupEvery(limiterIdleTTL/4),
	)
	limiter.StartJanitor(ctx)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           newHandler(app, cfg, limiter, logger),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to shutdown server", "error", err)
		}
	}()

	logger.Info("registry API listening", "addr", srv.Addr, "auto_confirm", cfg.AutoConfirm)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newHandler assembles the routes. No write timeout is set on the server
// because realtime streams stay open.
func newHandler(app *server.App, cfg config.Config, limiter *httptransport.LimiterStore, logger *slog.Logger) http.Handler {
	return httptransport.NewRouter(httptransport.RouterConfig{
		Auth:           httptransport.NewAuthHandler(app.Auth, logger),
		Years:          httptransport.NewYearHandler(app.Years, logger),
		Slots:          httptransport.NewSlotHandler(app.Slots, logger),
		Realtime:       httptransport.NewRealtimeHandler(app.Broker, heartbeatInterval, logger),
		Health:         app,
		Sessions:       app.Auth,
		APIKey:         cfg.APIKey,
		AuthLimiter:    limiter,
		TrustForwarded: cfg.TrustForwarded,
		Logger:         logger,
		Middleware:     []func(http.Handler) http.Handler{httptransport.RequestLogger(logger)},
	})
}

func printMigrationStatus(ctx context.Context, dbPath string, out io.Writer, logger *slog.Logger) error {
	storage, err := sqlite.Open(dbPath, logger)
	if err != nil {
		return err
	}
	defer storage.Close()

	if err := storage.Migrate(ctx); err != nil {
		return err
	}
	status, err := sqlite.MigrationStatus(ctx, storage.Pool(), logger)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "schema version %s, %d pending\n", status.CurrentVersion, status.PendingCount)
	for _, applied := range status.AppliedMigrations {
		fmt.Fprintf(out, "  %s applied %s\n", applied.Version, applied.AppliedAt.Format(time.RFC3339))
	}
	return nil
}
