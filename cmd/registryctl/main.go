package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/example/oficios-registry/internal/backend"
	"github.com/example/oficios-registry/internal/backend/local"
	"github.com/example/oficios-registry/internal/backend/remote"
	"github.com/example/oficios-registry/internal/config"
	"github.com/example/oficios-registry/internal/credentials"
	"github.com/example/oficios-registry/internal/server"
	"github.com/example/oficios-registry/internal/workspace"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	localPath := flag.String("local", "", "use the SQLite database at `path` in-process instead of REGISTRY_URL")
	verbose := flag.Bool("v", false, "log client activity to stderr")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: registryctl [-local path] [-v] <command> [args]\n\n%s\nflags:\n", commandHelp)
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	client, closeClient, err := openClient(ctx, *localPath, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "registryctl:", err)
		os.Exit(1)
	}

	ws := workspace.New(client, workspace.WithLogger(logger))
	ws.Start(ctx)

	c := &cli{
		ws:     ws,
		client: client,
		in:     bufio.NewReader(os.Stdin),
		out:    os.Stdout,
		getenv: os.Getenv,
	}
	err = c.run(ctx, flag.Args())

	ws.Close()
	closeClient()

	switch {
	case errors.Is(err, errUsage):
		fmt.Fprintln(os.Stderr, "registryctl:", err)
		flag.Usage()
		os.Exit(2)
	case err != nil:
		fmt.Fprintln(os.Stderr, "registryctl:", err)
		os.Exit(1)
	}
}

// openClient returns the in-process backend over the database at localPath
// or, when it is empty, the HTTP backend named by the environment. Both
// persist the session in the credential file.
func openClient(ctx context.Context, localPath string, logger *slog.Logger) (backend.Client, func(), error) {
	if localPath != "" {
		credsPath, err := config.CredentialsPath()
		if err != nil {
			return nil, nil, err
		}
		app, err := server.Open(ctx, server.Options{
			DBPath:      localPath,
			AutoConfirm: config.Default().AutoConfirm,
			Logger:      logger,
		})
		if err != nil {
			return nil, nil, err
		}
		client := local.New(app,
			local.WithCredentials(credentials.NewFile(credsPath)),
			local.WithLogger(logger),
		)
		return client, func() {
			if err := app.Close(); err != nil {
				logger.Error("failed to close database", "error", err)
			}
		}, nil
	}

	cfg, err := config.LoadClient()
	if err != nil {
		return nil, nil, err
	}
	client := remote.New(cfg.URL, cfg.APIKey,
		remote.WithCredentials(credentials.NewFile(cfg.CredentialsPath)),
		remote.WithLogger(logger),
	)
	return client, func() {}, nil
}
