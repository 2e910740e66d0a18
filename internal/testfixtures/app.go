// Package testfixtures builds throwaway registry backends for tests.
package testfixtures

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/example/oficios-registry/internal/application"
	"github.com/example/oficios-registry/internal/server"
)

// AppOption tunes the backend built by App.
type AppOption func(*server.Options)

// WithAutoConfirm controls whether sign ups open a session immediately.
func WithAutoConfirm(enabled bool) AppOption {
	return func(o *server.Options) {
		o.AutoConfirm = enabled
	}
}

// WithClock drives every service timestamp from clock.
func WithClock(clock *Clock) AppOption {
	return func(o *server.Options) {
		o.Now = clock.NowFunc()
	}
}

// WithIDs makes row ids and session tokens deterministic.
func WithIDs(ids, tokens *Sequence) AppOption {
	return func(o *server.Options) {
		if ids != nil {
			o.IDGenerator = ids.NextFunc()
		}
		if tokens != nil {
			o.TokenGenerator = tokens.NextFunc()
		}
	}
}

// WithLogger replaces the silent default logger.
func WithLogger(logger *slog.Logger) AppOption {
	return func(o *server.Options) {
		o.Logger = logger
	}
}

// App opens a migrated backend over a database in a temporary directory and
// closes it when the test ends. Sign ups are auto-confirmed unless
// overridden.
func App(tb testing.TB, opts ...AppOption) *server.App {
	tb.Helper()

	options := server.Options{
		DBPath:      filepath.Join(tb.TempDir(), "registry.db"),
		AutoConfirm: true,
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&options)
	}

	app, err := server.Open(context.Background(), options)
	if err != nil {
		tb.Fatalf("failed to open backend: %v", err)
	}
	tb.Cleanup(func() {
		if err := app.Close(); err != nil {
			tb.Errorf("failed to close backend: %v", err)
		}
	})
	return app
}

// Account signs email up directly against the auth service and returns the
// principal and access token of its session.
func Account(tb testing.TB, app *server.App, email, password string) (application.Principal, string) {
	tb.Helper()

	result, err := app.Auth.SignUp(context.Background(), application.SignUpParams{Email: email, Password: password})
	if err != nil {
		tb.Fatalf("failed to sign up %s: %v", email, err)
	}
	if result.Session == nil {
		tb.Fatalf("sign up of %s opened no session; is auto-confirm disabled?", email)
	}
	return application.Principal{UserID: result.User.ID, Email: result.User.Email}, result.Session.Token
}
