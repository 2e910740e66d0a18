// Package logging carries the request logger through contexts and builds the
// component loggers used by services, handlers and client components.
package logging

import (
	"context"
	"io"
	"log/slog"
)

type contextKey struct{}

// NewContext returns ctx carrying logger. A nil logger leaves ctx unchanged.
func NewContext(ctx context.Context, logger *slog.Logger) context.Context {
	if ctx == nil || logger == nil {
		return ctx
	}
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext returns the logger stored by NewContext, or nil.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx == nil {
		return nil
	}
	logger, _ := ctx.Value(contextKey{}).(*slog.Logger)
	return logger
}

// Or returns logger, or slog.Default() when it is nil.
func Or(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

// Discard drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// Scoped returns the request logger in ctx, falling back to base, tagged with
// role=name and the operation. role is "service", "handler" and so on.
func Scoped(ctx context.Context, base *slog.Logger, role, name, operation string, attrs ...any) *slog.Logger {
	logger := FromContext(ctx)
	if logger == nil {
		logger = Or(base)
	}

	pairs := make([]any, 0, 4+len(attrs))
	pairs = append(pairs, role, name)
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	pairs = append(pairs, attrs...)
	return logger.With(pairs...)
}
