package slogx

import (
	"context"
	"log/slog"
)

type loggerKey struct{}

// WithContext stores logger in ctx for FromContext.
func WithContext(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the request logger, or slog.Default outside a request.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// With extends the context logger with args, e.g. to pin client_id or
// user_id onto everything a service logs further down.
func With(ctx context.Context, args ...any) context.Context {
	return WithContext(ctx, FromContext(ctx).With(args...))
}

func Discard() *slog.Logger { return slog.New(slog.DiscardHandler) }
