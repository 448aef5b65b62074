// Package ctxlog carries a slog.Logger through context.Context so that the
// engine, node adapters, and transport all log through the same handler
// without threading a logger argument everywhere.
package ctxlog

import (
	"context"
	"log/slog"
)

// key is an unexported type to prevent collisions with context keys from other packages.
type key struct{}

var loggerKey = key{}

// With returns a new context with the provided logger embedded.
func With(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// From extracts the slog.Logger from a context. If no logger was embedded,
// the process-wide default logger is returned so call sites never need a nil
// check.
func From(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
