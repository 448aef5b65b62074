// Package testutil holds small shared helpers for package tests.
package testutil

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/vk/riskflow/internal/capability"
	"github.com/vk/riskflow/internal/ctxlog"
)

// Context returns a test context carrying a discard logger, so tests stay
// quiet without touching the global logger.
func Context(t *testing.T) context.Context {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return ctxlog.With(context.Background(), logger)
}

// FuncInvoker adapts a function to the capability.Invoker interface.
type FuncInvoker func(ctx context.Context, system, user string, opts capability.Options) (string, error)

// Invoke implements capability.Invoker.
func (f FuncInvoker) Invoke(ctx context.Context, system, user string, opts capability.Options) (string, error) {
	return f(ctx, system, user, opts)
}

// StaticInvoker returns an invoker that always responds with the given
// document.
func StaticInvoker(response string) FuncInvoker {
	return func(context.Context, string, string, capability.Options) (string, error) {
		return response, nil
	}
}
