package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/riskflow/internal/capability"
	"github.com/vk/riskflow/internal/config"
	"github.com/vk/riskflow/internal/ctxlog"
	"github.com/vk/riskflow/internal/engine"
	"github.com/vk/riskflow/internal/graph"
	"github.com/vk/riskflow/internal/hclspec"
	"github.com/vk/riskflow/internal/node"
	"github.com/vk/riskflow/internal/state"
	"github.com/vk/riskflow/internal/trace"
)

// App is one fully wired analysis service: registry, compiled plan, and
// engine, with an isolated logger. It is safe for concurrent use.
type App struct {
	logger *slog.Logger
	cfg    *Config
	plan   *graph.Plan
	engine *engine.Engine
}

// New builds a fully initialized App from a runtime configuration. The
// graph definition is loaded from cfg.GraphPath when set, otherwise the
// built-in transaction analysis graph is used. Structural problems in the
// graph are startup errors.
func New(ctx context.Context, cfg *Config, outW io.Writer, modules ...node.Module) (*App, error) {
	logger := newLogger(cfg.Log.Level, cfg.Log.Format, outW)
	ctx = ctxlog.With(ctx, logger)
	logger.Debug("Logger configured successfully.")

	model, err := loadModel(ctx, cfg.GraphPath)
	if err != nil {
		return nil, fmt.Errorf("loading graph definition: %w", err)
	}
	logger.Debug("Graph definition loaded.", "nodes", len(model.Nodes), "edges", len(model.Edges))

	reg := node.NewRegistry()
	if len(modules) == 0 {
		modules = coreModules
	}
	for _, mod := range modules {
		mod.Register(reg)
	}
	logger.Debug("All node modules registered.", "count", len(modules))

	plan, err := graph.Compile(ctx, model, reg, node.Deps{
		Invoker: newInvoker(cfg),
		Tracer:  trace.NewClient(cfg.Trace.Endpoint, seconds(cfg.Trace.TimeoutSeconds, 10)),
	})
	if err != nil {
		return nil, fmt.Errorf("compiling graph: %w", err)
	}
	logger.Debug("Graph compiled.", "layers", len(plan.Layers), "finalizer", plan.FinalizerID)

	eng := engine.New(plan, engine.Options{
		MaxAttempts: cfg.Engine.MaxAttempts,
		BaseDelay:   seconds(cfg.Engine.BaseDelaySeconds, 2),
		RunTimeout:  seconds(cfg.Engine.RunTimeoutSeconds, 1200),
		MaxParallel: cfg.Engine.MaxParallel,
	})

	return &App{logger: logger, cfg: cfg, plan: plan, engine: eng}, nil
}

// Analyze runs one payload through the compiled graph and returns the
// terminal run state.
func (a *App) Analyze(ctx context.Context, input any, metadata map[string]any) (*state.State, error) {
	ctx = ctxlog.With(ctx, a.logger)
	return a.engine.Execute(ctx, input, metadata)
}

// Logger exposes the app's logger for entrypoints that share it.
func (a *App) Logger() *slog.Logger { return a.logger }

// Plan exposes the compiled plan. Primarily for tests and diagnostics.
func (a *App) Plan() *graph.Plan { return a.plan }

func loadModel(ctx context.Context, path string) (*config.Model, error) {
	if path == "" {
		return config.DefaultModel(), nil
	}
	var loader config.Loader = hclspec.NewLoader()
	return loader.Load(ctx, path)
}

// newInvoker builds the capability client, or nil when no base URL is
// configured, which switches analyzers to their offline heuristics.
func newInvoker(cfg *Config) capability.Invoker {
	if cfg.Capability.BaseURL == "" {
		return nil
	}
	apiKey := ""
	if cfg.Capability.APIKeyEnv != "" {
		apiKey = os.Getenv(cfg.Capability.APIKeyEnv)
	}
	return capability.NewClient(capability.ClientConfig{
		BaseURL:     cfg.Capability.BaseURL,
		Model:       cfg.Capability.Model,
		APIKey:      apiKey,
		Timeout:     seconds(cfg.Capability.TimeoutSeconds, 60),
		Temperature: cfg.Capability.Temperature,
	})
}
