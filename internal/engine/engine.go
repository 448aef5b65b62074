package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/vk/riskflow/internal/config"
	"github.com/vk/riskflow/internal/ctxlog"
	"github.com/vk/riskflow/internal/graph"
	"github.com/vk/riskflow/internal/node"
	"github.com/vk/riskflow/internal/state"
)

// Options tune run-level supervision.
type Options struct {
	// MaxAttempts bounds whole-run retries on transient errors.
	MaxAttempts int
	// BaseDelay seeds the exponential run-retry backoff.
	BaseDelay time.Duration
	// RunTimeout bounds one attempt's wall clock. Exceeding it counts as
	// a transient error against the retry budget.
	RunTimeout time.Duration
	// MaxParallel caps concurrent nodes within a layer. Zero means the
	// layer size is the only bound.
	MaxParallel int
}

func (o Options) normalized() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = 2 * time.Second
	}
	if o.RunTimeout <= 0 {
		o.RunTimeout = 1200 * time.Second
	}
	return o
}

// Engine executes runs of one compiled plan. It is stateless across runs
// and safe for concurrent use: every run gets a fresh state, and the
// shared adapters are themselves concurrency-safe.
type Engine struct {
	plan *graph.Plan
	opts Options
}

// New returns an engine for the given compiled plan.
func New(plan *graph.Plan, opts Options) *Engine {
	return &Engine{plan: plan, opts: opts.normalized()}
}

// Execute drives one input through the graph. It validates the input,
// runs the plan under the configured timeout, and retries transient
// failures with exponential backoff. Validation errors are fatal
// immediately; exhausting the retry budget yields a typed ExecutionError.
func (e *Engine) Execute(ctx context.Context, input any, metadata map[string]any) (*state.State, error) {
	logger := ctxlog.From(ctx)

	if err := validateInput(input); err != nil {
		logger.Warn("Run input rejected.", "error", err)
		return nil, err
	}

	meta := make(map[string]any, len(metadata)+2)
	for k, v := range metadata {
		meta[k] = v
	}
	if _, ok := meta["run_id"]; !ok {
		meta["run_id"] = uuid.NewString()
	}

	var lastErr error
	for attempt := 0; attempt < e.opts.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := e.opts.BaseDelay << (attempt - 1)
			logger.Warn("Retrying run.", "attempt", attempt+1, "delay", delay, "error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, &ExecutionError{Attempts: attempt, Err: ctx.Err()}
			}
		}

		meta["attempt"] = attempt + 1
		meta["max_attempts"] = e.opts.MaxAttempts

		runCtx, cancel := context.WithTimeout(ctx, e.opts.RunTimeout)
		st, err := e.run(runCtx, input, meta)
		cancel()

		if err == nil {
			if verr := validateOutput(st); verr != nil {
				logger.Warn("Run output rejected.", "error", verr)
				return nil, verr
			}
			return st, nil
		}
		if IsValidation(err) {
			return nil, err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}

	logger.Error("Run failed permanently.", "attempts", e.opts.MaxAttempts, "error", lastErr)
	return nil, &ExecutionError{Attempts: e.opts.MaxAttempts, Err: lastErr}
}

// run performs a single attempt over the plan's layers.
func (e *Engine) run(ctx context.Context, input any, metadata map[string]any) (*state.State, error) {
	logger := ctxlog.From(ctx)
	st := state.New(input, metadata)
	ran := make(map[string]bool, len(e.plan.Specs))
	endRequested := false

	for i, layer := range e.plan.Layers {
		pending := make([]string, 0, len(layer))
		for _, id := range layer {
			if ran[id] {
				continue
			}
			if endRequested && id != e.plan.FinalizerID {
				continue
			}
			pending = append(pending, id)
		}
		if len(pending) == 0 {
			continue
		}

		logger.Debug("Dispatching layer.", "layer", i, "nodes", pending)
		if err := e.step(ctx, st, pending, ran); err != nil {
			return nil, err
		}

		for _, id := range pending {
			more, err := e.followConditional(ctx, st, id, ran)
			if err != nil {
				return nil, err
			}
			if more {
				endRequested = true
			}
		}
	}

	return st, nil
}

// step dispatches one set of mutually independent nodes, waits on the join
// barrier, and folds their results in declared order.
func (e *Engine) step(ctx context.Context, st *state.State, ids []string, ran map[string]bool) error {
	snap := st.Snapshot()
	results := make([]node.Result, len(ids))

	g := new(errgroup.Group)
	if e.opts.MaxParallel > 0 {
		g.SetLimit(e.opts.MaxParallel)
	}
	for i, id := range ids {
		adapter := e.plan.Adapters[id]
		g.Go(func() error {
			results[i] = adapter.Run(ctx, snap)
			return nil
		})
	}
	// Adapters never return errors through the group; failures are data.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run timed out mid-layer: %w", err)
	}

	st.ClearError()
	e.fold(ctx, st, results)
	for _, id := range ids {
		ran[id] = true
	}
	return nil
}

// fold applies layer results to the run state. The results slice is in
// declared node order, which fixes the outcome of last-write-wins keys
// regardless of completion order.
func (e *Engine) fold(ctx context.Context, st *state.State, results []node.Result) {
	logger := ctxlog.From(ctx)
	for _, res := range results {
		if res.OK() {
			st.Apply(res.Delta)
			st.Apply(state.Delta{state.KeyCompleted: []string{res.Node}})
			continue
		}
		logger.Warn("Node failed; recording and continuing.",
			"node", res.Node,
			"kind", string(res.Failure.Kind),
			"attempts", res.Failure.Attempts,
			"error", res.Failure.Cause,
		)
		st.Apply(state.Delta{
			state.KeyResults: map[string]any{
				res.Node: map[string]any{
					"error":    res.Failure.Cause.Error(),
					"kind":     string(res.Failure.Kind),
					"attempts": res.Failure.Attempts,
				},
			},
			state.KeyError:    fmt.Sprintf("%s: %v", res.Node, res.Failure.Cause),
			state.KeyMessages: []string{fmt.Sprintf("%s failed: %v", res.Node, res.Failure.Cause)},
		})
	}
}

// followConditional resolves the conditional edge hanging off a completed
// node, opportunistically executing targets that no layer scheduled. Each
// executed node is expanded in turn: its own conditional route, and any
// deferred static successors whose predecessors have all run, so a whole
// chain hanging behind a conditional route executes. It returns true when
// a route resolves to END, which skips every remaining layer except the
// finalizer's.
func (e *Engine) followConditional(ctx context.Context, st *state.State, id string, ran map[string]bool) (bool, error) {
	logger := ctxlog.From(ctx)
	end := false
	queue := []string{id}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		if route, ok := e.plan.Conditional[current]; ok {
			outcome := route.Condition(st.Snapshot())
			target, mapped := route.Targets[outcome]
			switch {
			case !mapped:
				logger.Warn("Conditional outcome has no route; staying on layered path.",
					"node", current, "condition", route.ConditionName, "outcome", outcome)
			case target == config.End:
				logger.Debug("Conditional route reached END.", "node", current, "outcome", outcome)
				end = true
			case !ran[target]:
				logger.Debug("Scheduling conditional target.", "node", current, "outcome", outcome, "target", target)
				if err := e.step(ctx, st, []string{target}, ran); err != nil {
					return end, err
				}
				queue = append(queue, target)
			}
		}

		for _, next := range e.plan.Successors[current] {
			if ran[next] || !e.plan.Deferred[next] || !e.ready(next, ran) {
				continue
			}
			logger.Debug("Scheduling deferred successor.", "node", current, "target", next)
			if err := e.step(ctx, st, []string{next}, ran); err != nil {
				return end, err
			}
			queue = append(queue, next)
		}
	}
	return end, nil
}

// ready reports whether every static predecessor of a node has run.
func (e *Engine) ready(id string, ran map[string]bool) bool {
	for _, pred := range e.plan.Predecessors[id] {
		if !ran[pred] {
			return false
		}
	}
	return true
}
