package node

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/vk/riskflow/internal/capability"
	"github.com/vk/riskflow/internal/ctxlog"
	"github.com/vk/riskflow/internal/state"
)

// RetryPolicy controls the adapter's retry behavior around externally
// latent work.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      bool
}

// DefaultRetryPolicy matches the capability call contract: up to 3
// attempts with 2s × 2^attempt backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    30 * time.Second,
	}
}

func (p RetryPolicy) normalized() RetryPolicy {
	q := p
	if q.MaxAttempts <= 0 {
		q.MaxAttempts = 3
	}
	if q.BaseDelay <= 0 {
		q.BaseDelay = 2 * time.Second
	}
	if q.MaxDelay <= 0 {
		q.MaxDelay = 30 * time.Second
	}
	if q.MaxDelay < q.BaseDelay {
		q.MaxDelay = q.BaseDelay
	}
	return q
}

// backoff returns the delay before the given zero-based retry attempt.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := p.BaseDelay << attempt
	if d > p.MaxDelay || d <= 0 {
		d = p.MaxDelay
	}
	if !p.Jitter {
		return d
	}
	// +/- 50% jitter
	half := d / 2
	return half + time.Duration(rand.Int63n(int64(half))) // #nosec G404 non-crypto
}

// Adapter wraps one handler with the uniform execution contract: validate
// input, call the capability under bounded retries with a per-attempt
// timeout, validate output, and report success or a typed failure.
type Adapter struct {
	ID      string
	Type    string
	handler Handler
	retry   RetryPolicy
	timeout time.Duration
}

// NewAdapter wraps a constructed handler. timeout bounds each attempt;
// zero means 60s.
func NewAdapter(id, typeTag string, handler Handler, retry RetryPolicy, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Adapter{
		ID:      id,
		Type:    typeTag,
		handler: handler,
		retry:   retry.normalized(),
		timeout: timeout,
	}
}

// Run executes the node against a read-only snapshot and returns its
// result. Failures are returned as data, never as an error: the engine
// records them without aborting sibling nodes.
func (a *Adapter) Run(ctx context.Context, snap *state.Snapshot) Result {
	logger := ctxlog.From(ctx).With("node", a.ID)

	if v, ok := a.handler.(InputValidator); ok {
		if err := v.ValidateInput(snap); err != nil {
			logger.Warn("Node input validation failed.", "error", err)
			return Result{Node: a.ID, Failure: &Failure{Kind: FailureValidation, Attempts: 1, Cause: err}}
		}
	}

	var lastErr error
	for attempt := 0; attempt < a.retry.MaxAttempts; attempt++ {
		if attempt > 0 {
			delay := a.retry.backoff(attempt - 1)
			logger.Debug("Retrying node.", "attempt", attempt+1, "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Result{Node: a.ID, Failure: &Failure{Kind: FailureTransient, Attempts: attempt, Cause: ctx.Err()}}
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, a.timeout)
		delta, err := a.handler.Run(attemptCtx, snap)
		cancel()

		if err == nil {
			if v, ok := a.handler.(OutputValidator); ok {
				if verr := v.ValidateOutput(delta); verr != nil {
					logger.Warn("Node output validation failed.", "error", verr)
					return Result{Node: a.ID, Failure: &Failure{Kind: FailureValidation, Attempts: attempt + 1, Cause: verr}}
				}
			}
			logger.Debug("Node succeeded.", "attempt", attempt+1)
			return Result{Node: a.ID, Delta: delta}
		}

		lastErr = err
		if capability.IsPermanent(err) {
			logger.Warn("Node failed permanently, not retrying.", "error", err)
			return Result{Node: a.ID, Failure: &Failure{Kind: FailurePermanent, Attempts: attempt + 1, Cause: err}}
		}
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			// The run itself was canceled; stop burning attempts.
			return Result{Node: a.ID, Failure: &Failure{Kind: FailureTransient, Attempts: attempt + 1, Cause: err}}
		}
		logger.Warn("Node attempt failed.", "attempt", attempt+1, "error", err)
	}

	return Result{Node: a.ID, Failure: &Failure{
		Kind:     FailureTransient,
		Attempts: a.retry.MaxAttempts,
		Cause:    lastErr,
	}}
}
