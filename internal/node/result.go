package node

import (
	"fmt"

	"github.com/vk/riskflow/internal/state"
)

// FailureKind classifies a node failure for retry and propagation policy.
type FailureKind string

const (
	// FailureValidation marks malformed input or output. Never retried.
	FailureValidation FailureKind = "validation"
	// FailureTransient marks an exhausted external-capability failure,
	// including per-attempt timeouts.
	FailureTransient FailureKind = "transient"
	// FailurePermanent marks a capability rejection that retrying cannot
	// cure, such as a non-429 4xx response.
	FailurePermanent FailureKind = "permanent"
)

// Failure is the typed error a node reports after its adapter gives up.
type Failure struct {
	Kind     FailureKind
	Attempts int
	Cause    error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s failure after %d attempt(s): %v", f.Kind, f.Attempts, f.Cause)
}

func (f *Failure) Unwrap() error { return f.Cause }

// Result is the outcome of one node execution within a layer. Exactly one
// of Delta and Failure is meaningful: a node's writes are only folded into
// the run state on success.
type Result struct {
	Node    string
	Delta   state.Delta
	Failure *Failure
}

// OK reports whether the node succeeded.
func (r Result) OK() bool { return r.Failure == nil }
