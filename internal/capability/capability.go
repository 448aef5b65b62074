// Package capability defines the external analysis capability contract the
// node adapters and the aggregator invoke, plus its OpenAI-compatible HTTP
// implementation. The core stays decoupled from the implementation: engine
// and handlers only ever see the Invoker interface.
package capability

import (
	"context"
	"errors"
	"fmt"
)

// Options tune a single capability invocation.
type Options struct {
	// Temperature is the sampling temperature, 0 meaning provider default.
	Temperature float64
	// StructuredJSON requests a JSON object response conforming to the
	// prompt's schema instead of free text.
	StructuredJSON bool
	// Context is an optional retrieved-context string interpolated into
	// the system prompt.
	Context string
}

// Invoker is the external analysis capability: given a system context and a
// user payload it returns text (or a JSON document when structured output
// was requested).
type Invoker interface {
	Invoke(ctx context.Context, system, user string, opts Options) (string, error)
}

// PermanentError marks a capability failure that retrying cannot fix, such
// as a rejected request. Everything else is treated as transient.
type PermanentError struct {
	Status int
	Msg    string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("capability rejected request (status %d): %s", e.Status, e.Msg)
}

// IsPermanent reports whether err (or anything it wraps) is a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
