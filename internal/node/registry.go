package node

import (
	"context"
	"fmt"

	"github.com/vk/riskflow/internal/capability"
	"github.com/vk/riskflow/internal/config"
	"github.com/vk/riskflow/internal/decision"
	"github.com/vk/riskflow/internal/state"
	"github.com/vk/riskflow/internal/trace"
)

// Handler is one unit of domain work. It reads the pre-layer snapshot and
// returns the delta to fold on success. Handlers must be safe for
// concurrent use: one instance serves every run of the compiled graph.
type Handler interface {
	Run(ctx context.Context, snap *state.Snapshot) (state.Delta, error)
}

// InputValidator is optionally implemented by handlers that validate the
// snapshot before any external call. A validation error fails fast with no
// retry.
type InputValidator interface {
	ValidateInput(snap *state.Snapshot) error
}

// OutputValidator is optionally implemented by handlers that check their
// own delta's shape before it is returned to the engine.
type OutputValidator interface {
	ValidateOutput(delta state.Delta) error
}

// Deps carries the collaborators a constructor may wire into its handler.
type Deps struct {
	// Invoker is the external analysis capability. May be nil in tests;
	// handlers that need it must degrade deliberately.
	Invoker capability.Invoker
	// Tracer is the optional context/trace collaborator. Nil disables it.
	Tracer *trace.Client
	// Decision is the validated decision policy for the aggregator.
	Decision decision.Config
	// Analyzers lists worker-type node ids in declared order, for the
	// aggregator's completed-analyzer accounting.
	Analyzers []string
	// Control names the control node whose result carries the normalized
	// transaction. Empty when the graph declares no control node.
	Control string
}

// Constructor builds a handler for one declared node.
type Constructor func(spec config.NodeSpec, deps Deps) (Handler, error)

// Condition resolves a conditional edge's outcome from live state.
type Condition func(snap *state.Snapshot) string

// Module is implemented by packages under modules/ to register their
// constructors into a registry.
type Module interface {
	Register(r *Registry)
}

// Registry maps node type tags to handler constructors and condition names
// to condition functions. It is built once at startup and owned by the
// compiled graph; there is no ambient global registry.
type Registry struct {
	ctors      map[string]Constructor
	conditions map[string]Condition
}

// NewRegistry returns an empty registry with the default condition
// installed.
func NewRegistry() *Registry {
	r := &Registry{
		ctors:      make(map[string]Constructor),
		conditions: make(map[string]Condition),
	}
	r.RegisterCondition("default", func(*state.Snapshot) string { return "continue" })
	return r
}

// Register binds a node type tag to a constructor. Registering the same
// tag twice is a programmer error.
func (r *Registry) Register(typeTag string, ctor Constructor) {
	if _, exists := r.ctors[typeTag]; exists {
		panic(fmt.Sprintf("node constructor for type %q already registered", typeTag))
	}
	r.ctors[typeTag] = ctor
}

// RegisterCondition binds a condition name usable by conditional edges.
func (r *Registry) RegisterCondition(name string, fn Condition) {
	if _, exists := r.conditions[name]; exists {
		panic(fmt.Sprintf("condition %q already registered", name))
	}
	r.conditions[name] = fn
}

// Has reports whether a constructor exists for the given type tag.
func (r *Registry) Has(typeTag string) bool {
	_, ok := r.ctors[typeTag]
	return ok
}

// Condition resolves a registered condition function by name.
func (r *Registry) Condition(name string) (Condition, bool) {
	fn, ok := r.conditions[name]
	return fn, ok
}

// Build constructs the handler for a node spec. Unknown type tags surface
// here, at compile time.
func (r *Registry) Build(spec config.NodeSpec, deps Deps) (Handler, error) {
	ctor, ok := r.ctors[spec.Type]
	if !ok {
		return nil, fmt.Errorf("unknown node type %q for node %q", spec.Type, spec.ID)
	}
	return ctor(spec, deps)
}
