package graph

import (
	"github.com/vk/riskflow/internal/config"
	"github.com/vk/riskflow/internal/decision"
	"github.com/vk/riskflow/internal/node"
)

// Route is a compiled conditional edge: the resolved condition function and
// the outcome-to-target mapping.
type Route struct {
	Condition     node.Condition
	ConditionName string
	Targets       map[string]string
}

// Plan is the compiled, executable form of a graph definition. It owns the
// node adapters, constructed exactly once at compile time; the engine
// borrows them per run and never constructs handlers itself.
type Plan struct {
	// Layers is the topological layering of statically reachable nodes,
	// each layer sorted in declared node order for deterministic folds.
	Layers [][]string
	// Specs indexes every declared node spec by id.
	Specs map[string]config.NodeSpec
	// Adapters holds one adapter per declared node, deferred ones included.
	Adapters map[string]*node.Adapter
	// Conditional maps a source node id to its compiled conditional edge.
	Conditional map[string]Route
	// Deferred marks nodes reachable only through conditional edges; they
	// are scheduled opportunistically, not by layer.
	Deferred map[string]bool
	// Successors and Predecessors hold the static adjacency per node id,
	// each list in declared node order. The engine uses them to schedule
	// the static chain hanging off a conditional target.
	Successors   map[string][]string
	Predecessors map[string][]string
	// FinalizerID names the single convergence node that always runs last.
	FinalizerID string
	// Decision is the validated decision policy for this graph.
	Decision decision.Config
	// Analyzers lists worker-type node ids in declared order.
	Analyzers []string
}
