package graph

import (
	"context"
	"sort"
	"time"

	"github.com/vk/riskflow/internal/config"
	"github.com/vk/riskflow/internal/ctxlog"
	"github.com/vk/riskflow/internal/decision"
	"github.com/vk/riskflow/internal/node"
)

// defaultFinalizerID names the injected convergence node when the
// definition declares none.
const defaultFinalizerID = "finalizer"

// Compile validates a graph definition and produces its executable plan.
// deps supplies the collaborators handlers are constructed with; Compile
// fills in the decision policy and analyzer list itself.
func Compile(ctx context.Context, model *config.Model, reg *node.Registry, deps node.Deps) (*Plan, error) {
	logger := ctxlog.From(ctx)
	logger.Debug("Compile: starting graph validation.")

	nodes, err := validateNodes(model, reg)
	if err != nil {
		return nil, err
	}

	edges, finalizerID, err := ensureFinalizer(model, nodes)
	if err != nil {
		return nil, err
	}
	if _, ok := nodes[finalizerID]; !ok {
		nodes[finalizerID] = config.NodeSpec{ID: finalizerID, Type: config.TypeFinalizer}
	}

	s := newStructure()
	for id := range nodes {
		s.add(id)
	}

	var roots []string
	for _, e := range edges {
		if err := validateEdge(e, nodes); err != nil {
			return nil, err
		}
		switch {
		case e.From == config.Start:
			roots = append(roots, e.To)
		case e.To == config.End:
			// Terminal branch; nothing to link.
		default:
			if err := s.link(e.From, e.To); err != nil {
				return nil, err
			}
		}
	}
	if len(roots) == 0 {
		return nil, structuralf("graph has no entry edge from %s", config.Start)
	}

	conditional, condTargets, err := compileConditionals(model, nodes, reg)
	if err != nil {
		return nil, err
	}

	if err := s.detectCycles(); err != nil {
		return nil, err
	}

	// Reachability over static edges alone defines the layered set; adding
	// conditional routes defines what is legal at all.
	static := s.reachable(roots, nil)
	full := s.reachable(roots, condTargets)
	for id := range nodes {
		if !full[id] {
			return nil, structuralf("node %q is unreachable from %s", id, config.Start)
		}
	}
	deferred := make(map[string]bool)
	for id := range nodes {
		if !static[id] {
			deferred[id] = true
		}
	}

	declared := declaredOrder(model, finalizerID)
	layers := s.layer(static)
	for _, layer := range layers {
		sort.Slice(layer, func(i, j int) bool {
			return declared[layer[i]] < declared[layer[j]]
		})
	}
	successors, predecessors := s.adjacency(declared)

	analyzers := analyzerIDs(model, declared)
	decisionCfg, err := decision.FromSpec(model.Decision)
	if err != nil {
		return nil, err
	}
	deps.Decision = decisionCfg
	deps.Analyzers = analyzers
	deps.Control = controlID(model)

	adapters := make(map[string]*node.Adapter, len(nodes))
	for id, spec := range nodes {
		handler, err := reg.Build(spec, deps)
		if err != nil {
			return nil, structuralf("node %q: %v", id, err)
		}
		timeout := time.Duration(spec.FloatParam("timeout", 0) * float64(time.Second))
		adapters[id] = node.NewAdapter(id, spec.Type, handler, retryPolicy(spec), timeout)
	}

	logger.Debug("Compile: plan ready.",
		"nodes", len(nodes),
		"layers", len(layers),
		"deferred", len(deferred),
		"finalizer", finalizerID,
	)
	return &Plan{
		Layers:       layers,
		Specs:        nodes,
		Adapters:     adapters,
		Conditional:  conditional,
		Deferred:     deferred,
		Successors:   successors,
		Predecessors: predecessors,
		FinalizerID:  finalizerID,
		Decision:     decisionCfg,
		Analyzers:    analyzers,
	}, nil
}

// retryPolicy derives the adapter retry policy from optional node params,
// falling back to the standard 3-attempt exponential policy.
func retryPolicy(spec config.NodeSpec) node.RetryPolicy {
	p := node.DefaultRetryPolicy()
	if v := spec.FloatParam("retry_attempts", 0); v > 0 {
		p.MaxAttempts = int(v)
	}
	if v := spec.FloatParam("retry_base_ms", 0); v > 0 {
		p.BaseDelay = time.Duration(v * float64(time.Millisecond))
	}
	return p
}

func validateNodes(model *config.Model, reg *node.Registry) (map[string]config.NodeSpec, error) {
	if len(model.Nodes) == 0 {
		return nil, structuralf("graph declares no nodes")
	}
	nodes := make(map[string]config.NodeSpec, len(model.Nodes))
	for _, spec := range model.Nodes {
		if spec.ID == config.Start || spec.ID == config.End {
			return nil, structuralf("node id %q is reserved", spec.ID)
		}
		if _, dup := nodes[spec.ID]; dup {
			return nil, structuralf("duplicate node id %q", spec.ID)
		}
		if !reg.Has(spec.Type) {
			return nil, structuralf("node %q has unknown type %q", spec.ID, spec.Type)
		}
		nodes[spec.ID] = spec
	}
	return nodes, nil
}

func validateEdge(e config.EdgeSpec, nodes map[string]config.NodeSpec) error {
	if e.From == config.End {
		return structuralf("edge may not originate from %s", config.End)
	}
	if e.To == config.Start {
		return structuralf("edge may not target %s", config.Start)
	}
	if e.From != config.Start {
		if _, ok := nodes[e.From]; !ok {
			return structuralf("edge references unknown node %q", e.From)
		}
	}
	if e.To != config.End {
		if _, ok := nodes[e.To]; !ok {
			return structuralf("edge references unknown node %q", e.To)
		}
	}
	return nil
}

// ensureFinalizer guarantees a single finalizer convergence point. When the
// definition omits one, a default finalizer is injected, every terminal
// branch is rewired into it, and it alone reaches END.
func ensureFinalizer(model *config.Model, nodes map[string]config.NodeSpec) ([]config.EdgeSpec, string, error) {
	var finalizers []string
	for _, spec := range model.Nodes {
		if spec.Type == config.TypeFinalizer {
			finalizers = append(finalizers, spec.ID)
		}
	}
	if len(finalizers) > 1 {
		return nil, "", structuralf("graph declares %d finalizer nodes, want at most one", len(finalizers))
	}
	if len(finalizers) == 1 {
		return model.Edges, finalizers[0], nil
	}

	if _, taken := nodes[defaultFinalizerID]; taken {
		return nil, "", structuralf("node id %q is reserved for the injected finalizer", defaultFinalizerID)
	}

	hasOutgoing := make(map[string]bool)
	for _, e := range model.Edges {
		if e.From != config.Start && e.To != config.End {
			hasOutgoing[e.From] = true
		}
	}

	edges := make([]config.EdgeSpec, 0, len(model.Edges)+len(nodes))
	for _, e := range model.Edges {
		if e.To == config.End {
			// Terminal branches converge on the finalizer instead.
			edges = append(edges, config.EdgeSpec{From: e.From, To: defaultFinalizerID})
			continue
		}
		edges = append(edges, e)
	}
	for id := range nodes {
		if !hasOutgoing[id] {
			edges = append(edges, config.EdgeSpec{From: id, To: defaultFinalizerID})
		}
	}
	edges = append(edges, config.EdgeSpec{From: defaultFinalizerID, To: config.End})
	return edges, defaultFinalizerID, nil
}

func compileConditionals(model *config.Model, nodes map[string]config.NodeSpec, reg *node.Registry) (map[string]Route, map[string][]string, error) {
	conditional := make(map[string]Route, len(model.ConditionalEdges))
	targets := make(map[string][]string)
	for _, ce := range model.ConditionalEdges {
		if _, ok := nodes[ce.From]; !ok {
			return nil, nil, structuralf("conditional edge references unknown node %q", ce.From)
		}
		if _, dup := conditional[ce.From]; dup {
			return nil, nil, structuralf("node %q has more than one conditional edge", ce.From)
		}
		name := ce.Condition
		if name == "" {
			name = "default"
		}
		fn, ok := reg.Condition(name)
		if !ok {
			return nil, nil, structuralf("conditional edge on %q uses unknown condition %q", ce.From, name)
		}
		if len(ce.Routes) == 0 {
			return nil, nil, structuralf("conditional edge on %q declares no routes", ce.From)
		}
		for outcome, target := range ce.Routes {
			if target == config.End {
				continue
			}
			if _, ok := nodes[target]; !ok {
				return nil, nil, structuralf("conditional route %q on %q targets unknown node %q", outcome, ce.From, target)
			}
			targets[ce.From] = append(targets[ce.From], target)
		}
		conditional[ce.From] = Route{
			Condition:     fn,
			ConditionName: name,
			Targets:       ce.Routes,
		}
	}
	return conditional, targets, nil
}

func declaredOrder(model *config.Model, finalizerID string) map[string]int {
	order := make(map[string]int, len(model.Nodes)+1)
	for i, spec := range model.Nodes {
		order[spec.ID] = i
	}
	if _, ok := order[finalizerID]; !ok {
		order[finalizerID] = len(order)
	}
	return order
}

// controlID names the first declared control node, which owns the
// normalized transaction other handlers read.
func controlID(model *config.Model) string {
	for _, spec := range model.Nodes {
		if spec.Type == config.TypeControl {
			return spec.ID
		}
	}
	return ""
}

func analyzerIDs(model *config.Model, declared map[string]int) []string {
	var ids []string
	for _, spec := range model.Nodes {
		if spec.Type == config.TypeWorker {
			ids = append(ids, spec.ID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return declared[ids[i]] < declared[ids[j]] })
	return ids
}
