package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/riskflow/internal/config"
	"github.com/vk/riskflow/internal/node"
	"github.com/vk/riskflow/internal/state"
)

type nopHandler struct{}

func (nopHandler) Run(context.Context, *state.Snapshot) (state.Delta, error) {
	return state.Delta{}, nil
}

func nopCtor(config.NodeSpec, node.Deps) (node.Handler, error) {
	return nopHandler{}, nil
}

func testRegistry(t *testing.T) *node.Registry {
	t.Helper()
	r := node.NewRegistry()
	for _, typeTag := range []string{config.TypeControl, config.TypeWorker, config.TypeAggregator, config.TypeFinalizer} {
		r.Register(typeTag, nopCtor)
	}
	return r
}

func requireStructural(t *testing.T, err error) *StructuralError {
	t.Helper()
	require.Error(t, err)
	var se *StructuralError
	require.ErrorAs(t, err, &se)
	return se
}

func TestCompileDefaultModel(t *testing.T) {
	plan, err := Compile(context.Background(), config.DefaultModel(), testRegistry(t), node.Deps{})
	require.NoError(t, err)

	require.Len(t, plan.Layers, 4)
	assert.Equal(t, []string{"orchestrator"}, plan.Layers[0])
	assert.Equal(t, []string{
		"pattern_detector",
		"behavioral_analyzer",
		"velocity_checker",
		"merchant_risk_analyzer",
		"geographic_analyzer",
	}, plan.Layers[1], "fan-out layer keeps declared node order")
	assert.Equal(t, []string{"decision_aggregator"}, plan.Layers[2])
	assert.Equal(t, []string{"finalizer"}, plan.Layers[3])

	assert.Equal(t, "finalizer", plan.FinalizerID)
	assert.Len(t, plan.Analyzers, 5)
	assert.Len(t, plan.Adapters, 8)
	assert.Empty(t, plan.Deferred)
}

func TestCompileInjectsFinalizer(t *testing.T) {
	model := &config.Model{
		Nodes: []config.NodeSpec{
			{ID: "a", Type: config.TypeControl},
			{ID: "b", Type: config.TypeWorker},
		},
		Edges: []config.EdgeSpec{
			{From: config.Start, To: "a"},
			{From: "a", To: "b"},
			{From: "b", To: config.End},
		},
	}

	plan, err := Compile(context.Background(), model, testRegistry(t), node.Deps{})
	require.NoError(t, err)

	assert.Equal(t, "finalizer", plan.FinalizerID)
	require.Len(t, plan.Layers, 3)
	assert.Equal(t, []string{"finalizer"}, plan.Layers[2], "terminal edges rewire into the injected finalizer")
	assert.Contains(t, plan.Adapters, "finalizer")
}

func TestCompileRejectsSecondFinalizer(t *testing.T) {
	model := &config.Model{
		Nodes: []config.NodeSpec{
			{ID: "f1", Type: config.TypeFinalizer},
			{ID: "f2", Type: config.TypeFinalizer},
		},
		Edges: []config.EdgeSpec{
			{From: config.Start, To: "f1"},
			{From: "f1", To: "f2"},
		},
	}
	_, err := Compile(context.Background(), model, testRegistry(t), node.Deps{})
	requireStructural(t, err)
}

func TestCompileRejectsCycle(t *testing.T) {
	model := &config.Model{
		Nodes: []config.NodeSpec{
			{ID: "a", Type: config.TypeWorker},
			{ID: "b", Type: config.TypeWorker},
		},
		Edges: []config.EdgeSpec{
			{From: config.Start, To: "a"},
			{From: "a", To: "b"},
			{From: "b", To: "a"},
		},
	}
	se := requireStructural(t, compileErr(t, model))
	assert.Contains(t, se.Error(), "cycle")
}

// compileErr compiles with the standard test registry and returns only the error.
func compileErr(t *testing.T, model *config.Model) error {
	t.Helper()
	_, err := Compile(context.Background(), model, testRegistry(t), node.Deps{})
	return err
}

func TestCompileRejectsSelfEdge(t *testing.T) {
	model := &config.Model{
		Nodes: []config.NodeSpec{{ID: "a", Type: config.TypeWorker}},
		Edges: []config.EdgeSpec{
			{From: config.Start, To: "a"},
			{From: "a", To: "a"},
		},
	}
	requireStructural(t, compileErr(t, model))
}

func TestCompileRejectsUnknownType(t *testing.T) {
	model := &config.Model{
		Nodes: []config.NodeSpec{{ID: "a", Type: "mystery"}},
		Edges: []config.EdgeSpec{{From: config.Start, To: "a"}},
	}
	requireStructural(t, compileErr(t, model))
}

func TestCompileRejectsDuplicateAndReservedIDs(t *testing.T) {
	dup := &config.Model{
		Nodes: []config.NodeSpec{
			{ID: "a", Type: config.TypeWorker},
			{ID: "a", Type: config.TypeWorker},
		},
		Edges: []config.EdgeSpec{{From: config.Start, To: "a"}},
	}
	requireStructural(t, compileErr(t, dup))

	reserved := &config.Model{
		Nodes: []config.NodeSpec{{ID: config.End, Type: config.TypeWorker}},
		Edges: []config.EdgeSpec{{From: config.Start, To: config.End}},
	}
	requireStructural(t, compileErr(t, reserved))
}

func TestCompileRejectsMissingEntryEdge(t *testing.T) {
	model := &config.Model{
		Nodes: []config.NodeSpec{{ID: "a", Type: config.TypeWorker}},
		Edges: []config.EdgeSpec{{From: "a", To: config.End}},
	}
	requireStructural(t, compileErr(t, model))
}

func TestCompileRejectsUnreachableNode(t *testing.T) {
	model := &config.Model{
		Nodes: []config.NodeSpec{
			{ID: "a", Type: config.TypeWorker},
			{ID: "island", Type: config.TypeWorker},
		},
		Edges: []config.EdgeSpec{
			{From: config.Start, To: "a"},
		},
	}
	se := requireStructural(t, compileErr(t, model))
	assert.Contains(t, se.Error(), "unreachable")
}

func TestCompileConditionalRoutes(t *testing.T) {
	reg := testRegistry(t)
	reg.RegisterCondition("verdict", func(*state.Snapshot) string { return "escalate" })

	model := &config.Model{
		Nodes: []config.NodeSpec{
			{ID: "triage", Type: config.TypeControl},
			{ID: "deep_dive", Type: config.TypeWorker},
		},
		Edges: []config.EdgeSpec{
			{From: config.Start, To: "triage"},
			{From: "triage", To: config.End},
		},
		ConditionalEdges: []config.ConditionalEdgeSpec{
			{
				From:      "triage",
				Condition: "verdict",
				Routes:    map[string]string{"escalate": "deep_dive", "done": config.End},
			},
		},
	}

	plan, err := Compile(context.Background(), model, reg, node.Deps{})
	require.NoError(t, err)

	route, ok := plan.Conditional["triage"]
	require.True(t, ok)
	assert.Equal(t, "verdict", route.ConditionName)
	assert.Equal(t, "deep_dive", route.Targets["escalate"])

	// deep_dive is only conditionally reachable: legal but unscheduled.
	assert.True(t, plan.Deferred["deep_dive"])
	for _, layer := range plan.Layers {
		assert.NotContains(t, layer, "deep_dive")
	}
}

func TestCompileRecordsStaticAdjacency(t *testing.T) {
	model := &config.Model{
		Nodes: []config.NodeSpec{
			{ID: "a", Type: config.TypeWorker},
			{ID: "b", Type: config.TypeWorker},
			{ID: "c", Type: config.TypeWorker},
		},
		Edges: []config.EdgeSpec{
			{From: config.Start, To: "a"},
			{From: "a", To: "b"},
			{From: "a", To: "c"},
			{From: "c", To: config.End},
		},
	}
	plan, err := Compile(context.Background(), model, testRegistry(t), node.Deps{})
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c"}, plan.Successors["a"])
	assert.Equal(t, []string{"a"}, plan.Predecessors["b"])
	// Terminal branches converge on the injected finalizer.
	assert.Equal(t, []string{"finalizer"}, plan.Successors["b"])
	assert.Equal(t, []string{"b", "c"}, plan.Predecessors["finalizer"])
}

func TestCompileRejectsBadConditionals(t *testing.T) {
	base := func() *config.Model {
		return &config.Model{
			Nodes: []config.NodeSpec{{ID: "a", Type: config.TypeWorker}},
			Edges: []config.EdgeSpec{{From: config.Start, To: "a"}},
		}
	}

	m := base()
	m.ConditionalEdges = []config.ConditionalEdgeSpec{{From: "ghost", Routes: map[string]string{"x": "a"}}}
	requireStructural(t, compileErr(t, m))

	m = base()
	m.ConditionalEdges = []config.ConditionalEdgeSpec{{From: "a", Condition: "nope", Routes: map[string]string{"x": "a"}}}
	requireStructural(t, compileErr(t, m))

	m = base()
	m.ConditionalEdges = []config.ConditionalEdgeSpec{{From: "a", Routes: map[string]string{"x": "ghost"}}}
	requireStructural(t, compileErr(t, m))

	m = base()
	m.ConditionalEdges = []config.ConditionalEdgeSpec{{From: "a"}}
	requireStructural(t, compileErr(t, m))
}

func TestCompileValidatesDecisionSpec(t *testing.T) {
	model := config.DefaultModel()
	model.Decision.DeclineAt = 10
	model.Decision.ReviewAt = 90

	_, err := Compile(context.Background(), model, testRegistry(t), node.Deps{})
	require.Error(t, err)
	var se *StructuralError
	assert.False(t, errors.As(err, &se), "policy misconfiguration is not a structural graph error")
}
