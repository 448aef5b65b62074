package hclspec

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vk/riskflow/internal/config"
)

const graphFixture = `
node "control" "orchestrator" {}

node "worker" "pattern_detector" {
  focus       = "pattern"
  temperature = 0.1
  timeout     = 30
}

node "worker" "velocity_checker" {
  focus = "velocity"
}

node "aggregator" "decision_aggregator" {}

edge {
  from = "START"
  to   = "orchestrator"
}

edge {
  from = "orchestrator"
  to   = "pattern_detector"
}

edge {
  from = "orchestrator"
  to   = "velocity_checker"
}

edge {
  from = "pattern_detector"
  to   = "decision_aggregator"
}

edge {
  from = "velocity_checker"
  to   = "decision_aggregator"
}

edge {
  from = "decision_aggregator"
  to   = "END"
}

conditional_edge {
  from      = "orchestrator"
  condition = "triage"
  routes = {
    escalate = "pattern_detector"
    done     = "END"
  }
}

decision {
  decline       = 70
  review        = 40
  min_analyzers = 2
  weights = {
    pattern_detector = 0.6
    velocity_checker = 0.4
  }
}
`

func writeFixture(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadGraphFile(t *testing.T) {
	path := writeFixture(t, "graph.hcl", graphFixture)

	model, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, model.Nodes, 4)
	assert.Equal(t, "orchestrator", model.Nodes[0].ID)
	assert.Equal(t, config.TypeControl, model.Nodes[0].Type)

	pd := model.Nodes[1]
	assert.Equal(t, config.TypeWorker, pd.Type)
	assert.Equal(t, "pattern", pd.StringParam("focus", ""))
	assert.Equal(t, 0.1, pd.FloatParam("temperature", 0))
	assert.Equal(t, 30.0, pd.FloatParam("timeout", 0))

	require.Len(t, model.Edges, 6)
	assert.Equal(t, config.EdgeSpec{From: config.Start, To: "orchestrator"}, model.Edges[0])
	assert.Equal(t, config.EdgeSpec{From: "decision_aggregator", To: config.End}, model.Edges[5])

	require.Len(t, model.ConditionalEdges, 1)
	ce := model.ConditionalEdges[0]
	assert.Equal(t, "orchestrator", ce.From)
	assert.Equal(t, "triage", ce.Condition)
	assert.Equal(t, map[string]string{"escalate": "pattern_detector", "done": config.End}, ce.Routes)

	assert.Equal(t, 70.0, model.Decision.DeclineAt)
	assert.Equal(t, 40.0, model.Decision.ReviewAt)
	assert.Equal(t, 2, model.Decision.MinAnalyzers)
	assert.Equal(t, map[string]float64{"pattern_detector": 0.6, "velocity_checker": 0.4}, model.Decision.Weights)
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "01_nodes.hcl"), []byte(`
node "worker" "a" {}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "02_edges.hcl"), []byte(`
edge {
  from = "START"
  to   = "a"
}
`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))

	model, err := NewLoader().Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, model.Nodes, 1)
	assert.Len(t, model.Edges, 1)
}

func TestLoadRejectsMalformedHCL(t *testing.T) {
	path := writeFixture(t, "bad.hcl", `node "worker" {`)

	_, err := NewLoader().Load(context.Background(), path)
	require.Error(t, err)
}

func TestLoadMissingPath(t *testing.T) {
	_, err := NewLoader().Load(context.Background(), filepath.Join(t.TempDir(), "nope.hcl"))
	require.Error(t, err)
}

func TestLoadRejectsScalarRoutes(t *testing.T) {
	path := writeFixture(t, "graph.hcl", `
node "worker" "a" {}

edge {
  from = "START"
  to   = "a"
}

conditional_edge {
  from   = "a"
  routes = "b"
}
`)

	_, err := NewLoader().Load(context.Background(), path)
	require.ErrorContains(t, err, "routes must be an object")
}

func TestLoadRejectsNonStringRouteTarget(t *testing.T) {
	path := writeFixture(t, "graph.hcl", `
node "worker" "a" {}

edge {
  from = "START"
  to   = "a"
}

conditional_edge {
  from = "a"
  routes = {
    continue = 7
  }
}
`)

	_, err := NewLoader().Load(context.Background(), path)
	require.ErrorContains(t, err, "must name a target node")
}

func TestLoadRejectsScalarWeights(t *testing.T) {
	path := writeFixture(t, "graph.hcl", `
node "worker" "a" {}

edge {
  from = "START"
  to   = "a"
}

decision {
  decline = 70
  review  = 40
  weights = "heavy"
}
`)

	_, err := NewLoader().Load(context.Background(), path)
	require.ErrorContains(t, err, "weights must be an object")
}

func TestLoadRejectsNonNumericWeight(t *testing.T) {
	path := writeFixture(t, "graph.hcl", `
node "worker" "a" {}

edge {
  from = "START"
  to   = "a"
}

decision {
  decline = 70
  review  = 40
  weights = {
    a = "most"
  }
}
`)

	_, err := NewLoader().Load(context.Background(), path)
	require.ErrorContains(t, err, "must be a number")
}

func TestLoadConditionDefaultsWhenOmitted(t *testing.T) {
	path := writeFixture(t, "graph.hcl", `
node "worker" "a" {}
node "worker" "b" {}

edge {
  from = "START"
  to   = "a"
}

conditional_edge {
  from = "a"
  routes = {
    continue = "b"
  }
}
`)

	model, err := NewLoader().Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, model.ConditionalEdges, 1)
	assert.Equal(t, "default", model.ConditionalEdges[0].Condition)
}
