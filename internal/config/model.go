package config

// Reserved node identifiers marking graph entry and exit. They never appear
// in the node set; edges may reference them.
const (
	Start = "START"
	End   = "END"
)

// Node type tags. A node's tag selects its handler constructor from the
// node registry at compile time, so an unknown tag is a compile-time error.
const (
	TypeControl    = "control"
	TypeWorker     = "worker"
	TypeAggregator = "aggregator"
	TypeFinalizer  = "finalizer"
)

// Model is the unified, format-agnostic representation of one graph
// definition: the node set, the edge set, and the decision policy applied
// by the aggregator.
type Model struct {
	Nodes            []NodeSpec
	Edges            []EdgeSpec
	ConditionalEdges []ConditionalEdgeSpec
	Decision         DecisionSpec
}

// NodeSpec declares a single node. It is immutable once the graph is
// compiled.
type NodeSpec struct {
	// ID is unique within the graph.
	ID string
	// Type is one of the Type* tags above.
	Type string
	// Params holds free-form per-node parameters (prompt focus, sampling
	// temperature, per-node timeout, ...). Handlers interpret them.
	Params map[string]any
}

// EdgeSpec declares a directed edge. From/To may use the reserved Start and
// End identifiers.
type EdgeSpec struct {
	From string
	To   string
}

// ConditionalEdgeSpec declares an edge whose target is not known until the
// named condition function runs against live state. Routes maps each
// condition outcome to a target node id (or End).
type ConditionalEdgeSpec struct {
	From      string
	Condition string
	Routes    map[string]string
}

// DecisionSpec configures the aggregator: threshold bands, per-analyzer
// weights, and the minimum number of completed analyzers below which the
// conservative fallback applies.
type DecisionSpec struct {
	DeclineAt    float64
	ReviewAt     float64
	MinAnalyzers int
	Weights      map[string]float64
}

// Node returns the spec for the given id, if declared.
func (m *Model) Node(id string) (NodeSpec, bool) {
	for _, n := range m.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeSpec{}, false
}

// StringParam reads a string-typed node parameter with a fallback.
func (n NodeSpec) StringParam(key, fallback string) string {
	if v, ok := n.Params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// FloatParam reads a numeric node parameter with a fallback. HCL numbers and
// JSON numbers both decode to float64.
func (n NodeSpec) FloatParam(key string, fallback float64) float64 {
	switch v := n.Params[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}
