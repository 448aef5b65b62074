package config

// DefaultModel returns the built-in transaction analysis graph: an
// orchestrator fanning out to five parallel analyzers, converging on the
// decision aggregator and the finalizer. Used when no graph file is given.
func DefaultModel() *Model {
	analyzers := []string{
		"pattern_detector",
		"behavioral_analyzer",
		"velocity_checker",
		"merchant_risk_analyzer",
		"geographic_analyzer",
	}

	m := &Model{
		Nodes: []NodeSpec{
			{ID: "orchestrator", Type: TypeControl},
		},
		Edges: []EdgeSpec{
			{From: Start, To: "orchestrator"},
		},
		Decision: DecisionSpec{
			DeclineAt:    70,
			ReviewAt:     40,
			MinAnalyzers: 3,
			Weights: map[string]float64{
				"pattern_detector":       0.25,
				"behavioral_analyzer":    0.20,
				"velocity_checker":       0.20,
				"merchant_risk_analyzer": 0.15,
				"geographic_analyzer":    0.20,
			},
		},
	}

	for _, id := range analyzers {
		m.Nodes = append(m.Nodes, NodeSpec{
			ID:   id,
			Type: TypeWorker,
			Params: map[string]any{
				"focus": id,
			},
		})
		m.Edges = append(m.Edges,
			EdgeSpec{From: "orchestrator", To: id},
			EdgeSpec{From: id, To: "decision_aggregator"},
		)
	}

	m.Nodes = append(m.Nodes,
		NodeSpec{ID: "decision_aggregator", Type: TypeAggregator},
		NodeSpec{ID: "finalizer", Type: TypeFinalizer},
	)
	m.Edges = append(m.Edges,
		EdgeSpec{From: "decision_aggregator", To: "finalizer"},
		EdgeSpec{From: "finalizer", To: End},
	)

	return m
}
