// Package finalizer implements the terminal convergence node. It assembles
// the response envelope from whatever the run produced and never fails:
// any panic while assembling degrades to a minimal fail-closed envelope.
package finalizer

import (
	"context"
	"fmt"
	"time"

	"github.com/vk/riskflow/internal/config"
	"github.com/vk/riskflow/internal/ctxlog"
	"github.com/vk/riskflow/internal/decision"
	"github.com/vk/riskflow/internal/node"
	"github.com/vk/riskflow/internal/state"
)

// Module implements node.Module for this package.
type Module struct{}

// Register binds the finalizer node type to this package's constructor.
func (Module) Register(r *node.Registry) {
	r.Register(config.TypeFinalizer, func(spec config.NodeSpec, deps node.Deps) (node.Handler, error) {
		return &handler{id: spec.ID}, nil
	})
}

type handler struct {
	id string
}

func (h *handler) Run(ctx context.Context, snap *state.Snapshot) (delta state.Delta, err error) {
	defer func() {
		if r := recover(); r != nil {
			ctxlog.From(ctx).Error("Finalizer panicked, emitting fail-closed envelope.", "node", h.id, "panic", r)
			delta = state.Delta{
				state.KeyOutput: map[string]any{
					"final_decision":  decision.Decline,
					"conclusion":      "Finalization failed; declining for safety.",
					"recommendations": []string{"retry the analysis"},
					"reason":          fmt.Sprintf("finalizer failure: %v", r),
				},
				state.KeyMessages: []string{fmt.Sprintf("%s: recovered from %v", h.id, r)},
			}
			err = nil
		}
	}()

	envelope := h.assemble(snap)
	ctxlog.From(ctx).Info("Run finalized.", "node", h.id, "decision", envelope["final_decision"])

	return state.Delta{
		state.KeyOutput:   envelope,
		state.KeyMessages: []string{fmt.Sprintf("%s: envelope assembled", h.id)},
	}, nil
}

// assemble builds the response envelope. The aggregator's document supplies
// the decision fields; absent one, the envelope fails closed with DECLINE.
func (h *handler) assemble(snap *state.Snapshot) map[string]any {
	envelope := map[string]any{
		"final_decision":  decision.Decline,
		"conclusion":      "No aggregated decision was produced; declining for safety.",
		"recommendations": []string{"retry the analysis", "review analyzer availability"},
		"reason":          "decision aggregation unavailable",
	}

	if doc, ok := decisionDocument(snap); ok {
		for _, field := range []string{"final_decision", "conclusion", "recommendations", "reason"} {
			if v, present := doc[field]; present {
				envelope[field] = v
			}
		}
		if v, present := doc["risk_score"]; present {
			envelope["risk_score"] = v
		}
	}

	envelope["merged_results"] = snap.Results()
	envelope["execution_summary"] = map[string]any{
		"run_id":          metaString(snap, "run_id"),
		"attempt":         snap.Metadata()["attempt"],
		"completed_nodes": snap.Completed(),
		"messages":        len(snap.Messages()),
		"error":           snap.ErrorMessage(),
		"finalized_at":    time.Now().UTC().Format(time.RFC3339),
	}
	return envelope
}

// decisionDocument locates the aggregated decision in completion order:
// the most recently completed node whose result carries a final_decision.
// Walking the completion log rather than the results map keeps the pick
// deterministic when several nodes wrote decision-shaped documents.
func decisionDocument(snap *state.Snapshot) (map[string]any, bool) {
	results := snap.Results()
	completed := snap.Completed()
	for i := len(completed) - 1; i >= 0; i-- {
		doc, ok := results[completed[i]].(map[string]any)
		if !ok {
			continue
		}
		if _, isDecision := doc["final_decision"]; isDecision {
			return doc, true
		}
	}
	return nil, false
}

func metaString(snap *state.Snapshot, key string) string {
	s, _ := snap.Metadata()[key].(string)
	return s
}
