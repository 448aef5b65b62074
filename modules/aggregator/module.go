// Package aggregator implements the decision aggregator node. It reduces
// whatever subset of analyzers completed into one decision document: the
// weighted risk score and the threshold bands decide the verdict, and the
// external capability, when configured, only narrates it.
package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vk/riskflow/internal/capability"
	"github.com/vk/riskflow/internal/config"
	"github.com/vk/riskflow/internal/ctxlog"
	"github.com/vk/riskflow/internal/decision"
	"github.com/vk/riskflow/internal/node"
	"github.com/vk/riskflow/internal/state"
)

// Module implements node.Module for this package.
type Module struct{}

// Register binds the aggregator node type and the decision-routing condition
// used by conditional edges keyed on the verdict.
func (Module) Register(r *node.Registry) {
	r.Register(config.TypeAggregator, func(spec config.NodeSpec, deps node.Deps) (node.Handler, error) {
		return &handler{
			id:        spec.ID,
			policy:    deps.Decision,
			analyzers: deps.Analyzers,
			invoker:   deps.Invoker,
		}, nil
	})
	r.RegisterCondition("decision", func(snap *state.Snapshot) string {
		if d := snap.Decision(); d != "" {
			return strings.ToLower(d)
		}
		return "review"
	})
}

// Document is the schema-complete decision record. Every field is always
// present; missing narrative fields are backfilled with defaults.
type Document struct {
	FinalDecision   string   `json:"final_decision"`
	Conclusion      string   `json:"conclusion"`
	Recommendations []string `json:"recommendations"`
	Reason          string   `json:"reason"`
}

type handler struct {
	id        string
	policy    decision.Config
	analyzers []string
	invoker   capability.Invoker
}

func (h *handler) Run(ctx context.Context, snap *state.Snapshot) (state.Delta, error) {
	logger := ctxlog.From(ctx)
	completed := h.completedAnalyzers(snap)

	if len(completed) < h.policy.MinAnalyzers {
		logger.Warn("Too few analyzers completed, declining.",
			"node", h.id, "completed", len(completed), "required", h.policy.MinAnalyzers)
		doc := Document{
			FinalDecision: decision.Decline,
			Conclusion: fmt.Sprintf("Only %d of %d required analyzers completed; declining for safety.",
				len(completed), h.policy.MinAnalyzers),
			Recommendations: []string{"retry the analysis", "review analyzer availability"},
			Reason:          "insufficient analyzer coverage",
		}
		return h.delta(doc, 0, completed, false), nil
	}

	score := h.policy.WeightedScore(snap.Scores(), completed)
	verdict := h.policy.Decide(score)
	doc := Document{
		FinalDecision: verdict,
		Conclusion: fmt.Sprintf("Weighted risk score %.1f across %d analyzers yields %s.",
			score, len(completed), verdict),
		Recommendations: defaultRecommendations(verdict),
		Reason:          fmt.Sprintf("weighted score %.1f against decline>=%.0f review>=%.0f", score, h.policy.DeclineAt, h.policy.ReviewAt),
	}

	if h.invoker != nil {
		if narrated, err := h.narrate(ctx, snap, completed, score, verdict); err != nil {
			logger.Warn("Decision narration failed, using arithmetic document.", "node", h.id, "error", err)
		} else {
			doc = backfill(narrated, doc)
			// The verdict is arithmetic; narration never overrules it.
			doc.FinalDecision = verdict
		}
	}

	logger.Info("Decision aggregated.",
		"node", h.id, "decision", doc.FinalDecision, "risk_score", score, "analyzers", len(completed))
	return h.delta(doc, score, completed, true), nil
}

func (h *handler) delta(doc Document, score float64, completed []string, scored bool) state.Delta {
	return state.Delta{
		state.KeyDecision: doc.FinalDecision,
		state.KeyResults: map[string]any{
			h.id: map[string]any{
				"final_decision":      doc.FinalDecision,
				"conclusion":          doc.Conclusion,
				"recommendations":     doc.Recommendations,
				"reason":              doc.Reason,
				"risk_score":          score,
				"scored":              scored,
				"analyzers_completed": completed,
			},
		},
		state.KeyMessages: []string{
			fmt.Sprintf("%s: %s (score %.1f, %d analyzers)", h.id, doc.FinalDecision, score, len(completed)),
		},
	}
}

// completedAnalyzers intersects the run's completed nodes with the declared
// worker set, preserving declared order.
func (h *handler) completedAnalyzers(snap *state.Snapshot) []string {
	done := make(map[string]bool, len(snap.Completed()))
	for _, id := range snap.Completed() {
		done[id] = true
	}
	var out []string
	for _, id := range h.analyzers {
		if done[id] {
			out = append(out, id)
		}
	}
	return out
}

// narrate asks the capability to write the narrative fields of the decision
// document from the analyzer opinions.
func (h *handler) narrate(ctx context.Context, snap *state.Snapshot, completed []string, score float64, verdict string) (Document, error) {
	opinions := make(map[string]any, len(completed))
	for _, id := range completed {
		if res, ok := snap.Result(id); ok {
			opinions[id] = res
		}
	}
	payload, err := json.Marshal(map[string]any{
		"verdict":    verdict,
		"risk_score": score,
		"opinions":   opinions,
	})
	if err != nil {
		return Document{}, err
	}

	raw, err := h.invoker.Invoke(ctx, aggregatorPrompt, string(payload), capability.Options{
		StructuredJSON: true,
	})
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &doc); err != nil {
		return Document{}, fmt.Errorf("malformed decision document: %w", err)
	}
	return doc, nil
}

// backfill fills empty fields of the narrated document from the arithmetic
// fallback, keeping the output schema-complete.
func backfill(doc, fallback Document) Document {
	if doc.FinalDecision == "" {
		doc.FinalDecision = fallback.FinalDecision
	}
	if doc.Conclusion == "" {
		doc.Conclusion = fallback.Conclusion
	}
	if len(doc.Recommendations) == 0 {
		doc.Recommendations = fallback.Recommendations
	}
	if doc.Reason == "" {
		doc.Reason = fallback.Reason
	}
	return doc
}

func defaultRecommendations(verdict string) []string {
	switch verdict {
	case decision.Decline:
		return []string{"block the transaction", "flag the account for investigation"}
	case decision.Review:
		return []string{"route to manual review", "request additional verification"}
	default:
		return []string{"approve the transaction"}
	}
}

const aggregatorPrompt = "You are a risk decision writer. Given a verdict, a weighted " +
	"risk score, and per-analyzer opinions, write the decision narrative. Respond with a " +
	`JSON object: {"final_decision": "<verdict>", "conclusion": "<one paragraph>", ` +
	`"recommendations": ["<action>", ...], "reason": "<one sentence>"}.`
