// Package analyzer implements the worker node type: one focused risk
// analyzer per declared node. Each analyzer reads the control node's
// normalized transaction, consults the external capability for an
// assessment, and contributes an independent risk score and opinion.
//
// Without a configured capability the analyzer degrades to a deterministic
// heuristic over the control node's risk factors, so the graph stays fully
// runnable in tests and offline setups.
package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/vk/riskflow/internal/capability"
	"github.com/vk/riskflow/internal/config"
	"github.com/vk/riskflow/internal/ctxlog"
	"github.com/vk/riskflow/internal/node"
	"github.com/vk/riskflow/internal/state"
	"github.com/vk/riskflow/internal/trace"
)

// Module implements node.Module for this package.
type Module struct{}

// Register binds the worker node type to this package's constructor.
func (Module) Register(r *node.Registry) {
	r.Register(config.TypeWorker, func(spec config.NodeSpec, deps node.Deps) (node.Handler, error) {
		focus := spec.StringParam("focus", spec.ID)
		return &handler{
			id:          spec.ID,
			focus:       focus,
			temperature: spec.FloatParam("temperature", 0.2),
			control:     deps.Control,
			invoker:     deps.Invoker,
			tracer:      deps.Tracer,
		}, nil
	})
}

// assessment is the structured document requested from the capability.
type assessment struct {
	RiskScore float64  `json:"risk_score"`
	Summary   string   `json:"summary"`
	Findings  []string `json:"findings"`
}

type handler struct {
	id          string
	focus       string
	temperature float64
	control     string
	invoker     capability.Invoker
	tracer      *trace.Client
}

func (h *handler) ValidateInput(snap *state.Snapshot) error {
	if snap.Input() == nil {
		return fmt.Errorf("analyzer %s requires an input payload", h.id)
	}
	return nil
}

// ValidateOutput guards the contract the aggregator depends on: every
// successful analyzer must contribute a bounded score.
func (h *handler) ValidateOutput(delta state.Delta) error {
	scores, _ := delta[state.KeyScores].(map[string]float64)
	score, ok := scores[h.id]
	if !ok {
		return fmt.Errorf("analyzer %s produced no score", h.id)
	}
	if score < 0 || score > 100 {
		return fmt.Errorf("analyzer %s score %.2f out of range [0,100]", h.id, score)
	}
	return nil
}

func (h *handler) Run(ctx context.Context, snap *state.Snapshot) (state.Delta, error) {
	logger := ctxlog.From(ctx)
	payload := h.describe(snap)

	var (
		result assessment
		refs   []string
	)
	if h.invoker == nil {
		result = h.heuristic(snap)
		logger.Debug("No capability configured, using heuristic assessment.", "node", h.id)
	} else {
		retrieved := h.tracer.FetchContext(ctx, payload, h.id)
		refs = retrieved.ReferenceIDs

		raw, err := h.invoker.Invoke(ctx, systemPrompt(h.focus), payload, capability.Options{
			Temperature:    h.temperature,
			StructuredJSON: true,
			Context:        retrieved.Text,
		})
		if err != nil {
			return nil, fmt.Errorf("analyzer %s: %w", h.id, err)
		}
		result, err = parseAssessment(raw)
		if err != nil {
			return nil, fmt.Errorf("analyzer %s: %w", h.id, err)
		}

		h.tracer.RecordTrace(ctx, trace.Record{
			Input:        payload,
			NodeID:       h.id,
			Output:       result.Summary,
			ReferenceIDs: refs,
			SessionID:    metaString(snap, "session_id"),
			RunID:        metaString(snap, "run_id"),
		})
	}

	result.RiskScore = clamp(result.RiskScore)
	logger.Info("Analyzer completed.", "node", h.id, "focus", h.focus, "risk_score", result.RiskScore)

	return state.Delta{
		state.KeyResults: map[string]any{
			h.id: map[string]any{
				"focus":      h.focus,
				"risk_score": result.RiskScore,
				"summary":    result.Summary,
				"findings":   result.Findings,
			},
		},
		state.KeyScores: map[string]float64{h.id: result.RiskScore},
		state.KeyMessages: []string{
			fmt.Sprintf("%s: risk %.1f (%s)", h.id, result.RiskScore, h.focus),
		},
	}, nil
}

// describe renders the transaction for the capability prompt, preferring the
// control node's normalized record over the raw input.
func (h *handler) describe(snap *state.Snapshot) string {
	subject := snap.Input()
	var factors []string
	if m, ok := h.controlRecord(snap); ok {
		if tx, ok := m["transaction"]; ok {
			subject = tx
		}
		if fs, ok := m["risk_factors"].([]string); ok {
			factors = fs
		}
	}

	doc, err := json.Marshal(map[string]any{
		"transaction":  subject,
		"risk_factors": factors,
	})
	if err != nil {
		return fmt.Sprintf("%v", subject)
	}
	return string(doc)
}

// heuristic scores the transaction from risk factors alone. Factors inside
// the analyzer's focus count full weight, the rest count half, so the five
// analyzers still disagree the way independent reviewers would.
func (h *handler) heuristic(snap *state.Snapshot) assessment {
	var factors []string
	if m, ok := h.controlRecord(snap); ok {
		if fs, ok := m["risk_factors"].([]string); ok {
			factors = fs
		}
	}

	relevant := focusFactors[canonicalFocus(h.focus)]
	score := 10.0
	var findings []string
	for _, f := range factors {
		if relevant[f] {
			score += 20
			findings = append(findings, f)
		} else {
			score += 5
		}
	}

	return assessment{
		RiskScore: clamp(score),
		Summary:   fmt.Sprintf("heuristic %s assessment over %d risk factors", h.focus, len(factors)),
		Findings:  findings,
	}
}

// controlRecord returns the control node's result map, if it ran.
func (h *handler) controlRecord(snap *state.Snapshot) (map[string]any, bool) {
	if h.control == "" {
		return nil, false
	}
	res, ok := snap.Result(h.control)
	if !ok {
		return nil, false
	}
	m, ok := res.(map[string]any)
	return m, ok
}

// parseAssessment decodes the structured capability response, tolerating a
// fenced code block around the JSON document.
func parseAssessment(raw string) (assessment, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	var out assessment
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return assessment{}, fmt.Errorf("malformed assessment document: %w", err)
	}
	return out, nil
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func metaString(snap *state.Snapshot, key string) string {
	s, _ := snap.Metadata()[key].(string)
	return s
}

// canonicalFocus maps declared focus params onto the known prompt families.
func canonicalFocus(focus string) string {
	f := strings.ToLower(focus)
	switch {
	case strings.Contains(f, "pattern"):
		return "pattern"
	case strings.Contains(f, "behav"):
		return "behavior"
	case strings.Contains(f, "velocity"):
		return "velocity"
	case strings.Contains(f, "merchant"):
		return "merchant"
	case strings.Contains(f, "geo"):
		return "geography"
	default:
		return "general"
	}
}

var focusFactors = map[string]map[string]bool{
	"pattern":   {"amount_very_high": true, "amount_high": true, "card_not_present": true, "no_3ds": true},
	"behavior":  {"off_hours": true, "card_not_present": true, "new_user": true, "failed_auth": true},
	"velocity":  {"high_velocity": true, "failed_auth": true},
	"merchant":  {"new_merchant": true, "amount_very_high": true},
	"geography": {"cross_border": true, "off_hours": true, "location_change": true, "vpn_in_use": true},
	"general":   {},
}

var prompts = map[string]string{
	"pattern": "You are a fraud pattern detector. Examine the transaction for known " +
		"fraudulent patterns such as unusual amounts, round-number testing, or " +
		"card-not-present anomalies.",
	"behavior": "You are a behavioral analyst. Compare the transaction against typical " +
		"cardholder behavior, including time of day and spending habits.",
	"velocity": "You are a velocity checker. Assess whether the recent transaction " +
		"frequency and amounts indicate automated or rapid-fire abuse.",
	"merchant": "You are a merchant risk analyst. Evaluate the merchant's category, " +
		"history, and reputation signals for elevated fraud exposure.",
	"geography": "You are a geographic risk analyst. Evaluate location consistency " +
		"between the card, the cardholder, and the merchant.",
	"general": "You are a transaction risk analyst. Evaluate the transaction for " +
		"fraud indicators within your assigned focus.",
}

func systemPrompt(focus string) string {
	base := prompts[canonicalFocus(focus)]
	return base + " Respond with a JSON object: " +
		`{"risk_score": <0-100>, "summary": "<one paragraph>", "findings": ["<signal>", ...]}.`
}
