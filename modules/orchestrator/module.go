// Package orchestrator implements the entry control node. It normalizes the
// caller payload into a canonical transaction record, derives static risk
// factors from it, and records which analyzers the run will fan out to.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/vk/riskflow/internal/config"
	"github.com/vk/riskflow/internal/ctxlog"
	"github.com/vk/riskflow/internal/node"
	"github.com/vk/riskflow/internal/state"
)

// Module implements node.Module for this package.
type Module struct{}

// Register binds the control node type to this package's constructor.
func (Module) Register(r *node.Registry) {
	r.Register(config.TypeControl, func(spec config.NodeSpec, deps node.Deps) (node.Handler, error) {
		return &handler{id: spec.ID, analyzers: deps.Analyzers}, nil
	})
}

type handler struct {
	id        string
	analyzers []string
}

// ValidateInput rejects runs whose payload carries no usable content.
func (h *handler) ValidateInput(snap *state.Snapshot) error {
	if snap.Input() == nil {
		return fmt.Errorf("orchestrator requires a non-empty input payload")
	}
	return nil
}

func (h *handler) Run(ctx context.Context, snap *state.Snapshot) (state.Delta, error) {
	tx := Normalize(snap.Input())
	factors := RiskFactors(tx)

	ctxlog.From(ctx).Info("Orchestrating run.",
		"node", h.id,
		"risk_factors", len(factors),
		"analyzers", len(h.analyzers),
	)

	return state.Delta{
		state.KeyResults: map[string]any{
			h.id: map[string]any{
				"transaction":          tx,
				"risk_factors":         factors,
				"analyzers_dispatched": append([]string(nil), h.analyzers...),
			},
		},
		state.KeyMessages: []string{
			fmt.Sprintf("%s: normalized transaction, dispatching %d analyzers", h.id, len(h.analyzers)),
		},
	}, nil
}

// sections are the well-known nested payload groups flattened into the
// canonical record. Flat fields with the same name win.
var sections = []string{"customer", "financial", "merchant", "location"}

// Normalize coerces the opaque caller payload into a flat transaction
// record. Structured payloads have well-known nested sections flattened and
// keys canonicalized; strings become a description-only record so
// downstream prompts always have something.
func Normalize(input any) map[string]any {
	switch v := input.(type) {
	case map[string]any:
		tx := make(map[string]any, len(v))
		for _, section := range sections {
			if nested, ok := v[section].(map[string]any); ok {
				for k, val := range nested {
					tx[strings.ToLower(strings.TrimSpace(k))] = val
				}
			}
		}
		for k, val := range v {
			key := strings.ToLower(strings.TrimSpace(k))
			if _, ok := val.(map[string]any); ok && isSection(key) {
				continue
			}
			tx[key] = val
		}
		return tx
	case string:
		return map[string]any{"description": v}
	case []any:
		return map[string]any{"batch": v, "description": fmt.Sprintf("batch of %d items", len(v))}
	default:
		return map[string]any{"description": fmt.Sprintf("%v", v)}
	}
}

// RiskFactors derives cheap static signals from the normalized record. They
// seed analyzer prompts and the degraded scoring path when no external
// capability is configured.
func RiskFactors(tx map[string]any) []string {
	var factors []string

	if amt, ok := floatField(tx, "amount"); ok {
		switch {
		case amt >= 10000:
			factors = append(factors, "amount_very_high")
		case amt >= 1000:
			factors = append(factors, "amount_high")
		}
	}
	if hour, ok := floatField(tx, "hour"); ok && (hour < 6 || hour >= 23) {
		factors = append(factors, "off_hours")
	}
	if c1, ok1 := stringField(tx, "card_country"); ok1 {
		if c2, ok2 := stringField(tx, "merchant_country"); ok2 && !strings.EqualFold(c1, c2) {
			factors = append(factors, "cross_border")
		}
	}
	if v, ok := tx["new_merchant"].(bool); ok && v {
		factors = append(factors, "new_merchant")
	}
	if v, ok := tx["card_present"].(bool); ok && !v {
		factors = append(factors, "card_not_present")
	}
	if n, ok := floatField(tx, "recent_transactions"); ok && n >= 10 {
		factors = append(factors, "high_velocity")
	}
	if v, ok := tx["new_user"].(bool); ok && v {
		factors = append(factors, "new_user")
	}
	if v, ok := tx["location_change"].(bool); ok && v {
		factors = append(factors, "location_change")
	}
	if n, ok := floatField(tx, "failed_attempts"); ok && n >= 3 {
		factors = append(factors, "failed_auth")
	}
	if v, ok := tx["three_ds_used"].(bool); ok && !v {
		factors = append(factors, "no_3ds")
	}
	if v, ok := tx["vpn_in_use"].(bool); ok && v {
		factors = append(factors, "vpn_in_use")
	}

	return factors
}

func isSection(key string) bool {
	for _, s := range sections {
		if key == s {
			return true
		}
	}
	return false
}

func floatField(tx map[string]any, key string) (float64, bool) {
	switch v := tx[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func stringField(tx map[string]any, key string) (string, bool) {
	s, ok := tx[key].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}
