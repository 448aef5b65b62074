// Package decision holds the threshold bands and weighting arithmetic the
// aggregator reduces analyzer opinions with.
package decision

import (
	"fmt"

	"github.com/vk/riskflow/internal/config"
)

// Decisions the aggregator may reach.
const (
	Approve = "APPROVE"
	Review  = "REVIEW"
	Decline = "DECLINE"
)

// DefaultMinAnalyzers is the minimum number of completed analyzers required
// before a scored decision is attempted.
const DefaultMinAnalyzers = 3

// Config is the validated decision policy: strictly descending threshold
// bands, per-analyzer weights, and the completed-analyzer floor.
type Config struct {
	DeclineAt    float64
	ReviewAt     float64
	MinAnalyzers int
	Weights      map[string]float64
}

// FromSpec builds a Config from the declarative decision spec, applying
// defaults and validating the band ordering. Band misordering is a
// configuration error caught at startup, never at decision time.
func FromSpec(spec config.DecisionSpec) (Config, error) {
	cfg := Config{
		DeclineAt:    spec.DeclineAt,
		ReviewAt:     spec.ReviewAt,
		MinAnalyzers: spec.MinAnalyzers,
		Weights:      spec.Weights,
	}
	if cfg.DeclineAt == 0 && cfg.ReviewAt == 0 {
		cfg.DeclineAt = 70
		cfg.ReviewAt = 40
	}
	if cfg.MinAnalyzers <= 0 {
		cfg.MinAnalyzers = DefaultMinAnalyzers
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the bands are strictly descending: decline > review > 0.
func (c Config) Validate() error {
	if c.DeclineAt <= c.ReviewAt {
		return fmt.Errorf("decision thresholds must be strictly descending: decline=%v review=%v", c.DeclineAt, c.ReviewAt)
	}
	if c.ReviewAt <= 0 {
		return fmt.Errorf("review threshold must be above the approve band: review=%v", c.ReviewAt)
	}
	for id, w := range c.Weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("analyzer weight out of range [0,1]: %s=%v", id, w)
		}
	}
	return nil
}

// Weight returns the configured weight for an analyzer, defaulting to 1 so
// unlisted analyzers still count.
func (c Config) Weight(analyzer string) float64 {
	if w, ok := c.Weights[analyzer]; ok {
		return w
	}
	return 1
}

// WeightedScore renormalizes the configured weights over the analyzers that
// actually produced a score and returns the weighted average. With no
// contributing analyzer the result is exactly 50.0, a neutral medium risk.
func (c Config) WeightedScore(scores map[string]float64, completed []string) float64 {
	var total, totalWeight float64
	for _, analyzer := range completed {
		score, ok := scores[analyzer]
		if !ok {
			continue
		}
		w := c.Weight(analyzer)
		total += score * w
		totalWeight += w
	}
	if totalWeight == 0 {
		return 50.0
	}
	return total / totalWeight
}

// Decide maps a risk score to a decision. Comparison is inclusive on the
// lower bound of each band.
func (c Config) Decide(score float64) string {
	switch {
	case score >= c.DeclineAt:
		return Decline
	case score >= c.ReviewAt:
		return Review
	default:
		return Approve
	}
}
