package validation

import (
	"hypernars/internal/types"
)

// Evidence-strength weights: intrinsic score, external evidence, and
// source-reliability-weighted evidence, normalized by their sum.
const (
	weightIntrinsic   = 0.2
	weightExternal    = 0.8
	weightReliability = 0.5
)

// BeliefStrength computes the evidence strength of a belief on an edge:
// a weighted blend of the belief's intrinsic score
// (expectation x budget priority), the summed strength of its external
// evidence, and the per-source-reliability weighted strength.
func BeliefStrength(edge *types.Hyperedge, belief *types.Belief, reliability map[string]float64) float64 {
	intrinsic := belief.Truth.Expectation() * belief.Budget.Priority

	external := 0.0
	weighted := 0.0
	for _, ev := range edge.EvidenceFor(belief.ID) {
		external += ev.Strength
		rel := 0.5
		if r, ok := reliability[ev.Source]; ok {
			rel = r
		}
		weighted += ev.Strength * rel
	}

	total := weightIntrinsic + weightExternal + weightReliability
	return (intrinsic*weightIntrinsic + external*weightExternal + weighted*weightReliability) / total
}

// sourceOf returns the belief's source, falling back to evidence sources.
func sourceOf(edge *types.Hyperedge, belief *types.Belief) string {
	if belief.Source != "" {
		return belief.Source
	}
	for _, ev := range edge.EvidenceFor(belief.ID) {
		if ev.Source != "" {
			return ev.Source
		}
	}
	return ""
}

// contextOf returns the belief's context tag from its evidence, if any.
func contextOf(edge *types.Hyperedge, belief *types.Belief) string {
	for _, ev := range edge.EvidenceFor(belief.ID) {
		if ev.Context != "" {
			return ev.Context
		}
	}
	return ""
}
