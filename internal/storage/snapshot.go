package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"hypernars/internal/types"
)

// SnapshotVersion is the only persisted-state version this build reads.
const SnapshotVersion = "1.0"

// ErrInvalidState is returned when a persisted state blob cannot be loaded.
// No partial load is ever committed.
var ErrInvalidState = fmt.Errorf("invalid state")

// SavedBelief is the persisted form of one belief.
type SavedBelief struct {
	Truth     types.TruthValue `json:"truth"`
	Budget    types.Budget     `json:"budget"`
	Premises  []string         `json:"premises,omitempty"`
	DerivedBy string           `json:"derivedBy,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Source    string           `json:"source,omitempty"`
}

// SavedEdge is the persisted form of one hyperedge.
type SavedEdge struct {
	ID      string         `json:"id"`
	Type    types.TermType `json:"type"`
	Args    []*types.Term  `json:"args"`
	Beliefs []SavedBelief  `json:"beliefs"`
}

// SavedState is the round-trippable aggregate.
type SavedState struct {
	Version     string          `json:"version"`
	Timestamp   time.Time       `json:"timestamp"`
	Config      json.RawMessage `json:"config,omitempty"`
	CurrentStep uint64          `json:"currentStep"`
	Hypergraph  []SavedEdge     `json:"hypergraph"`
}

// EncodeState serializes a snapshot of the hypergraph together with the
// reasoner's step counter and raw config.
func EncodeState(h *Hypergraph, currentStep uint64, config json.RawMessage, now time.Time) ([]byte, error) {
	state := SavedState{
		Version:     SnapshotVersion,
		Timestamp:   now,
		Config:      config,
		CurrentStep: currentStep,
		Hypergraph:  make([]SavedEdge, 0, h.Len()),
	}
	for _, edge := range h.Snapshot() {
		se := SavedEdge{
			ID:      edge.ID,
			Type:    edge.Type,
			Args:    edge.Args,
			Beliefs: make([]SavedBelief, 0, len(edge.Beliefs)),
		}
		for _, b := range edge.Beliefs {
			se.Beliefs = append(se.Beliefs, SavedBelief{
				Truth:     b.Truth,
				Budget:    b.Budget,
				Premises:  b.Premises,
				DerivedBy: b.DerivedBy,
				Timestamp: b.Timestamp,
				Source:    b.Source,
			})
		}
		state.Hypergraph = append(state.Hypergraph, se)
	}
	return json.MarshalIndent(state, "", "  ")
}

// DecodeState parses and validates a persisted state blob. An unknown
// version or missing hypergraph yields ErrInvalidState.
func DecodeState(data []byte) (*SavedState, error) {
	var state SavedState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if state.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidState, state.Version)
	}
	if state.Hypergraph == nil {
		return nil, fmt.Errorf("%w: missing hypergraph", ErrInvalidState)
	}
	return &state, nil
}
