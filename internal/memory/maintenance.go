// Package memory implements budget decay, forgetting, and the learning
// engine that turns outcomes into rule statistics and shortcut rules.
package memory

import (
	"sort"
	"time"

	"hypernars/internal/scheduler"
	"hypernars/internal/storage"
	"hypernars/internal/types"
)

// MaintenanceConfig tunes the periodic sweep.
type MaintenanceConfig struct {
	Decay               float64
	BudgetDecay         float64
	ForgettingThreshold float64
	MemoLimit           int
	QuestionCacheLimit  int
	// MinBeliefAge protects fresh beliefs from pruning.
	MinBeliefAge time.Duration
}

// DefaultMaintenanceConfig returns the documented defaults.
func DefaultMaintenanceConfig() MaintenanceConfig {
	return MaintenanceConfig{
		Decay:               0.1,
		BudgetDecay:         0.8,
		ForgettingThreshold: 0.1,
		MemoLimit:           10000,
		QuestionCacheLimit:  100,
		MinBeliefAge:        60 * time.Second,
	}
}

// QuestionCache is the slice of the question handler maintenance touches.
type QuestionCache interface {
	SetCacheLimit(n int)
	CacheLen() int
}

// Manager performs the periodic maintenance sweep.
type Manager struct {
	store      *storage.Hypergraph
	propagator *scheduler.Propagator
	memo       *storage.Memoization
	questions  QuestionCache
	clock      types.Clock
	config     MaintenanceConfig
}

// NewManager wires the maintenance sweep over its collaborators.
func NewManager(
	store *storage.Hypergraph,
	propagator *scheduler.Propagator,
	memo *storage.Memoization,
	questions QuestionCache,
	clock types.Clock,
	config MaintenanceConfig,
) *Manager {
	return &Manager{
		store:      store,
		propagator: propagator,
		memo:       memo,
		questions:  questions,
		clock:      clock,
		config:     config,
	}
}

type pruneCandidate struct {
	edgeID      string
	relevance   float64
	expectation float64
}

// Maintain runs one maintenance cycle: decay activations and budgets,
// prune irrelevant low-expectation edges, and truncate the path and
// question caches. Returns the number of edges pruned.
func (m *Manager) Maintain() int {
	m.propagator.DecayActivations(1 - m.config.Decay)
	m.store.DecayBudgets(m.config.BudgetDecay)

	now := m.clock.Now()
	var candidates []pruneCandidate
	for _, id := range m.store.EdgeIDs() {
		edge, ok := m.store.Get(id)
		if !ok {
			continue
		}
		strongest := edge.StrongestBelief()
		if strongest == nil {
			continue
		}
		expectation := strongest.Truth.Expectation()
		if expectation > 0.9 {
			continue
		}
		if now.Sub(strongest.Timestamp) < m.config.MinBeliefAge {
			continue
		}
		relevance := (m.propagator.Activation(id) + strongest.Budget.Priority) / 2
		if relevance >= m.config.ForgettingThreshold || expectation >= 0.5 {
			continue
		}
		candidates = append(candidates, pruneCandidate{
			edgeID:      id,
			relevance:   relevance,
			expectation: expectation,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].relevance+candidates[i].expectation <
			candidates[j].relevance+candidates[j].expectation
	})

	limit := len(candidates) / 20
	if limit < 1 && len(candidates) > 0 {
		limit = 1
	}
	if limit > 5 {
		limit = 5
	}

	pruned := 0
	for i := 0; i < limit; i++ {
		if m.store.Remove(candidates[i].edgeID) {
			pruned++
		}
	}

	if m.config.MemoLimit > 0 {
		m.memo.Truncate(m.config.MemoLimit)
		m.propagator.TruncateVisited(m.config.MemoLimit)
	}
	if m.questions != nil && m.config.QuestionCacheLimit > 0 {
		m.questions.SetCacheLimit(m.config.QuestionCacheLimit)
	}
	return pruned
}

// AllocateResources returns a budget for a named host task: baseline 0.5 on
// all axes, priority lifted by urgency and quality by importance. The task
// name is advisory and only matters to callers correlating allocations.
func AllocateResources(task string, importance, urgency float64) types.Budget {
	return types.Budget{
		Priority:   0.5 + 0.5*urgency,
		Durability: 0.5,
		Quality:    0.5 + 0.5*importance,
	}.Clamped()
}
