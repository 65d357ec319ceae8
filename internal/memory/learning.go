package memory

import (
	"sort"
	"strings"
	"sync"
	"time"

	"hypernars/internal/events"
	"hypernars/internal/storage"
	"hypernars/internal/types"
)

// RuleStats accumulates per-rule productivity.
type RuleStats struct {
	Attempts    int       `json:"attempts"`
	Successes   int       `json:"successes"`
	TotalValue  float64   `json:"total_value"`
	TotalCost   float64   `json:"total_cost_ms"`
	LastUpdated time.Time `json:"last_updated"`
}

// SuccessRate returns the observed success ratio, 0.5 before any data.
func (s *RuleStats) SuccessRate() float64 {
	if s.Attempts == 0 {
		return 0.5
	}
	return float64(s.Successes) / float64(s.Attempts)
}

// shortcutThreshold is the experience count after which a recurring
// premise-set -> conclusion pattern is compiled into a shortcut rule.
const shortcutThreshold = 50

type experience struct {
	premises   []string
	conclusion string
	attempts   int
	successes  int
	compiled   bool
}

// LearningEngine records rule applications and question/goal outcomes,
// reinforces or weakens premise beliefs, and synthesizes shortcut rules for
// reliably recurring derivations.
type LearningEngine struct {
	mu          sync.Mutex
	store       *storage.Hypergraph
	bus         *events.Bus
	clock       types.Clock
	ruleStats   map[string]*RuleStats
	experiences map[string]*experience

	// reinforcementDelta is the confidence step applied to premises on a
	// positive or negative outcome.
	reinforcementDelta float64
}

// NewLearningEngine creates an empty learning engine.
func NewLearningEngine(store *storage.Hypergraph, bus *events.Bus, clock types.Clock) *LearningEngine {
	return &LearningEngine{
		store:              store,
		bus:                bus,
		clock:              clock,
		ruleStats:          make(map[string]*RuleStats),
		experiences:        make(map[string]*experience),
		reinforcementDelta: 0.05,
	}
}

// RecordRuleApplication folds one rule application into its statistics.
func (l *LearningEngine) RecordRuleApplication(rule string, success bool, cost time.Duration, value float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	stats, ok := l.ruleStats[rule]
	if !ok {
		stats = &RuleStats{}
		l.ruleStats[rule] = stats
	}
	stats.Attempts++
	if success {
		stats.Successes++
	}
	stats.TotalValue += value
	stats.TotalCost += float64(cost.Milliseconds())
	stats.LastUpdated = l.clock.Now()
}

// RuleSuccessRate returns the learned success rate for a rule.
func (l *LearningEngine) RuleSuccessRate(rule string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if stats, ok := l.ruleStats[rule]; ok {
		return stats.SuccessRate()
	}
	return 0.5
}

// Stats returns a copy of the per-rule statistics.
func (l *LearningEngine) Stats() map[string]RuleStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]RuleStats, len(l.ruleStats))
	for name, s := range l.ruleStats {
		out[name] = *s
	}
	return out
}

// RecordOutcome reports that a derivation chain led to a positive outcome
// (a question answered, a goal reached) or a negative one. Premise beliefs
// are reinforced or weakened, and reliably recurring patterns are compiled
// into shortcut implications.
func (l *LearningEngine) RecordOutcome(premises []string, conclusion string, success bool) {
	delta := l.reinforcementDelta
	if !success {
		delta = -delta
	}
	for _, premiseID := range premises {
		// Missing premises are fine: they may have been pruned since.
		_ = l.store.ReinforceBelief(premiseID, delta)
	}

	if conclusion == "" || len(premises) == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sorted := append([]string(nil), premises...)
	sort.Strings(sorted)
	key := strings.Join(sorted, "&") + "=>" + conclusion

	exp, ok := l.experiences[key]
	if !ok {
		exp = &experience{premises: sorted, conclusion: conclusion}
		l.experiences[key] = exp
	}
	exp.attempts++
	if success {
		exp.successes++
	}

	if !exp.compiled && exp.successes >= shortcutThreshold {
		l.compileShortcutLocked(exp)
	}
}

// compileShortcutLocked synthesizes
// Implication(Conjunction(sorted premises), conclusion) with truth derived
// from the observed success ratio.
func (l *LearningEngine) compileShortcutLocked(exp *experience) {
	args := make([]*types.Term, 0, len(exp.premises))
	for _, p := range exp.premises {
		args = append(args, types.Atom(p))
	}
	antecedent := types.Compound(types.Conjunction, args...)
	consequent := types.Atom(exp.conclusion)

	ratio := float64(exp.successes) / float64(exp.attempts)
	id, _, err := l.store.Add(types.Implication,
		[]*types.Term{antecedent, consequent},
		&types.Belief{
			Truth:     types.TruthValue{Frequency: ratio, Confidence: 0.9, Priority: 0.9},
			Budget:    types.Budget{Priority: 0.9, Durability: 0.9, Quality: 0.8},
			Premises:  exp.premises,
			DerivedBy: "shortcut-synthesis",
		})
	if err != nil {
		return
	}
	exp.compiled = true
	l.bus.Publish(events.Event{
		Type:      events.RuleSynthesized,
		EdgeID:    id,
		Timestamp: l.clock.Now(),
		Detail:    map[string]any{"successes": exp.successes, "attempts": exp.attempts},
	})
}

// ExperienceCount returns the attempts recorded for a premise-set ->
// conclusion pattern.
func (l *LearningEngine) ExperienceCount(premises []string, conclusion string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	sorted := append([]string(nil), premises...)
	sort.Strings(sorted)
	key := strings.Join(sorted, "&") + "=>" + conclusion
	if exp, ok := l.experiences[key]; ok {
		return exp.attempts
	}
	return 0
}

// Clear resets all learned state.
func (l *LearningEngine) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ruleStats = make(map[string]*RuleStats)
	l.experiences = make(map[string]*experience)
}
