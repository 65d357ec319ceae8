package reasoning

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"hypernars/internal/scheduler"
	"hypernars/internal/storage"
	"hypernars/internal/types"
)

// Rule set modes.
const (
	RuleSetSimple   = "simple"
	RuleSetAdvanced = "advanced"
)

// Config carries the derivation limits read from the reasoner config.
type Config struct {
	InferenceThreshold float64
	MaxDerivationDepth uint32
	TemporalHorizon    int
}

// ApplicationReport is delivered to the cognitive executive after every rule
// application.
type ApplicationReport struct {
	Rule    string
	Success bool
	Cost    time.Duration
	Value   float64
}

// Context bundles the collaborators a rule action may touch. Rules reach
// state only through the store and propagator, never through direct edge
// references.
type Context struct {
	Store           *storage.Hypergraph
	Propagator      *scheduler.Propagator
	DerivationCache *storage.DerivationCache
	Memo            *storage.Memoization
	Clock           types.Clock
	Config          Config
	Logger          zerolog.Logger

	// RuleScale lets the cognitive executive modulate selection weights.
	RuleScale func(rule string) float64
	// OnApplication reports rule outcomes for meta-reasoning.
	OnApplication func(report ApplicationReport)
	// OnConcept feeds the concept-formation tracker.
	OnConcept func(target string, activation float64, budget types.Budget)
}

// Derivation describes one conclusion a rule wants to produce.
type Derivation struct {
	Rule             string
	Type             types.TermType
	Args             []*types.Term
	Truth            types.TruthValue
	BudgetFactor     float64
	ActivationFactor float64
	Premises         []string
}

// Derive checks memoization and the derivation cache, inserts the conclusion
// belief, updates both caches, and propagates a follow-up event. Returns
// whether a belief was inserted.
func (c *Context) Derive(ev *types.Event, d Derivation) bool {
	targetID := types.CanonicalID(d.Type, d.Args)
	childLength := ev.PathLength + 1

	memoKey := storage.MemoKey{Target: targetID, PathHash: ev.PathHash}
	if c.Memo.ShouldSkip(memoKey, childLength) {
		return false
	}
	cacheKey := derivationKey(d.Rule, targetID, d.Premises, ev.PathHash)
	if c.DerivationCache.Contains(cacheKey) {
		return false
	}

	belief := &types.Belief{
		Truth:     d.Truth.Clamped(),
		Budget:    ev.Budget.Scale(d.BudgetFactor),
		Premises:  d.Premises,
		DerivedBy: d.Rule,
	}
	if _, _, err := c.Store.Add(d.Type, d.Args, belief); err != nil {
		c.Logger.Warn().Err(err).Str("target", targetID).Msg("derivation insert failed")
		return false
	}

	c.Memo.Record(memoKey, childLength)
	c.DerivationCache.Add(cacheKey)

	c.Propagator.Propagate(ev.Child(targetID, d.Rule, d.ActivationFactor, d.BudgetFactor))
	if c.OnConcept != nil {
		c.OnConcept(targetID, ev.Activation*d.ActivationFactor, belief.Budget)
	}
	return true
}

func derivationKey(rule, target string, premises []string, pathHash uint64) string {
	return fmt.Sprintf("%s|%s|%s|%x", rule, target, strings.Join(premises, "&"), pathHash)
}

// Engine selects and applies rules to popped events.
type Engine struct {
	ctx     *Context
	rules   []*Rule
	byName  map[string]*Rule
	rng     *rand.Rand
	derived uint64
}

// NewEngine builds an engine with the default rule set for the given mode.
// The random source is seeded explicitly so runs can be reproduced.
func NewEngine(ctx *Context, ruleSet string, seed int64) *Engine {
	e := &Engine{
		ctx:    ctx,
		byName: make(map[string]*Rule),
		rng:    rand.New(rand.NewSource(seed)),
	}
	for _, r := range defaultRules(ruleSet) {
		e.Register(r)
	}
	return e
}

// Register adds a rule, keeping the registry sorted by priority descending.
func (e *Engine) Register(rule *Rule) {
	if existing, ok := e.byName[rule.Name]; ok {
		*existing = *rule
		return
	}
	e.rules = append(e.rules, rule)
	e.byName[rule.Name] = rule
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority > e.rules[j].Priority
	})
}

// Rule returns the named rule.
func (e *Engine) Rule(name string) (*Rule, bool) {
	r, ok := e.byName[name]
	return r, ok
}

// Rules returns the registry in priority order.
func (e *Engine) Rules() []*Rule {
	return e.rules
}

// SetEnabled toggles a rule.
func (e *Engine) SetEnabled(name string, enabled bool) bool {
	r, ok := e.byName[name]
	if ok {
		r.Enabled = enabled
	}
	return ok
}

// Derivations returns the count of successful rule applications.
func (e *Engine) Derivations() uint64 { return e.derived }

// Process applies one stochastically selected rule to the event's target
// edge. Errors and panics inside rule actions are contained: a single rule
// must never halt the reasoner.
func (e *Engine) Process(ev *types.Event) {
	if ev == nil || ev.Kind != types.EventPropagate {
		return
	}
	if ev.Activation < e.ctx.Config.InferenceThreshold {
		return
	}
	if ev.PathLength > e.ctx.Config.MaxDerivationDepth {
		return
	}
	edge, ok := e.ctx.Store.Get(ev.Target)
	if !ok {
		return
	}

	rule := e.selectRule(ev, edge)
	if rule == nil {
		return
	}

	sizeBefore := e.ctx.Store.Len()
	start := e.ctx.Clock.Now()
	e.apply(rule, ev, edge)
	cost := e.ctx.Clock.Now().Sub(start)

	success := e.ctx.Store.Len() > sizeBefore
	if success {
		e.derived++
	}

	rule.UsageCount++
	rule.LastUsed = e.ctx.Clock.Now()
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	rule.SuccessRate = rule.SuccessRate*0.9 + outcome*0.1

	if e.ctx.OnApplication != nil {
		value := 0.0
		if success {
			value = ev.Budget.Priority
		}
		e.ctx.OnApplication(ApplicationReport{
			Rule:    rule.Name,
			Success: success,
			Cost:    cost,
			Value:   value,
		})
	}
}

func (e *Engine) apply(rule *Rule, ev *types.Event, edge *types.Hyperedge) {
	defer func() {
		if r := recover(); r != nil {
			e.ctx.Logger.Error().
				Str("rule", rule.Name).
				Str("edge", edge.ID).
				Interface("panic", r).
				Msg("rule action panicked")
		}
	}()
	if err := rule.Action(e.ctx, ev, edge); err != nil {
		e.ctx.Logger.Warn().Err(err).
			Str("rule", rule.Name).
			Str("edge", edge.ID).
			Msg("rule action failed")
	}
}

// selectRule draws one active rule with probability proportional to
// priority scaled by the executive's rule factor. When the cumulative walk
// falls through (all weights zero or floating-point drift), the last active
// rule is chosen deterministically so the engine always makes progress.
func (e *Engine) selectRule(ev *types.Event, edge *types.Hyperedge) *Rule {
	var active []*Rule
	var weights []float64
	total := 0.0
	for _, r := range e.rules {
		if !r.Enabled || r.Condition == nil || !r.Condition(e.ctx, ev, edge) {
			continue
		}
		w := r.Priority
		if e.ctx.RuleScale != nil {
			w *= e.ctx.RuleScale(r.Name)
		}
		if w < 0 {
			w = 0
		}
		active = append(active, r)
		weights = append(weights, w)
		total += w
	}
	if len(active) == 0 {
		return nil
	}
	if total <= 0 {
		return active[len(active)-1]
	}
	draw := e.rng.Float64() * total
	acc := 0.0
	for i, r := range active {
		acc += weights[i]
		if draw < acc {
			return r
		}
	}
	return active[len(active)-1]
}
