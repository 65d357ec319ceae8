package reasoning

import (
	"time"

	"hypernars/internal/types"
)

// Rule couples a firing condition with a derivation action. Rules carry the
// learned statistics that bias stochastic selection.
type Rule struct {
	Name        string
	Condition   func(ctx *Context, ev *types.Event, edge *types.Hyperedge) bool
	Action      func(ctx *Context, ev *types.Event, edge *types.Hyperedge) error
	Priority    float64
	SuccessRate float64
	UsageCount  int
	LastUsed    time.Time
	Enabled     bool
}

func typeCondition(t types.TermType) func(*Context, *types.Event, *types.Hyperedge) bool {
	return func(_ *Context, _ *types.Event, edge *types.Hyperedge) bool {
		return edge.Type == t
	}
}

// maxSiblings bounds induction fan-out per event.
const maxSiblings = 8

// defaultRules builds the rule set for the given mode. Simple mode registers
// transitivity, symmetry, and detachment; advanced adds equivalence
// expansion, conjunction decomposition, and temporal composition.
func defaultRules(ruleSet string) []*Rule {
	rules := []*Rule{
		{
			Name:      "inheritance-transitivity",
			Condition: typeCondition(types.Inheritance),
			Action:    actInheritance,
			Priority:  0.9,
			Enabled:   true,
		},
		{
			Name:      "similarity-symmetry",
			Condition: typeCondition(types.Similarity),
			Action:    actSimilarity,
			Priority:  0.8,
			Enabled:   true,
		},
		{
			Name:      "implication-detachment",
			Condition: typeCondition(types.Implication),
			Action:    actImplication,
			Priority:  0.85,
			Enabled:   true,
		},
	}
	if ruleSet != RuleSetSimple {
		rules = append(rules,
			&Rule{
				Name:      "equivalence-expansion",
				Condition: typeCondition(types.Equivalence),
				Action:    actEquivalence,
				Priority:  0.7,
				Enabled:   true,
			},
			&Rule{
				Name:      "conjunction-decomposition",
				Condition: typeCondition(types.Conjunction),
				Action:    actConjunction,
				Priority:  0.6,
				Enabled:   true,
			},
			&Rule{
				Name:      "temporal-composition",
				Condition: typeCondition(types.TemporalRelation),
				Action:    actTemporal,
				Priority:  0.7,
				Enabled:   true,
			},
		)
	}
	return rules
}

// actInheritance handles an Inheritance(subject, predicate) event: backward
// transitive chaining, re-activation of the analogy base, property
// inheritance, and induction with siblings sharing the predicate.
func actInheritance(ctx *Context, ev *types.Event, edge *types.Hyperedge) error {
	subject, predicate := edge.Args[0], edge.Args[1]
	this := edge.StrongestBelief()
	if this == nil {
		return nil
	}

	// Transitivity: for each (P --> Q) with Q equal to this edge's subject,
	// derive (P --> predicate).
	for _, otherID := range ctx.Store.ByArg(subject.Canonical()) {
		if otherID == edge.ID {
			continue
		}
		other, ok := ctx.Store.Get(otherID)
		if !ok || other.Type != types.Inheritance || len(other.Args) != 2 {
			continue
		}
		if !other.Args[1].Equal(subject) {
			continue
		}
		premise := other.StrongestBelief()
		if premise == nil {
			continue
		}
		ctx.Derive(ev, Derivation{
			Rule:             "inheritance-transitivity",
			Type:             types.Inheritance,
			Args:             []*types.Term{other.Args[0], predicate},
			Truth:            premise.Truth.Transitive(this.Truth),
			BudgetFactor:     0.7,
			ActivationFactor: 0.9,
			Premises:         []string{otherID, edge.ID},
		})
	}

	// Structural decomposition of product predicates: a compound predicate
	// distributes over its components, negated components flip frequency.
	if predicate.Type == types.Product {
		for _, component := range predicate.Args {
			target := component
			truth := this.Truth
			if component.Type == types.Negation && len(component.Args) == 1 {
				target = component.Args[0]
				truth = truth.Negation()
			}
			ctx.Derive(ev, Derivation{
				Rule:             "inheritance-transitivity",
				Type:             types.Inheritance,
				Args:             []*types.Term{subject, target},
				Truth:            truth,
				BudgetFactor:     0.8,
				ActivationFactor: 0.9,
				Premises:         []string{edge.ID},
			})
		}
	}

	// Re-enqueue the analogy base so similarity bridges stay active.
	simID := types.CanonicalID(types.Similarity, []*types.Term{subject, predicate})
	if ctx.Store.Has(simID) {
		ctx.Propagator.Propagate(ev.Child(simID, "inheritance-transitivity", 0.9, 0.9))
	}

	// Property inheritance: subject inherits the predicate's properties.
	for _, propID := range ctx.Store.ByArg(predicate.Canonical()) {
		prop, ok := ctx.Store.Get(propID)
		if !ok || prop.Type != types.Property || len(prop.Args) != 2 {
			continue
		}
		if !prop.Args[0].Equal(predicate) {
			continue
		}
		propBelief := prop.StrongestBelief()
		if propBelief == nil {
			continue
		}
		ctx.Derive(ev, Derivation{
			Rule:             "inheritance-transitivity",
			Type:             types.Property,
			Args:             []*types.Term{subject, prop.Args[1]},
			Truth:            this.Truth.Analogy(propBelief.Truth),
			BudgetFactor:     0.6,
			ActivationFactor: 0.9,
			Premises:         []string{edge.ID, propID},
		})
	}

	// Induction: siblings sharing the predicate suggest similarity.
	siblings := 0
	for _, sibID := range ctx.Store.ByArg(predicate.Canonical()) {
		if sibID == edge.ID {
			continue
		}
		sib, ok := ctx.Store.Get(sibID)
		if !ok || sib.Type != types.Inheritance || len(sib.Args) != 2 {
			continue
		}
		if !sib.Args[1].Equal(predicate) || sib.Args[0].Equal(subject) {
			continue
		}
		sibBelief := sib.StrongestBelief()
		if sibBelief == nil {
			continue
		}
		ctx.Derive(ev, Derivation{
			Rule:             "inheritance-transitivity",
			Type:             types.Similarity,
			Args:             []*types.Term{subject, sib.Args[0]},
			Truth:            this.Truth.Induction(sibBelief.Truth),
			BudgetFactor:     0.6,
			ActivationFactor: 0.8,
			Premises:         []string{edge.ID, sibID},
		})
		siblings++
		if siblings >= maxSiblings {
			break
		}
	}
	return nil
}

// actSimilarity handles Similarity(a, b): symmetry plus analogy over the
// inheritance statements of a.
func actSimilarity(ctx *Context, ev *types.Event, edge *types.Hyperedge) error {
	a, b := edge.Args[0], edge.Args[1]
	this := edge.StrongestBelief()
	if this == nil {
		return nil
	}

	// Symmetry: Similarity(b, a).
	ctx.Derive(ev, Derivation{
		Rule:             "similarity-symmetry",
		Type:             types.Similarity,
		Args:             []*types.Term{b, a},
		Truth:            this.Truth,
		BudgetFactor:     0.9,
		ActivationFactor: 1.0,
		Premises:         []string{edge.ID},
	})

	// Analogy: for each Inheritance(a, x), derive Inheritance(b, x).
	for _, inhID := range ctx.Store.ByArg(a.Canonical()) {
		inh, ok := ctx.Store.Get(inhID)
		if !ok || inh.Type != types.Inheritance || len(inh.Args) != 2 {
			continue
		}
		if !inh.Args[0].Equal(a) {
			continue
		}
		inhBelief := inh.StrongestBelief()
		if inhBelief == nil {
			continue
		}
		ctx.Derive(ev, Derivation{
			Rule:             "similarity-symmetry",
			Type:             types.Inheritance,
			Args:             []*types.Term{b, inh.Args[1]},
			Truth:            inhBelief.Truth.Analogy(this.Truth),
			BudgetFactor:     0.6,
			ActivationFactor: 0.9,
			Premises:         []string{edge.ID, inhID},
		})
	}
	return nil
}

// actImplication handles Implication(premise, conclusion): when the premise
// edge is present, the conclusion is detached and activation flows to it.
func actImplication(ctx *Context, ev *types.Event, edge *types.Hyperedge) error {
	premise, conclusion := edge.Args[0], edge.Args[1]
	this := edge.StrongestBelief()
	if this == nil {
		return nil
	}

	premiseID := premise.Canonical()
	premiseEdge, ok := ctx.Store.Get(premiseID)
	if !ok {
		return nil
	}
	premiseBelief := premiseEdge.StrongestBelief()
	if premiseBelief == nil {
		return nil
	}

	if conclusion.IsCompound() && conclusion.Type != types.Negation {
		ctx.Derive(ev, Derivation{
			Rule:             "implication-detachment",
			Type:             conclusion.Type,
			Args:             conclusion.Args,
			Truth:            premiseBelief.Truth.Transitive(this.Truth),
			BudgetFactor:     0.75,
			ActivationFactor: 0.9,
			Premises:         []string{premiseID, edge.ID},
		})
		return nil
	}

	// Atomic conclusions only receive activation.
	ctx.Propagator.Propagate(ev.Child(conclusion.Canonical(), "implication-detachment", 0.9, 0.75))
	return nil
}

// actEquivalence expands Equivalence(a, b) into both implications,
// inheriting the truth value.
func actEquivalence(ctx *Context, ev *types.Event, edge *types.Hyperedge) error {
	a, b := edge.Args[0], edge.Args[1]
	this := edge.StrongestBelief()
	if this == nil {
		return nil
	}
	ctx.Derive(ev, Derivation{
		Rule:             "equivalence-expansion",
		Type:             types.Implication,
		Args:             []*types.Term{a, b},
		Truth:            this.Truth,
		BudgetFactor:     0.9,
		ActivationFactor: 0.9,
		Premises:         []string{edge.ID},
	})
	ctx.Derive(ev, Derivation{
		Rule:             "equivalence-expansion",
		Type:             types.Implication,
		Args:             []*types.Term{b, a},
		Truth:            this.Truth,
		BudgetFactor:     0.9,
		ActivationFactor: 0.9,
		Premises:         []string{edge.ID},
	})
	return nil
}

// actConjunction spreads activation to each conjunct.
func actConjunction(ctx *Context, ev *types.Event, edge *types.Hyperedge) error {
	for _, conjunct := range edge.Args {
		ctx.Propagator.Propagate(ev.Child(conjunct.Canonical(), "conjunction-decomposition", 0.9, 0.9))
	}
	return nil
}

// actTemporal composes TemporalRelation(a, b, rel) with stored relations
// leaving b, bounded by the temporal horizon.
func actTemporal(ctx *Context, ev *types.Event, edge *types.Hyperedge) error {
	if len(edge.Args) != 3 {
		return nil
	}
	if ev.PathLength > uint32(ctx.Config.TemporalHorizon) {
		return nil
	}
	a, b, relTerm := edge.Args[0], edge.Args[1], edge.Args[2]
	rel1 := relTerm.Name
	if !IsAllenRelation(rel1) {
		return nil
	}
	this := edge.StrongestBelief()
	if this == nil {
		return nil
	}

	for _, otherID := range ctx.Store.ByArg(b.Canonical()) {
		if otherID == edge.ID {
			continue
		}
		other, ok := ctx.Store.Get(otherID)
		if !ok || other.Type != types.TemporalRelation || len(other.Args) != 3 {
			continue
		}
		if !other.Args[0].Equal(b) {
			continue
		}
		rel2 := other.Args[2].Name
		composed := ComposeRelations(rel1, rel2)
		if len(composed) == 0 {
			continue
		}
		otherBelief := other.StrongestBelief()
		if otherBelief == nil {
			continue
		}
		// The first relation in the composition is the strongest candidate;
		// weaker alternatives share the evidence and would dilute it.
		ctx.Derive(ev, Derivation{
			Rule:             "temporal-composition",
			Type:             types.TemporalRelation,
			Args:             []*types.Term{a, other.Args[1], types.Atom(composed[0])},
			Truth:            this.Truth.Transitive(otherBelief.Truth),
			BudgetFactor:     0.7,
			ActivationFactor: 0.9,
			Premises:         []string{edge.ID, otherID},
		})
	}
	return nil
}
