package nar

import (
	"context"
	"time"

	"hypernars/internal/explain"
	"hypernars/internal/parser"
	"hypernars/internal/questions"
	"hypernars/internal/types"
	"hypernars/internal/validation"
)

// NALOptions tunes one NAL call.
type NALOptions struct {
	// Source tags the belief's provenance for reliability tracking.
	Source string
	// Context tags evidence attached to the belief.
	Context string
}

// NAL ingests one statement. Assertions are stored and seeded into the
// scheduler; questions are registered and their id returned.
func (r *Reasoner) NAL(text string, opts ...NALOptions) (string, error) {
	var opt NALOptions
	if len(opts) > 0 {
		opt = opts[0]
	}

	stmt, err := parser.Parse(text)
	if err != nil {
		return "", err
	}
	if stmt.IsQuestion {
		future, err := r.Ask(text, AskOptions{})
		if err != nil {
			return "", err
		}
		return future.ID, nil
	}

	edgeType, args := edgeForm(stmt.Term)

	truth := types.DefaultTruth()
	if stmt.Truth != nil {
		truth = *stmt.Truth
	}
	budget := types.DefaultBudget()
	if stmt.Priority != nil {
		truth.Priority = *stmt.Priority
		budget.Priority = *stmt.Priority
	}

	belief := &types.Belief{
		Truth:  truth,
		Budget: budget,
		Source: opt.Source,
	}
	id, res, err := r.store.Add(edgeType, args, belief)
	if err != nil {
		return "", err
	}
	if opt.Source != "" || opt.Context != "" {
		_ = r.store.AddEvidence(id, &types.Evidence{
			BeliefID: res.Belief.ID,
			Source:   opt.Source,
			Strength: truth.Expectation(),
			Context:  opt.Context,
		})
	}

	r.propagator.Propagate(&types.Event{
		Target:     id,
		Activation: 1.0,
		Budget:     budget,
		Kind:       types.EventPropagate,
	})
	return id, nil
}

// edgeForm maps a parsed term onto an edge type and argument tuple. Bare
// atoms and variables become unary Term edges.
func edgeForm(term *types.Term) (types.TermType, []*types.Term) {
	if term.IsCompound() {
		return term.Type, term.Args
	}
	return types.TermAtom, []*types.Term{term}
}

// AskOptions tunes one Ask call.
type AskOptions struct {
	Timeout        time.Duration
	MinExpectation float64
}

// Ask registers a question and returns its future. Fully bound patterns
// seed a maximum-priority propagation at the corresponding edge; patterns
// with variables are answered immediately from the argument index where
// possible, with derivation continuing in the background until the
// deadline.
func (r *Reasoner) Ask(text string, opts AskOptions) (*questions.Future, error) {
	stmt, err := parser.Parse(text)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = r.cfg.QuestionTimeout()
	}

	future := r.handler.Ask(text, stmt.Term, questions.Options{
		Timeout:        opts.Timeout,
		MinExpectation: opts.MinExpectation,
	})

	if !stmt.Term.HasVariable() {
		edgeType, args := edgeForm(stmt.Term)
		id := types.CanonicalID(edgeType, args)
		if edge, ok := r.store.Get(id); ok {
			if strongest := edge.StrongestBelief(); strongest != nil {
				r.handler.CheckAnswers(edge, strongest)
			}
		}
		r.propagator.Propagate(&types.Event{
			Target:     id,
			Activation: 1.0,
			Budget:     types.Budget{Priority: 1.0, Durability: 0.8, Quality: 0.8},
			Kind:       types.EventPropagate,
		})
		return future, nil
	}

	// Variable on one side: scan the argument index for the constant side.
	r.scanForAnswers(stmt.Term)
	return future, nil
}

// scanForAnswers feeds existing edges matching a variable pattern through
// the question handler.
func (r *Reasoner) scanForAnswers(pattern *types.Term) {
	if !pattern.IsCompound() {
		return
	}
	for _, arg := range pattern.Args {
		if arg.HasVariable() {
			continue
		}
		for _, id := range r.store.ByArg(arg.Canonical()) {
			edge, ok := r.store.Get(id)
			if !ok || !questions.Matches(pattern, edge) {
				continue
			}
			if strongest := edge.StrongestBelief(); strongest != nil {
				r.handler.CheckAnswers(edge, strongest)
			}
		}
	}
}

// ExpireQuestions services ask deadlines; hosts call it from their timer
// facility when the reasoner is idle.
func (r *Reasoner) ExpireQuestions() int {
	return r.handler.Expire()
}

// CachedAnswers returns the answers a timed-out question text had
// accumulated by its deadline; answers arriving later are not recorded.
func (r *Reasoner) CachedAnswers(text string) []types.Answer {
	return r.handler.CachedAnswers(text)
}

// QueryMatch is one pattern-match result.
type QueryMatch struct {
	EdgeID      string            `json:"edge_id"`
	Bindings    map[string]string `json:"bindings,omitempty"`
	Expectation float64           `json:"expectation"`
	Similarity  float32           `json:"similarity,omitempty"`
}

// QueryOptions tunes one Query call.
type QueryOptions struct {
	Limit          int
	MinExpectation float64
}

// Query matches a pattern against the store, binding variables. When
// nothing matches exactly and a semantic index is attached, near matches
// are returned instead.
func (r *Reasoner) Query(patternText string, opts QueryOptions) ([]QueryMatch, error) {
	stmt, err := parser.Parse(patternText)
	if err != nil {
		return nil, err
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	pattern := stmt.Term
	var matches []QueryMatch

	candidates := r.candidateIDs(pattern)
	for _, id := range candidates {
		edge, ok := r.store.Get(id)
		if !ok {
			continue
		}
		bindings, ok := unify(pattern, edge)
		if !ok {
			continue
		}
		expectation := edge.TruthExpectation()
		if expectation < opts.MinExpectation {
			continue
		}
		matches = append(matches, QueryMatch{
			EdgeID:      id,
			Bindings:    bindings,
			Expectation: expectation,
		})
		if len(matches) >= opts.Limit {
			break
		}
	}

	if len(matches) == 0 && r.semanticIndex != nil {
		hits, err := r.semanticIndex.Search(context.Background(), pattern.Canonical(), opts.Limit, 0.5)
		if err != nil {
			return nil, err
		}
		for _, hit := range hits {
			edge, ok := r.store.Get(hit.EdgeID)
			if !ok {
				continue
			}
			matches = append(matches, QueryMatch{
				EdgeID:      hit.EdgeID,
				Expectation: edge.TruthExpectation(),
				Similarity:  hit.Similarity,
			})
		}
	}
	return matches, nil
}

// candidateIDs narrows the match set using the indexes: constant arguments
// first, then the type index.
func (r *Reasoner) candidateIDs(pattern *types.Term) []string {
	if !pattern.IsCompound() {
		return r.store.ByArg(pattern.Canonical())
	}
	for _, arg := range pattern.Args {
		if !arg.HasVariable() {
			if ids := r.store.ByArg(arg.Canonical()); len(ids) > 0 {
				return ids
			}
		}
	}
	return r.store.ByType(pattern.Type)
}

// unify matches a pattern against an edge, accumulating variable bindings.
func unify(pattern *types.Term, edge *types.Hyperedge) (map[string]string, bool) {
	if !pattern.IsCompound() {
		if pattern.IsVariable() {
			return map[string]string{pattern.Name: edge.ID}, true
		}
		if pattern.Canonical() == edge.ID {
			return nil, true
		}
		return nil, false
	}
	if pattern.Type != edge.Type || len(pattern.Args) != len(edge.Args) {
		return nil, false
	}
	bindings := make(map[string]string)
	for i, p := range pattern.Args {
		if !unifyTerm(p, edge.Args[i], bindings) {
			return nil, false
		}
	}
	return bindings, true
}

func unifyTerm(pattern, value *types.Term, bindings map[string]string) bool {
	if pattern.IsVariable() {
		canonical := value.Canonical()
		if bound, ok := bindings[pattern.Name]; ok {
			return bound == canonical
		}
		bindings[pattern.Name] = canonical
		return true
	}
	if pattern.IsCompound() {
		if pattern.Type != value.Type || len(pattern.Args) != len(value.Args) {
			return false
		}
		for i, p := range pattern.Args {
			if !unifyTerm(p, value.Args[i], bindings) {
				return false
			}
		}
		return true
	}
	return pattern.Canonical() == value.Canonical()
}

// GetBeliefs returns the beliefs on an edge.
func (r *Reasoner) GetBeliefs(edgeID string) []*types.Belief {
	edge, ok := r.store.Get(edgeID)
	if !ok {
		return nil
	}
	return edge.Beliefs
}

// QueryBelief parses a statement and returns the strongest belief on its
// edge, or nil when absent.
func (r *Reasoner) QueryBelief(patternText string) (*types.Belief, error) {
	stmt, err := parser.Parse(patternText)
	if err != nil {
		return nil, err
	}
	edgeType, args := edgeForm(stmt.Term)
	edge, ok := r.store.Get(types.CanonicalID(edgeType, args))
	if !ok {
		return nil, nil
	}
	return edge.StrongestBelief(), nil
}

// GetContradictions lists unresolved contradiction records.
func (r *Reasoner) GetContradictions() []*validation.Record {
	return r.contradictions.Records()
}

// AnalyzeContradiction describes a recorded contradiction.
func (r *Reasoner) AnalyzeContradiction(edgeID string) (*validation.Analysis, error) {
	return r.contradictions.Analyze(edgeID)
}

// ResolveContradiction executes a strategy against an edge.
func (r *Reasoner) ResolveContradiction(edgeID, strategy string) (*validation.Resolution, error) {
	res, err := r.contradictions.Resolve(edgeID, strategy)
	if err == nil {
		r.resolvedContradictions++
	}
	return res, err
}

// SetSourceReliability records a source's reliability for contradiction
// weighting.
func (r *Reasoner) SetSourceReliability(source string, reliability float64) {
	r.contradictions.SetSourceReliability(source, reliability)
}

// Explain renders the derivation of an edge.
func (r *Reasoner) Explain(edgeID string, opts explain.Options) (string, error) {
	return r.explainer.Explain(edgeID, opts)
}

// ExplainTree returns the structured derivation tree of an edge.
func (r *Reasoner) ExplainTree(edgeID string, depth int) (*explain.Node, error) {
	return r.explainer.Tree(edgeID, depth)
}
