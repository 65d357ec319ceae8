// Package storage provides the canonical hypergraph store and its secondary
// indexes.
//
// The store is the exclusive owner of Hyperedge state. Every other component
// holds canonical edge id strings; retrieval returns deep copies so external
// code can never mutate store-owned memory. Mutation happens only through
// the store's methods, which keep all indexes consistent within the same
// call.
//
// Indexes maintained synchronously on add/remove:
//   - byType: edge ids per edge type
//   - byArg: trie over the string form of each top-level argument
//   - structural: edge ids per (type, arity) pair
package storage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"hypernars/internal/events"
	"hypernars/internal/types"
)

// ErrEdgeNotFound is returned when an operation names an absent edge.
var ErrEdgeNotFound = fmt.Errorf("edge not found")

// ErrInvariantViolation indicates internal corruption (an edge id that does
// not match its stored type and arguments). It should be unreachable.
type ErrInvariantViolation struct {
	EdgeID string
	Reason string
}

func (e *ErrInvariantViolation) Error() string {
	return fmt.Sprintf("internal invariant violation on %s: %s", e.EdgeID, e.Reason)
}

type structKey struct {
	Type  types.TermType
	Arity int
}

// ReviseResult describes the outcome of inserting a belief.
type ReviseResult struct {
	Belief                *types.Belief
	Merged                bool
	ContradictionDetected bool
}

// Hypergraph is the canonical belief store.
type Hypergraph struct {
	mu         sync.RWMutex
	edges      map[string]*types.Hyperedge
	byType     map[types.TermType]map[string]struct{}
	structural map[structKey]map[string]struct{}
	byArg      *argTrie

	beliefCapacity         int
	contradictionThreshold float64

	clock types.Clock
	bus   *events.Bus

	// onRevise is invoked after every successful revision, before the caller
	// regains control. The reasoner wires the question handler here.
	onRevise func(edge *types.Hyperedge, belief *types.Belief)
}

// Options configures a Hypergraph.
type Options struct {
	BeliefCapacity         int
	ContradictionThreshold float64
	Clock                  types.Clock
	Bus                    *events.Bus
}

// NewHypergraph creates an empty store.
func NewHypergraph(opts Options) *Hypergraph {
	if opts.BeliefCapacity <= 0 {
		opts.BeliefCapacity = 8
	}
	if opts.ContradictionThreshold <= 0 {
		opts.ContradictionThreshold = 0.7
	}
	if opts.Clock == nil {
		opts.Clock = types.SystemClock{}
	}
	if opts.Bus == nil {
		opts.Bus = events.NewBus()
	}
	return &Hypergraph{
		edges:                  make(map[string]*types.Hyperedge),
		byType:                 make(map[types.TermType]map[string]struct{}),
		structural:             make(map[structKey]map[string]struct{}),
		byArg:                  newArgTrie(),
		beliefCapacity:         opts.BeliefCapacity,
		contradictionThreshold: opts.ContradictionThreshold,
		clock:                  opts.Clock,
		bus:                    opts.Bus,
	}
}

// SetOnRevise installs the post-revision hook.
func (h *Hypergraph) SetOnRevise(fn func(edge *types.Hyperedge, belief *types.Belief)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onRevise = fn
}

// SetBeliefCapacity adjusts the per-edge belief bound. Existing edges are
// truncated lazily on their next revision.
func (h *Hypergraph) SetBeliefCapacity(capacity int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if capacity > 0 {
		h.beliefCapacity = capacity
	}
}

// BeliefCapacity returns the current per-edge belief bound.
func (h *Hypergraph) BeliefCapacity() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.beliefCapacity
}

// Add canonicalizes the id for (edgeType, args), inserts the edge if absent,
// registers it in all indexes, and revises in the belief.
func (h *Hypergraph) Add(edgeType types.TermType, args []*types.Term, belief *types.Belief) (string, ReviseResult, error) {
	id := types.CanonicalID(edgeType, args)
	return h.addWithID(id, edgeType, args, belief)
}

// AddWithID inserts under an explicit id. Used only by contradiction
// specialization, whose context-tagged ids deliberately extend the canonical
// format.
func (h *Hypergraph) AddWithID(id string, edgeType types.TermType, args []*types.Term, belief *types.Belief) (string, ReviseResult, error) {
	return h.addWithID(id, edgeType, args, belief)
}

func (h *Hypergraph) addWithID(id string, edgeType types.TermType, args []*types.Term, belief *types.Belief) (string, ReviseResult, error) {
	h.mu.Lock()
	if _, ok := h.edges[id]; !ok {
		edge := &types.Hyperedge{ID: id, Type: edgeType, Args: args}
		h.edges[id] = edge
		h.indexEdge(edge)
	}
	h.mu.Unlock()

	res, err := h.Revise(id, belief)
	return id, res, err
}

// Revise inserts a belief into an existing edge. A belief with identical
// premises and derivation merges through truth revision; anything else is
// appended. Beliefs are re-sorted by expectation-weighted priority and
// truncated to capacity. The returned flag reports whether
// opposing-frequency beliefs now coexist on the edge.
func (h *Hypergraph) Revise(edgeID string, belief *types.Belief) (ReviseResult, error) {
	if belief == nil {
		return ReviseResult{}, fmt.Errorf("revise %s: nil belief", edgeID)
	}

	h.mu.Lock()
	edge, ok := h.edges[edgeID]
	if !ok {
		h.mu.Unlock()
		return ReviseResult{}, fmt.Errorf("revise %s: %w", edgeID, ErrEdgeNotFound)
	}

	if belief.ID == "" {
		belief.ID = uuid.NewString()
	}
	if belief.Timestamp.IsZero() {
		belief.Timestamp = h.clock.Now()
	}
	belief.Truth = belief.Truth.Clamped()
	belief.Budget = belief.Budget.Clamped()

	res := ReviseResult{Belief: belief}
	for _, existing := range edge.Beliefs {
		if !existing.SameDerivation(belief) {
			continue
		}
		// Re-presenting the exact same evidence is a no-op on truth:
		// revision only fires when the same derivation brings new numbers.
		if existing.Truth != belief.Truth {
			existing.Truth = existing.Truth.Revision(belief.Truth)
		}
		existing.Budget = existing.Budget.Merge(belief.Budget)
		existing.Timestamp = belief.Timestamp
		res.Belief = existing
		res.Merged = true
		break
	}
	if !res.Merged {
		edge.Beliefs = append(edge.Beliefs, belief)
	}

	edge.SortBeliefs()
	evicted := edge.Truncate(h.beliefCapacity)
	for _, ev := range evicted {
		if ev == res.Belief {
			// The inserted belief itself fell off the end; it still existed
			// for the duration of the revision.
			res.Belief = ev
		}
	}

	res.ContradictionDetected = h.hasOpposingBeliefs(edge)
	onRevise := h.onRevise
	eventType := events.BeliefAdded
	if res.Merged {
		eventType = events.BeliefRevised
	}
	edgeView := edge.Clone()
	h.mu.Unlock()

	h.bus.Publish(events.Event{
		Type:      eventType,
		EdgeID:    edgeID,
		BeliefID:  res.Belief.ID,
		Rule:      res.Belief.DerivedBy,
		Timestamp: belief.Timestamp,
	})
	if onRevise != nil {
		onRevise(edgeView, res.Belief)
	}
	return res, nil
}

func (h *Hypergraph) hasOpposingBeliefs(edge *types.Hyperedge) bool {
	for i := 0; i < len(edge.Beliefs); i++ {
		for j := i + 1; j < len(edge.Beliefs); j++ {
			f1 := edge.Beliefs[i].Truth.Frequency
			f2 := edge.Beliefs[j].Truth.Frequency
			if absf(f1-f2) > h.contradictionThreshold {
				return true
			}
		}
	}
	return false
}

// AddEvidence attaches an external evidence record to an edge.
func (h *Hypergraph) AddEvidence(edgeID string, ev *types.Evidence) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	edge, ok := h.edges[edgeID]
	if !ok {
		return fmt.Errorf("add evidence %s: %w", edgeID, ErrEdgeNotFound)
	}
	edge.Evidence = append(edge.Evidence, ev)
	return nil
}

// Remove deletes the edge from the store and every index and emits
// knowledge-pruned.
func (h *Hypergraph) Remove(edgeID string) bool {
	h.mu.Lock()
	edge, ok := h.edges[edgeID]
	if !ok {
		h.mu.Unlock()
		return false
	}
	h.unindexEdge(edge)
	delete(h.edges, edgeID)
	h.mu.Unlock()

	h.bus.Publish(events.Event{
		Type:      events.KnowledgePruned,
		EdgeID:    edgeID,
		Timestamp: h.clock.Now(),
	})
	return true
}

// Get returns a deep copy of the edge.
func (h *Hypergraph) Get(edgeID string) (*types.Hyperedge, bool) {
	h.mu.RLock()
	edge, ok := h.edges[edgeID]
	h.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return edge.Clone(), true
}

// Has reports whether the edge exists.
func (h *Hypergraph) Has(edgeID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.edges[edgeID]
	return ok
}

// Len returns the number of stored edges.
func (h *Hypergraph) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.edges)
}

// EdgeIDs returns every stored edge id, sorted for determinism.
func (h *Hypergraph) EdgeIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.edges))
	for id := range h.edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ByType returns the ids of edges of the given type.
func (h *Hypergraph) ByType(t types.TermType) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return setToSlice(h.byType[t])
}

// ByArg returns the ids of edges referencing the argument (by string form)
// at any position.
func (h *Hypergraph) ByArg(arg string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byArg.Get(arg)
}

// SearchArg returns the ids of edges whose arguments start with prefix.
func (h *Hypergraph) SearchArg(prefix string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.byArg.Search(prefix)
}

// Structural returns the ids of edges with the given type and arity.
func (h *Hypergraph) Structural(t types.TermType, arity int) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return setToSlice(h.structural[structKey{Type: t, Arity: arity}])
}

// ReplaceBeliefs swaps an edge's belief list wholesale. Used by contradiction
// resolution strategies. An empty replacement deletes the edge.
func (h *Hypergraph) ReplaceBeliefs(edgeID string, beliefs []*types.Belief) error {
	h.mu.Lock()
	edge, ok := h.edges[edgeID]
	if !ok {
		h.mu.Unlock()
		return fmt.Errorf("replace beliefs %s: %w", edgeID, ErrEdgeNotFound)
	}
	if len(beliefs) == 0 {
		h.unindexEdge(edge)
		delete(h.edges, edgeID)
		h.mu.Unlock()
		h.bus.Publish(events.Event{Type: events.KnowledgePruned, EdgeID: edgeID, Timestamp: h.clock.Now()})
		return nil
	}
	edge.Beliefs = beliefs
	edge.SortBeliefs()
	edge.Truncate(h.beliefCapacity)
	h.mu.Unlock()
	return nil
}

// RemoveBelief deletes one belief; the edge itself is deleted when its last
// belief goes. Returns the number of beliefs remaining.
func (h *Hypergraph) RemoveBelief(edgeID, beliefID string) (int, error) {
	h.mu.Lock()
	edge, ok := h.edges[edgeID]
	if !ok {
		h.mu.Unlock()
		return 0, fmt.Errorf("remove belief %s: %w", edgeID, ErrEdgeNotFound)
	}
	kept := edge.Beliefs[:0]
	for _, b := range edge.Beliefs {
		if b.ID != beliefID {
			kept = append(kept, b)
		}
	}
	edge.Beliefs = kept
	remaining := len(edge.Beliefs)
	if remaining == 0 {
		h.unindexEdge(edge)
		delete(h.edges, edgeID)
		h.mu.Unlock()
		h.bus.Publish(events.Event{Type: events.KnowledgePruned, EdgeID: edgeID, Timestamp: h.clock.Now()})
		return 0, nil
	}
	h.mu.Unlock()
	return remaining, nil
}

// ReinforceBelief nudges the strongest belief's confidence toward 1 (delta
// positive) or toward 0 (delta negative). Used by outcome-driven learning.
func (h *Hypergraph) ReinforceBelief(edgeID string, delta float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	edge, ok := h.edges[edgeID]
	if !ok {
		return fmt.Errorf("reinforce %s: %w", edgeID, ErrEdgeNotFound)
	}
	if len(edge.Beliefs) == 0 {
		return &ErrInvariantViolation{EdgeID: edgeID, Reason: "empty belief list"}
	}
	b := edge.Beliefs[0]
	if delta >= 0 {
		b.Truth.Confidence += delta * (1 - b.Truth.Confidence)
	} else {
		b.Truth.Confidence *= 1 + delta
	}
	b.Truth = b.Truth.Clamped()
	edge.SortBeliefs()
	return nil
}

// DecayBudgets scales every belief budget by the factor. Called from memory
// maintenance.
func (h *Hypergraph) DecayBudgets(factor float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, edge := range h.edges {
		for _, b := range edge.Beliefs {
			b.Budget = b.Budget.Scale(factor)
		}
	}
}

// Snapshot returns deep copies of every edge, sorted by id.
func (h *Hypergraph) Snapshot() []*types.Hyperedge {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.edges))
	for id := range h.edges {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*types.Hyperedge, 0, len(ids))
	for _, id := range ids {
		out = append(out, h.edges[id].Clone())
	}
	return out
}

// Clear removes every edge and index entry.
func (h *Hypergraph) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.edges = make(map[string]*types.Hyperedge)
	h.byType = make(map[types.TermType]map[string]struct{})
	h.structural = make(map[structKey]map[string]struct{})
	h.byArg = newArgTrie()
}

// VerifyInvariants checks that every edge id matches its canonical form and
// appears in each relevant index. Intended for tests and debugging.
func (h *Hypergraph) VerifyInvariants() error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, edge := range h.edges {
		canonical := types.CanonicalID(edge.Type, edge.Args)
		// Specialized edges extend the canonical id with a context tag.
		if id != canonical && !isSpecializedID(id, canonical) {
			return &ErrInvariantViolation{EdgeID: id, Reason: fmt.Sprintf("canonical form is %s", canonical)}
		}
		if _, ok := h.byType[edge.Type][id]; !ok {
			return &ErrInvariantViolation{EdgeID: id, Reason: "missing from byType index"}
		}
		key := structKey{Type: edge.Type, Arity: len(edge.Args)}
		if _, ok := h.structural[key][id]; !ok {
			return &ErrInvariantViolation{EdgeID: id, Reason: "missing from structural index"}
		}
		if len(edge.Beliefs) == 0 {
			return &ErrInvariantViolation{EdgeID: id, Reason: "empty belief list"}
		}
	}
	return nil
}

func isSpecializedID(id, canonical string) bool {
	return len(id) > len(canonical) && id[:len(canonical)] == canonical && id[len(canonical)] == '|'
}

func (h *Hypergraph) indexEdge(edge *types.Hyperedge) {
	if h.byType[edge.Type] == nil {
		h.byType[edge.Type] = make(map[string]struct{})
	}
	h.byType[edge.Type][edge.ID] = struct{}{}

	key := structKey{Type: edge.Type, Arity: len(edge.Args)}
	if h.structural[key] == nil {
		h.structural[key] = make(map[string]struct{})
	}
	h.structural[key][edge.ID] = struct{}{}

	for _, arg := range edge.Args {
		h.byArg.Insert(arg.Canonical(), edge.ID)
	}
}

func (h *Hypergraph) unindexEdge(edge *types.Hyperedge) {
	if set := h.byType[edge.Type]; set != nil {
		delete(set, edge.ID)
		if len(set) == 0 {
			delete(h.byType, edge.Type)
		}
	}
	key := structKey{Type: edge.Type, Arity: len(edge.Args)}
	if set := h.structural[key]; set != nil {
		delete(set, edge.ID)
		if len(set) == 0 {
			delete(h.structural, key)
		}
	}
	for _, arg := range edge.Args {
		h.byArg.Remove(arg.Canonical(), edge.ID)
	}
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
