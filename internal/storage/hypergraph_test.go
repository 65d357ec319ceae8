package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypernars/internal/types"
)

func testGraph(t *testing.T) *Hypergraph {
	t.Helper()
	return NewHypergraph(Options{
		BeliefCapacity:         3,
		ContradictionThreshold: 0.7,
		Clock:                  types.NewFrozenClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)),
	})
}

func inheritance(a, b string) (types.TermType, []*types.Term) {
	return types.Inheritance, []*types.Term{types.Atom(a), types.Atom(b)}
}

func belief(f, c float64) *types.Belief {
	return &types.Belief{
		Truth:  types.TruthValue{Frequency: f, Confidence: c},
		Budget: types.Budget{Priority: 0.8, Durability: 0.8, Quality: 0.5},
	}
}

func TestAddCanonicalizesAndIndexes(t *testing.T) {
	h := testGraph(t)
	et, args := inheritance("a", "b")
	id, res, err := h.Add(et, args, belief(1.0, 0.9))
	require.NoError(t, err)
	assert.Equal(t, "Inheritance(a,b)", id)
	assert.False(t, res.Merged)

	assert.True(t, h.Has(id))
	assert.Contains(t, h.ByType(types.Inheritance), id)
	assert.Contains(t, h.ByArg("a"), id)
	assert.Contains(t, h.ByArg("b"), id)
	assert.Contains(t, h.Structural(types.Inheritance, 2), id)
	require.NoError(t, h.VerifyInvariants())
}

func TestReviseIdempotentOnIdenticalBelief(t *testing.T) {
	h := testGraph(t)
	et, args := inheritance("a", "b")
	id, _, err := h.Add(et, args, belief(0.8, 0.5))
	require.NoError(t, err)

	// Re-presenting the exact same evidence changes nothing.
	res, err := h.Revise(id, belief(0.8, 0.5))
	require.NoError(t, err)
	assert.True(t, res.Merged)

	edge, ok := h.Get(id)
	require.True(t, ok)
	require.Len(t, edge.Beliefs, 1)
	assert.InDelta(t, 0.5, edge.Beliefs[0].Truth.Confidence, 1e-9)
	assert.InDelta(t, 0.8, edge.Beliefs[0].Truth.Frequency, 1e-9)
}

func TestReviseMergesNewEvidenceFromSameDerivation(t *testing.T) {
	h := testGraph(t)
	et, args := inheritance("a", "b")
	id, _, err := h.Add(et, args, belief(0.8, 0.5))
	require.NoError(t, err)

	res, err := h.Revise(id, belief(0.8, 0.6))
	require.NoError(t, err)
	assert.True(t, res.Merged)

	edge, _ := h.Get(id)
	require.Len(t, edge.Beliefs, 1)
	// c' = 1-(1-0.5)(1-0.6)
	assert.InDelta(t, 0.8, edge.Beliefs[0].Truth.Confidence, 1e-9)
}

func TestReviseKeepsDistinctDerivations(t *testing.T) {
	h := testGraph(t)
	et, args := inheritance("a", "b")
	id, _, err := h.Add(et, args, belief(0.9, 0.6))
	require.NoError(t, err)

	b2 := belief(0.9, 0.6)
	b2.DerivedBy = "transitivity"
	b2.Premises = []string{"Inheritance(a,m)", "Inheritance(m,b)"}
	_, err = h.Revise(id, b2)
	require.NoError(t, err)

	edge, _ := h.Get(id)
	assert.Len(t, edge.Beliefs, 2)
}

func TestCapacityEvictsLowestRanked(t *testing.T) {
	h := testGraph(t)
	et, args := inheritance("a", "b")
	id, _, err := h.Add(et, args, belief(1.0, 0.9))
	require.NoError(t, err)
	for i, p := range []float64{0.9, 0.7, 0.5, 0.3} {
		b := belief(1.0, 0.9)
		b.Budget.Priority = p
		b.DerivedBy = "transitivity"
		b.Premises = []string{string(rune('p' + i))}
		_, err = h.Revise(id, b)
		require.NoError(t, err)
	}
	edge, _ := h.Get(id)
	assert.Len(t, edge.Beliefs, 3)
	// Beliefs stay sorted by rank.
	for i := 1; i < len(edge.Beliefs); i++ {
		assert.GreaterOrEqual(t, edge.Beliefs[i-1].Rank(), edge.Beliefs[i].Rank())
	}
}

func TestContradictionSignalOnOpposingFrequencies(t *testing.T) {
	h := testGraph(t)
	et, args := inheritance("tweety", "flyer")
	id, res, err := h.Add(et, args, belief(0.95, 0.9))
	require.NoError(t, err)
	assert.False(t, res.ContradictionDetected)

	opposing := belief(0.05, 0.9)
	opposing.DerivedBy = "induction"
	res, err = h.Revise(id, opposing)
	require.NoError(t, err)
	assert.True(t, res.ContradictionDetected)
}

func TestRemoveCleansIndexes(t *testing.T) {
	h := testGraph(t)
	et, args := inheritance("a", "b")
	id, _, err := h.Add(et, args, belief(1.0, 0.9))
	require.NoError(t, err)

	assert.True(t, h.Remove(id))
	assert.False(t, h.Has(id))
	assert.Empty(t, h.ByType(types.Inheritance))
	assert.Empty(t, h.ByArg("a"))
	assert.Empty(t, h.Structural(types.Inheritance, 2))
	assert.False(t, h.Remove(id))
}

func TestRemoveBeliefDeletesEmptyEdge(t *testing.T) {
	h := testGraph(t)
	et, args := inheritance("a", "b")
	id, res, err := h.Add(et, args, belief(1.0, 0.9))
	require.NoError(t, err)

	remaining, err := h.RemoveBelief(id, res.Belief.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
	assert.False(t, h.Has(id))
}

func TestOnReviseHookSeesSortedBeliefs(t *testing.T) {
	h := testGraph(t)
	var sawEdge string
	var sawBelief string
	h.SetOnRevise(func(edge *types.Hyperedge, b *types.Belief) {
		sawEdge = edge.ID
		sawBelief = b.ID
	})
	et, args := inheritance("sky", "blue")
	id, res, err := h.Add(et, args, belief(1.0, 0.9))
	require.NoError(t, err)
	assert.Equal(t, id, sawEdge)
	assert.Equal(t, res.Belief.ID, sawBelief)
}

func TestArgTrieSearch(t *testing.T) {
	h := testGraph(t)
	for _, pair := range [][2]string{{"sparrow", "bird"}, {"spider", "arachnid"}, {"cat", "mammal"}} {
		et, args := inheritance(pair[0], pair[1])
		_, _, err := h.Add(et, args, belief(1.0, 0.9))
		require.NoError(t, err)
	}
	hits := h.SearchArg("sp")
	assert.Len(t, hits, 2)
	assert.Empty(t, h.SearchArg("zebra"))
}

func TestDerivationCacheLRU(t *testing.T) {
	c := NewDerivationCache(2)
	c.Add("a")
	c.Add("b")
	assert.True(t, c.Contains("a")) // refreshes a
	c.Add("c")                      // evicts b
	assert.False(t, c.Contains("b"))
	assert.True(t, c.Contains("a"))
	assert.True(t, c.Contains("c"))
}

func TestMemoizationSkipsLongerPaths(t *testing.T) {
	m := NewMemoization()
	key := MemoKey{Target: "Inheritance(a,c)", PathHash: 42}
	assert.False(t, m.ShouldSkip(key, 3))
	m.Record(key, 3)
	assert.True(t, m.ShouldSkip(key, 3))
	assert.True(t, m.ShouldSkip(key, 5))
	assert.False(t, m.ShouldSkip(key, 2))
	m.Record(key, 2)
	assert.True(t, m.ShouldSkip(key, 2))
}

func TestSnapshotRoundTrip(t *testing.T) {
	h := testGraph(t)
	et, args := inheritance("a", "b")
	_, _, err := h.Add(et, args, belief(0.9, 0.8))
	require.NoError(t, err)
	et2, args2 := inheritance("b", "c")
	_, _, err = h.Add(et2, args2, belief(1.0, 0.9))
	require.NoError(t, err)

	blob, err := EncodeState(h, 17, nil, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	state, err := DecodeState(blob)
	require.NoError(t, err)
	assert.Equal(t, uint64(17), state.CurrentStep)
	require.Len(t, state.Hypergraph, 2)
	assert.Equal(t, "Inheritance(a,b)", state.Hypergraph[0].ID)
}

func TestDecodeStateRejectsBadInput(t *testing.T) {
	_, err := DecodeState([]byte("not json"))
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = DecodeState([]byte(`{"version":"9.9","hypergraph":[]}`))
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = DecodeState([]byte(`{"version":"1.0"}`))
	assert.ErrorIs(t, err, ErrInvalidState)
}
