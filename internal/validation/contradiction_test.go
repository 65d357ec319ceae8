package validation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypernars/internal/events"
	"hypernars/internal/storage"
	"hypernars/internal/types"
)

type fixture struct {
	store *storage.Hypergraph
	mgr   *Manager
	clock *types.FrozenClock
	bus   *events.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := types.NewFrozenClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	bus := events.NewBus()
	store := storage.NewHypergraph(storage.Options{BeliefCapacity: 8, Clock: clock, Bus: bus})
	return &fixture{
		store: store,
		mgr:   NewManager(store, bus, clock, DefaultConfig()),
		clock: clock,
		bus:   bus,
	}
}

func (f *fixture) contradictoryEdge(t *testing.T) string {
	t.Helper()
	id, _, err := f.store.Add(types.Inheritance,
		[]*types.Term{types.Atom("tweety"), types.Atom("flyer")},
		&types.Belief{Truth: types.TruthValue{Frequency: 0.95, Confidence: 0.9}, Budget: types.DefaultBudget()})
	require.NoError(t, err)
	_, err = f.store.Revise(id, &types.Belief{
		Truth:     types.TruthValue{Frequency: 0.05, Confidence: 0.9},
		Budget:    types.DefaultBudget(),
		DerivedBy: "induction",
	})
	require.NoError(t, err)
	return id
}

func TestDetectStrongContradiction(t *testing.T) {
	f := newFixture(t)
	var published []events.Event
	f.bus.Subscribe(events.ContradictionDetected, func(ev events.Event) {
		published = append(published, ev)
	})

	id := f.contradictoryEdge(t)
	rec := f.mgr.Detect(id)
	require.NotNil(t, rec)
	assert.Len(t, rec.Pairs, 1)
	assert.False(t, rec.Resolved)
	assert.Greater(t, rec.Severity(), 0.7)
	assert.Len(t, published, 1)
}

func TestDetectWeakContradictionPath(t *testing.T) {
	f := newFixture(t)
	id, _, err := f.store.Add(types.Inheritance,
		[]*types.Term{types.Atom("a"), types.Atom("b")},
		&types.Belief{Truth: types.TruthValue{Frequency: 0.9, Confidence: 0.95}, Budget: types.DefaultBudget()})
	require.NoError(t, err)
	_, err = f.store.Revise(id, &types.Belief{
		Truth:     types.TruthValue{Frequency: 0.5, Confidence: 0.3},
		Budget:    types.DefaultBudget(),
		DerivedBy: "induction",
	})
	require.NoError(t, err)

	// |f gap|=0.4 > 0.3, |c gap|=0.65 > 0.4, avg conf 0.625 > 0.5.
	rec := f.mgr.Detect(id)
	require.NotNil(t, rec)
}

func TestDetectNoContradictionOnAgreement(t *testing.T) {
	f := newFixture(t)
	id, _, err := f.store.Add(types.Inheritance,
		[]*types.Term{types.Atom("a"), types.Atom("b")},
		&types.Belief{Truth: types.TruthValue{Frequency: 0.9, Confidence: 0.9}, Budget: types.DefaultBudget()})
	require.NoError(t, err)
	assert.Nil(t, f.mgr.Detect(id))
}

func TestResolveDominantEvidence(t *testing.T) {
	f := newFixture(t)
	id := f.contradictoryEdge(t)
	require.NotNil(t, f.mgr.Detect(id))

	res, err := f.mgr.Resolve(id, StrategyDominantEvidence)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	edge, ok := f.store.Get(id)
	require.True(t, ok)
	assert.Len(t, edge.Beliefs, 1)
	assert.InDelta(t, 0.95, edge.Beliefs[0].Truth.Frequency, 1e-9)
}

func TestResolveMergePenalizesConfidence(t *testing.T) {
	f := newFixture(t)
	id := f.contradictoryEdge(t)
	require.NotNil(t, f.mgr.Detect(id))

	res, err := f.mgr.Resolve(id, StrategyMerge)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	edge, _ := f.store.Get(id)
	require.Len(t, edge.Beliefs, 1)
	merged := edge.Beliefs[0]
	// Revision c' = 1-(1-.9)(1-.9) = .99, then x0.8.
	assert.InDelta(t, 0.792, merged.Truth.Confidence, 1e-9)
	assert.InDelta(t, 0.5, merged.Truth.Frequency, 1e-9)
}

func TestResolveRecencyKeepsNewest(t *testing.T) {
	f := newFixture(t)
	id, _, err := f.store.Add(types.Inheritance,
		[]*types.Term{types.Atom("a"), types.Atom("b")},
		&types.Belief{Truth: types.TruthValue{Frequency: 0.9, Confidence: 0.9}, Budget: types.DefaultBudget()})
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	_, err = f.store.Revise(id, &types.Belief{
		Truth:     types.TruthValue{Frequency: 0.1, Confidence: 0.9},
		Budget:    types.DefaultBudget(),
		DerivedBy: "observation",
	})
	require.NoError(t, err)

	res, err := f.mgr.Resolve(id, StrategyRecencyBiased)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	edge, _ := f.store.Get(id)
	require.Len(t, edge.Beliefs, 1)
	assert.InDelta(t, 0.1, edge.Beliefs[0].Truth.Frequency, 1e-9)
}

func TestResolveSpecializeCreatesContextEdge(t *testing.T) {
	f := newFixture(t)
	id := f.contradictoryEdge(t)
	edge, _ := f.store.Get(id)
	// Light evidence tags the weaker belief without making it the stronger.
	require.NoError(t, f.store.AddEvidence(id, &types.Evidence{
		BeliefID: edge.Beliefs[1].ID,
		Source:   "fieldwork",
		Strength: 0.05,
		Context:  "antarctica",
	}))

	res, err := f.mgr.Resolve(id, StrategySpecialize)
	require.NoError(t, err)
	assert.True(t, res.Applied)
	assert.Equal(t, id+"|context:antarctica", res.NewEdgeID)

	assert.True(t, f.store.Has(res.NewEdgeID))
	edge, _ = f.store.Get(id)
	assert.Len(t, edge.Beliefs, 1)

	// The linking similarity edge exists at (0.8, 0.8).
	simID := types.CanonicalID(types.Similarity,
		[]*types.Term{types.Atom(res.NewEdgeID), types.Atom(id)})
	sim, ok := f.store.Get(simID)
	require.True(t, ok)
	assert.InDelta(t, 0.8, sim.StrongestBelief().Truth.Frequency, 1e-9)
}

func TestResolveEvidenceWeighted(t *testing.T) {
	f := newFixture(t)
	id := f.contradictoryEdge(t)

	res, err := f.mgr.Resolve(id, StrategyEvidenceWeighted)
	require.NoError(t, err)
	assert.True(t, res.Applied)

	edge, _ := f.store.Get(id)
	require.Len(t, edge.Beliefs, 1)
	assert.Equal(t, "evidence-weighted", edge.Beliefs[0].DerivedBy)
}

func TestResolveUnknownStrategy(t *testing.T) {
	f := newFixture(t)
	id := f.contradictoryEdge(t)

	_, err := f.mgr.Resolve(id, "coin-flip")
	var unknown *ErrUnknownStrategy
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "coin-flip", unknown.Strategy)
}

func TestSelectStrategyDominant(t *testing.T) {
	f := newFixture(t)
	id := f.contradictoryEdge(t)
	edge, _ := f.store.Get(id)
	// Heavy external evidence for the strongest belief.
	require.NoError(t, f.store.AddEvidence(id, &types.Evidence{
		BeliefID: edge.Beliefs[0].ID,
		Source:   "observation",
		Strength: 1.0,
	}))
	edge, _ = f.store.Get(id)
	assert.Equal(t, StrategyDominantEvidence, f.mgr.SelectStrategy(edge))
}

func TestSelectStrategySourceReliability(t *testing.T) {
	f := newFixture(t)
	// Low confidence on both readings keeps either from dominating (ratio < 1.5).
	id, _, err := f.store.Add(types.Inheritance,
		[]*types.Term{types.Atom("x"), types.Atom("y")},
		&types.Belief{Truth: types.TruthValue{Frequency: 0.9, Confidence: 0.2}, Budget: types.DefaultBudget(), Source: "sensor-a"})
	require.NoError(t, err)
	_, err = f.store.Revise(id, &types.Belief{
		Truth: types.TruthValue{Frequency: 0.1, Confidence: 0.2}, Budget: types.DefaultBudget(),
		Source: "sensor-b", DerivedBy: "observation",
	})
	require.NoError(t, err)

	f.mgr.SetSourceReliability("sensor-a", 0.9)
	f.mgr.SetSourceReliability("sensor-b", 0.2)

	edge, _ := f.store.Get(id)
	assert.Equal(t, StrategySourceReliability, f.mgr.SelectStrategy(edge))
}

func TestCircuitBreakerOpensAndCloses(t *testing.T) {
	f := newFixture(t)
	// Five failures inside the window open the breaker.
	for i := 0; i < 5; i++ {
		_, err := f.mgr.Resolve("Inheritance(ghost,edge)", StrategyMerge)
		require.Error(t, err)
	}
	assert.True(t, f.mgr.BreakerOpen())

	id := f.contradictoryEdge(t)
	_, err := f.mgr.Resolve(id, StrategyMerge)
	assert.ErrorIs(t, err, ErrResolverUnavailable)

	// After the cooldown resolution works again.
	f.clock.Advance(31 * time.Second)
	assert.False(t, f.mgr.BreakerOpen())
	_, err = f.mgr.Resolve(id, StrategyMerge)
	assert.NoError(t, err)
}

func TestOutcomeReporting(t *testing.T) {
	f := newFixture(t)
	var reports []OutcomeReport
	f.mgr.SetOnOutcome(func(r OutcomeReport) { reports = append(reports, r) })

	id := f.contradictoryEdge(t)
	_, err := f.mgr.Resolve(id, StrategyMerge)
	require.NoError(t, err)

	require.Len(t, reports, 1)
	assert.Equal(t, "contradiction_resolution", reports[0].Operation)
	assert.Equal(t, StrategyMerge, reports[0].Strategy)
	assert.True(t, reports[0].Success)
}
