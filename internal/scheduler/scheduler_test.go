package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hypernars/internal/types"
)

func event(target string, priority float64) *types.Event {
	return &types.Event{
		Target:     target,
		Activation: 1.0,
		Budget:     types.Budget{Priority: priority, Durability: 0.8, Quality: 0.5},
		Kind:       types.EventPropagate,
	}
}

func TestQueuePriorityOrder(t *testing.T) {
	q := NewQueue()
	q.Push(event("low", 0.2))
	q.Push(event("high", 0.9))
	q.Push(event("mid", 0.5))

	assert.Equal(t, "high", q.Pop().Target)
	assert.Equal(t, "mid", q.Pop().Target)
	assert.Equal(t, "low", q.Pop().Target)
	assert.Nil(t, q.Pop())
}

func TestQueueFIFOOnTies(t *testing.T) {
	q := NewQueue()
	for _, name := range []string{"first", "second", "third"} {
		q.Push(event(name, 0.5))
	}
	assert.Equal(t, "first", q.Pop().Target)
	assert.Equal(t, "second", q.Pop().Target)
	assert.Equal(t, "third", q.Pop().Target)
}

func TestQueueFilterRebuilds(t *testing.T) {
	q := NewQueue()
	for i, p := range []float64{0.1, 0.9, 0.3, 0.7} {
		q.Push(event(string(rune('a'+i)), p))
	}
	q.Filter(func(ev *types.Event) bool { return ev.Budget.Priority >= 0.5 })
	assert.Equal(t, 2, q.Len())
	assert.InDelta(t, 0.9, q.Pop().Budget.Priority, 1e-9)
	assert.InDelta(t, 0.7, q.Pop().Budget.Priority, 1e-9)
}

func TestPropagateBudgetThreshold(t *testing.T) {
	q := NewQueue()
	p := NewPropagator(q, Limits{BudgetThreshold: 0.1, MaxPathLength: 15})

	assert.False(t, p.Propagate(event("Inheritance(a,b)", 0.01)))
	assert.Equal(t, 0, q.Len())

	assert.True(t, p.Propagate(event("Inheritance(a,b)", 0.5)))
	assert.Equal(t, 1, q.Len())
}

func TestPropagatePathLengthCap(t *testing.T) {
	q := NewQueue()
	p := NewPropagator(q, Limits{BudgetThreshold: 0.05, MaxPathLength: 3})

	ev := event("Inheritance(a,b)", 0.5)
	ev.PathLength = 4
	assert.False(t, p.Propagate(ev))
	assert.Equal(t, 0, q.Len())
}

func TestPropagateLoopGuard(t *testing.T) {
	q := NewQueue()
	p := NewPropagator(q, Limits{BudgetThreshold: 0.05, MaxPathLength: 15})

	first := event("Inheritance(a,b)", 0.5)
	require.True(t, p.Propagate(first))

	// Same target along the same path is rejected.
	dup := event("Inheritance(a,b)", 0.5)
	assert.False(t, p.Propagate(dup))

	// Same target via a different path is allowed.
	other := event("Inheritance(a,b)", 0.5)
	other.PathHash = 12345
	assert.True(t, p.Propagate(other))
}

func TestPropagateBoostsActivation(t *testing.T) {
	q := NewQueue()
	p := NewPropagator(q, Limits{BudgetThreshold: 0.05, MaxPathLength: 15})

	low := event("x", 0.5)
	low.Activation = 0.3
	require.True(t, p.Propagate(low))
	assert.InDelta(t, 0.3, p.Activation("x"), 1e-9)

	high := event("x", 0.5)
	high.Activation = 0.8
	high.PathHash = 99
	require.True(t, p.Propagate(high))
	assert.InDelta(t, 0.8, p.Activation("x"), 1e-9)

	// A weaker later event never lowers activation.
	weak := event("x", 0.5)
	weak.Activation = 0.1
	weak.PathHash = 100
	require.True(t, p.Propagate(weak))
	assert.InDelta(t, 0.8, p.Activation("x"), 1e-9)
}

func TestDecayActivations(t *testing.T) {
	q := NewQueue()
	p := NewPropagator(q, Limits{BudgetThreshold: 0.05, MaxPathLength: 15})
	require.True(t, p.Propagate(event("x", 0.5)))

	p.DecayActivations(0.9)
	assert.InDelta(t, 0.9, p.Activation("x"), 1e-9)

	for i := 0; i < 100; i++ {
		p.DecayActivations(0.5)
	}
	assert.Zero(t, p.Activation("x"))
}

func TestMixPathDeterministicAndSpread(t *testing.T) {
	a := MixPath(0, "Inheritance(a,b)")
	b := MixPath(0, "Inheritance(a,b)")
	assert.Equal(t, a, b)

	c := MixPath(0, "Inheritance(a,c)")
	assert.NotEqual(t, a, c)

	// Order sensitivity: a then b differs from b then a.
	ab := MixPath(MixPath(0, "a"), "b")
	ba := MixPath(MixPath(0, "b"), "a")
	assert.NotEqual(t, ab, ba)
}
