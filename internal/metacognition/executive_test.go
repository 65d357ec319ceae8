package metacognition

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"hypernars/internal/events"
	"hypernars/internal/types"
)

func defaultParams() Params {
	return Params{
		InferenceThreshold: 0.3,
		BudgetThreshold:    0.05,
		MaxPathLength:      15,
		BeliefCapacity:     8,
	}
}

func newExec(successRate func(string) float64) *Executive {
	clock := types.NewFrozenClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	return NewExecutive(defaultParams(), events.NewBus(), clock, successRate)
}

func TestRuleScaleRange(t *testing.T) {
	e := newExec(func(rule string) float64 {
		switch rule {
		case "good":
			return 1.0
		case "bad":
			return 0.0
		default:
			return 0.5
		}
	})
	assert.InDelta(t, 1.5, e.RuleScale("good"), 1e-9)
	assert.InDelta(t, 0.5, e.RuleScale("bad"), 1e-9)
	assert.InDelta(t, 1.0, e.RuleScale("middling"), 1e-9)
}

func TestAdaptRaisesThresholdOnContradictions(t *testing.T) {
	e := newExec(nil)
	p := e.Adapt(Signals{ContradictionsDelta: 50, Elapsed: time.Second})
	assert.InDelta(t, 0.3*1.1, p.InferenceThreshold, 1e-9)

	// Capped at 0.6.
	for i := 0; i < 50; i++ {
		p = e.Adapt(Signals{ContradictionsDelta: 50, Elapsed: time.Second})
	}
	assert.InDelta(t, 0.6, p.InferenceThreshold, 1e-9)
}

func TestAdaptLowersThresholdWhenStalled(t *testing.T) {
	e := newExec(nil)
	p := e.Adapt(Signals{QueueSize: 200, DerivationsDelta: 0, Elapsed: time.Second})
	assert.InDelta(t, 0.27, p.InferenceThreshold, 1e-9)
	assert.InDelta(t, 0.05*0.95, p.BudgetThreshold, 1e-9)

	// Floored at 0.05.
	for i := 0; i < 100; i++ {
		p = e.Adapt(Signals{QueueSize: 200, DerivationsDelta: 0, Elapsed: time.Second})
	}
	assert.InDelta(t, 0.05, p.InferenceThreshold, 1e-9)
}

func TestAdaptShedsLoadAtHighUtilization(t *testing.T) {
	e := newExec(nil)
	p := e.Adapt(Signals{QueueSize: 1900, DerivationsDelta: 1000, Elapsed: time.Second})
	assert.InDelta(t, 0.05*1.2, p.BudgetThreshold, 1e-9)
	assert.Equal(t, uint32(14), p.MaxPathLength)

	// Path length floors at 5; budget threshold caps at 0.25.
	for i := 0; i < 50; i++ {
		p = e.Adapt(Signals{QueueSize: 1900, DerivationsDelta: 1000, Elapsed: time.Second})
	}
	assert.Equal(t, uint32(5), p.MaxPathLength)
	assert.InDelta(t, 0.25, p.BudgetThreshold, 1e-9)
}

func TestFocusSwitchesToQuestions(t *testing.T) {
	e := newExec(nil)
	p := e.Adapt(Signals{PendingQuestions: 2, DerivationsDelta: 100, Elapsed: time.Second})
	assert.Equal(t, FocusQuestions, e.Focus())
	assert.Equal(t, uint32(20), p.MaxPathLength)

	// Returning to default restores the path length.
	p = e.Adapt(Signals{DerivationsDelta: 100, Elapsed: time.Second})
	assert.Equal(t, FocusDefault, e.Focus())
	assert.Equal(t, uint32(15), p.MaxPathLength)
}

func TestFocusContradictionRaisesBeliefCapacity(t *testing.T) {
	e := newExec(nil)
	p := e.Adapt(Signals{ContradictionsDelta: 50, DerivationsDelta: 100, Elapsed: time.Second})
	assert.Equal(t, FocusContradiction, e.Focus())
	assert.Equal(t, 10, p.BeliefCapacity)

	p = e.Adapt(Signals{DerivationsDelta: 100, Elapsed: time.Second})
	assert.Equal(t, 8, p.BeliefCapacity)
}

func TestFocusChangePublishesEvent(t *testing.T) {
	clock := types.NewFrozenClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	bus := events.NewBus()
	var changes []events.Event
	bus.Subscribe(events.FocusChanged, func(ev events.Event) { changes = append(changes, ev) })

	e := NewExecutive(defaultParams(), bus, clock, nil)
	e.Adapt(Signals{PendingQuestions: 1, DerivationsDelta: 100, Elapsed: time.Second})
	assert.Len(t, changes, 1)
	assert.Equal(t, "question-answering", changes[0].Detail["to"])
}
