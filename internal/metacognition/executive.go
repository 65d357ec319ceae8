// Package metacognition implements the cognitive executive: self-monitoring
// signals, parameter adaptation, focus switching, and rule-priority
// modulation.
package metacognition

import (
	"time"

	"hypernars/internal/events"
	"hypernars/internal/types"
)

// Focus names the executive's current attention regime.
type Focus string

const (
	FocusDefault       Focus = "default"
	FocusQuestions     Focus = "question-answering"
	FocusContradiction Focus = "contradiction-resolution"
)

// adaptationRate is the step size of every threshold adjustment.
const adaptationRate = 0.1

// Params are the tunable reasoner parameters the executive owns. The
// reasoner reads them back after every adaptation pass.
type Params struct {
	InferenceThreshold float64
	BudgetThreshold    float64
	MaxPathLength      uint32
	BeliefCapacity     int
}

// Signals are the self-monitoring inputs for one adaptation pass.
type Signals struct {
	QueueSize           int
	PendingQuestions    int
	DerivationsDelta    uint64
	ContradictionsDelta int
	Elapsed             time.Duration
}

// Executive adapts parameters and switches focus under load.
type Executive struct {
	params   Params
	defaults Params
	focus    Focus
	bus      *events.Bus
	clock    types.Clock

	// successRate supplies learned per-rule success rates.
	successRate func(rule string) float64

	lastInferenceRate     float64
	lastContradictionRate float64
	lastUtilization       float64
}

// NewExecutive creates an executive around the initial parameters.
func NewExecutive(params Params, bus *events.Bus, clock types.Clock, successRate func(string) float64) *Executive {
	return &Executive{
		params:      params,
		defaults:    params,
		focus:       FocusDefault,
		bus:         bus,
		clock:       clock,
		successRate: successRate,
	}
}

// Params returns the current parameter set.
func (e *Executive) Params() Params { return e.params }

// Focus returns the current focus.
func (e *Executive) Focus() Focus { return e.focus }

// RuleScale maps a rule's learned success rate into a selection-weight
// factor in [0.5, 1.5].
func (e *Executive) RuleScale(rule string) float64 {
	rate := 0.5
	if e.successRate != nil {
		rate = e.successRate(rule)
	}
	if rate < 0 {
		rate = 0
	}
	if rate > 1 {
		rate = 1
	}
	return 0.5 + rate
}

// Adapt runs one adaptation pass over the monitoring signals and returns the
// updated parameters.
func (e *Executive) Adapt(sig Signals) Params {
	elapsed := sig.Elapsed.Seconds()
	if elapsed <= 0 {
		elapsed = 1
	}

	// Normalized signals.
	inferenceRate := minf(1, float64(sig.DerivationsDelta)/elapsed/100)
	contradictionRate := minf(1, float64(sig.ContradictionsDelta)/elapsed/10)
	utilization := minf(1, float64(sig.QueueSize)/2000)

	e.lastInferenceRate = inferenceRate
	e.lastContradictionRate = contradictionRate
	e.lastUtilization = utilization

	// Issue table.
	if contradictionRate > 0.3 {
		e.params.InferenceThreshold = minf(0.6, e.params.InferenceThreshold*(1+adaptationRate))
	}
	if inferenceRate < 0.1 && sig.QueueSize > 100 {
		e.params.InferenceThreshold = maxf(0.05, e.params.InferenceThreshold*(1-adaptationRate))
		e.params.BudgetThreshold *= 1 - adaptationRate/2
	}
	if utilization > 0.8 {
		e.params.BudgetThreshold = minf(0.25, e.params.BudgetThreshold*(1+2*adaptationRate))
		if e.params.MaxPathLength > 5 {
			e.params.MaxPathLength--
		}
	}

	e.switchFocus(sig, contradictionRate)
	return e.params
}

// switchFocus moves between regimes, adjusting and restoring the dependent
// parameters.
func (e *Executive) switchFocus(sig Signals, contradictionRate float64) {
	next := FocusDefault
	switch {
	case contradictionRate > 0.3:
		next = FocusContradiction
	case sig.PendingQuestions > 0:
		next = FocusQuestions
	}
	if next == e.focus {
		return
	}

	// Restore before applying the new regime so shifts never stack.
	e.params.MaxPathLength = e.defaults.MaxPathLength
	e.params.BeliefCapacity = e.defaults.BeliefCapacity

	switch next {
	case FocusQuestions:
		e.params.MaxPathLength = e.defaults.MaxPathLength + 5
	case FocusContradiction:
		e.params.BeliefCapacity = e.defaults.BeliefCapacity + 2
	}

	prev := e.focus
	e.focus = next
	e.bus.Publish(events.Event{
		Type:      events.FocusChanged,
		Timestamp: e.clock.Now(),
		Detail:    map[string]any{"from": string(prev), "to": string(next)},
	})
}

// Rates returns the last computed monitoring signals.
func (e *Executive) Rates() (inference, contradiction, utilization float64) {
	return e.lastInferenceRate, e.lastContradictionRate, e.lastUtilization
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
