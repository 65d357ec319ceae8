package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExpectation(t *testing.T) {
	tests := []struct {
		name string
		tv   TruthValue
		want float64
	}{
		{"full belief", TruthValue{Frequency: 1.0, Confidence: 0.9}, 0.95},
		{"ignorance", TruthValue{Frequency: 1.0, Confidence: 0.0}, 0.5},
		{"negative", TruthValue{Frequency: 0.0, Confidence: 0.9}, 0.05},
		{"ambivalent", TruthValue{Frequency: 0.5, Confidence: 0.8}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.tv.Expectation(), 1e-9)
		})
	}
}

func TestRevisionAccumulatesConfidence(t *testing.T) {
	a := TruthValue{Frequency: 0.8, Confidence: 0.5}
	b := TruthValue{Frequency: 0.8, Confidence: 0.5}

	r := a.Revision(b)
	assert.InDelta(t, 0.8, r.Frequency, 1e-9)
	assert.InDelta(t, 0.75, r.Confidence, 1e-9)
	assert.Greater(t, r.Expectation(), a.Expectation())
}

func TestRevisionMonotoneUnderAgreement(t *testing.T) {
	// Repeated agreeing evidence must never lower expectation.
	acc := TruthValue{Frequency: 0.9, Confidence: 0.3}
	prev := acc.Expectation()
	for i := 0; i < 10; i++ {
		acc = acc.Revision(TruthValue{Frequency: 0.9, Confidence: 0.3})
		e := acc.Expectation()
		if e < prev-1e-12 {
			t.Fatalf("expectation dropped from %v to %v at step %d", prev, e, i)
		}
		prev = e
	}
	assert.Less(t, acc.Confidence, 1.0+1e-9)
}

func TestRevisionBlendsOpposingFrequencies(t *testing.T) {
	a := TruthValue{Frequency: 1.0, Confidence: 0.9}
	b := TruthValue{Frequency: 0.0, Confidence: 0.9}
	r := a.Revision(b)
	assert.InDelta(t, 0.5, r.Frequency, 1e-9)
}

func TestTransitive(t *testing.T) {
	ab := TruthValue{Frequency: 1.0, Confidence: 0.9}
	bc := TruthValue{Frequency: 1.0, Confidence: 0.9}
	ac := ab.Transitive(bc)

	assert.InDelta(t, 1.0, ac.Frequency, 1e-9)
	assert.InDelta(t, 0.81, ac.Confidence, 1e-9)
	assert.Greater(t, ac.Expectation(), 0.5)
}

func TestTransitiveWeakensWithFrequency(t *testing.T) {
	ab := TruthValue{Frequency: 1.0, Confidence: 0.9}
	weak := TruthValue{Frequency: 0.5, Confidence: 0.9}
	ac := ab.Transitive(weak)
	// c1*c2*f2
	assert.InDelta(t, 0.9*0.9*0.5, ac.Confidence, 1e-9)
}

func TestNegation(t *testing.T) {
	tv := TruthValue{Frequency: 0.8, Confidence: 0.7}
	n := tv.Negation()
	assert.InDelta(t, 0.2, n.Frequency, 1e-9)
	assert.InDelta(t, 0.7, n.Confidence, 1e-9)
}

func TestInductionBounded(t *testing.T) {
	a := TruthValue{Frequency: 1.0, Confidence: 0.9}
	b := TruthValue{Frequency: 1.0, Confidence: 0.9}
	r := a.Induction(b)
	assert.Greater(t, r.Confidence, 0.0)
	assert.Less(t, r.Confidence, 1.0)
	assert.InDelta(t, 1.0, r.Frequency, 1e-9)
}
