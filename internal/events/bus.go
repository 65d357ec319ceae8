// Package events provides the typed observer registry through which the core
// reports what it is doing. The core owns the registry; observers return
// nothing and must not mutate reasoner state.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Type identifies an event kind.
type Type string

const (
	BeliefAdded           Type = "belief-added"
	BeliefRevised         Type = "belief-revised"
	ContradictionDetected Type = "contradiction-detected"
	ContradictionResolved Type = "contradiction-resolved"
	FocusChanged          Type = "focus-changed"
	KnowledgePruned       Type = "knowledge-pruned"
	ConceptFormed         Type = "concept-formed"
	AnswerDelivered       Type = "answer-delivered"
	QuestionTimedOut      Type = "question-timed-out"
	RuleSynthesized       Type = "rule-synthesized"
)

// Event is the payload delivered to observers.
type Event struct {
	Type      Type           `json:"type"`
	EdgeID    string         `json:"edge_id,omitempty"`
	BeliefID  string         `json:"belief_id,omitempty"`
	Rule      string         `json:"rule,omitempty"`
	Strategy  string         `json:"strategy,omitempty"`
	Detail    map[string]any `json:"detail,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Observer receives events of the types it subscribed to.
type Observer func(Event)

// Bus is the observer registry. The reasoner publishes synchronously from
// its single thread; subscription is safe from any goroutine.
type Bus struct {
	mu        sync.RWMutex
	observers map[Type][]Observer
	all       []Observer
}

// NewBus creates an empty registry.
func NewBus() *Bus {
	return &Bus{observers: make(map[Type][]Observer)}
}

// Subscribe registers an observer for one event type.
func (b *Bus) Subscribe(t Type, obs Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.observers[t] = append(b.observers[t], obs)
}

// SubscribeAll registers an observer for every event type.
func (b *Bus) SubscribeAll(obs Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, obs)
}

// Publish delivers the event to matching observers.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	typed := b.observers[ev.Type]
	all := b.all
	b.mu.RUnlock()

	for _, obs := range typed {
		obs(ev)
	}
	for _, obs := range all {
		obs(ev)
	}
}

// LoggingObserver returns an observer that writes structured log lines for
// every event it sees.
func LoggingObserver(logger zerolog.Logger) Observer {
	return func(ev Event) {
		e := logger.Debug().
			Str("event", string(ev.Type)).
			Time("at", ev.Timestamp)
		if ev.EdgeID != "" {
			e = e.Str("edge", ev.EdgeID)
		}
		if ev.BeliefID != "" {
			e = e.Str("belief", ev.BeliefID)
		}
		if ev.Rule != "" {
			e = e.Str("rule", ev.Rule)
		}
		if ev.Strategy != "" {
			e = e.Str("strategy", ev.Strategy)
		}
		if len(ev.Detail) > 0 {
			e = e.Interface("detail", ev.Detail)
		}
		e.Msg("reasoner event")
	}
}
