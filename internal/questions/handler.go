// Package questions tracks pending questions and delivers answers when
// matching beliefs appear.
//
// A question registers a parsed pattern with a deadline; the reasoner's
// revision hook feeds every new belief through CheckAnswers. Answers at or
// above the question's minimum expectation resolve the future immediately;
// weaker answers accumulate and the best one is delivered at the deadline.
// The reasoner never blocks on a question: futures are channels the host
// reads at its convenience.
package questions

import (
	"fmt"
	"sync"
	"time"

	"hypernars/internal/events"
	"hypernars/internal/types"
)

// TimeoutError signals that a question expired without an acceptable answer.
type TimeoutError struct {
	Text    string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("question %q timed out after %s", e.Text, e.Timeout)
}

// Outcome is what a future resolves to: an answer or a timeout error.
type Outcome struct {
	Answer *types.Answer
	Err    error
}

// Future is the host-side handle for a pending question.
type Future struct {
	ID string
	ch chan Outcome
}

// Done returns the channel the outcome is delivered on. It receives exactly
// one value.
func (f *Future) Done() <-chan Outcome { return f.ch }

// Wait blocks until the outcome arrives.
func (f *Future) Wait() Outcome { return <-f.ch }

// Options tunes one ask call.
type Options struct {
	Timeout        time.Duration
	MinExpectation float64
}

// Pending is the registered state of one question.
type Pending struct {
	ID             string
	Text           string
	Pattern        *types.Term
	Deadline       time.Time
	MinExpectation float64
	Answered       bool
	Accumulated    []types.Answer
	StartTime      time.Time
	Timeout        time.Duration
	future         *Future
}

// Handler owns the pending-question registry and the answer cache.
type Handler struct {
	mu      sync.Mutex
	pending map[string]*Pending
	cache   map[string][]types.Answer
	clock   types.Clock
	bus     *events.Bus

	cacheLimit int

	// onOutcome informs the learning engine of answer/timeout outcomes.
	// conclusion is the answered edge's id, empty on timeout.
	onOutcome func(questionID string, success bool, conclusion string, derivationPath []string)
}

// NewHandler creates an empty question handler.
func NewHandler(clock types.Clock, bus *events.Bus) *Handler {
	return &Handler{
		pending:    make(map[string]*Pending),
		cache:      make(map[string][]types.Answer),
		clock:      clock,
		bus:        bus,
		cacheLimit: 100,
	}
}

// SetOnOutcome installs the learning-engine hook.
func (h *Handler) SetOnOutcome(fn func(questionID string, success bool, conclusion string, derivationPath []string)) {
	h.onOutcome = fn
}

// Ask registers a pending question for the parsed pattern and returns its
// future. The question id embeds the text and registration timestamp.
func (h *Handler) Ask(text string, pattern *types.Term, opts Options) *Future {
	if opts.Timeout <= 0 {
		opts.Timeout = 3 * time.Second
	}
	now := h.clock.Now()
	id := fmt.Sprintf("Question(%s)|%d", text, now.UnixMilli())
	future := &Future{ID: id, ch: make(chan Outcome, 1)}

	h.mu.Lock()
	h.pending[id] = &Pending{
		ID:             id,
		Text:           text,
		Pattern:        pattern,
		Deadline:       now.Add(opts.Timeout),
		MinExpectation: opts.MinExpectation,
		StartTime:      now,
		Timeout:        opts.Timeout,
		future:         future,
	}
	h.mu.Unlock()
	return future
}

// PendingCount returns the number of unanswered questions.
func (h *Handler) PendingCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// CheckAnswers is invoked on every hypergraph revision. Each pending
// question whose pattern matches the new edge receives an answer built from
// the revised belief.
func (h *Handler) CheckAnswers(edge *types.Hyperedge, belief *types.Belief) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, q := range h.pending {
		if !Matches(q.Pattern, edge) {
			continue
		}
		answer := types.Answer{
			Type:           edge.Type,
			Args:           types.ArgStrings(edge.Args),
			Truth:          belief.Truth,
			Expectation:    belief.Truth.Expectation(),
			EdgeID:         edge.ID,
			DerivationPath: belief.Premises,
		}
		h.answerLocked(id, q, answer)
	}
}

// answerLocked resolves or accumulates one answer for a question.
func (h *Handler) answerLocked(id string, q *Pending, answer types.Answer) {
	if answer.Expectation >= q.MinExpectation {
		q.Answered = true
		delete(h.pending, id)
		q.future.ch <- Outcome{Answer: &answer}
		h.bus.Publish(events.Event{
			Type:      events.AnswerDelivered,
			EdgeID:    answer.EdgeID,
			Timestamp: h.clock.Now(),
			Detail:    map[string]any{"question": q.Text, "expectation": answer.Expectation},
		})
		if h.onOutcome != nil {
			h.onOutcome(id, true, answer.EdgeID, answer.DerivationPath)
		}
		return
	}
	q.Accumulated = append(q.Accumulated, answer)
}

// Expire sweeps deadlines: each overdue question resolves with its best
// accumulated answer, or fails with a TimeoutError when none arrived.
// Returns the number of questions closed.
func (h *Handler) Expire() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	closed := 0
	for id, q := range h.pending {
		if now.Before(q.Deadline) {
			continue
		}
		delete(h.pending, id)
		closed++

		if best := bestAnswer(q.Accumulated); best != nil {
			q.future.ch <- Outcome{Answer: best}
			if h.onOutcome != nil {
				h.onOutcome(id, true, best.EdgeID, best.DerivationPath)
			}
			continue
		}

		q.future.ch <- Outcome{Err: &TimeoutError{Text: q.Text, Timeout: q.Timeout}}
		h.bus.Publish(events.Event{
			Type:      events.QuestionTimedOut,
			Timestamp: now,
			Detail:    map[string]any{"question": q.Text},
		})
		if h.onOutcome != nil {
			h.onOutcome(id, false, "", nil)
		}
		// The cache keeps what had accumulated by the deadline; answers
		// that arrive after this point are not recorded.
		h.cache[q.Text] = q.Accumulated
		h.trimCacheLocked()
	}
	return closed
}

// CachedAnswers returns the answers that had accumulated for a question text
// when it timed out. Answers arriving after the timeout are not added.
func (h *Handler) CachedAnswers(text string) []types.Answer {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cache[text]
}

// SetCacheLimit bounds the timed-out-question cache.
func (h *Handler) SetCacheLimit(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if n > 0 {
		h.cacheLimit = n
	}
	h.trimCacheLocked()
}

// CacheLen returns the number of cached question entries.
func (h *Handler) CacheLen() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.cache)
}

func (h *Handler) trimCacheLocked() {
	for key := range h.cache {
		if len(h.cache) <= h.cacheLimit {
			break
		}
		delete(h.cache, key)
	}
}

// Clear drops all pending questions without resolving them and empties the
// cache. Used by state reset.
func (h *Handler) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = make(map[string]*Pending)
	h.cache = make(map[string][]types.Answer)
}

func bestAnswer(answers []types.Answer) *types.Answer {
	if len(answers) == 0 {
		return nil
	}
	best := answers[0]
	for _, a := range answers[1:] {
		if a.Expectation > best.Expectation {
			best = a
		}
	}
	return &best
}

// Matches unifies a question pattern against an edge: compound patterns must
// match the edge type and every argument, variables match any argument, and
// atoms match exactly.
func Matches(pattern *types.Term, edge *types.Hyperedge) bool {
	if pattern == nil {
		return false
	}
	if !pattern.IsCompound() {
		return pattern.IsVariable() || pattern.Canonical() == edge.ID
	}
	if pattern.Type != edge.Type || len(pattern.Args) != len(edge.Args) {
		return false
	}
	for i, p := range pattern.Args {
		if !termMatches(p, edge.Args[i]) {
			return false
		}
	}
	return true
}

func termMatches(pattern, value *types.Term) bool {
	if pattern.IsVariable() {
		return true
	}
	if pattern.IsCompound() {
		if pattern.Type != value.Type || len(pattern.Args) != len(value.Args) {
			return false
		}
		for i, p := range pattern.Args {
			if !termMatches(p, value.Args[i]) {
				return false
			}
		}
		return true
	}
	return pattern.Canonical() == value.Canonical()
}
