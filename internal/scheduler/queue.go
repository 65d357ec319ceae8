// Package scheduler provides the priority-driven event queue and the
// propagation guards that keep activation spreading within the attention
// budget.
package scheduler

import (
	"container/heap"

	"hypernars/internal/types"
)

// eventHeap orders events by budget priority descending, breaking ties by
// insertion order (FIFO).
type eventHeap []*types.Event

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	if h[i].Budget.Priority != h[j].Budget.Priority {
		return h[i].Budget.Priority > h[j].Budget.Priority
	}
	return h[i].Seq < h[j].Seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(*types.Event)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	ev := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return ev
}

// Queue is a binary max-heap over event budget priority.
type Queue struct {
	heap eventHeap
	seq  uint64
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push enqueues an event.
func (q *Queue) Push(ev *types.Event) {
	q.seq++
	ev.Seq = q.seq
	heap.Push(&q.heap, ev)
}

// Pop removes and returns the highest-priority event, or nil when empty.
func (q *Queue) Pop() *types.Event {
	if len(q.heap) == 0 {
		return nil
	}
	return heap.Pop(&q.heap).(*types.Event)
}

// Peek returns the highest-priority event without removing it.
func (q *Queue) Peek() *types.Event {
	if len(q.heap) == 0 {
		return nil
	}
	return q.heap[0]
}

// Len returns the number of queued events.
func (q *Queue) Len() int { return len(q.heap) }

// Filter keeps only events satisfying the predicate, rebuilding the heap in
// one O(n) pass.
func (q *Queue) Filter(keep func(*types.Event) bool) {
	kept := q.heap[:0]
	for _, ev := range q.heap {
		if keep(ev) {
			kept = append(kept, ev)
		}
	}
	q.heap = kept
	heap.Init(&q.heap)
}

// Clear drops every queued event.
func (q *Queue) Clear() {
	q.heap = nil
}
