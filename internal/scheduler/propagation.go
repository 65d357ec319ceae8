package scheduler

import (
	"hash/fnv"

	"hypernars/internal/types"
)

// Limits are the propagation guard parameters, read from config by the
// reasoner and adjusted by the cognitive executive.
type Limits struct {
	BudgetThreshold float64
	MaxPathLength   uint32
}

// Propagator enqueues events under the budget, path-length, and loop guards
// and maintains the per-edge activation map.
type Propagator struct {
	queue       *Queue
	limits      Limits
	activations map[string]float64
	visited     map[visitKey]struct{}
}

type visitKey struct {
	target   string
	pathHash uint64
}

// NewPropagator creates a propagator over the given queue.
func NewPropagator(queue *Queue, limits Limits) *Propagator {
	return &Propagator{
		queue:       queue,
		limits:      limits,
		activations: make(map[string]float64),
		visited:     make(map[visitKey]struct{}),
	}
}

// SetLimits replaces the guard parameters.
func (p *Propagator) SetLimits(limits Limits) { p.limits = limits }

// Limits returns the current guard parameters.
func (p *Propagator) Limits() Limits { return p.limits }

// Propagate applies the guards in order and enqueues the event if all pass:
//  1. budget priority at or above the threshold,
//  2. path length within the cap,
//  3. the (target, path) pair not already visited on this activation path.
//
// On enqueue the target id hash is mixed into the event's path hash and the
// target's activation is boosted to max(current, event activation). Returns
// whether the event was enqueued; rejected events are dropped silently.
func (p *Propagator) Propagate(ev *types.Event) bool {
	if ev == nil {
		return false
	}
	if ev.Budget.Priority < p.limits.BudgetThreshold {
		return false
	}
	if ev.PathLength > p.limits.MaxPathLength {
		return false
	}

	mixed := MixPath(ev.PathHash, ev.Target)
	key := visitKey{target: ev.Target, pathHash: mixed}
	if _, seen := p.visited[key]; seen {
		return false
	}
	p.visited[key] = struct{}{}
	ev.PathHash = mixed

	p.queue.Push(ev)
	if current, ok := p.activations[ev.Target]; !ok || ev.Activation > current {
		p.activations[ev.Target] = ev.Activation
	}
	return true
}

// Activation returns the current activation of an edge.
func (p *Propagator) Activation(target string) float64 {
	return p.activations[target]
}

// Activations exposes the activation map for maintenance decay. The caller
// is the single reasoner thread.
func (p *Propagator) Activations() map[string]float64 {
	return p.activations
}

// DecayActivations scales every activation by the factor, dropping entries
// that fall below a floor.
func (p *Propagator) DecayActivations(factor float64) {
	const floor = 1e-4
	for id, a := range p.activations {
		a *= factor
		if a < floor {
			delete(p.activations, id)
		} else {
			p.activations[id] = a
		}
	}
}

// VisitedLen returns the size of the loop-guard set.
func (p *Propagator) VisitedLen() int { return len(p.visited) }

// TruncateVisited bounds the loop-guard set, dropping arbitrary entries.
// Called from memory maintenance.
func (p *Propagator) TruncateVisited(target int) {
	if target < 0 || len(p.visited) <= target {
		return
	}
	for k := range p.visited {
		if len(p.visited) <= target {
			break
		}
		delete(p.visited, k)
	}
}

// Reset clears activations and the loop-guard set.
func (p *Propagator) Reset() {
	p.activations = make(map[string]float64)
	p.visited = make(map[visitKey]struct{})
}

// MixPath folds a target id into a path hash: FNV-1a over the id, XORed into
// the parent hash, then finalized with the splitmix64 mixer. One consistent
// scheme is used for every propagation hop so memoization keys never depend
// on which rule produced the event.
func MixPath(parent uint64, target string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(target))
	return splitmix64(parent ^ h.Sum64())
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
