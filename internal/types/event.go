package types

// EventKind distinguishes plain activation spreading from belief insertion.
type EventKind string

const (
	EventPropagate EventKind = "propagate"
	EventAddBelief EventKind = "add-belief"
)

// Event is a unit of attention flowing through the scheduler. Events hold
// only edge ids, never edge references.
type Event struct {
	Target         string    `json:"target"`
	Activation     float64   `json:"activation"`
	Budget         Budget    `json:"budget"`
	PathHash       uint64    `json:"path_hash"`
	PathLength     uint32    `json:"path_length"`
	DerivationPath []string  `json:"derivation_path,omitempty"`
	Kind           EventKind `json:"kind"`
	Belief         *Belief   `json:"belief,omitempty"`

	// Seq is assigned by the queue on push; FIFO tie-break for equal
	// priorities.
	Seq uint64 `json:"-"`
}

// Child derives a follow-up event for a rule conclusion: activation and
// budget are scaled, the path is extended by the rule name, and the path
// hash is left for the propagator to mix.
func (e *Event) Child(target, rule string, activationFactor, budgetFactor float64) *Event {
	path := make([]string, 0, len(e.DerivationPath)+1)
	path = append(path, e.DerivationPath...)
	path = append(path, rule)
	return &Event{
		Target:         target,
		Activation:     clamp01(e.Activation * activationFactor),
		Budget:         e.Budget.Scale(budgetFactor),
		PathHash:       e.PathHash,
		PathLength:     e.PathLength + 1,
		DerivationPath: path,
		Kind:           EventPropagate,
	}
}
