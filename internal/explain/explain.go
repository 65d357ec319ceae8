// Package explain reconstructs derivation graphs from belief provenance and
// renders them for humans and machines.
package explain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dominikbraun/graph"

	"hypernars/internal/storage"
	"hypernars/internal/types"
)

// Formats.
const (
	FormatDetailed      = "detailed"
	FormatConcise       = "concise"
	FormatTechnical     = "technical"
	FormatJSON          = "json"
	FormatStory         = "story"
	FormatJustification = "justification"
)

// Perspectives.
const (
	PerspectiveEvidential     = "evidential"
	PerspectiveCausal         = "causal"
	PerspectiveCounterfactual = "counterfactual"
)

// Options selects rendering of an explanation.
type Options struct {
	Format      string
	Perspective string
	Depth       int
}

// Node is one vertex of the derivation graph.
type Node struct {
	EdgeID      string           `json:"edge_id"`
	Rule        string           `json:"rule,omitempty"`
	Truth       types.TruthValue `json:"truth"`
	Expectation float64          `json:"expectation"`
	Depth       int              `json:"depth"`
	Premises    []*Node          `json:"premises,omitempty"`
}

// nodeHash keys derivation-graph vertices by edge id.
func nodeHash(n *Node) string { return n.EdgeID }

// Explainer renders derivation explanations from the store.
type Explainer struct {
	store *storage.Hypergraph
}

// NewExplainer creates an explainer over the store.
func NewExplainer(store *storage.Hypergraph) *Explainer {
	return &Explainer{store: store}
}

// Tree builds the premise tree of the edge's strongest belief, bounded by
// depth.
func (e *Explainer) Tree(edgeID string, depth int) (*Node, error) {
	if depth <= 0 {
		depth = 5
	}
	visited := make(map[string]bool)
	node := e.buildNode(edgeID, 0, depth, visited)
	if node == nil {
		return nil, fmt.Errorf("explain %s: %w", edgeID, storage.ErrEdgeNotFound)
	}
	return node, nil
}

func (e *Explainer) buildNode(edgeID string, depth, maxDepth int, visited map[string]bool) *Node {
	edge, ok := e.store.Get(edgeID)
	if !ok {
		return nil
	}
	belief := edge.StrongestBelief()
	if belief == nil {
		return nil
	}
	node := &Node{
		EdgeID:      edgeID,
		Rule:        belief.DerivedBy,
		Truth:       belief.Truth,
		Expectation: belief.Truth.Expectation(),
		Depth:       depth,
	}
	if depth >= maxDepth || visited[edgeID] {
		return node
	}
	visited[edgeID] = true
	for _, premiseID := range belief.Premises {
		if child := e.buildNode(premiseID, depth+1, maxDepth, visited); child != nil {
			node.Premises = append(node.Premises, child)
		}
	}
	return node
}

// Graph builds the derivation DAG rooted at the edge. Cycles in provenance
// (possible after revision merges) are rejected by the graph itself and the
// offending link is skipped.
func (e *Explainer) Graph(edgeID string, depth int) (graph.Graph[string, *Node], error) {
	root, err := e.Tree(edgeID, depth)
	if err != nil {
		return nil, err
	}
	g := graph.New(nodeHash, graph.Directed(), graph.PreventCycles())
	var add func(n *Node)
	add = func(n *Node) {
		_ = g.AddVertex(n)
		for _, p := range n.Premises {
			add(p)
			_ = g.AddEdge(p.EdgeID, n.EdgeID)
		}
	}
	add(root)
	return g, nil
}

// Explain renders the derivation of an edge in the requested format and
// perspective.
func (e *Explainer) Explain(edgeID string, opts Options) (string, error) {
	if opts.Format == "" {
		opts.Format = FormatDetailed
	}
	if opts.Perspective == "" {
		opts.Perspective = PerspectiveEvidential
	}
	root, err := e.Tree(edgeID, opts.Depth)
	if err != nil {
		return "", err
	}

	switch opts.Format {
	case FormatJSON:
		data, err := json.MarshalIndent(root, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	case FormatConcise:
		return e.concise(root), nil
	case FormatTechnical:
		var b strings.Builder
		e.technical(root, &b)
		return b.String(), nil
	case FormatStory:
		return e.story(root, opts.Perspective), nil
	case FormatJustification:
		return e.justification(root), nil
	case FormatDetailed:
		var b strings.Builder
		e.detailed(root, &b, opts.Perspective)
		return b.String(), nil
	default:
		return "", fmt.Errorf("unknown explain format %q", opts.Format)
	}
}

func (e *Explainer) concise(root *Node) string {
	if len(root.Premises) == 0 {
		return fmt.Sprintf("%s (expectation %.2f, asserted)", root.EdgeID, root.Expectation)
	}
	ids := make([]string, len(root.Premises))
	for i, p := range root.Premises {
		ids[i] = p.EdgeID
	}
	return fmt.Sprintf("%s (expectation %.2f) via %s from %s",
		root.EdgeID, root.Expectation, root.Rule, strings.Join(ids, ", "))
}

func (e *Explainer) detailed(n *Node, b *strings.Builder, perspective string) {
	indent := strings.Repeat("  ", n.Depth)
	fmt.Fprintf(b, "%s%s  f=%.2f c=%.2f (expectation %.2f)", indent, n.EdgeID,
		n.Truth.Frequency, n.Truth.Confidence, n.Expectation)
	if n.Rule != "" {
		fmt.Fprintf(b, "  [%s]", n.Rule)
	}
	b.WriteByte('\n')
	if n.Depth == 0 && perspective == PerspectiveCounterfactual && len(n.Premises) > 0 {
		fmt.Fprintf(b, "%swithout its premises this conclusion would not hold:\n", indent)
	}
	for _, p := range n.Premises {
		e.detailed(p, b, perspective)
	}
}

func (e *Explainer) technical(n *Node, b *strings.Builder) {
	fmt.Fprintf(b, "%s|f=%.4f|c=%.4f|rule=%s|premises=%d\n",
		n.EdgeID, n.Truth.Frequency, n.Truth.Confidence, n.Rule, len(n.Premises))
	for _, p := range n.Premises {
		e.technical(p, b)
	}
}

func (e *Explainer) story(root *Node, perspective string) string {
	var b strings.Builder
	switch perspective {
	case PerspectiveCausal:
		fmt.Fprintf(&b, "Because ")
	case PerspectiveCounterfactual:
		fmt.Fprintf(&b, "Had the evidence been otherwise, the system would not conclude %s. As it stands, ", root.EdgeID)
	default:
		fmt.Fprintf(&b, "The evidence shows ")
	}
	if len(root.Premises) == 0 {
		fmt.Fprintf(&b, "%s was asserted directly with expectation %.2f.", root.EdgeID, root.Expectation)
		return b.String()
	}
	ids := make([]string, len(root.Premises))
	for i, p := range root.Premises {
		ids[i] = p.EdgeID
	}
	fmt.Fprintf(&b, "%s holds, the system concluded %s by %s (expectation %.2f).",
		strings.Join(ids, " and "), root.EdgeID, root.Rule, root.Expectation)
	return b.String()
}

func (e *Explainer) justification(root *Node) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conclusion: %s (expectation %.2f)\n", root.EdgeID, root.Expectation)
	var walk func(n *Node)
	walk = func(n *Node) {
		for _, p := range n.Premises {
			fmt.Fprintf(&b, "- %s supports %s", p.EdgeID, n.EdgeID)
			if n.Rule != "" {
				fmt.Fprintf(&b, " via %s", n.Rule)
			}
			b.WriteByte('\n')
			walk(p)
		}
	}
	walk(root)
	return b.String()
}
