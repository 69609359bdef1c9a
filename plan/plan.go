package plan

import (
	"fmt"
	"sort"
)

// Plan is a frozen DAG of nodes and edges, built once by an external
// collaborator (a plan builder) and never mutated by an executor.
type Plan struct {
	Nodes    map[string]*Node
	Edges    []Edge
	Metadata map[string]any
}

// NewPlan builds an empty plan ready for nodes/edges to be added.
func NewPlan() *Plan {
	return &Plan{Nodes: make(map[string]*Node), Metadata: make(map[string]any)}
}

// AddNode registers a node under its own ID.
func (p *Plan) AddNode(n *Node) {
	p.Nodes[n.ID] = n
}

// AddEdge appends an edge between two already-added nodes.
func (p *Plan) AddEdge(e Edge) {
	p.Edges = append(p.Edges, e)
}

// Error reports a plan validation or construction failure.
type Error struct {
	Kind    string
	NodeID  string
	Message string
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: %s (node %s)", e.Kind, e.Message, e.NodeID)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// CapLookup is the arg-metadata collaborator Validate consults to check
// argBindings completeness for Cap nodes, without depending on the
// registry package directly (keeps plan free of a registry import cycle).
type CapLookup interface {
	// LookupArgs resolves capUrnPattern to a concrete cap's declared
	// argument names, the subset that are required, and whether each
	// required arg has a cap-level default. Returns an error if no cap
	// can be found for the pattern.
	LookupArgs(capUrnPattern string) (argNames map[string]bool, requiredArgs []string, hasDefault map[string]bool, err error)
}

// Validate checks plan invariants per spec §3/§4.9: DAG acyclicity, edge
// endpoint existence, Cap-node binding completeness against the
// referenced cap's declared args (via lookup), ForEach/Collect input-node
// presence, and unique non-empty Output names. lookup may be nil, in
// which case Cap-node binding completeness is skipped (useful before a
// registry exists, e.g. in unit tests of plan shape alone).
func (p *Plan) Validate(lookup CapLookup) error {
	if err := p.checkEdgeEndpoints(); err != nil {
		return err
	}
	if err := p.checkAcyclic(); err != nil {
		return err
	}
	if err := p.checkForEachAndCollect(); err != nil {
		return err
	}
	if err := p.checkOutputNames(); err != nil {
		return err
	}
	if lookup != nil {
		if err := p.checkBindingCompleteness(lookup); err != nil {
			return err
		}
	}
	return nil
}

func (p *Plan) checkEdgeEndpoints() error {
	for _, e := range p.Edges {
		if _, ok := p.Nodes[e.From]; !ok {
			return &Error{Kind: "UnknownNode", NodeID: e.From, Message: "edge references undeclared node"}
		}
		if _, ok := p.Nodes[e.To]; !ok {
			return &Error{Kind: "UnknownNode", NodeID: e.To, Message: "edge references undeclared node"}
		}
	}
	return nil
}

// checkAcyclic runs a DFS with white/gray/black coloring over the edge
// list, reporting the first back edge found.
func (p *Plan) checkAcyclic() error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(p.Nodes))
	adjacency := p.adjacency()

	nodeIDs := make([]string, 0, len(p.Nodes))
	for id := range p.Nodes {
		nodeIDs = append(nodeIDs, id)
	}
	sort.Strings(nodeIDs)

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		for _, next := range adjacency[id] {
			switch color[next] {
			case gray:
				return &Error{Kind: "CycleDetected", NodeID: next, Message: "plan graph contains a cycle"}
			case white:
				if err := visit(next); err != nil {
					return err
				}
			}
		}
		color[id] = black
		return nil
	}

	for _, id := range nodeIDs {
		if color[id] == white {
			if err := visit(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Plan) adjacency() map[string][]string {
	adjacency := make(map[string][]string, len(p.Nodes))
	for _, e := range p.Edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}
	return adjacency
}

func (p *Plan) checkForEachAndCollect() error {
	for id, n := range p.Nodes {
		switch n.Kind {
		case NodeForEach:
			if _, ok := p.Nodes[n.InputNode]; !ok {
				return &Error{Kind: "UnknownNode", NodeID: id, Message: fmt.Sprintf("for_each input node %q not declared", n.InputNode)}
			}
		case NodeCollect:
			for _, inID := range n.InputNodes {
				if _, ok := p.Nodes[inID]; !ok {
					return &Error{Kind: "UnknownNode", NodeID: id, Message: fmt.Sprintf("collect input node %q not declared", inID)}
				}
			}
		}
	}
	return nil
}

func (p *Plan) checkOutputNames() error {
	seen := make(map[string]bool)
	for id, n := range p.Nodes {
		if n.Kind != NodeOutput {
			continue
		}
		if n.OutputName == "" {
			return &Error{Kind: "MissingBinding", NodeID: id, Message: "output node has an empty output name"}
		}
		if seen[n.OutputName] {
			return &Error{Kind: "MissingBinding", NodeID: id, Message: fmt.Sprintf("duplicate output name %q", n.OutputName)}
		}
		seen[n.OutputName] = true
		if _, ok := p.Nodes[n.SourceNode]; !ok {
			return &Error{Kind: "UnknownNode", NodeID: id, Message: fmt.Sprintf("output source node %q not declared", n.SourceNode)}
		}
	}
	return nil
}

func (p *Plan) checkBindingCompleteness(lookup CapLookup) error {
	for id, n := range p.Nodes {
		if n.Kind != NodeCap {
			continue
		}
		argNames, required, hasDefault, err := lookup.LookupArgs(n.CapUrnPattern)
		if err != nil {
			return &Error{Kind: "UnknownNode", NodeID: id, Message: err.Error()}
		}
		for bound := range n.ArgBindings {
			if !argNames[bound] {
				return &Error{Kind: "TypeMismatch", NodeID: id, Message: fmt.Sprintf("binding %q is not a declared argument of %s", bound, n.CapUrnPattern)}
			}
		}
		for _, req := range required {
			if _, bound := n.ArgBindings[req]; bound {
				continue
			}
			if hasDefault[req] {
				continue
			}
			return &Error{Kind: "MissingBinding", NodeID: id, Message: fmt.Sprintf("required argument %q has no binding and no cap default", req)}
		}
	}
	return nil
}

// TopologicalOrder computes a deterministic topological order via Kahn's
// algorithm: among nodes with no unresolved predecessor, the
// lexicographically lowest node ID is picked next.
func (p *Plan) TopologicalOrder() ([]string, error) {
	indegree := make(map[string]int, len(p.Nodes))
	adjacency := p.adjacency()
	for id := range p.Nodes {
		indegree[id] = 0
	}
	for _, e := range p.Edges {
		indegree[e.To]++
	}

	ready := make([]string, 0)
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	var order []string
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		var newlyReady []string
		for _, succ := range adjacency[next] {
			indegree[succ]--
			if indegree[succ] == 0 {
				newlyReady = append(newlyReady, succ)
			}
		}
		sort.Strings(newlyReady)
		ready = mergeSorted(ready, newlyReady)
	}

	if len(order) != len(p.Nodes) {
		return nil, &Error{Kind: "CycleDetected", Message: "topological sort could not order all nodes"}
	}
	return order, nil
}

// mergeSorted merges two already-sorted string slices into one sorted slice.
func mergeSorted(a, b []string) []string {
	out := make([]string, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		if a[i] <= b[j] {
			out = append(out, a[i])
			i++
		} else {
			out = append(out, b[j])
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}
