package registry

import (
	"sort"

	"github.com/filegrind/capforge/cap"
)

// Edge is one directed conversion edge in a Graph: a cap whose non-
// wildcard in/out media URNs connect two nodes.
type Edge struct {
	From         string
	To           string
	Cap          *cap.Cap
	RegistryName string
	Specificity  int
}

// Stats summarizes a Graph's shape.
type Stats struct {
	NodeCount       int
	EdgeCount       int
	InputSpecCount  int
	OutputSpecCount int
}

// Graph is a derived, read-only view over a Block snapshot: nodes are the
// distinct media URNs appearing as a cap's in/out, edges are directed
// in->out conversions (spec.md C9). It is a multigraph: parallel edges
// with identical endpoints but different caps all appear.
type Graph struct {
	nodes    map[string]bool
	edges    []Edge
	outgoing map[string][]int
	incoming map[string][]int
}

func newGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]bool),
		outgoing: make(map[string][]int),
		incoming: make(map[string][]int),
	}
}

// addCap adds a cap's in/out media URNs as nodes and edge, skipping caps
// whose direction tags are wildcard (no concrete conversion to record).
func (g *Graph) addCap(c *cap.Cap, registryName string) {
	from := c.Urn.InSpec()
	to := c.Urn.OutSpec()
	if from == "" || to == "" || from == "media:" || to == "media:" {
		return
	}

	g.nodes[from] = true
	g.nodes[to] = true

	idx := len(g.edges)
	g.edges = append(g.edges, Edge{
		From:         from,
		To:           to,
		Cap:          c,
		RegistryName: registryName,
		Specificity:  c.Urn.Specificity(),
	})
	g.outgoing[from] = append(g.outgoing[from], idx)
	g.incoming[to] = append(g.incoming[to], idx)
}

// GetNodes returns all distinct media URN nodes.
func (g *Graph) GetNodes() []string {
	nodes := make([]string, 0, len(g.nodes))
	for n := range g.nodes {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

// GetEdges returns the raw edge multiset.
func (g *Graph) GetEdges() []Edge {
	return g.edges
}

func (g *Graph) edgesByIndex(indices []int) []Edge {
	out := make([]Edge, len(indices))
	for i, idx := range indices {
		out[i] = g.edges[idx]
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Specificity > out[j].Specificity })
	return out
}

// GetOutgoing returns edges leaving node, sorted by specificity desc.
func (g *Graph) GetOutgoing(node string) []Edge {
	return g.edgesByIndex(g.outgoing[node])
}

// GetIncoming returns edges arriving at node, sorted by specificity desc.
func (g *Graph) GetIncoming(node string) []Edge {
	return g.edgesByIndex(g.incoming[node])
}

// GetDirectEdges returns parallel edges directly connecting from to to,
// sorted by specificity desc.
func (g *Graph) GetDirectEdges(from, to string) []Edge {
	var out []Edge
	for _, e := range g.GetOutgoing(from) {
		if e.To == to {
			out = append(out, e)
		}
	}
	return out
}

// CanConvert reports whether any path connects from to to via BFS over
// outgoing edges. from == to is trivially true.
func (g *Graph) CanConvert(from, to string) bool {
	if from == to {
		return true
	}
	if !g.nodes[from] || !g.nodes[to] {
		return false
	}
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, e := range g.outgoing[current] {
			edge := g.edges[e]
			if edge.To == to {
				return true
			}
			if !visited[edge.To] {
				visited[edge.To] = true
				queue = append(queue, edge.To)
			}
		}
	}
	return false
}

// FindPath returns the shortest path of edges from from to to via BFS.
// from == to returns an empty (non-nil) slice; no path returns nil.
// Among equal-length paths, ties are broken by higher edge specificity at
// the earliest point of divergence — achieved by always preferring the
// highest-specificity outgoing edge first during the BFS expansion.
func (g *Graph) FindPath(from, to string) []Edge {
	if from == to {
		return []Edge{}
	}
	if !g.nodes[from] || !g.nodes[to] {
		return nil
	}

	type step struct {
		prev    string
		edgeIdx int
	}
	visited := map[string]*step{from: nil}
	queue := []string{from}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, idx := range g.sortedOutgoingIndices(current) {
			edge := g.edges[idx]
			if edge.To == to {
				path := []Edge{edge}
				back := current
				for visited[back] != nil {
					info := visited[back]
					path = append(path, g.edges[info.edgeIdx])
					back = info.prev
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			if _, seen := visited[edge.To]; !seen {
				visited[edge.To] = &step{prev: current, edgeIdx: idx}
				queue = append(queue, edge.To)
			}
		}
	}
	return nil
}

func (g *Graph) sortedOutgoingIndices(node string) []int {
	indices := append([]int(nil), g.outgoing[node]...)
	sort.SliceStable(indices, func(i, j int) bool {
		return g.edges[indices[i]].Specificity > g.edges[indices[j]].Specificity
	})
	return indices
}

// FindAllPaths enumerates simple paths from from to to up to maxDepth
// hops via depth-bounded DFS, sorted by path length ascending then by
// concatenated specificity desc.
func (g *Graph) FindAllPaths(from, to string, maxDepth int) [][]Edge {
	if !g.nodes[from] || !g.nodes[to] {
		return nil
	}

	var all [][]int
	visited := map[string]bool{from: true}
	var dfs func(current string, depth int, path []int)
	dfs = func(current string, depth int, path []int) {
		if depth == 0 {
			return
		}
		for _, idx := range g.outgoing[current] {
			edge := g.edges[idx]
			if edge.To == to {
				found := append(append([]int(nil), path...), idx)
				all = append(all, found)
				continue
			}
			if !visited[edge.To] {
				visited[edge.To] = true
				dfs(edge.To, depth-1, append(path, idx))
				delete(visited, edge.To)
			}
		}
	}
	dfs(from, maxDepth, nil)

	sort.SliceStable(all, func(i, j int) bool {
		if len(all[i]) != len(all[j]) {
			return len(all[i]) < len(all[j])
		}
		return pathScore(g, all[i]) > pathScore(g, all[j])
	})

	result := make([][]Edge, len(all))
	for i, indices := range all {
		path := make([]Edge, len(indices))
		for j, idx := range indices {
			path[j] = g.edges[idx]
		}
		result[i] = path
	}
	return result
}

func pathScore(g *Graph, indices []int) int {
	score := 0
	for _, idx := range indices {
		score += g.edges[idx].Specificity
	}
	return score
}

// Stats summarizes the graph's shape.
func (g *Graph) Stats() Stats {
	return Stats{
		NodeCount:       len(g.nodes),
		EdgeCount:       len(g.edges),
		InputSpecCount:  len(g.outgoing),
		OutputSpecCount: len(g.incoming),
	}
}
