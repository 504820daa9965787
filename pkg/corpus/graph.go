package corpus

import (
	"sort"

	"github.com/duynguyendang/lmerec/pkg/dict"
)

// Edge is one weighted adjacency of the co-occurrence graph.
type Edge struct {
	To     dict.ID
	Weight float64
}

// Graph is the weighted, undirected co-occurrence graph over class ids.
//
// For a subject s and object t the affinity is
// pair_count[s,t] / out_count[s]: the share of s's outgoing triples that
// point at t. The affinity is computed per subject and attached to the
// undirected edge {s,t}. If both (s,t) and (t,s) are observed the edge keeps
// the larger affinity.
type Graph struct {
	adj   [][]Edge // id -> neighbours sorted by id
	edges int
}

type pair struct {
	s, t dict.ID
}

// NewGraph builds the co-occurrence graph of c over numNodes node ids.
// numNodes is raised to c.NumNodes() if smaller.
func NewGraph(c *Corpus, numNodes int) *Graph {
	if n := c.NumNodes(); n > numNodes {
		numNodes = n
	}

	pairCount := make(map[pair]int)
	outCount := make([]int, numNodes)
	var order []pair // first-seen order keeps construction deterministic

	for _, tr := range c.Triples() {
		p := pair{tr.Subject, tr.Object}
		if _, seen := pairCount[p]; !seen {
			order = append(order, p)
		}
		pairCount[p]++
		outCount[tr.Subject]++
	}

	weights := make(map[pair]float64, len(order))
	for _, p := range order {
		w := float64(pairCount[p]) / float64(outCount[p.s])
		key := undirected(p.s, p.t)
		if prev, ok := weights[key]; !ok || w > prev {
			weights[key] = w
		}
	}

	g := &Graph{adj: make([][]Edge, numNodes)}
	for key, w := range weights {
		g.adj[key.s] = append(g.adj[key.s], Edge{To: key.t, Weight: w})
		if key.s != key.t {
			g.adj[key.t] = append(g.adj[key.t], Edge{To: key.s, Weight: w})
		}
		g.edges++
	}
	for _, edges := range g.adj {
		sort.Slice(edges, func(i, j int) bool { return edges[i].To < edges[j].To })
	}
	return g
}

func undirected(a, b dict.ID) pair {
	if a > b {
		a, b = b, a
	}
	return pair{a, b}
}

// NumNodes returns the size of the node id space.
func (g *Graph) NumNodes() int {
	if g == nil {
		return 0
	}
	return len(g.adj)
}

// EdgeCount returns the number of undirected edges, self loops included.
func (g *Graph) EdgeCount() int {
	if g == nil {
		return 0
	}
	return g.edges
}

// Neighbors returns the adjacencies of id sorted by neighbour id.
// Callers must not modify the returned slice.
func (g *Graph) Neighbors(id dict.ID) []Edge {
	if g == nil || id < 0 || int(id) >= len(g.adj) {
		return nil
	}
	return g.adj[id]
}

// Weight returns the weight of edge {a,b}.
func (g *Graph) Weight(a, b dict.ID) (float64, bool) {
	edges := g.Neighbors(a)
	i := sort.Search(len(edges), func(i int) bool { return edges[i].To >= b })
	if i < len(edges) && edges[i].To == b {
		return edges[i].Weight, true
	}
	return 0, false
}

// HasEdge reports whether a and b are adjacent.
func (g *Graph) HasEdge(a, b dict.ID) bool {
	_, ok := g.Weight(a, b)
	return ok
}

// Nodes returns every node id that has at least one edge.
func (g *Graph) Nodes() []dict.ID {
	if g == nil {
		return nil
	}
	nodes := make([]dict.ID, 0, len(g.adj))
	for id, edges := range g.adj {
		if len(edges) > 0 {
			nodes = append(nodes, dict.ID(id))
		}
	}
	return nodes
}
