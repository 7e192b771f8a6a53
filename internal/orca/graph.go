package orca

import "sort"

type Edge struct {
	U int `json:"u"`
	V int `json:"v"`
}

// Graph is an undirected simple graph on nodes 0..n-1. Adjacency lists are
// sorted; adjEdge[u][i] is the input index of the edge (u, adj[u][i]).
type Graph struct {
	n       int
	edges   []Edge
	adj     [][]int32
	adjEdge [][]int32
}

// NewGraph builds a graph from an edge list. Self-loops, duplicate undirected
// edges and endpoints outside [0, n) are rejected.
func NewGraph(n int, edges []Edge) (*Graph, error) {
	const op = "graph"
	if n < 0 {
		return nil, invalidf(op, "negative node count %d", n)
	}

	g := &Graph{
		n:       n,
		edges:   make([]Edge, len(edges)),
		adj:     make([][]int32, n),
		adjEdge: make([][]int32, n),
	}
	copy(g.edges, edges)

	for i, e := range edges {
		if e.U < 0 || e.U >= n || e.V < 0 || e.V >= n {
			return nil, invalidf(op, "edge %d (%d, %d): node out of range [0, %d)", i, e.U, e.V, n)
		}
		if e.U == e.V {
			return nil, invalidf(op, "edge %d: self-loop on node %d", i, e.U)
		}
		g.adj[e.U] = append(g.adj[e.U], int32(e.V))
		g.adjEdge[e.U] = append(g.adjEdge[e.U], int32(i))
		g.adj[e.V] = append(g.adj[e.V], int32(e.U))
		g.adjEdge[e.V] = append(g.adjEdge[e.V], int32(i))
	}

	for u := 0; u < n; u++ {
		sort.Sort(&adjSorter{nodes: g.adj[u], ids: g.adjEdge[u]})
		for i := 1; i < len(g.adj[u]); i++ {
			if g.adj[u][i] == g.adj[u][i-1] {
				return nil, invalidf(op, "duplicate undirected edge (%d, %d)", u, g.adj[u][i])
			}
		}
	}

	return g, nil
}

func (g *Graph) NodeCount() int { return g.n }

func (g *Graph) EdgeCount() int { return len(g.edges) }

func (g *Graph) Edges() []Edge {
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

func (g *Graph) Degree(u int) int { return len(g.adj[u]) }

// Neighbors returns the sorted adjacency of u. The slice must not be modified.
func (g *Graph) Neighbors(u int) []int32 { return g.adj[u] }

func (g *Graph) HasEdge(u, v int) bool {
	_, ok := g.edgeID(int32(u), int32(v))
	return ok
}

// edgeID searches the shorter of the two adjacency lists.
func (g *Graph) edgeID(u, v int32) (int32, bool) {
	if len(g.adj[u]) > len(g.adj[v]) {
		u, v = v, u
	}
	list := g.adj[u]
	i := sort.Search(len(list), func(i int) bool { return list[i] >= v })
	if i < len(list) && list[i] == v {
		return g.adjEdge[u][i], true
	}
	return 0, false
}

type adjSorter struct {
	nodes []int32
	ids   []int32
}

func (s *adjSorter) Len() int           { return len(s.nodes) }
func (s *adjSorter) Less(i, j int) bool { return s.nodes[i] < s.nodes[j] }
func (s *adjSorter) Swap(i, j int) {
	s.nodes[i], s.nodes[j] = s.nodes[j], s.nodes[i]
	s.ids[i], s.ids[j] = s.ids[j], s.ids[i]
}
