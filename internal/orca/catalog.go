package orca

import (
	"sort"
	"sync"
)

const MaxGraphletSize = 5

// noEdgeOrbit marks the edge of the two-node graphlet, which has no column.
const noEdgeOrbit = -1

// Graphlet is a connected graph on 2..5 nodes in its canonical labelling.
type Graphlet struct {
	ID     int    `json:"id"`
	Nodes  int    `json:"nodes"`
	Edges  int    `json:"edges"`
	Code   uint16 `json:"code"`
	Orbits []int  `json:"orbits"`
	// EdgeOrbits holds the edge orbit of every edge of the canonical form,
	// keyed by pair index. The two-node graphlet maps its edge to -1.
	EdgeOrbits map[int]int `json:"edge_orbits"`
}

// classification maps a labelled subgraph (position -> orbit) for one
// adjacency mask of size s.
type classification struct {
	graphlet  int16
	nodeOrbit [MaxGraphletSize]int16
	edgeOrbit [10]int16
}

type catalog struct {
	graphlets  []Graphlet
	nodeOrbits [MaxGraphletSize + 1]int // node orbits of graphlets with at most s nodes
	edgeOrbits [MaxGraphletSize + 1]int
	table      [MaxGraphletSize + 1][]classification
	pairIndex  [MaxGraphletSize][MaxGraphletSize]int
	pairs      [MaxGraphletSize + 1][][2]int
}

var (
	catalogOnce sync.Once
	theCatalog  *catalog
)

func getCatalog() *catalog {
	catalogOnce.Do(func() {
		theCatalog = buildCatalog()
	})
	return theCatalog
}

// Graphlets returns the catalogue of connected graphlets on up to maxNodes
// nodes, in orbit numbering order.
//
// Node orbits 0..14 of the graphlets up to four nodes carry the standard
// numbering. The five-node orbits 15..72 and every edge orbit follow this
// catalogue's own ordering, which is not the Pržulj G9..G29 numbering that
// liborca prints, so size 5 columns must be mapped before comparing them.
func Graphlets(maxNodes int) []Graphlet {
	c := getCatalog()
	var out []Graphlet
	for _, g := range c.graphlets {
		if g.Nodes <= maxNodes {
			out = append(out, g)
		}
	}
	return out
}

// NodeOrbitCount returns the number of node orbits of graphlets with at most
// size nodes: 15 for size 4 and 73 for size 5.
func NodeOrbitCount(size int) int {
	if size < 2 || size > MaxGraphletSize {
		return 0
	}
	return getCatalog().nodeOrbits[size]
}

// EdgeOrbitCount returns the number of edge orbits of graphlets with at most
// size nodes, counted from the three-node graphlets: 12 for size 4 and 68 for
// size 5.
func EdgeOrbitCount(size int) int {
	if size < 2 || size > MaxGraphletSize {
		return 0
	}
	return getCatalog().edgeOrbits[size]
}

// pairs are ordered (0,1), (0,2), ..., (s-2,s-1); the same pair index is used
// for every s so masks of smaller graphlets embed into larger ones.
func buildPairs(c *catalog) {
	idx := 0
	for j := 1; j < MaxGraphletSize; j++ {
		for i := 0; i < j; i++ {
			c.pairIndex[i][j] = idx
			c.pairIndex[j][i] = idx
			idx++
		}
	}
	for s := 2; s <= MaxGraphletSize; s++ {
		for j := 1; j < s; j++ {
			for i := 0; i < j; i++ {
				c.pairs[s] = append(c.pairs[s], [2]int{i, j})
			}
		}
	}
}

func permutations(s int) [][]int {
	var out [][]int
	p := make([]int, s)
	for i := range p {
		p[i] = i
	}
	var rec func(k int)
	rec = func(k int) {
		if k == s {
			q := make([]int, s)
			copy(q, p)
			out = append(out, q)
			return
		}
		for i := k; i < s; i++ {
			p[k], p[i] = p[i], p[k]
			rec(k + 1)
			p[k], p[i] = p[i], p[k]
		}
	}
	rec(0)
	return out
}

func (c *catalog) permute(s int, mask uint16, p []int) uint16 {
	var out uint16
	for _, pr := range c.pairs[s] {
		if mask&(1<<c.pairIndex[pr[0]][pr[1]]) != 0 {
			out |= 1 << c.pairIndex[p[pr[0]]][p[pr[1]]]
		}
	}
	return out
}

func (c *catalog) connected(s int, mask uint16) bool {
	seen := 1
	stack := []int{0}
	for len(stack) > 0 {
		u := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for v := 0; v < s; v++ {
			if v == u || seen&(1<<v) != 0 {
				continue
			}
			if mask&(1<<c.pairIndex[u][v]) != 0 {
				seen |= 1 << v
				stack = append(stack, v)
			}
		}
	}
	return seen == (1<<s)-1
}

func (c *catalog) degrees(s int, mask uint16) []int {
	deg := make([]int, s)
	for _, pr := range c.pairs[s] {
		if mask&(1<<c.pairIndex[pr[0]][pr[1]]) != 0 {
			deg[pr[0]]++
			deg[pr[1]]++
		}
	}
	return deg
}

func popcount(m uint16) int {
	n := 0
	for m != 0 {
		m &= m - 1
		n++
	}
	return n
}

type canonicalForm struct {
	size   int
	code   uint16
	edges  int
	degSeq []int
	// orbit class of each canonical position before global numbering
	posClass  []int
	pairClass map[int]int
	autos     [][]int
}

func lessInts(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}

func buildCatalog() *catalog {
	c := &catalog{}
	buildPairs(c)

	perms := make([][][]int, MaxGraphletSize+1)
	for s := 2; s <= MaxGraphletSize; s++ {
		perms[s] = permutations(s)
	}

	type labelled struct {
		canon uint16
		perm  []int // position in mask -> position in canonical form
	}
	labels := make([]map[uint16]labelled, MaxGraphletSize+1)
	forms := make(map[[2]int]*canonicalForm)
	var order []*canonicalForm

	for s := 2; s <= MaxGraphletSize; s++ {
		labels[s] = make(map[uint16]labelled)
		nPairs := len(c.pairs[s])
		for mask := uint16(0); mask < 1<<nPairs; mask++ {
			if !c.connected(s, mask) {
				continue
			}
			best := uint16(0xffff)
			var bestPerm []int
			for _, p := range perms[s] {
				if pm := c.permute(s, mask, p); pm < best {
					best = pm
					bestPerm = p
				}
			}
			labels[s][mask] = labelled{canon: best, perm: bestPerm}

			key := [2]int{s, int(best)}
			if _, ok := forms[key]; !ok {
				f := &canonicalForm{size: s, code: best, edges: popcount(best)}
				deg := c.degrees(s, best)
				f.degSeq = append([]int(nil), deg...)
				sort.Sort(sort.Reverse(sort.IntSlice(f.degSeq)))
				for _, p := range perms[s] {
					if c.permute(s, best, p) == best {
						f.autos = append(f.autos, p)
					}
				}
				forms[key] = f
				order = append(order, f)
			}
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		a, b := order[i], order[j]
		if a.size != b.size {
			return a.size < b.size
		}
		if a.edges != b.edges {
			return a.edges < b.edges
		}
		if !equalInts(a.degSeq, b.degSeq) {
			return lessInts(a.degSeq, b.degSeq)
		}
		return a.code < b.code
	})

	nodeOrbit := 0
	edgeOrbit := 0
	for id, f := range order {
		c.assignOrbits(f, &nodeOrbit, &edgeOrbit)
		g := Graphlet{
			ID:         id,
			Nodes:      f.size,
			Edges:      f.edges,
			Code:       f.code,
			Orbits:     f.posClass,
			EdgeOrbits: f.pairClass,
		}
		c.graphlets = append(c.graphlets, g)
		c.nodeOrbits[f.size] = nodeOrbit
		c.edgeOrbits[f.size] = edgeOrbit
	}
	for s := 3; s <= MaxGraphletSize; s++ {
		if c.nodeOrbits[s] == 0 {
			c.nodeOrbits[s] = c.nodeOrbits[s-1]
			c.edgeOrbits[s] = c.edgeOrbits[s-1]
		}
	}

	index := make(map[[2]int]int, len(order))
	for id, f := range order {
		index[[2]int{f.size, int(f.code)}] = id
	}

	for s := 2; s <= MaxGraphletSize; s++ {
		nPairs := len(c.pairs[s])
		c.table[s] = make([]classification, 1<<nPairs)
		for i := range c.table[s] {
			c.table[s][i].graphlet = -1
		}
		for mask, l := range labels[s] {
			id := index[[2]int{s, int(l.canon)}]
			g := c.graphlets[id]
			cl := classification{graphlet: int16(id)}
			for pos := 0; pos < s; pos++ {
				cl.nodeOrbit[pos] = int16(g.Orbits[l.perm[pos]])
			}
			for i := range cl.edgeOrbit {
				cl.edgeOrbit[i] = -1
			}
			for _, pr := range c.pairs[s] {
				pi := c.pairIndex[pr[0]][pr[1]]
				if mask&(1<<pi) == 0 {
					continue
				}
				cpi := c.pairIndex[l.perm[pr[0]]][l.perm[pr[1]]]
				cl.edgeOrbit[pi] = int16(g.EdgeOrbits[cpi])
			}
			c.table[s][mask] = cl
		}
	}

	return c
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// assignOrbits groups canonical positions and edges into automorphism orbits
// and numbers them, ordering node orbits by (degree, neighbour degrees) and
// edge orbits by their endpoint degrees.
func (c *catalog) assignOrbits(f *canonicalForm, nodeNext, edgeNext *int) {
	s := f.size
	deg := c.degrees(s, f.code)

	rep := make([]int, s)
	for v := 0; v < s; v++ {
		rep[v] = v
		for _, p := range f.autos {
			if p[v] < rep[v] {
				rep[v] = p[v]
			}
		}
	}

	type nodeKey struct {
		rep    int
		deg    int
		nbrDeg []int
	}
	var keys []nodeKey
	seen := make(map[int]bool)
	for v := 0; v < s; v++ {
		if seen[rep[v]] {
			continue
		}
		seen[rep[v]] = true
		var nd []int
		for u := 0; u < s; u++ {
			if u != v && f.code&(1<<c.pairIndex[u][v]) != 0 {
				nd = append(nd, deg[u])
			}
		}
		sort.Ints(nd)
		keys = append(keys, nodeKey{rep: rep[v], deg: deg[v], nbrDeg: nd})
	}
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].deg != keys[j].deg {
			return keys[i].deg < keys[j].deg
		}
		if !equalInts(keys[i].nbrDeg, keys[j].nbrDeg) {
			return lessInts(keys[i].nbrDeg, keys[j].nbrDeg)
		}
		return keys[i].rep < keys[j].rep
	})
	orbitOfRep := make(map[int]int, len(keys))
	for _, k := range keys {
		orbitOfRep[k.rep] = *nodeNext
		*nodeNext++
	}
	f.posClass = make([]int, s)
	for v := 0; v < s; v++ {
		f.posClass[v] = orbitOfRep[rep[v]]
	}

	// The lone edge is not an edge orbit: every edge sits in it exactly once.
	if s == 2 {
		f.pairClass = map[int]int{c.pairIndex[0][1]: noEdgeOrbit}
		return
	}

	edgeRep := make(map[int]int)
	for _, pr := range c.pairs[s] {
		pi := c.pairIndex[pr[0]][pr[1]]
		if f.code&(1<<pi) == 0 {
			continue
		}
		r := pi
		for _, p := range f.autos {
			if q := c.pairIndex[p[pr[0]]][p[pr[1]]]; q < r {
				r = q
			}
		}
		edgeRep[pi] = r
	}

	type edgeKey struct {
		rep    int
		lo, hi int
	}
	var ekeys []edgeKey
	eseen := make(map[int]bool)
	for _, pr := range c.pairs[s] {
		pi := c.pairIndex[pr[0]][pr[1]]
		r, ok := edgeRep[pi]
		if !ok || eseen[r] {
			continue
		}
		eseen[r] = true
		lo, hi := deg[pr[0]], deg[pr[1]]
		if lo > hi {
			lo, hi = hi, lo
		}
		ekeys = append(ekeys, edgeKey{rep: r, lo: lo, hi: hi})
	}
	sort.SliceStable(ekeys, func(i, j int) bool {
		if ekeys[i].lo != ekeys[j].lo {
			return ekeys[i].lo < ekeys[j].lo
		}
		if ekeys[i].hi != ekeys[j].hi {
			return ekeys[i].hi < ekeys[j].hi
		}
		return ekeys[i].rep < ekeys[j].rep
	})
	edgeOrbitOfRep := make(map[int]int, len(ekeys))
	for _, k := range ekeys {
		edgeOrbitOfRep[k.rep] = *edgeNext
		*edgeNext++
	}
	f.pairClass = make(map[int]int, len(edgeRep))
	for pi, r := range edgeRep {
		f.pairClass[pi] = edgeOrbitOfRep[r]
	}
}
