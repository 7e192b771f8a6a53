package cluster

import (
	"fmt"
	"sort"

	"github.com/gsagostini/urban-graphlets/internal/orca"
)

// FlatClusters cuts a linkage into k clusters by applying its first n-k
// merges. Labels run from 1 to k, the largest cluster first; equal sizes are
// ordered by their smallest observation.
func FlatClusters(merges []Merge, k int) ([]int, error) {
	n := len(merges) + 1
	if k < 1 || k > n {
		return nil, fmt.Errorf("%w: cannot cut %d observations into %d clusters", orca.ErrInvalidInput, n, k)
	}

	uf := newUnionFind(n)
	for i, m := range merges[:n-k] {
		if m.A < 0 || m.B < 0 || m.A >= n+i || m.B >= n+i {
			return nil, fmt.Errorf("%w: merge %d refers to a later cluster", orca.ErrInvalidInput, i)
		}
		uf.union(uf.find(m.A), uf.find(m.B), n+i)
	}

	type group struct {
		root, first, size int
	}
	groups := make(map[int]*group)
	for i := 0; i < n; i++ {
		r := uf.find(i)
		g, ok := groups[r]
		if !ok {
			g = &group{root: r, first: i}
			groups[r] = g
		}
		g.size++
	}

	ordered := make([]*group, 0, len(groups))
	for _, g := range groups {
		ordered = append(ordered, g)
	}
	sort.Slice(ordered, func(i, j int) bool {
		if ordered[i].size != ordered[j].size {
			return ordered[i].size > ordered[j].size
		}
		return ordered[i].first < ordered[j].first
	})

	label := make(map[int]int, len(ordered))
	for i, g := range ordered {
		label[g.root] = i + 1
	}
	out := make([]int, n)
	for i := range out {
		out[i] = label[uf.find(i)]
	}
	return out, nil
}
