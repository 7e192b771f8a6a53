package orca

import (
	"sort"
	"testing"
)

func TestOrbitCounts(t *testing.T) {
	tests := []struct {
		size  int
		nodes int
		edges int
	}{
		{2, 1, 0},
		{3, 4, 2},
		{4, 15, 12},
		{5, 73, 68},
	}
	for _, tt := range tests {
		if got := NodeOrbitCount(tt.size); got != tt.nodes {
			t.Errorf("NodeOrbitCount(%d) = %d, want %d", tt.size, got, tt.nodes)
		}
		if got := EdgeOrbitCount(tt.size); got != tt.edges {
			t.Errorf("EdgeOrbitCount(%d) = %d, want %d", tt.size, got, tt.edges)
		}
	}

	if NodeOrbitCount(6) != 0 || EdgeOrbitCount(1) != 0 {
		t.Error("expected zero outside supported sizes")
	}
}

func TestGraphletCatalogue(t *testing.T) {
	all := Graphlets(5)
	if len(all) != 30 {
		t.Fatalf("expected 30 graphlets on 2..5 nodes, got %d", len(all))
	}
	if n := len(Graphlets(4)); n != 9 {
		t.Errorf("expected 9 graphlets on up to 4 nodes, got %d", n)
	}

	seen := make(map[int]bool)
	for i, g := range all {
		if g.ID != i {
			t.Errorf("graphlet %d has id %d", i, g.ID)
		}
		if len(g.Orbits) != g.Nodes {
			t.Errorf("graphlet %d: %d orbit entries for %d nodes", i, len(g.Orbits), g.Nodes)
		}
		if len(g.EdgeOrbits) != g.Edges {
			t.Errorf("graphlet %d: %d edge orbit entries for %d edges", i, len(g.EdgeOrbits), g.Edges)
		}
		for _, o := range g.Orbits {
			seen[o] = true
		}
		if i > 0 && all[i-1].Nodes > g.Nodes {
			t.Errorf("graphlet %d out of size order", i)
		}
	}
	if len(seen) != 73 {
		t.Errorf("expected 73 distinct node orbits, got %d", len(seen))
	}

	if o := all[0].EdgeOrbits[0]; o != noEdgeOrbit {
		t.Errorf("the lone edge has edge orbit %d", o)
	}
	edgeSeen := make(map[int]bool)
	for _, g := range all[1:] {
		for _, o := range g.EdgeOrbits {
			edgeSeen[o] = true
		}
	}
	if len(edgeSeen) != 68 || edgeSeen[noEdgeOrbit] || !edgeSeen[0] || !edgeSeen[67] {
		t.Errorf("expected edge orbits 0..67 on three to five nodes, got %d distinct", len(edgeSeen))
	}

	last := all[len(all)-1]
	if last.Nodes != 5 || last.Edges != 10 {
		t.Errorf("expected the clique last, got %d nodes %d edges", last.Nodes, last.Edges)
	}
}

func TestStandardNumbering(t *testing.T) {
	// node orbits of the graphlets on up to four nodes, in catalogue order
	want := [][]int{
		{0},
		{1, 2},
		{3},
		{4, 5},
		{6, 7},
		{8},
		{9, 10, 11},
		{12, 13},
		{14},
	}
	for i, g := range Graphlets(4) {
		got := distinct(g.Orbits)
		if !equalInts(got, want[i]) {
			t.Errorf("graphlet %d orbits %v, want %v", i, got, want[i])
		}
	}
}

func distinct(xs []int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, x := range xs {
		if !seen[x] {
			seen[x] = true
			out = append(out, x)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

func TestFourNodeOrbitNumbering(t *testing.T) {
	want := [][]int{
		{0},         // edge
		{1, 2},      // path of three
		{3},         // triangle
		{4, 5},      // path of four
		{6, 7},      // star
		{8},         // square
		{9, 10, 11}, // paw
		{12, 13},    // diamond
		{14},        // K4
	}
	got := Graphlets(4)
	if len(got) != len(want) {
		t.Fatalf("expected %d graphlets, got %d", len(want), len(got))
	}
	for i, g := range got {
		set := make(map[int]bool)
		for _, o := range g.Orbits {
			set[o] = true
		}
		var orbits []int
		for o := range set {
			orbits = append(orbits, o)
		}
		sort.Ints(orbits)
		if !equalInts(orbits, want[i]) {
			t.Errorf("graphlet %d: orbits %v, want %v", i, orbits, want[i])
		}
	}

	for _, g := range Graphlets(5)[len(want):] {
		for _, o := range g.Orbits {
			if o < 15 || o > 72 {
				t.Errorf("five-node graphlet %d has orbit %d outside 15..72", g.ID, o)
			}
		}
	}
}
