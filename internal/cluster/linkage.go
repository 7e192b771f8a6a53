// Package cluster implements agglomerative hierarchical clustering over a
// condensed distance matrix, producing linkage matrices in the layout SciPy
// uses: row i merges clusters A and B at Distance into cluster n+i.
package cluster

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/gsagostini/urban-graphlets/internal/orca"
)

type Method string

const (
	Single   Method = "single"
	Complete Method = "complete"
	Average  Method = "average"
	Weighted Method = "weighted"
	Ward     Method = "ward"
)

func ParseMethod(s string) (Method, error) {
	switch m := Method(strings.ToLower(strings.TrimSpace(s))); m {
	case Single, Complete, Average, Weighted, Ward:
		return m, nil
	case "":
		return Ward, nil
	}
	return "", fmt.Errorf("%w: unknown linkage method %q", orca.ErrUnsupported, s)
}

// Merge is one row of a linkage matrix.
type Merge struct {
	A        int
	B        int
	Distance float64
	Size     int
}

// MarshalJSON writes the row as [a, b, distance, size].
func (m Merge) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{m.A, m.B, m.Distance, m.Size})
}

func (m *Merge) UnmarshalJSON(data []byte) error {
	var row []float64
	if err := json.Unmarshal(data, &row); err != nil {
		return err
	}
	if len(row) != 4 {
		return fmt.Errorf("linkage row has %d values, want 4", len(row))
	}
	m.A, m.B, m.Distance, m.Size = int(row[0]), int(row[1]), row[2], int(row[3])
	return nil
}

// Observations returns the number of observations n for a condensed matrix
// of the given length, or an error when the length is not n(n-1)/2.
func Observations(condensedLen int) (int, error) {
	n := int(math.Ceil(math.Sqrt(float64(condensedLen * 2))))
	if n*(n-1)/2 != condensedLen {
		return 0, fmt.Errorf("%w: %d is not a valid condensed matrix length", orca.ErrInvalidInput, condensedLen)
	}
	return n, nil
}

// Linkage clusters n observations with the nearest-neighbour chain
// algorithm. condensed is not modified.
func Linkage(condensed []float64, method Method) ([]Merge, error) {
	if _, err := ParseMethod(string(method)); err != nil {
		return nil, err
	}
	n, err := Observations(len(condensed))
	if err != nil {
		return nil, err
	}
	if n < 2 {
		return []Merge{}, nil
	}
	for i, d := range condensed {
		if math.IsNaN(d) || math.IsInf(d, 0) {
			return nil, fmt.Errorf("%w: distance %d is not finite", orca.ErrInvalidInput, i)
		}
	}

	d := make([]float64, len(condensed))
	copy(d, condensed)
	at := func(i, j int) *float64 {
		if i > j {
			i, j = j, i
		}
		return &d[n*i-i*(i+1)/2+(j-i-1)]
	}

	size := make([]int, n)
	for i := range size {
		size[i] = 1
	}

	merges := make([]Merge, 0, n-1)
	chain := make([]int, 0, n)

	for k := 0; k < n-1; k++ {
		if len(chain) == 0 {
			for i := 0; i < n; i++ {
				if size[i] > 0 {
					chain = append(chain, i)
					break
				}
			}
		}

		var x, y int
		var best float64
		for {
			x = chain[len(chain)-1]
			best = math.Inf(1)
			y = -1
			if len(chain) > 1 {
				y = chain[len(chain)-2]
				best = *at(x, y)
			}
			for i := 0; i < n; i++ {
				if size[i] == 0 || i == x {
					continue
				}
				if v := *at(x, i); v < best {
					best = v
					y = i
				}
			}
			if len(chain) > 1 && y == chain[len(chain)-2] {
				break
			}
			chain = append(chain, y)
		}
		chain = chain[:len(chain)-2]

		if x > y {
			x, y = y, x
		}
		nx, ny := size[x], size[y]
		merges = append(merges, Merge{A: x, B: y, Distance: best, Size: nx + ny})

		size[x] = 0
		size[y] = nx + ny
		for i := 0; i < n; i++ {
			ni := size[i]
			if ni == 0 || i == y {
				continue
			}
			*at(i, y) = update(method, *at(i, x), *at(i, y), best, float64(nx), float64(ny), float64(ni))
		}
	}

	return relabel(merges, n), nil
}

// update is the Lance-Williams recurrence for the distance between cluster i
// and the union of x and y.
func update(method Method, dx, dy, dxy, nx, ny, ni float64) float64 {
	switch method {
	case Single:
		return math.Min(dx, dy)
	case Complete:
		return math.Max(dx, dy)
	case Average:
		return (nx*dx + ny*dy) / (nx + ny)
	case Weighted:
		return (dx + dy) / 2
	default:
		t := 1 / (nx + ny + ni)
		return math.Sqrt(math.Max(0, (ni+nx)*t*dx*dx+(ni+ny)*t*dy*dy-ni*t*dxy*dxy))
	}
}

// relabel sorts merges by distance and renames observation indices to
// cluster ids: a merge refers to the clusters containing its observations.
func relabel(merges []Merge, n int) []Merge {
	sort.SliceStable(merges, func(i, j int) bool { return merges[i].Distance < merges[j].Distance })

	uf := newUnionFind(n)
	out := make([]Merge, len(merges))
	for i, m := range merges {
		a, b := uf.find(m.A), uf.find(m.B)
		id := n + i
		size := uf.union(a, b, id)
		if a > b {
			a, b = b, a
		}
		out[i] = Merge{A: a, B: b, Distance: m.Distance, Size: size}
	}
	return out
}

// unionFind tracks cluster ids: each root carries the id of the most recent
// merge that produced it.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, 2*n-1), size: make([]int, 2*n-1)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (u *unionFind) find(x int) int {
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		x, u.parent[x] = u.parent[x], root
	}
	return root
}

func (u *unionFind) union(a, b, id int) int {
	u.parent[a] = id
	u.parent[b] = id
	u.size[id] = u.size[a] + u.size[b]
	return u.size[id]
}
