package graphlet

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/gsagostini/urban-graphlets/internal/orca"
)

// SignatureOrbits is the number of node orbits of graphlets up to four nodes.
const SignatureOrbits = 15

// RedundantOrbits are linear combinations of the other orbits and carry no
// information in a correlation matrix.
var RedundantOrbits = []int{3, 12, 13, 14}

// RetainedOrbits lists the orbits kept by TrimGDV, in order.
func RetainedOrbits() []int {
	var out []int
	for i := 0; i < SignatureOrbits; i++ {
		if !isRedundant(i) {
			out = append(out, i)
		}
	}
	return out
}

func isRedundant(orbit int) bool {
	for _, r := range RedundantOrbits {
		if r == orbit {
			return true
		}
	}
	return false
}

// TrimGDV keeps the non-redundant orbits among the first fifteen.
func TrimGDV(gdv []int64) ([]int64, error) {
	if len(gdv) < SignatureOrbits {
		return nil, fmt.Errorf("%w: signature has %d orbits, need %d", orca.ErrInvalidInput, len(gdv), SignatureOrbits)
	}
	out := make([]int64, 0, SignatureOrbits-len(RedundantOrbits))
	for i := 0; i < SignatureOrbits; i++ {
		if !isRedundant(i) {
			out = append(out, gdv[i])
		}
	}
	return out, nil
}

func TrimGDM(gdm [][]int64) ([][]int64, error) {
	out := make([][]int64, len(gdm))
	for i, row := range gdm {
		t, err := TrimGDV(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = t
	}
	return out, nil
}

// Matrix is a dense float matrix whose NaN entries encode as JSON null.
type Matrix [][]float64

func (m Matrix) MarshalJSON() ([]byte, error) {
	rows := make([][]*float64, len(m))
	for i, row := range m {
		rows[i] = make([]*float64, len(row))
		for j := range row {
			if !math.IsNaN(row[j]) && !math.IsInf(row[j], 0) {
				rows[i][j] = &row[j]
			}
		}
	}
	return json.Marshal(rows)
}

func (m *Matrix) UnmarshalJSON(data []byte) error {
	var rows [][]*float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	out := make(Matrix, len(rows))
	for i, row := range rows {
		out[i] = make([]float64, len(row))
		for j, v := range row {
			if v == nil {
				out[i][j] = math.NaN()
			} else {
				out[i][j] = *v
			}
		}
	}
	*m = out
	return nil
}

// GCM is a graphlet correlation matrix over the retained orbits.
type GCM struct {
	Orbits []int  `json:"orbits"`
	Matrix Matrix `json:"matrix"`
}

// Valid reports whether every entry is finite.
func (g *GCM) Valid() bool {
	if g == nil {
		return false
	}
	for _, row := range g.Matrix {
		for _, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}

// Vector returns the strict upper triangle in row-major order, 55 values for
// an 11x11 matrix.
func (g *GCM) Vector() []float64 {
	k := len(g.Matrix)
	out := make([]float64, 0, k*(k-1)/2)
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			out = append(out, g.Matrix[i][j])
		}
	}
	return out
}

// ComputeGCM returns the Spearman correlation between orbit columns of the
// trimmed GDM, with a row of ones appended as a dummy signature. An empty
// GDM has no GCM and yields nil. Columns with no variance produce NaN.
func ComputeGCM(gdm [][]int64) (*GCM, error) {
	if len(gdm) == 0 {
		return nil, nil
	}
	trimmed, err := TrimGDM(gdm)
	if err != nil {
		return nil, err
	}

	k := len(trimmed[0])
	rows := len(trimmed) + 1
	ranks := make([][]float64, k)
	col := make([]float64, rows)
	for j := 0; j < k; j++ {
		for i, r := range trimmed {
			col[i] = float64(r[j])
		}
		col[rows-1] = 1
		ranks[j] = rankAverage(col)
	}

	return &GCM{Orbits: RetainedOrbits(), Matrix: corrcoef(ranks)}, nil
}

// rankAverage assigns 1-based ranks, ties receiving the mean of their ranks.
func rankAverage(xs []float64) []float64 {
	idx := make([]int, len(xs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return xs[idx[a]] < xs[idx[b]] })

	ranks := make([]float64, len(xs))
	for i := 0; i < len(idx); {
		j := i
		for j+1 < len(idx) && xs[idx[j+1]] == xs[idx[i]] {
			j++
		}
		avg := float64(i+j)/2 + 1
		for k := i; k <= j; k++ {
			ranks[idx[k]] = avg
		}
		i = j + 1
	}
	return ranks
}

// corrcoef returns the Pearson correlation between every pair of variables.
func corrcoef(vars [][]float64) Matrix {
	k := len(vars)
	centered := make([][]float64, k)
	norms := make([]float64, k)
	for i, v := range vars {
		var mean float64
		for _, x := range v {
			mean += x
		}
		mean /= float64(len(v))
		c := make([]float64, len(v))
		var ss float64
		for t, x := range v {
			c[t] = x - mean
			ss += c[t] * c[t]
		}
		centered[i] = c
		norms[i] = math.Sqrt(ss)
	}

	m := make(Matrix, k)
	for i := range m {
		m[i] = make([]float64, k)
	}
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			var r float64
			if norms[i] == 0 || norms[j] == 0 {
				r = math.NaN()
			} else if i == j {
				r = 1
			} else {
				var dot float64
				for t := range centered[i] {
					dot += centered[i][t] * centered[j][t]
				}
				r = math.Max(-1, math.Min(1, dot/(norms[i]*norms[j])))
			}
			m[i][j], m[j][i] = r, r
		}
	}
	return m
}

// GCD is the Euclidean distance between two vectorised correlation matrices.
func GCD(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: vector lengths %d and %d differ", orca.ErrInvalidInput, len(a), len(b))
	}
	var ss float64
	for i := range a {
		d := a[i] - b[i]
		ss += d * d
	}
	return math.Sqrt(ss), nil
}
