package graphlet

import (
	"context"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/gsagostini/urban-graphlets/internal/orca"
)

// orbitDependencies is the number of orbits that affect each of the fifteen
// orbits of graphlets up to four nodes, the orbit itself included.
var orbitDependencies = [SignatureOrbits]int{1, 2, 2, 4, 3, 4, 3, 3, 6, 5, 6, 7, 11, 12, 15}

// Weights returns w_i = 1 - log(o_i)/log(n) normalised to unit L1 norm.
func Weights(numOrbits int) ([]float64, error) {
	if numOrbits < 2 || numOrbits > SignatureOrbits {
		return nil, fmt.Errorf("%w: weights need 2..%d orbits, got %d", orca.ErrInvalidInput, SignatureOrbits, numOrbits)
	}
	w := make([]float64, numOrbits)
	var sum float64
	for i := range w {
		w[i] = 1 - math.Log(float64(orbitDependencies[i]))/math.Log(float64(numOrbits))
		sum += math.Abs(w[i])
	}
	for i := range w {
		w[i] /= sum
	}
	return w, nil
}

// GDVDistance is the weighted L1 distance between log-scaled signatures:
// each pair of counts is mapped to log(x+1)/log(max(u,v)+2).
func GDVDistance(u, v []int64, w []float64) float64 {
	var d float64
	for i := range w {
		den := math.Log(float64(max(u[i], v[i])) + 2)
		ut := math.Log(float64(u[i])+1) / den
		vt := math.Log(float64(v[i])+1) / den
		d += w[i] * math.Abs(ut-vt)
	}
	return d
}

// CondensedIndex locates the pair (i, j), i != j, in a condensed distance
// vector over n observations.
func CondensedIndex(n, i, j int) int {
	if i > j {
		i, j = j, i
	}
	return n*i - i*(i+1)/2 + (j - i - 1)
}

// DistanceMatrix returns the condensed pairwise GDV distances of gdm, rows
// computed in parallel.
func DistanceMatrix(ctx context.Context, gdm [][]int64, workers int) ([]float64, error) {
	n := len(gdm)
	if n < 2 {
		return []float64{}, nil
	}
	width := len(gdm[0])
	for i, row := range gdm {
		if len(row) != width {
			return nil, fmt.Errorf("%w: row %d has %d orbits, row 0 has %d", orca.ErrInvalidInput, i, len(row), width)
		}
	}
	w, err := Weights(width)
	if err != nil {
		return nil, err
	}

	out := make([]float64, n*(n-1)/2)
	if workers <= 0 {
		workers = 1
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i := 0; i < n-1; i++ {
		i := i
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			base := CondensedIndex(n, i, i+1)
			for j := i + 1; j < n; j++ {
				out[base+j-i-1] = GDVDistance(gdm[i], gdm[j], w)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", orca.ErrCanceled, err)
	}
	return out, nil
}
