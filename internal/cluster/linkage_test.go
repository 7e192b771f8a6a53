package cluster

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsagostini/urban-graphlets/internal/orca"
)

// four points on a line at 0, 1, 5 and 6
var line = []float64{1, 5, 6, 4, 5, 1}

func TestLinkageMethods(t *testing.T) {
	tests := []struct {
		method Method
		top    float64
	}{
		{Single, 4},
		{Complete, 6},
		{Average, 5},
		{Weighted, 5},
		{Ward, 5 * math.Sqrt2},
	}

	for _, tt := range tests {
		t.Run(string(tt.method), func(t *testing.T) {
			z, err := Linkage(line, tt.method)
			require.NoError(t, err)
			require.Len(t, z, 3)

			assert.Equal(t, Merge{A: 0, B: 1, Distance: 1, Size: 2}, z[0])
			assert.Equal(t, Merge{A: 2, B: 3, Distance: 1, Size: 2}, z[1])
			assert.Equal(t, 4, z[2].A)
			assert.Equal(t, 5, z[2].B)
			assert.Equal(t, 4, z[2].Size)
			assert.InDelta(t, tt.top, z[2].Distance, 1e-9)
		})
	}
}

func TestLinkageDoesNotModifyInput(t *testing.T) {
	in := append([]float64(nil), line...)
	_, err := Linkage(in, Average)
	require.NoError(t, err)
	assert.Equal(t, line, in)
}

func TestLinkageChain(t *testing.T) {
	// 0-1 at 1, 1-2 at 2: single linkage merges the new cluster with 2
	z, err := Linkage([]float64{1, 3, 2}, Single)
	require.NoError(t, err)
	assert.Equal(t, []Merge{{0, 1, 1, 2}, {2, 3, 2, 3}}, z)
}

func TestLinkageErrors(t *testing.T) {
	_, err := Linkage([]float64{1, 2}, Single)
	assert.Equal(t, orca.KindInvalidInput, orca.KindOf(err))

	_, err = Linkage([]float64{math.NaN()}, Single)
	assert.Equal(t, orca.KindInvalidInput, orca.KindOf(err))

	_, err = Linkage(line, Method("centroid"))
	assert.Equal(t, orca.KindUnsupported, orca.KindOf(err))

	z, err := Linkage(nil, Ward)
	require.NoError(t, err)
	assert.Empty(t, z)
}

func TestParseMethod(t *testing.T) {
	m, err := ParseMethod(" Complete ")
	require.NoError(t, err)
	assert.Equal(t, Complete, m)

	m, err = ParseMethod("")
	require.NoError(t, err)
	assert.Equal(t, Ward, m)
}

func TestMergeJSON(t *testing.T) {
	data, err := json.Marshal([]Merge{{A: 0, B: 1, Distance: 0.5, Size: 2}})
	require.NoError(t, err)
	assert.JSONEq(t, `[[0,1,0.5,2]]`, string(data))

	var back []Merge
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Merge{A: 0, B: 1, Distance: 0.5, Size: 2}, back[0])
}

func TestFlatClusters(t *testing.T) {
	z, err := Linkage(line, Single)
	require.NoError(t, err)

	labels, err := FlatClusters(z, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 2, 2}, labels)

	labels, err = FlatClusters(z, 1)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 1, 1}, labels)

	labels, err = FlatClusters(z, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4}, labels)

	_, err = FlatClusters(z, 0)
	assert.Error(t, err)
	_, err = FlatClusters(z, 5)
	assert.Error(t, err)
}

func TestFlatClustersLargestFirst(t *testing.T) {
	// 0 is far from the tight group 1, 2, 3
	z, err := Linkage([]float64{9, 9, 9, 1, 1, 1}, Average)
	require.NoError(t, err)

	labels, err := FlatClusters(z, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1, 1, 1}, labels)
}
