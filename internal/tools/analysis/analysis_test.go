package analysis

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsagostini/urban-graphlets/internal/graphlet"
	"github.com/gsagostini/urban-graphlets/internal/orca"
	"github.com/gsagostini/urban-graphlets/internal/tools"
)

func newRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	require.NoError(t, Register(reg, orca.NewCounter(orca.CounterConfig{Workers: 2}), 2))
	return reg
}

func call(t *testing.T, reg *tools.Registry, name string, args any) (any, error) {
	t.Helper()
	input, err := json.Marshal(args)
	require.NoError(t, err)
	return reg.Execute(context.Background(), name, input)
}

func requireToolError(t *testing.T, err error, code int) *tools.ToolError {
	t.Helper()
	var te *tools.ToolError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, code, te.Code)
	return te
}

func TestModuleRegistration(t *testing.T) {
	reg := newRegistry(t)

	mod, ok := reg.Module(ModuleName)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{
		"orbit_counts", "graphlet_correlation", "gdv_distance", "node_linkage", "tile_census",
	}, mod.Tools)
}

func TestOrbitCountsLabelled(t *testing.T) {
	reg := newRegistry(t)

	out, err := call(t, reg, "orbit_counts", map[string]any{
		"edges": "a b\nb c\nb b\na b\n",
	})
	require.NoError(t, err)
	res, ok := out.(*graphlet.Result)
	require.True(t, ok)

	assert.Equal(t, []string{"a", "b", "c"}, res.Labels)
	b, ok := res.Row("b")
	require.True(t, ok)
	assert.Equal(t, int64(2), b[0])
	assert.Equal(t, int64(1), b[2])
	a, _ := res.Row("a")
	assert.Equal(t, int64(1), a[1])
}

func TestOrbitCountsFromPathWithTrim(t *testing.T) {
	reg := newRegistry(t)
	path := filepath.Join(t.TempDir(), "triangle.edges")
	require.NoError(t, os.WriteFile(path, []byte("x y\ny z\nz x\n"), 0644))

	out, err := call(t, reg, "orbit_counts", map[string]any{"path": path, "trim": true})
	require.NoError(t, err)
	res := out.(*graphlet.Result)
	require.Len(t, res.Counts, 3)
	for _, row := range res.Counts {
		assert.Len(t, row, 11)
		assert.Equal(t, int64(2), row[0])
	}
}

func TestOrbitCountsErrors(t *testing.T) {
	reg := newRegistry(t)

	_, err := call(t, reg, "orbit_counts", map[string]any{})
	requireToolError(t, err, tools.CodeInvalidParams)

	_, err = call(t, reg, "orbit_counts", map[string]any{"edges": "a b\n", "task": "edge", "trim": true})
	requireToolError(t, err, tools.CodeInvalidParams)

	_, err = call(t, reg, "orbit_counts", map[string]any{"edges": "a b\n", "size": 6})
	te := requireToolError(t, err, tools.CodeInvalidParams)
	assert.Equal(t, orca.KindUnsupported, te.Kind)

	_, err = call(t, reg, "orbit_counts", map[string]any{"path": filepath.Join(t.TempDir(), "missing.edges")})
	requireToolError(t, err, tools.CodeInvalidParams)
}

func TestCorrelationOfTriangle(t *testing.T) {
	reg := newRegistry(t)
	triangle := "a b\nb c\nc a\n"

	out, err := call(t, reg, "graphlet_correlation", map[string]any{
		"edges":         triangle,
		"compare_edges": triangle,
	})
	require.NoError(t, err)
	res, ok := out.(*CorrelationResult)
	require.True(t, ok)

	assert.Equal(t, 3, res.Nodes)
	require.True(t, res.Valid)
	require.Len(t, res.Vector, 55)
	// orbit 0 against orbit 1
	assert.InDelta(t, -1.0, res.Vector[0], 1e-9)
	require.NotNil(t, res.GCD)
	assert.InDelta(t, 0.0, *res.GCD, 1e-9)
}

func TestCorrelationFromGDM(t *testing.T) {
	reg := newRegistry(t)
	gdm := [][]int64{
		{2, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
		{1, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	}

	out, err := call(t, reg, "graphlet_correlation", map[string]any{"gdm": gdm})
	require.NoError(t, err)
	res := out.(*CorrelationResult)
	assert.Equal(t, 2, res.Nodes)
	require.NotNil(t, res.GCM)
	assert.Len(t, res.GCM.Matrix, 11)

	_, err = call(t, reg, "graphlet_correlation", map[string]any{"gdm": [][]int64{{1, 2, 3}}})
	requireToolError(t, err, tools.CodeInvalidParams)
}

func TestDistance(t *testing.T) {
	reg := newRegistry(t)

	out, err := call(t, reg, "gdv_distance", map[string]any{
		"u": []int64{1, 2, 3},
		"v": []int64{1, 2, 3},
	})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, out.(map[string]any)["distance"], 1e-12)

	out, err = call(t, reg, "gdv_distance", map[string]any{
		"gdm": [][]int64{{1, 0}, {0, 1}, {1, 0}},
	})
	require.NoError(t, err)
	m := out.(map[string]any)
	assert.Equal(t, 3, m["observations"])
	condensed := m["condensed"].([]float64)
	require.Len(t, condensed, 3)
	// rows 0 and 2 are identical
	assert.InDelta(t, 0.0, condensed[graphlet.CondensedIndex(3, 0, 2)], 1e-12)
	assert.Greater(t, condensed[graphlet.CondensedIndex(3, 0, 1)], 0.0)

	_, err = call(t, reg, "gdv_distance", map[string]any{"u": []int64{1}, "v": []int64{1, 2}})
	requireToolError(t, err, tools.CodeInvalidParams)
}

func TestNodeLinkage(t *testing.T) {
	reg := newRegistry(t)

	out, err := call(t, reg, "node_linkage", map[string]any{
		"edges": "a b\nb c\nc d\n",
		"k":     2,
	})
	require.NoError(t, err)
	res, ok := out.(*LinkageResult)
	require.True(t, ok)

	assert.Equal(t, []string{"a", "b", "c", "d"}, res.Labels)
	assert.Len(t, res.Linkage, 3)
	require.Len(t, res.Clusters, 4)
	// the path is symmetric: both ends share a cluster, as do both centres
	assert.Equal(t, res.Clusters[0], res.Clusters[3])
	assert.Equal(t, res.Clusters[1], res.Clusters[2])
	assert.NotEqual(t, res.Clusters[0], res.Clusters[1])

	_, err = call(t, reg, "node_linkage", map[string]any{"edges": "a\n"})
	requireToolError(t, err, tools.CodeInvalidParams)

	_, err = call(t, reg, "node_linkage", map[string]any{"edges": "a b\nb c\n", "method": "centroid"})
	te := requireToolError(t, err, tools.CodeInvalidParams)
	assert.Equal(t, orca.KindUnsupported, te.Kind)
}

func TestTileCensus(t *testing.T) {
	reg := newRegistry(t)

	out, err := call(t, reg, "tile_census", map[string]any{
		"edges":       "a b\nb c\nc d\nd a\n",
		"coordinates": "id,x,y\na,0,0\nb,10,0\nc,1500,0\nd,1500,10\n",
	})
	require.NoError(t, err)
	res, ok := out.(*TileCensusResult)
	require.True(t, ok)

	assert.Equal(t, 1000.0, res.Grid.Width)
	require.Len(t, res.Tiles, 2)
	assert.Equal(t, []string{"a", "b"}, res.Tiles[0].Nodes)
	assert.Equal(t, []string{"c", "d"}, res.Tiles[1].Nodes)
	assert.Equal(t, 1, res.Tiles[1].Col)

	_, err = call(t, reg, "tile_census", map[string]any{"edges": "a b\n"})
	requireToolError(t, err, tools.CodeInvalidParams)

	_, err = call(t, reg, "tile_census", map[string]any{
		"edges":       "a b\n",
		"coordinates": "a,0,0\nb,1,1\n",
		"tile_size":   -1,
	})
	requireToolError(t, err, tools.CodeInvalidParams)
}
