package tiles

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gsagostini/urban-graphlets/internal/cluster"
	"github.com/gsagostini/urban-graphlets/internal/graphlet"
	"github.com/gsagostini/urban-graphlets/internal/orca"
)

func gdv(kv map[int]int64) []int64 {
	row := make([]int64, 15)
	for k, v := range kv {
		row[k] = v
	}
	return row
}

func TestReadPoints(t *testing.T) {
	text := "id,x,y\na, 100.5, 20\n# comment\nb,-3,4e2\n"
	points, err := ReadPoints(strings.NewReader(text))
	require.NoError(t, err)
	assert.Equal(t, []Point{{ID: "a", X: 100.5, Y: 20}, {ID: "b", X: -3, Y: 400}}, points)

	_, err = ReadPoints(strings.NewReader("a,1,2\nb,x,3\n"))
	assert.Equal(t, orca.KindInvalidInput, orca.KindOf(err))

	_, err = ReadPoints(strings.NewReader("a,1\n"))
	assert.Error(t, err)
}

func TestGridCell(t *testing.T) {
	g := DefaultGrid()
	col, row := g.Cell(1500, 999.9)
	assert.Equal(t, 1, col)
	assert.Equal(t, 0, row)

	col, row = g.Cell(-1, -1000.5)
	assert.Equal(t, -1, col)
	assert.Equal(t, -2, row)
}

func TestBuild(t *testing.T) {
	gdm := &graphlet.Result{
		Task:   orca.TaskNode,
		Size:   4,
		Labels: []string{"a", "b", "c", "unplaced"},
		Counts: [][]int64{
			gdv(map[int]int64{0: 1}),
			gdv(map[int]int64{0: 2, 2: 1}),
			gdv(map[int]int64{0: 1}),
			gdv(map[int]int64{0: 3}),
		},
	}
	points := []Point{
		{ID: "c", X: 1500, Y: 100},
		{ID: "a", X: 100, Y: 100},
		{ID: "b", X: 200, Y: 900},
		{ID: "ghost", X: 0, Y: 0},
	}

	tiles, err := Build(points, gdm, DefaultGrid())
	require.NoError(t, err)
	require.Len(t, tiles, 2)

	first := tiles[0]
	assert.Equal(t, 0, first.Col)
	assert.Equal(t, []string{"a", "b"}, first.Nodes)
	assert.Len(t, first.GDM, 2)
	assert.True(t, first.Valid)
	require.NotNil(t, first.GCM)
	assert.Len(t, first.GCM.Matrix, 11)

	second := tiles[1]
	assert.Equal(t, 1, second.Col)
	assert.Equal(t, 1000.0, second.MinX)
	assert.Equal(t, []string{"c"}, second.Nodes)
	assert.False(t, second.Valid)
}

func TestBuildRejectsBadInput(t *testing.T) {
	_, err := Build(nil, &graphlet.Result{Task: orca.TaskEdge}, DefaultGrid())
	assert.Equal(t, orca.KindInvalidInput, orca.KindOf(err))

	_, err = Build(nil, &graphlet.Result{Task: orca.TaskNode}, Grid{})
	assert.Equal(t, orca.KindInvalidInput, orca.KindOf(err))
}

func TestCluster(t *testing.T) {
	gdm := &graphlet.Result{
		Task:   orca.TaskNode,
		Labels: []string{"a1", "a2", "b1", "b2", "c1", "c2", "lonely"},
		Counts: [][]int64{
			gdv(map[int]int64{0: 1}),
			gdv(map[int]int64{0: 2, 2: 1}),
			gdv(map[int]int64{0: 1}),
			gdv(map[int]int64{0: 2, 2: 1}),
			gdv(map[int]int64{0: 2, 2: 1}),
			gdv(map[int]int64{0: 3, 2: 3}),
			gdv(map[int]int64{0: 1}),
		},
	}
	points := []Point{
		{ID: "a1", X: 10, Y: 10}, {ID: "a2", X: 20, Y: 20},
		{ID: "b1", X: 1010, Y: 10}, {ID: "b2", X: 1020, Y: 20},
		{ID: "c1", X: 2010, Y: 10}, {ID: "c2", X: 2020, Y: 20},
		{ID: "lonely", X: 3010, Y: 10},
	}
	tiles, err := Build(points, gdm, DefaultGrid())
	require.NoError(t, err)
	require.Len(t, tiles, 4)

	merges, err := Cluster(tiles, cluster.Ward, 2)
	require.NoError(t, err)
	assert.Len(t, merges, 2)

	assert.Equal(t, 1, tiles[0].Cluster)
	assert.Equal(t, 1, tiles[1].Cluster)
	assert.Equal(t, 2, tiles[2].Cluster)
	assert.Equal(t, 0, tiles[3].Cluster)
}

func TestClusterNeedsTwoValidTiles(t *testing.T) {
	_, err := Cluster([]*Tile{{Valid: true}}, cluster.Single, 1)
	assert.Error(t, err)
}
