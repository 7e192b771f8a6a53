// Package tiles bins the nodes of a street network into a square grid and
// computes a graphlet correlation matrix per tile.
package tiles

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/gsagostini/urban-graphlets/internal/cluster"
	"github.com/gsagostini/urban-graphlets/internal/graphlet"
	"github.com/gsagostini/urban-graphlets/internal/orca"
)

// DefaultTileSize matches the 1 km resolution of the settlement grid.
const DefaultTileSize = 1000.0

type Point struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// ReadPoints reads "id,x,y" records. A first record whose coordinates do not
// parse is taken as a header.
func ReadPoints(r io.Reader) ([]Point, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var points []Point
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: coordinates: %v", orca.ErrInvalidInput, err)
		}
		if len(rec) < 3 {
			return nil, fmt.Errorf("%w: coordinates line %d: want id,x,y", orca.ErrInvalidInput, line)
		}
		x, errX := strconv.ParseFloat(strings.TrimSpace(rec[1]), 64)
		y, errY := strconv.ParseFloat(strings.TrimSpace(rec[2]), 64)
		if errX != nil || errY != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("%w: coordinates line %d: invalid number", orca.ErrInvalidInput, line)
		}
		points = append(points, Point{ID: strings.TrimSpace(rec[0]), X: x, Y: y})
	}
	return points, nil
}

type Grid struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func DefaultGrid() Grid {
	return Grid{Width: DefaultTileSize, Height: DefaultTileSize}
}

// Cell returns the column and row of the tile containing (x, y). Tiles are
// anchored at the origin of the projected coordinate system.
func (g Grid) Cell(x, y float64) (int, int) {
	return int(math.Floor(x / g.Width)), int(math.Floor(y / g.Height))
}

// Tile holds the nodes falling in one grid cell. Cluster is the flat cluster
// label assigned by Cluster, 0 when the tile was not clustered.
type Tile struct {
	Col     int           `json:"col"`
	Row     int           `json:"row"`
	MinX    float64       `json:"min_x"`
	MinY    float64       `json:"min_y"`
	Nodes   []string      `json:"nodes"`
	GDM     [][]int64     `json:"gdm"`
	GCM     *graphlet.GCM `json:"gcm,omitempty"`
	Valid   bool          `json:"valid"`
	Cluster int           `json:"cluster,omitempty"`
}

// Build assigns every labelled node of gdm that has a coordinate to its tile
// and computes the per-tile GCM. Tiles without nodes are omitted; the result
// is ordered by row, then column.
func Build(points []Point, gdm *graphlet.Result, grid Grid) ([]*Tile, error) {
	if grid.Width <= 0 || grid.Height <= 0 {
		return nil, fmt.Errorf("%w: tile size must be positive", orca.ErrInvalidInput)
	}
	if gdm == nil || gdm.Task != orca.TaskNode {
		return nil, fmt.Errorf("%w: tiles need a node GDM", orca.ErrInvalidInput)
	}

	rowOf := make(map[string]int, len(gdm.Labels))
	for i, l := range gdm.Labels {
		rowOf[l] = i
	}

	type key struct{ col, row int }
	byCell := make(map[key]*Tile)
	for _, p := range points {
		i, ok := rowOf[p.ID]
		if !ok {
			continue
		}
		col, row := grid.Cell(p.X, p.Y)
		k := key{col, row}
		t, ok := byCell[k]
		if !ok {
			t = &Tile{
				Col:  col,
				Row:  row,
				MinX: float64(col) * grid.Width,
				MinY: float64(row) * grid.Height,
			}
			byCell[k] = t
		}
		t.Nodes = append(t.Nodes, p.ID)
		t.GDM = append(t.GDM, gdm.Counts[i])
	}

	out := make([]*Tile, 0, len(byCell))
	for _, t := range byCell {
		gcm, err := graphlet.ComputeGCM(t.GDM)
		if err != nil {
			return nil, fmt.Errorf("tile %d,%d: %w", t.Col, t.Row, err)
		}
		t.GCM = gcm
		t.Valid = gcm.Valid()
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Row != out[j].Row {
			return out[i].Row < out[j].Row
		}
		return out[i].Col < out[j].Col
	})
	return out, nil
}

// Cluster groups the valid tiles on their vectorised GCMs with Euclidean
// distance and cuts the linkage into k clusters. Invalid tiles keep label 0.
func Cluster(tiles []*Tile, method cluster.Method, k int) ([]cluster.Merge, error) {
	var valid []*Tile
	for _, t := range tiles {
		t.Cluster = 0
		if t.Valid {
			valid = append(valid, t)
		}
	}
	if len(valid) < 2 {
		return nil, fmt.Errorf("%w: need at least two valid tiles, have %d", orca.ErrInvalidInput, len(valid))
	}

	vectors := make([][]float64, len(valid))
	for i, t := range valid {
		vectors[i] = t.GCM.Vector()
	}
	n := len(vectors)
	condensed := make([]float64, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d, err := graphlet.GCD(vectors[i], vectors[j])
			if err != nil {
				return nil, err
			}
			condensed = append(condensed, d)
		}
	}

	merges, err := cluster.Linkage(condensed, method)
	if err != nil {
		return nil, err
	}
	labels, err := cluster.FlatClusters(merges, k)
	if err != nil {
		return nil, err
	}
	for i, t := range valid {
		t.Cluster = labels[i]
	}
	return merges, nil
}
