package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gsagostini/urban-graphlets/internal/census"
	"github.com/gsagostini/urban-graphlets/internal/cluster"
	"github.com/gsagostini/urban-graphlets/internal/graphlet"
	"github.com/gsagostini/urban-graphlets/internal/tiles"
	"github.com/gsagostini/urban-graphlets/internal/tools"
)

type DistanceTool struct {
	workers int
}

func (t *DistanceTool) Name() string { return "gdv_distance" }

func (t *DistanceTool) Description() string {
	return "Weighted graphlet degree vector distance between two signatures (u, v) or the condensed pairwise distance matrix of a GDM."
}

func (t *DistanceTool) Title() string                { return "GDV distance" }
func (t *DistanceTool) Annotations() map[string]bool { return tools.ReadOnlyAnnotations() }

func (t *DistanceTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"u": {"type": "array", "items": {"type": "integer"}},
			"v": {"type": "array", "items": {"type": "integer"}},
			"gdm": {
				"type": "array",
				"items": {"type": "array", "items": {"type": "integer"}},
				"description": "Rows of 2 to 15 orbit counts; yields the condensed distance matrix"
			}
		}
	}`)
}

type distanceArgs struct {
	U   []int64   `json:"u"`
	V   []int64   `json:"v"`
	GDM [][]int64 `json:"gdm"`
}

func (t *DistanceTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var args distanceArgs
	if err := tools.DecodeArgs(t.Name(), input, &args); err != nil {
		return nil, err
	}

	if args.GDM != nil {
		condensed, err := graphlet.DistanceMatrix(ctx, args.GDM, t.workers)
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"observations": len(args.GDM),
			"condensed":    condensed,
		}, nil
	}

	if len(args.U) == 0 || len(args.U) != len(args.V) {
		return nil, invalid(t.Name(), errors.New("u and v must be non-empty signatures of equal length"))
	}
	w, err := graphlet.Weights(len(args.U))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"distance": graphlet.GDVDistance(args.U, args.V, w),
	}, nil
}

type LinkageTool struct {
	counter graphlet.Counter
	workers int
}

func (t *LinkageTool) Name() string { return "node_linkage" }

func (t *LinkageTool) Description() string {
	return "Hierarchically cluster the nodes of a network by the weighted GDV distance of their 15-orbit signatures. Returns a SciPy-compatible linkage matrix and, when k is set, flat cluster labels."
}

func (t *LinkageTool) Title() string                { return "Node linkage" }
func (t *LinkageTool) Annotations() map[string]bool { return tools.ReadOnlyAnnotations() }

func (t *LinkageTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"method": {"type": "string", "enum": ["single", "complete", "average", "weighted", "ward"], "default": "ward"},
			"k": {"type": "integer", "minimum": 1, "description": "Number of flat clusters"},` + graphSourceSchema + `
		}
	}`)
}

type linkageArgs struct {
	graphSource
	Method string `json:"method"`
	K      int    `json:"k"`
}

type LinkageResult struct {
	Labels   []string        `json:"labels"`
	Method   cluster.Method  `json:"method"`
	Linkage  []cluster.Merge `json:"linkage"`
	Clusters []int           `json:"clusters,omitempty"`
}

func (t *LinkageTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var args linkageArgs
	if err := tools.DecodeArgs(t.Name(), input, &args); err != nil {
		return nil, err
	}
	method, err := cluster.ParseMethod(args.Method)
	if err != nil {
		return nil, err
	}

	res, err := nodeGDM(ctx, t.counter, args.graphSource, 4)
	if err != nil {
		return nil, err
	}
	if len(res.Counts) < 2 {
		return nil, invalid(t.Name(), errors.New("clustering needs at least two nodes"))
	}

	condensed, err := graphlet.DistanceMatrix(ctx, res.Counts, t.workers)
	if err != nil {
		return nil, err
	}
	merges, err := cluster.Linkage(condensed, method)
	if err != nil {
		return nil, err
	}

	out := &LinkageResult{Labels: res.Labels, Method: method, Linkage: merges}
	if args.K > 0 {
		if out.Clusters, err = cluster.FlatClusters(merges, args.K); err != nil {
			return nil, err
		}
	}
	return out, nil
}

type TileCensusTool struct {
	counter graphlet.Counter
}

func (t *TileCensusTool) Name() string { return "tile_census" }

func (t *TileCensusTool) Description() string {
	return "Bin the nodes of a network into square tiles using projected coordinates (CSV id,x,y), compute a GCM per tile and optionally cluster the valid tiles."
}

func (t *TileCensusTool) Title() string                { return "Tile census" }
func (t *TileCensusTool) Annotations() map[string]bool { return tools.ReadOnlyAnnotations() }

func (t *TileCensusTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"size": {"type": "integer", "enum": [4, 5], "default": 4},
			"coordinates": {"type": "string", "description": "CSV records id,x,y in a projected CRS (metres)"},
			"coordinates_path": {"type": "string", "description": "Path to the coordinates CSV, used when coordinates is empty"},
			"tile_size": {"type": "number", "default": 1000},
			"method": {"type": "string", "enum": ["single", "complete", "average", "weighted", "ward"]},
			"k": {"type": "integer", "minimum": 1, "description": "Cluster the valid tiles into k groups"},` + graphSourceSchema + `
		}
	}`)
}

type tileArgs struct {
	graphSource
	Size            int     `json:"size"`
	Coordinates     string  `json:"coordinates"`
	CoordinatesPath string  `json:"coordinates_path"`
	TileSize        float64 `json:"tile_size"`
	Method          string  `json:"method"`
	K               int     `json:"k"`
}

type TileCensusResult struct {
	Grid    tiles.Grid      `json:"grid"`
	Tiles   []*tiles.Tile   `json:"tiles"`
	Valid   int             `json:"valid"`
	Linkage []cluster.Merge `json:"linkage,omitempty"`
}

func (a tileArgs) points() ([]tiles.Point, error) {
	text := a.Coordinates
	if strings.TrimSpace(text) == "" {
		if a.CoordinatesPath == "" {
			return nil, errors.New("coordinates or coordinates_path is required")
		}
		content, _, err := census.ReadFileAsUTF8(a.CoordinatesPath)
		if err != nil {
			return nil, err
		}
		text = content
	}
	return tiles.ReadPoints(strings.NewReader(text))
}

func (t *TileCensusTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var args tileArgs
	if err := tools.DecodeArgs(t.Name(), input, &args); err != nil {
		return nil, err
	}
	points, err := args.points()
	if err != nil {
		return nil, invalid(t.Name(), err)
	}
	res, err := nodeGDM(ctx, t.counter, args.graphSource, args.Size)
	if err != nil {
		return nil, err
	}

	grid := tiles.DefaultGrid()
	if args.TileSize != 0 {
		grid = tiles.Grid{Width: args.TileSize, Height: args.TileSize}
	}
	ts, err := tiles.Build(points, res, grid)
	if err != nil {
		return nil, err
	}

	out := &TileCensusResult{Grid: grid, Tiles: ts}
	for _, tile := range ts {
		if tile.Valid {
			out.Valid++
		}
	}

	if args.K > 0 {
		method, err := cluster.ParseMethod(args.Method)
		if err != nil {
			return nil, err
		}
		if out.Linkage, err = tiles.Cluster(ts, method, args.K); err != nil {
			return nil, err
		}
	}
	return out, nil
}

var (
	_ tools.AnnotatedTool = (*DistanceTool)(nil)
	_ tools.AnnotatedTool = (*LinkageTool)(nil)
	_ tools.AnnotatedTool = (*TileCensusTool)(nil)
)
