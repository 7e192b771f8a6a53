// Package analysis exposes the graphlet analytics as the "graphlets" tool
// module: labelled orbit counts, correlation matrices, GDV distances, node
// clustering and the tile census.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gsagostini/urban-graphlets/internal/census"
	"github.com/gsagostini/urban-graphlets/internal/graphlet"
	"github.com/gsagostini/urban-graphlets/internal/orca"
	"github.com/gsagostini/urban-graphlets/internal/tools"
)

const (
	ModuleName = "graphlets"
	ModuleDoc  = "graphlet degree and correlation analysis of labelled networks"
)

// Register adds the graphlets module to reg. workers bounds the parallelism
// of pairwise distance computations.
func Register(reg *tools.Registry, counter graphlet.Counter, workers int) error {
	return reg.RegisterModule(ModuleName, ModuleDoc,
		&OrbitCountsTool{counter: counter},
		&CorrelationTool{counter: counter},
		&DistanceTool{workers: workers},
		&LinkageTool{counter: counter, workers: workers},
		&TileCensusTool{counter: counter},
	)
}

// graphSource is the common way tools receive a labelled graph: inline edge
// list text or a path to an edge-list file.
type graphSource struct {
	Edges string `json:"edges"`
	Path  string `json:"path"`
}

const graphSourceSchema = `
			"edges": {
				"type": "string",
				"description": "Edge list, one 'u v' pair per line; a single label declares an isolated node"
			},
			"path": {
				"type": "string",
				"description": "Path to an edge-list file, used when edges is empty"
			}`

func (s graphSource) load() (*graphlet.EdgeList, error) {
	switch {
	case strings.TrimSpace(s.Edges) != "":
		return graphlet.ReadEdgeList(strings.NewReader(s.Edges))
	case s.Path != "":
		content, _, err := census.ReadFileAsUTF8(s.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", orca.ErrInvalidInput, err)
		}
		return graphlet.ReadEdgeList(strings.NewReader(content))
	}
	return nil, fmt.Errorf("%w: edges or path is required", orca.ErrInvalidInput)
}

func sizeOrDefault(size int) int {
	if size == 0 {
		return 4
	}
	return size
}

func nodeGDM(ctx context.Context, c graphlet.Counter, src graphSource, size int) (*graphlet.Result, error) {
	el, err := src.load()
	if err != nil {
		return nil, err
	}
	return graphlet.OrbitCounts(ctx, c, orca.TaskNode, sizeOrDefault(size), el)
}

func invalid(name string, err error) error {
	var te *tools.ToolError
	if errors.As(err, &te) {
		return te
	}
	return tools.NewInvalidParamsError(name, err)
}

type OrbitCountsTool struct {
	counter graphlet.Counter
}

func (t *OrbitCountsTool) Name() string { return "orbit_counts" }

func (t *OrbitCountsTool) Description() string {
	return "Compute the graphlet degree matrix of a labelled edge list. Self-loops and parallel edges are dropped and rows are keyed by the original labels."
}

func (t *OrbitCountsTool) Title() string                { return "Orbit counts" }
func (t *OrbitCountsTool) Annotations() map[string]bool { return tools.ReadOnlyAnnotations() }

func (t *OrbitCountsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task": {"type": "string", "enum": ["node", "edge"], "default": "node"},
			"size": {"type": "integer", "enum": [4, 5], "default": 4},
			"trim": {"type": "boolean", "description": "Drop the redundant orbits 3, 12, 13 and 14 (node task, size 4 signature)"},` + graphSourceSchema + `
		}
	}`)
}

type orbitCountsArgs struct {
	graphSource
	Task string `json:"task"`
	Size int    `json:"size"`
	Trim bool   `json:"trim"`
}

func (t *OrbitCountsTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var args orbitCountsArgs
	if err := tools.DecodeArgs(t.Name(), input, &args); err != nil {
		return nil, err
	}
	task := orca.TaskNode
	if args.Task != "" {
		parsed, err := orca.ParseTask(args.Task)
		if err != nil {
			return nil, err
		}
		task = parsed
	}

	el, err := args.load()
	if err != nil {
		return nil, err
	}
	res, err := graphlet.OrbitCounts(ctx, t.counter, task, sizeOrDefault(args.Size), el)
	if err != nil {
		return nil, err
	}
	if args.Trim {
		if task != orca.TaskNode {
			return nil, invalid(t.Name(), errors.New("trim applies to the node task only"))
		}
		trimmed, err := graphlet.TrimGDM(res.Counts)
		if err != nil {
			return nil, err
		}
		res.Counts = trimmed
	}
	return res, nil
}

type CorrelationTool struct {
	counter graphlet.Counter
}

func (t *CorrelationTool) Name() string { return "graphlet_correlation" }

func (t *CorrelationTool) Description() string {
	return "Compute the 11x11 graphlet correlation matrix (GCM) of a network from its edge list or from a precomputed GDM, optionally with the graphlet correlation distance to a second network."
}

func (t *CorrelationTool) Title() string                { return "Graphlet correlation matrix" }
func (t *CorrelationTool) Annotations() map[string]bool { return tools.ReadOnlyAnnotations() }

func (t *CorrelationTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"size": {"type": "integer", "enum": [4, 5], "default": 4},
			"gdm": {
				"type": "array",
				"items": {"type": "array", "items": {"type": "integer"}},
				"description": "Precomputed GDM with at least 15 orbit columns"
			},
			"compare_edges": {"type": "string", "description": "Second network; when set the response includes the GCD"},` + graphSourceSchema + `
		}
	}`)
}

type correlationArgs struct {
	graphSource
	Size         int       `json:"size"`
	GDM          [][]int64 `json:"gdm"`
	CompareEdges string    `json:"compare_edges"`
}

type CorrelationResult struct {
	Nodes  int           `json:"nodes"`
	Valid  bool          `json:"valid"`
	GCM    *graphlet.GCM `json:"gcm"`
	Vector []float64     `json:"vector,omitempty"`
	GCD    *float64      `json:"gcd,omitempty"`
}

func (t *CorrelationTool) gcmOf(ctx context.Context, src graphSource, gdm [][]int64, size int) (*graphlet.GCM, int, error) {
	if gdm == nil {
		res, err := nodeGDM(ctx, t.counter, src, size)
		if err != nil {
			return nil, 0, err
		}
		gdm = res.Counts
	}
	gcm, err := graphlet.ComputeGCM(gdm)
	return gcm, len(gdm), err
}

func (t *CorrelationTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var args correlationArgs
	if err := tools.DecodeArgs(t.Name(), input, &args); err != nil {
		return nil, err
	}

	gcm, nodes, err := t.gcmOf(ctx, args.graphSource, args.GDM, args.Size)
	if err != nil {
		return nil, err
	}
	out := &CorrelationResult{Nodes: nodes, Valid: gcm.Valid(), GCM: gcm}
	if gcm == nil {
		return out, nil
	}
	if out.Valid {
		out.Vector = gcm.Vector()
	}

	if args.CompareEdges != "" {
		other, _, err := t.gcmOf(ctx, graphSource{Edges: args.CompareEdges}, nil, args.Size)
		if err != nil {
			return nil, err
		}
		if !out.Valid || !other.Valid() {
			return nil, invalid(t.Name(), errors.New("GCD needs two valid correlation matrices"))
		}
		d, err := graphlet.GCD(gcm.Vector(), other.Vector())
		if err != nil {
			return nil, err
		}
		out.GCD = &d
	}
	return out, nil
}

var (
	_ tools.AnnotatedTool = (*OrbitCountsTool)(nil)
	_ tools.AnnotatedTool = (*CorrelationTool)(nil)
)
