// Package orcastr exposes the orbit counter as the "orcastr" tool module.
package orcastr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gsagostini/urban-graphlets/internal/graphlet"
	"github.com/gsagostini/urban-graphlets/internal/orca"
	"github.com/gsagostini/urban-graphlets/internal/tools"
)

const (
	ModuleName = "orcastr"
	ModuleDoc  = "orca module"
)

type MotifCountsTool struct {
	counter graphlet.Counter
}

func NewMotifCountsTool(counter graphlet.Counter) *MotifCountsTool {
	return &MotifCountsTool{counter: counter}
}

// Register adds the orcastr module to reg.
func Register(reg *tools.Registry, counter graphlet.Counter) error {
	return reg.RegisterModule(ModuleName, ModuleDoc, NewMotifCountsTool(counter))
}

func (t *MotifCountsTool) Name() string {
	return "motif_counts_str"
}

func (t *MotifCountsTool) Description() string {
	return "Count motifs"
}

func (t *MotifCountsTool) Title() string {
	return "Count motifs"
}

func (t *MotifCountsTool) Annotations() map[string]bool {
	return tools.ReadOnlyAnnotations()
}

func (t *MotifCountsTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"task": {
				"type": "string",
				"enum": ["node", "edge"],
				"description": "Count node orbits or edge orbits"
			},
			"size": {
				"type": "integer",
				"enum": [4, 5],
				"description": "Maximum graphlet size"
			},
			"graph": {
				"type": "string",
				"description": "Graph as '<n> <m>' followed by m lines '<u> <v>' with nodes 0..n-1"
			},
			"args": {
				"type": "array",
				"description": "Positional form: [task, size, graph]",
				"minItems": 3,
				"maxItems": 3
			}
		}
	}`)
}

type motifArgs struct {
	Task  *string           `json:"task"`
	Size  *int              `json:"size"`
	Graph *string           `json:"graph"`
	Args  []json.RawMessage `json:"args"`
}

// parse accepts either the named form or the positional args array. Every
// argument is required.
func (t *MotifCountsTool) parse(input json.RawMessage) (string, int, string, error) {
	if tools.IsEmptyArgs(input) {
		return "", 0, "", errors.New("motif_counts_str takes 3 arguments (task, size, graph), got 0")
	}

	var a motifArgs
	if err := tools.DecodeArgs(t.Name(), input, &a); err != nil {
		return "", 0, "", err
	}

	if a.Args != nil {
		if len(a.Args) != 3 {
			return "", 0, "", fmt.Errorf("motif_counts_str takes 3 arguments (task, size, graph), got %d", len(a.Args))
		}
		var task, graph string
		var size int
		if err := json.Unmarshal(a.Args[0], &task); err != nil {
			return "", 0, "", fmt.Errorf("argument 1 (task) must be a string")
		}
		if err := json.Unmarshal(a.Args[1], &size); err != nil {
			return "", 0, "", fmt.Errorf("argument 2 (size) must be an integer")
		}
		if err := json.Unmarshal(a.Args[2], &graph); err != nil {
			return "", 0, "", fmt.Errorf("argument 3 (graph) must be a string")
		}
		return task, size, graph, nil
	}

	switch {
	case a.Task == nil:
		return "", 0, "", errors.New("missing argument: task")
	case a.Size == nil:
		return "", 0, "", errors.New("missing argument: size")
	case a.Graph == nil:
		return "", 0, "", errors.New("missing argument: graph")
	}
	return *a.Task, *a.Size, *a.Graph, nil
}

// Execute returns the counts as text, one line per node or edge.
func (t *MotifCountsTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	task, size, graph, err := t.parse(input)
	if err != nil {
		var te *tools.ToolError
		if errors.As(err, &te) {
			return nil, te
		}
		return nil, tools.NewInvalidParamsError(t.Name(), err)
	}
	return t.counter.CountString(ctx, task, size, graph)
}

var _ tools.AnnotatedTool = (*MotifCountsTool)(nil)

// orca.Counter and the caching engine both satisfy graphlet.Counter.
var _ graphlet.Counter = (*orca.Counter)(nil)
