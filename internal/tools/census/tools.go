// Package census exposes the graph census as the "census" tool module.
package census

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	core "github.com/gsagostini/urban-graphlets/internal/census"
	"github.com/gsagostini/urban-graphlets/internal/graphlet"
	"github.com/gsagostini/urban-graphlets/internal/store"
	"github.com/gsagostini/urban-graphlets/internal/tools"
)

const (
	ModuleName = "census"
	ModuleDoc  = "status and results of the background graph census"
)

// Store is the read side of the census store.
type Store interface {
	GetGraphByPath(ctx context.Context, path string) (*store.GraphRecord, error)
	GraphsByName(ctx context.Context, name string) ([]*store.GraphRecord, error)
	ListGraphs(ctx context.Context, status store.GraphStatus) ([]*store.GraphRecord, error)
	GetStats(ctx context.Context) (*store.Stats, error)
}

// StatsSource reports the live state of the census workers. A nil source
// means the census is not running in this process.
type StatsSource interface {
	Stats() core.Stats
}

func Register(reg *tools.Registry, st Store, workers StatsSource) error {
	return reg.RegisterModule(ModuleName, ModuleDoc,
		&StatusTool{store: st, workers: workers},
		&GetTool{store: st},
	)
}

type StatusTool struct {
	store   Store
	workers StatsSource
}

func (t *StatusTool) Name() string { return "census_status" }

func (t *StatusTool) Description() string {
	return "Report census progress: worker counters, store totals and optionally the graphs with a given status."
}

func (t *StatusTool) Title() string                { return "Census status" }
func (t *StatusTool) Annotations() map[string]bool { return tools.ReadOnlyAnnotations() }

func (t *StatusTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"list": {"type": "boolean", "description": "Include the graph list"},
			"status": {"type": "string", "enum": ["pending", "done", "failed", "skipped"], "description": "Only list graphs with this status"}
		}
	}`)
}

type statusArgs struct {
	List   bool   `json:"list"`
	Status string `json:"status"`
}

type StatusResult struct {
	Workers *core.Stats          `json:"workers,omitempty"`
	Store   *store.Stats         `json:"store"`
	Graphs  []*store.GraphRecord `json:"graphs,omitempty"`
}

func (t *StatusTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var args statusArgs
	if err := tools.DecodeArgs(t.Name(), input, &args); err != nil {
		return nil, err
	}
	status, err := parseStatus(args.Status)
	if err != nil {
		return nil, tools.NewInvalidParamsError(t.Name(), err)
	}

	stats, err := t.store.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("store stats: %w", err)
	}
	out := &StatusResult{Store: stats}
	if t.workers != nil {
		s := t.workers.Stats()
		out.Workers = &s
	}

	if args.List || status != "" {
		if out.Graphs, err = t.store.ListGraphs(ctx, status); err != nil {
			return nil, fmt.Errorf("list graphs: %w", err)
		}
	}
	return out, nil
}

func parseStatus(s string) (store.GraphStatus, error) {
	switch st := store.GraphStatus(s); st {
	case "", store.StatusPending, store.StatusDone, store.StatusFailed, store.StatusSkipped:
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

type GetTool struct {
	store Store
}

func (t *GetTool) Name() string { return "census_get" }

func (t *GetTool) Description() string {
	return "Fetch one census entry by graph name (the path below the census directory without extension) or by file path, optionally with its graphlet degree matrix."
}

func (t *GetTool) Title() string                { return "Census entry" }
func (t *GetTool) Annotations() map[string]bool { return tools.ReadOnlyAnnotations() }

func (t *GetTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"name": {"type": "string", "description": "Graph name, e.g. paris/streets"},
			"path": {"type": "string", "description": "Graph file path; takes precedence over name"},
			"include_gdm": {"type": "boolean", "default": false}
		}
	}`)
}

type getArgs struct {
	Name       string `json:"name"`
	Path       string `json:"path"`
	IncludeGDM bool   `json:"include_gdm"`
}

// GetResult shadows the raw GDM column with the decoded matrix.
type GetResult struct {
	*store.GraphRecord
	GDM *graphlet.Result `json:"gdm,omitempty"`
}

func (t *GetTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	var args getArgs
	if err := tools.DecodeArgs(t.Name(), input, &args); err != nil {
		return nil, err
	}
	rec, err := t.lookup(ctx, args)
	if err != nil {
		return nil, err
	}

	raw := rec.GDM
	rec.GDM = ""
	out := &GetResult{GraphRecord: rec}
	if args.IncludeGDM && raw != "" {
		var res graphlet.Result
		if err := json.Unmarshal([]byte(raw), &res); err != nil {
			return nil, fmt.Errorf("decode stored gdm: %w", err)
		}
		out.GDM = &res
	}
	return out, nil
}

func (t *GetTool) lookup(ctx context.Context, args getArgs) (*store.GraphRecord, error) {
	if args.Path != "" {
		rec, err := t.store.GetGraphByPath(ctx, args.Path)
		if err != nil {
			return nil, fmt.Errorf("get graph: %w", err)
		}
		if rec == nil {
			return nil, tools.NewInvalidParamsError(t.Name(), fmt.Errorf("graph not found: %s", args.Path))
		}
		return rec, nil
	}
	if args.Name == "" {
		return nil, tools.NewInvalidParamsError(t.Name(), errors.New("name or path is required"))
	}

	recs, err := t.store.GraphsByName(ctx, args.Name)
	if err != nil {
		return nil, fmt.Errorf("get graph: %w", err)
	}
	switch len(recs) {
	case 0:
		return nil, tools.NewInvalidParamsError(t.Name(), fmt.Errorf("graph not found: %s", args.Name))
	case 1:
		return recs[0], nil
	}
	paths := make([]string, len(recs))
	for i, r := range recs {
		paths[i] = r.Path
	}
	return nil, tools.NewInvalidParamsError(t.Name(),
		fmt.Errorf("%d graphs are named %s, pass one of their paths: %s", len(recs), args.Name, strings.Join(paths, ", ")))
}

var (
	_ tools.AnnotatedTool = (*StatusTool)(nil)
	_ tools.AnnotatedTool = (*GetTool)(nil)
	_ Store               = (*store.Store)(nil)
	_ StatsSource         = (*core.Worker)(nil)
)
