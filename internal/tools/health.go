package tools

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/gsagostini/urban-graphlets/pkg/version"
)

// Probe reports the state of one subsystem for the health tool.
type Probe func(ctx context.Context) (any, error)

type HealthTool struct {
	registry *Registry
	started  time.Time

	mu     sync.RWMutex
	probes map[string]Probe
}

func NewHealthTool(registry *Registry) *HealthTool {
	return &HealthTool{
		registry: registry,
		started:  time.Now(),
		probes:   make(map[string]Probe),
	}
}

func (t *HealthTool) AddProbe(name string, p Probe) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.probes[name] = p
}

func (t *HealthTool) Name() string {
	return "health"
}

func (t *HealthTool) Description() string {
	return "Check daemon health status"
}

func (t *HealthTool) Title() string {
	return "Health"
}

func (t *HealthTool) Annotations() map[string]bool {
	return ReadOnlyAnnotations()
}

func (t *HealthTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {},
		"required": []
	}`)
}

func (t *HealthTool) Execute(ctx context.Context, input json.RawMessage) (any, error) {
	status := "healthy"
	out := map[string]any{
		"version":        version.Version,
		"uptime_seconds": int64(time.Since(t.started).Seconds()),
	}
	if t.registry != nil {
		out["tools"] = len(t.registry.Names())
		var modules []string
		for _, m := range t.registry.Modules() {
			modules = append(modules, m.Name)
		}
		out["modules"] = modules
	}

	t.mu.RLock()
	names := make([]string, 0, len(t.probes))
	for name := range t.probes {
		names = append(names, name)
	}
	t.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		t.mu.RLock()
		probe := t.probes[name]
		t.mu.RUnlock()

		v, err := probe(ctx)
		if err != nil {
			status = "degraded"
			out[name] = map[string]string{"error": err.Error()}
			continue
		}
		out[name] = v
	}
	out["status"] = status
	return out, nil
}
