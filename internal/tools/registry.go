package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/gsagostini/urban-graphlets/internal/logger"
)

var log = logger.ForComponent("tools")

type Tool interface {
	Name() string
	Description() string
	Schema() json.RawMessage
	Execute(ctx context.Context, input json.RawMessage) (any, error)
}

type AnnotatedTool interface {
	Tool
	Title() string
	Annotations() map[string]bool
}

// ModuleInfo describes a named group of tools.
type ModuleInfo struct {
	Name  string   `json:"name"`
	Doc   string   `json:"doc"`
	Tools []string `json:"tools"`
}

// Registry is built at start-up and owned by the server that hosts it.
// Tools are registered explicitly, optionally grouped into modules.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	modules map[string]*ModuleInfo
}

func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		modules: make(map[string]*ModuleInfo),
	}
}

func (r *Registry) Register(tool Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerLocked(tool)
}

func (r *Registry) registerLocked(tool Tool) error {
	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool already registered: %s", name)
	}
	r.tools[name] = tool
	return nil
}

// RegisterModule registers tools under module name. Either every tool is
// registered or none is. Registering into an existing module appends to it.
func (r *Registry) RegisterModule(name, doc string, tools ...Tool) error {
	if name == "" {
		return fmt.Errorf("module name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seen := make(map[string]bool, len(tools))
	for _, t := range tools {
		if _, exists := r.tools[t.Name()]; exists || seen[t.Name()] {
			return fmt.Errorf("module %s: tool already registered: %s", name, t.Name())
		}
		seen[t.Name()] = true
	}

	mod, ok := r.modules[name]
	if !ok {
		mod = &ModuleInfo{Name: name, Doc: doc}
		r.modules[name] = mod
	} else if mod.Doc == "" {
		mod.Doc = doc
	}

	for _, t := range tools {
		if err := r.registerLocked(t); err != nil {
			return err
		}
		mod.Tools = append(mod.Tools, t.Name())
	}
	sort.Strings(mod.Tools)

	log.Debug("module registered", "module", name, "tools", len(tools))
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

func (r *Registry) Module(name string) (ModuleInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	mod, ok := r.modules[name]
	if !ok {
		return ModuleInfo{}, false
	}
	out := *mod
	out.Tools = append([]string(nil), mod.Tools...)
	return out, true
}

// Modules returns every module ordered by name.
func (r *Registry) Modules() []ModuleInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModuleInfo, 0, len(r.modules))
	for _, mod := range r.modules {
		m := *mod
		m.Tools = append([]string(nil), mod.Tools...)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Execute runs the named tool. Failures come back as *ToolError.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) (result any, err error) {
	tool, ok := r.Get(name)
	if !ok {
		return nil, NewToolNotFoundError(name)
	}

	defer func() {
		if p := recover(); p != nil {
			log.Error("tool panic recovered", "tool", name, "panic", p, "stack", string(debug.Stack()))
			result, err = nil, NewToolExecutionError(name, fmt.Errorf("panic: %v", p))
		}
	}()

	result, err = tool.Execute(ctx, input)
	if err != nil {
		return nil, FromError(name, err)
	}
	return result, nil
}

type execResult struct {
	value any
	err   error
}

// ExecuteWithTimeout bounds Execute by timeout. A tool that ignores its
// context is abandoned when the deadline passes.
func (r *Registry) ExecuteWithTimeout(ctx context.Context, name string, input json.RawMessage, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		return r.Execute(ctx, name, input)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan execResult, 1)
	go func() {
		v, err := r.Execute(ctx, name, input)
		done <- execResult{value: v, err: err}
	}()

	select {
	case res := <-done:
		return res.value, res.err
	case <-ctx.Done():
		return nil, FromError(name, fmt.Errorf("tool %s timed out after %v: %w", name, timeout, ctx.Err()))
	}
}

// List returns the registered tools ordered by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Tool, 0, len(r.tools))
	for _, tool := range r.tools {
		result = append(result, tool)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
