// Package platform is the registry of functions implemented inside the
// bridge itself rather than behind a remote OpenAPI server.
package platform

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/toolzflow/toolbridge/internal/openapi"
	"github.com/toolzflow/toolbridge/internal/toolcall"
)

// Function is one platform-native callable.
type Function interface {
	Name() string
	Description() string
	Parameters() []openapi.Parameter
	Invoke(ctx context.Context, args toolcall.Arguments) (any, error)
}

// Tool groups functions under a stable tool ID, the ID a stored ToolSpec
// uses to select it.
type Tool struct {
	ID          uuid.UUID
	Name        string
	ToolName    string
	Version     string
	Description string
	Functions   []Function
}

// Registry holds the platform tools. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	tools map[uuid.UUID]*Tool
	funcs map[string]Function
	order []uuid.UUID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[uuid.UUID]*Tool),
		funcs: make(map[string]Function),
	}
}

// Register adds t. Function names share one namespace across all tools, so
// a name already registered is rejected.
func (r *Registry) Register(t Tool) error {
	if t.ID == uuid.Nil {
		return fmt.Errorf("platform tool %q has no id", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[t.ID]; ok {
		return fmt.Errorf("platform tool %s already registered", t.ID)
	}
	seen := make(map[string]bool, len(t.Functions))
	for _, fn := range t.Functions {
		name := fn.Name()
		if _, ok := r.funcs[name]; ok || seen[name] {
			return fmt.Errorf("platform function %s already registered", name)
		}
		seen[name] = true
	}
	for _, fn := range t.Functions {
		r.funcs[fn.Name()] = fn
	}
	tool := t
	r.tools[t.ID] = &tool
	r.order = append(r.order, t.ID)
	return nil
}

// Lookup returns the function registered under name.
func (r *Registry) Lookup(name string) (Function, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[name]
	return fn, ok
}

// Invoke runs the named function.
func (r *Registry) Invoke(ctx context.Context, name string, args toolcall.Arguments) (any, error) {
	fn, ok := r.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("unknown platform function: %s", name)
	}
	return fn.Invoke(ctx, args)
}

// Tool returns the tool with the given ID.
func (r *Registry) Tool(id string) (Tool, bool) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return Tool{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[uid]
	if !ok {
		return Tool{}, false
	}
	return *t, true
}

// Tools returns all tools in registration order.
func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.tools[id])
	}
	return out
}

// LocalTool describes the tool to the schema compiler.
func (r *Registry) LocalTool(id string) (openapi.LocalTool, bool) {
	t, ok := r.Tool(id)
	if !ok {
		return openapi.LocalTool{}, false
	}
	lt := openapi.LocalTool{
		ID:          t.ID.String(),
		Name:        t.Name,
		Description: t.Description,
	}
	for _, fn := range t.Functions {
		lt.Functions = append(lt.Functions, openapi.LocalFunction{
			Name:        fn.Name(),
			Description: fn.Description(),
			Parameters:  fn.Parameters(),
		})
	}
	return lt, true
}

// ToolSpecs returns a schema-less ToolSpec per platform tool, the form the
// compiler expects for selecting them.
func (r *Registry) ToolSpecs() []openapi.ToolSpec {
	tools := r.Tools()
	specs := make([]openapi.ToolSpec, 0, len(tools))
	for _, t := range tools {
		specs = append(specs, openapi.ToolSpec{
			ID:          t.ID.String(),
			Name:        t.Name,
			Description: t.Description,
		})
	}
	return specs
}
