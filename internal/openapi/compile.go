package openapi

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/toolzflow/toolbridge/internal/metrics"
)

// Compiler turns a selection of stored tools into the function list and
// routing metadata for one chat turn.
type Compiler struct {
	locals  LocalCatalog
	policy  MergePolicy
	metrics *metrics.Metrics
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithLocalCatalog lets schema-less tools resolve to platform tools.
func WithLocalCatalog(c LocalCatalog) Option {
	return func(cp *Compiler) { cp.locals = c }
}

// WithMergePolicy sets the route collision policy. Default is MergeLastWins.
func WithMergePolicy(p MergePolicy) Option {
	return func(cp *Compiler) { cp.policy = p }
}

// WithMetrics records compile counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cp *Compiler) { cp.metrics = m }
}

// NewCompiler creates a Compiler.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{policy: MergeLastWins}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Compile converts every spec, skipping (and logging) ones whose schema is
// invalid. Tools keep their input order; under MergeLastWins a later tool's
// route wins over an earlier one for the same path.
func (c *Compiler) Compile(ctx context.Context, specs []ToolSpec) (*Result, error) {
	res := &Result{}
	maps := make([]RouteMap, 0, len(specs))
	owners := make(map[string]int)

	for _, spec := range specs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cs, target, err := c.compileOne(ctx, spec)
		if err != nil {
			slog.Warn("skipping tool with invalid schema",
				slog.String("tool_id", spec.ID),
				slog.String("tool", spec.Name),
				slog.Any("error", err))
			c.metrics.ToolSkipped()
			continue
		}
		c.metrics.ToolCompiled()

		detail := newSchemaDetail(spec, cs, target)
		res.SchemaDetails = append(res.SchemaDetails, detail)
		res.AllTools = append(res.AllTools, cs.Functions...)
		maps = append(maps, detail.RouteMap)
		for _, fn := range cs.Functions {
			owners[fn.Name]++
			if owners[fn.Name] == 2 {
				res.DuplicateFunctions = append(res.DuplicateFunctions, fn.Name)
			}
		}
	}

	if c.policy == MergeStrict && len(res.DuplicateFunctions) > 0 {
		return nil, &DuplicateFunctionError{Names: res.DuplicateFunctions}
	}
	merged, shadowed, err := MergeRouteMaps(c.policy, maps...)
	if err != nil {
		return nil, err
	}
	res.AllRouteMaps = merged
	res.Shadowed = shadowed

	for _, s := range shadowed {
		slog.Warn("route shadowed by later tool",
			slog.String("path", s.Path),
			slog.String("previous", s.Previous),
			slog.String("winner", s.Winner))
	}
	if len(res.DuplicateFunctions) > 0 {
		slog.Warn("function names defined by more than one tool",
			slog.Any("names", res.DuplicateFunctions))
	}
	c.metrics.RouteShadowed(len(shadowed))
	return res, nil
}

func (c *Compiler) compileOne(ctx context.Context, spec ToolSpec) (*CompiledSchema, Target, error) {
	if strings.TrimSpace(spec.Schema) == "" {
		if c.locals != nil {
			if tool, ok := c.locals.LocalTool(spec.ID); ok {
				return CompileLocal(tool), LocalTarget{RegistryKey: tool.ID}, nil
			}
		}
		return nil, nil, fmt.Errorf("tool %q has no schema and is not a platform tool", spec.ID)
	}
	cs, err := Convert(ctx, []byte(spec.Schema))
	if err != nil {
		return nil, nil, err
	}
	return cs, ParseTarget(cs.Server), nil
}

func newSchemaDetail(spec ToolSpec, cs *CompiledSchema, target Target) *SchemaDetail {
	d := &SchemaDetail{
		ToolID:           spec.ID,
		Title:            cs.Title,
		Description:      cs.Description,
		Target:           target,
		Headers:          spec.CustomHeaders,
		RouteMap:         make(RouteMap, len(cs.Routes)),
		RequestInBodyMap: make(map[string]bool, len(cs.Routes)),
		Functions:        cs.Functions,
		Routes:           cs.Routes,
	}
	for _, r := range cs.Routes {
		d.RouteMap[r.Path] = r.OperationID
		d.RequestInBodyMap[r.Path] = r.RequestInBody
	}
	return d
}
