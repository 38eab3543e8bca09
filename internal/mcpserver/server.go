// Package mcpserver exposes compiled tool functions over the Model Context
// Protocol, so MCP clients can call stored OpenAPI tools directly.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/toolzflow/toolbridge/internal/dispatch"
	"github.com/toolzflow/toolbridge/internal/openapi"
	"github.com/toolzflow/toolbridge/internal/toolcall"
)

// Source lists the tools to expose.
type Source interface {
	All() ([]openapi.ToolSpec, error)
}

// Compiler turns tools into function definitions.
type Compiler interface {
	Compile(ctx context.Context, specs []openapi.ToolSpec) (*openapi.Result, error)
}

// Dispatcher executes one function call.
type Dispatcher interface {
	Execute(ctx context.Context, details []*openapi.SchemaDetail, intent toolcall.Intent) (any, error)
}

// Build compiles every tool in src and returns an MCP server with one MCP
// tool per function. The tool set is fixed at build time.
func Build(ctx context.Context, src Source, c Compiler, d Dispatcher, version string) (*mcp.Server, error) {
	specs, err := src.All()
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	res, err := c.Compile(ctx, specs)
	if err != nil {
		return nil, fmt.Errorf("compile tools: %w", err)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "toolbridge",
		Version: version,
	}, nil)

	n := Register(server, res, d)
	slog.Info("MCP tools registered", slog.Int("tools", n))
	return server, nil
}

// Register adds every function of res to server and returns how many were
// added. Functions whose schema is not a JSON object schema are skipped.
func Register(server *mcp.Server, res *openapi.Result, d Dispatcher) int {
	n := 0
	for _, fn := range res.AllTools {
		schema, err := inputSchema(fn.Parameters)
		if err != nil {
			slog.Warn("skipping MCP tool",
				slog.String("function", fn.Name),
				slog.Any("error", err))
			continue
		}
		server.AddTool(&mcp.Tool{
			Name:        fn.Name,
			Description: fn.Description,
			InputSchema: schema,
		}, handler(res.SchemaDetails, fn.Name, d))
		n++
	}
	return n
}

// HTTPHandler returns a stateless streamable HTTP handler for server.
func HTTPHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return server
	}, &mcp.StreamableHTTPOptions{Stateless: true})
}

func handler(details []*openapi.SchemaDetail, name string, d Dispatcher) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		var args json.RawMessage
		if req.Params != nil {
			args = req.Params.Arguments
		}
		res, err := d.Execute(ctx, details, toolcall.Intent{Name: name, Arguments: args})
		if err != nil {
			if dispatch.IsStructural(err) {
				return nil, err
			}
			return errorResult(err.Error()), nil
		}
		if er, ok := res.(dispatch.ErrorResult); ok {
			return errorResult(er.Error), nil
		}
		text, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("encode result of %s: %w", name, err)
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		}, nil
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	text, _ := json.Marshal(dispatch.ErrorResult{Error: msg})
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(text)}},
		IsError: true,
	}
}

// inputSchema converts a function's parameter schema into the SDK's schema
// type. An empty schema becomes an open object.
func inputSchema(params map[string]any) (*jsonschema.Schema, error) {
	if len(params) == 0 {
		return &jsonschema.Schema{Type: "object"}, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var s jsonschema.Schema
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.Type == "" && len(s.Types) == 0 {
		s.Type = "object"
	}
	if s.Type != "object" {
		return nil, fmt.Errorf("parameters must be an object schema, got type %q", s.Type)
	}
	return &s, nil
}
