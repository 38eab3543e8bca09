package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/toolzflow/toolbridge/internal/dispatch"
	"github.com/toolzflow/toolbridge/internal/openapi"
)

const weatherDoc = `{
  "openapi": "3.0.0",
  "info": {"title": "Weather", "version": "1"},
  "servers": [{"url": %q}],
  "paths": {
    "/weather/{city}": {
      "get": {"operationId": "getWeather", "summary": "Current weather", "parameters": [
        {"name": "city", "in": "path", "required": true, "schema": {"type": "string"}}
      ]}
    },
    "/alerts": {
      "post": {"operationId": "createAlert", "requestBody": {"content": {"application/json": {
        "schema": {"type": "object", "properties": {"level": {"type": "string"}}}}}}}
    }
  }
}`

type staticSource []openapi.ToolSpec

func (s staticSource) All() ([]openapi.ToolSpec, error) { return s, nil }

type failingSource struct{}

func (failingSource) All() ([]openapi.ToolSpec, error) { return nil, errors.New("disk gone") }

func newWeatherAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/weather/Paris":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"temp":21}`))
		case "/alerts":
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// connect builds the server for specs and returns a connected client session.
func connect(t *testing.T, specs []openapi.ToolSpec) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()
	server, err := Build(ctx, staticSource(specs), openapi.NewCompiler(), dispatch.New(), "test")
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	ct, st := mcp.NewInMemoryTransports()
	if _, err := server.Connect(ctx, st, nil); err != nil {
		t.Fatalf("server connect: %v", err)
	}
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = cs.Close() })
	return cs
}

func weatherSpecs(t *testing.T) []openapi.ToolSpec {
	srv := newWeatherAPI(t)
	return []openapi.ToolSpec{{ID: "w", Name: "Weather", Schema: fmt.Sprintf(weatherDoc, srv.URL)}}
}

func TestBuild_ListsTools(t *testing.T) {
	cs := connect(t, weatherSpecs(t))

	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
		if tool.Name == "getWeather" && tool.Description != "Current weather" {
			t.Errorf("description = %q", tool.Description)
		}
	}
	sort.Strings(names)
	if len(names) != 2 || names[0] != "createAlert" || names[1] != "getWeather" {
		t.Errorf("tools = %v", names)
	}
}

func textOf(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	if len(res.Content) != 1 {
		t.Fatalf("content = %+v", res.Content)
	}
	tc, ok := res.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("content type = %T", res.Content[0])
	}
	return tc.Text
}

func TestCallTool_Success(t *testing.T) {
	cs := connect(t, weatherSpecs(t))
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "getWeather",
		Arguments: map[string]any{"parameters": map[string]any{"city": "Paris"}},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if res.IsError || textOf(t, res) != `{"temp":21}` {
		t.Errorf("result = %+v", res)
	}
}

func TestCallTool_UpstreamErrorIsToolError(t *testing.T) {
	cs := connect(t, weatherSpecs(t))
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "createAlert",
		Arguments: map[string]any{"requestBody": map[string]any{"level": "high"}},
	})
	if err != nil {
		t.Fatalf("CallTool: %v", err)
	}
	if !res.IsError || textOf(t, res) != `{"error":"Service Unavailable"}` {
		t.Errorf("result = %+v", res)
	}
}

func TestCallTool_MissingParameterIsProtocolError(t *testing.T) {
	cs := connect(t, weatherSpecs(t))
	_, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      "getWeather",
		Arguments: map[string]any{},
	})
	if err == nil {
		t.Fatal("expected error for missing path parameter")
	}
}

func TestBuild_SourceError(t *testing.T) {
	_, err := Build(context.Background(), failingSource{}, openapi.NewCompiler(), dispatch.New(), "test")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestInputSchema(t *testing.T) {
	tests := []struct {
		name    string
		params  map[string]any
		wantErr bool
	}{
		{"empty", nil, false},
		{"object", map[string]any{"type": "object", "properties": map[string]any{"a": map[string]any{"type": "string"}}}, false},
		{"untyped", map[string]any{"properties": map[string]any{}}, false},
		{"array", map[string]any{"type": "array"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := inputSchema(tt.params)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && s.Type != "object" {
				t.Errorf("Type = %q", s.Type)
			}
		})
	}
}
