// Package openapi compiles stored OpenAPI documents into function definitions
// an LLM can call, plus the route metadata needed to turn a call back into an
// HTTP request.
package openapi

import (
	"encoding/json"
	"sort"
)

// LocalExecutorURL is the reserved server URL that marks a tool as
// implemented in-process. It is only recognised at input boundaries; inside
// the bridge a local tool is represented by LocalTarget.
const LocalExecutorURL = "local://executor"

// ToolSpec is a stored tool record as supplied by the persistence layer.
type ToolSpec struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Schema is the serialized OpenAPI document (JSON or YAML). Empty for
	// platform tools, which are described by the local registry instead.
	Schema string `json:"schema" yaml:"schema"`
	// CustomHeaders is a JSON-encoded object of string to string.
	CustomHeaders string `json:"custom_headers,omitempty" yaml:"custom_headers,omitempty"`
}

// FunctionDef describes one callable function.
type FunctionDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolDefinition is an OpenAI-compatible function tool schema.
type ToolDefinition struct {
	Type     string      `json:"type"`
	Function FunctionDef `json:"function"`
}

// Definition wraps f in the function-calling envelope.
func (f FunctionDef) Definition() ToolDefinition {
	return ToolDefinition{Type: "function", Function: f}
}

// Route ties a colon-style path template to the operation serving it.
type Route struct {
	Path          string `json:"path"`
	Method        string `json:"method"`
	OperationID   string `json:"operationId"`
	RequestInBody bool   `json:"requestInBody"`
}

// CompiledSchema is the per-document output of Convert.
type CompiledSchema struct {
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Server      string        `json:"server"`
	Functions   []FunctionDef `json:"functions"`
	Routes      []Route       `json:"routes"`
}

// RouteMap maps a path template to an operationId.
type RouteMap map[string]string

// PathFor returns the path template mapped to name. Templates are scanned in
// sorted order so the answer is stable when several paths share a name.
func (m RouteMap) PathFor(name string) (string, bool) {
	for _, path := range m.Paths() {
		if m[path] == name {
			return path, true
		}
	}
	return "", false
}

// Has reports whether any path maps to name.
func (m RouteMap) Has(name string) bool {
	for _, v := range m {
		if v == name {
			return true
		}
	}
	return false
}

// Paths returns the templates in sorted order.
func (m RouteMap) Paths() []string {
	paths := make([]string, 0, len(m))
	for p := range m {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Target says where a tool's functions execute.
type Target interface {
	// URL renders the target in the stored-URL form.
	URL() string
	isTarget()
}

// RemoteTarget is an HTTP API reached at BaseURL.
type RemoteTarget struct {
	BaseURL string
}

// URL returns the base URL.
func (t RemoteTarget) URL() string { return t.BaseURL }
func (RemoteTarget) isTarget()     {}

// LocalTarget is a platform tool served by the in-process registry.
type LocalTarget struct {
	RegistryKey string
}

// URL returns LocalExecutorURL.
func (LocalTarget) URL() string { return LocalExecutorURL }
func (LocalTarget) isTarget()   {}

// ParseTarget maps a stored server URL onto a Target.
func ParseTarget(server string) Target {
	if server == LocalExecutorURL {
		return LocalTarget{}
	}
	return RemoteTarget{BaseURL: server}
}

// SchemaDetail is everything the dispatcher needs to resolve a call back to
// the tool that owns it.
type SchemaDetail struct {
	ToolID      string
	Title       string
	Description string
	Target      Target
	// Headers is the tool's raw custom-header string.
	Headers          string
	RouteMap         RouteMap
	RequestInBodyMap map[string]bool
	Functions        []FunctionDef
	// Routes keeps every operation, including ones whose path key was
	// overwritten in RouteMap by another method on the same path.
	Routes []Route
}

// Route returns the route serving the function named name.
func (d *SchemaDetail) Route(name string) (Route, bool) {
	for _, r := range d.Routes {
		if r.OperationID == name {
			return r, true
		}
	}
	if path, ok := d.RouteMap.PathFor(name); ok {
		return Route{Path: path, OperationID: name, RequestInBody: d.RequestInBodyMap[path]}, true
	}
	return Route{}, false
}

// Function returns the definition named name.
func (d *SchemaDetail) Function(name string) (FunctionDef, bool) {
	for _, f := range d.Functions {
		if f.Name == name {
			return f, true
		}
	}
	return FunctionDef{}, false
}

// MarshalJSON renders the detail with the target collapsed to its URL form.
func (d *SchemaDetail) MarshalJSON() ([]byte, error) {
	url := ""
	if d.Target != nil {
		url = d.Target.URL()
	}
	return json.Marshal(struct {
		ToolID           string          `json:"toolId,omitempty"`
		Title            string          `json:"title"`
		Description      string          `json:"description"`
		URL              string          `json:"url"`
		Headers          string          `json:"headers,omitempty"`
		RouteMap         RouteMap        `json:"routeMap"`
		RequestInBodyMap map[string]bool `json:"requestInBodyMap"`
	}{d.ToolID, d.Title, d.Description, url, d.Headers, d.RouteMap, d.RequestInBodyMap})
}

// Shadowed records a route map entry overwritten by a later tool.
type Shadowed struct {
	Path     string `json:"path"`
	Previous string `json:"previous"`
	Winner   string `json:"winner"`
}

// Result is the output of a compilation pass over a set of selected tools.
type Result struct {
	SchemaDetails []*SchemaDetail `json:"schemaDetails"`
	AllTools      []FunctionDef   `json:"allTools"`
	AllRouteMaps  RouteMap        `json:"allRouteMaps"`
	Shadowed      []Shadowed      `json:"shadowed,omitempty"`
	// DuplicateFunctions lists function names defined by more than one tool.
	DuplicateFunctions []string `json:"duplicateFunctions,omitempty"`
}

// Definitions returns AllTools in function-calling format.
func (r *Result) Definitions() []ToolDefinition {
	defs := make([]ToolDefinition, 0, len(r.AllTools))
	for _, f := range r.AllTools {
		defs = append(defs, f.Definition())
	}
	return defs
}
