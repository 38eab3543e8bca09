package openapi

import "net/http"

// Parameter describes one argument of a platform function.
type Parameter struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required"`
	Type        string `json:"type"`
}

// LocalFunction is a platform function as seen by the compiler.
type LocalFunction struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
}

// LocalTool is a platform tool as seen by the compiler.
type LocalTool struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Functions   []LocalFunction `json:"functions"`
}

// LocalCatalog looks up platform tools by stored tool ID.
type LocalCatalog interface {
	LocalTool(id string) (LocalTool, bool)
}

// CompileLocal synthesises the compiled form of a platform tool: one function
// per platform function, each routed at "/<name>" on the local executor.
func CompileLocal(tool LocalTool) *CompiledSchema {
	cs := &CompiledSchema{
		Title:       tool.Name,
		Description: tool.Description,
		Server:      LocalExecutorURL,
	}
	for _, fn := range tool.Functions {
		props := make(map[string]any, len(fn.Parameters))
		var required []string
		for _, p := range fn.Parameters {
			typ := p.Type
			if typ == "" {
				typ = "string"
			}
			prop := map[string]any{"type": typ}
			if p.Description != "" {
				prop["description"] = p.Description
			}
			props[p.Name] = prop
			if p.Required {
				required = append(required, p.Name)
			}
		}
		cs.Functions = append(cs.Functions, FunctionDef{
			Name:        fn.Name,
			Description: fn.Description,
			Parameters:  functionParameters(props, required, nil, false),
		})
		cs.Routes = append(cs.Routes, Route{
			Path:        "/" + fn.Name,
			Method:      http.MethodGet,
			OperationID: fn.Name,
		})
	}
	return cs
}
