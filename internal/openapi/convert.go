package openapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

const jsonMediaType = "application/json"

// methodOrder fixes the order in which a path's operations become functions.
var methodOrder = []string{
	http.MethodGet,
	http.MethodPut,
	http.MethodPost,
	http.MethodDelete,
	http.MethodOptions,
	http.MethodHead,
	http.MethodPatch,
	http.MethodTrace,
}

// Convert parses an OpenAPI 3 document (JSON or YAML) and derives one
// function per operation plus the route table that maps them back to paths.
// Paths are visited in sorted order so the output is deterministic.
func Convert(ctx context.Context, data []byte) (*CompiledSchema, error) {
	loader := openapi3.NewLoader()
	loader.Context = ctx
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("parse openapi document: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return nil, err
	}

	cs := &CompiledSchema{
		Title:       doc.Info.Title,
		Description: doc.Info.Description,
		Server:      strings.TrimRight(doc.Servers[0].URL, "/"),
	}

	err = eachOperation(doc, func(path, method string, item *openapi3.PathItem, op *openapi3.Operation) error {
		fn, err := buildFunction(item, op)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		cs.Functions = append(cs.Functions, fn)
		cs.Routes = append(cs.Routes, Route{
			Path:          ConvertPathTemplate(path),
			Method:        method,
			OperationID:   op.OperationID,
			RequestInBody: op.RequestBody != nil,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cs, nil
}

// validateDocument enforces the subset of OpenAPI the bridge can execute.
func validateDocument(doc *openapi3.T) error {
	if doc.Info == nil || doc.Info.Title == "" {
		return errors.New("info.title is required")
	}
	if len(doc.Servers) == 0 || doc.Servers[0] == nil || doc.Servers[0].URL == "" {
		return errors.New("could not find a valid URL in servers")
	}
	if len(doc.Servers) > 1 {
		return errors.New("only one server URL is supported")
	}
	if doc.Paths == nil || len(doc.Paths.Map()) == 0 {
		return errors.New("no paths found in the document")
	}
	return eachOperation(doc, func(path, method string, _ *openapi3.PathItem, op *openapi3.Operation) error {
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("path %q does not start with a slash", path)
		}
		if op.OperationID == "" {
			return fmt.Errorf("%s %s is missing operationId", method, path)
		}
		if op.RequestBody != nil && op.RequestBody.Value != nil &&
			op.RequestBody.Value.Content.Get(jsonMediaType) == nil {
			return fmt.Errorf("%s %s has a request body without %s content", method, path, jsonMediaType)
		}
		return nil
	})
}

func eachOperation(doc *openapi3.T, fn func(path, method string, item *openapi3.PathItem, op *openapi3.Operation) error) error {
	paths := doc.Paths.Map()
	keys := make([]string, 0, len(paths))
	for p := range paths {
		keys = append(keys, p)
	}
	sort.Strings(keys)

	for _, path := range keys {
		item := paths[path]
		if item == nil {
			continue
		}
		for _, method := range methodOrder {
			op := item.GetOperation(method)
			if op == nil {
				continue
			}
			if err := fn(path, method, item, op); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildFunction(item *openapi3.PathItem, op *openapi3.Operation) (FunctionDef, error) {
	paramProps := make(map[string]any)
	var required []string
	for _, p := range operationParameters(item, op) {
		if p.Schema == nil {
			continue
		}
		schema, err := schemaMap(p.Schema)
		if err != nil {
			return FunctionDef{}, fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		if _, ok := schema["description"]; !ok && p.Description != "" {
			schema["description"] = p.Description
		}
		paramProps[p.Name] = schema
		if p.Required {
			required = append(required, p.Name)
		}
	}

	var body map[string]any
	bodyRequired := false
	if op.RequestBody != nil && op.RequestBody.Value != nil {
		if media := op.RequestBody.Value.Content.Get(jsonMediaType); media != nil && media.Schema != nil {
			var err error
			if body, err = schemaMap(media.Schema); err != nil {
				return FunctionDef{}, fmt.Errorf("request body: %w", err)
			}
			bodyRequired = op.RequestBody.Value.Required
		}
	}

	desc := op.Description
	if desc == "" {
		desc = op.Summary
	}
	return FunctionDef{
		Name:        op.OperationID,
		Description: desc,
		Parameters:  functionParameters(paramProps, required, body, bodyRequired),
	}, nil
}

// operationParameters merges path-item parameters with the operation's own,
// the operation winning on a name+location clash.
func operationParameters(item *openapi3.PathItem, op *openapi3.Operation) []*openapi3.Parameter {
	var out []*openapi3.Parameter
	index := make(map[string]int)
	add := func(refs openapi3.Parameters) {
		for _, ref := range refs {
			if ref == nil || ref.Value == nil {
				continue
			}
			key := ref.Value.In + ":" + ref.Value.Name
			if i, ok := index[key]; ok {
				out[i] = ref.Value
				continue
			}
			index[key] = len(out)
			out = append(out, ref.Value)
		}
	}
	add(item.Parameters)
	add(op.Parameters)
	return out
}

// functionParameters builds the argument envelope the dispatcher expects:
// {"parameters": {...}, "requestBody": {...}}.
func functionParameters(paramProps map[string]any, required []string, body map[string]any, bodyRequired bool) map[string]any {
	props := make(map[string]any)
	var top []string
	if len(paramProps) > 0 {
		params := map[string]any{
			"type":       "object",
			"properties": paramProps,
		}
		if len(required) > 0 {
			params["required"] = required
			top = append(top, "parameters")
		}
		props["parameters"] = params
	}
	if body != nil {
		props["requestBody"] = body
		if bodyRequired {
			top = append(top, "requestBody")
		}
	}
	out := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(top) > 0 {
		out["required"] = top
	}
	return out
}
