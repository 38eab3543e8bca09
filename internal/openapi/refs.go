package openapi

import (
	"encoding/json"
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
)

// schemaMap renders a resolved schema as a self-contained JSON Schema map.
// The loader has already resolved every $ref into SchemaRef.Value; the copy
// drops the references so only the resolved schemas are marshalled.
func schemaMap(ref *openapi3.SchemaRef) (map[string]any, error) {
	inlined := inlineRef(ref, make(map[*openapi3.Schema]bool))
	if inlined == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(inlined)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if out == nil {
		out = map[string]any{}
	}
	return out, nil
}

// inlineRef copies ref without its $ref. A schema that is its own ancestor
// collapses to an open object; an unresolved reference becomes {}.
func inlineRef(ref *openapi3.SchemaRef, ancestors map[*openapi3.Schema]bool) *openapi3.SchemaRef {
	if ref == nil {
		return nil
	}
	if ref.Value == nil {
		return &openapi3.SchemaRef{Value: &openapi3.Schema{}}
	}
	if ancestors[ref.Value] {
		return &openapi3.SchemaRef{Value: openapi3.NewObjectSchema()}
	}
	ancestors[ref.Value] = true
	defer delete(ancestors, ref.Value)

	s := *ref.Value
	s.OneOf = inlineRefs(s.OneOf, ancestors)
	s.AnyOf = inlineRefs(s.AnyOf, ancestors)
	s.AllOf = inlineRefs(s.AllOf, ancestors)
	s.Not = inlineRef(s.Not, ancestors)
	s.Items = inlineRef(s.Items, ancestors)
	if s.Properties != nil {
		props := make(openapi3.Schemas, len(s.Properties))
		for name, p := range s.Properties {
			props[name] = inlineRef(p, ancestors)
		}
		s.Properties = props
	}
	s.AdditionalProperties.Schema = inlineRef(s.AdditionalProperties.Schema, ancestors)
	return &openapi3.SchemaRef{Value: &s}
}

func inlineRefs(refs openapi3.SchemaRefs, ancestors map[*openapi3.Schema]bool) openapi3.SchemaRefs {
	if refs == nil {
		return nil
	}
	out := make(openapi3.SchemaRefs, len(refs))
	for i, r := range refs {
		out[i] = inlineRef(r, ancestors)
	}
	return out
}
