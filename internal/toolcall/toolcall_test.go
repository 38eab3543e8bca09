package toolcall

import (
	"encoding/json"
	"testing"
)

func TestParse_StringAndObjectAgree(t *testing.T) {
	obj := json.RawMessage(`{"parameters":{"city":"Paris","days":3}}`)
	str := NewIntent("getWeather", `  {"parameters":{"city":"Paris","days":3}}  `).Arguments

	for name, raw := range map[string]json.RawMessage{"object": obj, "string": str} {
		t.Run(name, func(t *testing.T) {
			a, err := Parse(raw)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if a.Parameters["city"] != "Paris" {
				t.Errorf("city = %v", a.Parameters["city"])
			}
			if n, ok := a.Parameters["days"].(json.Number); !ok || n.String() != "3" {
				t.Errorf("days = %#v, want json.Number 3", a.Parameters["days"])
			}
			if a.HasBody {
				t.Error("HasBody should be false")
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	for _, raw := range []string{``, `null`, `""`, `"   "`, `  `} {
		a, err := Parse(json.RawMessage(raw))
		if err != nil {
			t.Errorf("Parse(%q): %v", raw, err)
			continue
		}
		if a.Raw == nil || len(a.Raw) != 0 || a.Parameters != nil {
			t.Errorf("Parse(%q) = %+v, want empty", raw, a)
		}
	}
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]json.RawMessage{
		"bad string json": NewIntent("f", `{"parameters":`).Arguments,
		"bad object":      json.RawMessage(`{"a":`),
		"array":           json.RawMessage(`[1,2]`),
		"array in string": NewIntent("f", `[1]`).Arguments,
		"number":          json.RawMessage(`42`),
		"trailing":        json.RawMessage(`{} {}`),
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(raw); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestArguments_BodyAndValues(t *testing.T) {
	a, err := Parse(json.RawMessage(`{"requestBody":{"id":5}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	body, ok := a.Body().(map[string]any)
	if !ok || body["id"] != json.Number("5") {
		t.Errorf("Body = %#v", a.Body())
	}

	nullBody, err := Parse(json.RawMessage(`{"requestBody":null,"id":9}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if nullBody.HasBody {
		t.Error("null requestBody should count as absent")
	}
	if whole, ok := nullBody.Body().(map[string]any); !ok || whole["id"] != json.Number("9") {
		t.Errorf("Body with null requestBody = %#v, want whole arguments", nullBody.Body())
	}

	flat := FromMap(map[string]any{"prompt": "cat"})
	if flat.Values()["prompt"] != "cat" {
		t.Errorf("Values on flat args = %v", flat.Values())
	}
	if flat.Body().(map[string]any)["prompt"] != "cat" {
		t.Errorf("Body falls back to the whole object")
	}

	wrapped := FromMap(map[string]any{"parameters": map[string]any{"prompt": "dog"}})
	if wrapped.Values()["prompt"] != "dog" {
		t.Errorf("Values on wrapped args = %v", wrapped.Values())
	}
}

func TestObjectIntent(t *testing.T) {
	in, err := ObjectIntent("f", map[string]any{"parameters": map[string]any{"x": "y"}})
	if err != nil {
		t.Fatalf("ObjectIntent: %v", err)
	}
	a, err := Parse(in.Arguments)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if a.Parameters["x"] != "y" {
		t.Errorf("x = %v", a.Parameters["x"])
	}
}
