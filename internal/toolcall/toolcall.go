// Package toolcall holds the function-call intent emitted by a model and the
// canonical parsed form of its arguments.
package toolcall

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Intent is a model's request to call one function. Arguments holds either a
// JSON string that itself contains JSON, or a JSON object.
type Intent struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// NewIntent builds an intent whose arguments arrive as a JSON-encoded string,
// the form chat completion APIs use.
func NewIntent(name, arguments string) Intent {
	raw, _ := json.Marshal(arguments)
	return Intent{Name: name, Arguments: raw}
}

// ObjectIntent builds an intent from already-parsed arguments.
func ObjectIntent(name string, arguments map[string]any) (Intent, error) {
	raw, err := json.Marshal(arguments)
	if err != nil {
		return Intent{}, fmt.Errorf("encode arguments: %w", err)
	}
	return Intent{Name: name, Arguments: raw}, nil
}

// Arguments is the parsed argument object. Numbers are kept as json.Number.
type Arguments struct {
	// Parameters is the "parameters" member when it is an object.
	Parameters map[string]any
	// RequestBody is the "requestBody" member; HasBody reports its presence.
	// A null requestBody counts as absent.
	RequestBody any
	HasBody     bool
	// Raw is the whole argument object.
	Raw map[string]any
}

// Values returns Parameters, or the whole object when the model sent its
// arguments flat without a "parameters" wrapper.
func (a Arguments) Values() map[string]any {
	if a.Parameters != nil {
		return a.Parameters
	}
	return a.Raw
}

// Body returns the payload for a body-mode request: RequestBody if present,
// otherwise the whole argument object.
func (a Arguments) Body() any {
	if a.HasBody {
		return a.RequestBody
	}
	return a.Raw
}

// FromMap wraps an already-decoded object.
func FromMap(m map[string]any) Arguments {
	if m == nil {
		m = map[string]any{}
	}
	a := Arguments{Raw: m}
	if p, ok := m["parameters"].(map[string]any); ok {
		a.Parameters = p
	}
	if body, ok := m["requestBody"]; ok && body != nil {
		a.RequestBody = body
		a.HasBody = true
	}
	return a
}

// Parse normalises raw arguments. A JSON string is unwrapped, trimmed and
// parsed; an object is used as is; empty input and null give empty arguments.
func Parse(raw json.RawMessage) (Arguments, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return FromMap(nil), nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return Arguments{}, fmt.Errorf("decode argument string: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return FromMap(nil), nil
		}
		raw = []byte(s)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return Arguments{}, fmt.Errorf("decode arguments: %w", err)
	}
	if dec.More() {
		return Arguments{}, errors.New("decode arguments: trailing data after JSON value")
	}
	switch obj := v.(type) {
	case map[string]any:
		return FromMap(obj), nil
	case nil:
		return FromMap(nil), nil
	default:
		return Arguments{}, fmt.Errorf("arguments must be a JSON object, got %T", v)
	}
}
