package guardcore

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/sjson"
)

// Payload carries the in-flight message body through a guard chain. Each
// MCP phase has a natural shape — a tool list, an arbitrary JSON body — and
// Payload lets the engine apply a ModifyAction without every guard needing
// to know the concrete wire representation.
type Payload interface {
	// Apply returns a new Payload reflecting action. Implementations that
	// cannot apply a given action type return an error; the engine surfaces
	// that as a GuardInternal error under the guard's failure_mode.
	Apply(action ModifyAction) (Payload, error)
}

// ToolsPayload wraps a tools/list response body.
type ToolsPayload struct {
	Tools []Tool
}

// Apply implements Payload. Only ReplaceTools applies to a ToolsPayload.
func (p ToolsPayload) Apply(action ModifyAction) (Payload, error) {
	switch a := action.(type) {
	case ReplaceTools:
		return ToolsPayload{Tools: a.Tools}, nil
	case AddWarning:
		// Advisory only — the tool list itself is unchanged.
		return p, nil
	default:
		return nil, fmt.Errorf("guardcore: %T cannot be applied to a tools payload", action)
	}
}

// JSONPayload wraps an arbitrary JSON body (responses, tool results).
type JSONPayload struct {
	raw []byte
}

// NewJSONPayload constructs a JSONPayload from an already-encoded JSON
// document.
func NewJSONPayload(raw json.RawMessage) JSONPayload {
	cp := make([]byte, len(raw))
	copy(cp, raw)
	return JSONPayload{raw: cp}
}

// NewJSONPayloadFrom marshals v into a JSONPayload.
func NewJSONPayloadFrom(v any) (JSONPayload, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return JSONPayload{}, fmt.Errorf("guardcore: marshal json payload: %w", err)
	}
	return JSONPayload{raw: raw}, nil
}

// Raw returns the underlying JSON document.
func (p JSONPayload) Raw() json.RawMessage { return json.RawMessage(p.raw) }

// Decode unmarshals the payload into v.
func (p JSONPayload) Decode(v any) error {
	return json.Unmarshal(p.raw, v)
}

// Apply implements Payload. RedactFields rewrites each selector path in
// place using sjson (the same library used to read paths via gjson in
// package guarddetect, so Apply always understands exactly what the PII
// guard produced). Each RedactedField.Value already has every hit inside
// that string masked in one pass — Apply only substitutes the final value,
// it does not know or care how many spans were replaced to produce it.
// AddWarning is advisory and leaves the body untouched.
func (p JSONPayload) Apply(action ModifyAction) (Payload, error) {
	switch a := action.(type) {
	case RedactFields:
		doc := string(p.raw)
		var err error
		for _, field := range a.Fields {
			doc, err = sjson.Set(doc, field.Path, field.Value)
			if err != nil {
				return nil, fmt.Errorf("guardcore: redact path %q: %w", field.Path, err)
			}
		}
		return JSONPayload{raw: []byte(doc)}, nil
	case AddWarning:
		return p, nil
	default:
		return nil, fmt.Errorf("guardcore: %T cannot be applied to a json payload", action)
	}
}
