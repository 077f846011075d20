package guardcore

import (
	"encoding/json"
	"testing"
)

func TestToolsPayload_ApplyReplaceTools(t *testing.T) {
	p := ToolsPayload{Tools: []Tool{{Name: "search"}}}
	replacement := []Tool{{Name: "search"}, {Name: "fetch"}}

	out, err := p.Apply(ReplaceTools{Tools: replacement})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, ok := out.(ToolsPayload)
	if !ok {
		t.Fatalf("Apply returned %T, want ToolsPayload", out)
	}
	if len(got.Tools) != 2 {
		t.Fatalf("len(Tools) = %d, want 2", len(got.Tools))
	}
}

func TestToolsPayload_ApplyRejectsRedact(t *testing.T) {
	p := ToolsPayload{Tools: []Tool{{Name: "search"}}}
	if _, err := p.Apply(RedactFields{}); err == nil {
		t.Fatal("Apply(RedactFields) on a ToolsPayload: want error, got nil")
	}
}

func TestJSONPayload_ApplyRedactFields(t *testing.T) {
	raw := json.RawMessage(`{"user":{"email":"jane@example.com","note":"ok"}}`)
	p := NewJSONPayload(raw)

	out, err := p.Apply(RedactFields{Fields: []RedactedField{
		{Path: "user.email", Value: "[REDACTED_EMAIL]"},
	}})
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	got, ok := out.(JSONPayload)
	if !ok {
		t.Fatalf("Apply returned %T, want JSONPayload", out)
	}

	var decoded struct {
		User struct {
			Email string `json:"email"`
			Note  string `json:"note"`
		} `json:"user"`
	}
	if err := got.Decode(&decoded); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.User.Email != "[REDACTED_EMAIL]" {
		t.Errorf("Email = %q, want [REDACTED_EMAIL]", decoded.User.Email)
	}
	if decoded.User.Note != "ok" {
		t.Errorf("Note = %q, want unchanged %q", decoded.User.Note, "ok")
	}
}

func TestJSONPayload_ApplyRejectsReplaceTools(t *testing.T) {
	p := NewJSONPayload(json.RawMessage(`{}`))
	if _, err := p.Apply(ReplaceTools{}); err == nil {
		t.Fatal("Apply(ReplaceTools) on a JSONPayload: want error, got nil")
	}
}

func TestJSONPayload_RoundTrip(t *testing.T) {
	type doc struct {
		Name string `json:"name"`
	}
	p, err := NewJSONPayloadFrom(doc{Name: "search"})
	if err != nil {
		t.Fatalf("NewJSONPayloadFrom: %v", err)
	}
	var out doc
	if err := p.Decode(&out); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Name != "search" {
		t.Errorf("Name = %q, want %q", out.Name, "search")
	}
}
