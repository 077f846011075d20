package guards

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrWong99/mcpguard/internal/guardcore"
)

func TestPII_MaskEmailAndSSN(t *testing.T) {
	g, err := NewPII("pii", []byte(`{"detect":["email","ssn"]}`))
	require.NoError(t, err)

	raw := json.RawMessage(`{"user":{"email":"john@example.com","ssn":"123-45-6789","nickname":"jdoe"}}`)
	d, err := g.Evaluate(context.Background(), guardcore.PhaseResponse, guardcore.NewJSONPayload(raw), &guardcore.GuardContext{})
	require.NoError(t, err)
	require.True(t, d.IsModify())

	action, ok := d.ModifyAction().(guardcore.RedactFields)
	require.True(t, ok)

	byPath := make(map[string]string, len(action.Fields))
	for _, f := range action.Fields {
		byPath[f.Path] = f.Value
	}
	require.Equal(t, "[REDACTED_EMAIL]", byPath["user.email"])
	require.Equal(t, "[REDACTED_SSN]", byPath["user.ssn"])
	_, touched := byPath["user.nickname"]
	require.False(t, touched)
}

func TestPII_Reject(t *testing.T) {
	g, err := NewPII("pii", []byte(`{"detect":["credit_card"],"action":"reject","rejection_message":"blocked"}`))
	require.NoError(t, err)

	raw := json.RawMessage(`{"card":"4532-0151-1283-0366"}`)
	d, err := g.Evaluate(context.Background(), guardcore.PhaseResponse, guardcore.NewJSONPayload(raw), &guardcore.GuardContext{})
	require.NoError(t, err)
	require.True(t, d.IsDeny())
	require.Equal(t, "pii_detected", d.DenyDetails().Code)
	require.Equal(t, "blocked", d.DenyDetails().Message)
}

func TestPII_CleanPayloadAllows(t *testing.T) {
	g, err := NewPII("pii", nil)
	require.NoError(t, err)

	raw := json.RawMessage(`{"note":"nothing sensitive here"}`)
	d, err := g.Evaluate(context.Background(), guardcore.PhaseResponse, guardcore.NewJSONPayload(raw), &guardcore.GuardContext{})
	require.NoError(t, err)
	require.True(t, d.IsAllow())
}

func TestPII_EmptyDetectSetIsConfigError(t *testing.T) {
	_, err := NewPII("pii", []byte(`{"detect":[]}`))
	require.Error(t, err)

	var gerr *guardcore.GuardError
	require.ErrorAs(t, err, &gerr)
	require.Equal(t, guardcore.ErrConfig, gerr.Kind)
}

func TestPII_MaskIdempotent(t *testing.T) {
	g, err := NewPII("pii", []byte(`{"detect":["email"]}`))
	require.NoError(t, err)

	raw := json.RawMessage(`{"email":"john@example.com"}`)
	first, err := g.Evaluate(context.Background(), guardcore.PhaseResponse, guardcore.NewJSONPayload(raw), &guardcore.GuardContext{})
	require.NoError(t, err)
	require.True(t, first.IsModify())

	masked, err := guardcore.NewJSONPayload(raw).Apply(first.ModifyAction())
	require.NoError(t, err)
	maskedJSON, ok := masked.(guardcore.JSONPayload)
	require.True(t, ok)

	second, err := g.Evaluate(context.Background(), guardcore.PhaseResponse, maskedJSON, &guardcore.GuardContext{})
	require.NoError(t, err)
	require.True(t, second.IsAllow(), "masking an already-masked payload must be a no-op")
}
