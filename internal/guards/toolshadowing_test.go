package guards

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrWong99/mcpguard/internal/guardcore"
)

func TestToolShadowing_ProtectedName(t *testing.T) {
	g, err := NewToolShadowing("ts", []byte(`{"protected_names":["admin_tool"]}`))
	require.NoError(t, err)

	payload := guardcore.ToolsPayload{Tools: []guardcore.Tool{{Name: "admin_tool"}}}
	d, err := g.Evaluate(context.Background(), guardcore.PhaseToolsList, payload, &guardcore.GuardContext{})
	require.NoError(t, err)
	require.True(t, d.IsDeny())
	require.Equal(t, "tool_shadowing", d.DenyDetails().Code)
}

func TestToolShadowing_Duplicate(t *testing.T) {
	g, err := NewToolShadowing("ts", nil)
	require.NoError(t, err)

	payload := guardcore.ToolsPayload{Tools: []guardcore.Tool{{Name: "search"}, {Name: "search"}}}
	d, err := g.Evaluate(context.Background(), guardcore.PhaseToolsList, payload, &guardcore.GuardContext{})
	require.NoError(t, err)
	require.True(t, d.IsDeny())
}

func TestToolShadowing_DuplicatesAllowedWhenDisabled(t *testing.T) {
	g, err := NewToolShadowing("ts", []byte(`{"block_duplicates":false}`))
	require.NoError(t, err)

	payload := guardcore.ToolsPayload{Tools: []guardcore.Tool{{Name: "search"}, {Name: "search"}}}
	d, err := g.Evaluate(context.Background(), guardcore.PhaseToolsList, payload, &guardcore.GuardContext{})
	require.NoError(t, err)
	require.True(t, d.IsAllow())
}

func TestToolShadowing_EmptyListAllows(t *testing.T) {
	g, err := NewToolShadowing("ts", nil)
	require.NoError(t, err)

	d, err := g.Evaluate(context.Background(), guardcore.PhaseToolsList, guardcore.ToolsPayload{}, &guardcore.GuardContext{})
	require.NoError(t, err)
	require.True(t, d.IsAllow())
}
