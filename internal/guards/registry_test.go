package guards

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrWong99/mcpguard/internal/guardcore"
)

func TestRegistry_BuildUnknownKind(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("does_not_exist", "g1", nil)
	require.ErrorIs(t, err, ErrGuardKindNotRegistered)
}

func TestDefaultRegistry_BuildsEveryBuiltinKind(t *testing.T) {
	r := NewDefaultRegistry()
	for _, kind := range []string{"tool_poisoning", "pii", "rug_pull", "tool_shadowing", "server_whitelist"} {
		g, err := r.Build(kind, "g1", nil)
		require.NoError(t, err, "kind %q", kind)
		require.Equal(t, "g1", g.ID())
	}
}

func TestDefaultRegistry_ConstructedGuardsImplementInterface(t *testing.T) {
	r := NewDefaultRegistry()
	g, err := r.Build("tool_poisoning", "g1", nil)
	require.NoError(t, err)

	var _ guardcore.Guard = g
	d, err := g.Evaluate(context.Background(), guardcore.PhaseToolsList, guardcore.ToolsPayload{}, &guardcore.GuardContext{})
	require.NoError(t, err)
	require.True(t, d.IsAllow())
}
