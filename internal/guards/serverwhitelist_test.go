package guards

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/MrWong99/mcpguard/internal/guardcore"
)

func TestServerWhitelist_Allowed(t *testing.T) {
	g, err := NewServerWhitelist("sw", []byte(`{"allowed_servers":["github"]}`))
	require.NoError(t, err)

	d, err := g.Evaluate(context.Background(), guardcore.PhaseRequest, nil, &guardcore.GuardContext{ServerName: "github"})
	require.NoError(t, err)
	require.True(t, d.IsAllow())
}

func TestServerWhitelist_Typosquat(t *testing.T) {
	g, err := NewServerWhitelist("sw", []byte(`{"allowed_servers":["github"],"detect_typosquats":true,"similarity_threshold":0.85}`))
	require.NoError(t, err)

	d, err := g.Evaluate(context.Background(), guardcore.PhaseRequest, nil, &guardcore.GuardContext{ServerName: "gihub"})
	require.NoError(t, err)
	require.True(t, d.IsDeny())
	require.Equal(t, "typosquat_suspected", d.DenyDetails().Code)
}

func TestServerWhitelist_NotWhitelistedNoTyposquat(t *testing.T) {
	g, err := NewServerWhitelist("sw", []byte(`{"allowed_servers":["github"],"detect_typosquats":false}`))
	require.NoError(t, err)

	d, err := g.Evaluate(context.Background(), guardcore.PhaseRequest, nil, &guardcore.GuardContext{ServerName: "totally-unrelated"})
	require.NoError(t, err)
	require.True(t, d.IsDeny())
	require.Equal(t, "server_not_whitelisted", d.DenyDetails().Code)
}

func TestServerWhitelist_EmptyAllowedDeniesEverything(t *testing.T) {
	g, err := NewServerWhitelist("sw", nil)
	require.NoError(t, err)

	d, err := g.Evaluate(context.Background(), guardcore.PhaseRequest, nil, &guardcore.GuardContext{ServerName: "anything"})
	require.NoError(t, err)
	require.True(t, d.IsDeny())
}
