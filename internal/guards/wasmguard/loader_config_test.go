package wasmguard

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMergeGuestConfig_BothEmpty_ReturnsNil(t *testing.T) {
	raw, err := mergeGuestConfig(nil, nil)
	require.NoError(t, err)
	require.Nil(t, raw)
}

func TestMergeGuestConfig_OverrideWinsOnCollision(t *testing.T) {
	defaults := map[string]any{"threshold": 5.0, "mode": "strict"}
	override := map[string]any{"threshold": 9.0}

	raw, err := mergeGuestConfig(defaults, override)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, 9.0, got["threshold"])
	require.Equal(t, "strict", got["mode"])
}

func TestMergeGuestConfig_DefaultsOnly(t *testing.T) {
	raw, err := mergeGuestConfig(map[string]any{"mode": "strict"}, nil)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(raw, &got))
	require.Equal(t, "strict", got["mode"])
}
