package guarddetect

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRatio_Identical(t *testing.T) {
	require.Equal(t, 1.0, Ratio("github", "github"))
}

func TestRatio_Typosquat(t *testing.T) {
	r := Ratio("gihub", "github")
	require.GreaterOrEqual(t, r, 0.85)
}

func TestRatio_Unrelated(t *testing.T) {
	r := Ratio("github", "totally-different-name")
	require.Less(t, r, 0.85)
}
