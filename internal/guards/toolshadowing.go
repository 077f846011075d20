package guards

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/mcpguard/internal/guardcore"
)

type toolShadowingConfig struct {
	BlockDuplicates *bool    `json:"block_duplicates"`
	ProtectedNames  []string `json:"protected_names"`
}

func (c toolShadowingConfig) blockDuplicates() bool {
	if c.BlockDuplicates == nil {
		return true
	}
	return *c.BlockDuplicates
}

// ToolShadowing detects tool names that collide with a protected list or
// duplicate within the same listing. See spec.md §4.3.4.
type ToolShadowing struct {
	id              string
	blockDuplicates bool
	protectedNames  map[string]bool
}

// NewToolShadowing constructs a ToolShadowing guard from raw JSON
// configuration.
func NewToolShadowing(id string, raw json.RawMessage) (*ToolShadowing, error) {
	var cfg toolShadowingConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, guardcore.NewGuardError(id, guardcore.ErrConfig, fmt.Errorf("decode tool_shadowing config: %w", err))
		}
	}
	protected := make(map[string]bool, len(cfg.ProtectedNames))
	for _, n := range cfg.ProtectedNames {
		protected[n] = true
	}
	return &ToolShadowing{
		id:              id,
		blockDuplicates: cfg.blockDuplicates(),
		protectedNames:  protected,
	}, nil
}

func (g *ToolShadowing) ID() string { return g.id }

func (g *ToolShadowing) Hooks() []guardcore.Phase {
	return []guardcore.Phase{guardcore.PhaseToolsList}
}

type shadowedTool struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Evaluate implements guardcore.Guard.
func (g *ToolShadowing) Evaluate(_ context.Context, _ guardcore.Phase, payload guardcore.Payload, _ *guardcore.GuardContext) (guardcore.Decision, error) {
	tp, ok := payload.(guardcore.ToolsPayload)
	if !ok {
		return guardcore.Allow(), nil
	}
	if len(tp.Tools) == 0 {
		return guardcore.Allow(), nil
	}

	seen := make(map[string]bool, len(tp.Tools))
	var shadowed []shadowedTool

	for _, tool := range tp.Tools {
		if g.protectedNames[tool.Name] {
			shadowed = append(shadowed, shadowedTool{Name: tool.Name, Reason: "collides with a protected name"})
			continue
		}
		if g.blockDuplicates && seen[tool.Name] {
			shadowed = append(shadowed, shadowedTool{Name: tool.Name, Reason: "duplicate tool name in the same listing"})
			continue
		}
		seen[tool.Name] = true
	}

	if len(shadowed) == 0 {
		return guardcore.Allow(), nil
	}
	return guardcore.Deny("tool_shadowing", "one or more tool names shadow a protected or duplicated name", shadowed), nil
}
