package guards

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/mcpguard/internal/guardcore"
	"github.com/MrWong99/mcpguard/internal/guarddetect"
)

type serverWhitelistConfig struct {
	AllowedServers      []string `json:"allowed_servers"`
	DetectTyposquats    *bool    `json:"detect_typosquats"`
	SimilarityThreshold *float64 `json:"similarity_threshold"`
}

func (c serverWhitelistConfig) detectTyposquats() bool {
	if c.DetectTyposquats == nil {
		return true
	}
	return *c.DetectTyposquats
}

func (c serverWhitelistConfig) similarityThreshold() float64 {
	if c.SimilarityThreshold == nil {
		return 0.85
	}
	return *c.SimilarityThreshold
}

// ServerWhitelist restricts requests to an allowed set of upstream server
// names, optionally flagging typosquat candidates close to an allowed name.
// See spec.md §4.3.5.
type ServerWhitelist struct {
	id         string
	allowed    []string
	allowedSet map[string]bool
	typosquat  bool
	threshold  float64
}

// NewServerWhitelist constructs a ServerWhitelist guard from raw JSON
// configuration. An empty allowed_servers list is valid configuration — per
// spec.md §8 it denies every request, it is not a ConfigError.
func NewServerWhitelist(id string, raw json.RawMessage) (*ServerWhitelist, error) {
	var cfg serverWhitelistConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, guardcore.NewGuardError(id, guardcore.ErrConfig, fmt.Errorf("decode server_whitelist config: %w", err))
		}
	}
	allowedSet := make(map[string]bool, len(cfg.AllowedServers))
	for _, s := range cfg.AllowedServers {
		allowedSet[s] = true
	}
	return &ServerWhitelist{
		id:         id,
		allowed:    cfg.AllowedServers,
		allowedSet: allowedSet,
		typosquat:  cfg.detectTyposquats(),
		threshold:  cfg.similarityThreshold(),
	}, nil
}

func (g *ServerWhitelist) ID() string { return g.id }

func (g *ServerWhitelist) Hooks() []guardcore.Phase {
	return []guardcore.Phase{guardcore.PhaseRequest}
}

// Evaluate implements guardcore.Guard.
func (g *ServerWhitelist) Evaluate(_ context.Context, _ guardcore.Phase, _ guardcore.Payload, gctx *guardcore.GuardContext) (guardcore.Decision, error) {
	name := gctx.ServerName
	if g.allowedSet[name] {
		return guardcore.Allow(), nil
	}

	if !g.typosquat || len(g.allowed) == 0 {
		return guardcore.Deny("server_not_whitelisted", fmt.Sprintf("server %q is not in the allowed list", name), map[string]any{"candidate": name}), nil
	}

	closest := ""
	best := 0.0
	for _, candidate := range g.allowed {
		if r := guarddetect.Ratio(name, candidate); r > best {
			best = r
			closest = candidate
		}
	}

	if best >= g.threshold {
		return guardcore.Deny("typosquat_suspected", fmt.Sprintf("server %q closely resembles allowed server %q", name, closest), map[string]any{
			"candidate":  name,
			"closest":    closest,
			"similarity": best,
		}), nil
	}

	return guardcore.Deny("server_not_whitelisted", fmt.Sprintf("server %q is not in the allowed list", name), map[string]any{"candidate": name}), nil
}
