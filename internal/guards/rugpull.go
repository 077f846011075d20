package guards

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrWong99/mcpguard/internal/guardcore"
	"github.com/MrWong99/mcpguard/internal/guarddetect"
)

// rugPullScope selects whether baselines are kept per server or per
// (server, session).
type rugPullScope string

const (
	scopeGlobal  rugPullScope = "global"
	scopeSession rugPullScope = "session"
)

// changeKind classifies one difference between a baseline and a new listing.
type changeKind string

const (
	changeDescription changeKind = "description"
	changeSchema      changeKind = "schema"
	changeAdd         changeKind = "add"
	changeRemove      changeKind = "remove"
)

type rugPullConfig struct {
	Scope                rugPullScope `json:"scope"`
	RiskThreshold        *int         `json:"risk_threshold"`
	WeightDescription    *int         `json:"w_desc"`
	WeightSchema         *int         `json:"w_schema"`
	WeightAdd            *int         `json:"w_add"`
	WeightRemove         *int         `json:"w_remove"`
	MonitoredChangeTypes []string     `json:"monitored_change_types"`
	UpdateBaseline       bool         `json:"update_baseline"`
}

func (c rugPullConfig) scope() rugPullScope {
	if c.Scope == "" {
		return scopeGlobal
	}
	return c.Scope
}

func (c rugPullConfig) riskThreshold() int {
	if c.RiskThreshold == nil {
		return 5
	}
	return *c.RiskThreshold
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

func (c rugPullConfig) monitoredChangeTypes() map[string]bool {
	if len(c.MonitoredChangeTypes) == 0 {
		return map[string]bool{"all": true}
	}
	out := make(map[string]bool, len(c.MonitoredChangeTypes))
	for _, t := range c.MonitoredChangeTypes {
		out[t] = true
	}
	return out
}

// RugPull detects a server mutating a tool's description or schema after a
// baseline has been established for it. See spec.md §4.3.3.
type RugPull struct {
	id            string
	scope         rugPullScope
	riskThreshold int
	wDesc         int
	wSchema       int
	wAdd          int
	wRemove       int
	monitored     map[string]bool
	updateBase    bool
	store         *rugPullStore
}

// NewRugPull constructs a RugPull guard from raw JSON configuration. Each
// instance owns its own baseline store — instances of different guard ids
// never see each other's baselines, matching spec.md's "per guard instance"
// lifecycle (§3's Lifecycles).
func NewRugPull(id string, raw json.RawMessage) (*RugPull, error) {
	var cfg rugPullConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, guardcore.NewGuardError(id, guardcore.ErrConfig, fmt.Errorf("decode rug_pull config: %w", err))
		}
	}
	if cfg.Scope != "" && cfg.Scope != scopeGlobal && cfg.Scope != scopeSession {
		return nil, guardcore.NewGuardError(id, guardcore.ErrConfig, fmt.Errorf("rug_pull: unknown scope %q", cfg.Scope))
	}

	return &RugPull{
		id:            id,
		scope:         cfg.scope(),
		riskThreshold: cfg.riskThreshold(),
		wDesc:         intOr(cfg.WeightDescription, 2),
		wSchema:       intOr(cfg.WeightSchema, 3),
		wAdd:          intOr(cfg.WeightAdd, 1),
		wRemove:       intOr(cfg.WeightRemove, 3),
		monitored:     cfg.monitoredChangeTypes(),
		updateBase:    cfg.UpdateBaseline,
		store:         newRugPullStore(),
	}, nil
}

func (g *RugPull) ID() string { return g.id }

func (g *RugPull) Hooks() []guardcore.Phase {
	return []guardcore.Phase{guardcore.PhaseToolsList}
}

// Reset clears every baseline (global and session) recorded for server.
// Exposed as the administrative "reset(server_name)" operation of
// spec.md §4.3.3.
func (g *RugPull) Reset(server string) {
	g.store.reset(server)
}

type toolChange struct {
	Tool string     `json:"tool"`
	Kind changeKind `json:"kind"`
}

// Evaluate implements guardcore.Guard.
func (g *RugPull) Evaluate(_ context.Context, _ guardcore.Phase, payload guardcore.Payload, gctx *guardcore.GuardContext) (guardcore.Decision, error) {
	tp, ok := payload.(guardcore.ToolsPayload)
	if !ok {
		return guardcore.Allow(), nil
	}

	key := g.baselineKey(gctx)
	snapshot := snapshotTools(tp.Tools)

	entry, created := g.store.getOrCreate(key, snapshot)
	if created {
		return guardcore.Allow(), nil
	}

	changes := diffTools(entry.tools, snapshot)
	monitored := g.filterMonitored(changes)
	score := g.weightedScore(monitored)

	var decision guardcore.Decision
	if score >= g.riskThreshold {
		decision = guardcore.Deny("rug_pull", "tool definitions changed since the recorded baseline", map[string]any{
			"changes":   monitored,
			"score":     score,
			"threshold": g.riskThreshold,
		})
	} else {
		decision = guardcore.Allow()
	}

	if g.updateBase && decision.IsAllow() {
		g.store.update(key, snapshot)
	}

	return decision, nil
}

func (g *RugPull) baselineKey(gctx *guardcore.GuardContext) baselineKey {
	if g.scope == scopeSession {
		return baselineKey{server: gctx.ServerName, session: gctx.SessionID()}
	}
	return baselineKey{server: gctx.ServerName}
}

func snapshotTools(tools []guardcore.Tool) map[string]toolFingerprint {
	snapshot := make(map[string]toolFingerprint, len(tools))
	for _, t := range tools {
		snapshot[t.Name] = toolFingerprint{
			descHash:   guarddetect.DescHash(t.Description),
			schemaHash: guarddetect.SchemaHash(t.InputSchema),
		}
	}
	return snapshot
}

func diffTools(baseline, current map[string]toolFingerprint) []toolChange {
	var changes []toolChange
	for name, baseFp := range baseline {
		curFp, ok := current[name]
		if !ok {
			changes = append(changes, toolChange{Tool: name, Kind: changeRemove})
			continue
		}
		if baseFp.descHash != curFp.descHash {
			changes = append(changes, toolChange{Tool: name, Kind: changeDescription})
		}
		if baseFp.schemaHash != curFp.schemaHash {
			changes = append(changes, toolChange{Tool: name, Kind: changeSchema})
		}
	}
	for name := range current {
		if _, ok := baseline[name]; !ok {
			changes = append(changes, toolChange{Tool: name, Kind: changeAdd})
		}
	}
	return changes
}

func (g *RugPull) filterMonitored(changes []toolChange) []toolChange {
	if g.monitored["all"] {
		return changes
	}
	var out []toolChange
	for _, c := range changes {
		if g.monitored[string(c.Kind)] {
			out = append(out, c)
		}
	}
	return out
}

func (g *RugPull) weightedScore(changes []toolChange) int {
	score := 0
	for _, c := range changes {
		switch c.Kind {
		case changeDescription:
			score += g.wDesc
		case changeSchema:
			score += g.wSchema
		case changeAdd:
			score += g.wAdd
		case changeRemove:
			score += g.wRemove
		}
	}
	return score
}
