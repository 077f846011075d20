package guards

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/MrWong99/mcpguard/internal/guardcore"
	"github.com/MrWong99/mcpguard/internal/guarddetect"
)

// piiAction is the configured response to a detected entity.
type piiAction string

const (
	piiActionMask   piiAction = "mask"
	piiActionReject piiAction = "reject"
)

type piiConfig struct {
	Detect           []guarddetect.EntityType `json:"detect"`
	Action           piiAction                `json:"action"`
	MinScore         *float64                 `json:"min_score"`
	RejectionMessage string                   `json:"rejection_message"`
}

func (c piiConfig) action() piiAction {
	if c.Action == "" {
		return piiActionMask
	}
	return c.Action
}

func (c piiConfig) minScore() float64 {
	if c.MinScore == nil {
		return 0.8
	}
	return *c.MinScore
}

var defaultDetectSet = []guarddetect.EntityType{
	guarddetect.EntityEmail, guarddetect.EntityPhone, guarddetect.EntitySSN, guarddetect.EntityCreditCard,
}

// PII detects personally identifiable information leaking back from tool
// results/responses into model context, and either masks or rejects it.
// See spec.md §4.3.2.
type PII struct {
	id               string
	detect           []guarddetect.EntityType
	action           piiAction
	minScore         float64
	rejectionMessage string
}

// NewPII constructs a PII guard from raw JSON configuration. An empty
// detect set is a ConfigError per spec.md §8's boundary cases.
func NewPII(id string, raw json.RawMessage) (*PII, error) {
	var cfg piiConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, guardcore.NewGuardError(id, guardcore.ErrConfig, fmt.Errorf("decode pii config: %w", err))
		}
	}

	detect := cfg.Detect
	if len(detect) == 0 {
		if cfg.Detect != nil {
			// An explicit empty list is a configuration error; nil (field
			// absent) falls back to the default set.
			return nil, guardcore.NewGuardError(id, guardcore.ErrConfig, fmt.Errorf("pii: detect must be non-empty"))
		}
		detect = defaultDetectSet
	}
	for _, t := range detect {
		if !guarddetect.IsKnownEntityType(t) {
			return nil, guardcore.NewGuardError(id, guardcore.ErrConfig, fmt.Errorf("pii: unknown entity type %q", t))
		}
	}

	return &PII{
		id:               id,
		detect:           detect,
		action:           cfg.action(),
		minScore:         cfg.minScore(),
		rejectionMessage: cfg.RejectionMessage,
	}, nil
}

func (g *PII) ID() string { return g.id }

func (g *PII) Hooks() []guardcore.Phase {
	return []guardcore.Phase{guardcore.PhaseResponse, guardcore.PhaseToolResult}
}

// Evaluate implements guardcore.Guard.
func (g *PII) Evaluate(_ context.Context, _ guardcore.Phase, payload guardcore.Payload, _ *guardcore.GuardContext) (guardcore.Decision, error) {
	jp, ok := payload.(guardcore.JSONPayload)
	if !ok {
		return guardcore.Allow(), nil
	}

	fields := guarddetect.WalkStrings(jp.Raw())
	if len(fields) == 0 {
		return guardcore.Allow(), nil
	}

	typesFound := map[guarddetect.EntityType]bool{}
	var redacted []guardcore.RedactedField

	for _, field := range fields {
		masked, hitTypes := g.maskString(field.Value)
		if len(hitTypes) == 0 {
			continue
		}
		for t := range hitTypes {
			typesFound[t] = true
		}
		if g.action == piiActionMask {
			redacted = append(redacted, guardcore.RedactedField{Path: field.Path, Value: masked})
		}
	}

	if len(typesFound) == 0 {
		return guardcore.Allow(), nil
	}

	if g.action == piiActionReject {
		msg := g.rejectionMessage
		if msg == "" {
			msg = "response blocked: personally identifiable information detected"
		}
		return guardcore.Deny("pii_detected", msg, map[string]any{"types_found": entityTypeNames(typesFound)}), nil
	}

	return guardcore.Modify(guardcore.RedactFields{Fields: redacted}), nil
}

// maskString runs every configured entity detector against s and returns
// the string with all hits scoring at or above minScore replaced by
// "[REDACTED_<TYPE>]" placeholders, in a single left-to-right pass so
// non-hit runs are preserved verbatim and overlapping hits cannot double up.
func (g *PII) maskString(s string) (string, map[guarddetect.EntityType]bool) {
	type span struct {
		start, end int
		typ        guarddetect.EntityType
	}
	var spans []span
	for _, t := range g.detect {
		for _, hit := range guarddetect.ScanEntity(t, s) {
			if hit.Score < g.minScore {
				continue
			}
			spans = append(spans, span{start: hit.Start, end: hit.End, typ: hit.Type})
		}
	}
	if len(spans) == 0 {
		return s, nil
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var b strings.Builder
	hitTypes := map[guarddetect.EntityType]bool{}
	cursor := 0
	for _, sp := range spans {
		if sp.start < cursor {
			// Overlaps a span already consumed by an earlier, wider match.
			continue
		}
		b.WriteString(s[cursor:sp.start])
		b.WriteString("[REDACTED_")
		b.WriteString(strings.ToUpper(string(sp.typ)))
		b.WriteString("]")
		cursor = sp.end
		hitTypes[sp.typ] = true
	}
	b.WriteString(s[cursor:])
	return b.String(), hitTypes
}

func entityTypeNames(set map[guarddetect.EntityType]bool) []string {
	names := make([]string, 0, len(set))
	for t := range set {
		names = append(names, string(t))
	}
	sort.Strings(names)
	return names
}
