package guards

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/MrWong99/mcpguard/internal/guardcore"
	"github.com/MrWong99/mcpguard/internal/guarddetect"
)

// scanField names a Tool field ToolPoisoning may scan.
type scanField string

const (
	scanName        scanField = "name"
	scanDescription scanField = "description"
	scanInputSchema scanField = "input_schema"
)

// toolPoisoningConfig is the decoded config block for the tool_poisoning
// guard kind.
type toolPoisoningConfig struct {
	StrictMode     *bool       `json:"strict_mode"`
	CustomPatterns []string    `json:"custom_patterns"`
	ScanFields     []scanField `json:"scan_fields"`
	AlertThreshold *int        `json:"alert_threshold"`
}

func (c toolPoisoningConfig) strictMode() bool {
	if c.StrictMode == nil {
		return true
	}
	return *c.StrictMode
}

func (c toolPoisoningConfig) alertThreshold() int {
	if c.AlertThreshold == nil || *c.AlertThreshold <= 0 {
		return 1
	}
	return *c.AlertThreshold
}

func (c toolPoisoningConfig) scanFields() []scanField {
	if len(c.ScanFields) == 0 {
		return []scanField{scanName, scanDescription, scanInputSchema}
	}
	return c.ScanFields
}

// ToolPoisoning detects prompt-injection attempts embedded in a tool's name,
// description, or input schema. See spec.md §4.3.1.
type ToolPoisoning struct {
	id             string
	strictMode     bool
	alertThreshold int
	scanFields     []scanField
	builtin        *guarddetect.InjectionPatternSet
	custom         []*regexp.Regexp
}

// NewToolPoisoning constructs a ToolPoisoning guard from raw JSON
// configuration. A custom pattern that fails to compile is a ConfigError,
// aborting route load per spec.md §7.
func NewToolPoisoning(id string, raw json.RawMessage) (*ToolPoisoning, error) {
	var cfg toolPoisoningConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, guardcore.NewGuardError(id, guardcore.ErrConfig, fmt.Errorf("decode tool_poisoning config: %w", err))
		}
	}

	custom := make([]*regexp.Regexp, 0, len(cfg.CustomPatterns))
	for _, p := range cfg.CustomPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, guardcore.NewGuardError(id, guardcore.ErrConfig, fmt.Errorf("compile custom pattern %q: %w", p, err))
		}
		custom = append(custom, re)
	}

	g := &ToolPoisoning{
		id:             id,
		strictMode:     cfg.strictMode(),
		alertThreshold: cfg.alertThreshold(),
		scanFields:     cfg.scanFields(),
	}
	if g.strictMode {
		g.builtin = guarddetect.NewInjectionPatternSet()
	}
	g.custom = custom
	return g, nil
}

func (g *ToolPoisoning) ID() string { return g.id }

func (g *ToolPoisoning) Hooks() []guardcore.Phase {
	return []guardcore.Phase{guardcore.PhaseToolsList, guardcore.PhaseResponse}
}

type poisonedTool struct {
	Tool     string   `json:"tool"`
	Field    string   `json:"field"`
	Patterns []string `json:"patterns"`
	Families []string `json:"attack_families"`
}

// Evaluate implements guardcore.Guard.
func (g *ToolPoisoning) Evaluate(_ context.Context, phase guardcore.Phase, payload guardcore.Payload, _ *guardcore.GuardContext) (guardcore.Decision, error) {
	tp, ok := payload.(guardcore.ToolsPayload)
	if !ok {
		return guardcore.Allow(), nil
	}
	if len(tp.Tools) == 0 {
		return guardcore.Allow(), nil
	}

	var poisoned []poisonedTool
	for _, tool := range tp.Tools {
		if p := g.scanTool(tool); p != nil {
			poisoned = append(poisoned, *p)
		}
	}
	if len(poisoned) == 0 {
		return guardcore.Allow(), nil
	}
	return guardcore.Deny("tool_poisoning", "one or more tools contain a prompt-injection pattern", poisoned), nil
}

// scanTool scans a single tool's selected fields and returns a *poisonedTool
// if the number of distinct patterns matched (across all scanned fields)
// meets the alert threshold. A pattern matching the same field or several
// fields repeatedly still counts once — alert_threshold gauges how many
// distinct injection patterns a tool trips, not how many times text matched.
func (g *ToolPoisoning) scanTool(tool guardcore.Tool) *poisonedTool {
	var hitFields []string
	patternSeen := map[string]bool{}
	familySeen := map[string]bool{}

	for _, field := range g.scanFields {
		text, ok := scannableText(tool, field)
		if !ok || text == "" {
			continue
		}
		hits := g.scan(text)
		if len(hits) == 0 {
			continue
		}
		hitFields = append(hitFields, string(field))
		for _, h := range hits {
			patternSeen[h.pattern] = true
			familySeen[h.family] = true
		}
	}

	if len(patternSeen) < g.alertThreshold {
		return nil
	}

	patterns := make([]string, 0, len(patternSeen))
	for p := range patternSeen {
		patterns = append(patterns, p)
	}
	families := make([]string, 0, len(familySeen))
	for f := range familySeen {
		families = append(families, f)
	}

	field := ""
	if len(hitFields) > 0 {
		field = hitFields[0]
	}
	return &poisonedTool{Tool: tool.Name, Field: field, Patterns: patterns, Families: families}
}

type scanHit struct {
	pattern string
	family  string
}

func (g *ToolPoisoning) scan(text string) []scanHit {
	var hits []scanHit
	if g.builtin != nil {
		for _, h := range g.builtin.Scan(text) {
			hits = append(hits, scanHit{pattern: h.Pattern, family: string(h.Family)})
		}
	}
	for _, re := range g.custom {
		for range re.FindAllString(text, -1) {
			hits = append(hits, scanHit{pattern: re.String(), family: "custom"})
		}
	}
	return hits
}

func scannableText(tool guardcore.Tool, field scanField) (string, bool) {
	switch field {
	case scanName:
		return tool.Name, true
	case scanDescription:
		return tool.Description, true
	case scanInputSchema:
		if tool.InputSchema == nil {
			return "", true
		}
		b, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return "", false
		}
		return string(b), true
	default:
		return "", false
	}
}
