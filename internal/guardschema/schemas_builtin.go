package guardschema

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/MrWong99/mcpguard/internal/guardcore"
)

// NewBuiltinRegistry returns a Registry with a schema, GuardMeta, and UI
// hints for every built-in guard kind (tool_poisoning, pii, rug_pull,
// tool_shadowing, server_whitelist, wasm): guards.NewDefaultRegistry's set
// of kinds plus the "wasm" kind that wasmguard.Register adds. The sandboxed
// "wasm" kind's
// GuardDescriptor.Config shape (module_path, pool_size, an optional config
// override — wasmguard.wasmConfig) is fixed at compile time just like any
// native kind; only what a loaded guest does with its resolved
// operational config (manifest.DefaultConfig merged under the operator's
// override, see wasmguard.Loader.Load) is deferred to the module itself,
// which this registry has no visibility into and isn't meant to.
func NewBuiltinRegistry() (*Registry, error) {
	r := NewRegistry()

	type registration struct {
		kind    string
		schema  *jsonschema.Schema
		meta    GuardMeta
		uiHints map[string]UIHint
	}

	regs := []registration{
		{
			kind:   "tool_poisoning",
			schema: toolPoisoningSchema(),
			meta: GuardMeta{
				Type: "tool_poisoning", Title: "Tool Poisoning",
				Description: "Scans tool names, descriptions, and schemas for prompt-injection patterns aimed at the calling model.",
				Version:     "1.0.0", Category: "prompt_injection",
				DefaultPhases: []guardcore.Phase{guardcore.PhaseToolsList, guardcore.PhaseResponse},
				Icon:          "shield-alert",
			},
			uiHints: map[string]UIHint{
				"strict_mode":     hint(WidgetToggle, "Strict mode", "detection", 1),
				"custom_patterns": hint(WidgetTagList, "Custom patterns", "detection", 2),
				"scan_fields":     hint(WidgetMultiSelect, "Fields to scan", "detection", 3),
				"alert_threshold": advanced(hint(WidgetNumber, "Alert threshold", "advanced", 4)),
			},
		},
		{
			kind:   "pii",
			schema: piiSchema(),
			meta: GuardMeta{
				Type: "pii", Title: "PII Redaction",
				Description: "Masks or rejects responses and tool results carrying detected personal data (email, phone, SSN, credit card).",
				Version:     "1.0.0", Category: "data_leakage",
				DefaultPhases: []guardcore.Phase{guardcore.PhaseResponse, guardcore.PhaseToolResult},
				Icon:          "eye-off",
			},
			uiHints: map[string]UIHint{
				"detect":            hint(WidgetMultiSelect, "Entity types", "detection", 1),
				"action":            hint(WidgetSelect, "Action", "detection", 2),
				"min_score":         advanced(hint(WidgetNumber, "Minimum confidence", "advanced", 3)),
				"rejection_message": hint(WidgetTextarea, "Rejection message", "messages", 4),
			},
		},
		{
			kind:   "rug_pull",
			schema: rugPullSchema(),
			meta: GuardMeta{
				Type: "rug_pull", Title: "Rug Pull Detection",
				Description: "Flags a server silently changing a previously-seen tool's description or schema after a baseline was recorded.",
				Version:     "1.0.0", Category: "supply_chain",
				DefaultPhases: []guardcore.Phase{guardcore.PhaseToolsList},
				Icon:          "refresh-cw-off",
			},
			uiHints: map[string]UIHint{
				"scope":                  hint(WidgetSelect, "Baseline scope", "detection", 1),
				"risk_threshold":         hint(WidgetNumber, "Risk threshold", "detection", 2),
				"w_desc":                 advanced(hint(WidgetNumber, "Description change weight", "weights", 3)),
				"w_schema":               advanced(hint(WidgetNumber, "Schema change weight", "weights", 4)),
				"w_add":                  advanced(hint(WidgetNumber, "Tool added weight", "weights", 5)),
				"w_remove":               advanced(hint(WidgetNumber, "Tool removed weight", "weights", 6)),
				"monitored_change_types": hint(WidgetMultiSelect, "Monitored change types", "detection", 7),
				"update_baseline":        advanced(hint(WidgetToggle, "Update baseline on allow", "advanced", 8)),
			},
		},
		{
			kind:   "tool_shadowing",
			schema: toolShadowingSchema(),
			meta: GuardMeta{
				Type: "tool_shadowing", Title: "Tool Shadowing",
				Description: "Blocks tool listings that duplicate or collide with a protected tool name across servers.",
				Version:     "1.0.0", Category: "name_collision",
				DefaultPhases: []guardcore.Phase{guardcore.PhaseToolsList},
				Icon:          "copy-x",
			},
			uiHints: map[string]UIHint{
				"block_duplicates": hint(WidgetToggle, "Block duplicate names", "detection", 1),
				"protected_names":  hint(WidgetTagList, "Protected tool names", "detection", 2),
			},
		},
		{
			kind:   "server_whitelist",
			schema: serverWhitelistSchema(),
			meta: GuardMeta{
				Type: "server_whitelist", Title: "Server Whitelist",
				Description: "Rejects requests to servers outside an allow-list, including near-miss typosquats of an allowed name.",
				Version:     "1.0.0", Category: "access_control",
				DefaultPhases: []guardcore.Phase{guardcore.PhaseRequest},
				Icon:          "list-checks",
			},
			uiHints: map[string]UIHint{
				"allowed_servers":      hint(WidgetTagList, "Allowed servers", "access", 1),
				"detect_typosquats":    hint(WidgetToggle, "Detect typosquats", "access", 2),
				"similarity_threshold": advanced(hint(WidgetNumber, "Similarity threshold", "advanced", 3)),
			},
		},
		{
			kind:   "wasm",
			schema: wasmSchema(),
			meta: GuardMeta{
				Type: "wasm", Title: "Sandboxed Guard (WASM)",
				Description: "Runs a custom, signed WebAssembly module as a guard, for checks this gateway doesn't ship natively.",
				Version:     "1.0.0", Category: "sandboxed",
				Icon: "box",
			},
			uiHints: map[string]UIHint{
				"module_path": hint(WidgetText, "Module path", "module", 1),
				"pool_size":   advanced(hint(WidgetNumber, "Pool size", "advanced", 2)),
				"config":      advanced(hint(WidgetTextarea, "Guest config overrides (JSON)", "advanced", 3)),
			},
		},
	}

	for _, reg := range regs {
		if err := r.Register(reg.kind, reg.schema, reg.meta, reg.uiHints); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func toolPoisoningSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"strict_mode":     {Type: "boolean", Default: true, Description: "Scan with the built-in injection pattern set; when false, only custom_patterns are scanned."},
			"custom_patterns": {Type: "array", Items: &jsonschema.Schema{Type: "string"}, Description: "Additional regular expressions to scan for."},
			"scan_fields":     {Type: "array", Items: &jsonschema.Schema{Type: "string", Enum: []any{"name", "description", "input_schema"}}},
			"alert_threshold": {Type: "integer", Minimum: numPtr(1.0), Default: 1},
		},
	}
}

func piiSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"detect": {
				Type:  "array",
				Items: &jsonschema.Schema{Type: "string", Enum: []any{"email", "phone_number", "ssn", "credit_card"}},
				Default: []any{"email", "phone_number", "ssn", "credit_card"},
			},
			"action":            {Type: "string", Enum: []any{"mask", "reject"}, Default: "mask"},
			"min_score":         {Type: "number", Minimum: numPtr(0.0), Maximum: numPtr(1.0), Default: 0.8},
			"rejection_message": {Type: "string"},
		},
	}
}

func rugPullSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"scope":          {Type: "string", Enum: []any{"global", "session"}, Default: "global"},
			"risk_threshold": {Type: "integer", Minimum: numPtr(1.0), Default: 5},
			"w_desc":         {Type: "integer", Default: 2},
			"w_schema":       {Type: "integer", Default: 3},
			"w_add":          {Type: "integer", Default: 1},
			"w_remove":       {Type: "integer", Default: 3},
			"monitored_change_types": {
				Type:  "array",
				Items: &jsonschema.Schema{Type: "string", Enum: []any{"all", "description", "schema", "add", "remove"}},
			},
			"update_baseline": {Type: "boolean", Default: false},
		},
	}
}

func toolShadowingSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"block_duplicates": {Type: "boolean", Default: true},
			"protected_names":  {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
		},
	}
}

func wasmSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"module_path"},
		Properties: map[string]*jsonschema.Schema{
			"module_path": {Type: "string", Description: "Path to the compiled guest .wasm binary; its manifest is expected at module_path + \".json\"."},
			"pool_size":   {Type: "integer", Minimum: numPtr(1.0), Description: "Number of pre-instantiated guest instances. Defaults to 4 if unset."},
			"config":      {Type: "object", Description: "Overrides the guest manifest's default_config; merged field-by-field, this side wins on collision."},
		},
	}
}

func serverWhitelistSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type:     "object",
		Required: []string{"allowed_servers"},
		Properties: map[string]*jsonschema.Schema{
			"allowed_servers":      {Type: "array", Items: &jsonschema.Schema{Type: "string"}},
			"detect_typosquats":    {Type: "boolean", Default: true},
			"similarity_threshold": {Type: "number", Minimum: numPtr(0.0), Maximum: numPtr(1.0), Default: 0.85},
		},
	}
}
