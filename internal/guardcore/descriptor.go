package guardcore

import "time"

// FailureMode controls how the engine treats a guard that returns a
// GuardError (as opposed to a Deny decision).
type FailureMode string

const (
	// FailClosed treats a guard failure as a Deny — the safer default for
	// security-relevant guards whose silent absence would be worse than a
	// rejected request.
	FailClosed FailureMode = "fail_closed"

	// FailOpen treats a guard failure as an Allow for that guard only; the
	// rest of the chain still runs. Intended for advisory or best-effort
	// guards (e.g. a typosquat check) where availability matters more than
	// strict enforcement.
	FailOpen FailureMode = "fail_open"
)

// GuardDescriptor is the configuration record that binds a guard kind to a
// runnable instance within a route's chain. It is the unit the YAML config
// layer (package config) decodes into and the unit package guards' Registry
// constructs a Guard from.
type GuardDescriptor struct {
	// ID is this guard instance's stable identifier within its route. Two
	// descriptors in the same chain must not share an ID.
	ID string `yaml:"id" json:"id"`

	// Kind names the guard implementation to construct (e.g.
	// "tool_poisoning", "pii", "rug_pull", "tool_shadowing",
	// "server_whitelist", or "wasm" for a sandboxed module).
	Kind string `yaml:"kind" json:"kind"`

	// Enabled toggles the guard without removing its configuration. Disabled
	// guards are not constructed and never appear in a chain.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Priority orders guards within a phase; lower values run first. Ties
	// are broken by ID for determinism.
	Priority int `yaml:"priority" json:"priority"`

	// TimeoutMS bounds a single Evaluate call. Zero means the engine's
	// default (see package engine).
	TimeoutMS int `yaml:"timeout_ms" json:"timeout_ms"`

	// FailureMode selects fail_closed or fail_open on guard error. Empty
	// means FailClosed.
	FailureMode FailureMode `yaml:"failure_mode" json:"failure_mode"`

	// RunsOn restricts which phases this instance is wired into, as a
	// subset of the kind's natural Hooks(). Empty means "every phase the
	// kind supports".
	RunsOn []Phase `yaml:"runs_on" json:"runs_on"`

	// Config is the kind-specific configuration block, decoded generically
	// here and re-decoded into a concrete struct by the kind's constructor.
	Config map[string]any `yaml:"config" json:"config"`
}

// Timeout returns the configured timeout, or def if TimeoutMS is zero.
func (d GuardDescriptor) Timeout(def time.Duration) time.Duration {
	if d.TimeoutMS <= 0 {
		return def
	}
	return time.Duration(d.TimeoutMS) * time.Millisecond
}

// EffectiveFailureMode returns d.FailureMode, defaulting to FailClosed.
func (d GuardDescriptor) EffectiveFailureMode() FailureMode {
	if d.FailureMode == "" {
		return FailClosed
	}
	return d.FailureMode
}
