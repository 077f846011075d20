// Package guardschema exposes a JSON-Schema description of every guard
// kind's configuration block, for the admin UI's dynamic form generation
// and for validating a GuardDescriptor.Config value before it is handed to
// guards.Registry.Build.
//
// Schemas are represented with github.com/google/jsonschema-go rather than
// a hand-rolled validator, mirroring internal/config.Registry's
// name-keyed registration pattern one layer up the stack (kind name to
// schema, not kind name to constructor).
package guardschema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/MrWong99/mcpguard/internal/guardcore"
)

// GuardMeta is the non-structural metadata the admin UI needs about a guard
// kind beyond its configuration shape: what it's called, how it's
// versioned, which category it groups under, which phases it naturally
// runs on, and which icon represents it. Carried as a sibling value rather
// than folded into the *jsonschema.Schema itself, since none of it
// describes the shape of a valid configuration document.
type GuardMeta struct {
	Type          string
	Title         string
	Description   string
	Version       string
	Category      string
	DefaultPhases []guardcore.Phase
	Icon          string
}

// UIHint carries presentation metadata for a single configuration field,
// read by the /schemas HTTP endpoint but never interpreted by Registry
// itself — it stays purely descriptive, the same way GuardDescriptor.Config
// stays opaque to the config package that merely decodes it.
type UIHint struct {
	Widget      string
	Label       string
	Order       int
	Group       string
	Placeholder string
	Advanced    bool
}

// ValidationError is one structural problem found in a guard configuration
// instance, translated from jsonschema's internal error tree into a flat,
// UI-renderable shape.
type ValidationError struct {
	Path    string
	Code    string
	Message string
}

// entry bundles everything Registry knows about one guard kind.
type entry struct {
	schema   *jsonschema.Schema
	meta     GuardMeta
	uiHints  map[string]UIHint
	resolved *jsonschema.Resolved
}

// Registry maps guard kind names to their configuration schema, metadata,
// and UI hints. Safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]*entry)}
}

// Register adds kind's schema, metadata, and UI hints to the registry,
// resolving the schema immediately so a later Validate call never pays
// resolution cost on the request path. A later call with the same kind
// overwrites the previous registration.
func (r *Registry) Register(kind string, schema *jsonschema.Schema, meta GuardMeta, uiHints map[string]UIHint) error {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("guardschema: resolve schema for kind %q: %w", kind, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[kind] = &entry{schema: schema, meta: meta, uiHints: uiHints, resolved: resolved}
	return nil
}

// List returns every registered kind's schema, keyed by kind name.
func (r *Registry) List() map[string]*jsonschema.Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*jsonschema.Schema, len(r.entries))
	for kind, e := range r.entries {
		out[kind] = e.schema
	}
	return out
}

// Get returns kind's schema, or (nil, false) if kind is not registered.
func (r *Registry) Get(kind string) (*jsonschema.Schema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[kind]
	if !ok {
		return nil, false
	}
	return e.schema, true
}

// Meta returns kind's GuardMeta, or (GuardMeta{}, false) if kind is not
// registered.
func (r *Registry) Meta(kind string) (GuardMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[kind]
	if !ok {
		return GuardMeta{}, false
	}
	return e.meta, true
}

// UIHints returns kind's field-keyed UI hints, or nil if kind is not
// registered or declares none.
func (r *Registry) UIHints(kind string) map[string]UIHint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[kind]
	if !ok {
		return nil
	}
	return e.uiHints
}

// Validate structurally validates instance against kind's schema,
// translating jsonschema's error tree into a flat slice of ValidationError.
// Returns a single ValidationError if kind itself is not registered.
func (r *Registry) Validate(kind string, instance json.RawMessage) []ValidationError {
	r.mu.RLock()
	e, ok := r.entries[kind]
	r.mu.RUnlock()
	if !ok {
		return []ValidationError{{Code: "unknown_kind", Message: fmt.Sprintf("guard kind %q is not registered", kind)}}
	}

	var v any
	if len(instance) == 0 {
		v = map[string]any{}
	} else if err := json.Unmarshal(instance, &v); err != nil {
		return []ValidationError{{Code: "invalid_json", Message: err.Error()}}
	}

	if err := e.resolved.Validate(v); err != nil {
		return translateValidationError(err)
	}
	return nil
}

// translateValidationError flattens jsonschema's validation error into the
// flat (path, code, message) shape the admin UI renders. jsonschema.Validate
// can return a joined error covering several independent failures (e.g. two
// required fields both missing); errors.Unwrap((interface{ Unwrap() []error
// }) handles that without the caller needing to know jsonschema's internal
// error tree shape.
func translateValidationError(err error) []ValidationError {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		var out []ValidationError
		for _, sub := range joined.Unwrap() {
			out = append(out, ValidationError{Code: "schema", Message: sub.Error()})
		}
		if len(out) > 0 {
			return out
		}
	}
	return []ValidationError{{Code: "schema", Message: err.Error()}}
}

// ResolveDefaults merges instance's fields over kind's schema-declared
// defaults using set-if-absent semantics: every default-bearing path in the
// schema that instance does not already set is filled in via
// tidwall/sjson, mirroring the same gjson/sjson pairing guardcore.Payload
// uses for PII redaction.
func (r *Registry) ResolveDefaults(kind string, instance json.RawMessage) (json.RawMessage, error) {
	r.mu.RLock()
	e, ok := r.entries[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("guardschema: kind %q is not registered", kind)
	}

	doc := string(instance)
	if len(instance) == 0 {
		doc = "{}"
	}

	for path, def := range defaultsOf(e.schema) {
		if gjson.Get(doc, path).Exists() {
			continue
		}
		var err error
		doc, err = sjson.Set(doc, path, def)
		if err != nil {
			return nil, fmt.Errorf("guardschema: set default %q for kind %q: %w", path, kind, err)
		}
	}

	return json.RawMessage(doc), nil
}

// defaultsOf walks schema.Properties one level deep, collecting each
// property's declared Default under its field name. Guard configuration
// schemas are flat key-value blocks (see schemas_builtin.go), so a
// single-level walk covers every built-in kind; nested defaults are simply
// not filled in, which is never a correctness problem since ResolveDefaults
// only ever adds keys the instance already omits.
func defaultsOf(schema *jsonschema.Schema) map[string]any {
	defaults := make(map[string]any)
	for name, prop := range schema.Properties {
		if prop.Default != nil {
			defaults[name] = prop.Default
		}
	}
	return defaults
}
