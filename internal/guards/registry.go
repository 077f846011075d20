// Package guards implements the built-in detection guards — ToolPoisoning,
// PII, RugPull, ToolShadowing, ServerWhitelist — each conforming to the
// guardcore.Guard ABI, plus the kind-keyed Registry used to construct them
// from a guardcore.GuardDescriptor at route configuration load.
package guards

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/mcpguard/internal/guardcore"
)

// ErrGuardKindNotRegistered is returned by Build when no factory has been
// registered under the requested kind — the same wrapped-sentinel shape as
// the teacher's config.ErrProviderNotRegistered, so callers can
// errors.Is-match it regardless of which kind was missing.
var ErrGuardKindNotRegistered = errors.New("guards: kind not registered")

// Factory constructs a Guard from its instance id and kind-specific
// configuration block, the latter already re-marshaled to json.RawMessage
// from a GuardDescriptor.Config map.
type Factory func(id string, raw json.RawMessage) (guardcore.Guard, error)

// Registry maps guard kind names to their constructor functions. It is safe
// for concurrent use, mirroring config.Registry's RWMutex-guarded
// name-to-factory map pattern generalized from one factory map per provider
// type down to a single map, since every built-in guard kind constructs the
// same guardcore.Guard interface.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty, ready-to-use Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register registers factory under kind. A later call with the same kind
// overwrites the previous registration.
func (r *Registry) Register(kind string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[kind] = factory
}

// Build constructs a Guard of the given kind from raw configuration.
// Returns ErrGuardKindNotRegistered (wrapped with the offending kind) if no
// factory is registered.
func (r *Registry) Build(kind, id string, raw json.RawMessage) (guardcore.Guard, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrGuardKindNotRegistered, kind)
	}
	return factory(id, raw)
}

// Kinds returns every registered kind name, in no particular order.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	return kinds
}

// NewDefaultRegistry returns a Registry with every built-in guard kind
// registered: tool_poisoning, pii, rug_pull, tool_shadowing,
// server_whitelist. The sandboxed "wasm" kind is registered separately by
// package wasmguard, which depends on this package rather than the other
// way around.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("tool_poisoning", func(id string, raw json.RawMessage) (guardcore.Guard, error) {
		return NewToolPoisoning(id, raw)
	})
	r.Register("pii", func(id string, raw json.RawMessage) (guardcore.Guard, error) {
		return NewPII(id, raw)
	})
	r.Register("rug_pull", func(id string, raw json.RawMessage) (guardcore.Guard, error) {
		return NewRugPull(id, raw)
	})
	r.Register("tool_shadowing", func(id string, raw json.RawMessage) (guardcore.Guard, error) {
		return NewToolShadowing(id, raw)
	})
	r.Register("server_whitelist", func(id string, raw json.RawMessage) (guardcore.Guard, error) {
		return NewServerWhitelist(id, raw)
	})
	return r
}
