// Package engine dispatches an in-flight MCP payload through a route's guard
// chain: one ordered, phase-filtered list of bound guards per route, run
// sequentially with per-guard timeout enforcement and failure_mode handling.
//
// The dispatch loop is grounded on the teacher corpus's two closest
// analogues — lookatitude/beluga-ai's guard.Pipeline.runGuards (sequential
// guards, first-blocking-result short-circuit, modified content threaded
// into subsequent guards) and mcpany-core's middleware.Registry
// (priority-sorted, enabled-filtered instance construction) — generalized
// from a fixed three-stage pipeline to an arbitrary per-route, per-phase
// chain built from guardcore.GuardDescriptor.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/MrWong99/mcpguard/internal/guardcore"
	"github.com/MrWong99/mcpguard/internal/guards"
	"github.com/MrWong99/mcpguard/internal/observe"
)

// DefaultGuardTimeout is used for any guard whose descriptor leaves
// TimeoutMS at zero.
const DefaultGuardTimeout = 200 * time.Millisecond

// Warning is an advisory message produced by a Modify decision's AddWarning
// action. Warnings never block a chain; they are surfaced alongside the
// final payload for the caller to log or relay.
type Warning struct {
	GuardID string
	Message string
}

// boundGuard pairs a constructed Guard with the descriptor it was built
// from, so the dispatch loop has the timeout, failure mode, and priority
// without re-deriving them on every call.
type boundGuard struct {
	guard guardcore.Guard
	desc  guardcore.GuardDescriptor
}

// Chain is one route's guard list, pre-sorted and pre-filtered by phase.
// Built once by Build (or Engine.Reload) and never mutated afterwards —
// reloads replace the pointer, they never edit byPhase in place.
type Chain struct {
	route   string
	byPhase map[guardcore.Phase][]boundGuard
}

// Build constructs a Chain for route from descriptors, using registry to
// instantiate each enabled guard. Descriptors are sorted by Priority
// (ascending, ties broken by ID) within each phase the guard is hooked to,
// mirroring mcpany-core's middleware.Registry priority sort generalized from
// a single ordered list to one ordered list per phase.
func Build(route string, descriptors []guardcore.GuardDescriptor, registry *guards.Registry) (*Chain, error) {
	c := &Chain{route: route, byPhase: make(map[guardcore.Phase][]boundGuard)}

	for _, desc := range descriptors {
		if !desc.Enabled {
			continue
		}
		raw, err := marshalConfig(desc.Config)
		if err != nil {
			return nil, fmt.Errorf("engine: route %q guard %q: marshal config: %w", route, desc.ID, err)
		}
		g, err := registry.Build(desc.Kind, desc.ID, raw)
		if err != nil {
			return nil, fmt.Errorf("engine: route %q guard %q: %w", route, desc.ID, err)
		}

		phases := desc.RunsOn
		if len(phases) == 0 {
			phases = g.Hooks()
		}
		for _, p := range phases {
			if !p.IsValid() {
				return nil, fmt.Errorf("engine: route %q guard %q: phase %q is not recognised", route, desc.ID, p)
			}
			if !hooksContain(g.Hooks(), p) {
				continue
			}
			c.byPhase[p] = append(c.byPhase[p], boundGuard{guard: g, desc: desc})
		}
	}

	for _, bound := range c.byPhase {
		sort.SliceStable(bound, func(i, j int) bool {
			if bound[i].desc.Priority != bound[j].desc.Priority {
				return bound[i].desc.Priority < bound[j].desc.Priority
			}
			return bound[i].desc.ID < bound[j].desc.ID
		})
	}

	return c, nil
}

func hooksContain(hooks []guardcore.Phase, p guardcore.Phase) bool {
	for _, h := range hooks {
		if h == p {
			return true
		}
	}
	return false
}

// Engine owns one Chain per route and dispatches payloads through them.
// Safe for concurrent use: Dispatch takes a read lock over the chains map,
// Reload takes a write lock only for the pointer swap.
type Engine struct {
	mu       sync.RWMutex
	chains   map[string]*Chain
	registry *guards.Registry
	metrics  *observe.Metrics
}

// New returns an Engine with no routes configured. Routes are added via
// Reload.
func New(registry *guards.Registry, metrics *observe.Metrics) *Engine {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Engine{
		chains:   make(map[string]*Chain),
		registry: registry,
		metrics:  metrics,
	}
}

// memoryBudgeted is implemented by guard kinds whose resource footprint is
// known up front, e.g. wasmguard.Guard (its manifest's max_memory). Declared
// locally via duck typing rather than added to guardcore.Guard itself,
// since most guard kinds (the native ones) have no meaningful notion of a
// memory budget at all.
type memoryBudgeted interface {
	MemoryBudget() int64
}

// memoryBudget sums the memory budget of every distinct guard (deduplicated
// by ID, since a guard hooked into several phases must not be counted more
// than once) bound anywhere in the chain.
func (c *Chain) memoryBudget() int64 {
	seen := make(map[string]bool)
	var total int64
	for _, bound := range c.byPhase {
		for _, bg := range bound {
			if seen[bg.desc.ID] {
				continue
			}
			seen[bg.desc.ID] = true
			if mb, ok := bg.guard.(memoryBudgeted); ok {
				total += mb.MemoryBudget()
			}
		}
	}
	return total
}

// Reload rebuilds route's Chain from descriptors and swaps it in atomically.
// Never mutates a Chain already in flight — a Dispatch call that started
// before a Reload completes runs to completion against the old Chain.
//
// maxMemoryBytes is an optional trailing ceiling (pass none, or zero, for
// "unlimited") on the chain's summed sandboxed-guard memory budget; a
// reload whose descriptors would exceed it is rejected before the new
// chain replaces the old one, per spec.md §5's per-route resource model.
func (e *Engine) Reload(route string, descriptors []guardcore.GuardDescriptor, maxMemoryBytes ...int64) error {
	chain, err := Build(route, descriptors, e.registry)
	if err != nil {
		return err
	}

	var ceiling int64
	if len(maxMemoryBytes) > 0 {
		ceiling = maxMemoryBytes[0]
	}
	if ceiling > 0 {
		if used := chain.memoryBudget(); used > ceiling {
			return fmt.Errorf("engine: route %q: guard memory budget %d bytes exceeds configured ceiling %d bytes", route, used, ceiling)
		}
	}

	e.mu.Lock()
	e.chains[route] = chain
	e.mu.Unlock()
	return nil
}

// RemoveRoute drops route's chain entirely, e.g. when it is deleted from
// configuration.
func (e *Engine) RemoveRoute(route string) {
	e.mu.Lock()
	delete(e.chains, route)
	e.mu.Unlock()
}

// Guards returns the distinct guard instances bound to route, in no
// particular order, keyed internally by ID to collapse a guard hooked into
// several phases into a single entry. It exists for admin-surface
// introspection — e.g. httpapi's reset endpoint needs to reach a live guard
// instance by ID without the dispatch path exposing Chain's otherwise
// unexported internals.
func (e *Engine) Guards(route string) []guardcore.Guard {
	e.mu.RLock()
	chain, ok := e.chains[route]
	e.mu.RUnlock()
	if !ok {
		return nil
	}

	seen := make(map[string]guardcore.Guard)
	for _, bound := range chain.byPhase {
		for _, bg := range bound {
			seen[bg.desc.ID] = bg.guard
		}
	}
	out := make([]guardcore.Guard, 0, len(seen))
	for _, g := range seen {
		out = append(out, g)
	}
	return out
}

// Routes returns the names of every route currently configured.
func (e *Engine) Routes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.chains))
	for route := range e.chains {
		out = append(out, route)
	}
	return out
}

// Dispatch runs payload through route's chain for phase, in priority order.
// The first Deny short-circuits the chain and is returned immediately. A
// Modify decision is folded into the in-flight payload via Payload.Apply
// before the next guard runs; an AddWarning is collected and returned
// alongside the final decision rather than altering control flow. If every
// guard allows (or the route has no chain for this phase), Dispatch returns
// guardcore.Allow().
//
// Dispatch returns the cumulative payload alongside the Decision and
// warnings, rather than only the last guard's ModifyAction: a chain can fold
// several Modify decisions of different concrete action types (e.g. a
// redact followed by a tool-list replacement), and only the fully-applied
// Payload lets the caller move on without re-deriving history from a chain
// of heterogeneous actions.
func (e *Engine) Dispatch(ctx context.Context, route string, phase guardcore.Phase, payload guardcore.Payload, gctx *guardcore.GuardContext) (guardcore.Decision, guardcore.Payload, []Warning, error) {
	start := time.Now()
	defer func() {
		e.metrics.ChainDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(observe.Attr("route", route), observe.Attr("phase", string(phase))))
	}()

	e.mu.RLock()
	chain, ok := e.chains[route]
	e.mu.RUnlock()
	if !ok {
		return guardcore.Allow(), payload, nil, nil
	}

	bound := chain.byPhase[phase]
	var warnings []Warning
	current := payload

	for _, bg := range bound {
		decision, err := e.evaluateOne(ctx, bg, phase, current, gctx)
		if err != nil {
			return guardcore.Decision{}, current, warnings, err
		}

		switch decision.Kind() {
		case guardcore.KindDeny:
			details := decision.DenyDetails()
			details.GuardID = bg.desc.ID
			return guardcore.DenyDecision(details), current, warnings, nil

		case guardcore.KindModify:
			action := decision.ModifyAction()
			if w, ok := action.(guardcore.AddWarning); ok {
				warnings = append(warnings, Warning{GuardID: bg.desc.ID, Message: w.Message})
			}
			next, err := current.Apply(action)
			if err != nil {
				applyErr := guardcore.NewGuardError(bg.desc.ID, guardcore.ErrInternal, fmt.Errorf("route %q: apply modify: %w", route, err))
				fallback, _ := e.handleGuardError(ctx, bg, phase, applyErr, 0)
				if fallback.IsDeny() {
					details := fallback.DenyDetails()
					details.GuardID = bg.desc.ID
					return guardcore.DenyDecision(details), current, warnings, nil
				}
				continue
			}
			current = next

		case guardcore.KindAllow:
			// continue to the next guard
		}
	}

	return guardcore.Allow(), current, warnings, nil
}

// evaluateOne runs a single bound guard with its configured timeout,
// recording latency and mapping any returned error through failure_mode.
func (e *Engine) evaluateOne(ctx context.Context, bg boundGuard, phase guardcore.Phase, payload guardcore.Payload, gctx *guardcore.GuardContext) (guardcore.Decision, error) {
	timeout := bg.desc.Timeout(DefaultGuardTimeout)
	evalCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	decision, err := func() (d guardcore.Decision, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = guardcore.NewGuardError(bg.desc.ID, guardcore.ErrInternal, fmt.Errorf("guard panicked: %v", r))
			}
		}()
		return bg.guard.Evaluate(evalCtx, phase, payload, gctx)
	}()
	elapsed := time.Since(start).Seconds()

	// Check the deadline before the guard's own error: a guard that honors
	// ctx cancellation returns ctx.Err() itself, while one that ignores ctx
	// simply returns late — either way evalCtx.Err() is the authoritative
	// signal that this was a timeout, not some other guard failure.
	if evalCtx.Err() != nil {
		return e.handleTimeout(ctx, bg, phase, elapsed)
	}
	if err != nil {
		return e.handleGuardError(ctx, bg, phase, err, elapsed)
	}
	if details := decision.DenyDetails(); decision.IsDeny() && (details.Code == "" || details.Message == "") {
		invalid := guardcore.NewGuardError(bg.desc.ID, guardcore.ErrInternal, fmt.Errorf("deny decision without code or message"))
		return e.handleGuardError(ctx, bg, phase, invalid, elapsed)
	}

	e.metrics.RecordGuardEval(ctx, bg.desc.ID, string(phase), decision.Kind().String(), elapsed)
	observe.Logger(ctx).Debug("guard evaluated",
		"guard_id", bg.desc.ID, "phase", string(phase), "decision", decision.Kind().String())

	return decision, nil
}

// marshalConfig re-encodes a generic config map into json.RawMessage for
// Registry.Build, which expects kind-specific factories to decode their own
// shape from raw bytes.
func marshalConfig(cfg map[string]any) ([]byte, error) {
	if cfg == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(cfg)
}
