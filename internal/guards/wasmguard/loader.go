// Package wasmguard adapts sandboxed WASM modules to the guardcore.Guard
// ABI, so a security check can be deployed as a signed, language-agnostic
// binary instead of a compiled-in Go type (package guards). It is grounded
// on the teacher's internal/mcp/mcphost.Host lifecycle — lazy connect,
// pooled sessions, a Close that releases every resource — but retargets
// that lifecycle from MCP server subprocesses to wazero-hosted WASM
// component instances, and on internal/mcp/bridge.go's WithToolTimeout
// pattern for the per-call wall-clock deadline.
//
// A guest module is a plain WASI-less wasm binary exporting three
// functions: allocate(size uint32) uint32, deallocate(ptr, size uint32),
// and evaluate(reqPtr, reqLen uint32) uint64 (a packed respPtr<<32|respLen).
// It reads a JSON guestRequest from the pointer it's given and writes a
// JSON guestResponse to the pointer it returns — the standard
// allocate/evaluate/deallocate shape used throughout wazero's own guest
// examples for passing byte buffers across the host/guest boundary.
package wasmguard

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/MrWong99/mcpguard/internal/guardcore"
	"github.com/MrWong99/mcpguard/internal/observe"
	"github.com/MrWong99/mcpguard/internal/resilience"
)

// Loader maintains one modulePool per distinct module path, lazily
// compiling and instantiating a module the first time it is requested and
// reusing the pool for every subsequent Guard built from the same path —
// grounded on mcphost.Host's map of serverConn connections keyed by server
// name, generalized to a map of module pools keyed by module path.
type Loader struct {
	mu      sync.Mutex
	pools   map[string]*modulePool
	metrics *observe.Metrics
}

// NewLoader returns a ready-to-use Loader. metrics may be nil, in which
// case observe.DefaultMetrics() is used.
func NewLoader(metrics *observe.Metrics) *Loader {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Loader{pools: make(map[string]*modulePool), metrics: metrics}
}

// Load returns a Guard named id backed by the guest module at modulePath,
// connecting a fresh pool of poolSize instances the first time modulePath
// is requested (poolSize <= 0 uses defaultPoolSize). Later calls for the
// same modulePath reuse the existing pool, so two GuardDescriptors pointing
// at the same binary never pay instantiation cost twice.
//
// override is merged over the manifest's DefaultConfig (override wins on a
// key collision, the same set-if-absent idiom guardschema.ResolveDefaults
// uses for native guard kinds) and sent to the guest on every Evaluate call
// as guestRequest.Config, giving operators a way to tune a guest's behavior
// per route without recompiling it.
//
// Returns a guardcore.GuardError with Kind ErrConfig if the manifest is
// missing or invalid, the module fails to compile, or any instance fails to
// instantiate — these are all configuration problems the operator can fix
// by correcting the route config, not transient failures.
func (l *Loader) Load(ctx context.Context, id, modulePath string, poolSize int, override map[string]any) (*Guard, error) {
	manifest, err := loadManifest(modulePath)
	if err != nil {
		return nil, guardcore.NewGuardError(id, guardcore.ErrConfig, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pool, ok := l.pools[modulePath]
	if !ok {
		binary, err := os.ReadFile(modulePath)
		if err != nil {
			return nil, guardcore.NewGuardError(id, guardcore.ErrConfig,
				fmt.Errorf("wasmguard: read module %q: %w", modulePath, err))
		}

		pool, err = newModulePool(ctx, modulePath, manifest, binary, poolSize, l.metrics)
		if err != nil {
			return nil, guardcore.NewGuardError(id, guardcore.ErrConfig, err)
		}
		l.pools[modulePath] = pool
	}

	mergedConfig, err := mergeGuestConfig(manifest.DefaultConfig, override)
	if err != nil {
		return nil, guardcore.NewGuardError(id, guardcore.ErrConfig, err)
	}

	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:        "wasmguard:" + id,
		MaxFailures: 5,
	})

	return &Guard{
		id:       id,
		pool:     pool,
		manifest: manifest,
		breaker:  breaker,
		config:   mergedConfig,
	}, nil
}

// mergeGuestConfig layers override over defaults (override wins on a key
// collision) and marshals the result, returning nil if both are empty —
// Guard.Evaluate then omits guestRequest.Config entirely rather than
// sending an empty "{}" on every call.
func mergeGuestConfig(defaults, override map[string]any) (json.RawMessage, error) {
	if len(defaults) == 0 && len(override) == 0 {
		return nil, nil
	}
	merged := make(map[string]any, len(defaults)+len(override))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range override {
		merged[k] = v
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("wasmguard: marshal guest config: %w", err)
	}
	return raw, nil
}

// Close releases every pool this Loader has created: all instantiated
// guest modules, each pool's host module, and each pool's runtime. After
// Close returns, Guards built from this Loader must not be evaluated again.
func (l *Loader) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for path, pool := range l.pools {
		if err := pool.close(ctx); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("wasmguard: close pool %q: %w", path, err)
		}
	}
	l.pools = make(map[string]*modulePool)
	return firstErr
}
