package wasmguard

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/mcpguard/internal/observe"
)

// defaultPoolSize is used when a Load call does not specify one.
const defaultPoolSize = 4

// modulePool owns one guest module's wazero.Runtime and holds a bounded set
// of pre-instantiated instances, grounded on the teacher's
// mcphost.Host.servers map of live serverConn connections — generalized
// from one connection per server name to a fixed-size pool of equivalent
// instances per module path, since a guest may be called concurrently by
// several in-flight Dispatch calls where a single MCP server session would
// have sufficed.
//
// The runtime (and therefore its memory-limit configuration) is scoped to
// this one module path, not shared globally, because wazero's memory cap is
// a Runtime-wide setting and different guest manifests may declare
// different max_memory ceilings.
type modulePool struct {
	modulePath string
	manifest   Manifest

	runtime  wazero.Runtime
	hostMod  api.Module
	compiled wazero.CompiledModule

	instances chan api.Module
}

// newModulePool compiles binary under a fresh, memory-capped runtime and
// pre-instantiates size guest instances.
func newModulePool(ctx context.Context, modulePath string, manifest Manifest, binary []byte, size int, metrics *observe.Metrics) (*modulePool, error) {
	if size <= 0 {
		size = defaultPoolSize
	}

	rConfig := wazero.NewRuntimeConfig().
		WithCloseOnContextDone(true).
		WithMemoryLimitPages(manifest.memoryPages())
	runtime := wazero.NewRuntimeWithConfig(ctx, rConfig)

	hostMod, err := buildHostModule(ctx, runtime, metrics)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("wasmguard: build host module for %q: %w", modulePath, err)
	}

	compiled, err := runtime.CompileModule(ctx, binary)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, fmt.Errorf("wasmguard: compile module %q: %w", modulePath, err)
	}

	p := &modulePool{
		modulePath: modulePath,
		manifest:   manifest,
		runtime:    runtime,
		hostMod:    hostMod,
		compiled:   compiled,
		instances:  make(chan api.Module, size),
	}

	// Pre-instantiating size guests is the dominant cost of a cold Load call
	// (each instantiation runs the guest's start functions against a fresh
	// linear memory); the instances are independent, so warming the pool
	// runs them concurrently instead of one at a time — the same
	// run-N-independent-calls-collect-first-error shape the teacher uses
	// errgroup for when fanning out to several NPC providers at once.
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < size; i++ {
		i := i
		g.Go(func() error {
			mod, err := p.instantiate(gctx, i)
			if err != nil {
				return err
			}
			p.instances <- mod
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		_ = p.close(ctx)
		return nil, err
	}

	return p, nil
}

func (p *modulePool) instantiate(ctx context.Context, index int) (api.Module, error) {
	cfg := wazero.NewModuleConfig().WithName(fmt.Sprintf("%s#%d", p.modulePath, index))
	if p.manifest.Entrypoint != "" {
		cfg = cfg.WithStartFunctions(p.manifest.Entrypoint)
	}
	mod, err := p.runtime.InstantiateModule(ctx, p.compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("wasmguard: instantiate guest %q: %w", p.modulePath, err)
	}
	return mod, nil
}

// acquire blocks until an instance is available or ctx is done.
func (p *modulePool) acquire(ctx context.Context) (api.Module, error) {
	select {
	case mod := <-p.instances:
		return mod, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release returns mod to the pool. When poisoned is true (the prior call
// trapped or timed out, leaving guest state unreliable — a timed-out wasm
// call cannot be trusted to have left linear memory in a sane state the way
// a cancelled Go call can) mod is discarded and a fresh instance takes its
// place. closeCtx is used for the close/replace calls rather than the
// (possibly already-expired) evaluation context.
func (p *modulePool) release(closeCtx context.Context, mod api.Module, poisoned bool) {
	if !poisoned {
		select {
		case p.instances <- mod:
		default:
			_ = mod.Close(closeCtx)
		}
		return
	}

	_ = mod.Close(closeCtx)
	replacement, err := p.instantiate(closeCtx, -1)
	if err != nil {
		observe.Logger(closeCtx).Warn("wasmguard: failed to replace poisoned guest instance; pool capacity reduced",
			"module_path", p.modulePath, "error", err)
		return
	}
	select {
	case p.instances <- replacement:
	default:
		_ = replacement.Close(closeCtx)
	}
}

// close releases every resource owned by the pool: all instantiated guest
// modules, the shared host module, and the pool's dedicated runtime.
func (p *modulePool) close(ctx context.Context) error {
	close(p.instances)
	var firstErr error
	for mod := range p.instances {
		if err := mod.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := p.hostMod.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.runtime.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
