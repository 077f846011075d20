package wasmguard

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/MrWong99/mcpguard/internal/guardcore"
	"github.com/MrWong99/mcpguard/internal/resilience"
)

// Guard adapts one guest module instance pool to the guardcore.Guard ABI.
// Built exclusively by Loader.Load — the zero value is not usable.
type Guard struct {
	id       string
	pool     *modulePool
	manifest Manifest
	breaker  *resilience.CircuitBreaker
	config   json.RawMessage
}

var _ guardcore.Guard = (*Guard)(nil)

// ID implements guardcore.Guard.
func (g *Guard) ID() string { return g.id }

// Hooks implements guardcore.Guard, reporting the phases declared in the
// guest's manifest.
func (g *Guard) Hooks() []guardcore.Phase { return g.manifest.Hooks }

// MemoryBudget reports the guest's declared linear-memory ceiling in bytes,
// satisfying engine's memoryBudgeted duck-typed interface so Engine.Reload
// can enforce a per-route sandboxed-memory ceiling across every wasm guard
// bound to that route.
func (g *Guard) MemoryBudget() int64 { return g.manifest.MaxMemory }

// Evaluate marshals payload into the guest wire format, calls the guest's
// exported evaluate function on a pooled instance, and translates its
// response back into a guardcore.Decision.
//
// ctx's deadline races the guest call the same way bridge.go's
// WithToolTimeout races a tool execution against its caller's context — a
// guest that ignores the deadline is simply cut off by
// wazero.RuntimeConfig.WithCloseOnContextDone when ctx expires. A call that
// traps, times out, or breaks the allocate/evaluate/deallocate contract
// poisons the instance it ran on rather than returning it to the pool, since
// a wasm module's internal state after an abnormal exit cannot be trusted to
// be sane for the next caller. A response that is read back intact but does
// not decode into a valid decision is reported as an ErrInternal guard error
// and does not poison the instance.
func (g *Guard) Evaluate(ctx context.Context, phase guardcore.Phase, payload guardcore.Payload, gctx *guardcore.GuardContext) (guardcore.Decision, error) {
	raw, err := marshalPayload(payload)
	if err != nil {
		return guardcore.Decision{}, guardcore.NewGuardError(g.id, guardcore.ErrInternal, err)
	}

	req := guestRequest{
		Phase:      string(phase),
		ServerName: gctx.ServerName,
		SessionID:  gctx.SessionID(),
		Payload:    raw,
		Config:     g.config,
	}
	reqBytes, err := json.Marshal(req)
	if err != nil {
		return guardcore.Decision{}, guardcore.NewGuardError(g.id, guardcore.ErrInternal,
			fmt.Errorf("wasmguard: encode guest request: %w", err))
	}

	var respBytes []byte
	var poisoned bool
	var mod api.Module

	err = g.breaker.Execute(func() error {
		var acquireErr error
		mod, acquireErr = g.pool.acquire(ctx)
		if acquireErr != nil {
			return acquireErr
		}

		var callErr error
		respBytes, callErr = callGuestEvaluate(ctx, mod, reqBytes)
		poisoned = callErr != nil
		return callErr
	})

	if mod != nil {
		// Release under a detached context: the evaluation deadline may
		// already be expired, but closing/replacing a poisoned instance
		// must still happen.
		g.pool.release(context.WithoutCancel(ctx), mod, poisoned)
	}

	if err != nil {
		// A guest that honors ctx cancellation returns ctx.Err() itself,
		// while one that doesn't is simply cut off by
		// WithCloseOnContextDone — either way ctx.Err() is the authoritative
		// signal that this was a timeout rather than some other failure
		// (including resilience.ErrCircuitOpen, covered by the fallthrough).
		if ctx.Err() != nil {
			return guardcore.Decision{}, guardcore.NewGuardError(g.id, guardcore.ErrTimeout, ctx.Err())
		}
		return guardcore.Decision{}, guardcore.NewGuardError(g.id, guardcore.ErrInternal, err)
	}

	var resp guestResponse
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return guardcore.Decision{}, guardcore.NewGuardError(g.id, guardcore.ErrInternal,
			fmt.Errorf("wasmguard: decode guest response: %w", err))
	}

	decision, err := resp.toDecision()
	if err != nil {
		return guardcore.Decision{}, guardcore.NewGuardError(g.id, guardcore.ErrInternal, err)
	}
	return decision, nil
}

// marshalPayload extracts the JSON body a guest should see from whichever
// concrete guardcore.Payload the engine is carrying.
func marshalPayload(payload guardcore.Payload) (json.RawMessage, error) {
	switch p := payload.(type) {
	case guardcore.JSONPayload:
		return p.Raw(), nil
	case guardcore.ToolsPayload:
		raw, err := json.Marshal(p.Tools)
		if err != nil {
			return nil, fmt.Errorf("wasmguard: encode tools payload: %w", err)
		}
		return raw, nil
	default:
		return nil, fmt.Errorf("wasmguard: unsupported payload type %T", payload)
	}
}

// callGuestEvaluate writes reqBytes into the guest's linear memory via its
// exported allocate function, calls evaluate, reads the response it points
// to, and frees both buffers via deallocate. A non-nil error means the
// guest trapped or violated the allocate/evaluate/deallocate contract.
func callGuestEvaluate(ctx context.Context, mod api.Module, reqBytes []byte) ([]byte, error) {
	allocate := mod.ExportedFunction("allocate")
	deallocate := mod.ExportedFunction("deallocate")
	evaluate := mod.ExportedFunction("evaluate")
	if allocate == nil || deallocate == nil || evaluate == nil {
		return nil, fmt.Errorf("wasmguard: guest module does not export allocate/deallocate/evaluate")
	}

	reqLen := uint64(len(reqBytes))
	allocResults, err := allocate.Call(ctx, reqLen)
	if err != nil {
		return nil, fmt.Errorf("wasmguard: guest allocate trapped: %w", err)
	}
	reqPtr := uint32(allocResults[0])
	defer func() { _, _ = deallocate.Call(ctx, uint64(reqPtr), reqLen) }()

	if !mod.Memory().Write(reqPtr, reqBytes) {
		return nil, fmt.Errorf("wasmguard: failed to write request into guest memory")
	}

	packed, err := evaluate.Call(ctx, uint64(reqPtr), reqLen)
	if err != nil {
		return nil, fmt.Errorf("wasmguard: guest evaluate trapped: %w", err)
	}
	if len(packed) != 1 {
		return nil, fmt.Errorf("wasmguard: guest evaluate returned %d results, want 1", len(packed))
	}

	respPtr := uint32(packed[0] >> 32)
	respLen := uint32(packed[0])
	defer func() { _, _ = deallocate.Call(ctx, uint64(respPtr), uint64(respLen)) }()

	respBytes, ok := mod.Memory().Read(respPtr, respLen)
	if !ok {
		return nil, fmt.Errorf("wasmguard: failed to read response from guest memory")
	}

	out := make([]byte, len(respBytes))
	copy(out, respBytes)
	return out, nil
}
