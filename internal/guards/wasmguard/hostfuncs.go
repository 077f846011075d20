package wasmguard

import (
	"context"
	"math"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/MrWong99/mcpguard/internal/observe"
)

// buildHostModule instantiates the "env" host module every guest imports
// from: a small logging and metrics capability set, the only authority a
// guest has over the outside world (spec.md §4.4 — no ambient FS/network
// access). Modelled on the teacher's mcphost.Host wrapping a single
// *mcpsdk.Client for every server connection: one host module instance is
// shared by every guest instance in a runtime, the same way the teacher
// reuses one *mcpsdk.Client across all server sessions.
func buildHostModule(ctx context.Context, runtime wazero.Runtime, metrics *observe.Metrics) (api.Module, error) {
	builder := runtime.NewHostModuleBuilder("env")

	builder.NewFunctionBuilder().
		WithFunc(hostLog).
		Export("host_log")

	builder.NewFunctionBuilder().
		WithFunc(hostEmitMetric(metrics)).
		Export("host_emit_metric")

	return builder.Instantiate(ctx)
}

// hostLog lets a guest emit a structured log line through the same
// *slog.Logger every other package logs through. level follows the guest
// ABI's fixed numbering: 0=debug, 1=info, 2=warn, 3=error.
func hostLog(ctx context.Context, mod api.Module, level uint32, msgPtr, msgLen uint32) {
	msg, ok := mod.Memory().Read(msgPtr, msgLen)
	if !ok {
		return
	}
	logger := observe.Logger(ctx).With("source", "wasmguard_guest")
	switch level {
	case 0:
		logger.Debug(string(msg))
	case 1:
		logger.Info(string(msg))
	case 2:
		logger.Warn(string(msg))
	default:
		logger.Error(string(msg))
	}
}

// hostEmitMetric lets a guest report a named gauge value. observe.Metrics
// has no generic custom-metric sink yet (its instruments are all
// purpose-built for the engine's own dispatch loop), so guest-emitted
// metrics are logged at debug level for now rather than silently dropped —
// a dedicated gauge is future work, not something to fabricate an API for
// here.
func hostEmitMetric(metrics *observe.Metrics) func(ctx context.Context, mod api.Module, namePtr, nameLen uint32, valueBits uint64) {
	return func(ctx context.Context, mod api.Module, namePtr, nameLen uint32, valueBits uint64) {
		name, ok := mod.Memory().Read(namePtr, nameLen)
		if !ok {
			return
		}
		value := math.Float64frombits(valueBits)
		observe.Logger(ctx).Debug("guest metric", "source", "wasmguard_guest", "name", string(name), "value", value)
	}
}
