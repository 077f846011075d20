package guardcore

import "context"

// ABIVersion is the version of the Guard capability surface described by
// this package. Sandboxed guards (package wasmguard) advertise the ABI
// version they were compiled against in their manifest; the loader refuses
// to instantiate a module whose declared version is below MinimumGuestABI.
// A declared version above ABIVersion, including a higher major version, is
// not rejected.
const ABIVersion = "1.3.0"

// MinimumGuestABI is the oldest guest-declared ABI version the wasmguard
// loader accepts. A guest manifest declaring an older version is rejected
// at load time rather than instantiated and allowed to call host functions
// it may not implement correctly.
const MinimumGuestABI = "1.0.0"

// Guard is the capability every security check implements, whether native
// Go code (package guards) or a sandboxed WASM module (package wasmguard).
// A Guard is stateless from the engine's point of view between calls to
// Evaluate — any state a guard needs to keep (e.g. RugPull's baselines) is
// the guard's own concern, kept behind a concurrency-safe store.
type Guard interface {
	// ID is the guard's stable identifier, matching the id used in a
	// GuardDescriptor. Used in logs, metrics labels, and DenyDetails.GuardID.
	ID() string

	// Hooks reports which phases this guard wants to observe. The engine
	// only dispatches to a guard on the phases it names here; a guard whose
	// Hooks does not include a chain's phase is skipped, not evaluated with
	// an irrelevant payload.
	Hooks() []Phase

	// Evaluate inspects payload in the context of phase and gctx, returning
	// the guard's decision. A non-nil error indicates the guard itself
	// failed (as opposed to returning Deny) — the engine maps it to a
	// GuardError and applies the descriptor's failure_mode.
	Evaluate(ctx context.Context, phase Phase, payload Payload, gctx *GuardContext) (Decision, error)
}

// ErrorKind classifies a guard failure for the purposes of failure_mode
// handling and observability labelling.
type ErrorKind string

const (
	// ErrConfig means the guard's own configuration is invalid or
	// incomplete (e.g. a pattern set that failed to compile).
	ErrConfig ErrorKind = "config_error"

	// ErrTimeout means Evaluate did not return before its descriptor's
	// timeout_ms elapsed. The engine cancels ctx and treats the guard as
	// failed for this invocation only; the guard is not disabled.
	ErrTimeout ErrorKind = "timeout"

	// ErrInternal covers anything else: panics recovered by the engine,
	// payload decode failures, sandboxed-module traps, and so on.
	ErrInternal ErrorKind = "internal"
)

// GuardError is the error type guards and the engine use to report guard
// failures distinct from a Deny decision. Its Unwrap method lets callers use
// errors.Is/errors.As to test for a specific Kind or underlying cause, the
// same composition idiom the teacher uses throughout its provider bridges.
type GuardError struct {
	GuardID string
	Kind    ErrorKind
	Err     error
}

func (e *GuardError) Error() string {
	if e.GuardID == "" {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return e.GuardID + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *GuardError) Unwrap() error { return e.Err }

// NewGuardError wraps err as a GuardError of the given kind, attributed to
// guardID.
func NewGuardError(guardID string, kind ErrorKind, err error) *GuardError {
	return &GuardError{GuardID: guardID, Kind: kind, Err: err}
}
