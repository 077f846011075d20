package engine

import (
	"context"
	"errors"

	"github.com/MrWong99/mcpguard/internal/guardcore"
	"github.com/MrWong99/mcpguard/internal/observe"
)

// handleGuardError maps a guard's returned error to a Decision according to
// its descriptor's EffectiveFailureMode. fail_closed synthesizes a Deny so a
// broken guard can never silently pass traffic; fail_open synthesizes an
// Allow and records the failure as a warning-worthy event in the logs and
// metrics instead, per the descriptor's explicit opt-in to availability over
// strict enforcement.
func (e *Engine) handleGuardError(ctx context.Context, bg boundGuard, phase guardcore.Phase, err error, elapsedSeconds float64) (guardcore.Decision, error) {
	kind := string(guardcore.ErrInternal)
	var gerr *guardcore.GuardError
	if errors.As(err, &gerr) {
		kind = string(gerr.Kind)
	}

	e.metrics.RecordGuardError(ctx, bg.desc.ID, kind)
	e.metrics.RecordGuardEval(ctx, bg.desc.ID, string(phase), "error", elapsedSeconds)
	observe.Logger(ctx).Warn("guard returned an error",
		"guard_id", bg.desc.ID, "phase", string(phase), "kind", kind, "failure_mode", string(bg.desc.EffectiveFailureMode()), "error", err)

	if bg.desc.EffectiveFailureMode() == guardcore.FailOpen {
		return guardcore.Allow(), nil
	}
	return guardcore.Deny("guard_error", "a security guard failed and this route fails closed", map[string]string{
		"guard_id": bg.desc.ID,
		"kind":     kind,
	}), nil
}

// handleTimeout maps a guard's timeout to a Decision the same way
// handleGuardError does for any other failure, since a timeout is itself a
// guard failure from the chain's point of view — the guard simply did not
// return before its context was cancelled.
func (e *Engine) handleTimeout(ctx context.Context, bg boundGuard, phase guardcore.Phase, elapsedSeconds float64) (guardcore.Decision, error) {
	e.metrics.RecordGuardTimeout(ctx, bg.desc.ID, string(phase))
	e.metrics.RecordGuardEval(ctx, bg.desc.ID, string(phase), "timeout", elapsedSeconds)
	observe.Logger(ctx).Warn("guard evaluation timed out",
		"guard_id", bg.desc.ID, "phase", string(phase), "failure_mode", string(bg.desc.EffectiveFailureMode()))

	if bg.desc.EffectiveFailureMode() == guardcore.FailOpen {
		return guardcore.Allow(), nil
	}
	return guardcore.Deny("guard_timeout", "a security guard timed out and this route fails closed", map[string]string{
		"guard_id": bg.desc.ID,
	}), nil
}
