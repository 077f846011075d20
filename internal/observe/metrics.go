// Package observe provides application-wide observability primitives for
// mcpguard: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all mcpguard metrics.
const meterName = "github.com/MrWong99/mcpguard"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// GuardEvalDuration tracks the latency of a single guard evaluation.
	// Use with attributes: attribute.String("guard_id", ...), attribute.String("phase", ...).
	GuardEvalDuration metric.Float64Histogram

	// ChainDuration tracks the latency of a full Engine.Dispatch call across
	// every guard in a phase's chain.
	ChainDuration metric.Float64Histogram

	// GuardDecisions counts guard evaluations by outcome. Use with
	// attributes: attribute.String("guard_id", ...), attribute.String("phase", ...), attribute.String("decision", ...).
	GuardDecisions metric.Int64Counter

	// GuardTimeouts counts guard evaluations that exceeded their
	// configured timeout_ms.
	GuardTimeouts metric.Int64Counter

	// GuardErrors counts guard evaluations that returned a GuardError.
	// Use with attributes: attribute.String("guard_id", ...), attribute.String("kind", ...).
	GuardErrors metric.Int64Counter

	// RugPullBaselinesActive is a gauge for the number of live rug-pull
	// baselines. The guards package does not update it; it changes only
	// when a caller adds to it directly.
	RugPullBaselinesActive metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) suited to
// in-process guard evaluation latency — native guards complete in well
// under a millisecond, sandboxed guards in the 5-10ms range per spec's
// cross-sandbox data movement note.
var latencyBuckets = []float64{
	0.0001, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5, 1,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.GuardEvalDuration, err = m.Float64Histogram("mcpguard.guard.eval.duration",
		metric.WithDescription("Latency of a single guard evaluation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ChainDuration, err = m.Float64Histogram("mcpguard.chain.duration",
		metric.WithDescription("Latency of a full guard chain dispatch."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.GuardDecisions, err = m.Int64Counter("mcpguard.guard.decisions",
		metric.WithDescription("Total guard evaluations by guard, phase, and decision kind."),
	); err != nil {
		return nil, err
	}
	if met.GuardTimeouts, err = m.Int64Counter("mcpguard.guard.timeouts",
		metric.WithDescription("Total guard evaluations that exceeded their configured timeout."),
	); err != nil {
		return nil, err
	}
	if met.GuardErrors, err = m.Int64Counter("mcpguard.guard.errors",
		metric.WithDescription("Total guard evaluations that returned a GuardError."),
	); err != nil {
		return nil, err
	}

	if met.RugPullBaselinesActive, err = m.Int64UpDownCounter("mcpguard.rugpull.baselines.active",
		metric.WithDescription("Number of rug-pull baselines currently held in process memory."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("mcpguard.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordGuardEval records one guard evaluation's latency and outcome.
func (m *Metrics) RecordGuardEval(ctx context.Context, guardID, phase, decision string, seconds float64) {
	attrs := metric.WithAttributes(
		attribute.String("guard_id", guardID),
		attribute.String("phase", phase),
		attribute.String("decision", decision),
	)
	m.GuardEvalDuration.Record(ctx, seconds, metric.WithAttributes(attribute.String("guard_id", guardID), attribute.String("phase", phase)))
	m.GuardDecisions.Add(ctx, 1, attrs)
}

// RecordGuardTimeout records a guard evaluation that exceeded its timeout.
func (m *Metrics) RecordGuardTimeout(ctx context.Context, guardID, phase string) {
	m.GuardTimeouts.Add(ctx, 1,
		metric.WithAttributes(attribute.String("guard_id", guardID), attribute.String("phase", phase)),
	)
}

// RecordGuardError records a guard evaluation that returned a GuardError.
func (m *Metrics) RecordGuardError(ctx context.Context, guardID, kind string) {
	m.GuardErrors.Add(ctx, 1,
		metric.WithAttributes(attribute.String("guard_id", guardID), attribute.String("kind", kind)),
	)
}
