// Package telemetry defines the narrow logging/metrics/tracing interfaces the
// runtime depends on. Every other runtime package accepts these interfaces
// rather than importing zap/otel directly, so tests can substitute Noop
// implementations and production wiring can swap backends without touching
// call sites (runtime/telemetry/zap.go and runtime/telemetry/otel.go supply
// the concrete adapters).
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging used throughout the runtime.
// Implementations are expected to attach request/workflow-scoped fields from
// the context when possible, but the interface itself stays context-in,
// keyvals-out so call sites never depend on a specific logging library.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter/timer/gauge helpers for runtime instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so runtime code stays agnostic of the
// underlying OpenTelemetry SDK wiring (sampler, exporter, resource).
type Tracer interface {
	Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
	Span(ctx context.Context) Span
}

// Span represents an in-flight tracing span.
type Span interface {
	End(opts ...trace.SpanEndOption)
	AddEvent(name string, attrs ...any)
	SetStatus(code codes.Code, description string)
	RecordError(err error, opts ...trace.EventOption)
}

// StepTelemetry describes observability metadata for a single planner step.
// No code in this module constructs, stores or emits it; the loop records
// step duration directly through Metrics.
type StepTelemetry struct {
	// DurationMs is the wall-clock duration of the step's executeIntent stage.
	DurationMs int64
	// IntentType is the planner intent type handled by the step (tool_call,
	// ask_user, complete).
	IntentType string
	// ToolName is set when IntentType is tool_call.
	ToolName string
	// RetryAttempts counts adapter retry attempts consumed by this step, 0 for
	// non-tool_call steps or tool calls that succeeded first try.
	RetryAttempts int
	// Extra holds component-specific metadata (policy outcome, risk class, ...).
	Extra map[string]any
}
