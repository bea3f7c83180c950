package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Noop implements Logger, Metrics, Tracer, and Span all at once: none of
// the four interfaces this module defines carry per-instance state, so
// the core never needs more than one shared no-op value. statemachine.New falls back
// to this whenever a caller leaves Logger or Metrics unset, so a demo or
// a unit test never has to wire a real exporter just to satisfy the
// constructor.
type Noop struct{}

// NoopLogger and NoopMetrics are the names statemachine.New's zero-value
// fallback already refers to; both are the same underlying type as Noop.
type (
	NoopLogger = Noop
	NoopMetrics = Noop
)

// NewNoopLogger constructs a Logger that discards everything, including
// any Correlation attached to its ctx.
func NewNoopLogger() Logger { return Noop{} }

// NewNoopMetrics constructs a Metrics recorder that discards everything.
func NewNoopMetrics() Metrics { return Noop{} }

// NewNoopTracer constructs a Tracer whose spans discard everything,
// including attributes that would otherwise be derived from Correlation.
func NewNoopTracer() Tracer { return Noop{} }

func (Noop) Debug(context.Context, string, ...any) {}
func (Noop) Info(context.Context, string, ...any)  {}
func (Noop) Warn(context.Context, string, ...any)  {}
func (Noop) Error(context.Context, string, ...any) {}

func (Noop) IncCounter(string, float64, ...string)        {}
func (Noop) RecordTimer(string, time.Duration, ...string) {}
func (Noop) RecordGauge(string, float64, ...string)       {}

// Start returns ctx unchanged — any Correlation on it is simply never
// read — and Noop itself as the span handle.
func (Noop) Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span) {
	return ctx, Noop{}
}

// Span returns Noop itself; there is no current span to retrieve.
func (Noop) Span(context.Context) Span { return Noop{} }

func (Noop) End(...trace.SpanEndOption)              {}
func (Noop) AddEvent(string, ...any)                 {}
func (Noop) SetStatus(codes.Code, string)            {}
func (Noop) RecordError(error, ...trace.EventOption) {}
