// Package telemetry defines the structured logging, metrics, and tracing
// contracts used throughout the durable-execution core. Implementations
// typically delegate to Clue/OpenTelemetry, but the interfaces are
// intentionally small so tests can provide lightweight stubs instead of
// standing up a real exporter.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Logger captures structured logging. keyvals is an alternating sequence of
// string keys and arbitrary values, following the teacher's convention of
// (key, value, key, value, ...) pairs rather than a map.
type Logger interface {
	Debug(ctx context.Context, msg string, keyvals ...any)
	Info(ctx context.Context, msg string, keyvals ...any)
	Warn(ctx context.Context, msg string, keyvals ...any)
	Error(ctx context.Context, msg string, keyvals ...any)
}

// Metrics exposes counter/timer/gauge helpers for core instrumentation.
type Metrics interface {
	IncCounter(name string, value float64, tags ...string)
	RecordTimer(name string, duration time.Duration, tags ...string)
	RecordGauge(name string, value float64, tags ...string)
}

// Tracer abstracts span creation so core code stays agnostic of the
// underlying OpenTelemetry provider.
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

// Correlation is the set of durable-execution identifiers a call
// carries once they are minted: sessionId exists from the first
// appended event, runId/nodeId/attemptId from start_workflow, with a
// fresh attemptId for each advance. Statemachine stamps these onto ctx via
// WithCorrelation as soon as each is known so every Logger/Tracer call
// made afterward — including ones several stack frames away that never
// saw the ids directly — carries them without restating them.
type Correlation struct {
	SessionID string
	RunID     string
	NodeID    string
	AttemptID string
}

// KeyVals renders c as (key, value, ...) pairs, skipping any identifier
// that is not yet set.
func (c Correlation) KeyVals() []any {
	var kv []any
	if c.SessionID != "" {
		kv = append(kv, "sessionId", c.SessionID)
	}
	if c.RunID != "" {
		kv = append(kv, "runId", c.RunID)
	}
	if c.NodeID != "" {
		kv = append(kv, "nodeId", c.NodeID)
	}
	if c.AttemptID != "" {
		kv = append(kv, "attemptId", c.AttemptID)
	}
	return kv
}

type correlationKey struct{}

// WithCorrelation merges c into any Correlation already attached to ctx
// (c's non-empty fields win) and returns the result. Call it again with
// each newly minted id rather than building the whole Correlation up
// front — e.g. stamp SessionID as soon as it's minted, then RunID once
// the run exists.
func WithCorrelation(ctx context.Context, c Correlation) context.Context {
	if prior, ok := CorrelationFromContext(ctx); ok {
		if c.SessionID == "" {
			c.SessionID = prior.SessionID
		}
		if c.RunID == "" {
			c.RunID = prior.RunID
		}
		if c.NodeID == "" {
			c.NodeID = prior.NodeID
		}
		if c.AttemptID == "" {
			c.AttemptID = prior.AttemptID
		}
	}
	return context.WithValue(ctx, correlationKey{}, c)
}

// CorrelationFromContext retrieves the Correlation previously attached
// via WithCorrelation, if any.
func CorrelationFromContext(ctx context.Context) (Correlation, bool) {
	c, ok := ctx.Value(correlationKey{}).(Correlation)
	return c, ok
}
