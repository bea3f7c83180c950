package telemetry_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/workrail/engine/telemetry"
)

func TestCorrelationKeyValsOmitsUnsetIdentifiers(t *testing.T) {
	c := telemetry.Correlation{SessionID: "sess-1", NodeID: "node-1"}
	require.Equal(t, []any{"sessionId", "sess-1", "nodeId", "node-1"}, c.KeyVals())
}

func TestWithCorrelationMergesRatherThanReplaces(t *testing.T) {
	ctx := telemetry.WithCorrelation(context.Background(), telemetry.Correlation{SessionID: "sess-1"})
	ctx = telemetry.WithCorrelation(ctx, telemetry.Correlation{RunID: "run-1"})

	got, ok := telemetry.CorrelationFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, "sess-1", got.SessionID)
	require.Equal(t, "run-1", got.RunID)
}

func TestCorrelationFromContextMissingReturnsFalse(t *testing.T) {
	_, ok := telemetry.CorrelationFromContext(context.Background())
	require.False(t, ok)
}

func TestNoopSatisfiesEveryTelemetryInterface(t *testing.T) {
	var _ telemetry.Logger = telemetry.Noop{}
	var _ telemetry.Metrics = telemetry.Noop{}
	var _ telemetry.Tracer = telemetry.Noop{}
	var _ telemetry.Span = telemetry.Noop{}

	ctx, span := telemetry.Noop{}.Start(context.Background(), "span")
	require.NotNil(t, ctx)
	span.End()
}
