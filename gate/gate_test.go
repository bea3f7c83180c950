package gate_test

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/workrail/engine/eventlog"
	"github.com/workrail/engine/fsx"
	"github.com/workrail/engine/gate"
	"github.com/workrail/engine/ids"
)

func newGate(t *testing.T, ownerToken string) (*gate.Gate, ids.SessionID) {
	t.Helper()
	fs := fsx.New()
	dataDir := fsx.DataDir{Root: t.TempDir()}
	require.NoError(t, dataDir.EnsureLayout(fs))
	store := eventlog.New(fs, dataDir)
	g := gate.New(fs, dataDir, store, time.Minute, ownerToken)
	return g, ids.NewSessionID()
}

func TestWithHealthySessionLockReturnsCallbackResult(t *testing.T) {
	g, sessionID := newGate(t, "owner-1")

	result, err := gate.WithHealthySessionLock(g, sessionID, func(w *eventlog.Witness) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	require.Equal(t, 42, result)
}

func TestGateCallbackFailurePropagatesAsGateCallbackFailed(t *testing.T) {
	g, sessionID := newGate(t, "owner-1")

	_, err := gate.WithHealthySessionLock(g, sessionID, func(w *eventlog.Witness) (int, error) {
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	var gErr *gate.Error
	require.ErrorAs(t, err, &gErr)
	require.Equal(t, gate.CodeGateCallbackFailed, gErr.Code)
}

func TestLockReleasedAfterCallbackSoNextCallSucceeds(t *testing.T) {
	g, sessionID := newGate(t, "owner-1")

	_, err := gate.WithHealthySessionLock(g, sessionID, func(w *eventlog.Witness) (int, error) {
		return 1, nil
	})
	require.NoError(t, err)

	_, err = gate.WithHealthySessionLock(g, sessionID, func(w *eventlog.Witness) (int, error) {
		return 2, nil
	})
	require.NoError(t, err)
}

func TestWitnessCannotBeUsedAfterCallbackReturns(t *testing.T) {
	g, sessionID := newGate(t, "owner-1")
	fs := fsx.New()
	dataDir := fsx.DataDir{Root: t.TempDir()}
	require.NoError(t, dataDir.EnsureLayout(fs))
	store := eventlog.New(fs, dataDir)
	_ = store

	var leaked *eventlog.Witness
	_, err := gate.WithHealthySessionLock(g, sessionID, func(w *eventlog.Witness) (int, error) {
		leaked = w
		return 0, nil
	})
	require.NoError(t, err)

	storeForSession := eventlog.New(fs, fsx.DataDir{Root: t.TempDir()})
	appendErr := storeForSession.Append(leaked, eventlog.Batch{
		Events: []eventlog.PendingEvent{{DedupeKey: "k", Kind: eventlog.KindSessionCreated, Data: json.RawMessage(`{}`)}},
	})
	require.Error(t, appendErr)
	var elErr *eventlog.Error
	require.ErrorAs(t, appendErr, &elErr)
	require.Equal(t, eventlog.CodeInvariantViolation, elErr.Code)
}
