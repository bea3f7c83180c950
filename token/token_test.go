package token_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/workrail/engine/fsx"
	"github.com/workrail/engine/keyring"
	"github.com/workrail/engine/token"
)

func newKeyring(t *testing.T) *keyring.Keyring {
	t.Helper()
	fs := fsx.New()
	kr, err := keyring.Load(fs, t.TempDir()+"/keyring.json")
	require.NoError(t, err)
	return kr
}

func TestStateTokenRoundTrips(t *testing.T) {
	kr := newKeyring(t)
	want := token.StatePayload{
		SessionID:       "sess-1",
		RunID:           "run-1",
		NodeID:          "node-1",
		WorkflowHashRef: "sha256:aa",
	}
	tok, err := token.EncodeState(kr, want)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(tok, "stv1"))

	got, err := token.DecodeState(kr, tok)
	require.NoError(t, err)
	require.Equal(t, want.SessionID, got.SessionID)
	require.Equal(t, want.RunID, got.RunID)
	require.Equal(t, want.NodeID, got.NodeID)
	require.Equal(t, want.WorkflowHashRef, got.WorkflowHashRef)
}

func TestAckTokenRoundTrips(t *testing.T) {
	kr := newKeyring(t)
	want := token.AckPayload{
		SessionID: "sess-1",
		RunID:     "run-1",
		NodeID:    "node-1",
		AttemptID: "att-1",
	}
	tok, err := token.EncodeAck(kr, want)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(tok, "ackv1"))

	got, err := token.DecodeAck(kr, tok)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestDecodeStateRejectsAckToken(t *testing.T) {
	kr := newKeyring(t)
	tok, err := token.EncodeAck(kr, token.AckPayload{SessionID: "s", RunID: "r", NodeID: "n", AttemptID: "a"})
	require.NoError(t, err)

	_, err = token.DecodeState(kr, tok)
	require.Error(t, err)
	var tErr *token.Error
	require.ErrorAs(t, err, &tErr)
	require.Equal(t, token.ErrInvalidFormat, tErr.Code)
}

func TestBitFlipInvalidatesToken(t *testing.T) {
	kr := newKeyring(t)
	tok, err := token.EncodeState(kr, token.StatePayload{SessionID: "s", RunID: "r", NodeID: "n", WorkflowHashRef: "sha256:aa"})
	require.NoError(t, err)

	flipped := []byte(tok)
	// flip a character in the data part, leaving the hrp+separator alone
	idx := len(flipped) - 3
	if flipped[idx] == 'q' {
		flipped[idx] = 'p'
	} else {
		flipped[idx] = 'q'
	}

	_, err = token.DecodeState(kr, string(flipped))
	require.Error(t, err)
}

func TestRotationAllowsPreviousKeyThenFailsAfterSecondRotation(t *testing.T) {
	fs := fsx.New()
	path := t.TempDir() + "/keyring.json"
	kr, err := keyring.Load(fs, path)
	require.NoError(t, err)

	tok, err := token.EncodeState(kr, token.StatePayload{SessionID: "s", RunID: "r", NodeID: "n", WorkflowHashRef: "sha256:aa"})
	require.NoError(t, err)

	kr2, err := keyring.Rotate(fs, path, kr)
	require.NoError(t, err)

	// Token signed under the pre-rotation current key still verifies
	// because that key now lives in Previous.
	_, err = token.DecodeState(kr2, tok)
	require.NoError(t, err)

	kr3, err := keyring.Rotate(fs, path, kr2)
	require.NoError(t, err)

	_, err = token.DecodeState(kr3, tok)
	require.Error(t, err)
	var tErr *token.Error
	require.ErrorAs(t, err, &tErr)
	require.Equal(t, token.ErrBadSignature, tErr.Code)
}

func TestDecodeRejectsGarbageFormat(t *testing.T) {
	kr := newKeyring(t)
	_, err := token.DecodeState(kr, "not-a-bech32-string")
	require.Error(t, err)
	var tErr *token.Error
	require.ErrorAs(t, err, &tErr)
	require.Equal(t, token.ErrInvalidFormat, tErr.Code)
}
