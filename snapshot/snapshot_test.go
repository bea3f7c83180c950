package snapshot_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/workrail/engine/fsx"
	"github.com/workrail/engine/snapshot"
)

type enginePayload struct {
	V    int    `json:"v"`
	Kind string `json:"kind"`
}

func TestPutIsIdempotentAndGetRoundTrips(t *testing.T) {
	fs := fsx.New()
	store := snapshot.New(fs, t.TempDir())

	ref1, err := store.Put(enginePayload{V: 1, Kind: "execution_snapshot"})
	require.NoError(t, err)
	ref2, err := store.Put(enginePayload{V: 1, Kind: "execution_snapshot"})
	require.NoError(t, err)
	require.Equal(t, ref1, ref2)

	b, err := store.Get(ref1)
	require.NoError(t, err)
	require.Contains(t, string(b), "execution_snapshot")
}

func TestDifferentPayloadsGetDifferentRefs(t *testing.T) {
	fs := fsx.New()
	store := snapshot.New(fs, t.TempDir())

	ref1, err := store.Put(enginePayload{V: 1, Kind: "a"})
	require.NoError(t, err)
	ref2, err := store.Put(enginePayload{V: 1, Kind: "b"})
	require.NoError(t, err)
	require.NotEqual(t, ref1, ref2)
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	fs := fsx.New()
	store := snapshot.New(fs, t.TempDir())

	_, err := store.Get("sha256:" + "00000000000000000000000000000000000000000000000000000000000000")
	require.True(t, errors.Is(err, snapshot.ErrNotFound))
}

func TestHasReflectsPresence(t *testing.T) {
	fs := fsx.New()
	store := snapshot.New(fs, t.TempDir())

	ref, err := store.Put(enginePayload{V: 1, Kind: "present"})
	require.NoError(t, err)

	ok, err := store.Has(ref)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Has("sha256:" + "11111111111111111111111111111111111111111111111111111111111111")
	require.NoError(t, err)
	require.False(t, ok)
}
