package canon_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/workrail/engine/canon"
)

type payload struct {
	Kind string `json:"kind"`
	N    int    `json:"n"`
}

func TestMarshalIsDeterministicAcrossCalls(t *testing.T) {
	p := payload{Kind: "execution_snapshot", N: 3}
	a, err := canon.Marshal(p)
	require.NoError(t, err)
	b, err := canon.Marshal(p)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.NotContains(t, string(a), "\n")
}

func TestDigestRefHasSha256Prefix(t *testing.T) {
	ref, b, err := canon.DigestRef(payload{Kind: "x", N: 1})
	require.NoError(t, err)
	require.Regexp(t, `^sha256:[0-9a-f]{64}$`, ref)
	require.NotEmpty(t, b)
}

func TestMarshalRejectsTopLevelMap(t *testing.T) {
	_, err := canon.Marshal(map[string]any{"a": 1})
	require.Error(t, err)
}

type nestedMapPayload struct {
	Kind string
	Tags map[string]string
}

func TestMarshalRejectsNestedMap(t *testing.T) {
	_, err := canon.Marshal(nestedMapPayload{Kind: "x", Tags: map[string]string{"a": "b"}})
	require.Error(t, err)
}

func TestMarshalAcceptsSliceOfPairsInsteadOfMap(t *testing.T) {
	type pair struct {
		Key   string
		Value string
	}
	type withPairs struct {
		Kind  string
		Pairs []pair
	}
	_, err := canon.Marshal(withPairs{Kind: "x", Pairs: []pair{{Key: "a", Value: "b"}}})
	require.NoError(t, err)
}

func TestCanonicalizeForeignSortsObjectKeysDeterministically(t *testing.T) {
	a, err := canon.CanonicalizeForeign([]byte(`{"b":1,"a":2,"steps":["s1","s2"]}`))
	require.NoError(t, err)
	b, err := canon.CanonicalizeForeign([]byte(`{"a":2,"steps":["s1","s2"],"b":1}`))
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, `{"a":2,"b":1,"steps":["s1","s2"]}`, string(a))
}

func TestCanonicalizeForeignRejectsMalformedJSON(t *testing.T) {
	_, err := canon.CanonicalizeForeign([]byte(`{not json`))
	require.Error(t, err)
}

func TestDigestChangesWithPayload(t *testing.T) {
	d1, _, err := canon.Digest(payload{Kind: "a", N: 1})
	require.NoError(t, err)
	d2, _, err := canon.Digest(payload{Kind: "a", N: 2})
	require.NoError(t, err)
	require.NotEqual(t, d1, d2)
}
