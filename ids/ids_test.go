package ids_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workrail/engine/ids"
)

func TestMintersProduceDistinctValidValues(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 1000; i++ {
		s := string(ids.NewSessionID())
		require.True(t, ids.Valid(s))
		_, dup := seen[s]
		require.False(t, dup, "duplicate session id minted")
		seen[s] = struct{}{}
	}
}

func TestEventIDsSortAscendingWithinBatch(t *testing.T) {
	var prev string
	for i := 0; i < 100; i++ {
		id := string(ids.NewEventID())
		require.True(t, ids.Valid(id))
		if prev != "" {
			assert.True(t, prev < id || prev == id, "event ids must not regress: %q then %q", prev, id)
		}
		prev = id
	}
}

func TestNewOutputIDIsDeterministicPerAttemptAndIndex(t *testing.T) {
	attempt := ids.NewAttemptID()
	a := ids.NewOutputID(attempt, 0)
	b := ids.NewOutputID(attempt, 0)
	assert.Equal(t, a, b)

	c := ids.NewOutputID(attempt, 1)
	assert.NotEqual(t, a, c)
}

func TestValidRejectsDelimiters(t *testing.T) {
	assert.False(t, ids.Valid(""))
	assert.False(t, ids.Valid("has:colon"))
	assert.False(t, ids.Valid("has/slash"))
	assert.True(t, ids.Valid(strings.ReplaceAll("plain-id-123", "-", "-")))
}
