package statemachine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/workrail/engine/statemachine"
)

// A context that is already expired when the call is made must surface
// as CodeTimeout rather than a bare context error leaking through.
func TestStartWorkflowReturnsTimeoutForExpiredContext(t *testing.T) {
	id, raw, first := oneStepWorkflow()
	e := newTestEngine(t, id, raw, first)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err := e.StartWorkflow(ctx, statemachine.StartInput{WorkflowID: id})
	require.Error(t, err)
	var serr *statemachine.Error
	require.ErrorAs(t, err, &serr)
	require.Equal(t, statemachine.CodeTimeout, serr.Code)
}

func TestContinueWorkflowReturnsTimeoutForExpiredContext(t *testing.T) {
	id, raw, first := oneStepWorkflow()
	e := newTestEngine(t, id, raw, first)

	started, err := e.StartWorkflow(context.Background(), statemachine.StartInput{WorkflowID: id})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	time.Sleep(time.Millisecond)

	_, err = e.ContinueWorkflow(ctx, statemachine.ContinueInput{
		Intent:     statemachine.IntentRehydrate,
		StateToken: started.StateToken,
	})
	require.Error(t, err)
	var serr *statemachine.Error
	require.ErrorAs(t, err, &serr)
	require.Equal(t, statemachine.CodeTimeout, serr.Code)
}
