package statemachine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/workrail/engine/statemachine"
)

func retryableBlockWorkflow() (string, []byte, string) {
	raw := stepGraph(
		fixtureStep{ID: "s1", Title: "Step 1", Prompt: "Do step 1", Next: "s2", Block: true},
		fixtureStep{ID: "s2", Title: "Step 2", Prompt: "Do step 2"},
	)
	return "wf-retry", raw, "s1"
}

func terminalBlockWorkflow() (string, []byte, string) {
	raw := stepGraph(
		fixtureStep{ID: "s1", Title: "Step 1", Prompt: "Do step 1", Block: true, TerminalBlock: true},
	)
	return "wf-terminal", raw, "s1"
}

func TestRetryableBlockCanBeRetriedPastTheBlock(t *testing.T) {
	id, raw, first := retryableBlockWorkflow()
	e := newTestEngine(t, id, raw, first)
	ctx := context.Background()

	started, err := e.StartWorkflow(ctx, statemachine.StartInput{WorkflowID: id})
	require.NoError(t, err)

	blocked, err := e.ContinueWorkflow(ctx, statemachine.ContinueInput{
		Intent:     statemachine.IntentAdvance,
		StateToken: started.StateToken,
		AckToken:   started.AckToken,
	})
	require.NoError(t, err)
	require.False(t, blocked.IsComplete)
	require.Nil(t, blocked.Pending)
	require.Equal(t, "advance", blocked.NextIntent)
	require.Equal(t, "awaiting_retry", blocked.Phase)

	retried, err := e.ContinueWorkflow(ctx, statemachine.ContinueInput{
		Intent:     statemachine.IntentAdvance,
		StateToken: blocked.StateToken,
		AckToken:   blocked.AckToken,
	})
	require.NoError(t, err)
	require.NotNil(t, retried.Pending)
	require.Equal(t, "s2", retried.Pending.StepID)
}

func TestTerminalBlockCannotBeRetried(t *testing.T) {
	id, raw, first := terminalBlockWorkflow()
	e := newTestEngine(t, id, raw, first)
	ctx := context.Background()

	started, err := e.StartWorkflow(ctx, statemachine.StartInput{WorkflowID: id})
	require.NoError(t, err)

	blocked, err := e.ContinueWorkflow(ctx, statemachine.ContinueInput{
		Intent:     statemachine.IntentAdvance,
		StateToken: started.StateToken,
		AckToken:   started.AckToken,
	})
	require.NoError(t, err)
	require.Equal(t, "none", blocked.NextIntent)
	require.Nil(t, blocked.NextCall)
	require.Equal(t, "synthesizing", blocked.Phase)

	_, err = e.ContinueWorkflow(ctx, statemachine.ContinueInput{
		Intent:     statemachine.IntentAdvance,
		StateToken: blocked.StateToken,
		AckToken:   blocked.AckToken,
	})
	require.Error(t, err)
	var smErr *statemachine.Error
	require.ErrorAs(t, err, &smErr)
	require.Equal(t, statemachine.CodeTokenScopeMismatch, smErr.Code)
}
