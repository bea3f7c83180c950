package linearinterp_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/workrail/engine/workflowdef"
	"github.com/workrail/engine/workflowdef/linearinterp"
)

type step struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Prompt string `json:"prompt"`
	Next   string `json:"next"`
	Block  bool   `json:"block"`
}

func graph(steps ...step) workflowdef.Def {
	raw, _ := json.Marshal(struct {
		FirstStep string `json:"firstStep"`
		Steps     []step `json:"steps"`
	}{FirstStep: steps[0].ID, Steps: steps})
	return workflowdef.Def{WorkflowID: "wf", FirstStep: steps[0].ID, Raw: raw}
}

func TestDescribeRendersStepMetadata(t *testing.T) {
	def := graph(step{ID: "a", Title: "A", Prompt: "do a"})
	s, err := linearinterp.Interpreter{}.Describe(context.Background(), def, "a")
	require.NoError(t, err)
	require.Equal(t, "A", s.Title)
	require.Equal(t, "do a", s.Prompt)
}

func TestAdvanceMovesToNextStep(t *testing.T) {
	def := graph(step{ID: "a", Next: "b"}, step{ID: "b"})
	result, err := linearinterp.Interpreter{}.Advance(context.Background(), def, workflowdef.NewRunningState(nil, nil, "a"), nil)
	require.NoError(t, err)
	require.Equal(t, workflowdef.EngineStateRunning, result.NextState.Kind)
	require.Equal(t, "b", result.NextState.Running.Pending)
}

func TestAdvanceCompletesAtLastStep(t *testing.T) {
	def := graph(step{ID: "a"})
	result, err := linearinterp.Interpreter{}.Advance(context.Background(), def, workflowdef.NewRunningState(nil, nil, "a"), nil)
	require.NoError(t, err)
	require.Equal(t, workflowdef.EngineStateComplete, result.NextState.Kind)
}

func TestAdvanceBlocksOnBlockingStep(t *testing.T) {
	def := graph(step{ID: "a", Block: true, Next: "b"}, step{ID: "b"})
	result, err := linearinterp.Interpreter{}.Advance(context.Background(), def, workflowdef.NewRunningState(nil, nil, "a"), nil)
	require.NoError(t, err)
	require.Equal(t, workflowdef.EngineStateBlocked, result.NextState.Kind)
	require.True(t, result.NextState.CanRetry())
}

func TestAdvanceRetriesPastBlockedStep(t *testing.T) {
	def := graph(step{ID: "a", Block: true, Next: "b"}, step{ID: "b"})
	blocked := workflowdef.NewBlockedState(workflowdef.BlockedRetryable, "", nil, "a")
	result, err := linearinterp.Interpreter{}.Advance(context.Background(), def, blocked, nil)
	require.NoError(t, err)
	require.Equal(t, workflowdef.EngineStateRunning, result.NextState.Kind)
	require.Equal(t, "b", result.NextState.Running.Pending)
}
