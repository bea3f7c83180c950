package projection_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/workrail/engine/projection"
	"github.com/workrail/engine/workflowdef"
)

func TestDerivePhaseMapsEveryEngineStateKind(t *testing.T) {
	require.Equal(t, projection.PhasePlanning, projection.DerivePhase(workflowdef.NewRunningState(nil, nil, "s1")))
	require.Equal(t, projection.PhaseDone, projection.DerivePhase(workflowdef.NewCompleteState()))
	require.Equal(t, projection.PhaseAwaitingRetry, projection.DerivePhase(
		workflowdef.NewBlockedState(workflowdef.BlockedRetryable, "", nil, "s1")))
	require.Equal(t, projection.PhaseSynthesizing, projection.DerivePhase(
		workflowdef.NewBlockedState(workflowdef.BlockedTerminal, "", nil, "s1")))
}
