package statemachine

import (
	"github.com/workrail/engine/ids"
	"github.com/workrail/engine/token"
)

// validateSameScope enforces spec.md §4.5.3: both tokens must name the
// same (sessionId, runId, nodeId).
func validateSameScope(sp token.StatePayload, ap token.AckPayload) error {
	if sp.SessionID != ap.SessionID || sp.RunID != ap.RunID || sp.NodeID != ap.NodeID {
		return &Error{Code: CodeTokenScopeMismatch, Message: "state and ack tokens name different scopes"}
	}
	return nil
}

// validateWorkflowHash enforces the state token's workflowHashRef against
// the workflowHashRef derivable from the run's run_started event.
func validateWorkflowHash(sp token.StatePayload, workflowHash string) error {
	want := ids.WorkflowHashRefOf(ids.WorkflowHash(workflowHash))
	if sp.WorkflowHashRef != string(want) {
		return &Error{Code: CodeTokenWorkflowHashMiss, Message: "state token names a stale workflow pin"}
	}
	return nil
}
