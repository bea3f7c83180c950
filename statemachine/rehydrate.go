package statemachine

import (
	"context"

	"github.com/workrail/engine/ids"
	"github.com/workrail/engine/projection"
	"github.com/workrail/engine/token"
)

// rehydrate implements the side-effect-free continue_workflow variant of
// spec.md §4.5.2: no lock is taken and no event is appended.
func (e *Engine) rehydrate(ctx context.Context, in ContinueInput) (*Response, error) {
	sp, err := token.DecodeState(e.keyring, in.StateToken)
	if err != nil {
		return nil, mapTokenErr(err)
	}
	sessionID := ids.SessionID(sp.SessionID)
	runID := ids.RunID(sp.RunID)
	nodeID := ids.NodeID(sp.NodeID)

	log, err := e.events.Load(sessionID)
	if err != nil {
		return nil, mapEventlogErr(err)
	}
	run, err := projection.Project(log, runID)
	if err != nil {
		return nil, newErr(CodeInternal, "project run", err)
	}
	node, ok := run.Node(nodeID)
	if !ok {
		return nil, &Error{Code: CodeTokenUnknownNode, Message: "state token names an unknown node"}
	}
	if err := validateWorkflowHash(sp, run.WorkflowHash); err != nil {
		return nil, err
	}

	state, err := e.loadSnapshot(node.SnapshotRef)
	if err != nil {
		return nil, err
	}
	def, err := e.loadDef(run.WorkflowHash)
	if err != nil {
		return nil, err
	}

	return e.renderResponse(ctx, def, sessionID, runID, nodeID, run.WorkflowHash, state, ids.NewAttemptID(), run.Preferences())
}
