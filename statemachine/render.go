package statemachine

import (
	"context"
	"fmt"

	"github.com/workrail/engine/ids"
	"github.com/workrail/engine/projection"
	"github.com/workrail/engine/token"
	"github.com/workrail/engine/workflowdef"
)

// renderResponse builds the wire Response for a node currently in state,
// minting fresh tokens that name it. It is the single place start_workflow,
// rehydrate, and replay converge, so the three paths can never drift in
// shape (spec.md §4.5.4 step 7: "this unifies first-advance and replay
// response shapes").
func (e *Engine) renderResponse(
	ctx context.Context,
	def workflowdef.Def,
	sessionID ids.SessionID,
	runID ids.RunID,
	nodeID ids.NodeID,
	workflowHash string,
	state workflowdef.EngineState,
	attemptID ids.AttemptID,
	prefs projection.Preferences,
) (*Response, error) {
	workflowHashRef := ids.WorkflowHashRefOf(ids.WorkflowHash(workflowHash))

	stateTok, err := token.EncodeState(e.keyring, token.StatePayload{
		SessionID:       string(sessionID),
		RunID:           string(runID),
		NodeID:          string(nodeID),
		WorkflowHashRef: string(workflowHashRef),
	})
	if err != nil {
		return nil, newErr(CodeInternal, "mint state token", err)
	}
	ackTok, err := token.EncodeAck(e.keyring, token.AckPayload{
		SessionID: string(sessionID),
		RunID:     string(runID),
		NodeID:    string(nodeID),
		AttemptID: string(attemptID),
	})
	if err != nil {
		return nil, newErr(CodeInternal, "mint ack token", err)
	}

	resp := &Response{
		StateToken:  stateTok,
		AckToken:    ackTok,
		Preferences: wirePreferences(prefs),
		Phase:       string(projection.DerivePhase(state)),
	}

	switch state.Kind {
	case workflowdef.EngineStateComplete:
		resp.IsComplete = true
		resp.NextIntent = "none"
		return resp, nil

	case workflowdef.EngineStateRunning:
		step, err := e.interpreter.Describe(ctx, def, state.Running.Pending)
		if err != nil {
			return nil, newErr(CodeInternal, "describe pending step", err)
		}
		resp.Pending = &step
		resp.NextIntent = "advance"
		resp.NextCall = &NextCall{
			Tool: "continue_workflow",
			Args: map[string]any{
				"intent":     "advance",
				"stateToken": stateTok,
				"ackToken":   ackTok,
			},
		}
		return resp, nil

	case workflowdef.EngineStateBlocked:
		if state.Blocked.Kind == workflowdef.BlockedTerminal {
			resp.NextIntent = "none"
			return resp, nil
		}
		resp.NextIntent = "advance"
		resp.NextCall = &NextCall{
			Tool: "continue_workflow",
			Args: map[string]any{
				"intent":     "advance",
				"stateToken": stateTok,
				"ackToken":   ackTok,
			},
		}
		return resp, nil

	default:
		return nil, newErr(CodeInternal, fmt.Sprintf("unrenderable engine state kind %q", state.Kind), nil)
	}
}
