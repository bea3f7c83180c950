package statemachine

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/workrail/engine/snapshot"
	"github.com/workrail/engine/workflowdef"
)

// loadDef reconstructs the opaque workflow definition pinned at
// workflowHash. Every run's events carry workflowHash, never the
// definition itself, so any path that needs to call into the interpreter
// rehydrates it through here first.
func (e *Engine) loadDef(workflowHash string) (workflowdef.Def, error) {
	b, err := e.pinned.Get(workflowHash)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return workflowdef.Def{}, newErr(CodeInternal, fmt.Sprintf("Missing pinned workflow %s", workflowHash), err)
		}
		return workflowdef.Def{}, newErr(CodeInternal, "load pinned workflow", err)
	}
	var pv workflowdef.PinnedWorkflowV1
	if err := json.Unmarshal(b, &pv); err != nil {
		return workflowdef.Def{}, newErr(CodeInternal, "decode pinned workflow", err)
	}
	return workflowdef.Def{
		WorkflowID: pv.WorkflowID,
		SourceKind: pv.SourceKind,
		SourceRef:  pv.SourceRef,
		FirstStep:  pv.FirstStep,
		Raw:        pv.Raw,
	}, nil
}

// loadSnapshot reconstructs the EngineState durably stored at ref.
func (e *Engine) loadSnapshot(ref string) (workflowdef.EngineState, error) {
	b, err := e.snapshots.Get(ref)
	if err != nil {
		if errors.Is(err, snapshot.ErrNotFound) {
			return workflowdef.EngineState{}, missingSnapshot(ref)
		}
		return workflowdef.EngineState{}, newErr(CodeInternal, "load execution snapshot", err)
	}
	var env workflowdef.ExecutionSnapshotV1
	if err := json.Unmarshal(b, &env); err != nil {
		return workflowdef.EngineState{}, newErr(CodeInternal, "decode execution snapshot", err)
	}
	return env.EnginePayload.EngineState, nil
}
