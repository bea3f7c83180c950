package statemachine

import (
	"context"

	"github.com/workrail/engine/eventlog"
	"github.com/workrail/engine/gate"
	"github.com/workrail/engine/ids"
	"github.com/workrail/engine/projection"
	"github.com/workrail/engine/telemetry"
	"github.com/workrail/engine/workflowdef"
)

// StartWorkflow implements spec.md §4.5.1: resolve the workflow, pin it,
// materialize the first node, and mint tokens naming it. The whole body
// runs under an implicit timeout (spec.md §5); a caller context that is
// already expired, or whose deadline has passed when the body fails, is
// reported as CodeTimeout.
func (e *Engine) StartWorkflow(ctx context.Context, in StartInput) (*Response, error) {
	return withTimeout(ctx, "start_workflow timed out", func(ctx context.Context) (*Response, error) {
		return e.startWorkflow(ctx, in)
	})
}

func (e *Engine) startWorkflow(ctx context.Context, in StartInput) (*Response, error) {
	if in.WorkflowID == "" {
		return nil, newErr(CodeValidation, "workflowId is required", nil)
	}
	if len(in.Context) > e.maxContextBytes {
		return nil, newErr(CodeValidation, "context exceeds the configured maximum size", nil)
	}

	def, err := e.provider.FetchByID(ctx, in.WorkflowID)
	if err != nil {
		return nil, newErr(CodeNotFound, "workflow not found", err)
	}

	pinned, err := workflowdef.NewPinnedWorkflow(def, def.Raw)
	if err != nil {
		return nil, newErr(CodeInternal, "decode workflow definition", err)
	}
	workflowHash, err := e.pinned.Put(pinned)
	if err != nil {
		return nil, newErr(CodeInternal, "pin workflow definition", err)
	}

	engineState := workflowdef.NewRunningState(nil, nil, def.FirstStep)
	snapshotRef, err := e.snapshots.Put(workflowdef.NewExecutionSnapshot(engineState))
	if err != nil {
		return nil, newErr(CodeInternal, "write execution snapshot", err)
	}

	sessionID := ids.NewSessionID()
	runID := ids.NewRunID()
	nodeID := ids.NewNodeID()
	attemptID := ids.NewAttemptID()
	ctx = telemetry.WithCorrelation(ctx, telemetry.Correlation{
		SessionID: string(sessionID),
		RunID:     string(runID),
		NodeID:    string(nodeID),
		AttemptID: string(attemptID),
	})

	batch := eventlog.Batch{
		Events: []eventlog.PendingEvent{
			{
				DedupeKey: dedupeSessionCreated(sessionID),
				Kind:      eventlog.KindSessionCreated,
				Data:      mustData(struct{}{}),
			},
			{
				Scope:     &eventlog.Scope{RunID: runID},
				DedupeKey: dedupeRunStarted(sessionID, runID),
				Kind:      eventlog.KindRunStarted,
				Data:      mustData(runStartedData{WorkflowID: def.WorkflowID, WorkflowHash: workflowHash}),
			},
			{
				Scope:     &eventlog.Scope{RunID: runID, NodeID: nodeID},
				DedupeKey: dedupeNodeCreated(sessionID, nodeID),
				Kind:      eventlog.KindNodeCreated,
				Data: mustData(nodeCreatedData{
					NodeKind:     "step",
					WorkflowHash: workflowHash,
					SnapshotRef:  snapshotRef,
				}),
			},
		},
		Pins: []eventlog.PendingPin{
			{SnapshotRef: snapshotRef, SourceOffset: 2},
		},
	}

	_, err = gate.WithHealthySessionLock(e.gate, sessionID, func(w *eventlog.Witness) (struct{}, error) {
		return struct{}{}, e.events.Append(w, batch)
	})
	if err != nil {
		e.logger.Error(ctx, "start_workflow failed", "workflowId", in.WorkflowID, "err", err)
		return nil, mapGateErr(err)
	}
	e.metrics.IncCounter("workrail.runs_started", 1, "workflowId", def.WorkflowID)
	e.logger.Info(ctx, "run started", "workflowId", def.WorkflowID)

	return e.renderResponse(ctx, def, sessionID, runID, nodeID, workflowHash, engineState, attemptID, projection.DefaultPreferences)
}
