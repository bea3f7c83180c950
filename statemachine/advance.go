package statemachine

import (
	"context"
	"sort"

	"github.com/workrail/engine/eventlog"
	"github.com/workrail/engine/gate"
	"github.com/workrail/engine/ids"
	"github.com/workrail/engine/projection"
	"github.com/workrail/engine/telemetry"
	"github.com/workrail/engine/token"
	"github.com/workrail/engine/workflowdef"
	"github.com/workrail/engine/workflowdef/stepfail"
)

// advance implements spec.md §4.5.3-4.5.5: scope validation, then routing
// to the fact-returning replay path or a fresh advance under the gate.
func (e *Engine) advance(ctx context.Context, in ContinueInput) (*Response, error) {
	sp, err := token.DecodeState(e.keyring, in.StateToken)
	if err != nil {
		return nil, mapTokenErr(err)
	}
	ap, err := token.DecodeAck(e.keyring, in.AckToken)
	if err != nil {
		return nil, mapTokenErr(err)
	}
	if err := validateSameScope(sp, ap); err != nil {
		return nil, err
	}

	sessionID := ids.SessionID(sp.SessionID)
	runID := ids.RunID(sp.RunID)
	sourceNodeID := ids.NodeID(sp.NodeID)
	attemptID := ids.AttemptID(ap.AttemptID)
	ctx = telemetry.WithCorrelation(ctx, telemetry.Correlation{
		SessionID: string(sessionID),
		RunID:     string(runID),
		NodeID:    string(sourceNodeID),
		AttemptID: string(attemptID),
	})

	log, err := e.events.Load(sessionID)
	if err != nil {
		return nil, mapEventlogErr(err)
	}
	run, err := projection.Project(log, runID)
	if err != nil {
		return nil, newErr(CodeInternal, "project run", err)
	}
	if _, ok := run.Node(sourceNodeID); !ok {
		return nil, &Error{Code: CodeTokenUnknownNode, Message: "state token names an unknown node"}
	}
	if err := validateWorkflowHash(sp, run.WorkflowHash); err != nil {
		return nil, err
	}

	// Fact-returning replay: if this attempt was already recorded, never
	// recompute (spec.md §8.1 property 2/3).
	if rec, ok := run.FindAdvanceRecord(sourceNodeID, attemptID); ok {
		return e.renderFromRecord(ctx, run, sessionID, runID, rec)
	}

	if _, err := gate.WithHealthySessionLock(e.gate, sessionID, func(w *eventlog.Witness) (struct{}, error) {
		return struct{}{}, e.freshAdvance(ctx, w, sessionID, runID, sourceNodeID, attemptID, in.Input)
	}); err != nil {
		return nil, mapGateErr(err)
	}

	log, err = e.events.Load(sessionID)
	if err != nil {
		return nil, mapEventlogErr(err)
	}
	run, err = projection.Project(log, runID)
	if err != nil {
		return nil, newErr(CodeInternal, "project run", err)
	}
	rec, ok := run.FindAdvanceRecord(sourceNodeID, attemptID)
	if !ok {
		return nil, newErr(CodeInternal, "advance_recorded missing immediately after a successful append", nil)
	}
	return e.renderFromRecord(ctx, run, sessionID, runID, rec)
}

// freshAdvance runs inside the gate callback: it re-checks for the
// recorded event under the lock (the race window spec.md §4.5.4 step 1
// names), then computes and appends the attempt's full atomic batch.
func (e *Engine) freshAdvance(
	ctx context.Context,
	w *eventlog.Witness,
	sessionID ids.SessionID,
	runID ids.RunID,
	sourceNodeID ids.NodeID,
	attemptID ids.AttemptID,
	input workflowdef.Input,
) error {
	log, err := e.events.Load(sessionID)
	if err != nil {
		return err
	}
	run, err := projection.Project(log, runID)
	if err != nil {
		return err
	}
	if _, ok := run.FindAdvanceRecord(sourceNodeID, attemptID); ok {
		// Another caller recorded this attempt between our initial read
		// and acquiring the lock; nothing left to append.
		return nil
	}

	sourceNode, ok := run.Node(sourceNodeID)
	if !ok {
		return &Error{Code: CodeTokenUnknownNode, Message: "state token names an unknown node"}
	}
	sourceState, err := e.loadSnapshot(sourceNode.SnapshotRef)
	if err != nil {
		return err
	}
	switch sourceNode.NodeKind {
	case "step":
		if sourceState.Kind != workflowdef.EngineStateRunning {
			return newErr(CodeInternal, "step node does not carry a running engine state", nil)
		}
	case "blocked_attempt":
		if sourceState.Kind != workflowdef.EngineStateBlocked {
			return newErr(CodeInternal, "blocked_attempt node does not carry a blocked engine state", nil)
		}
		if !sourceState.CanRetry() {
			return &Error{Code: CodeTokenScopeMismatch, Message: "terminal block cannot be retried"}
		}
	default:
		return newErr(CodeInternal, "unknown node kind "+sourceNode.NodeKind, nil)
	}

	def, err := e.loadDef(run.WorkflowHash)
	if err != nil {
		return err
	}

	result, err := e.interpreter.Advance(ctx, def, sourceState, input)
	if err != nil {
		e.logger.Error(ctx, "interpreter advance failed", "err", err)
		return stepfail.NewWithCause(string(sourceNodeID), string(attemptID), "interpreter advance failed", err)
	}

	var events []eventlog.PendingEvent
	var pins []eventlog.PendingPin
	outcome := advanceOutcomeData{}

	switch result.NextState.Kind {
	case workflowdef.EngineStateComplete:
		outcome.Kind = "completed"

	case workflowdef.EngineStateRunning:
		toNodeID := ids.NewNodeID()
		snapshotRef, err := e.snapshots.Put(workflowdef.NewExecutionSnapshot(result.NextState))
		if err != nil {
			return err
		}
		intentionalForks, nonTipAdvances := run.ChildEdgeCauseCounts(sourceNodeID)
		cause := forkCause(run.ForwardEdges(sourceNodeID), intentionalForks, nonTipAdvances)
		events = append(events,
			eventlog.PendingEvent{
				Scope:     &eventlog.Scope{RunID: runID, NodeID: toNodeID},
				DedupeKey: dedupeNodeCreated(sessionID, toNodeID),
				Kind:      eventlog.KindNodeCreated,
				Data: mustData(nodeCreatedData{
					NodeKind:     "step",
					ParentNodeID: string(sourceNodeID),
					WorkflowHash: run.WorkflowHash,
					SnapshotRef:  snapshotRef,
				}),
			},
			eventlog.PendingEvent{
				Scope:     &eventlog.Scope{RunID: runID},
				DedupeKey: dedupeEdgeCreated(sessionID, sourceNodeID, toNodeID),
				Kind:      eventlog.KindEdgeCreated,
				Data: mustData(edgeCreatedData{
					EdgeKind: "advance",
					FromNode: string(sourceNodeID),
					ToNode:   string(toNodeID),
					Cause:    cause,
				}),
			},
		)
		pins = append(pins, eventlog.PendingPin{SnapshotRef: snapshotRef, SourceOffset: 0})
		outcome.Kind = "advanced"
		outcome.ToNodeID = string(toNodeID)

	case workflowdef.EngineStateBlocked:
		blocked := result.NextState.Blocked
		if blocked.Kind == workflowdef.BlockedRetryable && blocked.RetryAttemptID == "" {
			blocked.RetryAttemptID = deterministicRetryAttemptID(attemptID)
		}
		toNodeID := ids.NewNodeID()
		snapshotRef, err := e.snapshots.Put(workflowdef.NewExecutionSnapshot(result.NextState))
		if err != nil {
			return err
		}
		intentionalForks, nonTipAdvances := run.ChildEdgeCauseCounts(sourceNodeID)
		cause := forkCause(run.ForwardEdges(sourceNodeID), intentionalForks, nonTipAdvances)
		events = append(events,
			eventlog.PendingEvent{
				Scope:     &eventlog.Scope{RunID: runID, NodeID: toNodeID},
				DedupeKey: dedupeNodeCreated(sessionID, toNodeID),
				Kind:      eventlog.KindNodeCreated,
				Data: mustData(nodeCreatedData{
					NodeKind:     "blocked_attempt",
					ParentNodeID: string(sourceNodeID),
					WorkflowHash: run.WorkflowHash,
					SnapshotRef:  snapshotRef,
				}),
			},
			eventlog.PendingEvent{
				Scope:     &eventlog.Scope{RunID: runID},
				DedupeKey: dedupeEdgeCreated(sessionID, sourceNodeID, toNodeID),
				Kind:      eventlog.KindEdgeCreated,
				Data: mustData(edgeCreatedData{
					EdgeKind: "advance",
					FromNode: string(sourceNodeID),
					ToNode:   string(toNodeID),
					Cause:    cause,
				}),
			},
		)
		pins = append(pins, eventlog.PendingPin{SnapshotRef: snapshotRef, SourceOffset: 0})
		outcome.Kind = "blocked"
		outcome.ToNodeID = string(toNodeID)

	default:
		return newErr(CodeInternal, "interpreter returned an unknown engine state kind", nil)
	}

	events = append(events, normalizeOutputEvents(sessionID, runID, sourceNodeID, attemptID, result.RecapMarkdown, result.Artifacts)...)

	events = append(events, eventlog.PendingEvent{
		Scope:     &eventlog.Scope{RunID: runID, NodeID: sourceNodeID},
		DedupeKey: dedupeAdvanceRecorded(sessionID, sourceNodeID, attemptID),
		Kind:      eventlog.KindAdvanceRecorded,
		Data: mustData(advanceRecordedData{
			AttemptID: string(attemptID),
			Intent:    "advance",
			Outcome:   outcome,
		}),
	})

	if err := e.events.Append(w, eventlog.Batch{Events: events, Pins: pins}); err != nil {
		return err
	}
	e.metrics.IncCounter("workrail.advances_recorded", 1, "outcome", outcome.Kind)
	e.logger.Info(ctx, "advance recorded", "outcome", outcome.Kind)
	return nil
}

// forkCause implements spec.md §4.5.5.
func forkCause(existingEdges []projection.Edge, intentionalForks, nonTipAdvances int) string {
	if len(existingEdges) == 0 {
		return "idempotent_replay"
	}
	if intentionalForks == 0 {
		return "intentional_fork"
	}
	return "non_tip_advance"
}

// deterministicRetryAttemptID derives a retry attempt id as a pure
// function of the source attempt, so independent replays of the same
// blocked attempt produce identical snapshots (spec.md §9).
func deterministicRetryAttemptID(attemptID ids.AttemptID) string {
	return string(attemptID) + "-retry"
}

// normalizeOutputEvents implements spec.md §4.5.4 step 5: recap precedes
// artifacts, artifacts are sorted by sha256, and each output's id is a
// deterministic function of attemptId and index.
func normalizeOutputEvents(sessionID ids.SessionID, runID ids.RunID, sourceNodeID ids.NodeID, attemptID ids.AttemptID, recap string, artifacts []workflowdef.Artifact) []eventlog.PendingEvent {
	sorted := make([]workflowdef.Artifact, len(artifacts))
	copy(sorted, artifacts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Sha256 < sorted[j].Sha256 })

	var out []eventlog.PendingEvent
	index := 0
	if recap != "" {
		outputID := ids.NewOutputID(attemptID, index)
		out = append(out, eventlog.PendingEvent{
			Scope:     &eventlog.Scope{RunID: runID, NodeID: sourceNodeID},
			DedupeKey: dedupeNodeOutputAppended(sessionID, attemptID, index),
			Kind:      eventlog.KindNodeOutputAppended,
			Data: mustData(nodeOutputAppendedData{
				OutputID:      string(outputID),
				Kind:          "recap",
				RecapMarkdown: recap,
			}),
		})
		index++
	}
	for _, a := range sorted {
		outputID := ids.NewOutputID(attemptID, index)
		out = append(out, eventlog.PendingEvent{
			Scope:     &eventlog.Scope{RunID: runID, NodeID: sourceNodeID},
			DedupeKey: dedupeNodeOutputAppended(sessionID, attemptID, index),
			Kind:      eventlog.KindNodeOutputAppended,
			Data: mustData(nodeOutputAppendedData{
				OutputID:    string(outputID),
				Kind:        "artifact",
				Sha256:      a.Sha256,
				ContentType: a.ContentType,
				Content:     a.Content,
			}),
		})
		index++
	}
	return out
}

// renderFromRecord builds the response for an authoritative recorded
// outcome, unifying the first-advance and replay response shapes
// (spec.md §4.5.4 step 7).
func (e *Engine) renderFromRecord(ctx context.Context, run *projection.Run, sessionID ids.SessionID, runID ids.RunID, rec projection.AdvanceRecord) (*Response, error) {
	targetNodeID := rec.NodeID
	var state workflowdef.EngineState

	switch rec.Outcome.Kind {
	case "completed":
		state = workflowdef.NewCompleteState()
	case "advanced", "blocked":
		targetNodeID = rec.Outcome.ToNodeID
		node, ok := run.Node(targetNodeID)
		if !ok {
			return nil, newErr(CodeInternal, "recorded advance target node missing from projection", nil)
		}
		var err error
		state, err = e.loadSnapshot(node.SnapshotRef)
		if err != nil {
			return nil, err
		}
	default:
		return nil, newErr(CodeInternal, "recorded advance names an unknown outcome kind", nil)
	}

	def, err := e.loadDef(run.WorkflowHash)
	if err != nil {
		return nil, err
	}
	return e.renderResponse(ctx, def, sessionID, runID, targetNodeID, run.WorkflowHash, state, ids.NewAttemptID(), run.Preferences())
}
