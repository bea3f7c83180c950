package projection_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/workrail/engine/eventlog"
	"github.com/workrail/engine/ids"
	"github.com/workrail/engine/projection"
)

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestProjectReconstructsSingleNodeRun(t *testing.T) {
	runID := ids.NewRunID()
	nodeID := ids.NewNodeID()

	log := &eventlog.Log{Events: []eventlog.Event{
		{EventIndex: 0, EventID: ids.NewEventID(), Kind: eventlog.KindRunStarted, Scope: &eventlog.Scope{RunID: runID},
			Data: mustJSON(t, map[string]string{"workflowId": "wf-1", "workflowHash": "sha256:aa"})},
		{EventIndex: 1, EventID: ids.NewEventID(), Kind: eventlog.KindNodeCreated, Scope: &eventlog.Scope{RunID: runID, NodeID: nodeID},
			Data: mustJSON(t, map[string]string{"nodeKind": "step", "workflowHash": "sha256:aa", "snapshotRef": "sha256:bb"})},
	}}

	run, err := projection.Project(log, runID)
	require.NoError(t, err)
	require.Equal(t, "wf-1", run.WorkflowID)
	node, ok := run.Node(nodeID)
	require.True(t, ok)
	require.Equal(t, "step", node.NodeKind)
	require.ElementsMatch(t, []ids.NodeID{nodeID}, run.Tips())
}

func TestForkProducesMultipleTipsAndCauseCounts(t *testing.T) {
	runID := ids.NewRunID()
	source := ids.NewNodeID()
	child1 := ids.NewNodeID()
	child2 := ids.NewNodeID()
	child3 := ids.NewNodeID()

	log := &eventlog.Log{Events: []eventlog.Event{
		{EventIndex: 0, Kind: eventlog.KindNodeCreated, Scope: &eventlog.Scope{RunID: runID, NodeID: source},
			Data: mustJSON(t, map[string]string{"nodeKind": "step"})},
		{EventIndex: 1, Kind: eventlog.KindNodeCreated, Scope: &eventlog.Scope{RunID: runID, NodeID: child1},
			Data: mustJSON(t, map[string]string{"nodeKind": "step", "parentNodeId": string(source)})},
		{EventIndex: 2, Kind: eventlog.KindEdgeCreated, Scope: &eventlog.Scope{RunID: runID},
			Data: mustJSON(t, map[string]string{"fromNodeId": string(source), "toNodeId": string(child1), "cause": "idempotent_replay"})},
		{EventIndex: 3, Kind: eventlog.KindNodeCreated, Scope: &eventlog.Scope{RunID: runID, NodeID: child2},
			Data: mustJSON(t, map[string]string{"nodeKind": "step", "parentNodeId": string(source)})},
		{EventIndex: 4, Kind: eventlog.KindEdgeCreated, Scope: &eventlog.Scope{RunID: runID},
			Data: mustJSON(t, map[string]string{"fromNodeId": string(source), "toNodeId": string(child2), "cause": "intentional_fork"})},
		{EventIndex: 5, Kind: eventlog.KindNodeCreated, Scope: &eventlog.Scope{RunID: runID, NodeID: child3},
			Data: mustJSON(t, map[string]string{"nodeKind": "step", "parentNodeId": string(source)})},
		{EventIndex: 6, Kind: eventlog.KindEdgeCreated, Scope: &eventlog.Scope{RunID: runID},
			Data: mustJSON(t, map[string]string{"fromNodeId": string(source), "toNodeId": string(child3), "cause": "non_tip_advance"})},
	}}

	run, err := projection.Project(log, runID)
	require.NoError(t, err)
	tips := run.Tips()
	require.ElementsMatch(t, []ids.NodeID{child1, child2, child3}, tips)

	forks, nonTips := run.ChildEdgeCauseCounts(source)
	require.Equal(t, 1, forks)
	require.Equal(t, 1, nonTips)
}

func TestPreferencesResolvesMostRecentEventIndex(t *testing.T) {
	runID := ids.NewRunID()
	log := &eventlog.Log{Events: []eventlog.Event{
		{EventIndex: 0, Kind: eventlog.KindPreferenceSet, Scope: &eventlog.Scope{RunID: runID},
			Data: mustJSON(t, map[string]string{"autonomy": "autonomous", "riskPolicy": "standard"})},
		{EventIndex: 1, Kind: eventlog.KindPreferenceSet, Scope: &eventlog.Scope{RunID: runID},
			Data: mustJSON(t, map[string]string{"autonomy": "supervised", "riskPolicy": "conservative"})},
	}}

	run, err := projection.Project(log, runID)
	require.NoError(t, err)
	prefs := run.Preferences()
	require.Equal(t, "supervised", prefs.Autonomy)
	require.Equal(t, "conservative", prefs.RiskPolicy)
}

func TestPreferencesDefaultsWhenNeverSet(t *testing.T) {
	runID := ids.NewRunID()
	log := &eventlog.Log{}
	run, err := projection.Project(log, runID)
	require.NoError(t, err)
	require.Equal(t, projection.DefaultPreferences, run.Preferences())
}

func TestFindAdvanceRecordReturnsAuthoritativeOutcome(t *testing.T) {
	runID := ids.NewRunID()
	nodeID := ids.NewNodeID()
	log := &eventlog.Log{Events: []eventlog.Event{
		{EventIndex: 0, Kind: eventlog.KindAdvanceRecorded, Scope: &eventlog.Scope{RunID: runID, NodeID: nodeID},
			Data: mustJSON(t, map[string]any{"attemptId": "att-1", "intent": "advance", "outcome": map[string]string{"kind": "completed"}})},
	}}
	run, err := projection.Project(log, runID)
	require.NoError(t, err)
	rec, ok := run.FindAdvanceRecord(nodeID, "att-1")
	require.True(t, ok)
	require.Equal(t, "completed", rec.Outcome.Kind)
}
