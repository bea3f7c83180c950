// Package projection implements the pure, read-only functions that
// reconstruct a run's DAG, tip set, and preferences from the durable
// event log (spec.md §3.6, §4.5, §9 "no cyclic graphs"). Nothing here
// performs I/O or mutates anything; every function is a total function
// of the events handed to it, which is what lets replay and resume share
// the same code path.
package projection

import (
	"encoding/json"
	"fmt"

	"github.com/workrail/engine/eventlog"
	"github.com/workrail/engine/ids"
)

// Node is a materialized point in a run's DAG.
type Node struct {
	NodeID       ids.NodeID
	NodeKind     string // "step" | "blocked_attempt"
	ParentNodeID ids.NodeID
	WorkflowHash string
	SnapshotRef  string
	EventIndex   int64
}

// Edge is a directed parent->child link, carrying the cause spec.md
// §4.5.5 uses to classify forks.
type Edge struct {
	FromNodeID ids.NodeID
	ToNodeID   ids.NodeID
	EdgeKind   string
	Cause      string // idempotent_replay | intentional_fork | non_tip_advance
}

// AdvanceOutcome is the resolved result of a recorded advance attempt.
type AdvanceOutcome struct {
	Kind     string // advanced | blocked | completed | unchanged
	ToNodeID ids.NodeID
}

// AdvanceRecord is a materialized advance_recorded event.
type AdvanceRecord struct {
	NodeID    ids.NodeID
	AttemptID ids.AttemptID
	Intent    string
	Outcome   AdvanceOutcome
	EventID   ids.EventID
}

// Preferences is a node's resolved autonomy/risk configuration.
type Preferences struct {
	Autonomy   string
	RiskPolicy string
}

// DefaultPreferences is what a run starts with before any preference_set
// event narrows it.
var DefaultPreferences = Preferences{Autonomy: "supervised", RiskPolicy: "standard"}

// Run is the reconstructed view of one run within a session.
type Run struct {
	RunID        ids.RunID
	WorkflowID   string
	WorkflowHash string
	Nodes        map[ids.NodeID]Node
	nodeOrder    []ids.NodeID
	forward      map[ids.NodeID][]Edge
	advances     map[string]AdvanceRecord // keyed by "nodeId:attemptId"
	preferences  []preferenceEntry
}

type preferenceEntry struct {
	eventIndex int64
	nodeID     ids.NodeID
	prefs      Preferences
}

type runStartedData struct {
	WorkflowID   string `json:"workflowId"`
	WorkflowHash string `json:"workflowHash"`
}

type nodeCreatedData struct {
	NodeKind     string `json:"nodeKind"`
	ParentNodeID string `json:"parentNodeId"`
	WorkflowHash string `json:"workflowHash"`
	SnapshotRef  string `json:"snapshotRef"`
}

type edgeCreatedData struct {
	EdgeKind string `json:"edgeKind"`
	FromNode string `json:"fromNodeId"`
	ToNode   string `json:"toNodeId"`
	Cause    string `json:"cause"`
}

type advanceRecordedData struct {
	AttemptID string `json:"attemptId"`
	Intent    string `json:"intent"`
	Outcome   struct {
		Kind     string `json:"kind"`
		ToNodeID string `json:"toNodeId"`
	} `json:"outcome"`
}

type preferenceSetData struct {
	Autonomy   string `json:"autonomy"`
	RiskPolicy string `json:"riskPolicy"`
}

// Project reconstructs the Run for runID from log. It is the single
// place that interprets event Data payloads; everything downstream of it
// operates on typed Go values.
func Project(log *eventlog.Log, runID ids.RunID) (*Run, error) {
	r := &Run{
		RunID:   runID,
		Nodes:   make(map[ids.NodeID]Node),
		forward: make(map[ids.NodeID][]Edge),
		advances: make(map[string]AdvanceRecord),
	}

	for _, e := range log.EventsInScope(runID) {
		switch e.Kind {
		case eventlog.KindRunStarted:
			var d runStartedData
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return nil, fmt.Errorf("projection: decode run_started: %w", err)
			}
			r.WorkflowID = d.WorkflowID
			r.WorkflowHash = d.WorkflowHash

		case eventlog.KindNodeCreated:
			var d nodeCreatedData
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return nil, fmt.Errorf("projection: decode node_created: %w", err)
			}
			if e.Scope == nil || e.Scope.NodeID == "" {
				return nil, fmt.Errorf("projection: node_created event %s missing scope.nodeId", e.EventID)
			}
			nodeID := e.Scope.NodeID
			r.Nodes[nodeID] = Node{
				NodeID:       nodeID,
				NodeKind:     d.NodeKind,
				ParentNodeID: ids.NodeID(d.ParentNodeID),
				WorkflowHash: d.WorkflowHash,
				SnapshotRef:  d.SnapshotRef,
				EventIndex:   e.EventIndex,
			}
			r.nodeOrder = append(r.nodeOrder, nodeID)

		case eventlog.KindEdgeCreated:
			var d edgeCreatedData
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return nil, fmt.Errorf("projection: decode edge_created: %w", err)
			}
			edge := Edge{
				FromNodeID: ids.NodeID(d.FromNode),
				ToNodeID:   ids.NodeID(d.ToNode),
				EdgeKind:   d.EdgeKind,
				Cause:      d.Cause,
			}
			r.forward[edge.FromNodeID] = append(r.forward[edge.FromNodeID], edge)

		case eventlog.KindAdvanceRecorded:
			var d advanceRecordedData
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return nil, fmt.Errorf("projection: decode advance_recorded: %w", err)
			}
			if e.Scope == nil || e.Scope.NodeID == "" {
				return nil, fmt.Errorf("projection: advance_recorded event %s missing scope.nodeId", e.EventID)
			}
			rec := AdvanceRecord{
				NodeID:    e.Scope.NodeID,
				AttemptID: ids.AttemptID(d.AttemptID),
				Intent:    d.Intent,
				Outcome: AdvanceOutcome{
					Kind:     d.Outcome.Kind,
					ToNodeID: ids.NodeID(d.Outcome.ToNodeID),
				},
				EventID: e.EventID,
			}
			r.advances[advanceKey(rec.NodeID, rec.AttemptID)] = rec

		case eventlog.KindPreferenceSet:
			var d preferenceSetData
			if err := json.Unmarshal(e.Data, &d); err != nil {
				return nil, fmt.Errorf("projection: decode preference_set: %w", err)
			}
			var nodeID ids.NodeID
			if e.Scope != nil {
				nodeID = e.Scope.NodeID
			}
			r.preferences = append(r.preferences, preferenceEntry{
				eventIndex: e.EventIndex,
				nodeID:     nodeID,
				prefs:      Preferences{Autonomy: d.Autonomy, RiskPolicy: d.RiskPolicy},
			})
		}
	}

	return r, nil
}

func advanceKey(nodeID ids.NodeID, attemptID ids.AttemptID) string {
	return string(nodeID) + ":" + string(attemptID)
}

// FindAdvanceRecord returns the recorded outcome for (nodeID, attemptId)
// if one exists. Per spec.md §4.5.4, once this exists it is authoritative
// and must never be recomputed.
func (r *Run) FindAdvanceRecord(nodeID ids.NodeID, attemptID ids.AttemptID) (AdvanceRecord, bool) {
	rec, ok := r.advances[advanceKey(nodeID, attemptID)]
	return rec, ok
}

// Node looks up a materialized node by id.
func (r *Run) Node(nodeID ids.NodeID) (Node, bool) {
	n, ok := r.Nodes[nodeID]
	return n, ok
}

// ForwardEdges returns the edges leaving nodeID, in the order they were
// appended.
func (r *Run) ForwardEdges(nodeID ids.NodeID) []Edge {
	return r.forward[nodeID]
}

// Tips returns every node with no outgoing edge, the current frontier of
// the run's DAG (spec.md §3.6).
func (r *Run) Tips() []ids.NodeID {
	var tips []ids.NodeID
	for _, nodeID := range r.nodeOrder {
		if len(r.forward[nodeID]) == 0 {
			tips = append(tips, nodeID)
		}
	}
	return tips
}

// Preferences resolves the most recently set preferences, falling back to
// DefaultPreferences if none were ever set. Preferences are run-scoped: the most recent preference_set event
// anywhere in the run applies, regardless of which node set it.
func (r *Run) Preferences() Preferences {
	if len(r.preferences) == 0 {
		return DefaultPreferences
	}
	latest := r.preferences[0]
	for _, p := range r.preferences[1:] {
		if p.eventIndex > latest.eventIndex {
			latest = p
		}
	}
	return latest.prefs
}

// ChildEdgeCauseCounts tallies, for a given source node, how many of its
// outgoing edges already carry each fork-related cause. Fork detection
// (spec.md §4.5.5) uses this to decide whether the next new child gets
// intentional_fork or non_tip_advance.
func (r *Run) ChildEdgeCauseCounts(sourceNodeID ids.NodeID) (intentionalForks, nonTipAdvances int) {
	for _, e := range r.forward[sourceNodeID] {
		switch e.Cause {
		case "intentional_fork":
			intentionalForks++
		case "non_tip_advance":
			nonTipAdvances++
		}
	}
	return
}
