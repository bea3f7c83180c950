package statemachine

import (
	"encoding/json"
	"fmt"

	"github.com/workrail/engine/canon"
	"github.com/workrail/engine/ids"
)

// The structs below are the encode-side mirror of projection's decode
// structs; their json tags must stay byte-for-byte in sync with
// projection.go since both read and write the same event kinds.

type runStartedData struct {
	WorkflowID   string `json:"workflowId"`
	WorkflowHash string `json:"workflowHash"`
}

type nodeCreatedData struct {
	NodeKind     string `json:"nodeKind"`
	ParentNodeID string `json:"parentNodeId,omitempty"`
	WorkflowHash string `json:"workflowHash"`
	SnapshotRef  string `json:"snapshotRef,omitempty"`
}

type edgeCreatedData struct {
	EdgeKind string `json:"edgeKind"`
	FromNode string `json:"fromNodeId"`
	ToNode   string `json:"toNodeId"`
	Cause    string `json:"cause"`
}

type advanceOutcomeData struct {
	Kind     string `json:"kind"`
	ToNodeID string `json:"toNodeId,omitempty"`
}

type advanceRecordedData struct {
	AttemptID string             `json:"attemptId"`
	Intent    string             `json:"intent"`
	Outcome   advanceOutcomeData `json:"outcome"`
}

type nodeOutputAppendedData struct {
	OutputID      string `json:"outputId"`
	Kind          string `json:"kind"` // recap | artifact
	RecapMarkdown string `json:"recapMarkdown,omitempty"`
	Sha256        string `json:"sha256,omitempty"`
	ContentType   string `json:"contentType,omitempty"`
	Content       []byte `json:"content,omitempty"`
}

func mustData(v any) json.RawMessage {
	b, err := canon.Marshal(v)
	if err != nil {
		// v is always one of this file's plain structs; canon.Marshal only
		// fails on unsupported types or map-shaped values anywhere in the
		// field tree, neither of which these structs carry.
		panic(fmt.Sprintf("statemachine: marshal event data: %v", err))
	}
	return json.RawMessage(b)
}

func dedupeSessionCreated(sessionID ids.SessionID) string {
	return "session_created:" + string(sessionID)
}

func dedupeRunStarted(sessionID ids.SessionID, runID ids.RunID) string {
	return fmt.Sprintf("run_started:%s:%s", sessionID, runID)
}

func dedupeNodeCreated(sessionID ids.SessionID, nodeID ids.NodeID) string {
	return fmt.Sprintf("node_created:%s:%s", sessionID, nodeID)
}

func dedupeEdgeCreated(sessionID ids.SessionID, from, to ids.NodeID) string {
	return fmt.Sprintf("edge_created:%s:%s:%s", sessionID, from, to)
}

func dedupeNodeOutputAppended(sessionID ids.SessionID, attemptID ids.AttemptID, index int) string {
	return fmt.Sprintf("node_output_appended:%s:%s:%d", sessionID, attemptID, index)
}

// dedupeAdvanceRecorded is the load-bearing idempotency key spec.md §4.5.4
// names explicitly; its formula is part of the public contract.
func dedupeAdvanceRecorded(sessionID ids.SessionID, nodeID ids.NodeID, attemptID ids.AttemptID) string {
	return fmt.Sprintf("advance_recorded:%s:%s:%s", sessionID, nodeID, attemptID)
}
