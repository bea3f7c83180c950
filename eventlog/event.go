// Package eventlog implements the per-session append-only event log: a
// segmented JSONL store with a separate manifest of attestations
// (spec.md §3.2, §3.3, §4.3). It is the durable source of truth every
// other component reconstructs its view of a session from.
package eventlog

import (
	"encoding/json"

	"github.com/workrail/engine/ids"
)

// Kind is the closed set of event kinds a session's log may contain.
type Kind string

const (
	KindSessionCreated     Kind = "session_created"
	KindRunStarted         Kind = "run_started"
	KindNodeCreated        Kind = "node_created"
	KindEdgeCreated        Kind = "edge_created"
	KindNodeOutputAppended Kind = "node_output_appended"
	KindAdvanceRecorded    Kind = "advance_recorded"
	KindPreferenceSet      Kind = "preference_set"
)

// Scope narrows an event to a run and, optionally, a node within it.
type Scope struct {
	RunID  ids.RunID  `json:"runId"`
	NodeID ids.NodeID `json:"nodeId,omitempty"`
}

// Event is a single immutable, durable log entry (spec.md §3.2). Data
// carries the kind-specific payload; eventlog itself never interprets it
// beyond the generic snapshotRef cross-check Load performs for the
// pin-after-close invariant.
type Event struct {
	V          int             `json:"v"`
	EventIndex int64           `json:"eventIndex"`
	EventID    ids.EventID     `json:"eventId"`
	SessionID  ids.SessionID   `json:"sessionId"`
	Scope      *Scope          `json:"scope,omitempty"`
	DedupeKey  string          `json:"dedupeKey"`
	Kind       Kind            `json:"kind"`
	Data       json.RawMessage `json:"data"`
}

// snapshotRefCarrier extracts the optional snapshotRef field common to
// node_created payloads, without the store needing to know the full
// kind-specific schema.
type snapshotRefCarrier struct {
	SnapshotRef string `json:"snapshotRef,omitempty"`
}

func (e Event) carriedSnapshotRef() string {
	var c snapshotRefCarrier
	if len(e.Data) == 0 {
		return ""
	}
	if err := json.Unmarshal(e.Data, &c); err != nil {
		return ""
	}
	return c.SnapshotRef
}

// PendingEvent is an event awaiting eventIndex/eventId assignment by the
// store at Append time.
type PendingEvent struct {
	Scope     *Scope
	DedupeKey string
	Kind      Kind
	Data      json.RawMessage
}

// PendingPin names a snapshot that must become durably pinned in the same
// atomic batch that creates the event referencing it. SourceOffset is the
// index of the referencing event within Batch.Events.
type PendingPin struct {
	SnapshotRef  string
	SourceOffset int
}

// Batch is the unit of atomic commitment Append accepts: either all of it
// lands durably (modulo already-applied, deduped members) or none of it
// does.
type Batch struct {
	Events []PendingEvent
	Pins   []PendingPin
}

// SnapshotPinRecord is a durable manifest attestation that a snapshot ref
// produced by a specific event is part of the durable record.
type SnapshotPinRecord struct {
	SnapshotRef      string      `json:"snapshotRef"`
	EventIndex       int64       `json:"eventIndex"`
	CreatedByEventID ids.EventID `json:"createdByEventId"`
}

// Log is the fully materialized, verified result of Load.
type Log struct {
	Events []Event
	Pins   []SnapshotPinRecord
}

// EventsInScope returns events whose Scope.RunID matches runID, in
// eventIndex order (Events is already eventIndex-ordered).
func (l *Log) EventsInScope(runID ids.RunID) []Event {
	var out []Event
	for _, e := range l.Events {
		if e.Scope != nil && e.Scope.RunID == runID {
			out = append(out, e)
		}
	}
	return out
}

// DedupeKeyExists reports whether dedupeKey is already present in the log
// and, if so, the event it belongs to.
func (l *Log) DedupeKeyExists(dedupeKey string) (Event, bool) {
	for _, e := range l.Events {
		if e.DedupeKey == dedupeKey {
			return e, true
		}
	}
	return Event{}, false
}

// Page is one page of a cursor-paginated event listing, for external
// dashboard/heartbeat tooling that wants to tail a session without
// re-reading the whole log on every poll.
type Page struct {
	Events     []Event
	NextCursor string
}
