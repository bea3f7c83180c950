// Package ids mints and type-checks the opaque identifiers that name
// sessions, runs, nodes, attempts, events, and workflow content digests.
//
// Every identifier kind is a distinct Go type so that mixing kinds (passing
// a NodeID where an AttemptID is expected) is a compile-time error rather
// than a runtime one. Values are minted from a cryptographic RNG
// (google/uuid's v4 generator, or ULID for EventID) and are safe to embed in
// file paths: they never contain ':' or '/'.
package ids

import (
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

type (
	// SessionID identifies a conversational thread and its event log.
	SessionID string

	// RunID identifies a single top-level execution of a workflow within a session.
	RunID string

	// NodeID identifies a materialized point in a run's DAG.
	NodeID string

	// AttemptID identifies a specific try at advancing from a node.
	AttemptID string

	// EventID identifies a single durable event. EventIDs are minted from a
	// ULID source so that, independent of the assigned eventIndex, the ID
	// itself sorts lexically in roughly chronological order — useful for
	// log shipping and debugging without being load-bearing for ordering
	// (eventIndex is authoritative for ordering, per spec.md §3.2).
	EventID string

	// WorkflowHash is the canonical digest of a pinned workflow definition,
	// always of the form "sha256:<64 hex>".
	WorkflowHash string

	// WorkflowHashRef is a short, deterministic function of WorkflowHash used
	// inside tokens to bound their encoded size.
	WorkflowHashRef string

	// OutputID identifies a single node output (recap or artifact) within an attempt.
	OutputID string
)

// delimiters that must never appear inside a minted identifier, since
// identifiers are embedded in file paths and dedupe-key strings that use
// ':' and '/' as field separators.
const forbiddenChars = ":/"

// NewSessionID mints a new random SessionID.
func NewSessionID() SessionID { return SessionID(mintUUID()) }

// NewRunID mints a new random RunID.
func NewRunID() RunID { return RunID(mintUUID()) }

// NewNodeID mints a new random NodeID.
func NewNodeID() NodeID { return NodeID(mintUUID()) }

// NewAttemptID mints a new random AttemptID.
func NewAttemptID() AttemptID { return AttemptID(mintUUID()) }

// eventIDEntropy is the process-wide monotonic ULID entropy source shared
// by every NewEventID call; eventIDMu serializes access to it.
var (
	eventIDMu      sync.Mutex
	eventIDEntropy = ulid.Monotonic(rand.Reader, 0)
)

// NewEventID mints a new monotonic EventID for the current instant. Callers
// appending multiple events in a single batch should call this once per
// event; the ULID entropy source guarantees distinct, ascending values even
// when called repeatedly within the same millisecond.
func NewEventID() EventID {
	eventIDMu.Lock()
	defer eventIDMu.Unlock()
	ms := ulid.Timestamp(time.Now())
	id, err := ulid.New(ms, eventIDEntropy)
	if err != nil {
		// crypto/rand.Reader does not fail in practice; fall back to a
		// plain UUID rather than panic if it ever does.
		return EventID(mintUUID())
	}
	return EventID(strings.ToLower(id.String()))
}

// NewOutputID derives a deterministic output identifier from an attempt and
// an index so that replays of the same attempt mint the same output IDs.
func NewOutputID(attempt AttemptID, index int) OutputID {
	return OutputID(fmt.Sprintf("%s-out-%d", attempt, index))
}

// WorkflowHashRefOf derives the short token-bearing ref from a full
// workflowHash ("sha256:<64 hex>") by taking its first 16 hex characters.
// It is deterministic so two nodes pinned to the same workflowHash always
// carry the same ref, and short enough to keep tokens small.
func WorkflowHashRefOf(hash WorkflowHash) WorkflowHashRef {
	const prefix = "sha256:"
	s := string(hash)
	if strings.HasPrefix(s, prefix) {
		s = s[len(prefix):]
	}
	if len(s) > 16 {
		s = s[:16]
	}
	return WorkflowHashRef(s)
}

func mintUUID() string {
	return uuid.NewString()
}

// Valid reports whether s is non-empty and free of path/dedupe-key
// delimiter characters. Every minted identifier satisfies Valid; it exists
// so that identifiers arriving from outside the process (for example,
// decoded from a token) can be checked before use.
func Valid(s string) bool {
	if s == "" {
		return false
	}
	return !strings.ContainsAny(s, forbiddenChars)
}
