package workflowdef

import (
	"encoding/json"
	"fmt"

	"github.com/workrail/engine/canon"
)

// ExecutionSnapshotV1 is the CAS payload shape for an engine state
// (spec.md §3.4). It is what snapshot.Store.Put/Get actually
// canonicalizes and digests; EngineState itself is never stored bare so
// the schema can evolve independently of the in-memory representation.
type ExecutionSnapshotV1 struct {
	V             int           `json:"v"`
	Kind          string        `json:"kind"`
	EnginePayload EnginePayload `json:"enginePayload"`
}

// EnginePayload wraps EngineState with its own schema version so the two
// can be bumped independently of the envelope's.
type EnginePayload struct {
	V           int         `json:"v"`
	EngineState EngineState `json:"engineState"`
}

// NewExecutionSnapshot wraps state in the envelope spec.md §3.4 names
// execution_snapshot_v1.
func NewExecutionSnapshot(state EngineState) ExecutionSnapshotV1 {
	return ExecutionSnapshotV1{
		V:    1,
		Kind: "execution_snapshot",
		EnginePayload: EnginePayload{
			V:           1,
			EngineState: state,
		},
	}
}

// PinnedWorkflowV1 is the CAS payload shape for a pinned workflow
// definition (spec.md §3.4): the full definition plus its source
// identification, frozen for the life of the run that pinned it.
//
// Raw holds the definition's body as a pre-canonicalized json.RawMessage
// rather than a decoded any: it is a []byte under the hood (reflect kind
// Slice, not Map), so it carries canon.Marshal's map-rejection on the
// envelope itself without reintroducing the nondeterminism that
// rejection guards against — the canonicalization happened once, up
// front, via canon.CanonicalizeForeign.
type PinnedWorkflowV1 struct {
	V          int             `json:"v"`
	Kind       string          `json:"kind"`
	WorkflowID string          `json:"workflowId"`
	SourceKind string          `json:"sourceKind"`
	SourceRef  string          `json:"sourceRef"`
	FirstStep  string          `json:"firstStepId"`
	Raw        json.RawMessage `json:"raw"`
}

// NewPinnedWorkflow wraps def in the envelope spec.md §3.4 names
// pinned_workflow_v1. rawJSON is the definition's raw body as loaded from
// its source (def.Raw); it is canonicalized here, once, via
// canon.CanonicalizeForeign, so the envelope always digests to the same
// ref regardless of the source loader's incidental byte layout (key
// order, whitespace) for two equivalent definitions.
func NewPinnedWorkflow(def Def, rawJSON []byte) (PinnedWorkflowV1, error) {
	canonRaw, err := canon.CanonicalizeForeign(rawJSON)
	if err != nil {
		return PinnedWorkflowV1{}, fmt.Errorf("workflowdef: canonicalize raw definition: %w", err)
	}
	return PinnedWorkflowV1{
		V:          1,
		Kind:       "pinned_workflow",
		WorkflowID: def.WorkflowID,
		SourceKind: def.SourceKind,
		SourceRef:  def.SourceRef,
		FirstStep:  def.FirstStep,
		Raw:        canonRaw,
	}, nil
}
