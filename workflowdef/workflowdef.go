// Package workflowdef names the two out-of-core collaborators spec.md §1
// treats as external (the workflow source loader and the workflow
// interpreter), the engine-state sum type those collaborators exchange
// with the state machine, and the content-addressed store that pins a
// workflow definition for the lifetime of a run.
package workflowdef

import (
	"context"
	"encoding/json"
)

// Def is an opaque, already-validated workflow definition as returned by
// a WorkflowProvider. The state machine never interprets its contents; it
// only hashes, pins, and forwards it to Advance.
type Def struct {
	WorkflowID string          `json:"workflowId"`
	SourceKind string          `json:"sourceKind"`
	SourceRef  string          `json:"sourceRef"`
	FirstStep  string          `json:"firstStepId"`
	Raw        json.RawMessage `json:"raw"`
}

// Provider resolves a workflowId to its compiled definition. Production
// implementations (filesystem, git, HTTP registry, plugin loaders) live
// outside the core; spec.md §1 names this contract as their only
// interface with the engine.
type Provider interface {
	FetchByID(ctx context.Context, workflowID string) (Def, error)
}

// Step is the caller-facing description of the step an engine state is
// currently pending on.
type Step struct {
	StepID               string `json:"stepId"`
	Title                string `json:"title"`
	Prompt               string `json:"prompt"`
	RequireConfirmation  bool   `json:"requireConfirmation"`
}

// Blocker names one reason an advance attempt could not proceed.
type Blocker struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Artifact is a durable output of an advance attempt, ordered by Sha256
// per spec.md §4.5.4 step 5 before being appended to the event log.
type Artifact struct {
	Sha256      string `json:"sha256"`
	ContentType string `json:"contentType"`
	Content     []byte `json:"content"`
}

// Input is whatever the caller supplies to an advance attempt; its shape
// is interpreter-defined, so the core treats it as an opaque payload.
type Input = json.RawMessage

// AdvanceResult is the interpreter's verdict for a single advance
// attempt (spec.md §4.5.4 step 3).
type AdvanceResult struct {
	NextState     EngineState
	RecapMarkdown string
	Artifacts     []Artifact
	Blockers      []Blocker
}

// Interpreter is the pure, out-of-core collaborator that computes the
// next engine state. It must be a referentially transparent function of
// its three inputs: two independent invocations with identical arguments
// must produce identical results, since the state machine's replay path
// depends on never needing to invoke it twice for the same attempt.
type Interpreter interface {
	Advance(ctx context.Context, workflow Def, state EngineState, input Input) (AdvanceResult, error)

	// Describe renders the caller-facing metadata for stepID without
	// advancing anything. The state machine calls this whenever it needs
	// to render a pending step (start_workflow, rehydrate, replay) since
	// Def is otherwise opaque to it.
	Describe(ctx context.Context, workflow Def, stepID string) (Step, error)
}
