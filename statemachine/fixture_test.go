package statemachine_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/workrail/engine/eventlog"
	"github.com/workrail/engine/fsx"
	"github.com/workrail/engine/gate"
	"github.com/workrail/engine/keyring"
	"github.com/workrail/engine/snapshot"
	"github.com/workrail/engine/statemachine"
	"github.com/workrail/engine/workflowdef"
)

// fixtureStep is the tiny step-graph shape fixtureProvider/fixtureInterpreter
// share; it is deliberately not part of any production package since the
// engine treats workflow definitions as opaque.
type fixtureStep struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	Prompt              string `json:"prompt"`
	RequireConfirmation bool   `json:"requireConfirmation"`
	Next                string `json:"next"`
	Block               bool   `json:"block"`
	TerminalBlock       bool   `json:"terminalBlock"`
}

type fixtureWorkflow struct {
	Steps []fixtureStep `json:"steps"`
}

func stepGraph(steps ...fixtureStep) json.RawMessage {
	b, err := json.Marshal(fixtureWorkflow{Steps: steps})
	if err != nil {
		panic(err)
	}
	return b
}

type fixtureProvider struct {
	defs map[string]workflowdef.Def
}

func newFixtureProvider(workflowID string, raw json.RawMessage, firstStep string) *fixtureProvider {
	return &fixtureProvider{defs: map[string]workflowdef.Def{
		workflowID: {
			WorkflowID: workflowID,
			SourceKind: "fixture",
			SourceRef:  workflowID,
			FirstStep:  firstStep,
			Raw:        raw,
		},
	}}
}

func (p *fixtureProvider) FetchByID(ctx context.Context, workflowID string) (workflowdef.Def, error) {
	def, ok := p.defs[workflowID]
	if !ok {
		return workflowdef.Def{}, fmt.Errorf("fixture: unknown workflow %q", workflowID)
	}
	return def, nil
}

func findStep(workflow workflowdef.Def, stepID string) (fixtureStep, bool) {
	var w fixtureWorkflow
	if err := json.Unmarshal(workflow.Raw, &w); err != nil {
		return fixtureStep{}, false
	}
	for _, s := range w.Steps {
		if s.ID == stepID {
			return s, true
		}
	}
	return fixtureStep{}, false
}

// fixtureInterpreter advances one step at a time through the linked list
// stepGraph describes. It is a pure function of its arguments, satisfying
// the replay-safety contract workflowdef.Interpreter requires.
type fixtureInterpreter struct{}

func (fixtureInterpreter) Describe(ctx context.Context, workflow workflowdef.Def, stepID string) (workflowdef.Step, error) {
	s, ok := findStep(workflow, stepID)
	if !ok {
		return workflowdef.Step{}, fmt.Errorf("fixture: unknown step %q", stepID)
	}
	return workflowdef.Step{StepID: s.ID, Title: s.Title, Prompt: s.Prompt, RequireConfirmation: s.RequireConfirmation}, nil
}

func (fixtureInterpreter) Advance(ctx context.Context, workflow workflowdef.Def, state workflowdef.EngineState, input workflowdef.Input) (workflowdef.AdvanceResult, error) {
	if state.Kind == workflowdef.EngineStateBlocked {
		// Retrying a retryable block always clears it and moves on to
		// whatever the blocked step's "next" names.
		s, ok := findStep(workflow, state.Blocked.PrimaryReason)
		if !ok {
			return workflowdef.AdvanceResult{}, fmt.Errorf("fixture: unknown blocked step %q", state.Blocked.PrimaryReason)
		}
		if s.Next == "" {
			return workflowdef.AdvanceResult{NextState: workflowdef.NewCompleteState()}, nil
		}
		return workflowdef.AdvanceResult{NextState: workflowdef.NewRunningState(nil, nil, s.Next)}, nil
	}

	s, ok := findStep(workflow, state.Running.Pending)
	if !ok {
		return workflowdef.AdvanceResult{}, fmt.Errorf("fixture: unknown step %q", state.Running.Pending)
	}
	if s.Block {
		kind := workflowdef.BlockedRetryable
		if s.TerminalBlock {
			kind = workflowdef.BlockedTerminal
		}
		return workflowdef.AdvanceResult{
			NextState: workflowdef.NewBlockedState(kind, "", []workflowdef.Blocker{{Code: "fixture_block", Message: "blocked by fixture"}}, s.ID),
		}, nil
	}
	if s.Next == "" {
		return workflowdef.AdvanceResult{NextState: workflowdef.NewCompleteState(), RecapMarkdown: "done"}, nil
	}
	return workflowdef.AdvanceResult{NextState: workflowdef.NewRunningState([]string{s.ID}, nil, s.Next), RecapMarkdown: "advanced past " + s.ID}, nil
}

func newTestEngine(t *testing.T, workflowID string, raw json.RawMessage, firstStep string) *statemachine.Engine {
	t.Helper()
	fs := fsx.New()
	dataDir := fsx.DataDir{Root: t.TempDir()}
	require.NoError(t, dataDir.EnsureLayout(fs))

	events := eventlog.New(fs, dataDir)
	snapshots := snapshot.New(fs, dataDir.SnapshotsRoot())
	pinnedCAS := snapshot.New(fs, dataDir.PinnedWorkflowsRoot())
	pinned, err := workflowdef.NewPinnedWorkflowStore(pinnedCAS, nil)
	require.NoError(t, err)
	kr, err := keyring.Load(fs, dataDir.KeyringPath())
	require.NoError(t, err)
	g := gate.New(fs, dataDir, events, time.Minute, "test-owner")

	return statemachine.New(statemachine.Config{
		FS:          fs,
		DataDir:     dataDir,
		Gate:        g,
		Events:      events,
		Snapshots:   snapshots,
		Pinned:      pinned,
		Keyring:     kr,
		Provider:    newFixtureProvider(workflowID, raw, firstStep),
		Interpreter: fixtureInterpreter{},
	})
}
