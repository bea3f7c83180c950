// Package linearinterp implements workflowdef.Interpreter for the step
// graph yamlprovider.Provider decodes: a linked list of steps, each
// optionally blocking (retryably or terminally) before naming its
// successor.
package linearinterp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/workrail/engine/workflowdef"
)

type stepGraph struct {
	FirstStep string `json:"firstStep"`
	Steps     []step `json:"steps"`
}

type step struct {
	ID                  string `json:"id"`
	Title               string `json:"title"`
	Prompt              string `json:"prompt"`
	RequireConfirmation bool   `json:"requireConfirmation"`
	Next                string `json:"next"`
	Block               bool   `json:"block"`
	TerminalBlock       bool   `json:"terminalBlock"`
}

func findStep(workflow workflowdef.Def, stepID string) (step, error) {
	var g stepGraph
	if err := json.Unmarshal(workflow.Raw, &g); err != nil {
		return step{}, fmt.Errorf("linearinterp: decode %s: %w", workflow.WorkflowID, err)
	}
	for _, s := range g.Steps {
		if s.ID == stepID {
			return s, nil
		}
	}
	return step{}, fmt.Errorf("linearinterp: %s: unknown step %q", workflow.WorkflowID, stepID)
}

// Interpreter is a referentially transparent function of its arguments,
// as workflowdef.Interpreter requires: it reads nothing but workflow and
// state, and its result depends on nothing else.
type Interpreter struct{}

// Describe renders a step's caller-facing metadata without advancing.
func (Interpreter) Describe(ctx context.Context, workflow workflowdef.Def, stepID string) (workflowdef.Step, error) {
	s, err := findStep(workflow, stepID)
	if err != nil {
		return workflowdef.Step{}, err
	}
	return workflowdef.Step{
		StepID:              s.ID,
		Title:               s.Title,
		Prompt:              s.Prompt,
		RequireConfirmation: s.RequireConfirmation,
	}, nil
}

// Advance computes the next engine state for one step of the graph: a
// blocked state moves on to the blocked step's Next (or completes if it has
// none), and a running step moves to its Next. input is not consulted.
func (Interpreter) Advance(ctx context.Context, workflow workflowdef.Def, state workflowdef.EngineState, input workflowdef.Input) (workflowdef.AdvanceResult, error) {
	if state.Kind == workflowdef.EngineStateBlocked {
		s, err := findStep(workflow, state.Blocked.PrimaryReason)
		if err != nil {
			return workflowdef.AdvanceResult{}, err
		}
		if s.Next == "" {
			return workflowdef.AdvanceResult{NextState: workflowdef.NewCompleteState(), RecapMarkdown: "retried past " + s.ID}, nil
		}
		return workflowdef.AdvanceResult{
			NextState:     workflowdef.NewRunningState(nil, nil, s.Next),
			RecapMarkdown: "retried past " + s.ID,
		}, nil
	}

	s, err := findStep(workflow, state.Running.Pending)
	if err != nil {
		return workflowdef.AdvanceResult{}, err
	}
	if s.Block {
		kind := workflowdef.BlockedRetryable
		if s.TerminalBlock {
			kind = workflowdef.BlockedTerminal
		}
		return workflowdef.AdvanceResult{
			NextState: workflowdef.NewBlockedState(kind, "", []workflowdef.Blocker{
				{Code: "linearinterp_block", Message: "step " + s.ID + " requires external confirmation"},
			}, s.ID),
		}, nil
	}
	if s.Next == "" {
		return workflowdef.AdvanceResult{NextState: workflowdef.NewCompleteState(), RecapMarkdown: "completed " + s.ID}, nil
	}
	return workflowdef.AdvanceResult{
		NextState:     workflowdef.NewRunningState([]string{s.ID}, nil, s.Next),
		RecapMarkdown: "advanced past " + s.ID,
	}, nil
}
