package projection

import "github.com/workrail/engine/workflowdef"

// Phase is a non-authoritative, coarser-than-EngineState hint for
// dashboard/UI consumers that want a human-facing label without decoding
// the full engine state. It never participates in any invariant: two
// engines computing different Phase strings for the same EngineState
// would still be spec-compliant, since only EngineStateKind is
// authoritative.
type Phase string

const (
	PhasePlanning      Phase = "planning"
	PhaseAwaitingRetry Phase = "awaiting_retry"
	PhaseSynthesizing  Phase = "synthesizing"
	PhaseDone          Phase = "done"
)

// DerivePhase maps an EngineState to its Phase hint.
func DerivePhase(state workflowdef.EngineState) Phase {
	switch state.Kind {
	case workflowdef.EngineStateComplete:
		return PhaseDone
	case workflowdef.EngineStateBlocked:
		if state.Blocked != nil && state.Blocked.Kind == workflowdef.BlockedRetryable {
			return PhaseAwaitingRetry
		}
		return PhaseSynthesizing
	case workflowdef.EngineStateRunning:
		return PhasePlanning
	default:
		return PhasePlanning
	}
}
