package workflowdef

// EngineStateKind is the closed set of engine-state variants spec.md
// §3.4 names: init | running | blocked | complete.
type EngineStateKind string

const (
	EngineStateInit     EngineStateKind = "init"
	EngineStateRunning  EngineStateKind = "running"
	EngineStateBlocked  EngineStateKind = "blocked"
	EngineStateComplete EngineStateKind = "complete"
)

// BlockedKind distinguishes a block an agent may retry from one it may
// not (spec.md §4.5.4 step 2).
type BlockedKind string

const (
	BlockedRetryable BlockedKind = "retryable_block"
	BlockedTerminal  BlockedKind = "terminal_block"
)

// RunningPayload is the data carried by EngineStateRunning.
type RunningPayload struct {
	Completed []string `json:"completed"`
	LoopStack []string `json:"loopStack"`
	Pending   string   `json:"pending"`
}

// BlockedPayload is the data carried by EngineStateBlocked.
type BlockedPayload struct {
	Kind          BlockedKind `json:"kind"`
	RetryAttemptID string     `json:"retryAttemptId,omitempty"`
	Blockers      []Blocker   `json:"blockers"`
	PrimaryReason string      `json:"primaryReason"`
}

// EngineState is the tagged union of a run's execution state at a given
// node. Exactly one of Running/Blocked is populated, selected by Kind;
// Init and Complete carry no payload.
type EngineState struct {
	Kind    EngineStateKind `json:"kind"`
	Running *RunningPayload `json:"running,omitempty"`
	Blocked *BlockedPayload `json:"blocked,omitempty"`
}

// NewInitState returns the sentinel state a run starts life in before its
// first node is materialized.
func NewInitState() EngineState {
	return EngineState{Kind: EngineStateInit}
}

// NewRunningState builds a running state pending on stepID.
func NewRunningState(completed, loopStack []string, pending string) EngineState {
	return EngineState{Kind: EngineStateRunning, Running: &RunningPayload{
		Completed: completed,
		LoopStack: loopStack,
		Pending:   pending,
	}}
}

// NewBlockedState builds a blocked state. retryAttemptID is empty for
// terminal blocks.
func NewBlockedState(kind BlockedKind, retryAttemptID string, blockers []Blocker, primaryReason string) EngineState {
	return EngineState{Kind: EngineStateBlocked, Blocked: &BlockedPayload{
		Kind:           kind,
		RetryAttemptID: retryAttemptID,
		Blockers:       blockers,
		PrimaryReason:  primaryReason,
	}}
}

// NewCompleteState returns the terminal state a run reaches when the
// interpreter reports no further steps remain.
func NewCompleteState() EngineState {
	return EngineState{Kind: EngineStateComplete}
}

// CanRetry reports whether a blocked state's attempt may be retried,
// per spec.md §4.5.4 step 2: attempting to advance from a terminal_block
// is a scope error, never a computation.
func (s EngineState) CanRetry() bool {
	return s.Kind == EngineStateBlocked && s.Blocked != nil && s.Blocked.Kind == BlockedRetryable
}
