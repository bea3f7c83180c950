package statemachine

import (
	"context"
	"fmt"
)

// ContinueWorkflow implements spec.md §4.5.2: the single tool that
// multiplexes the side-effect-free rehydrate intent and the
// scope-validated, lock-taking advance intent. The whole body runs
// under an implicit timeout (spec.md §5); see StartWorkflow.
func (e *Engine) ContinueWorkflow(ctx context.Context, in ContinueInput) (*Response, error) {
	return withTimeout(ctx, "continue_workflow timed out", func(ctx context.Context) (*Response, error) {
		switch in.Intent {
		case IntentRehydrate:
			return e.rehydrate(ctx, in)
		case IntentAdvance:
			if in.AckToken == "" {
				return nil, newErr(CodeValidation, "ackToken is required for the advance intent", nil)
			}
			return e.advance(ctx, in)
		default:
			return nil, newErr(CodeValidation, fmt.Sprintf("unknown continue intent %q", in.Intent), nil)
		}
	})
}
