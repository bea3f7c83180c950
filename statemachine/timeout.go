package statemachine

import "context"

// withTimeout bounds ctx to defaultTimeout for the lifetime of op, per
// spec.md §5 ("every externally exposed operation carries an implicit
// timeout... on timeout, the operation returns TIMEOUT"). StartWorkflow
// and ContinueWorkflow — the two operations spec.md §4.5 names as the
// external surface — each run their whole body through this, so a
// caller-supplied context that is already expired, or whose deadline has
// passed when an in-flight advance/rehydrate returns an error, is reported
// as CodeTimeout instead of leaking a bare context error. An operation that
// succeeds returns its result even if the deadline passed meanwhile.
func withTimeout(ctx context.Context, message string, op func(ctx context.Context) (*Response, error)) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return nil, mapTimeout(message, err)
	}
	resp, err := op(ctx)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return nil, mapTimeout(message, ctx.Err())
	}
	return resp, err
}
