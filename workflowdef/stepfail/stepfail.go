// Package stepfail provides a structured error type for interpreter step
// failures. StepError names the node and attempt the failure belongs to
// so those coordinates travel with the error wherever it is returned or
// logged, the same way statemachine.Error carries Location/ReasonCode
// for the session-health failures it names. This package does not
// persist StepErrors anywhere.
package stepfail

import (
	"errors"
	"fmt"
)

// StepError represents a structured failure from an Interpreter.Advance or
// Interpreter.Describe call. StepID and AttemptID identify which node and
// attempt produced it — the coordinates a caller needs to correlate the
// failure with the event log entry it caused, without re-parsing Message.
// Errors may nest via Cause to retain diagnostics across retry attempts
// of the same blocked node.
type StepError struct {
	// StepID is the node the interpreter was advancing when it failed.
	StepID string
	// AttemptID is the attempt token that was in flight, empty if the
	// failure occurred before an attempt was assigned (e.g. Describe).
	AttemptID string
	// Message is the human-readable summary of the failure.
	Message string
	// Cause links to the underlying step error, enabling error chains with
	// errors.Is/As.
	Cause *StepError
}

// New constructs a StepError naming the node/attempt it belongs to.
func New(stepID, attemptID, message string) *StepError {
	if message == "" {
		message = "step error"
	}
	return &StepError{StepID: stepID, AttemptID: attemptID, Message: message}
}

// NewWithCause constructs a StepError wrapping an underlying error. The
// cause is converted into a StepError chain so the whole chain can be
// walked with errors.Is/As as StepErrors.
func NewWithCause(stepID, attemptID, message string, cause error) *StepError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &StepError{StepID: stepID, AttemptID: attemptID, Message: message, Cause: FromError(cause)}
}

// FromError converts an arbitrary error into a StepError chain. A cause
// that is already a StepError is returned unchanged, preserving whatever
// StepID/AttemptID it was built with; any other error becomes a StepError
// with no StepID/AttemptID of its own (the nearest StepError ancestor in
// the chain is what carries those).
func FromError(err error) *StepError {
	if err == nil {
		return nil
	}
	var se *StepError
	if errors.As(err, &se) {
		return se
	}
	return &StepError{Message: err.Error(), Cause: FromError(errors.Unwrap(err))}
}

// Errorf formats according to a format specifier and returns the result as
// a StepError naming stepID/attemptID.
func Errorf(stepID, attemptID, format string, args ...any) *StepError {
	return New(stepID, attemptID, fmt.Sprintf(format, args...))
}

// Error implements the error interface.
func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	if e.StepID == "" {
		return e.Message
	}
	return fmt.Sprintf("step %s: %s", e.StepID, e.Message)
}

// Unwrap returns the underlying step error to support errors.Is/As.
func (e *StepError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
