package apierr

import (
	"errors"

	"github.com/workrail/engine/statemachine"
)

// From lifts a *statemachine.Error into the wire envelope via an
// exhaustive switch over statemachine.Code (spec.md §7). Any other error
// (one that never passed through the state machine's own mapping
// functions) is reported as CodeInternal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var smErr *statemachine.Error
	if !errors.As(err, &smErr) {
		return New(CodeInternal, "internal error", err)
	}

	switch smErr.Code {
	case statemachine.CodeValidation:
		return New(CodeValidation, smErr.Message, err)
	case statemachine.CodePreconditionFailed:
		return New(CodePreconditionFailed, smErr.Message, err)
	case statemachine.CodeNotFound:
		return New(CodeNotFound, smErr.Message, err)
	case statemachine.CodeTimeout:
		return New(CodeTimeout, smErr.Message, err)
	case statemachine.CodeInternal:
		return New(CodeInternal, smErr.Message, err)
	case statemachine.CodeSessionNotHealthy:
		e := New(CodeSessionNotHealthy, smErr.Message, err)
		if smErr.Location != "" || smErr.ReasonCode != "" {
			e.Details = &Details{Location: smErr.Location, ReasonCode: smErr.ReasonCode}
		}
		return e
	case statemachine.CodeTokenInvalidFormat:
		e := New(CodeTokenInvalidFormat, smErr.Message, err)
		if smErr.Bech32mErrorCode != "" {
			e.Details = &Details{Bech32mError: &Bech32mDetail{Code: smErr.Bech32mErrorCode, Position: smErr.Bech32mPosition}}
		}
		return e
	case statemachine.CodeTokenUnsupportedVer:
		return New(CodeTokenUnsupportedVer, smErr.Message, err)
	case statemachine.CodeTokenBadSignature:
		return New(CodeTokenBadSignature, smErr.Message, err)
	case statemachine.CodeTokenScopeMismatch:
		return New(CodeTokenScopeMismatch, smErr.Message, err)
	case statemachine.CodeTokenUnknownNode:
		return New(CodeTokenUnknownNode, smErr.Message, err)
	case statemachine.CodeTokenWorkflowHashMiss:
		return New(CodeTokenWorkflowHashMiss, smErr.Message, err)
	case statemachine.CodeTokenSessionLocked:
		return NewRetryAfter(CodeTokenSessionLocked, smErr.Message, smErr.RetryAfter.Milliseconds(), err)
	default:
		return New(CodeInternal, smErr.Message, err)
	}
}
