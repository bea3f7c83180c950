package statemachine

import (
	"errors"
	"fmt"

	"github.com/workrail/engine/eventlog"
	"github.com/workrail/engine/gate"
	"github.com/workrail/engine/token"
)

// mapGateErr lifts a gate.Error into the state machine's closed union
// (spec.md §7: "higher layers lift lower-layer errors... explicitly").
func mapGateErr(err error) error {
	var gErr *gate.Error
	if !errors.As(err, &gErr) {
		return newErr(CodeInternal, "gate failure", err)
	}
	switch gErr.Code {
	case gate.CodeSessionLocked:
		return &Error{Code: CodeTokenSessionLocked, Message: "session is locked by another caller", Err: err, RetryAfter: gErr.RetryAfter}
	case gate.CodeSessionNotHealthy:
		return &Error{Code: CodeSessionNotHealthy, Message: gErr.Reason, Err: err, Location: string(gErr.Health)}
	case gate.CodeGateCallbackFailed:
		var smErr *Error
		if errors.As(gErr.Err, &smErr) {
			return smErr
		}
		return newErr(CodeInternal, "gate callback failed", err)
	default:
		return newErr(CodeInternal, "gate failure", err)
	}
}

// mapTokenErr lifts a token.Error into the state machine's closed union.
func mapTokenErr(err error) error {
	var tErr *token.Error
	if !errors.As(err, &tErr) {
		return newErr(CodeInternal, "token failure", err)
	}
	switch tErr.Code {
	case token.ErrInvalidFormat:
		return &Error{Code: CodeTokenInvalidFormat, Message: "malformed token", Err: err, Bech32mErrorCode: tErr.Bech32mErrorCode, Bech32mPosition: tErr.Position}
	case token.ErrUnsupportedVer:
		return &Error{Code: CodeTokenUnsupportedVer, Message: "unsupported token version", Err: err}
	case token.ErrBadSignature:
		return &Error{Code: CodeTokenBadSignature, Message: "token signature invalid", Err: err}
	default:
		return newErr(CodeInternal, "token failure", err)
	}
}

// mapEventlogErr lifts an eventlog.Error into the state machine's closed
// union. A corrupted log is always reported as an unhealthy session,
// never leaked as a raw store error.
func mapEventlogErr(err error) error {
	var elErr *eventlog.Error
	if !errors.As(err, &elErr) {
		return newErr(CodeInternal, "event log failure", err)
	}
	switch elErr.Code {
	case eventlog.CodeCorruption:
		return &Error{Code: CodeSessionNotHealthy, Message: elErr.Detail, Err: err, Location: string(elErr.Location), ReasonCode: string(elErr.Reason)}
	default:
		return newErr(CodeInternal, "event log failure", err)
	}
}

// mapTimeout lifts a context error from an externally exposed operation's
// bounding context.WithTimeout (see withTimeout) into the state machine's
// closed error union, so an expired deadline, or a caller cancellation
// seen before the operation starts, surfaces as CodeTimeout rather than a
// raw context.DeadlineExceeded/Canceled.
func mapTimeout(message string, err error) error {
	return &Error{Code: CodeTimeout, Message: message, Err: err}
}

// missingSnapshot builds the fail-closed error spec.md §4.5.4/§8.1
// property 3 mandates whenever a recorded advance names a snapshot the
// CAS no longer holds.
func missingSnapshot(ref string) error {
	return newErr(CodeInternal, fmt.Sprintf("Missing execution snapshot %s", ref), nil)
}
