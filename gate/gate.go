// Package gate implements the execution session gate (spec.md §4.4):
// the single choke point that combines the per-session lock with a
// health check and hands the caller's callback a witness that authorizes
// durable appends until the callback returns.
package gate

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/workrail/engine/eventlog"
	"github.com/workrail/engine/fsx"
	"github.com/workrail/engine/ids"
	"github.com/workrail/engine/lock"
)

// Code is the closed set of gate failure classifications (spec.md §4.4).
type Code string

const (
	CodeSessionLocked     Code = "SESSION_LOCKED"
	CodeLockReleaseFailed Code = "LOCK_RELEASE_FAILED"
	CodeSessionNotHealthy Code = "SESSION_NOT_HEALTHY"
	CodeSessionLoadFailed Code = "SESSION_LOAD_FAILED"
	CodeLockAcquireFailed Code = "LOCK_ACQUIRE_FAILED"
	CodeGateCallbackFailed Code = "GATE_CALLBACK_FAILED"
	CodeSessionLockReentrant Code = "SESSION_LOCK_REENTRANT"
)

// HealthKind distinguishes where an unhealthy session's corruption was
// detected.
type HealthKind string

const (
	HealthCorruptHead HealthKind = "corrupt_head"
	HealthCorruptTail HealthKind = "corrupt_tail"
)

// Error is the gate's typed failure value.
type Error struct {
	Code       Code
	RetryAfter time.Duration
	Health     HealthKind
	Reason     string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("gate: %s: %s: %v", e.Code, e.Reason, e.Err)
	}
	return fmt.Sprintf("gate: %s: %s", e.Code, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Gate serializes all mutation of a session's event log behind its lock,
// health-checking the log before ever handing out a witness.
type Gate struct {
	fs       fsx.FS
	dataDir  fsx.DataDir
	store    *eventlog.Store
	ttl      time.Duration
	owner    lock.Owner
	mu       sync.Mutex
	inFlight map[ids.SessionID]bool
}

// New returns a Gate. ownerToken should be unique per process (e.g. a
// minted process-lifetime id) so this process's own reentrant acquisition
// attempts are distinguishable from a foreign contender's.
func New(fs fsx.FS, dataDir fsx.DataDir, store *eventlog.Store, ttl time.Duration, ownerToken string) *Gate {
	return &Gate{
		fs:      fs,
		dataDir: dataDir,
		store:   store,
		ttl:     ttl,
		owner: lock.Owner{
			PID:   os.Getpid(),
			Host:  hostname(),
			Token: ownerToken,
		},
		inFlight: make(map[ids.SessionID]bool),
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown-host"
	}
	return h
}

// WithHealthySessionLock implements spec.md §4.4's five-step procedure:
// acquire the lock, health-check the log, construct a witness scoped to
// the callback, invoke it, then release the lock on every exit path.
func WithHealthySessionLock[T any](g *Gate, sessionID ids.SessionID, f func(w *eventlog.Witness) (T, error)) (T, error) {
	var zero T

	g.mu.Lock()
	if g.inFlight[sessionID] {
		g.mu.Unlock()
		return zero, &Error{Code: CodeSessionLockReentrant, Reason: "session already entered by this process"}
	}
	g.inFlight[sessionID] = true
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.inFlight, sessionID)
		g.mu.Unlock()
	}()

	h, err := lock.Acquire(g.fs, g.dataDir.SessionLockPath(string(sessionID)), g.owner, g.ttl, time.Now())
	if err != nil {
		var lockErr *lock.Error
		if asLockError(err, &lockErr) {
			switch {
			case lockErr.Is(lock.ErrBusy):
				return zero, &Error{Code: CodeSessionLocked, RetryAfter: lockErr.RetryAfter, Reason: "lock held by another owner", Err: err}
			case lockErr.Is(lock.ErrReentrant):
				return zero, &Error{Code: CodeSessionLockReentrant, Reason: "lock already held by this owner token", Err: err}
			}
		}
		return zero, &Error{Code: CodeLockAcquireFailed, Reason: "acquire failed", Err: err}
	}

	release := func() error {
		if relErr := h.Release(); relErr != nil {
			return &Error{Code: CodeLockReleaseFailed, Reason: "release failed", Err: relErr}
		}
		return nil
	}

	if _, err := g.store.Load(sessionID); err != nil {
		var elErr *eventlog.Error
		if asEventlogError(err, &elErr) {
			kind := HealthCorruptTail
			if elErr.Location == eventlog.LocationHead {
				kind = HealthCorruptHead
			}
			_ = release()
			return zero, &Error{Code: CodeSessionNotHealthy, Health: kind, Reason: elErr.Detail, Err: err}
		}
		_ = release()
		return zero, &Error{Code: CodeSessionLoadFailed, Reason: "load failed", Err: err}
	}

	witness, revoke := eventlog.NewWitness(sessionID)
	result, callErr := f(witness)
	revoke()

	if relErr := release(); relErr != nil {
		if callErr != nil {
			return zero, &Error{Code: CodeGateCallbackFailed, Reason: "callback failed and release also failed", Err: callErr}
		}
		return zero, relErr
	}

	if callErr != nil {
		return zero, &Error{Code: CodeGateCallbackFailed, Reason: "callback failed", Err: callErr}
	}
	return result, nil
}

func asLockError(err error, target **lock.Error) bool {
	le, ok := err.(*lock.Error)
	if ok {
		*target = le
	}
	return ok
}

func asEventlogError(err error, target **eventlog.Error) bool {
	ee, ok := err.(*eventlog.Error)
	if ok {
		*target = ee
	}
	return ok
}
