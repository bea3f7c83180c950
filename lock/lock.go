// Package lock implements the per-session advisory lock gating all mutation
// of a session's event log (spec.md §3.6, §4.4). A lock is a small JSON
// descriptor file created with an exclusive-create filesystem primitive, so
// mutual exclusion is enforced by the same guarantee fsx.OpenExclusive makes
// to the rest of the core: at most one create wins.
//
// A held lock carries a TTL. A lock whose TTL has elapsed is considered
// abandoned (its owner crashed or was killed without releasing) and may be
// reclaimed by any other caller; reclaim replaces the descriptor rather than
// deleting-then-recreating it, so there is never a window with no lock file
// present for a racing reclaimer to slip through unnoticed.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/time/rate"

	"github.com/workrail/engine/canon"
	"github.com/workrail/engine/fsx"
)

// ErrBusy indicates the lock is held by another, still-live owner.
var ErrBusy = errors.New("lock: busy")

// ErrReentrant indicates the calling owner already holds this lock.
var ErrReentrant = errors.New("lock: reentrant acquisition attempted")

// Error wraps a lock failure with the retry guidance spec.md §6.3's
// SESSION_LOCKED wire error carries.
type Error struct {
	Reason     string
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("lock: %s: %v", e.Reason, e.Err)
	}
	return "lock: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrBusy:
		return e.Reason == "busy"
	case ErrReentrant:
		return e.Reason == "reentrant"
	}
	return false
}

// descriptor is the on-disk lock file shape.
type descriptor struct {
	LockID       string `json:"lockId"`
	OwnerPID     int    `json:"ownerPid"`
	OwnerHost    string `json:"ownerHost"`
	OwnerToken   string `json:"ownerToken"`
	AcquiredUnix int64  `json:"acquiredAtUnixMs"`
	ExpiresUnix  int64  `json:"expiresAtUnixMs"`
}

// Handle is a held lock. Callers must call Release when done; holding a
// Handle past its Expires time without renewing risks another caller
// reclaiming the lock out from under them.
type Handle struct {
	fs      fsx.FS
	path    string
	lockID  string
	Expires time.Time
}

// Owner identifies the caller acquiring a lock, so a reentrant acquisition
// by the same logical owner can be distinguished from a foreign contender.
type Owner struct {
	PID   int
	Host  string
	Token string
}

// reclaimLimiter paces stale-lock reclaim attempts across the process so a
// burst of contending callers does not turn a single abandoned lock into a
// tight retry storm against the filesystem.
var reclaimLimiter = rate.NewLimiter(rate.Limit(20), 5)

// Acquire attempts to take the lock at path with the given TTL. It never
// blocks: a live holder produces ErrBusy immediately with RetryAfter set to
// the holder's remaining TTL, and a stale-lock reclaim that reclaimLimiter
// does not allow yet produces ErrBusy with a 50ms RetryAfter.
func Acquire(fs fsx.FS, path string, owner Owner, ttl time.Duration, now time.Time) (*Handle, error) {
	lockID := fmt.Sprintf("%s-%d", owner.Host, now.UnixNano())
	desc := descriptor{
		LockID:       lockID,
		OwnerPID:     owner.PID,
		OwnerHost:    owner.Host,
		OwnerToken:   owner.Token,
		AcquiredUnix: now.UnixMilli(),
		ExpiresUnix:  now.Add(ttl).UnixMilli(),
	}
	b, err := canon.Marshal(desc)
	if err != nil {
		return nil, &Error{Reason: "marshal descriptor", Err: err}
	}

	f, err := fs.OpenExclusive(path, 0o600)
	if err == nil {
		if writeErr := writeAndClose(f, b); writeErr != nil {
			return nil, &Error{Reason: "persist descriptor", Err: writeErr}
		}
		return &Handle{fs: fs, path: path, lockID: lockID, Expires: now.Add(ttl)}, nil
	}
	if !errors.Is(err, fsx.ErrExists) {
		return nil, &Error{Reason: "create lock file", Err: err}
	}

	// Someone else holds (or recently held) the lock; inspect it.
	existing, readErr := readDescriptor(fs, path)
	if readErr != nil {
		return nil, &Error{Reason: "read existing lock", Err: readErr}
	}
	if existing.OwnerToken == owner.Token {
		return nil, &Error{Reason: "reentrant"}
	}
	expiresAt := time.UnixMilli(existing.ExpiresUnix)
	if now.Before(expiresAt) {
		return nil, &Error{Reason: "busy", RetryAfter: expiresAt.Sub(now)}
	}

	// The existing lock's TTL has elapsed: reclaim it by replacing the
	// descriptor atomically. reclaimLimiter.Allow is a non-blocking check
	// (not Wait) because Acquire must not block on contention it cannot
	// resolve by waiting.
	if !reclaimLimiter.Allow() {
		return nil, &Error{Reason: "busy", RetryAfter: 50 * time.Millisecond}
	}
	if err := fs.WriteFileAtomic(path, b, 0o600); err != nil {
		return nil, &Error{Reason: "reclaim stale lock", Err: err}
	}
	return &Handle{fs: fs, path: path, lockID: lockID, Expires: now.Add(ttl)}, nil
}

// Release drops the lock if h's lockID still matches what is on disk. If
// another caller has already reclaimed the lock (h's TTL lapsed before
// Release was called), Release is a no-op rather than destroying the new
// holder's lock.
func (h *Handle) Release() error {
	existing, err := readDescriptor(h.fs, h.path)
	if err != nil {
		if errors.Is(err, fsx.ErrNotFound) {
			return nil
		}
		return &Error{Reason: "read lock before release", Err: err}
	}
	if existing.LockID != h.lockID {
		// Already reclaimed by someone else; not ours to remove.
		return nil
	}
	if err := h.fs.Unlink(h.path); err != nil {
		return &Error{Reason: "remove lock file", Err: err}
	}
	return nil
}

func readDescriptor(fs fsx.FS, path string) (descriptor, error) {
	var d descriptor
	b, err := fs.ReadFile(path)
	if err != nil {
		return d, err
	}
	if err := canon.Unmarshal(b, &d); err != nil {
		return d, fmt.Errorf("lock: corrupt descriptor at %s: %w", path, err)
	}
	return d, nil
}

func writeAndClose(f *os.File, b []byte) error {
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
