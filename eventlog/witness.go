package eventlog

import (
	"sync/atomic"

	"github.com/workrail/engine/ids"
)

// Witness authorizes Store.Append calls within the lifetime of the gate
// callback that produced it (spec.md §4.4). It does not count appends: any
// number of Append calls succeed until Release fires. Store.Append rejects
// any witness whose Release has already fired, so a witness smuggled out
// of its callback and used afterward fails loudly rather than silently
// bypassing the session lock.
type Witness struct {
	sessionID ids.SessionID
	revoked   *atomic.Bool
}

// NewWitness mints a witness scoped to sessionID and returns the release
// function the gate must call on every exit path from its callback.
func NewWitness(sessionID ids.SessionID) (*Witness, func()) {
	var revoked atomic.Bool
	w := &Witness{sessionID: sessionID, revoked: &revoked}
	return w, func() { revoked.Store(true) }
}

// SessionID returns the session this witness authorizes appends for.
func (w *Witness) SessionID() ids.SessionID { return w.sessionID }

func (w *Witness) valid() bool {
	return w != nil && w.revoked != nil && !w.revoked.Load()
}
