package statemachine

import (
	"github.com/workrail/engine/ids"
	"github.com/workrail/engine/projection"
	"github.com/workrail/engine/token"
)

// LoadRun decodes stateToken and projects its run's current DAG. It
// performs no locking and appends nothing; callers use it to inspect a
// run's tips, edges, and preferences without going through the
// continue_workflow rehydrate response shape.
func (e *Engine) LoadRun(stateToken string) (*projection.Run, error) {
	sp, err := token.DecodeState(e.keyring, stateToken)
	if err != nil {
		return nil, mapTokenErr(err)
	}
	log, err := e.events.Load(ids.SessionID(sp.SessionID))
	if err != nil {
		return nil, mapEventlogErr(err)
	}
	run, err := projection.Project(log, ids.RunID(sp.RunID))
	if err != nil {
		return nil, newErr(CodeInternal, "project run", err)
	}
	return run, nil
}
