package condoor

import "github.com/alexpitcher/condoor/internal/fsm"

// The FSM and action vocabulary (spec.md section 6), re-exported so a
// caller building a custom dialog for RunFsm never needs to import
// internal/fsm directly.
type (
	FSM         = fsm.Machine
	FSMContext  = fsm.Context
	FSMState    = fsm.State
	FSMEventID  = fsm.EventID
	FSMEventDef = fsm.EventDef
	Transition  = fsm.Transition
	Action      = fsm.Action
)

const FSMTerminal = fsm.Terminal

// Call, Raise and Noop build the three Action variants an RunFsm caller's
// transition table can use (spec.md section 4.3/section 9 redesign flag).
func Call(fn func(ctx *FSMContext) bool) Action { return fsm.Call(fn) }
func Raise(err error) Action                    { return fsm.Raise(err) }
func Noop() Action                              { return fsm.Noop() }
