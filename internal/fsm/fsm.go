// Package fsm implements the generic transition-table runner spec.md
// section 4.3 describes: a declarative table of (event, source states, next
// state, action, per-transition timeout) driven by an expect.Channel.
//
// The run loop is grounded on the teacher's other_examples reference
// fsm.go (the Marionette FSM): Execute loops calling Next until a terminal
// state, Next resolves one transition and advances fsm.state, and
// ErrRetryTransition/ErrNoTransitions are the sentinel control-flow errors
// a step can return. This package folds that Execute/Next pair into a
// single Machine.Run loop with no sentinel retry errors, and swaps
// Marionette's action-block/PRNG selection for the spec's ordered
// (event, states) lookup, and replaces "exception instance as action" with
// the explicit Call/Raise/Noop variant spec.md section 9 calls for.
package fsm

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/alexpitcher/condoor/internal/expect"
)

// State identifies one node in the transition table. Terminal is the
// "state == -1" success sentinel spec.md section 4.3 names explicitly.
type State int

const Terminal State = -1

// EventID names an event: either a pattern-matched key or one of the two
// sentinel events below.
type EventID string

const (
	// EventTimeout fires when expect's deadline elapses without a match.
	EventTimeout EventID = "TIMEOUT"
	// EventEOF fires when the channel ends before any pattern matches.
	EventEOF EventID = "EOF"
)

// ErrMaxTransitions is returned when a run exceeds its transition budget
// without reaching a terminal state (spec.md section 4.3's safety valve).
var ErrMaxTransitions = errors.New("fsm: exceeded max transitions")

// ErrUnexpectedEOF is returned when EOF occurs in a state with no explicit
// EOF transition. Protocol and platform drivers that need the "EOF is
// translated to a ConnectionError" behavior spec.md section 4.3 and 4.6.2
// require should wrap this error, or add an explicit EOF transition whose
// action raises the typed error themselves.
var ErrUnexpectedEOF = errors.New("fsm: unexpected end of file")

// DefaultMaxTransitions is the spec-mandated default transition budget.
const DefaultMaxTransitions = 20

// ActionKind discriminates the three ways a transition can affect control
// flow, replacing the source's "action may be an exception instance"
// pattern (spec.md section 9).
type ActionKind int

const (
	ActionNoop ActionKind = iota
	ActionCall
	ActionRaise
)

// Action is the side effect run when a transition fires.
type Action struct {
	Kind ActionKind
	Fn   func(ctx *Context) bool
	Err  error
}

// Noop performs no side effect and always advances to the transition's
// next state.
func Noop() Action { return Action{Kind: ActionNoop} }

// Call wraps fn as a transition action. fn returning false aborts the run
// with failure, matching the source's "action returns false → stop".
func Call(fn func(ctx *Context) bool) Action {
	return Action{Kind: ActionCall, Fn: fn}
}

// Raise makes a transition terminate the run by returning err, the
// discriminated-union replacement for raising an exception instance.
func Raise(err error) Action {
	return Action{Kind: ActionRaise, Err: err}
}

// EventDef binds an EventID to the compiled pattern that produces it.
// Sentinel events (TIMEOUT, EOF) are declared with a nil Pattern.
type EventDef struct {
	ID      EventID
	Pattern *regexp.Regexp
}

// Transition is one row of the table: event, the set of source states it
// fires from, the destination state, the action to run, and an optional
// per-transition timeout override (0 means "inherit the current timeout").
type Transition struct {
	Event   EventID
	States  []State
	Next    State
	Action  Action
	Timeout time.Duration
}

// Context is the mutable state threaded through one Run call. It is
// created per run and discarded when the FSM exits (spec.md section 3).
type Context struct {
	Channel   expect.Channel
	State     State
	Finished  bool
	Message   string
	LastMatch expect.Match
	LastEvent EventID
	Vars      map[string]interface{}
}

// NewContext builds a Context ready to run from InitialState.
func NewContext(ch expect.Channel, initial State) *Context {
	return &Context{Channel: ch, State: initial, Vars: make(map[string]interface{})}
}

// Machine is a compiled transition table: an ordered event list (order
// matters for leftmost-pattern-wins tie-breaking, spec.md section 5) plus
// the transitions themselves.
type Machine struct {
	Name          string
	Events        []EventDef
	Transitions   []Transition
	MaxTransitions int
	GlobalTimeout time.Duration

	byStateEvent map[State]map[EventID]Transition
	patterns     []*regexp.Regexp
	patternEvent []EventID
}

// NewMachine compiles transitions into a (state, event) lookup table.
func NewMachine(name string, events []EventDef, transitions []Transition) *Machine {
	m := &Machine{
		Name:           name,
		Events:         events,
		Transitions:    transitions,
		MaxTransitions: DefaultMaxTransitions,
		byStateEvent:   make(map[State]map[EventID]Transition),
	}
	for _, t := range transitions {
		for _, s := range t.States {
			if m.byStateEvent[s] == nil {
				m.byStateEvent[s] = make(map[EventID]Transition)
			}
			m.byStateEvent[s][t.Event] = t
		}
	}
	for _, e := range events {
		if e.Pattern != nil {
			m.patterns = append(m.patterns, e.Pattern)
			m.patternEvent = append(m.patternEvent, e.ID)
		}
	}
	return m
}

// Run executes the table to completion starting from ctx.State. initEvent,
// when non-empty, is consumed as the first event without calling expect —
// this is the "init_pattern" hookup spec.md section 4.3 describes for
// chaining one FSM's final matched event into the next FSM's entry event.
func (m *Machine) Run(ctx context.Context, fctx *Context, initEvent EventID) error {
	event := initEvent
	haveEvent := initEvent != ""
	transitions := 0
	timeout := m.GlobalTimeout

	for {
		if fctx.State == Terminal || fctx.Finished {
			return nil
		}

		if !haveEvent {
			match, err := fctx.Channel.Expect(ctx, m.patterns, timeout)
			switch {
			case errors.Is(err, expect.ErrTimeout):
				event = EventTimeout
			case errors.Is(err, expect.ErrEOF):
				event = EventEOF
			case err != nil:
				return fmt.Errorf("fsm %s: %w", m.Name, err)
			default:
				event = m.patternEvent[match.Index]
				fctx.LastMatch = match
			}
		}
		haveEvent = false
		fctx.LastEvent = event

		if transitions >= m.MaxTransitions {
			return fmt.Errorf("fsm %s: %w", m.Name, ErrMaxTransitions)
		}

		t, ok := m.byStateEvent[fctx.State][event]
		if !ok {
			if event == EventEOF {
				return fmt.Errorf("fsm %s state %d: %w", m.Name, fctx.State, ErrUnexpectedEOF)
			}
			// Unhandled event in this state: swallowed, stay in state and
			// wait for the next event (spec.md section 4.3).
			transitions++
			continue
		}

		switch t.Action.Kind {
		case ActionNoop:
		case ActionCall:
			if t.Action.Fn != nil && !t.Action.Fn(fctx) {
				return fmt.Errorf("fsm %s: action failed in state %d on event %s", m.Name, fctx.State, event)
			}
		case ActionRaise:
			return t.Action.Err
		default:
			return fmt.Errorf("fsm %s: transition in state %d on event %s has no action kind", m.Name, fctx.State, event)
		}

		fctx.State = t.Next
		if t.Timeout != 0 {
			timeout = t.Timeout
		}
		transitions++
	}
}
