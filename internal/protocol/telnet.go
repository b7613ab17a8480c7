package protocol

import (
	"context"
	"regexp"

	"github.com/alexpitcher/condoor/internal/cerrors"
	"github.com/alexpitcher/condoor/internal/expect"
	"github.com/alexpitcher/condoor/internal/fsm"
	"github.com/alexpitcher/condoor/internal/patterns"
)

const (
	stateTelnetInit    fsm.State = 0
	stateTelnetRetried fsm.State = 1
)

// telnetEscapeBanner is the telnet client's own banner ("Escape character
// is '^]'."), a transport artifact rather than a device pattern, so it is
// not part of the platform-scoped Pattern Registry.
var telnetEscapeBanner = regexp.MustCompile(`(?i)escape character is`)

// NewTelnetConnectMachine builds the telnet connect FSM (spec.md section
// 4.4). Both variants answer the escape-char banner with a CR; console,
// when true, only gives the machine a distinct Machine.Name for log
// readability.
func NewTelnetConnectMachine(reg *patterns.Registry, platform string, targetPrompt *regexp.Regexp, console bool) (*fsm.Machine, error) {
	events, err := promptEvents(reg, platform, targetPrompt)
	if err != nil {
		return nil, err
	}
	events = append(events, fsm.EventDef{ID: eventBanner, Pattern: telnetEscapeBanner})

	sendCR := fsm.Call(func(c *fsm.Context) bool {
		c.Channel.Send("\r")
		return true
	})
	sendQ := fsm.Call(func(c *fsm.Context) bool {
		c.Channel.Send("q")
		return true
	})

	both := []fsm.State{stateTelnetInit, stateTelnetRetried}
	transitions := []fsm.Transition{
		{Event: eventBanner, States: both, Next: stateTelnetInit, Action: sendCR},
		{Event: eventStandby, States: both, Next: fsm.Terminal, Action: fsm.Raise(cerrors.NewConnectionError("Standby console", "", nil))},
		{Event: eventMore, States: both, Next: stateTelnetInit, Action: sendQ},
		{Event: eventPressReturn, States: both, Next: stateTelnetInit, Action: sendCR},
		{Event: eventUsername, States: both, Next: fsm.Terminal, Action: fsm.Noop()},
		{Event: eventPassword, States: both, Next: fsm.Terminal, Action: fsm.Noop()},
		{Event: eventPrompt, States: both, Next: fsm.Terminal, Action: fsm.Noop()},
		{Event: eventRommon, States: both, Next: fsm.Terminal, Action: fsm.Raise(cerrors.NewConnectionError("device is at the ROM monitor prompt", "", nil))},
		{Event: eventUnableToConnect, States: both, Next: fsm.Terminal, Action: fsm.Raise(cerrors.NewConnectionError("unable to connect", "", nil))},
		{Event: fsm.EventTimeout, States: []fsm.State{stateTelnetInit}, Next: stateTelnetRetried, Action: sendCR},
		{Event: fsm.EventTimeout, States: []fsm.State{stateTelnetRetried}, Next: fsm.Terminal, Action: fsm.Raise(cerrors.NewConnectionTimeoutError("timed out waiting for a login prompt", "", nil))},
	}

	name := "telnet-connect"
	if console {
		name = "telnet-console-connect"
	}
	return fsm.NewMachine(name, events, transitions), nil
}

// TelnetConnect runs the telnet connect FSM and returns the finished
// Context: fctx.LastEvent is eventUsername, eventPassword, or eventPrompt,
// and fctx.LastMatch.Text is the matched prompt text for the prompt case —
// both are needed by the caller (the Hop Orchestrator) to chain into
// Authenticate and to record the detected prompt.
func TelnetConnect(ctx context.Context, ch expect.Channel, reg *patterns.Registry, platform string, targetPrompt *regexp.Regexp, console bool) (*fsm.Context, error) {
	m, err := NewTelnetConnectMachine(reg, platform, targetPrompt, console)
	if err != nil {
		return nil, err
	}
	fctx := fsm.NewContext(ch, stateTelnetInit)
	if err := m.Run(ctx, fctx, ""); err != nil {
		return nil, err
	}
	return fctx, nil
}
