package platform

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/alexpitcher/condoor/internal/cerrors"
	"github.com/alexpitcher/condoor/internal/expect"
	"github.com/alexpitcher/condoor/internal/fsm"
	"github.com/alexpitcher/condoor/internal/patterns"
)

const (
	stateExecInit         fsm.State = 0
	stateExecWaitFinalEOF fsm.State = 1
)

const (
	eventSyntaxError      fsm.EventID = "syntax_error"
	eventBufferOverflow   fsm.EventID = "buffer_overflow"
	eventConnectionClosed fsm.EventID = "connection_closed"
	eventPager            fsm.EventID = "pager"
	eventPressReturnExec  fsm.EventID = "press_return"
	eventTargetPrompt     fsm.EventID = "target_prompt"
)

func earlierHopEvent(slot int) fsm.EventID {
	return fsm.EventID(fmt.Sprintf("earlier_hop_%d", slot))
}

// ExecResult is what a successful (or gracefully-failed) command execution
// reports back to the caller (spec.md section 4.6.2).
type ExecResult struct {
	Output           string
	TargetPromptText string
	Hostname         string
	Mode             Mode
	StaysConnected   bool
	LastHop          int
	Connected        bool
}

// Execute runs the command-execution FSM spec.md section 4.6.2 calls
// "wait_for_prompt": send command, then classify whatever comes back as a
// syntax error, a buffer overflow, a lost connection, a pager prompt, the
// press-return banner, an earlier hop's own prompt reappearing (meaning the
// session fell back to a jump host), or the target prompt itself.
//
// earlierPrompts is indexed the same way hoporch.DetectedPromptTable is:
// index 0 is the unused sentinel slot, 1..N are the literal prompt text
// detected at each hop during connect. Built the same way the connect and
// authenticate FSMs in internal/protocol are (fsm.Machine over an
// expect.Channel), generalized from a login dialog to command output.
func Execute(ctx context.Context, ch expect.Channel, reg *patterns.Registry, d *Driver, targetPrompt *regexp.Regexp, earlierPrompts []string, command string, timeout time.Duration) (*ExecResult, error) {
	events, hopEvents, err := execEvents(reg, d.Platform, targetPrompt, earlierPrompts)
	if err != nil {
		return nil, err
	}

	result := &ExecResult{}

	sendSpace := fsm.Call(func(c *fsm.Context) bool {
		c.Channel.Send(" ")
		return true
	})
	recordTarget := fsm.Call(func(c *fsm.Context) bool {
		result.TargetPromptText = c.LastMatch.Text
		result.Hostname = d.DetermineHostname(c.LastMatch.Text)
		result.Mode = modeFromPrompt(c.LastMatch.Text)
		result.Connected = true
		return true
	})
	recordPressReturn := fsm.Call(func(c *fsm.Context) bool {
		result.StaysConnected = true
		result.LastHop = len(earlierPrompts) - 1
		result.Connected = true
		return true
	})

	transitions := []fsm.Transition{
		{Event: eventSyntaxError, States: []fsm.State{stateExecInit}, Next: fsm.Terminal,
			Action: fsm.Raise(cerrors.NewCommandSyntaxError("Command unknown", "", command))},
		{Event: eventBufferOverflow, States: []fsm.State{stateExecInit}, Next: fsm.Terminal,
			Action: fsm.Raise(cerrors.NewCommandSyntaxError("Command too long", "", command))},
		{Event: eventConnectionClosed, States: []fsm.State{stateExecInit}, Next: stateExecWaitFinalEOF, Action: fsm.Noop()},
		{Event: fsm.EventTimeout, States: []fsm.State{stateExecInit}, Next: fsm.Terminal,
			Action: fsm.Raise(cerrors.NewCommandTimeoutError("timed out waiting for command output", "", command))},
		{Event: eventPager, States: []fsm.State{stateExecInit}, Next: stateExecInit, Action: sendSpace},
		{Event: eventTargetPrompt, States: []fsm.State{stateExecInit, stateExecWaitFinalEOF}, Next: fsm.Terminal, Action: recordTarget},
		{Event: eventPressReturnExec, States: []fsm.State{stateExecInit}, Next: fsm.Terminal, Action: recordPressReturn},
	}
	for slot, evt := range hopEvents {
		s := slot
		transitions = append(transitions, fsm.Transition{
			Event: evt, States: []fsm.State{stateExecInit, stateExecWaitFinalEOF}, Next: fsm.Terminal,
			Action: fsm.Call(func(c *fsm.Context) bool {
				result.LastHop = s
				result.Connected = false
				return true
			}),
		})
	}

	m := fsm.NewMachine("wait_for_prompt", events, transitions)
	fctx := fsm.NewContext(ch, stateExecInit)

	ch.SendLine(command)
	err = m.Run(ctx, fctx, "")
	if errors.Is(err, fsm.ErrUnexpectedEOF) {
		return result, cerrors.NewConnectionError("Unexpected device disconnect", "", err)
	}
	if err != nil {
		return result, err
	}

	result.Output = strings.ReplaceAll(fctx.LastMatch.Before, "\r", "")
	return result, nil
}

func execEvents(reg *patterns.Registry, platform string, targetPrompt *regexp.Regexp, earlierPrompts []string) ([]fsm.EventDef, map[int]fsm.EventID, error) {
	syntaxErr, err := reg.Get(platform, patterns.SyntaxError)
	if err != nil {
		return nil, nil, err
	}
	bufOverflow, err := reg.Get(platform, patterns.BufferOverflow)
	if err != nil {
		return nil, nil, err
	}
	connClosed, err := reg.Get(platform, patterns.ConnectionClosed)
	if err != nil {
		return nil, nil, err
	}
	pager, err := reg.Get(platform, patterns.More)
	if err != nil {
		return nil, nil, err
	}
	pressReturn, err := reg.Get(platform, patterns.PressReturn)
	if err != nil {
		return nil, nil, err
	}

	events := []fsm.EventDef{
		{ID: eventSyntaxError, Pattern: syntaxErr},
		{ID: eventBufferOverflow, Pattern: bufOverflow},
		{ID: eventConnectionClosed, Pattern: connClosed},
		{ID: eventPager, Pattern: pager},
		{ID: eventPressReturnExec, Pattern: pressReturn},
	}

	hopEvents := make(map[int]fsm.EventID)
	for slot, prompt := range earlierPrompts {
		if slot == 0 || prompt == "" {
			continue
		}
		re, err := regexp.Compile(regexp.QuoteMeta(strings.TrimRight(prompt, "\r\n")) + `\s?$`)
		if err != nil {
			continue
		}
		evt := earlierHopEvent(slot)
		hopEvents[slot] = evt
		events = append(events, fsm.EventDef{ID: evt, Pattern: re})
	}

	events = append(events, fsm.EventDef{ID: eventTargetPrompt, Pattern: targetPrompt})
	return events, hopEvents, nil
}

func modeFromPrompt(prompt string) Mode {
	trimmed := strings.TrimRight(prompt, "\r\n \t")
	switch {
	case strings.Contains(trimmed, "(config"):
		return ModeConfig
	case strings.Contains(trimmed, "sysadmin-vm") || strings.HasPrefix(trimmed, "admin"):
		return ModeAdmin
	default:
		return ModeGlobal
	}
}
