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
	stateAuthInit     fsm.State = 0
	stateAuthUserSent fsm.State = 1
	stateAuthPwSent   fsm.State = 2
)

// Credentials supplies the username/password an authenticate FSM sends.
type Credentials struct {
	Username string
	Password string
}

// NewAuthenticateMachine builds the username/password dialog shared by
// telnet and ssh (spec.md section 4.4: "Authenticate FSM identical in
// shape to telnet"). host is used only to annotate errors.
func NewAuthenticateMachine(reg *patterns.Registry, platform string, targetPrompt *regexp.Regexp, host string, creds Credentials) (*fsm.Machine, error) {
	events, err := promptEvents(reg, platform, targetPrompt)
	if err != nil {
		return nil, err
	}

	sendUsername := fsm.Call(func(c *fsm.Context) bool {
		c.Channel.SendLine(creds.Username)
		return true
	})
	sendPassword := fsm.Call(func(c *fsm.Context) bool {
		_ = c.Channel.SetEcho(false)
		c.Channel.SendLine(creds.Password)
		_ = c.Channel.SetEcho(true)
		return true
	})
	authFailed := fsm.Raise(cerrors.NewConnectionAuthenticationError("Incorrect username or password", host, nil))
	missingPassword := fsm.Raise(cerrors.NewConnectionAuthenticationError("Password not provided", host, nil))

	pwAction := sendPassword
	if creds.Password == "" {
		pwAction = missingPassword
	}

	transitions := []fsm.Transition{
		{Event: eventUsername, States: []fsm.State{stateAuthInit}, Next: stateAuthUserSent, Action: sendUsername},
		{Event: eventPassword, States: []fsm.State{stateAuthInit, stateAuthUserSent}, Next: stateAuthPwSent, Action: pwAction},
		{Event: eventPrompt, States: []fsm.State{stateAuthPwSent, stateAuthUserSent, stateAuthInit}, Next: fsm.Terminal, Action: fsm.Noop()},
		{Event: eventRommon, States: []fsm.State{stateAuthPwSent}, Next: fsm.Terminal, Action: fsm.Raise(cerrors.NewConnectionError("device is at the ROM monitor prompt", host, nil))},
		{Event: eventUsername, States: []fsm.State{stateAuthPwSent}, Next: fsm.Terminal, Action: authFailed},
		{Event: eventPassword, States: []fsm.State{stateAuthPwSent}, Next: fsm.Terminal, Action: authFailed},
		{Event: fsm.EventTimeout, States: []fsm.State{stateAuthInit, stateAuthUserSent, stateAuthPwSent}, Next: fsm.Terminal, Action: fsm.Raise(cerrors.NewConnectionTimeoutError("timed out waiting for authentication prompt", host, nil))},
	}

	m := fsm.NewMachine("authenticate", events, transitions)
	return m, nil
}

// Authenticate runs the authenticate FSM, consuming initEvent (username or
// password) as the event that ended the connect FSM, per spec.md section
// 4.3's init_pattern chaining. The returned Context's LastMatch.Text is the
// detected target prompt text on success.
func Authenticate(ctx context.Context, ch expect.Channel, reg *patterns.Registry, platform string, targetPrompt *regexp.Regexp, host string, creds Credentials, initEvent fsm.EventID) (*fsm.Context, error) {
	m, err := NewAuthenticateMachine(reg, platform, targetPrompt, host, creds)
	if err != nil {
		return nil, err
	}
	fctx := fsm.NewContext(ch, stateAuthInit)
	if err := m.Run(ctx, fctx, initEvent); err != nil {
		return nil, err
	}
	return fctx, nil
}
