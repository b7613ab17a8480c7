package protocol

import (
	"context"
	"errors"
	"regexp"

	"github.com/alexpitcher/condoor/internal/cerrors"
	"github.com/alexpitcher/condoor/internal/expect"
	"github.com/alexpitcher/condoor/internal/fsm"
	"github.com/alexpitcher/condoor/internal/logging"
	"github.com/alexpitcher/condoor/internal/patterns"
)

const (
	stateSSHInit fsm.State = 0
)

const (
	eventHostKeyFingerprint fsm.EventID = "host_key_fingerprint"
	eventKnownHostsAdded    fsm.EventID = "known_hosts_added"
	eventKeyVerifyFailed    fsm.EventID = "key_verification_failed"
	eventProtocolMismatch   fsm.EventID = "protocol_mismatch"
)

var (
	sshHostKeyFingerprint = regexp.MustCompile(`(?i)the authenticity of host.*can't be established|new host key fingerprint is`)
	sshKnownHostsAdded    = regexp.MustCompile(`(?i)added to (the list of known hosts|list of known hosts)`)
	sshKeyVerifyFailed    = regexp.MustCompile(`(?i)(host key verification failed|remote host identification has changed)`)
	sshProtocolMismatch   = regexp.MustCompile(`(?i)(protocol major versions differ|modulus too small|could not negotiate a key exchange)`)
	sshBannerFingerprint  = regexp.MustCompile(`SHA256:[A-Za-z0-9+/]+`)
)

// ErrRetrySSHv1 signals that the connect FSM saw a protocol-version
// mismatch and a single SSH-v1 respawn should be attempted (spec.md section
// 4.4: "respawn with -1 ... once; second occurrence is a fatal
// ConnectionError"). It is local to this package: the orchestrator that
// owns the spawned process is the one positioned to close and respawn it.
var ErrRetrySSHv1 = errors.New("protocol: retry with ssh -1")

// NewSSHConnectMachine builds the ssh connect FSM (spec.md section 4.4).
// pinnedHostKey is an optional authorized_keys-format line (spec.md section
// 6's defense-in-depth pin); when non-empty, a host-key banner's printed
// SHA256 fingerprint is compared against it and a mismatch is logged
// loudly, since the spawned ssh client itself runs with host-key checking
// disabled and won't refuse the connection on our behalf.
func NewSSHConnectMachine(reg *patterns.Registry, platform string, targetPrompt *regexp.Regexp, pinnedHostKey string) (*fsm.Machine, error) {
	events, err := promptEvents(reg, platform, targetPrompt)
	if err != nil {
		return nil, err
	}
	events = append(events,
		fsm.EventDef{ID: eventHostKeyFingerprint, Pattern: sshHostKeyFingerprint},
		fsm.EventDef{ID: eventKnownHostsAdded, Pattern: sshKnownHostsAdded},
		fsm.EventDef{ID: eventKeyVerifyFailed, Pattern: sshKeyVerifyFailed},
		fsm.EventDef{ID: eventProtocolMismatch, Pattern: sshProtocolMismatch},
	)

	var expectedFingerprint string
	if pinnedHostKey != "" {
		fp, err := PinnedHostKeyFingerprint(pinnedHostKey)
		if err != nil {
			logging.Warnf("protocol: could not parse pinned host key, skipping host-key pin check: %v", err)
		} else {
			expectedFingerprint = fp
		}
	}

	sendYes := fsm.Call(func(c *fsm.Context) bool {
		if expectedFingerprint != "" {
			banner := c.LastMatch.Before + c.LastMatch.Text + c.LastMatch.After
			if seen := sshBannerFingerprint.FindString(banner); seen != "" && seen != expectedFingerprint {
				logging.Errorf("protocol: ssh host key fingerprint mismatch: got %s, pinned %s", seen, expectedFingerprint)
			}
		}
		c.Channel.SendLine("yes")
		return true
	})

	one := []fsm.State{stateSSHInit}
	transitions := []fsm.Transition{
		{Event: eventHostKeyFingerprint, States: one, Next: stateSSHInit, Action: sendYes},
		{Event: eventKnownHostsAdded, States: one, Next: stateSSHInit, Action: fsm.Noop()},
		{Event: eventKeyVerifyFailed, States: one, Next: fsm.Terminal, Action: fsm.Raise(cerrors.NewConnectionError("ssh host key verification failed", "", nil))},
		{Event: eventProtocolMismatch, States: one, Next: fsm.Terminal, Action: fsm.Raise(ErrRetrySSHv1)},
		{Event: eventUsername, States: one, Next: fsm.Terminal, Action: fsm.Noop()},
		{Event: eventPassword, States: one, Next: fsm.Terminal, Action: fsm.Noop()},
		{Event: eventPrompt, States: one, Next: fsm.Terminal, Action: fsm.Noop()},
		{Event: eventUnableToConnect, States: one, Next: fsm.Terminal, Action: fsm.Raise(cerrors.NewConnectionError("unable to connect", "", nil))},
		{Event: fsm.EventTimeout, States: one, Next: fsm.Terminal, Action: fsm.Raise(cerrors.NewConnectionTimeoutError("timed out waiting for an ssh login prompt", "", nil))},
	}

	return fsm.NewMachine("ssh-connect", events, transitions), nil
}

// SSHConnect runs the ssh connect FSM once against an already-spawned
// channel. Callers implementing the "respawn with -1 on protocol mismatch"
// behavior should catch ErrRetrySSHv1, close the channel, spawn again with
// sshv1=true, and call SSHConnect a second time; a second ErrRetrySSHv1 (or
// any other error) at that point is fatal, matching spec.md section 4.4.
// pinnedHostKey is passed straight through to NewSSHConnectMachine; pass ""
// when the caller has no pin for this hop.
func SSHConnect(ctx context.Context, ch expect.Channel, reg *patterns.Registry, platform string, targetPrompt *regexp.Regexp, pinnedHostKey string) (*fsm.Context, error) {
	m, err := NewSSHConnectMachine(reg, platform, targetPrompt, pinnedHostKey)
	if err != nil {
		return nil, err
	}
	fctx := fsm.NewContext(ch, stateSSHInit)
	if err := m.Run(ctx, fctx, ""); err != nil {
		return nil, err
	}
	return fctx, nil
}

// SSHDisconnect sends Ctrl-C, the documented ssh disconnect signal
// (spec.md section 4.4: "Disconnect sends Ctrl-C").
func SSHDisconnect(ch expect.Channel) error {
	return ch.SendControl('c')
}
