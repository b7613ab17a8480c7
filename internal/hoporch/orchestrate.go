package hoporch

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/alexpitcher/condoor/internal/cerrors"
	"github.com/alexpitcher/condoor/internal/expect"
	"github.com/alexpitcher/condoor/internal/fsm"
	"github.com/alexpitcher/condoor/internal/hopurl"
	"github.com/alexpitcher/condoor/internal/logging"
	"github.com/alexpitcher/condoor/internal/patterns"
	"github.com/alexpitcher/condoor/internal/protocol"
)

// genericShellPrompt is what a non-target (jump host) hop is expected to
// present, per spec.md section 4.4 ("Jump-host vs target"): "$|>|#|%".
var genericShellPrompt = regexp.MustCompile(`(?m)[$>#%]\s?$`)

// Result is what a successful Connect (or a failed one that still reached
// some hops) reports back to the caller.
type Result struct {
	Channel expect.Channel
	Prompts *DetectedPromptTable
	// DetectedPrompt is the compiled pattern prompt auto-detection produced
	// for the target hop, set only when Connect was called with
	// detectPrompt=true and the heuristic (spec.md section 4.4) converged.
	// Callers that don't already have a trustworthy target prompt pattern
	// (discovery's initial generic connect) should prefer this over their
	// own catch-all pattern once it's available.
	DetectedPrompt *regexp.Regexp
	LastHop        int
	Connected      bool
	AltIndex       int
}

// Connect walks chains.Active() starting at startHop, authenticating each
// hop in turn, cycling to the next alternative chain on failure
// (spec.md section 4.5: "advance to the next alternative chain, cycling by
// lastDriverIndex"). targetPlatform/targetPrompt describe the final hop;
// every earlier hop is treated as a generic shell. When detectPrompt is
// true, the target hop also runs prompt auto-detection (spec.md section
// 4.4/4.5: "if the hop is the target and detect-prompt is requested, run
// prompt auto-detection").
func Connect(ctx context.Context, reg *patterns.Registry, targetPlatform string, targetPrompt *regexp.Regexp, chains *hopurl.Chains, startHop int, reach *ReachabilityChecker, detectPrompt bool) (*Result, error) {
	if reach == nil {
		reach = DefaultReachabilityChecker()
	}

	attempts := len(chains.Alternatives)
	if attempts == 0 {
		return nil, cerrors.NewInvalidHopInfoError("no hop chain alternatives configured", "", nil)
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		hops := chains.Active()
		result, err := connectChain(ctx, reg, targetPlatform, targetPrompt, hops, startHop, reach, detectPrompt)
		if err == nil {
			result.AltIndex = chains.LastDriverIndex
			return result, nil
		}
		lastErr = err
		logging.Warnf("hop chain alternative %d failed: %v", chains.LastDriverIndex, err)
		chains.Advance()
		startHop = 0
	}
	return nil, fmt.Errorf("hoporch: exhausted %d hop chain alternative(s): %w", attempts, lastErr)
}

func connectChain(ctx context.Context, reg *patterns.Registry, targetPlatform string, targetPrompt *regexp.Regexp, hops hopurl.Chain, startHop int, reach *ReachabilityChecker, detectPrompt bool) (*Result, error) {
	prompts := NewDetectedPromptTable(len(hops))
	var ch expect.Channel
	var detected *regexp.Regexp

	for i := startHop; i < len(hops); i++ {
		hop := hops[i]
		isTarget := i == len(hops)-1

		if err := reach.Check(ctx, hop.Host, hop.Port); err != nil {
			return nil, fmt.Errorf("hoporch: hop %d (%s:%d) unreachable: %w", i+1, hop.Host, hop.Port, err)
		}

		name, args := protocol.SpawnCommand(hop, false)
		spawned, err := expect.Spawn(name, args...)
		if err != nil {
			return nil, cerrors.NewConnectionError(fmt.Sprintf("failed to spawn %s for hop %d", name, i+1), hop.Host, err)
		}
		ch = spawned

		prompt := targetPrompt
		platform := targetPlatform
		if !isTarget {
			prompt = genericShellPrompt
			platform = patterns.PlatformGeneric
		}

		fctx, err := connectAndAuthenticate(ctx, ch, reg, platform, prompt, hop)
		if err != nil {
			ch.Close()
			if isTarget && hop.Scheme == hopurl.SchemeSSH && errors.Is(err, protocol.ErrRetrySSHv1) {
				fctx, ch, err = retrySSHv1(ctx, reg, platform, prompt, hop)
			}
			if err != nil {
				return &Result{Prompts: prompts, LastHop: i, Connected: false}, err
			}
		}

		promptText := fctx.LastMatch.Text
		if promptText == "" {
			promptText = fctx.LastMatch.After
		}

		if isTarget && detectPrompt {
			if text, re, derr := DetectPrompt(ch, 5*time.Second); derr == nil {
				promptText, detected = text, re
			} else {
				logging.Warnf("hoporch: prompt auto-detection on hop %d did not converge, keeping connect-dialog match: %v", i+1, derr)
			}
		}

		prompts.Set(i+1, promptText)
	}

	return &Result{Channel: ch, Prompts: prompts, DetectedPrompt: detected, LastHop: len(hops), Connected: true}, nil
}

func connectAndAuthenticate(ctx context.Context, ch expect.Channel, reg *patterns.Registry, platform string, prompt *regexp.Regexp, hop hopurl.HopDescriptor) (*fsm.Context, error) {
	var fctx *fsm.Context
	var err error

	switch hop.Scheme {
	case hopurl.SchemeSSH:
		// No pinned host key is threaded down to individual hops yet; "" tells
		// SSHConnect to skip the fingerprint comparison (spec.md section 6).
		fctx, err = protocol.SSHConnect(ctx, ch, reg, platform, prompt, "")
	default:
		fctx, err = protocol.TelnetConnect(ctx, ch, reg, platform, prompt, false)
	}
	if err != nil {
		return nil, err
	}

	if fctx.LastEvent == "username" || fctx.LastEvent == "password" {
		creds := protocol.Credentials{Username: hop.Username, Password: hop.Password}
		return protocol.Authenticate(ctx, ch, reg, platform, prompt, hop.Host, creds, fctx.LastEvent)
	}
	return fctx, nil
}

func retrySSHv1(ctx context.Context, reg *patterns.Registry, platform string, prompt *regexp.Regexp, hop hopurl.HopDescriptor) (*fsm.Context, expect.Channel, error) {
	name, args := protocol.SpawnCommand(hop, true)
	ch, err := expect.Spawn(name, args...)
	if err != nil {
		return nil, nil, cerrors.NewConnectionError("failed to respawn ssh -1", hop.Host, err)
	}
	fctx, err := connectAndAuthenticate(ctx, ch, reg, platform, prompt, hop)
	if err != nil {
		ch.Close()
		return nil, nil, cerrors.NewConnectionError("ssh -1 fallback also failed", hop.Host, err)
	}
	return fctx, ch, nil
}

// Disconnect performs the graceful teardown dialog (spec.md section 4.5):
// send "exit" up to 10 times, recognizing the hop's own shell prompt
// returning, EOF, or a "console is now available" banner (in which case
// send Ctrl-C, then Ctrl-], then "quit").
func Disconnect(ctx context.Context, ch expect.Channel, shellPrompt *regexp.Regexp) error {
	consoleBanner := regexp.MustCompile(`(?i)console is now available`)
	events := []*regexp.Regexp{shellPrompt, consoleBanner}

	for i := 0; i < 10; i++ {
		ch.SendLine("exit")
		match, err := ch.Expect(ctx, events, 5*time.Second)
		if errors.Is(err, expect.ErrEOF) {
			return ch.Close()
		}
		if err != nil {
			continue
		}
		if match.Index == 0 {
			return ch.Close()
		}
		// console-server banner: we're still attached to a terminal server.
		ch.SendControl('c')
		ch.SendControl(']')
		ch.SendLine("quit")
	}
	return ch.Close()
}
