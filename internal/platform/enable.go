package platform

import (
	"context"
	"regexp"
	"time"

	"github.com/alexpitcher/condoor/internal/cerrors"
	"github.com/alexpitcher/condoor/internal/expect"
	"github.com/alexpitcher/condoor/internal/patterns"
)

// Enable sends "enable" and the privilege password for IOS/IOS XE devices
// (spec.md section 4.6: "enable(enablePassword?) ... for IOS/XE only").
// Every other platform's driver has EnableCapable() == false and Enable is
// a no-op, matching "For XR/NX-OS/Calvados: no-op."
func (d *Driver) Enable(ctx context.Context, ch expect.Channel, reg *patterns.Registry, targetPrompt *regexp.Regexp, enablePassword string) error {
	if !d.enableCapable {
		return nil
	}

	passwordPrompt, err := reg.Get(d.Platform, patterns.Password)
	if err != nil {
		return err
	}

	ch.Send("enable\r")
	match, err := ch.Expect(ctx, []*regexp.Regexp{passwordPrompt, targetPrompt}, 10*time.Second)
	if err != nil {
		return cerrors.NewConnectionAuthenticationError("no password prompt after enable", "", err)
	}
	if match.Index == 1 {
		// Device has no enable secret configured; already at the privileged prompt.
		return nil
	}

	_ = ch.SetEcho(false)
	ch.SendLine(enablePassword)
	_ = ch.SetEcho(true)

	match, err = ch.Expect(ctx, []*regexp.Regexp{passwordPrompt, targetPrompt}, 10*time.Second)
	if err != nil {
		return cerrors.NewConnectionAuthenticationError("no response after enable password", "", err)
	}
	if match.Index == 0 {
		return cerrors.NewConnectionAuthenticationError("Incorrect enable password", "", nil)
	}
	return nil
}
