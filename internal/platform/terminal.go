package platform

import (
	"context"
	"regexp"
	"time"

	"github.com/alexpitcher/condoor/internal/expect"
	"github.com/alexpitcher/condoor/internal/patterns"
)

// PrepareTerminalSession sends this platform's paging/width setup commands
// in order (spec.md section 4.6: "prepareTerminalSession()"). Devices with
// no such commands (generic, Calvados) do nothing.
func (d *Driver) PrepareTerminalSession(ctx context.Context, ch expect.Channel, reg *patterns.Registry, targetPrompt *regexp.Regexp, earlierPrompts []string) error {
	for _, cmd := range d.prepareCommands {
		if _, err := Execute(ctx, ch, reg, d, targetPrompt, earlierPrompts, cmd, 30*time.Second); err != nil {
			return err
		}
	}
	return nil
}
