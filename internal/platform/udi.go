package platform

import (
	"context"
	"regexp"
	"time"

	"github.com/alexpitcher/condoor/internal/expect"
	"github.com/alexpitcher/condoor/internal/patterns"
)

var (
	udiNameLine = regexp.MustCompile(`(?im)^NAME:\s*"([^"]*)",?\s*DESCR:\s*"([^"]*)"`)
	udiPidLine  = regexp.MustCompile(`(?im)^PID:\s*(\S*)\s*,\s*VID:\s*(\S*)\s*,\s*SN:\s*(\S*)`)
)

// CollectUDI runs the inventory command and parses the first chassis
// record's "NAME: ... DESCR: ..." and "PID: ... VID: ... SN: ..." lines
// (spec.md section 4.6: "collectUdi").
func (d *Driver) CollectUDI(ctx context.Context, ch expect.Channel, reg *patterns.Registry, targetPrompt *regexp.Regexp, earlierPrompts []string) (UDI, error) {
	res, err := Execute(ctx, ch, reg, d, targetPrompt, earlierPrompts, d.udiCommand, 60*time.Second)
	if err != nil {
		return UDI{}, err
	}
	return parseUDI(res.Output), nil
}

func parseUDI(output string) UDI {
	var udi UDI
	if m := udiNameLine.FindStringSubmatch(output); m != nil {
		udi.Name = m[1]
		udi.Description = m[2]
	}
	if m := udiPidLine.FindStringSubmatch(output); m != nil {
		udi.PID = m[1]
		udi.VID = m[2]
		udi.SN = m[3]
	}
	return udi
}
