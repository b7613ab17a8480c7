package discovery

import (
	"context"
	"errors"
	"regexp"
	"time"

	"github.com/alexpitcher/condoor/internal/cache"
	"github.com/alexpitcher/condoor/internal/cerrors"
	"github.com/alexpitcher/condoor/internal/expect"
	"github.com/alexpitcher/condoor/internal/hoporch"
	"github.com/alexpitcher/condoor/internal/hopurl"
	"github.com/alexpitcher/condoor/internal/logging"
	"github.com/alexpitcher/condoor/internal/patterns"
	"github.com/alexpitcher/condoor/internal/platform"
)

// Result is what a successful discovery run hands back to the Connection
// Facade: the live channel (already transferred to the real driver, never
// reconnected), the platform driver and compiled target prompt to keep
// using, and the persisted record.
type Result struct {
	Channel      expect.Channel
	Driver       *platform.Driver
	TargetPrompt *regexp.Regexp
	Record       cache.DeviceDescriptionRecord
	LastHop      int
	Prompts      []string
}

// Discover runs the Discovery Pipeline (spec.md section 4.7): connect with
// a generic driver, probe with "show version brief" (falling back to "show
// version" on syntax error), classify os_version/os_type/family/platform,
// decide console attachment from "show users", then collect the prompt and
// UDI and re-instantiate the real platform driver over the same channel —
// no reconnect. store may be nil to skip persistence (useful in tests).
func Discover(ctx context.Context, reg *patterns.Registry, chains *hopurl.Chains, reach *hoporch.ReachabilityChecker, store *cache.Store) (*Result, error) {
	genericPrompt, err := reg.Get(patterns.PlatformGeneric, patterns.Prompt)
	if err != nil {
		return nil, err
	}

	// detectPrompt=true: the target's prompt format isn't known yet at this
	// point in the pipeline, so the registry's catch-all genericPrompt may
	// only loosely match it. Auto-detection (spec.md section 4.4) nails
	// down the exact text, and connRes.DetectedPrompt supersedes
	// genericPrompt for every probe below once it converges.
	connRes, err := hoporch.Connect(ctx, reg, patterns.PlatformGeneric, genericPrompt, chains, 0, reach, true)
	if err != nil {
		return nil, err
	}
	ch := connRes.Channel
	earlierPrompts := connRes.Prompts.EarlierOnly()
	genericDriver := platform.New(patterns.PlatformGeneric)

	if connRes.DetectedPrompt != nil {
		genericPrompt = connRes.DetectedPrompt
	}

	probe, err := probeVersion(ctx, ch, reg, genericDriver, genericPrompt, earlierPrompts)
	if err != nil {
		return nil, err
	}

	osVersion := ExtractOSVersion(probe.Output)
	osType := ExtractOSType(probe.Output)
	family := Normalize(ExtractFamily(probe.Output), osType)

	usersRes, err := platform.Execute(ctx, ch, reg, genericDriver, genericPrompt, earlierPrompts, "show users", 30*time.Second)
	if err != nil {
		return nil, err
	}
	isConsole := IsConsole(usersRes.Output)

	driverPlatform := DriverPlatform(osType)
	realDriver := platform.New(driverPlatform)

	hostname := genericDriver.DetermineHostname(probe.TargetPromptText)
	targetPrompt, err := realDriver.TargetPromptPattern(reg, hostname)
	if err != nil {
		return nil, err
	}

	// Disable paging and set terminal width before anything else runs over
	// this driver (spec.md section 4.6: "prepareTerminalSession()"), so the
	// UDI probe right below doesn't get truncated by a "--More--" prompt.
	if err := realDriver.PrepareTerminalSession(ctx, ch, reg, targetPrompt, earlierPrompts); err != nil {
		return nil, err
	}

	udi, err := realDriver.CollectUDI(ctx, ch, reg, targetPrompt, earlierPrompts)
	if err != nil {
		return nil, err
	}

	hops := chains.Active()
	rawHops := make([]string, len(hops))
	for i, h := range hops {
		rawHops[i] = h.String()
	}
	key := cache.HopChainKey(rawHops)

	rec := cache.DeviceDescriptionRecord{
		Platform:  driverPlatform,
		Family:    family,
		OSType:    osType,
		OSVersion: osVersion,
		Hostname:  hostname,
		IsConsole: isConsole,
		UDIName:   udi.Name,
		UDIDescr:  udi.Description,
		UDIPid:    udi.PID,
		UDIVid:    udi.VID,
		UDISerial: udi.SN,
	}

	if store != nil {
		if err := store.Put(key, &rec); err != nil {
			logging.Warnf("discovery: failed to persist device record: %v", err)
		}
	}

	return &Result{
		Channel:      ch,
		Driver:       realDriver,
		TargetPrompt: targetPrompt,
		Record:       rec,
		LastHop:      connRes.LastHop,
		Prompts:      earlierPrompts,
	}, nil
}

// probeVersion runs "show version brief", falling back to "show version"
// when the device reports a syntax error for the brief form (spec.md
// section 4.7 step 2).
func probeVersion(ctx context.Context, ch expect.Channel, reg *patterns.Registry, d *platform.Driver, targetPrompt *regexp.Regexp, earlierPrompts []string) (*platform.ExecResult, error) {
	res, err := platform.Execute(ctx, ch, reg, d, targetPrompt, earlierPrompts, "show version brief", 120*time.Second)
	var syntaxErr *cerrors.CommandSyntaxError
	if errors.As(err, &syntaxErr) {
		return platform.Execute(ctx, ch, reg, d, targetPrompt, earlierPrompts, "show version", 120*time.Second)
	}
	return res, err
}
