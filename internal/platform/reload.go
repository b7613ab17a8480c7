package platform

import (
	"context"
	"regexp"
	"time"

	"github.com/alexpitcher/condoor/internal/cerrors"
	"github.com/alexpitcher/condoor/internal/expect"
	"github.com/alexpitcher/condoor/internal/patterns"
)

// ReloadResult reports how a reload dialog ended (spec.md section 4.6.1).
type ReloadResult struct {
	// NeedsReconnect is true when the device dropped the session and the
	// caller (the Connection Facade) must reconnect from the last hop.
	NeedsReconnect bool
	Message        string
}

// ReloadOptions configures the dialog variations spec.md section 4.6.1
// calls out ("reply yes or no per flag", "optionally run copy
// running-config startup-config").
type ReloadOptions struct {
	SaveConfig        bool
	RommonBootCommand string
	Timeout           time.Duration
}

type reloadFunc func(ctx context.Context, ch expect.Channel, reg *patterns.Registry, d *Driver, opts ReloadOptions) (*ReloadResult, error)

// Reload runs this platform's reload dialog (spec.md section 4.6: "reload
// (rommonBootCommand, timeout)").
func (d *Driver) Reload(ctx context.Context, ch expect.Channel, reg *patterns.Registry, opts ReloadOptions) (*ReloadResult, error) {
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Minute
	}
	if opts.RommonBootCommand == "" {
		opts.RommonBootCommand = "boot"
	}
	return d.reload(ctx, ch, reg, d, opts)
}

func reloadUnsupported(ctx context.Context, ch expect.Channel, reg *patterns.Registry, d *Driver, opts ReloadOptions) (*ReloadResult, error) {
	return nil, cerrors.NewCommandError("reload is not supported on this platform", "", "reload", nil)
}

// Literal dialog text spec.md section 4.6.1 quotes verbatim. These are
// command-dialog artifacts of a specific operation, not platform-identity
// patterns, so (unlike prompts/username/password) they live here rather
// than in the Pattern Registry.
var (
	reConsoleAvailable   = regexp.MustCompile(`(?i)ios con\d+/\S+/cpu\d+ is now available`)
	reConsoleStandby     = regexp.MustCompile(`(?i)ios con\d+/\S+/cpu\d+ is in standby`)
	rePressReturnDialog  = regexp.MustCompile(`(?i)press return`)
	reSysConfigInProcess = regexp.MustCompile(`(?i)system configuration in process`)
	reNoRootUser         = regexp.MustCompile(`(?i)no root-system username is configured`)
	reSysConfigDone      = regexp.MustCompile(`(?i)system configuration completed`)
	reReloadDone         = regexp.MustCompile(`\[Done\]`)
	reReloadConfirm      = regexp.MustCompile(`(?i)proceed with reload\?\s*\[confirm\]`)
	reReloadDisallowed   = regexp.MustCompile(`(?i)reload to the rom monitor disallowed from a telnet line`)
	reHwModuleConfirm    = regexp.MustCompile(`(?i)reload hardware module ?\? ?\[no,\s*yes\]`)
	reSaveConfigPrompt   = regexp.MustCompile(`(?i)system configuration has been modified\. save\?`)
	reNXRebootWarning    = regexp.MustCompile(`(?i)this command will reboot the system`)
)

// waitConsoleAvailable blocks for the "ios conN/.../CPUn is now available"
// banner that starts the shared XR reload tail (state 3 in spec.md section
// 4.6.1), also watching for the telnet-disallowed guard so it can fail fast
// instead of timing out.
func waitConsoleAvailable(ctx context.Context, ch expect.Channel, timeout time.Duration) error {
	m, err := ch.Expect(ctx, []*regexp.Regexp{reConsoleAvailable, reReloadDisallowed}, timeout)
	if err != nil {
		return cerrors.NewConnectionTimeoutError("timed out waiting for console to become available after reload", "", err)
	}
	if m.Index == 1 {
		return cerrors.NewCommandError("reload to the ROM monitor disallowed from a telnet line", "", "admin reload location all", nil)
	}
	return nil
}

// xrPostAvailableTail runs states 5-7 of the shared XR reload tail once
// state 3's "is now available" banner has already been seen.
func xrPostAvailableTail(ctx context.Context, ch expect.Channel, timeout time.Duration) (*ReloadResult, error) {
	m, err := ch.Expect(ctx, []*regexp.Regexp{rePressReturnDialog}, timeout)
	if err != nil {
		return nil, cerrors.NewConnectionTimeoutError("timed out waiting for Press RETURN banner", "", err)
	}
	_ = m
	ch.Send("\r")

	m, err = ch.Expect(ctx, []*regexp.Regexp{reSysConfigInProcess, reNoRootUser}, timeout)
	if err != nil {
		return nil, cerrors.NewConnectionTimeoutError("timed out waiting for post-reload configuration banner", "", err)
	}
	if m.Index == 1 {
		return &ReloadResult{NeedsReconnect: true, Message: "no root-system username configured"}, nil
	}

	if _, err := ch.Expect(ctx, []*regexp.Regexp{reSysConfigDone}, timeout); err != nil {
		return nil, cerrors.NewConnectionTimeoutError("timed out waiting for SYSTEM CONFIGURATION COMPLETED", "", err)
	}
	ch.Send("\r")
	return &ReloadResult{NeedsReconnect: true, Message: "system configuration completed"}, nil
}

// reloadXR32 implements the IOS XR 32-bit reload dialog (spec.md section
// 4.6.1, "XR 32-bit head").
func reloadXR32(ctx context.Context, ch expect.Channel, reg *patterns.Registry, d *Driver, opts ReloadOptions) (*ReloadResult, error) {
	ch.SendLine("admin reload location all")
	if _, err := ch.Expect(ctx, []*regexp.Regexp{reReloadDone}, opts.Timeout); err != nil {
		return nil, cerrors.NewConnectionTimeoutError("timed out waiting for [Done] after reload location all", "", err)
	}
	if _, err := ch.Expect(ctx, []*regexp.Regexp{reReloadConfirm}, opts.Timeout); err != nil {
		return nil, cerrors.NewConnectionTimeoutError("timed out waiting for reload confirmation prompt", "", err)
	}
	ch.Send("\r")

	rommon, err := reg.Get(patterns.PlatformXR, patterns.Rommon)
	if err != nil {
		return nil, err
	}
	m, err := ch.Expect(ctx, []*regexp.Regexp{rommon, reConsoleAvailable, reReloadDisallowed}, opts.Timeout)
	if err != nil {
		return nil, cerrors.NewConnectionTimeoutError("timed out waiting for rommon or console banner", "", err)
	}
	switch m.Index {
	case 2:
		return nil, cerrors.NewCommandError("reload to the ROM monitor disallowed from a telnet line", "", "admin reload location all", nil)
	case 0:
		ch.SendLine(opts.RommonBootCommand)
		if err := waitConsoleAvailable(ctx, ch, opts.Timeout); err != nil {
			return nil, err
		}
	}
	return xrPostAvailableTail(ctx, ch, opts.Timeout)
}

// reloadXR64 implements the IOS XR 64-bit / XR64 reload dialog (spec.md
// section 4.6.1, "XR 64-bit / XR64 head").
func reloadXR64(ctx context.Context, ch expect.Channel, reg *patterns.Registry, d *Driver, opts ReloadOptions) (*ReloadResult, error) {
	calvados, err := reg.Get(patterns.PlatformXR64, patterns.Calvados)
	if err != nil {
		return nil, err
	}

	ch.SendLine("admin")
	if _, err := ch.Expect(ctx, []*regexp.Regexp{calvados}, opts.Timeout); err != nil {
		return nil, cerrors.NewConnectionTimeoutError("timed out entering admin/Calvados shell", "", err)
	}

	ch.SendLine("hw-module location all reload")
	if _, err := ch.Expect(ctx, []*regexp.Regexp{reHwModuleConfirm}, opts.Timeout); err != nil {
		return nil, cerrors.NewConnectionTimeoutError("timed out waiting for hw-module reload confirmation", "", err)
	}
	ch.SendLine("yes")

	if _, err := ch.Expect(ctx, []*regexp.Regexp{reReloadDone}, opts.Timeout); err != nil {
		return nil, cerrors.NewConnectionTimeoutError("timed out waiting for [Done] after hw-module reload", "", err)
	}
	if _, err := ch.Expect(ctx, []*regexp.Regexp{reConsoleStandby}, opts.Timeout); err != nil {
		return nil, cerrors.NewConnectionTimeoutError("timed out waiting for standby card banner", "", err)
	}

	if err := waitConsoleAvailable(ctx, ch, opts.Timeout); err != nil {
		return nil, err
	}
	return xrPostAvailableTail(ctx, ch, opts.Timeout)
}

// reloadIOS implements the IOS/IOS XE reload dialog (spec.md section
// 4.6.1). It does not wait for the reboot banner; the caller reconnects.
func reloadIOS(ctx context.Context, ch expect.Channel, reg *patterns.Registry, d *Driver, opts ReloadOptions) (*ReloadResult, error) {
	ch.SendLine("reload")

	m, err := ch.Expect(ctx, []*regexp.Regexp{reSaveConfigPrompt, reReloadConfirm}, opts.Timeout)
	if err != nil {
		return nil, cerrors.NewConnectionTimeoutError("timed out waiting for reload dialog", "", err)
	}
	if m.Index == 0 {
		if opts.SaveConfig {
			ch.SendLine("yes")
		} else {
			ch.SendLine("no")
		}
		if _, err := ch.Expect(ctx, []*regexp.Regexp{reReloadConfirm}, opts.Timeout); err != nil {
			return nil, cerrors.NewConnectionTimeoutError("timed out waiting for reload confirmation prompt", "", err)
		}
	}
	ch.Send("\r")
	return &ReloadResult{NeedsReconnect: true, Message: "reload sent, caller must reconnect"}, nil
}

// reloadNXOS implements the NX-OS reload dialog (spec.md section 4.6.1).
func reloadNXOS(ctx context.Context, ch expect.Channel, reg *patterns.Registry, d *Driver, opts ReloadOptions) (*ReloadResult, error) {
	if opts.SaveConfig {
		defaultPrompt, err := reg.Get(patterns.PlatformNXOS, patterns.PromptDefault)
		if err == nil {
			_, _ = Execute(ctx, ch, reg, d, defaultPrompt, nil, "copy running-config startup-config", opts.Timeout)
		}
	}

	ch.SendLine("reload")
	if _, err := ch.Expect(ctx, []*regexp.Regexp{reNXRebootWarning}, opts.Timeout); err != nil {
		return nil, cerrors.NewConnectionTimeoutError("timed out waiting for reboot warning", "", err)
	}
	ch.SendLine("y")
	return &ReloadResult{NeedsReconnect: true, Message: "reload sent, caller must reconnect"}, nil
}
