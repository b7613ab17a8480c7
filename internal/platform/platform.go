// Package platform implements the per-OS "personality" spec.md section 4.6
// describes: which prompt components union into the target prompt, how a
// hostname is pulled out of a matched prompt, terminal-session setup, UDI
// collection, enable, and the reload dialogs.
//
// Grounded on the teacher's per-vendor driver tables in
// internal/console/fingerprint (one entry per platform keyed the same way
// internal/patterns resolves platform inheritance); the command-execution
// core (Execute, in exec.go) is the "wait_for_prompt" FSM spec.md section
// 4.6.2 names, built the same way the connect/authenticate FSMs in
// internal/protocol are.
package platform

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/alexpitcher/condoor/internal/patterns"
)

// UDI is the parsed "show inventory" chassis record (spec.md section 4.6:
// "collectUdi").
type UDI struct {
	Name        string
	Description string
	PID         string
	VID         string
	SN          string
}

func (u UDI) String() string {
	return fmt.Sprintf("UDI: name=%q descr=%q pid=%q vid=%q sn=%q", u.Name, u.Description, u.PID, u.VID, u.SN)
}

// Mode is the device's current CLI mode, tracked across command execution
// (spec.md section 4.6.2: "update mode ∈ {config, admin, global}").
type Mode string

const (
	ModeGlobal Mode = "global"
	ModeConfig Mode = "config"
	ModeAdmin  Mode = "admin"
)

// Driver is the per-platform personality every discovered device gets
// (spec.md section 4.6).
type Driver struct {
	Platform          string
	promptComponents  []patterns.Key
	prepareCommands   []string
	udiCommand        string
	hostnamePattern   *regexp.Regexp // nil means "no hostname to extract" (Calvados/admin)
	enableCapable     bool
	reload            reloadFunc
}

// New returns the Driver for platform, falling back to the generic driver
// for an unrecognized name (spec.md section 9: unknown platform degrades to
// generic rather than failing outright once discovery has at least reached
// a shell).
func New(platform string) *Driver {
	if d, ok := drivers[platform]; ok {
		return d
	}
	return drivers[patterns.PlatformGeneric]
}

var drivers map[string]*Driver

func init() {
	drivers = map[string]*Driver{
		patterns.PlatformGeneric: {
			Platform:         patterns.PlatformGeneric,
			promptComponents: []patterns.Key{patterns.PromptDynamic, patterns.PromptDefault},
			prepareCommands:  nil,
			udiCommand:       "show inventory",
			hostnamePattern:  genericHostnamePattern,
			enableCapable:    false,
			reload:           reloadUnsupported,
		},
		patterns.PlatformIOS: {
			Platform:         patterns.PlatformIOS,
			promptComponents: []patterns.Key{patterns.PromptDynamic, patterns.PromptDefault, patterns.Rommon},
			prepareCommands:  []string{"terminal len 0", "terminal width 0"},
			udiCommand:       "show inventory",
			hostnamePattern:  iosHostnamePattern,
			enableCapable:    true,
			reload:           reloadIOS,
		},
		patterns.PlatformXR: {
			Platform:         patterns.PlatformXR,
			promptComponents: []patterns.Key{patterns.PromptDynamic, patterns.PromptDefault, patterns.Rommon, patterns.XML},
			prepareCommands:  []string{"terminal len 0", "terminal width 511"},
			udiCommand:       "admin show inventory chassis",
			hostnamePattern:  xrHostnamePattern,
			enableCapable:    false,
			reload:           reloadXR32,
		},
		patterns.PlatformXR64: {
			Platform:         patterns.PlatformXR64,
			promptComponents: []patterns.Key{patterns.PromptDynamic, patterns.PromptDefault, patterns.Rommon, patterns.XML, patterns.Calvados},
			prepareCommands:  []string{"terminal len 0", "terminal width 511"},
			udiCommand:       "admin show inventory chassis",
			hostnamePattern:  xrHostnamePattern,
			enableCapable:    false,
			reload:           reloadXR64,
		},
		patterns.PlatformNXOS: {
			Platform:         patterns.PlatformNXOS,
			promptComponents: []patterns.Key{patterns.PromptDynamic, patterns.PromptDefault},
			prepareCommands:  []string{"terminal len 0", "terminal width 511"},
			udiCommand:       "show inventory",
			hostnamePattern:  nxosHostnamePattern,
			enableCapable:    false,
			reload:           reloadNXOS,
		},
		patterns.PlatformCalvados: {
			Platform:         patterns.PlatformCalvados,
			promptComponents: []patterns.Key{patterns.PromptDynamic, patterns.PromptDefault},
			prepareCommands:  nil,
			udiCommand:       "show inventory chassis",
			hostnamePattern:  nil,
			enableCapable:    false,
			reload:           reloadUnsupported,
		},
	}
}

var (
	genericHostnamePattern = regexp.MustCompile(`(?m)^([\w.\-/:]+)(\((?:config|admin)[^)]*\))?[>#]\s?$`)
	iosHostnamePattern     = regexp.MustCompile(`(?m)^(\S+?)(\(config[^)]*\))?[>#]\s?$`)
	xrHostnamePattern      = regexp.MustCompile(`(?m)^RP/\d+/(?:RP|RSP)\d+/CPU\d+:(\S+)#\s?$`)
	nxosHostnamePattern    = regexp.MustCompile(`(?m)^(\S+?)[#>]\s?$`)
)

// TargetPromptPattern unions promptComponents into one compiled regex
// anchored to hostname, per spec.md section 4.6's ordered-component list.
func (d *Driver) TargetPromptPattern(reg *patterns.Registry, hostname string) (*regexp.Regexp, error) {
	parts := make([]string, 0, len(d.promptComponents))
	for _, key := range d.promptComponents {
		var src string
		var err error
		if key == patterns.PromptDynamic {
			src, err = dynamicSource(reg, d.Platform, hostname)
		} else {
			src, err = reg.Source(d.Platform, key)
		}
		if err != nil {
			return nil, fmt.Errorf("platform %s: target prompt component %s: %w", d.Platform, key, err)
		}
		parts = append(parts, "(?:"+src+")")
	}
	return regexp.Compile(strings.Join(parts, "|"))
}

func dynamicSource(reg *patterns.Registry, platform string, hostname string) (string, error) {
	src, err := reg.Source(platform, patterns.PromptDynamic)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(src, "{prompt}", regexp.QuoteMeta(hostname)), nil
}

// DetermineHostname extracts the hostname-bearing component from a matched
// target-prompt string, ignoring Calvados/admin prompts that carry none
// (spec.md section 4.6: "ignore Calvados/admin prompts").
func (d *Driver) DetermineHostname(promptText string) string {
	if d.hostnamePattern == nil {
		return ""
	}
	m := d.hostnamePattern.FindStringSubmatch(strings.TrimRight(promptText, "\r\n"))
	if m == nil {
		return ""
	}
	return m[1]
}

// EnableCapable reports whether enable() is meaningful for this platform
// (spec.md section 4.6: "for IOS/XE only"; a no-op everywhere else).
func (d *Driver) EnableCapable() bool { return d.enableCapable }

// PrepareCommands are sent in order during prepareTerminalSession.
func (d *Driver) PrepareCommands() []string { return d.prepareCommands }

// UDICommand is the inventory command this platform's collectUdi runs.
func (d *Driver) UDICommand() string { return d.udiCommand }
