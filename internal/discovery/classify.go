// Package discovery implements the Discovery Pipeline spec.md section 4.7
// describes: probe a freshly-connected device with a generic driver, work
// out its platform/family/OS from the probe output, decide whether the
// session is attached to a console port, then re-instantiate the matching
// platform driver over the already-open channel and persist the result.
package discovery

import (
	"regexp"
	"strings"

	"github.com/alexpitcher/condoor/internal/patterns"
)

var (
	reVersionGeneric = regexp.MustCompile(`Version (.*?)[ ,\n\[]`)
	reVersionNXOS     = regexp.MustCompile(`System version:\s*(.*)`)
	reFamilyShort     = regexp.MustCompile(`(?i)cisco (\S+) `)
	reFamilyProcessor = regexp.MustCompile(`(?i)cisco (\S+)(?: .*)? processor`)
	reBuildInfo       = regexp.MustCompile(`(?i)build information`)
	reXRAdminSoftware = regexp.MustCompile(`(?i)xr admin software`)
)

// ExtractOSVersion implements spec.md section 4.7 step 3.
func ExtractOSVersion(probeOutput string) string {
	if m := reVersionNXOS.FindStringSubmatch(probeOutput); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := reVersionGeneric.FindStringSubmatch(probeOutput); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// ExtractOSType implements spec.md section 4.7 step 4.
func ExtractOSType(probeOutput string) string {
	switch {
	case strings.Contains(probeOutput, "XR"):
		osType := "XR"
		if reBuildInfo.MatchString(probeOutput) {
			osType = "eXR"
		}
		if reXRAdminSoftware.MatchString(probeOutput) {
			osType = "Calvados"
		}
		return osType
	case strings.Contains(probeOutput, "XE"):
		return "XE"
	case strings.Contains(probeOutput, "NX-OS"):
		return "NX-OS"
	default:
		return "IOS"
	}
}

// ExtractFamily implements spec.md section 4.7 step 5: extract the raw
// chassis family token. The token is returned as found; callers pass it to
// Normalize for the canonical platform name.
func ExtractFamily(probeOutput string) string {
	if m := reFamilyProcessor.FindStringSubmatch(probeOutput); m != nil {
		return m[1]
	}
	if m := reFamilyShort.FindStringSubmatch(probeOutput); m != nil {
		return m[1]
	}
	return ""
}

// Normalize canonicalizes a raw family token given the already-extracted
// osType, per the prefix table in spec.md section 4.7 step 5.
func Normalize(rawFamily, osType string) string {
	switch {
	case strings.HasPrefix(rawFamily, "ASR9K"):
		return "ASR9K"
	case strings.HasPrefix(rawFamily, "NCS-6"):
		return "NCS6K"
	case strings.HasPrefix(rawFamily, "NCS-4"):
		return "NCS4K"
	case strings.HasPrefix(rawFamily, "NCS-50"):
		return "NCS5K"
	case strings.HasPrefix(rawFamily, "NCS-55"):
		return "NCS5500"
	case strings.HasPrefix(rawFamily, "NCS1") || strings.HasPrefix(rawFamily, "NCS-1"):
		return "NCS1K"
	case strings.HasPrefix(rawFamily, "CRS"):
		return "CRS"
	case strings.HasPrefix(rawFamily, "ASR-9") && osType == "XE":
		return "ASR900"
	case strings.HasPrefix(rawFamily, "A9") && osType == "IOS":
		return "ASR900"
	case strings.HasPrefix(rawFamily, "Nexus9000") && osType == "NX-OS":
		return "N9K"
	default:
		return rawFamily
	}
}

// DriverPlatform maps an extracted os_type to the internal/patterns and
// internal/platform key it corresponds to (spec.md section 4.6's platform
// set is coarser than section 4.7's os_type classification: eXR and
// Calvados both live on the "64-bit" side of the driver table).
func DriverPlatform(osType string) string {
	switch osType {
	case "Calvados":
		return patterns.PlatformCalvados
	case "eXR":
		return patterns.PlatformXR64
	case "XR":
		return patterns.PlatformXR
	case "NX-OS":
		return patterns.PlatformNXOS
	default: // IOS, XE
		return patterns.PlatformIOS
	}
}

// consoleLine matches one "show users" row; isConsoleLine reports whether
// the "*" (current session) row names a console-ish line type (spec.md
// section 4.7 step 6).
var consoleLine = regexp.MustCompile(`(?m)^\s*\*?\s*(\d+)\s+(vty|con|tty|aux)\b`)

// IsConsole implements spec.md section 4.7 step 6: scan "show users" output
// for the line marked with "*" and classify its line type.
func IsConsole(showUsersOutput string) bool {
	for _, line := range strings.Split(showUsersOutput, "\n") {
		if !strings.Contains(line, "*") {
			continue
		}
		m := consoleLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		return m[2] != "vty"
	}
	return false
}
