package patterns

// definitions is the static, read-only configuration loaded once at startup.
// Values are regexp source text (re2 syntax, since that is what Go's
// regexp package implements) rather than PCRE; anchors and character
// classes below are chosen to be valid under both.
var definitions = map[string]map[Key]entry{
	PlatformGeneric: {
		Prompt:           str(`(?m)^([\w.\-/:]+)(\((?:config|admin)[^)]*\))?[>#]\s?$`),
		PromptDynamic:    described(`(?m)^{prompt}(\((?:config|admin)[^)]*\))?[>#]\s?$`, "hostname-anchored prompt, {prompt} filled at runtime"),
		PromptDefault:    str(`(?m)^[\w.\-/:]+[>#]\s?$`),
		Username:         str(`(?i)(username|login):\s?$`),
		Password:         str(`(?i)password:\s?$`),
		More:             str(`--\s?[Mm]ore\s?--`),
		Rommon:           str(`(?m)^rommon\s+\d+\s*>\s*$`),
		Standby:          described(`(?i)standby console`, "connected to the standby RP's console"),
		PressReturn:      str(`(?i)press return to get started`),
		UnableToConnect:  str(`(?i)(unable to connect|connection refused|no route to host|could not resolve hostname)`),
		ConnectionClosed: str(`(?i)connection closed by (foreign host|remote host)`),
		SyntaxError:      str(`(?i)(%\s*invalid input|% ?ambiguous command|% ?incomplete command|% ?unknown command)`),
		BufferOverflow:   str(`(?i)(input buffer overflow|% ?command too long|command exceeded max length)`),
		Calvados:         str(`(?m)^[\w.\-]+:~?\$\s?$`),
		XML:              str(`(?m)^XML>\s?$`),
	},
	PlatformIOS: {
		PromptDynamic: described(`(?m)^{prompt}(\(config[^)]*\))?[>#]\s?$`, "IOS/IOS XE prompt"),
		SyntaxError:   union(PlatformGeneric),
	},
	PlatformXR: {
		PromptDynamic:    described(`(?m)^RP/\d+/(?:RP|RSP)\d+/CPU\d+:{prompt}#\s?$`, "IOS XR 32-bit active-RP prompt"),
		PromptDefault:    str(`(?m)^RP/\d+/(?:RP|RSP)\d+/CPU\d+:[\w.\-]+#\s?$`),
		BufferOverflow:   described(`(?i)input buffer overflow`, "XR reports this verbatim banner"),
		UnableToConnect:  described(`(?i)(reload to the rom monitor disallowed from a telnet line|unable to connect|connection refused)`, "XR rommon-reload guard plus generic"),
		ConnectionClosed: union(PlatformGeneric),
	},
	PlatformXR64: {
		PromptDynamic: described(`(?m)^RP/\d+/(?:RP|RSP)\d+/CPU\d+:{prompt}#\s?$`, "IOS XR 64-bit active-RP prompt"),
		PromptDefault: union(PlatformXR),
		Calvados:      described(`(?m)^sysadmin-vm:\d+_RP\d+#\s?$`, "Admin/Calvados partition prompt"),
	},
	PlatformNXOS: {
		PromptDynamic: described(`(?m)^{prompt}[#>]\s?$`, "NX-OS prompt, no parenthesized config suffix"),
		PromptDefault: str(`(?m)^[\w.\-]+[#>]\s?$`),
	},
	PlatformCalvados: {
		PromptDynamic: described(`(?m)^sysadmin-vm:\d+_RP\d+:{prompt}#\s?$`, "Calvados prompt with hostname"),
		PromptDefault: str(`(?m)^sysadmin-vm:\d+_RP\d+#\s?$`),
		Username:      union(PlatformGeneric),
		Password:      union(PlatformGeneric),
	},
}
