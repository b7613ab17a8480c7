package patterns

// Key identifies one well-known pattern slot (spec.md section 4.1).
type Key string

const (
	Prompt           Key = "prompt"
	PromptDynamic    Key = "prompt_dynamic"
	PromptDefault    Key = "prompt_default"
	Username         Key = "username"
	Password         Key = "password"
	More             Key = "more"
	Rommon           Key = "rommon"
	Standby          Key = "standby"
	PressReturn      Key = "press_return"
	UnableToConnect  Key = "unable_to_connect"
	ConnectionClosed Key = "connection_closed"
	SyntaxError      Key = "syntax_error"
	BufferOverflow   Key = "buffer_overflow"
	Calvados         Key = "calvados"
	XML              Key = "xml"
)

// WellKnownKeys enumerates every key the core relies on. Every platform must
// resolve every one of these (directly or via generic fallback) or registry
// construction fails (spec.md section 8: "registry.get(P, K) compiles to a
// valid regex" for every platform P and key K used by the core).
var WellKnownKeys = []Key{
	Prompt, PromptDynamic, PromptDefault, Username, Password, More, Rommon,
	Standby, PressReturn, UnableToConnect, ConnectionClosed, SyntaxError,
	BufferOverflow, Calvados, XML,
}

// GenericPlatform is the fallback platform name every specific platform
// inherits missing keys from.
const GenericPlatform = "generic"

// Known platform names (spec.md section 4.6).
const (
	PlatformGeneric  = "generic"
	PlatformIOS      = "IOS"
	PlatformXR       = "XR"
	PlatformXR64     = "XR64"
	PlatformNXOS     = "NX-OS"
	PlatformCalvados = "Calvados"
)

// Platforms lists every platform the registry is expected to serve.
var Platforms = []string{
	PlatformGeneric, PlatformIOS, PlatformXR, PlatformXR64, PlatformNXOS, PlatformCalvados,
}
