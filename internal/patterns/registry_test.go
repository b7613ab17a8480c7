package patterns

import (
	"strings"
	"testing"
)

func TestNewRegistryCompilesEveryWellKnownKey(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	for _, platform := range Platforms {
		for _, key := range WellKnownKeys {
			if _, err := reg.Get(platform, key); err != nil {
				// prompt_dynamic (any source with a {prompt} placeholder)
				// legitimately requires CompileDynamic; anything else
				// failing is a real bug.
				if src, srcErr := reg.Source(platform, key); srcErr != nil || !strings.Contains(src, "{prompt}") {
					t.Errorf("Get(%s, %s): %v", platform, key, err)
				}
			}
		}
	}
}

func TestGenericFallback(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	// IOS does not redefine "more"; it must fall through to generic.
	iosMore, err := reg.Get(PlatformIOS, More)
	if err != nil {
		t.Fatalf("Get(IOS, more): %v", err)
	}
	genericMore, err := reg.Get(PlatformGeneric, More)
	if err != nil {
		t.Fatalf("Get(generic, more): %v", err)
	}
	if iosMore.String() != genericMore.String() {
		t.Errorf("IOS more pattern %q should equal generic %q", iosMore.String(), genericMore.String())
	}
}

func TestCompileDynamic(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	re, err := reg.CompileDynamic(PlatformIOS, PromptDynamic, "CSG-1202-ASR901")
	if err != nil {
		t.Fatalf("CompileDynamic: %v", err)
	}
	if !re.MatchString("CSG-1202-ASR901>") {
		t.Errorf("expected prompt match for CSG-1202-ASR901>")
	}
	if !re.MatchString("CSG-1202-ASR901(config)#") {
		t.Errorf("expected config-mode prompt match")
	}
	if re.MatchString("other-host>") {
		t.Errorf("should not match a different hostname")
	}
}

func TestCompileDynamicXR(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}

	re, err := reg.CompileDynamic(PlatformXR, PromptDynamic, "ios")
	if err != nil {
		t.Fatalf("CompileDynamic: %v", err)
	}
	if !re.MatchString("RP/0/RP0/CPU0:ios#") {
		t.Errorf("expected XR prompt match, pattern=%s", re.String())
	}
}

func TestUnionSyntaxErrorIOSMatchesGeneric(t *testing.T) {
	reg, err := NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	re, err := reg.Get(PlatformIOS, SyntaxError)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !re.MatchString("% Invalid input detected") {
		t.Errorf("expected syntax error match")
	}
}

func TestMissingKeyErrorsAtConstruction(t *testing.T) {
	if _, err := NewRegistry(); err != nil {
		t.Fatalf("real definitions must compile cleanly: %v", err)
	}

	// Remove a generic key for the duration of the test: no platform can
	// then resolve it, so construction itself must fail.
	saved := definitions[PlatformGeneric][More]
	delete(definitions[PlatformGeneric], More)
	defer func() { definitions[PlatformGeneric][More] = saved }()
	if _, err := NewRegistry(); err == nil {
		t.Fatal("NewRegistry() succeeded with generic \"more\" removed, want error")
	}
}
