package platform

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/alexpitcher/condoor/internal/expect"
	"github.com/alexpitcher/condoor/internal/patterns"
)

// scriptedChannel feeds a fixed sequence of text chunks to Expect, one per
// call, so a multi-step dialog (reload, enable, wait_for_prompt) can be
// driven deterministically without a real spawned process.
type scriptedChannel struct {
	chunks []string
	pos    int
	sent   []string
}

func (s *scriptedChannel) Send(data string) (int, error) {
	s.sent = append(s.sent, data)
	return len(data), nil
}
func (s *scriptedChannel) SendLine(line string) (int, error) { return s.Send(line + "\n") }
func (s *scriptedChannel) SendControl(letter byte) error     { return nil }
func (s *scriptedChannel) Expect(ctx context.Context, pats []*regexp.Regexp, timeout time.Duration) (expect.Match, error) {
	if s.pos >= len(s.chunks) {
		return expect.Match{}, expect.ErrEOF
	}
	text := s.chunks[s.pos]
	s.pos++
	for i, re := range pats {
		if loc := re.FindStringIndex(text); loc != nil {
			return expect.Match{Index: i, Before: text[:loc[0]], After: text[loc[1]:], Text: text[loc[0]:loc[1]]}, nil
		}
	}
	return expect.Match{}, expect.ErrTimeout
}
func (s *scriptedChannel) ReadNonblocking(maxBytes int, timeout time.Duration) (string, error) {
	return "", nil
}
func (s *scriptedChannel) SetEcho(on bool) error { return nil }
func (s *scriptedChannel) Close() error          { return nil }

var _ expect.Channel = (*scriptedChannel)(nil)

func mustRegistry(t *testing.T) *patterns.Registry {
	t.Helper()
	reg, err := patterns.NewRegistry()
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	return reg
}

func TestTargetPromptPatternIOSMatchesHostnamePrompt(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformIOS)
	re, err := d.TargetPromptPattern(reg, "CSG-1202-ASR901")
	if err != nil {
		t.Fatalf("TargetPromptPattern: %v", err)
	}
	if !re.MatchString("CSG-1202-ASR901#") {
		t.Errorf("expected prompt regex to match hostname prompt")
	}
}

func TestTargetPromptPatternXR64IncludesCalvados(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformXR64)
	re, err := d.TargetPromptPattern(reg, "ncs5500")
	if err != nil {
		t.Fatalf("TargetPromptPattern: %v", err)
	}
	if !re.MatchString("sysadmin-vm:0_RP0#") {
		t.Errorf("expected XR64 prompt regex to match Calvados admin prompt")
	}
}

func TestDetermineHostnameIOS(t *testing.T) {
	d := New(patterns.PlatformIOS)
	if got := d.DetermineHostname("router1(config)#"); got != "router1" {
		t.Errorf("got %q, want router1", got)
	}
}

func TestDetermineHostnameXR(t *testing.T) {
	d := New(patterns.PlatformXR)
	if got := d.DetermineHostname("RP/0/RSP0/CPU0:ncs-1#"); got != "ncs-1" {
		t.Errorf("got %q, want ncs-1", got)
	}
}

func TestDetermineHostnameCalvadosIsIgnored(t *testing.T) {
	d := New(patterns.PlatformCalvados)
	if got := d.DetermineHostname("sysadmin-vm:0_RP0#"); got != "" {
		t.Errorf("got %q, want empty (Calvados prompts carry no hostname)", got)
	}
}

func TestCollectUDIParsesChassisRecord(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformIOS)
	targetPrompt, _ := reg.CompileDynamic(patterns.PlatformIOS, patterns.PromptDynamic, "host")
	ch := &scriptedChannel{chunks: []string{
		"NAME: \"Chassis\", DESCR: \"Cisco ASR901 Chassis\"\nPID: ASR-901    , VID: V01, SN: ABC12345678\nhost#",
	}}
	udi, err := d.CollectUDI(context.Background(), ch, reg, targetPrompt, nil)
	if err != nil {
		t.Fatalf("CollectUDI: %v", err)
	}
	if udi.Name != "Chassis" || udi.PID != "ASR-901" || udi.SN != "ABC12345678" {
		t.Fatalf("udi = %+v", udi)
	}
}

func TestEnableSendsPasswordAndSucceeds(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformIOS)
	targetPrompt, _ := reg.CompileDynamic(patterns.PlatformIOS, patterns.PromptDynamic, "host")
	ch := &scriptedChannel{chunks: []string{"Password: ", "host#"}}
	if err := d.Enable(context.Background(), ch, reg, targetPrompt, "secret"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
}

func TestEnableIsNoopForXR(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformXR)
	targetPrompt, _ := reg.CompileDynamic(patterns.PlatformXR, patterns.PromptDynamic, "host")
	ch := &scriptedChannel{}
	if err := d.Enable(context.Background(), ch, reg, targetPrompt, "whatever"); err != nil {
		t.Fatalf("Enable: %v", err)
	}
	if len(ch.sent) != 0 {
		t.Fatalf("expected no-op, sent = %v", ch.sent)
	}
}
