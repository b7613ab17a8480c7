package platform

import (
	"context"
	"testing"
	"time"

	"github.com/alexpitcher/condoor/internal/cerrors"
	"github.com/alexpitcher/condoor/internal/patterns"
)

func TestExecuteReturnsTargetPromptAndOutput(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformIOS)
	targetPrompt, _ := reg.CompileDynamic(patterns.PlatformIOS, patterns.PromptDynamic, "host")
	ch := &scriptedChannel{chunks: []string{"Cisco IOS Software\r\nhost#"}}

	res, err := Execute(context.Background(), ch, reg, d, targetPrompt, nil, "show version", 5*time.Second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Hostname != "host" {
		t.Errorf("hostname = %q, want host", res.Hostname)
	}
	if res.Output != "Cisco IOS Software\n" {
		t.Errorf("output = %q", res.Output)
	}
	if !res.Connected {
		t.Errorf("expected Connected=true")
	}
}

func TestExecuteSyntaxErrorIsTerminal(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformIOS)
	targetPrompt, _ := reg.CompileDynamic(patterns.PlatformIOS, patterns.PromptDynamic, "host")
	ch := &scriptedChannel{chunks: []string{"% Invalid input detected"}}

	_, err := Execute(context.Background(), ch, reg, d, targetPrompt, nil, "bogus command", time.Second)
	var syntaxErr *cerrors.CommandSyntaxError
	if !errorsAsTest(err, &syntaxErr) {
		t.Fatalf("err = %v, want *cerrors.CommandSyntaxError", err)
	}
}

func TestExecutePagerSendsSpaceAndContinues(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformIOS)
	targetPrompt, _ := reg.CompileDynamic(patterns.PlatformIOS, patterns.PromptDynamic, "host")
	ch := &scriptedChannel{chunks: []string{"line one\n--More--", "line two\nhost#"}}

	res, err := Execute(context.Background(), ch, reg, d, targetPrompt, nil, "show running-config", 5*time.Second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if len(ch.sent) < 2 || ch.sent[1] != " " {
		t.Fatalf("expected a space sent for the pager, sent = %v", ch.sent)
	}
	if res.Hostname != "host" {
		t.Errorf("hostname = %q", res.Hostname)
	}
}

func TestExecuteEarlierHopPromptSignalsJumpHostFallback(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformIOS)
	targetPrompt, _ := reg.CompileDynamic(patterns.PlatformIOS, patterns.PromptDynamic, "host")
	ch := &scriptedChannel{chunks: []string{"jumphost$"}}

	earlier := []string{"", "jumphost$"}
	res, err := Execute(context.Background(), ch, reg, d, targetPrompt, earlier, "show version", time.Second)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Connected {
		t.Fatalf("expected Connected=false when an earlier hop prompt reappears")
	}
	if res.LastHop != 1 {
		t.Fatalf("LastHop = %d, want 1", res.LastHop)
	}
}

func TestExecuteUnexpectedEOFIsConnectionError(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformIOS)
	targetPrompt, _ := reg.CompileDynamic(patterns.PlatformIOS, patterns.PromptDynamic, "host")
	ch := &scriptedChannel{} // no chunks -> Expect reports EOF immediately

	_, err := Execute(context.Background(), ch, reg, d, targetPrompt, nil, "show version", time.Second)
	var connErr *cerrors.ConnectionError
	if !errorsAsTest(err, &connErr) {
		t.Fatalf("err = %v, want *cerrors.ConnectionError (unexpected EOF)", err)
	}
}

func errorsAsTest[T error](err error, target *T) bool {
	for err != nil {
		if t, ok := err.(T); ok {
			*target = t
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
