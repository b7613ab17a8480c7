package hoporch

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/alexpitcher/condoor/internal/expect"
)

// fakeDetectChannel replays a fixed queue of ReadNonblocking chunks,
// ignoring the Expect side entirely since DetectPrompt never calls it.
type fakeDetectChannel struct {
	chunks []string
	pos    int
	sent   []string
}

func (f *fakeDetectChannel) Send(data string) (int, error) {
	f.sent = append(f.sent, data)
	return len(data), nil
}
func (f *fakeDetectChannel) SendLine(line string) (int, error) { return f.Send(line + "\n") }
func (f *fakeDetectChannel) SendControl(letter byte) error     { return nil }
func (f *fakeDetectChannel) Expect(ctx context.Context, pats []*regexp.Regexp, timeout time.Duration) (expect.Match, error) {
	return expect.Match{}, expect.ErrTimeout
}
func (f *fakeDetectChannel) ReadNonblocking(maxBytes int, timeout time.Duration) (string, error) {
	if f.pos >= len(f.chunks) {
		return "", nil
	}
	c := f.chunks[f.pos]
	f.pos++
	return c, nil
}
func (f *fakeDetectChannel) SetEcho(on bool) error { return nil }
func (f *fakeDetectChannel) Close() error          { return nil }

var _ expect.Channel = (*fakeDetectChannel)(nil)

func TestDetectPromptAcceptsTwoAgreeingReads(t *testing.T) {
	ch := &fakeDetectChannel{chunks: []string{"routerA#", "", "routerA#", ""}}

	text, re, err := DetectPrompt(ch, 2*time.Second)
	if err != nil {
		t.Fatalf("DetectPrompt: %v", err)
	}
	if text != "routerA#" {
		t.Fatalf("text = %q, want routerA#", text)
	}
	if !re.MatchString("show version\r\nrouterA#") {
		t.Fatalf("compiled pattern %q did not match trailing prompt", re.String())
	}
	if len(ch.sent) != 2 {
		t.Fatalf("expected two sendlines, got %v", ch.sent)
	}
}

func TestDetectPromptRetriesUntilReadsAgree(t *testing.T) {
	ch := &fakeDetectChannel{chunks: []string{
		"garbled1", "",
		"garbled2-totally-different", "",
		"routerB>", "",
		"routerB>", "",
	}}

	text, _, err := DetectPrompt(ch, time.Second)
	if err != nil {
		t.Fatalf("DetectPrompt: %v", err)
	}
	if text != "routerB>" {
		t.Fatalf("text = %q, want routerB>", text)
	}
}
