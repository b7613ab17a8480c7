package fsm

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/alexpitcher/condoor/internal/expect"
)

// scriptedChannel replays a fixed sequence of Expect results, letting tests
// drive the FSM without a real process or port.
type scriptedChannel struct {
	steps    []scriptedStep
	pos      int
	sent     []string
	timeouts []time.Duration
}

type scriptedStep struct {
	match expect.Match
	err   error
}

func (s *scriptedChannel) Send(data string) (int, error) {
	s.sent = append(s.sent, data)
	return len(data), nil
}
func (s *scriptedChannel) SendLine(line string) (int, error) { return s.Send(line + "\n") }
func (s *scriptedChannel) SendControl(letter byte) error     { return nil }
func (s *scriptedChannel) Expect(ctx context.Context, patterns []*regexp.Regexp, timeout time.Duration) (expect.Match, error) {
	s.timeouts = append(s.timeouts, timeout)
	if s.pos >= len(s.steps) {
		return expect.Match{}, expect.ErrEOF
	}
	step := s.steps[s.pos]
	s.pos++
	return step.match, step.err
}
func (s *scriptedChannel) ReadNonblocking(maxBytes int, timeout time.Duration) (string, error) {
	return "", nil
}
func (s *scriptedChannel) SetEcho(on bool) error { return nil }
func (s *scriptedChannel) Close() error          { return nil }

var _ expect.Channel = (*scriptedChannel)(nil)

const (
	stateStart State = 0
	stateOne   State = 1
)

const (
	eventBanner EventID = "banner"
	eventPrompt EventID = "prompt"
)

func TestRunReachesTerminalOnPromptMatch(t *testing.T) {
	ch := &scriptedChannel{steps: []scriptedStep{
		{match: expect.Match{Index: 0, Text: "banner"}},
		{match: expect.Match{Index: 1, Text: "prompt"}},
	}}

	events := []EventDef{
		{ID: eventBanner, Pattern: regexp.MustCompile(`banner`)},
		{ID: eventPrompt, Pattern: regexp.MustCompile(`prompt`)},
	}
	sendCR := false
	transitions := []Transition{
		{Event: eventBanner, States: []State{stateStart}, Next: stateOne, Action: Call(func(c *Context) bool {
			sendCR = true
			c.Channel.Send("\r")
			return true
		})},
		{Event: eventPrompt, States: []State{stateOne}, Next: Terminal, Action: Noop()},
	}

	m := NewMachine("test-connect", events, transitions)
	fctx := NewContext(ch, stateStart)
	if err := m.Run(context.Background(), fctx, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fctx.State != Terminal {
		t.Fatalf("state = %d, want Terminal", fctx.State)
	}
	if !sendCR {
		t.Fatal("expected banner action to run")
	}
}

func TestRunActionFalseAborts(t *testing.T) {
	ch := &scriptedChannel{steps: []scriptedStep{
		{match: expect.Match{Index: 0}},
	}}
	events := []EventDef{{ID: eventBanner, Pattern: regexp.MustCompile(`x`)}}
	transitions := []Transition{
		{Event: eventBanner, States: []State{stateStart}, Next: stateOne, Action: Call(func(c *Context) bool {
			return false
		})},
	}
	m := NewMachine("test-abort", events, transitions)
	fctx := NewContext(ch, stateStart)
	if err := m.Run(context.Background(), fctx, ""); err == nil {
		t.Fatal("expected error when action returns false")
	}
}

func TestRunRaiseReturnsTypedError(t *testing.T) {
	sentinel := errors.New("boom")
	ch := &scriptedChannel{steps: []scriptedStep{{match: expect.Match{Index: 0}}}}
	events := []EventDef{{ID: eventBanner, Pattern: regexp.MustCompile(`x`)}}
	transitions := []Transition{
		{Event: eventBanner, States: []State{stateStart}, Next: Terminal, Action: Raise(sentinel)},
	}
	m := NewMachine("test-raise", events, transitions)
	fctx := NewContext(ch, stateStart)
	err := m.Run(context.Background(), fctx, "")
	if !errors.Is(err, sentinel) {
		t.Fatalf("err = %v, want %v", err, sentinel)
	}
}

func TestRunTimeoutEventSentinel(t *testing.T) {
	ch := &scriptedChannel{steps: []scriptedStep{{err: expect.ErrTimeout}}}
	events := []EventDef{{ID: eventBanner, Pattern: regexp.MustCompile(`x`)}}
	fired := false
	transitions := []Transition{
		{Event: EventTimeout, States: []State{stateStart}, Next: Terminal, Action: Call(func(c *Context) bool {
			fired = true
			return true
		})},
	}
	m := NewMachine("test-timeout", events, transitions)
	fctx := NewContext(ch, stateStart)
	if err := m.Run(context.Background(), fctx, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !fired {
		t.Fatal("expected TIMEOUT transition to fire")
	}
}

func TestRunUnhandledEOFBecomesUnexpectedEOF(t *testing.T) {
	ch := &scriptedChannel{steps: []scriptedStep{{err: expect.ErrEOF}}}
	events := []EventDef{{ID: eventBanner, Pattern: regexp.MustCompile(`x`)}}
	m := NewMachine("test-eof", events, nil)
	fctx := NewContext(ch, stateStart)
	err := m.Run(context.Background(), fctx, "")
	if !errors.Is(err, ErrUnexpectedEOF) {
		t.Fatalf("err = %v, want ErrUnexpectedEOF", err)
	}
}

func TestRunUnhandledEventIsSwallowedAndRetries(t *testing.T) {
	ch := &scriptedChannel{steps: []scriptedStep{
		{match: expect.Match{Index: 0}}, // unhandled in stateStart
		{match: expect.Match{Index: 1}}, // handled
	}}
	events := []EventDef{
		{ID: "ignored", Pattern: regexp.MustCompile(`a`)},
		{ID: eventPrompt, Pattern: regexp.MustCompile(`b`)},
	}
	transitions := []Transition{
		{Event: eventPrompt, States: []State{stateStart}, Next: Terminal, Action: Noop()},
	}
	m := NewMachine("test-swallow", events, transitions)
	fctx := NewContext(ch, stateStart)
	if err := m.Run(context.Background(), fctx, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fctx.State != Terminal {
		t.Fatalf("state = %d, want Terminal", fctx.State)
	}
}

func TestRunMaxTransitionsExceeded(t *testing.T) {
	steps := make([]scriptedStep, 0, 25)
	for i := 0; i < 25; i++ {
		steps = append(steps, scriptedStep{match: expect.Match{Index: 0}})
	}
	ch := &scriptedChannel{steps: steps}
	events := []EventDef{{ID: "ignored", Pattern: regexp.MustCompile(`a`)}}
	m := NewMachine("test-max", events, nil) // no transitions: every event swallowed
	fctx := NewContext(ch, stateStart)
	err := m.Run(context.Background(), fctx, "")
	if !errors.Is(err, ErrMaxTransitions) {
		t.Fatalf("err = %v, want ErrMaxTransitions", err)
	}
}

func TestRunInitEventSkipsFirstExpect(t *testing.T) {
	ch := &scriptedChannel{steps: []scriptedStep{}} // would EOF if Expect were called
	events := []EventDef{{ID: eventPrompt, Pattern: regexp.MustCompile(`x`)}}
	transitions := []Transition{
		{Event: eventPrompt, States: []State{stateStart}, Next: Terminal, Action: Noop()},
	}
	m := NewMachine("test-init", events, transitions)
	fctx := NewContext(ch, stateStart)
	if err := m.Run(context.Background(), fctx, eventPrompt); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fctx.State != Terminal {
		t.Fatalf("state = %d, want Terminal", fctx.State)
	}
}

func TestRunPerTransitionTimeoutOverride(t *testing.T) {
	ch := &scriptedChannel{steps: []scriptedStep{
		{match: expect.Match{Index: 0}},
		{match: expect.Match{Index: 0}},
	}}
	events := []EventDef{{ID: eventBanner, Pattern: regexp.MustCompile(`x`)}}
	transitions := []Transition{
		{Event: eventBanner, States: []State{stateStart}, Next: stateOne, Action: Noop(), Timeout: 5 * time.Second},
		{Event: eventBanner, States: []State{stateOne}, Next: Terminal, Action: Noop()},
	}
	m := NewMachine("test-timeout-override", events, transitions)
	m.GlobalTimeout = time.Second
	fctx := NewContext(ch, stateStart)
	if err := m.Run(context.Background(), fctx, ""); err != nil {
		t.Fatalf("Run: %v", err)
	}
	// First Expect uses GlobalTimeout; the second uses the 5s set by the
	// transition that led into stateOne.
	if len(ch.timeouts) != 2 || ch.timeouts[0] != time.Second || ch.timeouts[1] != 5*time.Second {
		t.Fatalf("Expect timeouts = %v, want [1s 5s]", ch.timeouts)
	}
}
