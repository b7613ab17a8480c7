// Package expect implements the pexpect-style channel abstraction spec.md
// section 4.2 describes: spawn a child process or open a serial port, then
// drive it by sending bytes and waiting for regex patterns to appear in its
// output.
//
// The read side is grounded on the teacher's
// internal/console/session.go Session: a single background reader goroutine
// owns the underlying file descriptor, copies every chunk it reads to a set
// of per-caller "watcher" channels, and ReadUntil (here, Expect) registers a
// watcher, waits on it with a timer, and unregisters it when done. That
// design is kept unchanged; what changes is the source (a spawned
// process's PTY, or a serial port, instead of always a serial port) and the
// match rule (a list of compiled regexes instead of a literal-suffix
// terminator list).
package expect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/alexpitcher/condoor/internal/logging"
)

// ErrClosed is returned by Send/Expect once the channel has been closed.
var ErrClosed = errors.New("expect: channel closed")

// ErrTimeout is returned by Expect when no pattern matches before timeout.
var ErrTimeout = errors.New("expect: timeout waiting for pattern")

// ErrEOF is returned by Expect when the underlying process/port ends before
// any pattern matches.
var ErrEOF = errors.New("expect: end of file")

// Match describes a successful Expect call: which pattern matched and the
// text immediately before/after it, mirroring pexpect's before/after windows.
type Match struct {
	Index  int
	Before string
	After  string
	Text   string
}

// Channel is the behavior every transport (spawned PTY process, serial port)
// must provide. spec.md section 4.2 lists exactly these operations.
type Channel interface {
	Send(data string) (int, error)
	SendLine(line string) (int, error)
	SendControl(letter byte) error
	Expect(ctx context.Context, patterns []*regexp.Regexp, timeout time.Duration) (Match, error)
	ReadNonblocking(maxBytes int, timeout time.Duration) (string, error)
	SetEcho(on bool) error
	Close() error
}

// base holds the reader-goroutine/watcher-broadcast machinery shared by
// every Channel implementation; transport-specific code only needs to
// supply a io.Writer/io.Reader pair and plug it into base via newBase.
type base struct {
	id       string
	mu       sync.Mutex
	closed   bool
	watchers map[chan []byte]struct{}
	buf      strings.Builder // accumulated unconsumed output, for ReadNonblocking
	writeFn  func([]byte) (int, error)
	closeFn  func() error
}

func newBase(id string, writeFn func([]byte) (int, error), closeFn func() error) *base {
	return &base{
		id:       id,
		watchers: make(map[chan []byte]struct{}),
		writeFn:  writeFn,
		closeFn:  closeFn,
	}
}

func (b *base) registerWatcher(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.watchers[ch] = struct{}{}
}

func (b *base) unregisterWatcher(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.watchers, ch)
}

func (b *base) broadcast(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf.Write(data)
	for ch := range b.watchers {
		cp := make([]byte, len(data))
		copy(cp, data)
		select {
		case ch <- cp:
		default:
		}
	}
}

func (b *base) drainBuffered() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.buf.String()
	b.buf.Reset()
	return s
}

func (b *base) Send(data string) (int, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0, ErrClosed
	}
	b.mu.Unlock()
	n, err := b.writeFn([]byte(data))
	if err != nil {
		return n, fmt.Errorf("expect: write: %w", err)
	}
	logging.Debugf("channel %s sent %d bytes", b.id, n)
	return n, nil
}

func (b *base) SendLine(line string) (int, error) {
	return b.Send(line + "\n")
}

// SendControl sends the control character for the given ASCII letter (for
// example SendControl('c') sends ETX / Ctrl-C, 0x03).
func (b *base) SendControl(letter byte) error {
	upper := letter
	if upper >= 'a' && upper <= 'z' {
		upper = upper - 'a' + 'A'
	}
	code := upper - 'A' + 1
	_, err := b.Send(string(rune(code)))
	return err
}

func (b *base) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	logging.Debugf("channel %s closing", b.id)
	return b.closeFn()
}

// Expect waits up to timeout for one of patterns to match the accumulated
// output, returning a Match with the before/after windows split at the
// matched span. Matching restarts from the full accumulated buffer each time
// new data arrives, same as the teacher's ReadUntil loop.
func (b *base) Expect(ctx context.Context, patterns []*regexp.Regexp, timeout time.Duration) (Match, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return Match{}, ErrClosed
	}

	watcher := make(chan []byte, 64)
	b.registerWatcher(watcher)
	defer b.unregisterWatcher(watcher)

	var acc strings.Builder
	acc.WriteString(b.drainBuffered())

	if m, ok := firstMatch(acc.String(), patterns); ok {
		return m, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return Match{}, fmt.Errorf("expect: %w", ctx.Err())
		case <-timer.C:
			logging.Warnf("channel %s expect timeout after %s, buffer=%q", b.id, timeout, acc.String())
			return Match{}, ErrTimeout
		case chunk, ok := <-watcher:
			if !ok {
				return Match{}, ErrEOF
			}
			if len(chunk) == 0 {
				continue
			}
			acc.Write(chunk)
			if m, ok := firstMatch(acc.String(), patterns); ok {
				return m, nil
			}
		}
	}
}

func firstMatch(text string, patterns []*regexp.Regexp) (Match, bool) {
	bestIdx := -1
	var bestLoc []int
	bestPattern := -1
	for i, re := range patterns {
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		// Prefer the earliest-starting match; ties broken by pattern order.
		if bestIdx == -1 || loc[0] < bestIdx {
			bestIdx = loc[0]
			bestLoc = loc
			bestPattern = i
		}
	}
	if bestPattern == -1 {
		return Match{}, false
	}
	return Match{
		Index:  bestPattern,
		Before: text[:bestLoc[0]],
		After:  text[bestLoc[1]:],
		Text:   text[bestLoc[0]:bestLoc[1]],
	}, true
}

// ReadNonblocking returns whatever output has accumulated since the last
// read, waiting up to timeout for at least one byte if nothing is buffered
// yet. It never blocks past timeout even if the channel stays silent.
func (b *base) ReadNonblocking(maxBytes int, timeout time.Duration) (string, error) {
	if s := b.drainBuffered(); s != "" {
		return truncate(s, maxBytes), nil
	}

	watcher := make(chan []byte, 8)
	b.registerWatcher(watcher)
	defer b.unregisterWatcher(watcher)

	if timeout <= 0 {
		return "", nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case chunk, ok := <-watcher:
		if !ok {
			return "", ErrEOF
		}
		return truncate(string(chunk), maxBytes), nil
	case <-timer.C:
		return "", nil
	}
}

func truncate(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) <= maxBytes {
		return s
	}
	return s[:maxBytes]
}
