package expect

import (
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"

	"github.com/alexpitcher/condoor/internal/logging"
)

// SpawnChannel drives a child process (telnet, ssh) through its controlling
// PTY. spec.md section 6 requires every hop's transport to behave as if
// spawned this way, even the serial console siblings (see ConsoleChannel),
// so that the rest of the stack never has to special-case the transport.
type SpawnChannel struct {
	*base
	cmd *exec.Cmd
	pty *os.File
}

// minTerminalWidth is spec.md section 4.2's floor: anchored end-of-line
// prompt patterns in internal/patterns only match if the device doesn't
// wrap its own prompt line, which an 80-column default PTY can do on busy
// "show" output.
const minTerminalWidth = 160

// Spawn starts name with args under a PTY and begins mirroring its output.
// The child's environment is pinned to TERM=VT100 and the PTY is widened to
// minTerminalWidth columns (spec.md section 4.2), since most condoor
// targets are telnet/ssh CLIs that wrap output at whatever width their
// pseudo-terminal reports.
func Spawn(name string, args ...string) (*SpawnChannel, error) {
	cmd := exec.Command(name, args...)
	cmd.Env = append(vt100Env(), "TERM=VT100")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: 24, Cols: minTerminalWidth})
	if err != nil {
		return nil, fmt.Errorf("expect: spawn %s: %w", name, err)
	}

	id := fmt.Sprintf("%s-%d", name, cmd.Process.Pid)
	sc := &SpawnChannel{cmd: cmd, pty: ptmx}
	sc.base = newBase(id, ptmx.Write, sc.closeSpawn)

	go sc.readLoop()

	logging.Infof("spawned channel id=%s cmd=%s args=%v pid=%d cols=%d", id, name, args, cmd.Process.Pid, minTerminalWidth)
	return sc, nil
}

// vt100Env returns the parent environment with any existing TERM stripped,
// so the TERM=VT100 Spawn appends is the one that wins.
func vt100Env() []string {
	env := os.Environ()
	out := make([]string, 0, len(env))
	for _, kv := range env {
		if len(kv) >= 5 && kv[:5] == "TERM=" {
			continue
		}
		out = append(out, kv)
	}
	return out
}

func (sc *SpawnChannel) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := sc.pty.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			sc.broadcast(data)
		}
		if err != nil {
			sc.mu.Lock()
			closed := sc.closed
			sc.mu.Unlock()
			if !closed {
				logging.Debugf("spawned channel %s read loop ended: %v", sc.id, err)
			}
			return
		}
	}
}

func (sc *SpawnChannel) closeSpawn() error {
	_ = sc.pty.Close()
	if sc.cmd.Process != nil {
		_ = sc.cmd.Process.Kill()
	}
	_ = sc.cmd.Wait()
	return nil
}

// Resize propagates a terminal size change to the PTY, matching how a real
// terminal emulator would behave for full-screen device CLIs.
func (sc *SpawnChannel) Resize(rows, cols uint16) error {
	return pty.Setsize(sc.pty, &pty.Winsize{Rows: rows, Cols: cols})
}

// SetEcho toggles local echo on the PTY's termios. Telnet/ssh sessions
// normally leave this to the remote device, but console-server "Press
// RETURN to get started" dialogs sometimes require local echo disabled to
// avoid doubled characters, matching spec.md section 4.2's SetEcho contract.
func (sc *SpawnChannel) SetEcho(on bool) error {
	fd := int(sc.pty.Fd())
	termios, err := unix.IoctlGetTermios(fd, ioctlGetTermios)
	if err != nil {
		return fmt.Errorf("expect: get termios: %w", err)
	}
	if on {
		termios.Lflag |= unix.ECHO
	} else {
		termios.Lflag &^= unix.ECHO
	}
	if err := unix.IoctlSetTermios(fd, ioctlSetTermios, termios); err != nil {
		return fmt.Errorf("expect: set termios: %w", err)
	}
	return nil
}

// waitExit blocks until the spawned process exits, used by callers that
// need to distinguish a clean exit from a hang after the disconnect dialog.
func (sc *SpawnChannel) waitExit(timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- sc.cmd.Wait() }()
	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		return fmt.Errorf("expect: process did not exit within %s", timeout)
	}
}
