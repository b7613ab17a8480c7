package expect

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/alexpitcher/condoor/internal/logging"
)

// ConsoleConfig mirrors the teacher's SessionConfig; condoor only ever needs
// the fields a terminal-server console hop actually varies.
type ConsoleConfig struct {
	PortPath string
	Baud     int
	DataBits int
	Parity   string // "N", "O", "E"
	StopBits int    // 1 or 2
}

// DefaultConsoleConfig returns the 9600-8N1 defaults almost every console
// port uses.
func DefaultConsoleConfig(portPath string) ConsoleConfig {
	return ConsoleConfig{PortPath: portPath, Baud: 9600, DataBits: 8, Parity: "N", StopBits: 1}
}

// ConsoleChannel is the serial-port sibling of SpawnChannel, for hops
// reached through a local or USB console adapter instead of telnet/ssh.
// Grounded directly on the teacher's internal/console.Session: open the
// port, start a reader goroutine that broadcasts chunks to watchers.
type ConsoleChannel struct {
	*base
	port serial.Port
}

// OpenConsole opens a serial console port and begins mirroring its output.
func OpenConsole(cfg ConsoleConfig) (*ConsoleChannel, error) {
	var parity serial.Parity
	switch cfg.Parity {
	case "O":
		parity = serial.OddParity
	case "E":
		parity = serial.EvenParity
	default:
		parity = serial.NoParity
	}
	stopBits := serial.OneStopBit
	if cfg.StopBits == 2 {
		stopBits = serial.TwoStopBits
	}

	mode := &serial.Mode{BaudRate: cfg.Baud, DataBits: cfg.DataBits, Parity: parity, StopBits: stopBits}
	port, err := serial.Open(cfg.PortPath, mode)
	if err != nil {
		return nil, fmt.Errorf("expect: open console port %s: %w", cfg.PortPath, err)
	}

	id := fmt.Sprintf("console-%s", cfg.PortPath)
	cc := &ConsoleChannel{port: port}
	cc.base = newBase(id, port.Write, port.Close)

	go cc.readLoop()

	logging.Infof("console channel id=%s port=%s baud=%d", id, cfg.PortPath, cfg.Baud)
	return cc, nil
}

func (cc *ConsoleChannel) readLoop() {
	buf := make([]byte, 4096)
	for {
		n, err := cc.port.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			cc.broadcast(data)
		}
		if err != nil {
			cc.mu.Lock()
			closed := cc.closed
			cc.mu.Unlock()
			if !closed {
				logging.Debugf("console channel %s read loop ended: %v", cc.id, err)
			}
			return
		}
	}
}

// SetEcho is a no-op for a serial console: echo is governed by the remote
// terminal server, not by termios on this end of the wire.
func (cc *ConsoleChannel) SetEcho(on bool) error {
	logging.Debugf("console channel %s SetEcho(%v) ignored: echo is remote-controlled", cc.id, on)
	return nil
}

// SendBreak emulates a serial break by writing null bytes at the configured
// baud rate, one per 10ms of duration (at least one); the baud rate itself
// is left unchanged. Same fallback the teacher uses because go.bug.st/serial
// has no native SetBreak.
func (cc *ConsoleChannel) SendBreak(duration time.Duration) error {
	nullCount := int(duration.Milliseconds() / 10)
	if nullCount < 1 {
		nullCount = 1
	}
	for i := 0; i < nullCount; i++ {
		if _, err := cc.port.Write([]byte{0x00}); err != nil {
			return fmt.Errorf("expect: send break: %w", err)
		}
	}
	return nil
}
