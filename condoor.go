// Package condoor implements the Connection Facade (spec.md section 4.8):
// the single public entry point wrapping hop-chain parsing, the Hop
// Orchestrator, platform drivers, discovery and the on-disk device cache
// into one object a caller drives with Connect/Send/Disconnect.
//
// Grounded on the teacher's top-level console.Session wrapper (the shape of
// a long-lived object guarding one spawned process behind a mutex,
// internal/console/session.go), generalized from a LAN packet/telnet
// session to condoor's multi-hop, multi-platform device session.
package condoor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/alexpitcher/condoor/internal/cache"
	"github.com/alexpitcher/condoor/internal/cerrors"
	"github.com/alexpitcher/condoor/internal/discovery"
	"github.com/alexpitcher/condoor/internal/expect"
	"github.com/alexpitcher/condoor/internal/fsm"
	"github.com/alexpitcher/condoor/internal/hoporch"
	"github.com/alexpitcher/condoor/internal/hopurl"
	"github.com/alexpitcher/condoor/internal/logging"
	"github.com/alexpitcher/condoor/internal/patterns"
	"github.com/alexpitcher/condoor/internal/platform"
)

// DefaultSendTimeout is send()'s timeout when the caller doesn't override
// it (spec.md section 4.8: "send(cmd, timeout=60, ...)").
const DefaultSendTimeout = 60 * time.Second

// Connection is the one public class spec.md section 6 calls for: a
// multi-hop device session, its platform personality, and the cached
// classification discovery produced for it.
type Connection struct {
	mu sync.Mutex

	reg    *patterns.Registry
	chains *hopurl.Chains
	reach  *hoporch.ReachabilityChecker
	store  *cache.Store

	ch           expect.Channel
	driver       *platform.Driver
	targetPrompt *regexp.Regexp
	hopPrompts   []string
	record       cache.DeviceDescriptionRecord
	lastHop      int
	connected    bool
	logFile      *os.File
}

// Option configures a Connection at construction time.
type Option func(*Connection)

// WithStore overrides the on-disk device record cache (nil disables
// persistence entirely, useful for one-shot tooling or tests).
func WithStore(store *cache.Store) Option {
	return func(c *Connection) { c.store = store }
}

// WithReachabilityChecker overrides the default TCP/DNS reachability
// pre-check (spec.md section 4.5).
func WithReachabilityChecker(r *hoporch.ReachabilityChecker) Option {
	return func(c *Connection) { c.reach = r }
}

// New builds a Connection over one or more alternative hop chains, each a
// list of raw hop URLs (spec.md section 6 grammar) ordered from the first
// hop to the target. The registry is constructed eagerly, per spec.md
// section 9: a malformed pattern table fails at New, not at first connect.
func New(chainAlternatives [][]string, opts ...Option) (*Connection, error) {
	reg, err := patterns.NewRegistry()
	if err != nil {
		return nil, err
	}

	if len(chainAlternatives) == 0 {
		return nil, cerrors.NewInvalidHopInfoError("no hop chain alternatives supplied", "", nil)
	}

	chains := &hopurl.Chains{}
	for _, raws := range chainAlternatives {
		chain, err := hopurl.ParseChain(raws)
		if err != nil {
			return nil, err
		}
		chains.Alternatives = append(chains.Alternatives, chain)
	}

	store, err := cache.DefaultStore()
	if err != nil {
		store = nil // no $HOME: persistence is best-effort, never fatal to New
	}

	c := &Connection{
		reg:    reg,
		chains: chains,
		reach:  hoporch.DefaultReachabilityChecker(),
		store:  store,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func activeRawHops(chains *hopurl.Chains) []string {
	hops := chains.Active()
	raw := make([]string, len(hops))
	for i, h := range hops {
		raw[i] = h.String()
	}
	return raw
}

// Connect implements spec.md section 4.8's connect(): consult the cache
// first (skip discovery on a hit), otherwise run the Discovery Pipeline;
// either way the Hop Orchestrator walks the chain, cycling through
// alternatives on failure. Calling Connect twice on an already-connected
// session is a no-op (spec.md section 8's idempotence invariant).
func (c *Connection) Connect(logFile string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("condoor: open log file %s: %w", logFile, err)
		}
		c.logFile = f
		logging.SetOutput(f)
	}

	key := cache.HopChainKey(activeRawHops(c.chains))

	var rec *cache.DeviceDescriptionRecord
	if c.store != nil {
		rec, _ = c.store.Get(key)
	}

	if rec != nil {
		if err := c.connectWithKnownRecord(rec); err == nil {
			return nil
		}
		logging.Warnf("condoor: cached record %s failed to reconnect, falling back to discovery", key)
	}

	result, err := discovery.Discover(context.Background(), c.reg, c.chains, c.reach, c.store)
	if err != nil {
		return err
	}
	c.applyDiscoveryResult(result)
	return nil
}

// connectWithKnownRecord skips discovery's probe/classify steps entirely —
// it already knows the platform and hostname — and goes straight to the
// Hop Orchestrator with the real driver's target prompt (spec.md section
// 4.8: "consult cache (if hit, skip discovery)").
func (c *Connection) connectWithKnownRecord(rec *cache.DeviceDescriptionRecord) error {
	driver := platform.New(rec.Platform)
	targetPrompt, err := driver.TargetPromptPattern(c.reg, rec.Hostname)
	if err != nil {
		return err
	}

	result, err := hoporch.Connect(context.Background(), c.reg, rec.Platform, targetPrompt, c.chains, 0, c.reach, false)
	if err != nil {
		return err
	}
	hopPrompts := result.Prompts.EarlierOnly()

	// Discovery normally runs this right after the target hop authenticates
	// (spec.md section 4.6); the cache-hit path bypasses discovery entirely,
	// so it has to run prepareTerminalSession itself.
	if err := driver.PrepareTerminalSession(context.Background(), result.Channel, c.reg, targetPrompt, hopPrompts); err != nil {
		result.Channel.Close()
		return err
	}

	c.ch = result.Channel
	c.driver = driver
	c.targetPrompt = targetPrompt
	c.hopPrompts = hopPrompts
	c.record = *rec
	c.lastHop = result.LastHop
	c.connected = true
	return nil
}

func (c *Connection) applyDiscoveryResult(result *discovery.Result) {
	c.ch = result.Channel
	c.driver = result.Driver
	c.targetPrompt = result.TargetPrompt
	c.hopPrompts = result.Prompts
	c.record = result.Record
	c.lastHop = result.LastHop
	c.connected = true
}

// Disconnect implements spec.md section 4.8's disconnect(): delegate the
// graceful teardown dialog to the Hop Orchestrator, then close the session
// log. Safe to call on an already-disconnected Connection.
func (c *Connection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectLocked()
}

func (c *Connection) disconnectLocked() error {
	if c.ch == nil {
		return nil
	}
	prompt := c.targetPrompt
	if prompt == nil {
		prompt, _ = c.reg.Get(patterns.PlatformGeneric, patterns.Prompt)
	}
	err := hoporch.Disconnect(context.Background(), c.ch, prompt)
	c.ch = nil
	c.connected = false
	if c.logFile != nil {
		c.logFile.Close()
		c.logFile = nil
	}
	return err
}

// Reconnect implements spec.md section 4.8's reconnect(maxTimeoutSeconds):
// keep retrying until one attempt succeeds or the wall-clock budget runs
// out, rotating to the next alternative chain on each failure. If this
// Connection has already discovered its platform once, reconnect resumes
// the Hop Orchestrator walk from lastHop (the deepest hop reached in the
// previous session) instead of starting over at hop 0 and re-running
// discovery (spec.md section 4.5: "Reconnect starts from lastHop").
func (c *Connection) Reconnect(maxTimeoutSeconds int) error {
	deadline := time.Now().Add(time.Duration(maxTimeoutSeconds) * time.Second)

	var lastErr error
	for {
		err := c.reconnectOnce()
		if err == nil {
			return nil
		}
		lastErr = err

		if !time.Now().Before(deadline) {
			break
		}

		c.mu.Lock()
		c.chains.Advance()
		c.mu.Unlock()
	}
	return cerrors.NewConnectionTimeoutError(
		fmt.Sprintf("reconnect: exhausted %ds budget", maxTimeoutSeconds), "", lastErr)
}

func (c *Connection) reconnectOnce() error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	driver, targetPrompt, startHop := c.driver, c.targetPrompt, c.lastHop
	c.mu.Unlock()

	if driver == nil {
		return c.Connect("")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	result, err := hoporch.Connect(context.Background(), c.reg, driver.Platform, targetPrompt, c.chains, startHop, c.reach, false)
	if err != nil {
		return err
	}
	hopPrompts := result.Prompts.EarlierOnly()

	if err := driver.PrepareTerminalSession(context.Background(), result.Channel, c.reg, targetPrompt, hopPrompts); err != nil {
		result.Channel.Close()
		return err
	}

	c.ch = result.Channel
	c.hopPrompts = hopPrompts
	c.lastHop = result.LastHop
	c.connected = true
	return nil
}

// Send implements spec.md section 4.8's send(): run the command-execution
// FSM over the live channel, serialized by the per-connection mutex
// (spec.md section 5). A ConnectionError triggers disconnect before being
// re-raised, per spec.md section 7's propagation policy; every other error
// passes straight through.
func (c *Connection) Send(cmd string, timeout time.Duration, waitForString string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return "", cerrors.NewConnectionError("send: not connected", "", nil)
	}
	if timeout == 0 {
		timeout = DefaultSendTimeout
	}

	target := c.targetPrompt
	if waitForString != "" {
		target = regexp.MustCompile(regexp.QuoteMeta(waitForString))
	}

	res, err := platform.Execute(context.Background(), c.ch, c.reg, c.driver, target, c.hopPrompts, cmd, timeout)
	if err != nil {
		var connErr *cerrors.ConnectionError
		if errors.As(err, &connErr) {
			_ = c.disconnectLocked()
		}
		return "", err
	}

	if !res.Connected {
		// An earlier hop's prompt reappeared: the session slipped back to a
		// jump host (spec.md section 4.5's "unexpected-prompt handling").
		c.lastHop = res.LastHop
		_ = c.disconnectLocked()
		return "", cerrors.NewConnectionError("send: session fell back to an earlier hop", "", nil)
	}

	if res.Hostname != "" {
		c.record.Hostname = res.Hostname
	}

	return res.Output, nil
}

// SendXml implements spec.md section 4.8's sendXml(): enter the XML TTY
// agent, run the command, send Ctrl-C on exit.
func (c *Connection) SendXml(cmd string, timeout time.Duration) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return "", cerrors.NewConnectionError("sendXml: not connected", "", nil)
	}
	if timeout == 0 {
		timeout = DefaultSendTimeout
	}

	xmlPrompt, err := c.reg.Get(c.driver.Platform, patterns.XML)
	if err != nil {
		return "", err
	}

	c.ch.SendLine("xml")
	if _, err := c.ch.Expect(context.Background(), []*regexp.Regexp{xmlPrompt}, 10*time.Second); err != nil {
		return "", cerrors.NewConnectionError("sendXml: failed entering XML agent", "", err)
	}

	c.ch.SendLine(cmd)
	out, _ := c.ch.ReadNonblocking(1<<20, timeout)

	_ = c.ch.SendControl('c')
	_, _ = c.ch.Expect(context.Background(), []*regexp.Regexp{c.targetPrompt}, 10*time.Second)

	return strings.ReplaceAll(out, "\r", ""), nil
}

// Enable implements spec.md section 4.8's enable(pw?), delegating to the
// platform driver (a no-op outside IOS/XE).
func (c *Connection) Enable(enablePassword string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return cerrors.NewConnectionError("enable: not connected", "", nil)
	}
	return c.driver.Enable(context.Background(), c.ch, c.reg, c.targetPrompt, enablePassword)
}

// Reload implements spec.md section 4.8's reload(args), delegating to the
// platform driver's reload dialog. When the dialog reports NeedsReconnect,
// the Connection is marked disconnected so the caller's next Reconnect
// call runs the Hop Orchestrator walk again, resuming from lastHop.
func (c *Connection) Reload(opts platform.ReloadOptions) (*platform.ReloadResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, cerrors.NewConnectionError("reload: not connected", "", nil)
	}
	res, err := c.driver.Reload(context.Background(), c.ch, c.reg, opts)
	if err != nil {
		return nil, err
	}
	if res.NeedsReconnect {
		c.connected = false
	}
	return res, nil
}

// RunFsm implements spec.md section 4.8's runFsm(name, cmd, events,
// transitions, timeout): an escape hatch for a caller-authored dialog that
// isn't one of the built-in driver operations. cmd, when non-empty, is
// sent as the FSM's first action before entering the event loop.
func (c *Connection) RunFsm(name, cmd string, events []FSMEventDef, transitions []Transition, timeout time.Duration) (*FSMContext, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, cerrors.NewConnectionError("runFsm: not connected", "", nil)
	}

	m := fsm.NewMachine(name, events, transitions)
	m.GlobalTimeout = timeout

	fctx := fsm.NewContext(c.ch, 0)
	if cmd != "" {
		c.ch.SendLine(cmd)
	}
	err := m.Run(context.Background(), fctx, "")
	return fctx, err
}

// Platform is the discovered (or cached) platform key (spec.md section
// 4.8 read-only property).
func (c *Connection) Platform() string { c.mu.Lock(); defer c.mu.Unlock(); return c.record.Platform }

// Family is the normalized chassis family.
func (c *Connection) Family() string { c.mu.Lock(); defer c.mu.Unlock(); return c.record.Family }

// OSType is one of IOS, XE, XR, eXR, NX-OS, Calvados.
func (c *Connection) OSType() string { c.mu.Lock(); defer c.mu.Unlock(); return c.record.OSType }

// OSVersion is the extracted software version string.
func (c *Connection) OSVersion() string { c.mu.Lock(); defer c.mu.Unlock(); return c.record.OSVersion }

// Hostname is the hostname extracted from the target prompt.
func (c *Connection) Hostname() string { c.mu.Lock(); defer c.mu.Unlock(); return c.record.Hostname }

// Prompt returns the compiled target prompt's source pattern, or "" before
// the first successful Connect.
func (c *Connection) Prompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.targetPrompt == nil {
		return ""
	}
	return c.targetPrompt.String()
}

// IsConnected reports whether the session currently has a live channel.
func (c *Connection) IsConnected() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.connected }

// IsConsole reports whether discovery found this session attached to a
// console line rather than a vty.
func (c *Connection) IsConsole() bool { c.mu.Lock(); defer c.mu.Unlock(); return c.record.IsConsole }

// UDI returns the collected chassis inventory record.
func (c *Connection) UDI() platform.UDI {
	c.mu.Lock()
	defer c.mu.Unlock()
	return platform.UDI{
		Name:        c.record.UDIName,
		Description: c.record.UDIDescr,
		PID:         c.record.UDIPid,
		VID:         c.record.UDIVid,
		SN:          c.record.UDISerial,
	}
}

// DeviceInfo and DeviceDescriptionRecord both return the full persisted
// classification record (spec.md section 4.8 lists both property names;
// they carry the same data).
func (c *Connection) DeviceInfo() cache.DeviceDescriptionRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.record
}

func (c *Connection) DeviceDescriptionRecord() cache.DeviceDescriptionRecord {
	return c.DeviceInfo()
}
