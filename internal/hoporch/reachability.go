package hoporch

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/miekg/dns"

	"github.com/alexpitcher/condoor/internal/cerrors"
	"github.com/alexpitcher/condoor/internal/logging"
)

// ReachabilityChecker validates a hop is dialable before a protocol driver
// spends time spawning telnet/ssh against it (spec.md section 4.5: "check
// reachability (TCP connect with 5s timeout, up to a fixed number of
// attempts, 2s between attempts)"). Grounded on the teacher's go.mod direct
// dependency github.com/miekg/dns: when host is a name rather than an IP
// literal, resolve it with a miekg/dns query first so a DNS failure is
// reported distinctly from a refused TCP connection.
type ReachabilityChecker struct {
	DialTimeout time.Duration
	Attempts    int
	Delay       time.Duration
	Resolver    string // DNS server to query, host:port; empty disables the DNS pre-check
}

// DefaultReachabilityChecker matches the spec's stated defaults.
func DefaultReachabilityChecker() *ReachabilityChecker {
	return &ReachabilityChecker{DialTimeout: 5 * time.Second, Attempts: 3, Delay: 2 * time.Second}
}

// Check resolves host (if it is not already an IP literal and a Resolver is
// configured) and then attempts a TCP connection to host:port, retrying up
// to Attempts times with Delay between attempts.
func (r *ReachabilityChecker) Check(ctx context.Context, host string, port int) error {
	if r.Resolver != "" && net.ParseIP(host) == nil {
		if err := r.resolve(ctx, host); err != nil {
			return cerrors.NewConnectionError(fmt.Sprintf("could not resolve hostname %s", host), host, err)
		}
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		d := net.Dialer{Timeout: r.DialTimeout}
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = err
		logging.Warnf("reachability check %s attempt %d/%d failed: %v", addr, i+1, attempts, err)

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return cerrors.NewConnectionError("reachability check cancelled", host, ctx.Err())
			case <-time.After(r.Delay):
			}
		}
	}
	return cerrors.NewConnectionError(fmt.Sprintf("no route to host %s", addr), host, lastErr)
}

func (r *ReachabilityChecker) resolve(ctx context.Context, host string) error {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)

	c := new(dns.Client)
	c.Timeout = r.DialTimeout

	in, _, err := c.ExchangeContext(ctx, m, r.Resolver)
	if err != nil {
		return fmt.Errorf("hoporch: dns query for %s via %s: %w", host, r.Resolver, err)
	}
	if len(in.Answer) == 0 {
		return fmt.Errorf("hoporch: dns query for %s returned no records", host)
	}
	return nil
}
