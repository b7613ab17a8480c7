package hoporch

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/alexpitcher/condoor/internal/cerrors"
)

func TestReachabilityCheckSucceedsAgainstListeningPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	r := &ReachabilityChecker{DialTimeout: time.Second, Attempts: 1, Delay: 10 * time.Millisecond}
	if err := r.Check(context.Background(), "127.0.0.1", addr.Port); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestReachabilityCheckFailsAgainstClosedPort(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close() // nothing listening now

	r := &ReachabilityChecker{DialTimeout: 200 * time.Millisecond, Attempts: 2, Delay: 10 * time.Millisecond}
	err = r.Check(context.Background(), "127.0.0.1", port)
	if err == nil {
		t.Fatal("expected an error for a closed port")
	}
	var connErr *cerrors.ConnectionError
	if !asConnErr(err, &connErr) {
		t.Fatalf("err = %v, want *cerrors.ConnectionError", err)
	}
}

func asConnErr(err error, target **cerrors.ConnectionError) bool {
	for err != nil {
		if ce, ok := err.(*cerrors.ConnectionError); ok {
			*target = ce
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
