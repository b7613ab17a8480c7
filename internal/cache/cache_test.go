package cache

import (
	"path/filepath"
	"testing"
	"time"
)

func TestHopChainKeyIsStableMD5(t *testing.T) {
	k1 := HopChainKey([]string{"ssh://admin@10.1.1.1", "telnet://10.1.1.2"})
	k2 := HopChainKey([]string{"ssh://admin@10.1.1.1", "telnet://10.1.1.2"})
	if k1 != k2 {
		t.Fatalf("expected stable key, got %q and %q", k1, k2)
	}
	if len(k1) != 32 {
		t.Fatalf("expected a 32-char hex MD5 digest, got %q", k1)
	}
}

func TestHopChainKeyDiffersOnOrder(t *testing.T) {
	k1 := HopChainKey([]string{"a", "b"})
	k2 := HopChainKey([]string{"b", "a"})
	if k1 == k2 {
		t.Fatal("expected different keys for different hop order")
	}
}

func TestStorePutThenGetRoundTrips(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(filepath.Join(dir, "records"))

	key := HopChainKey([]string{"ssh://admin@10.1.1.1"})
	rec := &DeviceDescriptionRecord{
		Platform:  "IOS",
		Family:    "ASR900",
		OSType:    "IOS",
		OSVersion: "15.6",
		Hostname:  "CSG-1202-ASR901",
		UpdatedAt: time.Unix(0, 0).UTC(),
	}
	if err := s.Put(key, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Hostname != "CSG-1202-ASR901" || got.HopChainKey != key {
		t.Fatalf("got %+v", got)
	}
}

func TestStoreGetMissingReturnsNilNil(t *testing.T) {
	s := NewStore(t.TempDir())
	rec, err := s.Get("does-not-exist")
	if err != nil || rec != nil {
		t.Fatalf("rec=%v err=%v, want nil, nil", rec, err)
	}
}
