package platform

import (
	"context"
	"testing"
	"time"

	"github.com/alexpitcher/condoor/internal/patterns"
)

func TestReloadIOSSendsReloadAndConfirms(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformIOS)
	ch := &scriptedChannel{chunks: []string{"Proceed with reload? [confirm]"}}

	res, err := d.Reload(context.Background(), ch, reg, ReloadOptions{Timeout: time.Second})
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !res.NeedsReconnect {
		t.Errorf("expected NeedsReconnect=true")
	}
	if len(ch.sent) != 2 || ch.sent[0] != "reload\n" {
		t.Fatalf("sent = %v", ch.sent)
	}
}

func TestReloadIOSSavesConfigWhenRequested(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformIOS)
	ch := &scriptedChannel{chunks: []string{
		"System configuration has been modified. Save?",
		"Proceed with reload? [confirm]",
	}}

	_, err := d.Reload(context.Background(), ch, reg, ReloadOptions{Timeout: time.Second, SaveConfig: true})
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	found := false
	for _, s := range ch.sent {
		if s == "yes\n" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'yes' sent for save prompt, sent = %v", ch.sent)
	}
}

func TestReloadXR32FullDialogThroughRommon(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformXR)
	ch := &scriptedChannel{chunks: []string{
		"[Done]",
		"Proceed with reload? [confirm]",
		"rommon 1 > ",
		"ios con0/RSP0/CPU0 is now available",
		"Press RETURN to get started",
		"SYSTEM CONFIGURATION IN PROCESS",
		"SYSTEM CONFIGURATION COMPLETED",
	}}

	res, err := d.Reload(context.Background(), ch, reg, ReloadOptions{Timeout: time.Second})
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !res.NeedsReconnect {
		t.Errorf("expected NeedsReconnect=true")
	}
	foundBoot := false
	for _, s := range ch.sent {
		if s == "boot\n" {
			foundBoot = true
		}
	}
	if !foundBoot {
		t.Fatalf("expected 'boot' sent from rommon, sent = %v", ch.sent)
	}
}

func TestReloadXR32DisallowedFromTelnetFails(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformXR)
	ch := &scriptedChannel{chunks: []string{
		"[Done]",
		"Proceed with reload? [confirm]",
		"Reload to the ROM monitor disallowed from a telnet line",
	}}

	_, err := d.Reload(context.Background(), ch, reg, ReloadOptions{Timeout: time.Second})
	if err == nil {
		t.Fatal("expected an error")
	}
}

func TestReloadNXOSSendsYOnRebootWarning(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformNXOS)
	ch := &scriptedChannel{chunks: []string{"This command will reboot the system"}}

	res, err := d.Reload(context.Background(), ch, reg, ReloadOptions{Timeout: time.Second})
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !res.NeedsReconnect {
		t.Errorf("expected NeedsReconnect=true")
	}
	if len(ch.sent) != 2 || ch.sent[1] != "y\n" {
		t.Fatalf("sent = %v", ch.sent)
	}
}

func TestReloadGenericIsUnsupported(t *testing.T) {
	reg := mustRegistry(t)
	d := New(patterns.PlatformGeneric)
	ch := &scriptedChannel{}
	if _, err := d.Reload(context.Background(), ch, reg, ReloadOptions{}); err == nil {
		t.Fatal("expected an error for unsupported reload on generic platform")
	}
}
