package config

import "testing"

func TestLoadBridgeMode(t *testing.T) {
	t.Setenv("TRANSPORT_MODE", "bridge")
	t.Setenv("BRIDGE_URL", "http://bridge:9090")
	t.Setenv("WEBHOOK_SECRET", "s")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("default port = %q", cfg.Port)
	}
	if cfg.TransportDomain != "s.whatsapp.net" {
		t.Fatalf("default domain = %q", cfg.TransportDomain)
	}
	if cfg.ChatFetchLimit != 500 {
		t.Fatalf("default fetch limit = %d", cfg.ChatFetchLimit)
	}
}

func TestLoadBridgeModeRequiresURL(t *testing.T) {
	t.Setenv("TRANSPORT_MODE", "bridge")
	t.Setenv("BRIDGE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("bridge mode without BRIDGE_URL must fail")
	}
}

func TestLoadVendorMode(t *testing.T) {
	t.Setenv("TRANSPORT_MODE", "vendor")
	t.Setenv("BRIDGE_URL", "")
	t.Setenv("WEBHOOK_SECRET", "s")

	cfg, err := Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.TransportMode != ModeVendor {
		t.Fatalf("mode = %q", cfg.TransportMode)
	}
}

func TestLoadRejectsUnknownMode(t *testing.T) {
	t.Setenv("TRANSPORT_MODE", "carrier-pigeon")

	if _, err := Load(); err == nil {
		t.Fatal("unknown mode must fail")
	}
}
