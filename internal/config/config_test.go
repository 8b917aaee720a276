package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "http://localhost:3000/api" {
		t.Fatalf("unexpected api url %q", cfg.APIURL)
	}
	if cfg.Remote.Timeout != 10*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Remote.Timeout)
	}
	if cfg.Cache.Driver != "sqlite" {
		t.Fatalf("unexpected cache driver %q", cfg.Cache.Driver)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "petfeeder.yaml")
	body := []byte("api_url: http://feeder.local:3000/api/\nremote:\n  timeout: 3s\ncache:\n  driver: memory\nprofile: kitchen\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("PETFEEDER_PROFILE", "hallway")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIURL != "http://feeder.local:3000/api" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.APIURL)
	}
	if cfg.Remote.Timeout != 3*time.Second {
		t.Fatalf("unexpected timeout %s", cfg.Remote.Timeout)
	}
	if cfg.Cache.Driver != "memory" {
		t.Fatalf("unexpected driver %q", cfg.Cache.Driver)
	}
	if cfg.Profile != "hallway" {
		t.Fatalf("expected env override, got %q", cfg.Profile)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing explicit config file")
	}
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "true", "YES", " on "} {
		if !parseBool(v) {
			t.Fatalf("expected %q to parse true", v)
		}
	}
	for _, v := range []string{"", "0", "off", "nah"} {
		if parseBool(v) {
			t.Fatalf("expected %q to parse false", v)
		}
	}
}

func TestLoadServerSeedDevices(t *testing.T) {
	t.Setenv("FEEDER_SEED_DEVICES", " feeder-1, ,kitchen ")
	t.Setenv("FEEDER_DISPENSE", "off")
	cfg := LoadServer()
	if len(cfg.SeedDevices) != 2 || cfg.SeedDevices[0] != "feeder-1" || cfg.SeedDevices[1] != "kitchen" {
		t.Fatalf("unexpected seed devices %q", cfg.SeedDevices)
	}
	if cfg.Dispense {
		t.Fatalf("expected dispensing disabled")
	}
	if cfg.DB.Driver != "sqlite" {
		t.Fatalf("unexpected db driver %q", cfg.DB.Driver)
	}
}
