package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fidelity.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
listen: ":9000"
db_path: /var/lib/fidelity/fidelity.db
allow_private_urls: true
rate_limit:
  max_requests: 3
trusted_proxies: [10.0.0.0/8, 192.0.2.1]
design:
  token: secret
  timeout: 10s
browser:
  remote: ws://chrome:9222/devtools/browser/abc
  stealth: false
  recycle_interval: 1h
  resource_blocking: [images]
  settle: 500ms
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if cfg.Listen != ":9000" || cfg.DBPath != "/var/lib/fidelity/fidelity.db" || !cfg.AllowPrivateURLs {
		t.Errorf("top level = %+v", cfg)
	}
	if cfg.RateLimit.MaxRequests != 3 || cfg.RateLimit.Window != time.Minute {
		t.Errorf("rate limit = %+v", cfg.RateLimit)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[1] != "192.0.2.1" {
		t.Errorf("trusted proxies = %v", cfg.TrustedProxies)
	}
	if cfg.Design.Token != "secret" || cfg.Design.Timeout != 10*time.Second {
		t.Errorf("design = %+v", cfg.Design)
	}
	if cfg.Design.BaseURL != "https://api.figma.com" || cfg.Design.MaxBytes != 64<<20 {
		t.Errorf("design defaults = %+v", cfg.Design)
	}
	b := cfg.Browser
	if b.StealthEnabled() {
		t.Error("stealth should be disabled")
	}
	if b.RecycleInterval != time.Hour || b.Settle != 500*time.Millisecond {
		t.Errorf("browser durations = %v / %v", b.RecycleInterval, b.Settle)
	}
	if len(b.ResourceBlocking) != 1 || b.ResourceBlocking[0] != "images" {
		t.Errorf("ResourceBlocking = %v", b.ResourceBlocking)
	}
	if b.NavTimeout != 30*time.Second || b.MaxCaptures != 500 {
		t.Errorf("browser defaults = %+v", b)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFile(writeConfig(t, "listen: [unclosed")); err == nil {
		t.Error("expected parse error")
	}
}

func TestDefaults(t *testing.T) {
	var cfg Config
	cfg.applyDefaults()

	if cfg.Listen != ":8420" || cfg.DBPath != "fidelity.db" {
		t.Errorf("got %q %q", cfg.Listen, cfg.DBPath)
	}
	if cfg.AuditRetention != 720*time.Hour {
		t.Errorf("AuditRetention = %v", cfg.AuditRetention)
	}
	if !cfg.Browser.StealthEnabled() {
		t.Error("stealth should default to enabled")
	}
	want := []string{"images", "media"}
	if len(cfg.Browser.ResourceBlocking) != 2 || cfg.Browser.ResourceBlocking[0] != want[0] || cfg.Browser.ResourceBlocking[1] != want[1] {
		t.Errorf("ResourceBlocking = %v, want %v", cfg.Browser.ResourceBlocking, want)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"FIGMA_TOKEN":   "from-env",
		"FIDELITY_DB":   "/tmp/x.db",
		"FIDELITY_ADDR": "127.0.0.1:1",
	}
	cfg := Config{Listen: ":9000"}
	cfg.Design.Token = "from-file"
	cfg.applyEnv(func(k string) string { return env[k] })

	if cfg.Design.Token != "from-env" || cfg.DBPath != "/tmp/x.db" || cfg.Listen != "127.0.0.1:1" {
		t.Errorf("got %+v", cfg)
	}
}

func TestLoad_NoFile(t *testing.T) {
	t.Setenv("FIGMA_TOKEN", "tok")
	t.Setenv("FIDELITY_DB", "")
	t.Setenv("FIDELITY_ADDR", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Design.Token != "tok" || cfg.Listen != ":8420" {
		t.Errorf("got %+v", cfg)
	}
}
