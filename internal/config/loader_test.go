package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return p
}

func TestLoadYAML(t *testing.T) {
	p := writeTemp(t, "cfg.yaml", `
addr: ":9090"
vram_reserve_mb: 2048
default_lock_ttl_s: 300
services:
  - name: svc-a
    kind: native
    vram_mb: 1000
    priority: 10
    health_url: "http://localhost:9001/health"
    health_timeout_s: 30
    warmup_s: 5
    phases: [1]
    start_cmd: "echo start"
    stop_cmd: "echo stop"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Addr != ":9090" || cfg.VRAMReserveMB != 2048 || cfg.DefaultLockTTLS != 300 {
		t.Fatalf("unexpected globals: %+v", cfg)
	}
	if len(cfg.Services) != 1 || cfg.Services[0].Name != "svc-a" {
		t.Fatalf("unexpected services: %+v", cfg.Services)
	}
}

func TestLoadJSONRejectsUnknownKeys(t *testing.T) {
	p := writeTemp(t, "cfg.json", `{"addr": ":9090", "bogus_key": true}`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for unknown key")
	}
}

func TestLoadTOML(t *testing.T) {
	p := writeTemp(t, "cfg.toml", `
addr = ":9090"
vram_reserve_mb = 512

[[services]]
name = "svc-b"
kind = "containerized"
vram_mb = 2000
priority = 5
health_url = "http://localhost:9002/health"
container_id = "c1"
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Services) != 1 || cfg.Services[0].ContainerID != "c1" {
		t.Fatalf("unexpected services: %+v", cfg.Services)
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	p := writeTemp(t, "cfg.ini", `addr=:9090`)
	if _, err := Load(p); err == nil {
		t.Fatal("expected error for unsupported extension")
	}
}

func TestLoadEmptyPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()
	if cfg.VRAMReserveMB != DefaultVRAMReserveMB {
		t.Fatalf("VRAMReserveMB = %d, want %d", cfg.VRAMReserveMB, DefaultVRAMReserveMB)
	}
	if cfg.DefaultLockTTLS != DefaultLockTTLSeconds {
		t.Fatalf("DefaultLockTTLS = %d, want %d", cfg.DefaultLockTTLS, DefaultLockTTLSeconds)
	}
}
