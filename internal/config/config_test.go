package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "8080" || cfg.Storage.Backend != BackendMemory {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if got := TTLDuration(cfg.Packs.CacheTTL, time.Hour); got != 7*24*time.Hour {
		t.Fatalf("expected 7 day cache ttl, got %s", got)
	}
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  port: "9090"
log:
  level: debug
storage:
  backend: redis
redis:
  addr: localhost:6379
packs:
  endpoint: https://packs.example.com
  cache_ttl: 24h
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("QUIZ_PORT", "7070")
	t.Setenv("QUIZ_AUTH_TOKEN", "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("expected env to override port, got %s", cfg.Server.Port)
	}
	if cfg.Auth.Token != "secret" {
		t.Fatalf("expected token from env, got %q", cfg.Auth.Token)
	}
	if cfg.Packs.Endpoint != "https://packs.example.com" || cfg.Packs.DiscoverPattern != "*.json" {
		t.Fatalf("unexpected packs config %+v", cfg.Packs)
	}
	if cfg.SlogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %s", cfg.SlogLevel())
	}
	if got := TTLDuration(cfg.Packs.CacheTTL, time.Hour); got != 24*time.Hour {
		t.Fatalf("expected 24h cache ttl, got %s", got)
	}
}

func TestLoadRejectsIncompleteBackend(t *testing.T) {
	cases := map[string]string{
		"redis without addr":   "storage:\n  backend: redis\n",
		"postgres without url": "storage:\n  backend: postgres\n",
		"unknown backend":      "storage:\n  backend: mongo\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
				t.Fatalf("write config: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if got := TTLDuration("not-a-duration", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
	if got := TTLDuration("", time.Minute); got != time.Minute {
		t.Fatalf("expected fallback, got %s", got)
	}
}
