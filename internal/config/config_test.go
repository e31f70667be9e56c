package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.SyncInterval != 60*time.Second {
		t.Errorf("SyncInterval = %v, want 60s", cfg.SyncInterval)
	}
	if cfg.HTTPMaxTries != 3 {
		t.Errorf("HTTPMaxTries = %d, want 3", cfg.HTTPMaxTries)
	}
	if cfg.WSBackoffBase != time.Second {
		t.Errorf("WSBackoffBase = %v, want 1s", cfg.WSBackoffBase)
	}
	if cfg.WSBackoffCap != 30*time.Second {
		t.Errorf("WSBackoffCap = %v, want 30s", cfg.WSBackoffCap)
	}
	if cfg.WSMaxAttempts != 10 {
		t.Errorf("WSMaxAttempts = %d, want 10", cfg.WSMaxAttempts)
	}
	if cfg.DBPath == "" {
		t.Error("DBPath default is empty")
	}
	if cfg.APIBaseURL != "" {
		t.Errorf("APIBaseURL = %q, want empty (no default endpoint)", cfg.APIBaseURL)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
db_path: /tmp/fin-test.db
api_base_url: https://api.example.com
ws_url: wss://rt.example.com/ws
sync_interval: 5m
ws_max_attempts: 4
log_file: /tmp/fin-test.log
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.DBPath != "/tmp/fin-test.db" {
		t.Errorf("DBPath = %q", cfg.DBPath)
	}
	if cfg.APIBaseURL != "https://api.example.com" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.WSURL != "wss://rt.example.com/ws" {
		t.Errorf("WSURL = %q", cfg.WSURL)
	}
	if cfg.SyncInterval != 5*time.Minute {
		t.Errorf("SyncInterval = %v, want 5m", cfg.SyncInterval)
	}
	if cfg.WSMaxAttempts != 4 {
		t.Errorf("WSMaxAttempts = %d, want 4", cfg.WSMaxAttempts)
	}
	if cfg.LogFile != "/tmp/fin-test.log" {
		t.Errorf("LogFile = %q", cfg.LogFile)
	}

	// Unset keys keep their defaults.
	if cfg.HTTPMaxTries != 3 {
		t.Errorf("HTTPMaxTries = %d, want default 3", cfg.HTTPMaxTries)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FINTRACK_API_BASE_URL", "https://env.example.com")
	t.Setenv("FINTRACK_SYNC_INTERVAL", "90s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.APIBaseURL != "https://env.example.com" {
		t.Errorf("APIBaseURL = %q, want env value", cfg.APIBaseURL)
	}
	if cfg.SyncInterval != 90*time.Second {
		t.Errorf("SyncInterval = %v, want 90s", cfg.SyncInterval)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load accepted a missing explicit config path")
	}
}
