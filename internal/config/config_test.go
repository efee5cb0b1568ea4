package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("API_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error without API token")
	}
}

func TestLoadDefaultsAndEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("API_TOKEN", "secret")
	t.Setenv("SPAM_THRESHOLD", "9")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("HEALTH_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIToken != "secret" {
		t.Fatalf("token = %q", cfg.APIToken)
	}
	if cfg.Defaults.SpamThreshold != 9 {
		t.Fatalf("spam threshold = %d, want env override 9", cfg.Defaults.SpamThreshold)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if !cfg.Health.Enabled {
		t.Fatal("health not enabled")
	}
	// Untouched values stay at their defaults.
	if cfg.Links.WindowHours != 24 {
		t.Fatalf("link window = %d", cfg.Links.WindowHours)
	}
	if cfg.Restriction.EvasionDeletes != 5 {
		t.Fatalf("evasion deletes = %d", cfg.Restriction.EvasionDeletes)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
api_token: from-file
chat_defaults:
  enabled: true
  daily_limit: 200
quiet_hours:
  start_hour: 22
  end_hour: 6
  chats:
    42: Europe/Berlin
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("API_TOKEN", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIToken != "from-file" {
		t.Fatalf("token = %q", cfg.APIToken)
	}
	if cfg.Defaults.DailyLimit != 200 {
		t.Fatalf("daily limit = %d", cfg.Defaults.DailyLimit)
	}
	if cfg.QuietHours.StartHour != 22 || cfg.QuietHours.Chats[42] != "Europe/Berlin" {
		t.Fatalf("quiet hours = %+v", cfg.QuietHours)
	}
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
api_token: x
quiet_hours:
  start_hour: 23
  end_hour: 7
  chats:
    42: Not/AZone
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("API_TOKEN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func TestRetentionWindowFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RetentionDays = 2
	if got := cfg.RetentionWindow(); got != 7*24*time.Hour {
		t.Fatalf("retention window = %v, want 7d floor", got)
	}
	cfg.RetentionDays = 30
	if got := cfg.RetentionWindow(); got != 30*24*time.Hour {
		t.Fatalf("retention window = %v", got)
	}
}
