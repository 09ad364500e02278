package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

func TestDefaultConfig_Retention(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Retention.RawDays != 30 {
		t.Errorf("RawDays = %d, want 30", cfg.Retention.RawDays)
	}
	if cfg.Retention.SummaryDays != 90 {
		t.Errorf("SummaryDays = %d, want 90", cfg.Retention.SummaryDays)
	}
	if cfg.Retention.Schedule != "0 4 * * *" {
		t.Errorf("Schedule = %q, want daily 04:00", cfg.Retention.Schedule)
	}
}

func TestDefaultConfig_Storage(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Storage.Path == "" {
		t.Error("Storage path should not be empty")
	}
	if cfg.Storage.MaxOpenConns == 0 {
		t.Error("MaxOpenConns should have a default")
	}
	if cfg.QueryTimeout().Seconds() != 10 {
		t.Errorf("QueryTimeout = %v, want 10s", cfg.QueryTimeout())
	}
	if strings.HasPrefix(cfg.StoragePath(), "~") {
		t.Errorf("StoragePath should expand home, got %q", cfg.StoragePath())
	}
}

func TestDefaultConfig_Credentials(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Discord.Token != "" {
		t.Error("Discord token should be empty by default")
	}
	if cfg.AI.APIKey != "" {
		t.Error("AI API key should be empty by default")
	}
	if cfg.GetBaseURL() == "" {
		t.Error("base URL should fall back to a default")
	}
}

func TestDefaultConfig_Validates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidate_RejectsBadRetention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retention.RawDays = 0
	cfg.Retention.Schedule = "whenever"

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"retention.raw_days", "retention.schedule"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err, want)
		}
	}

	cfg = DefaultConfig()
	cfg.Retention.RawDays = 120
	if err := cfg.Validate(); err == nil {
		t.Error("summary horizon shorter than raw horizon should be rejected")
	}
}

func TestSaveConfig_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file permission bits are not enforced on Windows")
	}

	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	if err := SaveConfig(path, cfg); err != nil {
		t.Fatalf("SaveConfig failed: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}

	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("config file has permission %04o, want 0600", perm)
	}
}

func TestLoadConfig_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"retention": {"raw_days": 14}, "discord": {"allow_from": [123, "456"]}, "ai": {"model": "file/model"}}`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("RUMI_AI_MODEL", "env/model")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Retention.RawDays != 14 {
		t.Errorf("RawDays = %d, want 14 from file", cfg.Retention.RawDays)
	}
	if cfg.Retention.SummaryDays != 90 {
		t.Errorf("SummaryDays = %d, want default 90", cfg.Retention.SummaryDays)
	}
	if got := cfg.AI.Model; got != "env/model" {
		t.Errorf("expected env override model, got %q", got)
	}
	if len(cfg.Discord.AllowFrom) != 2 || cfg.Discord.AllowFrom[0] != "123" || cfg.Discord.AllowFrom[1] != "456" {
		t.Errorf("unexpected allow_from: %#v", cfg.Discord.AllowFrom)
	}
}

func TestLoadConfig_EnvOverridesWithoutFile(t *testing.T) {
	t.Setenv("RUMI_RETENTION_SUMMARY_DAYS", "120")
	t.Setenv("RUMI_DISCORD_TOKEN", "bot-token")
	path := filepath.Join(t.TempDir(), "missing-config.json")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Retention.SummaryDays != 120 {
		t.Fatalf("expected env summary days, got %d", cfg.Retention.SummaryDays)
	}
	if cfg.Discord.Token != "bot-token" {
		t.Fatalf("expected env discord token, got %q", cfg.Discord.Token)
	}
}

func TestLoadConfig_MalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}
