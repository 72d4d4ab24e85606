package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TRENDRADAR_LOG_LEVEL", "STORAGE_RETENTION_DAYS", "FREQUENCY_WORDS_PATH",
		"S3_ENDPOINT_URL", "S3_BUCKET_NAME", "S3_ACCESS_KEY_ID", "S3_SECRET_ACCESS_KEY", "S3_REGION",
		"FEISHU_WEBHOOK_URL", "DINGTALK_WEBHOOK_URL", "WEWORK_WEBHOOK_URL",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID", "NTFY_TOPIC", "NTFY_TOKEN",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
app:
  timezone: "Asia/Shanghai"
crawler:
  request_interval: 200
report:
  mode: "incremental"
  rank_threshold: 3
storage:
  data_dir: "/tmp/trendradar/output"
platforms:
  - id: "weibo"
    name: "微博"
  - id: "zhihu"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- File values --
	if cfg.Crawler.RequestInterval != 200 {
		t.Errorf("Crawler.RequestInterval = %d, want 200", cfg.Crawler.RequestInterval)
	}
	if cfg.Report.Mode != "incremental" {
		t.Errorf("Report.Mode = %q, want incremental", cfg.Report.Mode)
	}
	if cfg.Report.RankThreshold != 3 {
		t.Errorf("Report.RankThreshold = %d, want 3", cfg.Report.RankThreshold)
	}
	if cfg.Storage.DataDir != "/tmp/trendradar/output" {
		t.Errorf("Storage.DataDir = %q, want /tmp/trendradar/output", cfg.Storage.DataDir)
	}

	// -- Defaults kept where the file is silent --
	if cfg.Crawler.BaseURL == "" {
		t.Error("Crawler.BaseURL default missing")
	}
	if cfg.Server.Port != 3333 {
		t.Errorf("Server.Port = %d, want 3333", cfg.Server.Port)
	}
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want 0.0.0.0", cfg.Server.Host)
	}
	if cfg.Weights.Rank != 0.4 || cfg.Weights.Frequency != 0.3 || cfg.Weights.Hotness != 0.3 {
		t.Errorf("Weights = %+v, want 0.4/0.3/0.3", cfg.Weights)
	}
	if cfg.Storage.RetentionDays != 30 {
		t.Errorf("Storage.RetentionDays = %d, want 30", cfg.Storage.RetentionDays)
	}
	if cfg.Notification.MaxAccounts != 3 {
		t.Errorf("Notification.MaxAccounts = %d, want 3", cfg.Notification.MaxAccounts)
	}

	// -- Backend resolution without S3 credentials --
	if cfg.Storage.Backend != "local" {
		t.Errorf("Storage.Backend = %q, want local", cfg.Storage.Backend)
	}

	// -- Platform helpers --
	ids := cfg.PlatformIDs()
	if len(ids) != 2 || ids[0] != "weibo" || ids[1] != "zhihu" {
		t.Errorf("PlatformIDs() = %v, want [weibo zhihu]", ids)
	}
	names := cfg.PlatformNames()
	if names["weibo"] != "微博" {
		t.Errorf("PlatformNames()[weibo] = %q, want 微博", names["weibo"])
	}
	if names["zhihu"] != "zhihu" {
		t.Errorf("PlatformNames()[zhihu] = %q, want the id back", names["zhihu"])
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
storage:
  data_dir: "output"
  retention_days: 10
keywords:
  frequency_words_path: "config/frequency_words.txt"
`)

	t.Setenv("STORAGE_RETENTION_DAYS", "45")
	t.Setenv("FREQUENCY_WORDS_PATH", "/etc/trendradar/words.txt")
	t.Setenv("TRENDRADAR_LOG_LEVEL", "debug")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok-1;tok-2")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Storage.RetentionDays != 45 {
		t.Errorf("Storage.RetentionDays = %d, want 45 (env override)", cfg.Storage.RetentionDays)
	}
	if cfg.Keywords.FrequencyWordsPath != "/etc/trendradar/words.txt" {
		t.Errorf("Keywords.FrequencyWordsPath = %q, want env override", cfg.Keywords.FrequencyWordsPath)
	}
	if cfg.App.LogLevel != "debug" {
		t.Errorf("App.LogLevel = %q, want debug (env override)", cfg.App.LogLevel)
	}
	if cfg.Notification.Channels.TelegramBotToken != "tok-1;tok-2" {
		t.Errorf("TelegramBotToken = %q, want env override", cfg.Notification.Channels.TelegramBotToken)
	}
}

func TestLoadRemoteBackendActivation(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
storage:
  data_dir: "output"
`)

	t.Setenv("S3_ENDPOINT_URL", "https://cos.ap-guangzhou.myqcloud.com")
	t.Setenv("S3_BUCKET_NAME", "trendradar-123")
	t.Setenv("S3_ACCESS_KEY_ID", "AKID")
	t.Setenv("S3_SECRET_ACCESS_KEY", "SECRET")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if !cfg.HasRemote() {
		t.Error("HasRemote() = false with full credential set")
	}
	if cfg.Storage.Backend != "remote" {
		t.Errorf("Storage.Backend = %q, want remote", cfg.Storage.Backend)
	}
}

func TestLoadExplicitBackendWins(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, `
storage:
  data_dir: "output"
  backend: "local"
`)

	t.Setenv("S3_ENDPOINT_URL", "https://s3.example.com")
	t.Setenv("S3_BUCKET_NAME", "b")
	t.Setenv("S3_ACCESS_KEY_ID", "k")
	t.Setenv("S3_SECRET_ACCESS_KEY", "s")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Storage.Backend != "local" {
		t.Errorf("Storage.Backend = %q, want explicit local to win", cfg.Storage.Backend)
	}
}

func TestLoadValidation(t *testing.T) {
	clearEnv(t)

	tests := []struct {
		name    string
		content string
	}{
		{"bad mode", "report:\n  mode: \"hourly\"\nstorage:\n  data_dir: \"output\"\n"},
		{"bad port", "server:\n  port: 70000\nstorage:\n  data_dir: \"output\"\n"},
		{"missing data dir", "storage:\n  data_dir: \"\"\n"},
		{"platform without id", "storage:\n  data_dir: \"output\"\nplatforms:\n  - name: \"no id\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("Load() should reject invalid config")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load() should fail on a missing file")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() on missing file: %v", err)
	}
	if cfg.Storage.Backend != "local" {
		t.Errorf("Storage.Backend = %q, want local", cfg.Storage.Backend)
	}
	if len(cfg.Platforms) == 0 {
		t.Error("defaults should carry the built-in platform list")
	}
}

func TestLoadOrDefaultReadsFile(t *testing.T) {
	clearEnv(t)

	path := writeConfig(t, "report:\n  mode: \"current\"\nstorage:\n  data_dir: \"output\"\n")
	cfg, err := LoadOrDefault(path)
	if err != nil {
		t.Fatalf("LoadOrDefault() returned error: %v", err)
	}
	if cfg.Report.Mode != "current" {
		t.Errorf("Report.Mode = %q, want current", cfg.Report.Mode)
	}
}

func TestLoadOrDefaultEnvStillApplies(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_RETENTION_DAYS", "9")

	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() returned error: %v", err)
	}
	if cfg.Storage.RetentionDays != 9 {
		t.Errorf("RetentionDays = %d, want 9 from environment", cfg.Storage.RetentionDays)
	}
}
