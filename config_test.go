package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTryLoadConfigFromEnvOnly(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok123")
	t.Setenv("TELEGRAM_GROUP_CHAT_ID", "-1001234567890")
	t.Setenv("GOOGLE_SHEET_ID", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"store":{"backend":"sqlite"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := tryLoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telegram.BotToken != "tok123" {
		t.Errorf("botToken = %q", cfg.Telegram.BotToken)
	}
	if cfg.Telegram.GroupChatID != -1001234567890 {
		t.Errorf("groupChatId = %d", cfg.Telegram.GroupChatID)
	}
	if cfg.Store.backendOrDefault() != "sqlite" {
		t.Errorf("backend = %q", cfg.Store.backendOrDefault())
	}
}

func TestTryLoadConfigMissingToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_GROUP_CHAT_ID", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{"store":{"backend":"sqlite"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := tryLoadConfig(path); err == nil {
		t.Error("expected error for missing bot token")
	}
}

func TestSheetsBackendRequiresCredentials(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok123")
	t.Setenv("TELEGRAM_GROUP_CHAT_ID", "42")
	t.Setenv("GOOGLE_SHEET_ID", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := tryLoadConfig(path); err == nil {
		t.Error("expected error: sheets backend without spreadsheet id")
	}
}

func TestScheduleDefaults(t *testing.T) {
	var s ScheduleConfig
	if s.planningOrDefault() != "10:00" || s.nudgeOrDefault() != "11:00" ||
		s.middayOrDefault() != "15:00" || s.eodOrDefault() != "19:00" {
		t.Errorf("unexpected defaults: %s %s %s %s",
			s.planningOrDefault(), s.nudgeOrDefault(), s.middayOrDefault(), s.eodOrDefault())
	}
}

func TestValidateConfigBadScheduleTime(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "tok123")
	t.Setenv("TELEGRAM_GROUP_CHAT_ID", "42")

	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"store":{"backend":"sqlite"},"schedule":{"eodTime":"7pm"}}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := tryLoadConfig(path); err == nil {
		t.Error("expected error for bad schedule time")
	}
}
