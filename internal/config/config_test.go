package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"GEMINI_API_KEY", "AI_MODEL", "AI_FALLBACK_MODEL", "AI_MAX_RETRIES", "AI_MAX_TOKENS",
		"AI_TEMPERATURE", "AI_TIMEOUT", "DATABASE_URL", "STUDIOFLOW_SQLITE_PATH",
		"STUDIOFLOW_ENCRYPTION_KEY", "STUDIOFLOW_NATS_PORT", "STUDIOFLOW_NATS_URL",
		"STUDIOFLOW_WEB_PASSWORD", "STUDIOFLOW_WEB_PORT", "STUDIOFLOW_TELEGRAM_TOKEN",
		"STUDIOFLOW_TELEGRAM_CHAT_ID", "SLACK_WEBHOOK_URL", "LOG_LEVEL", "DEBUG",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaults(t *testing.T) {
	cfg := defaults()

	if cfg.AI.Model != "gemini-2.5-flash" {
		t.Errorf("expected default model gemini-2.5-flash, got %s", cfg.AI.Model)
	}
	if cfg.AI.FallbackModel != "gemini-2.5-pro" {
		t.Errorf("expected fallback gemini-2.5-pro, got %s", cfg.AI.FallbackModel)
	}
	if cfg.AI.MaxRetries != 3 {
		t.Errorf("expected max_retries 3, got %d", cfg.AI.MaxRetries)
	}
	if cfg.Orchestrator.Timeout != 60*time.Second {
		t.Errorf("expected timeout 60s, got %v", cfg.Orchestrator.Timeout)
	}
	if cfg.NATS.Port != 4222 {
		t.Errorf("expected nats port 4222, got %d", cfg.NATS.Port)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected web port 8080, got %d", cfg.Web.Port)
	}
	if cfg.Store.SQLitePath != "data/studioflow.db" {
		t.Errorf("expected sqlite path data/studioflow.db, got %s", cfg.Store.SQLitePath)
	}
	if !cfg.Store.MemoryFallback {
		t.Error("expected memory fallback enabled by default")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STUDIOFLOW_CONFIG", "/nonexistent/config.yaml")
	t.Setenv("GEMINI_API_KEY", "test-key")
	t.Setenv("DATABASE_URL", "postgres://localhost/studioflow")
	t.Setenv("STUDIOFLOW_WEB_PASSWORD", "secret")
	t.Setenv("STUDIOFLOW_WEB_PORT", "9090")
	t.Setenv("AI_MAX_RETRIES", "5")
	t.Setenv("AI_TIMEOUT", "15")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AI.APIKey != "test-key" {
		t.Errorf("expected api key test-key, got %s", cfg.AI.APIKey)
	}
	if cfg.Store.PostgresDSN != "postgres://localhost/studioflow" {
		t.Errorf("unexpected dsn %s", cfg.Store.PostgresDSN)
	}
	if cfg.Web.Auth != "secret" {
		t.Errorf("expected web auth secret, got %s", cfg.Web.Auth)
	}
	if cfg.Web.Port != 9090 {
		t.Errorf("expected web port 9090, got %d", cfg.Web.Port)
	}
	if cfg.AI.MaxRetries != 5 {
		t.Errorf("expected max retries 5, got %d", cfg.AI.MaxRetries)
	}
	if cfg.Orchestrator.Timeout != 15*time.Second {
		t.Errorf("expected timeout 15s, got %v", cfg.Orchestrator.Timeout)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("expected debug log level, got %s", cfg.Log.Level)
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	t.Setenv("STUDIO_SLACK", "https://hooks.slack.test/abc")
	yaml := `
ai:
  model: "gemini-1.5-flash"
  max_retries: 1
slack:
  webhook_url: "${STUDIO_SLACK}"
telegram:
  token: "yaml-token"
  allow_from: [123, 456]
web:
  port: 3000
  enabled: false
schedules:
  - name: weekly-sentiment
    agent: sentiment_analyzer
    schedule:
      kind: cron
      cron_expr: "0 9 * * 1"
    payload:
      communications: ["all good"]
`
	if err := os.WriteFile(cfgPath, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(cfgPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AI.Model != "gemini-1.5-flash" {
		t.Errorf("expected gemini-1.5-flash, got %s", cfg.AI.Model)
	}
	if cfg.AI.FallbackModel != "gemini-2.5-pro" {
		t.Errorf("expected default fallback to survive, got %s", cfg.AI.FallbackModel)
	}
	if cfg.Slack.WebhookURL != "https://hooks.slack.test/abc" {
		t.Errorf("expected expanded webhook url, got %s", cfg.Slack.WebhookURL)
	}
	if len(cfg.Telegram.AllowFrom) != 2 {
		t.Errorf("expected 2 allow_from entries, got %d", len(cfg.Telegram.AllowFrom))
	}
	if cfg.Web.Port != 3000 || cfg.Web.Enabled {
		t.Errorf("unexpected web config %+v", cfg.Web)
	}
	if len(cfg.Schedules) != 1 || cfg.Schedules[0].Schedule.CronExpr != "0 9 * * 1" {
		t.Fatalf("unexpected schedules %+v", cfg.Schedules)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("ai: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(cfgPath); err == nil || !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cfg := defaults()
	v := cfg.Validate()
	if !v.Valid {
		t.Fatalf("expected defaults to be valid, got errors %v", v.Errors)
	}
	if !containsPrefix(v.Warnings, "GEMINI_API_KEY") {
		t.Errorf("expected missing key warning, got %v", v.Warnings)
	}
	if containsPrefix(v.Integrations, "gemini") {
		t.Errorf("gemini should not be enabled without a key")
	}

	cfg.AI.APIKey = "k"
	cfg.Slack.WebhookURL = "https://hooks.slack.test/x"
	v = cfg.Validate()
	if !containsPrefix(v.Integrations, "gemini") || !containsPrefix(v.Integrations, "slack") {
		t.Errorf("expected gemini and slack integrations, got %v", v.Integrations)
	}

	cfg.Store = StoreConfig{}
	cfg.Schedules = []ScheduleConfig{
		{Name: "a", Agent: "x", Schedule: ScheduleSpec{Kind: "cron", CronExpr: "nope"}},
		{Name: "a", Agent: "", Schedule: ScheduleSpec{Kind: "hourly"}},
	}
	v = cfg.Validate()
	if v.Valid {
		t.Fatal("expected invalid config")
	}
	if len(v.Errors) != 5 {
		t.Errorf("expected 5 errors, got %d: %v", len(v.Errors), v.Errors)
	}
}

func TestNATSURL(t *testing.T) {
	cfg := defaults()
	if got := cfg.NATSURL(); got != "nats://127.0.0.1:4222" {
		t.Errorf("unexpected url %s", got)
	}
	cfg.NATS.URL = "nats://bus:4222"
	if got := cfg.NATSURL(); got != "nats://bus:4222" {
		t.Errorf("unexpected url %s", got)
	}
}

func containsPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
