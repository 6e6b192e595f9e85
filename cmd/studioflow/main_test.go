package main

import (
	"log/slog"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestBuildPayloadFromData(t *testing.T) {
	p, err := buildPayload("creative_brief_parser", "ignored", `{"text":"New logo"}`)
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	if p["text"] != "New logo" {
		t.Errorf("text = %v, want New logo", p["text"])
	}

	if _, err := buildPayload("creative_brief_parser", "", `[1,2]`); err == nil {
		t.Error("expected error for non-object --data")
	}
}

func TestBuildPayloadFromText(t *testing.T) {
	p, err := buildPayload("creative_brief_parser", "Client wants a logo", "")
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	if p["text"] != "Client wants a logo" {
		t.Errorf("text = %v", p["text"])
	}

	p, err = buildPayload("sentiment_analyzer", "Thanks, looks great", "")
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	list, ok := p["communications"].([]any)
	if !ok || len(list) != 1 {
		t.Errorf("communications = %#v, want one-element list", p["communications"])
	}

	if _, err := buildPayload("no_such_agent", "hi", ""); err == nil {
		t.Error("expected error for unknown agent")
	}
}

func TestBuildPayloadEmpty(t *testing.T) {
	p, err := buildPayload("creative_brief_parser", "", "")
	if err != nil {
		t.Fatalf("buildPayload: %v", err)
	}
	if p == nil || len(p) != 0 {
		t.Errorf("payload = %#v, want empty map", p)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"serve", "invoke", "agents", "export", "import", "config", "schedules", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestFormatNext(t *testing.T) {
	if got := formatNext(nil); got != "-" {
		t.Errorf("formatNext(nil) = %q, want -", got)
	}
	ts := time.Date(2026, 3, 1, 9, 30, 0, 0, time.Local)
	if got := formatNext(&ts); got != "2026-03-01 09:30:00" {
		t.Errorf("formatNext = %q", got)
	}
}
