package schedule

import (
	"testing"
	"time"

	"github.com/mtzanidakis/studioflow/internal/config"
)

var ref = time.Date(2026, 3, 2, 8, 30, 0, 0, time.UTC)

func TestNextRunCron(t *testing.T) {
	next := NextRun(config.ScheduleSpec{Kind: "cron", CronExpr: "0 9 * * *"}, ref)
	if next == nil {
		t.Fatal("expected next run time, got nil")
	}
	want := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("expected %v, got %v", want, next)
	}
}

func TestNextRunInterval(t *testing.T) {
	next := NextRun(config.ScheduleSpec{Kind: "interval", IntervalMs: 60000}, ref)
	if next == nil {
		t.Fatal("expected next run time, got nil")
	}
	if got := next.Sub(ref); got != time.Minute {
		t.Errorf("expected next run 1m after ref, got %v", got)
	}
}

func TestNextRunOnce(t *testing.T) {
	future := ref.Add(time.Hour).UnixMilli()
	next := NextRun(config.ScheduleSpec{Kind: "once", AtMs: future}, ref)
	if next == nil {
		t.Fatal("expected next run time, got nil")
	}

	// Past time should return nil
	past := ref.Add(-time.Hour).UnixMilli()
	if next := NextRun(config.ScheduleSpec{Kind: "once", AtMs: past}, ref); next != nil {
		t.Error("expected nil for past once schedule")
	}
}

func TestNextRunInvalid(t *testing.T) {
	for _, s := range []config.ScheduleSpec{
		{Kind: "cron", CronExpr: "not cron"},
		{Kind: "interval"},
		{Kind: "weekly"},
	} {
		if next := NextRun(s, ref); next != nil {
			t.Errorf("expected nil for %+v", s)
		}
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		spec config.ScheduleSpec
		want string
	}{
		{config.ScheduleSpec{Kind: "cron", CronExpr: "0 9 * * 1"}, "0 9 * * 1"},
		{config.ScheduleSpec{Kind: "interval", IntervalMs: 3600000}, "Every hour"},
		{config.ScheduleSpec{Kind: "interval", IntervalMs: 7200000}, "Every 2 hours"},
		{config.ScheduleSpec{Kind: "interval", IntervalMs: 60000}, "Every minute"},
		{config.ScheduleSpec{Kind: "interval", IntervalMs: 900000}, "Every 15 minutes"},
		{config.ScheduleSpec{Kind: "interval", IntervalMs: 30000}, "Every 30 seconds"},
		{config.ScheduleSpec{Kind: "once", AtMs: ref.UnixMilli()}, "Once at Mar 2 08:30"},
	}
	for _, tt := range tests {
		if got := Describe(tt.spec); got != tt.want {
			t.Errorf("Describe(%+v) = %q, want %q", tt.spec, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		raw  string
		want config.ScheduleSpec
	}{
		{`{"kind":"interval","interval_ms":5000}`, config.ScheduleSpec{Kind: "interval", IntervalMs: 5000}},
		{"15m", config.ScheduleSpec{Kind: "interval", IntervalMs: 900000}},
		{"2026-03-02T08:30:00Z", config.ScheduleSpec{Kind: "once", AtMs: ref.UnixMilli()}},
		{"0 9 * * 1-5", config.ScheduleSpec{Kind: "cron", CronExpr: "0 9 * * 1-5"}},
	}
	for _, tt := range tests {
		got, err := Parse(tt.raw)
		if err != nil {
			t.Errorf("Parse(%q): %v", tt.raw, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Parse(%q) = %+v, want %+v", tt.raw, got, tt.want)
		}
	}

	for _, raw := range []string{"every tuesday", `{"kind":"cron","cron_expr":"bad"}`, "-5m"} {
		if _, err := Parse(raw); err == nil {
			t.Errorf("Parse(%q): expected error", raw)
		}
	}
}
