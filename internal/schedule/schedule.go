// Package schedule computes run times for cron, interval and once
// schedules.
package schedule

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"

	"github.com/mtzanidakis/studioflow/internal/config"
)

// NextRun returns the first run strictly after now, or nil when the
// schedule will not run again.
func NextRun(s config.ScheduleSpec, now time.Time) *time.Time {
	var next time.Time

	switch s.Kind {
	case "cron":
		t, err := gronx.NextTickAfter(s.CronExpr, now, false)
		if err != nil {
			return nil
		}
		next = t
	case "interval":
		if s.IntervalMs <= 0 {
			return nil
		}
		next = now.Add(time.Duration(s.IntervalMs) * time.Millisecond)
	case "once":
		t := time.UnixMilli(s.AtMs)
		if !t.After(now) {
			return nil
		}
		next = t
	default:
		return nil
	}

	return &next
}

// Describe returns a human-readable description of s.
func Describe(s config.ScheduleSpec) string {
	switch s.Kind {
	case "cron":
		return s.CronExpr
	case "interval":
		d := time.Duration(s.IntervalMs) * time.Millisecond
		switch {
		case d%time.Hour == 0 && d >= time.Hour:
			h := int(d.Hours())
			if h == 1 {
				return "Every hour"
			}
			return fmt.Sprintf("Every %d hours", h)
		case d%time.Minute == 0 && d >= time.Minute:
			m := int(d.Minutes())
			if m == 1 {
				return "Every minute"
			}
			return fmt.Sprintf("Every %d minutes", m)
		default:
			return fmt.Sprintf("Every %d seconds", int(d.Seconds()))
		}
	case "once":
		return "Once at " + time.UnixMilli(s.AtMs).UTC().Format("Jan 2 15:04")
	default:
		return s.Kind
	}
}

// Parse reads a schedule given on the command line: a JSON spec, a Go
// duration ("15m", run on an interval), an RFC 3339 time (run once) or a
// plain cron expression.
func Parse(raw string) (config.ScheduleSpec, error) {
	raw = strings.TrimSpace(raw)

	var s config.ScheduleSpec
	if err := json.Unmarshal([]byte(raw), &s); err == nil && s.Kind != "" {
		return s, validate(s)
	}
	if d, err := time.ParseDuration(raw); err == nil {
		s = config.ScheduleSpec{Kind: "interval", IntervalMs: d.Milliseconds()}
		return s, validate(s)
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return config.ScheduleSpec{Kind: "once", AtMs: t.UnixMilli()}, nil
	}
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil && ms > 0 {
		return config.ScheduleSpec{Kind: "interval", IntervalMs: ms}, nil
	}
	if !gronx.New().IsValid(raw) {
		return config.ScheduleSpec{}, fmt.Errorf("invalid schedule: not JSON, a duration, a time or a cron expression: %s", raw)
	}
	return config.ScheduleSpec{Kind: "cron", CronExpr: raw}, nil
}

func validate(s config.ScheduleSpec) error {
	switch s.Kind {
	case "cron":
		if !gronx.New().IsValid(s.CronExpr) {
			return fmt.Errorf("invalid cron expression: %s", s.CronExpr)
		}
	case "interval":
		if s.IntervalMs <= 0 {
			return fmt.Errorf("interval_ms must be positive")
		}
	case "once":
		if s.AtMs <= 0 {
			return fmt.Errorf("at_ms must be positive")
		}
	default:
		return fmt.Errorf("unknown schedule kind: %s", s.Kind)
	}
	return nil
}
