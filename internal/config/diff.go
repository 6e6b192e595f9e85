package config

import "reflect"

// ConfigDiff describes what changed between two configs.
type ConfigDiff struct {
	SchedulesAdded   []string
	SchedulesRemoved []string
	SchedulesChanged []string

	SchedulerChanged bool
	NewPollInterval  SchedulerConfig

	LogChanged bool
	NewLog     LogConfig

	RouterChanged bool
	NewRouter     RouterConfig

	// Non-reloadable fields that changed (log warnings only)
	NonReloadable []string
}

// HasChanges reports whether any reloadable field changed.
func (d *ConfigDiff) HasChanges() bool {
	return len(d.SchedulesAdded) > 0 ||
		len(d.SchedulesRemoved) > 0 ||
		len(d.SchedulesChanged) > 0 ||
		d.SchedulerChanged ||
		d.LogChanged ||
		d.RouterChanged
}

// Diff compares two configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	var d ConfigDiff

	oldSchedules := scheduleIndex(old.Schedules)
	newSchedules := scheduleIndex(new.Schedules)
	for _, s := range new.Schedules {
		prev, ok := oldSchedules[s.Name]
		if !ok {
			d.SchedulesAdded = append(d.SchedulesAdded, s.Name)
		} else if !reflect.DeepEqual(prev, s) {
			d.SchedulesChanged = append(d.SchedulesChanged, s.Name)
		}
	}
	for _, s := range old.Schedules {
		if _, ok := newSchedules[s.Name]; !ok {
			d.SchedulesRemoved = append(d.SchedulesRemoved, s.Name)
		}
	}

	if old.Scheduler.PollInterval != new.Scheduler.PollInterval {
		d.SchedulerChanged = true
		d.NewPollInterval = new.Scheduler
	}

	if old.Log != new.Log {
		d.LogChanged = true
		d.NewLog = new.Log
	}

	if old.Router != new.Router {
		d.RouterChanged = true
		d.NewRouter = new.Router
	}

	// Non-reloadable warnings
	if !reflect.DeepEqual(old.AI, new.AI) {
		d.NonReloadable = append(d.NonReloadable, "ai")
	}
	if old.Store != new.Store {
		d.NonReloadable = append(d.NonReloadable, "store")
	}
	if old.Orchestrator != new.Orchestrator {
		d.NonReloadable = append(d.NonReloadable, "orchestrator")
	}
	if old.Telegram.Token != new.Telegram.Token {
		d.NonReloadable = append(d.NonReloadable, "telegram.token")
	}
	if old.Slack != new.Slack {
		d.NonReloadable = append(d.NonReloadable, "slack")
	}
	if old.Web.Port != new.Web.Port {
		d.NonReloadable = append(d.NonReloadable, "web.port")
	}
	if old.NATS != new.NATS {
		d.NonReloadable = append(d.NonReloadable, "nats")
	}

	return d
}

func scheduleIndex(list []ScheduleConfig) map[string]ScheduleConfig {
	m := make(map[string]ScheduleConfig, len(list))
	for _, s := range list {
		m[s.Name] = s
	}
	return m
}
