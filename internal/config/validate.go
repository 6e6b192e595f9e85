package config

import (
	"fmt"
	"strings"

	"github.com/adhocore/gronx"
)

// Validation is the startup report: hard errors, soft warnings and the
// optional integrations that are switched on.
type Validation struct {
	Valid        bool     `json:"valid"`
	Errors       []string `json:"errors"`
	Warnings     []string `json:"warnings"`
	Integrations []string `json:"integrations"`
}

// AIEnabled reports whether a provider key is configured.
func (c *Config) AIEnabled() bool {
	return strings.TrimSpace(c.AI.APIKey) != ""
}

// Integrations lists the optional integrations enabled by the current settings.
func (c *Config) Integrations() []string {
	var out []string
	if c.AIEnabled() {
		out = append(out, "gemini")
	}
	if c.Store.PostgresDSN != "" {
		out = append(out, "postgres")
	}
	if c.Slack.WebhookURL != "" {
		out = append(out, "slack")
	}
	if c.Telegram.Token != "" {
		out = append(out, "telegram")
	}
	if c.NATS.Enabled {
		out = append(out, "nats")
	}
	if c.Web.Enabled {
		out = append(out, "web")
	}
	return out
}

func (c *Config) Validate() Validation {
	v := Validation{Errors: []string{}, Warnings: []string{}}

	if !c.AIEnabled() {
		v.Warnings = append(v.Warnings, "GEMINI_API_KEY is not set: AI operations are disabled")
	}
	if c.AI.Model == "" {
		v.Errors = append(v.Errors, "ai.model must not be empty")
	}
	if c.AI.MaxRetries < 0 {
		v.Errors = append(v.Errors, "ai.max_retries must be >= 0")
	}
	if c.AI.Temperature < 0 || c.AI.Temperature > 2 {
		v.Errors = append(v.Errors, "ai.temperature must be between 0 and 2")
	}
	if c.AI.MaxTokens <= 0 {
		v.Errors = append(v.Errors, "ai.max_tokens must be positive")
	}
	if c.AI.InitialBackoff > c.AI.MaxBackoff {
		v.Warnings = append(v.Warnings, "ai.initial_backoff exceeds ai.max_backoff")
	}
	if c.Orchestrator.Timeout <= 0 {
		v.Errors = append(v.Errors, "orchestrator.timeout must be positive")
	}

	if c.Store.PostgresDSN == "" && c.Store.SQLitePath == "" && !c.Store.MemoryFallback {
		v.Errors = append(v.Errors, "no storage tier configured: set DATABASE_URL, store.sqlite_path or store.memory_fallback")
	}
	if c.Store.PostgresDSN == "" {
		v.Warnings = append(v.Warnings, "DATABASE_URL is not set: using local storage")
	}

	if c.Telegram.Token != "" && len(c.Telegram.AllowFrom) == 0 {
		v.Warnings = append(v.Warnings, "telegram.allow_from is empty: the bot answers everyone")
	}
	if c.Web.Enabled && c.Web.Auth == "" {
		v.Warnings = append(v.Warnings, "web.auth is empty: the API is unauthenticated")
	}

	seen := make(map[string]bool)
	for i, s := range c.Schedules {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
			v.Errors = append(v.Errors, fmt.Sprintf("schedule %s: name is required", label))
		} else if seen[s.Name] {
			v.Errors = append(v.Errors, fmt.Sprintf("schedule %s: duplicate name", label))
		}
		seen[s.Name] = true
		if s.Agent == "" {
			v.Errors = append(v.Errors, fmt.Sprintf("schedule %s: agent is required", label))
		}
		if err := s.Schedule.check(); err != nil {
			v.Errors = append(v.Errors, fmt.Sprintf("schedule %s: %v", label, err))
		}
	}

	v.Integrations = c.Integrations()
	v.Valid = len(v.Errors) == 0
	return v
}

func (s ScheduleSpec) check() error {
	switch s.Kind {
	case "cron":
		if !gronx.New().IsValid(s.CronExpr) {
			return fmt.Errorf("invalid cron expression %q", s.CronExpr)
		}
	case "interval":
		if s.IntervalMs <= 0 {
			return fmt.Errorf("interval_ms must be positive")
		}
	case "once":
		if s.AtMs <= 0 {
			return fmt.Errorf("at_ms must be set")
		}
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}
	return nil
}
