package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	AI           AIConfig           `yaml:"ai"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Store        StoreConfig        `yaml:"store"`
	Memory       MemoryConfig       `yaml:"memory"`
	NATS         NATSConfig         `yaml:"nats"`
	Web          WebConfig          `yaml:"web"`
	Telegram     TelegramConfig     `yaml:"telegram"`
	Slack        SlackConfig        `yaml:"slack"`
	Router       RouterConfig       `yaml:"router"`
	Scheduler    SchedulerConfig    `yaml:"scheduler"`
	Schedules    []ScheduleConfig   `yaml:"schedules"`
	Log          LogConfig          `yaml:"log"`
}

type AIConfig struct {
	APIKey         string        `yaml:"api_key"`
	Model          string        `yaml:"model"`
	FallbackModel  string        `yaml:"fallback_model"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Temperature    float32       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
}

type OrchestratorConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// NotifySuccess also notifies on successful runs of agents flagged for it.
	NotifySuccess bool `yaml:"notify_success"`
}

type StoreConfig struct {
	PostgresDSN    string        `yaml:"postgres_dsn"`
	SQLitePath     string        `yaml:"sqlite_path"`
	MemoryFallback bool          `yaml:"memory_fallback"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	MaxConns       int32         `yaml:"max_conns"`
	EncryptionKey  string        `yaml:"encryption_key"`
}

type MemoryConfig struct {
	MaxCost int64         `yaml:"max_cost"`
	TTL     time.Duration `yaml:"ttl"`
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	URL     string `yaml:"url"`
}

type WebConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Auth    string `yaml:"auth"`
}

type TelegramConfig struct {
	Token        string  `yaml:"token"`
	AllowFrom    []int64 `yaml:"allow_from"`
	NotifyChatID int64   `yaml:"notify_chat_id"`
}

type SlackConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

type RouterConfig struct {
	DefaultAgent string `yaml:"default_agent"`
	// SmartRouting asks the provider to pick an agent for unprefixed messages.
	SmartRouting bool `yaml:"smart_routing"`
}

type SchedulerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ScheduleConfig is a recurring agent invocation. Kind is one of
// cron, interval or once.
type ScheduleConfig struct {
	Name     string         `yaml:"name"`
	Agent    string         `yaml:"agent"`
	Schedule ScheduleSpec   `yaml:"schedule"`
	Payload  map[string]any `yaml:"payload"`
}

type ScheduleSpec struct {
	Kind       string `yaml:"kind" json:"kind"`
	CronExpr   string `yaml:"cron_expr,omitempty" json:"cron_expr,omitempty"`
	IntervalMs int64  `yaml:"interval_ms,omitempty" json:"interval_ms,omitempty"`
	AtMs       int64  `yaml:"at_ms,omitempty" json:"at_ms,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func defaults() Config {
	return Config{
		AI: AIConfig{
			Model:          "gemini-2.5-flash",
			FallbackModel:  "gemini-2.5-pro",
			MaxRetries:     3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     8 * time.Second,
			Temperature:    0.3,
			MaxTokens:      4000,
		},
		Orchestrator: OrchestratorConfig{
			Timeout: 60 * time.Second,
		},
		Store: StoreConfig{
			SQLitePath:     "data/studioflow.db",
			MemoryFallback: true,
			ConnectTimeout: 5 * time.Second,
			MaxConns:       10,
		},
		Memory: MemoryConfig{
			MaxCost: 1 << 20,
			TTL:     24 * time.Hour,
		},
		NATS: NATSConfig{
			Enabled: true,
			Port:    4222,
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Router: RouterConfig{
			DefaultAgent: "client_portal_assistant",
		},
		Scheduler: SchedulerConfig{
			PollInterval: 30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Path returns the config file location.
func Path() string {
	if p := os.Getenv("STUDIOFLOW_CONFIG"); p != "" {
		return p
	}
	return "config/studioflow.yaml"
}

func Load() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("could not load .env file", "error", err)
	}
	return LoadFile(Path())
}

// LoadFile reads the YAML file at path on top of the defaults and applies
// environment overrides. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)

	return &cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("AI_MODEL"); v != "" {
		cfg.AI.Model = v
	}
	if v := os.Getenv("AI_FALLBACK_MODEL"); v != "" {
		cfg.AI.FallbackModel = v
	}
	if v := os.Getenv("AI_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AI.MaxRetries = n
		}
	}
	if v := os.Getenv("AI_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AI.MaxTokens = n
		}
	}
	if v := os.Getenv("AI_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.AI.Temperature = float32(f)
		}
	}
	if v := os.Getenv("AI_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.Orchestrator.Timeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Store.PostgresDSN = v
	}
	if v := os.Getenv("STUDIOFLOW_SQLITE_PATH"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := os.Getenv("STUDIOFLOW_ENCRYPTION_KEY"); v != "" {
		cfg.Store.EncryptionKey = v
	}
	if v := os.Getenv("STUDIOFLOW_NATS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.NATS.Port = port
		}
	}
	if v := os.Getenv("STUDIOFLOW_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("STUDIOFLOW_WEB_PASSWORD"); v != "" {
		cfg.Web.Auth = v
	}
	if v := os.Getenv("STUDIOFLOW_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("STUDIOFLOW_TELEGRAM_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("STUDIOFLOW_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Telegram.NotifyChatID = id
		}
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Slack.WebhookURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if os.Getenv("DEBUG") == "true" {
		cfg.Log.Level = "debug"
	}
}

// NATSURL is the address clients use to reach the bus.
func (c *Config) NATSURL() string {
	if c.NATS.URL != "" {
		return c.NATS.URL
	}
	return fmt.Sprintf("nats://127.0.0.1:%d", c.NATS.Port)
}
