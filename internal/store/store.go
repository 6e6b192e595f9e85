// Package store persists workflow entities and the agent execution log.
// A Gateway validates entities and delegates to one Backend, chosen once at
// startup from PostgreSQL, SQLite and memory in that order.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mtzanidakis/studioflow/internal/apperr"
	"github.com/mtzanidakis/studioflow/internal/config"
	"github.com/mtzanidakis/studioflow/internal/vault"
)

type Kind string

const (
	KindProject       Kind = "project"
	KindTask          Kind = "task"
	KindCommunication Kind = "communication"
	KindMetric        Kind = "metric"
)

// Kinds lists every entity kind in dependency order (projects first).
var Kinds = []Kind{KindProject, KindTask, KindCommunication, KindMetric}

func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

func (k Kind) table() string {
	switch k {
	case KindProject:
		return "projects"
	case KindTask:
		return "tasks"
	case KindCommunication:
		return "communications"
	case KindMetric:
		return "metrics"
	}
	return ""
}

// Record is the storage shape shared by all entity kinds: indexed columns
// plus the full entity as JSON.
type Record struct {
	ID        string
	Kind      Kind
	ProjectID string
	Status    string
	Name      string
	Data      []byte
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Filter narrows a query. Empty fields match everything; Limit 0 means no
// limit. Status matches the channel of communications. Name matches the
// project name, task title, communication client id or metric name.
// CreatedAfter is inclusive and CreatedBefore exclusive.
type Filter struct {
	ProjectID     string
	Status        string
	Name          string
	CreatedAfter  time.Time
	CreatedBefore time.Time
	Limit         int
}

// Execution is one entry of the agent execution log.
type Execution struct {
	ID           string          `json:"id"`
	RequestID    string          `json:"request_id"`
	Agent        string          `json:"agent"`
	Success      bool            `json:"success"`
	ErrorKind    string          `json:"error_kind,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	DurationMs   int64           `json:"duration_ms"`
	Input        json.RawMessage `json:"input,omitempty"`
	Output       json.RawMessage `json:"output,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Backend interface {
	Name() string
	Put(ctx context.Context, rec Record) error
	// Fetch returns nil, nil when no record matches.
	Fetch(ctx context.Context, kind Kind, id string) (*Record, error)
	Find(ctx context.Context, kind Kind, f Filter) ([]Record, error)
	SaveExecution(ctx context.Context, e Execution) error
	// RecentExecutions returns the newest entries first; agent may be empty.
	RecentExecutions(ctx context.Context, agent string, limit int) ([]Execution, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open walks the degrade chain: postgres when a DSN is set, then sqlite
// when a path is set, then memory when allowed.
func Open(ctx context.Context, cfg config.StoreConfig) (*Gateway, error) {
	var failures []error

	if cfg.PostgresDSN != "" {
		pg, err := OpenPostgres(ctx, cfg)
		if err == nil {
			return newSelected(pg, cfg)
		}
		slog.Warn("postgres unavailable, falling back", "error", err)
		failures = append(failures, err)
	}

	if cfg.SQLitePath != "" {
		lite, err := OpenSQLite(cfg.SQLitePath)
		if err == nil {
			return newSelected(lite, cfg)
		}
		slog.Warn("sqlite unavailable, falling back", "path", cfg.SQLitePath, "error", err)
		failures = append(failures, err)
	}

	if cfg.MemoryFallback {
		slog.Warn("using in-memory storage, data will not survive a restart")
		return newSelected(NewMemory(), cfg)
	}

	cause := errors.Join(failures...)
	if cause == nil {
		cause = errors.New("no tier configured")
	}
	return nil, apperr.Wrap(apperr.KindStorageUnavailable, cause, "no storage tier available").
		WithRemedy("set DATABASE_URL or store.sqlite_path, or enable store.memory_fallback")
}

func newSelected(b Backend, cfg config.StoreConfig) (*Gateway, error) {
	var opts []GatewayOption
	if cfg.EncryptionKey != "" {
		v, err := vault.New(cfg.EncryptionKey)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("init vault: %w", err)
		}
		opts = append(opts, WithVault(v))
	}
	slog.Info("storage tier selected", "tier", b.Name(), "encrypted", cfg.EncryptionKey != "")
	return NewGateway(b, opts...), nil
}
