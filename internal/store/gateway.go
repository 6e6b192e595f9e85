package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mtzanidakis/studioflow/internal/apperr"
	"github.com/mtzanidakis/studioflow/internal/vault"
)

type GatewayOption func(*Gateway)

// WithVault encrypts communication messages at rest.
func WithVault(v *vault.Vault) GatewayOption {
	return func(g *Gateway) { g.vault = v }
}

func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) { g.now = now }
}

type Gateway struct {
	backend Backend
	vault   *vault.Vault
	now     func() time.Time
}

func NewGateway(b Backend, opts ...GatewayOption) *Gateway {
	g := &Gateway{backend: b, now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Tier names the active backend.
func (g *Gateway) Tier() string { return g.backend.Name() }

func (g *Gateway) Ping(ctx context.Context) error { return g.backend.Ping(ctx) }

func (g *Gateway) Close() error { return g.backend.Close() }

// Save validates e, assigns an id when it has none, stamps it and writes
// it. An existing id is overwritten (last write wins).
func (g *Gateway) Save(ctx context.Context, e Entity) (string, error) {
	if err := validate(e); err != nil {
		return "", err
	}

	m := e.meta()
	now := g.now().UTC()
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	rec, err := g.toRecord(e)
	if err != nil {
		return "", err
	}
	if err := g.backend.Put(ctx, rec); err != nil {
		return "", unavailable(err, "save "+string(e.Kind()))
	}
	return m.ID, nil
}

// Get returns nil, nil when the entity does not exist.
func (g *Gateway) Get(ctx context.Context, kind Kind, id string) (Entity, error) {
	if kind.table() == "" {
		return nil, apperr.Validation("unknown entity kind %q", kind)
	}
	rec, err := g.backend.Fetch(ctx, kind, id)
	if err != nil {
		return nil, unavailable(err, "get "+string(kind))
	}
	if rec == nil {
		return nil, nil
	}
	return g.fromRecord(*rec)
}

func (g *Gateway) Query(ctx context.Context, kind Kind, f Filter) ([]Entity, error) {
	if kind.table() == "" {
		return nil, apperr.Validation("unknown entity kind %q", kind)
	}
	recs, err := g.backend.Find(ctx, kind, f)
	if err != nil {
		return nil, unavailable(err, "query "+string(kind))
	}
	out := make([]Entity, 0, len(recs))
	for _, rec := range recs {
		e, err := g.fromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func (g *Gateway) RecordExecution(ctx context.Context, e Execution) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = g.now().UTC()
	}
	if err := g.backend.SaveExecution(ctx, e); err != nil {
		return unavailable(err, "record execution")
	}
	return nil
}

func (g *Gateway) Executions(ctx context.Context, agent string, limit int) ([]Execution, error) {
	list, err := g.backend.RecentExecutions(ctx, agent, limit)
	if err != nil {
		return nil, unavailable(err, "list executions")
	}
	return list, nil
}

func (g *Gateway) Project(ctx context.Context, id string) (*Project, error) {
	return getTyped[*Project](ctx, g, KindProject, id)
}

func (g *Gateway) Task(ctx context.Context, id string) (*Task, error) {
	return getTyped[*Task](ctx, g, KindTask, id)
}

func (g *Gateway) Projects(ctx context.Context, f Filter) ([]*Project, error) {
	return queryTyped[*Project](ctx, g, KindProject, f)
}

func (g *Gateway) Tasks(ctx context.Context, f Filter) ([]*Task, error) {
	return queryTyped[*Task](ctx, g, KindTask, f)
}

func (g *Gateway) Communications(ctx context.Context, f Filter) ([]*Communication, error) {
	return queryTyped[*Communication](ctx, g, KindCommunication, f)
}

func (g *Gateway) Metrics(ctx context.Context, f Filter) ([]*Metric, error) {
	return queryTyped[*Metric](ctx, g, KindMetric, f)
}

func getTyped[T Entity](ctx context.Context, g *Gateway, kind Kind, id string) (T, error) {
	var zero T
	e, err := g.Get(ctx, kind, id)
	if err != nil || e == nil {
		return zero, err
	}
	return e.(T), nil
}

func queryTyped[T Entity](ctx context.Context, g *Gateway, kind Kind, f Filter) ([]T, error) {
	list, err := g.Query(ctx, kind, f)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(list))
	for _, e := range list {
		out = append(out, e.(T))
	}
	return out, nil
}

func validate(e Entity) error {
	if e == nil {
		return apperr.Validation("entity is nil")
	}
	switch v := e.(type) {
	case *Project:
		if strings.TrimSpace(v.Name) == "" {
			return apperr.Validation("project name is required")
		}
	case *Task:
		if strings.TrimSpace(v.Title) == "" {
			return apperr.Validation("task title is required")
		}
	case *Communication:
		if strings.TrimSpace(v.Message) == "" {
			return apperr.Validation("communication message is required")
		}
	case *Metric:
		if strings.TrimSpace(v.Name) == "" {
			return apperr.Validation("metric name is required")
		}
	}
	if e.Kind() != KindProject && strings.TrimSpace(e.OwnerID()) == "" {
		return apperr.Validation("%s requires an owning project id", e.Kind())
	}
	return nil
}

func (g *Gateway) toRecord(e Entity) (Record, error) {
	payload := any(e)
	if c, ok := e.(*Communication); ok && g.vault != nil {
		sealed, err := g.vault.Seal(c.Message)
		if err != nil {
			return Record{}, fmt.Errorf("seal message: %w", err)
		}
		cp := *c
		cp.Message = sealed
		payload = &cp
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return Record{}, fmt.Errorf("marshal %s: %w", e.Kind(), err)
	}
	status, name := e.index()
	m := e.meta()
	return Record{
		ID:        m.ID,
		Kind:      e.Kind(),
		ProjectID: e.OwnerID(),
		Status:    status,
		Name:      name,
		Data:      data,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}, nil
}

func (g *Gateway) fromRecord(rec Record) (Entity, error) {
	e := NewEntity(rec.Kind)
	if e == nil {
		return nil, fmt.Errorf("unknown record kind %q", rec.Kind)
	}
	if err := json.Unmarshal(rec.Data, e); err != nil {
		return nil, fmt.Errorf("unmarshal %s %s: %w", rec.Kind, rec.ID, err)
	}
	m := e.meta()
	m.ID = rec.ID
	m.CreatedAt = rec.CreatedAt
	m.UpdatedAt = rec.UpdatedAt

	if c, ok := e.(*Communication); ok && g.vault != nil {
		plain, err := g.vault.Open(c.Message)
		if err != nil {
			return nil, fmt.Errorf("open message %s: %w", rec.ID, err)
		}
		c.Message = plain
	}
	return e, nil
}

func unavailable(err error, op string) error {
	return apperr.Wrap(apperr.KindStorageUnavailable, err, op)
}
