package store

import (
	"time"
)

// Meta holds the fields every entity shares. The gateway fills them on Save.
type Meta struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *Meta) EntityID() string { return m.ID }

func (m *Meta) meta() *Meta { return m }

// Entity is one of *Project, *Task, *Communication or *Metric.
type Entity interface {
	Kind() Kind
	EntityID() string
	// OwnerID is the owning project id; empty for projects.
	OwnerID() string

	meta() *Meta
	index() (status, name string)
}

type Project struct {
	Meta
	Name        string         `json:"name"`
	ClientName  string         `json:"client_name,omitempty"`
	Description string         `json:"description,omitempty"`
	Status      string         `json:"status"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (p *Project) Kind() Kind                   { return KindProject }
func (p *Project) OwnerID() string              { return "" }
func (p *Project) index() (status, name string) { return p.Status, p.Name }

type Task struct {
	Meta
	ProjectID   string         `json:"project_id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Assignee    string         `json:"assignee,omitempty"`
	Status      string         `json:"status"`
	Priority    string         `json:"priority,omitempty"`
	DueDate     string         `json:"due_date,omitempty"`
	Hours       float64        `json:"estimated_hours,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

func (t *Task) Kind() Kind                   { return KindTask }
func (t *Task) OwnerID() string              { return t.ProjectID }
func (t *Task) index() (status, name string) { return t.Status, t.Title }

type Communication struct {
	Meta
	ProjectID      string         `json:"project_id"`
	ClientID       string         `json:"client_id,omitempty"`
	Message        string         `json:"message"`
	Channel        string         `json:"channel"`
	SentimentScore *float64       `json:"sentiment_score,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (c *Communication) Kind() Kind                   { return KindCommunication }
func (c *Communication) OwnerID() string              { return c.ProjectID }
func (c *Communication) index() (status, name string) { return c.Channel, c.ClientID }

type Metric struct {
	Meta
	ProjectID string         `json:"project_id"`
	Name      string         `json:"name"`
	Value     float64        `json:"value"`
	Unit      string         `json:"unit,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func (m *Metric) Kind() Kind                   { return KindMetric }
func (m *Metric) OwnerID() string              { return m.ProjectID }
func (m *Metric) index() (status, name string) { return "", m.Name }

// NewEntity returns an empty entity of kind, or nil for an unknown kind.
func NewEntity(kind Kind) Entity {
	switch kind {
	case KindProject:
		return &Project{}
	case KindTask:
		return &Task{}
	case KindCommunication:
		return &Communication{}
	case KindMetric:
		return &Metric{}
	}
	return nil
}
