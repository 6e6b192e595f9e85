// Package agent implements the twelve studioflow agents. Each agent
// validates its payload, renders a prompt template, asks the provider for a
// JSON reply and returns the parsed result. Agents never persist anything.
package agent

import (
	"context"
)

// Payload is the caller-supplied input of an agent. Keys starting with an
// underscore carry orchestrator metadata and are never validated.
type Payload map[string]any

// Result is the structured reply of an agent.
type Result map[string]any

type Agent interface {
	Name() string
	Process(ctx context.Context, payload Payload) (Result, error)
	Capabilities() Capabilities
	Health() Health
}

// Provider is the model client the agents call.
type Provider interface {
	Call(ctx context.Context, prompt, modelHint string) (string, error)
	Configured() bool
}

type Capabilities struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Fields      []Field  `json:"required_fields"`
	TextField   string   `json:"text_field"`
	ReplyKeys   []string `json:"reply_keys"`
	Notify      bool     `json:"notify"`
}

type Health struct {
	Healthy            bool   `json:"healthy"`
	ProviderConfigured bool   `json:"provider_configured"`
	Message            string `json:"message,omitempty"`
}

func (p Payload) String(key string) string          { return asString(p[key]) }
func (p Payload) List(key string) []any             { return asList(p[key]) }
func (p Payload) Object(key string) map[string]any  { return asObject(p[key]) }
func (r Result) String(key string) string           { return asString(r[key]) }
func (r Result) List(key string) []any              { return asList(r[key]) }
func (r Result) Object(key string) map[string]any   { return asObject(r[key]) }
func (r Result) Number(key string) (float64, bool)  { return AsNumber(r[key]) }
func (p Payload) Number(key string) (float64, bool) { return AsNumber(p[key]) }

// Clone returns a shallow copy of p.
func (p Payload) Clone() Payload {
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
