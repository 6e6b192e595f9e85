package registry

import (
	"fmt"
	"slices"

	"github.com/mtzanidakis/studioflow/internal/agent"
)

// Registry maps agent names to agents. It is fixed after construction and
// safe for concurrent reads.
type Registry struct {
	agents map[string]agent.Agent
	names  []string
}

func New(agents ...agent.Agent) (*Registry, error) {
	r := &Registry{agents: make(map[string]agent.Agent, len(agents))}
	for _, a := range agents {
		name := a.Name()
		if _, dup := r.agents[name]; dup {
			return nil, fmt.Errorf("duplicate agent %q", name)
		}
		r.agents[name] = a
		r.names = append(r.names, name)
	}
	slices.Sort(r.names)
	return r, nil
}

func (r *Registry) Get(name string) (agent.Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// List returns the agents sorted by name.
func (r *Registry) List() []agent.Agent {
	out := make([]agent.Agent, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.agents[name])
	}
	return out
}

func (r *Registry) Names() []string {
	return slices.Clone(r.names)
}

func (r *Registry) Len() int { return len(r.names) }

func (r *Registry) AgentDescriptions() map[string]string {
	descs := make(map[string]string, len(r.agents))
	for name, a := range r.agents {
		descs[name] = a.Capabilities().Description
	}
	return descs
}

// PayloadFromText wraps free text as the payload of the named agent,
// shaped for its text field: a string, a one-element list or an object
// with a description.
func (r *Registry) PayloadFromText(name, text string) (agent.Payload, bool) {
	a, ok := r.agents[name]
	if !ok {
		return nil, false
	}
	caps := a.Capabilities()
	shape := agent.ShapeString
	for _, f := range caps.Fields {
		if f.Name == caps.TextField {
			shape = f.Shape
		}
	}

	var v any = text
	switch shape {
	case agent.ShapeList:
		v = []any{text}
	case agent.ShapeObject:
		v = map[string]any{"description": text}
	}
	return agent.Payload{caps.TextField: v}, true
}
