// Package router turns a free-form chat message into an agent invocation.
package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/mtzanidakis/studioflow/internal/agent"
	"github.com/mtzanidakis/studioflow/internal/config"
	"github.com/mtzanidakis/studioflow/internal/registry"
)

type Router struct {
	registry *registry.Registry
	provider agent.Provider

	mu           sync.RWMutex
	defaultAgent string
	smart        bool
}

// New builds a router. provider is used for smart routing and may be nil.
func New(reg *registry.Registry, provider agent.Provider, cfg config.RouterConfig) *Router {
	return &Router{
		registry:     reg,
		provider:     provider,
		defaultAgent: cfg.DefaultAgent,
		smart:        cfg.SmartRouting,
	}
}

// Route picks the agent for message and builds its payload. An explicit
// "@agent" or "/agent" prefix wins; otherwise the provider is asked when
// smart routing is on, and the default agent takes the rest. A message
// body that is a JSON object is used as the payload verbatim.
func (r *Router) Route(ctx context.Context, message string) (string, agent.Payload, error) {
	message = strings.TrimSpace(message)
	name, text := r.explicit(message)

	if name == "" {
		name = r.smartRoute(ctx, message)
	}
	if name == "" {
		name = r.DefaultAgent()
		if name == "" {
			return "", nil, fmt.Errorf("no default agent configured")
		}
	}

	if payload, ok := jsonPayload(text); ok {
		return name, payload, nil
	}
	payload, ok := r.registry.PayloadFromText(name, text)
	if !ok {
		return "", nil, fmt.Errorf("agent not registered: %s", name)
	}
	return name, payload, nil
}

// explicit strips a known "@name" or "/name" prefix. Telegram appends
// "@botname" to commands, which is dropped too.
func (r *Router) explicit(message string) (string, string) {
	if !strings.HasPrefix(message, "@") && !strings.HasPrefix(message, "/") {
		return "", message
	}
	head, rest, _ := strings.Cut(message, " ")
	if i := strings.IndexAny(head, "\n"); i > 0 {
		head, rest = head[:i], strings.TrimSpace(message[i:])
	}
	name := head[1:]
	if before, _, found := strings.Cut(name, "@"); found {
		name = before
	}
	if _, ok := r.registry.Get(name); ok {
		return name, strings.TrimSpace(rest)
	}
	// Unknown agent name in prefix: fall through with the message intact.
	return "", message
}

func (r *Router) smartRoute(ctx context.Context, message string) string {
	r.mu.RLock()
	smart := r.smart
	r.mu.RUnlock()
	if !smart || r.provider == nil || !r.provider.Configured() || r.registry.Len() < 2 {
		return ""
	}

	reply, err := r.provider.Call(ctx, buildRoutingPrompt(r.registry.AgentDescriptions(), message), "")
	if err != nil {
		slog.Debug("route query failed, using default agent", "error", err)
		return ""
	}
	routed := strings.Trim(strings.TrimSpace(reply), "`\"'@/.")
	if _, ok := r.registry.Get(routed); ok {
		return routed
	}
	slog.Debug("route query returned unknown agent, using default", "agent", routed)
	return ""
}

func (r *Router) DefaultAgent() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultAgent
}

// Update applies a reloaded router config.
func (r *Router) Update(cfg config.RouterConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultAgent = cfg.DefaultAgent
	r.smart = cfg.SmartRouting
}

func jsonPayload(text string) (agent.Payload, bool) {
	if !strings.HasPrefix(text, "{") {
		return nil, false
	}
	var p agent.Payload
	if err := json.Unmarshal([]byte(text), &p); err != nil || p == nil {
		return nil, false
	}
	return p, true
}

func buildRoutingPrompt(descs map[string]string, message string) string {
	names := make([]string, 0, len(descs))
	for name := range descs {
		names = append(names, name)
	}
	slices.Sort(names)

	var sb strings.Builder
	sb.WriteString("You are a message router for a creative agency. Given the user's message, determine which agent should handle it.\n\n")
	sb.WriteString("Available agents:\n")
	for _, name := range names {
		fmt.Fprintf(&sb, "- %s: %s\n", name, descs[name])
	}
	sb.WriteString("\nUser message: ")
	sb.WriteString(message)
	sb.WriteString("\n\nRespond with ONLY the agent name, nothing else.")
	return sb.String()
}
