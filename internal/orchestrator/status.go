package orchestrator

import (
	"context"
	"time"

	"github.com/mtzanidakis/studioflow/internal/agent"
)

type agentStats struct {
	invocations int64
	failures    int64
	totalMs     int64
	lastRun     time.Time
	lastError   string
}

// AgentStats is the in-process invocation summary of one agent.
type AgentStats struct {
	Invocations   int64     `json:"invocations"`
	Failures      int64     `json:"failures"`
	AvgDurationMs int64     `json:"avg_duration_ms"`
	LastRun       time.Time `json:"last_run,omitzero"`
	LastError     string    `json:"last_error,omitempty"`
}

type AgentStatus struct {
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Health      agent.Health `json:"health"`
	Stats       AgentStats   `json:"stats"`
}

type StorageStatus struct {
	Tier    string `json:"tier"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

type SystemStatus struct {
	Status             string        `json:"status"`
	ProviderConfigured bool          `json:"provider_configured"`
	Storage            StorageStatus `json:"storage"`
	Agents             []AgentStatus `json:"agents"`
	Timestamp          time.Time     `json:"timestamp"`
}

type SystemMetrics struct {
	Agents             int       `json:"agents_count"`
	ActiveAgents       int       `json:"active_agents"`
	Invocations        int64     `json:"invocations"`
	Failures           int64     `json:"failures"`
	SuccessRate        float64   `json:"success_rate"`
	AvgDurationMs      int64     `json:"avg_duration_ms"`
	StorageTier        string    `json:"storage_tier"`
	ProviderConfigured bool      `json:"provider_configured"`
	UptimeSeconds      int64     `json:"uptime_seconds"`
	Timestamp          time.Time `json:"timestamp"`
}

func (o *Orchestrator) track(resp Response) {
	if _, known := o.registry.Get(resp.Agent); !known {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.stats[resp.Agent]
	if !ok {
		st = &agentStats{}
		o.stats[resp.Agent] = st
	}
	st.invocations++
	st.totalMs += resp.DurationMs
	st.lastRun = resp.Timestamp
	if resp.Status != StatusSuccess {
		st.failures++
		st.lastError = resp.ErrorMessage
	}
}

func (o *Orchestrator) statsFor(name string) AgentStats {
	o.mu.Lock()
	defer o.mu.Unlock()

	st, ok := o.stats[name]
	if !ok {
		return AgentStats{}
	}
	out := AgentStats{
		Invocations: st.invocations,
		Failures:    st.failures,
		LastRun:     st.lastRun,
		LastError:   st.lastError,
	}
	if st.invocations > 0 {
		out.AvgDurationMs = st.totalMs / st.invocations
	}
	return out
}

// Agents describes every registered agent, sorted by name.
func (o *Orchestrator) Agents() []agent.Capabilities {
	list := o.registry.List()
	out := make([]agent.Capabilities, 0, len(list))
	for _, a := range list {
		out = append(out, a.Capabilities())
	}
	return out
}

// ProviderConfigured reports whether AI operations are enabled.
func (o *Orchestrator) ProviderConfigured() bool {
	return o.provider != nil && o.provider.Configured()
}

// Status reports per-agent health and storage reachability. The system
// is degraded when the provider is missing or storage does not answer.
func (o *Orchestrator) Status(ctx context.Context) SystemStatus {
	st := SystemStatus{
		Status:             "healthy",
		ProviderConfigured: o.ProviderConfigured(),
		Timestamp:          o.now(),
	}
	if o.gateway != nil {
		st.Storage.Tier = o.gateway.Tier()
		if err := o.gateway.Ping(ctx); err != nil {
			st.Storage.Error = err.Error()
		} else {
			st.Storage.Healthy = true
		}
	}
	for _, a := range o.registry.List() {
		caps := a.Capabilities()
		st.Agents = append(st.Agents, AgentStatus{
			Name:        a.Name(),
			Description: caps.Description,
			Health:      a.Health(),
			Stats:       o.statsFor(a.Name()),
		})
	}
	if !st.ProviderConfigured || !st.Storage.Healthy {
		st.Status = "degraded"
	}
	return st
}

func (o *Orchestrator) SystemMetrics() SystemMetrics {
	now := o.now()
	m := SystemMetrics{
		Agents:             o.registry.Len(),
		ProviderConfigured: o.ProviderConfigured(),
		UptimeSeconds:      int64(now.Sub(o.started).Seconds()),
		Timestamp:          now,
	}
	if o.gateway != nil {
		m.StorageTier = o.gateway.Tier()
	}
	for _, a := range o.registry.List() {
		if a.Health().Healthy {
			m.ActiveAgents++
		}
	}

	o.mu.Lock()
	var totalMs int64
	for _, st := range o.stats {
		m.Invocations += st.invocations
		m.Failures += st.failures
		totalMs += st.totalMs
	}
	o.mu.Unlock()

	if m.Invocations > 0 {
		m.SuccessRate = float64(m.Invocations-m.Failures) / float64(m.Invocations)
		m.AvgDurationMs = totalMs / m.Invocations
	}
	return m
}
