// Package scheduler invokes agents on the schedules listed in the config.
// Schedule state lives in memory: a restart recomputes next runs, and a
// once-schedule whose time has passed is not replayed.
package scheduler

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/mtzanidakis/studioflow/internal/agent"
	"github.com/mtzanidakis/studioflow/internal/config"
	"github.com/mtzanidakis/studioflow/internal/natsbus"
	"github.com/mtzanidakis/studioflow/internal/orchestrator"
	"github.com/mtzanidakis/studioflow/internal/schedule"
)

// Invoker runs agents, normally an *orchestrator.Orchestrator.
type Invoker interface {
	Invoke(ctx context.Context, name string, payload agent.Payload) orchestrator.Response
}

// Publisher is the event sink, normally a *natsbus.Client.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

type entry struct {
	cfg        config.ScheduleConfig
	nextRun    *time.Time
	lastRun    time.Time
	lastStatus orchestrator.Status
	lastError  string
	runs       int
}

// Entry is the public state of one schedule.
type Entry struct {
	Name        string              `json:"name"`
	Agent       string              `json:"agent"`
	Schedule    config.ScheduleSpec `json:"schedule"`
	Description string              `json:"description"`
	NextRun     *time.Time          `json:"next_run,omitempty"`
	LastRun     time.Time           `json:"last_run,omitzero"`
	LastStatus  orchestrator.Status `json:"last_status,omitempty"`
	LastError   string              `json:"last_error,omitempty"`
	Runs        int                 `json:"runs"`
	Completed   bool                `json:"completed"`
}

type Option func(*Scheduler)

func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

func WithPublisher(p Publisher) Option {
	return func(s *Scheduler) { s.publisher = p }
}

type Scheduler struct {
	invoker   Invoker
	publisher Publisher
	now       func() time.Time

	mu           sync.Mutex
	pollInterval time.Duration
	entries      map[string]*entry
	reloadCh     chan struct{}
}

func New(schedules []config.ScheduleConfig, inv Invoker, cfg config.SchedulerConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		invoker:      inv,
		now:          time.Now,
		pollInterval: cfg.PollInterval,
		entries:      make(map[string]*entry),
		reloadCh:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.load(schedules)
	return s
}

// load replaces the schedule set. Unchanged schedules keep their state.
func (s *Scheduler) load(schedules []config.ScheduleConfig) {
	now := s.now()
	next := make(map[string]*entry, len(schedules))
	for _, sc := range schedules {
		if prev, ok := s.entries[sc.Name]; ok && prev.cfg.Schedule == sc.Schedule && prev.cfg.Agent == sc.Agent {
			prev.cfg = sc
			next[sc.Name] = prev
			continue
		}
		next[sc.Name] = &entry{cfg: sc, nextRun: schedule.NextRun(sc.Schedule, now)}
	}
	s.entries = next
}

// Update applies reloaded schedules and poll interval, then signals the
// run loop to reset its ticker.
func (s *Scheduler) Update(schedules []config.ScheduleConfig, cfg config.SchedulerConfig) {
	s.mu.Lock()
	s.load(schedules)
	s.pollInterval = cfg.PollInterval
	s.mu.Unlock()

	select {
	case s.reloadCh <- struct{}{}:
	default:
	}
}

func (s *Scheduler) interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pollInterval <= 0 {
		return 30 * time.Second
	}
	return s.pollInterval
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval())
	defer ticker.Stop()

	slog.Info("scheduler started", "poll_interval", s.interval(), "schedules", len(s.Entries()))

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped")
			return
		case <-s.reloadCh:
			ticker.Reset(s.interval())
			slog.Info("scheduler config reloaded", "poll_interval", s.interval())
		case <-ticker.C:
			s.RunDue(ctx)
		}
	}
}

// RunDue invokes every schedule whose next run has passed and returns how
// many ran.
func (s *Scheduler) RunDue(ctx context.Context) int {
	now := s.now()

	s.mu.Lock()
	var due []*entry
	for _, name := range slices.Sorted(maps.Keys(s.entries)) {
		e := s.entries[name]
		if e.nextRun != nil && !e.nextRun.After(now) {
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		s.execute(ctx, e)
	}
	return len(due)
}

func (s *Scheduler) execute(ctx context.Context, e *entry) {
	s.mu.Lock()
	cfg := e.cfg
	s.mu.Unlock()

	slog.Info("executing scheduled task", "name", cfg.Name, "agent", cfg.Agent)

	payload := agent.Payload{}
	for k, v := range cfg.Payload {
		payload[k] = v
	}
	payload["_schedule"] = cfg.Name

	resp := s.invoker.Invoke(ctx, cfg.Agent, payload)
	if resp.Status != orchestrator.StatusSuccess {
		slog.Error("scheduled task failed", "name", cfg.Name, "agent", cfg.Agent,
			"kind", resp.ErrorKind, "error", resp.ErrorMessage)
	}

	finished := s.now()
	s.mu.Lock()
	e.lastRun = finished
	e.lastStatus = resp.Status
	e.lastError = resp.ErrorMessage
	e.runs++
	e.nextRun = schedule.NextRun(cfg.Schedule, finished)
	s.mu.Unlock()

	if e.nextRun == nil {
		slog.Info("no next run, schedule completed", "name", cfg.Name)
	}

	if s.publisher != nil {
		_ = s.publisher.PublishJSON(natsbus.TopicEventsSchedule, map[string]any{
			"type":       "schedule_executed",
			"name":       cfg.Name,
			"agent":      cfg.Agent,
			"status":     resp.Status,
			"request_id": resp.RequestID,
			"timestamp":  finished.UTC().Format(time.RFC3339),
		})
	}
}

// Entries returns the schedules sorted by name.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(s.entries))
	for _, name := range slices.Sorted(maps.Keys(s.entries)) {
		e := s.entries[name]
		out = append(out, Entry{
			Name:        e.cfg.Name,
			Agent:       e.cfg.Agent,
			Schedule:    e.cfg.Schedule,
			Description: schedule.Describe(e.cfg.Schedule),
			NextRun:     e.nextRun,
			LastRun:     e.lastRun,
			LastStatus:  e.lastStatus,
			LastError:   e.lastError,
			Runs:        e.runs,
			Completed:   e.nextRun == nil,
		})
	}
	return out
}
