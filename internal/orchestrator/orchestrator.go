// Package orchestrator runs agents on behalf of every surface (CLI, HTTP,
// NATS, Telegram, schedules). It owns the safe-execution boundary: every
// failure, panics included, comes back as an error Response.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mtzanidakis/studioflow/internal/agent"
	"github.com/mtzanidakis/studioflow/internal/apperr"
	"github.com/mtzanidakis/studioflow/internal/natsbus"
	"github.com/mtzanidakis/studioflow/internal/notify"
	"github.com/mtzanidakis/studioflow/internal/registry"
	"github.com/mtzanidakis/studioflow/internal/store"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusPartial Status = "partial"
)

// Request is an agent invocation as it arrives over a transport.
type Request struct {
	Agent     string        `json:"agent"`
	Payload   agent.Payload `json:"payload"`
	RequestID string        `json:"request_id,omitempty"`
}

// Response is the outcome of one invocation. Status success always
// carries a non-nil Result.
type Response struct {
	RequestID    string         `json:"request_id"`
	Agent        string         `json:"agent"`
	Status       Status         `json:"status"`
	Result       agent.Result   `json:"result,omitempty"`
	ErrorKind    apperr.Kind    `json:"error_kind,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Remedy       string         `json:"remedy,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
	Persisted    []PersistedRef `json:"persisted,omitempty"`
	Warnings     []string       `json:"warnings,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// PersistedRef names an entity written as a side effect of a run.
type PersistedRef struct {
	Kind store.Kind `json:"kind"`
	ID   string     `json:"id"`
}

// Event is published on events.agent.<name> after every invocation.
type Event struct {
	Type       string      `json:"type"`
	RequestID  string      `json:"request_id"`
	Agent      string      `json:"agent"`
	Status     Status      `json:"status"`
	ErrorKind  apperr.Kind `json:"error_kind,omitempty"`
	DurationMs int64       `json:"duration_ms"`
	Persisted  int         `json:"persisted"`
	Timestamp  time.Time   `json:"timestamp"`
}

// Publisher is the event sink, normally a *natsbus.Client.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// Recorder receives invocation metrics, normally a *metrics.Recorder.
type Recorder interface {
	ObserveInvocation(agent, status, errorKind string, d time.Duration)
	ObservePersisted(kind string)
}

type Option func(*Orchestrator)

func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithNotifier(n notify.Notifier, notifySuccess bool) Option {
	return func(o *Orchestrator) {
		o.notifier = n
		o.notifySuccess = notifySuccess
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) { o.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

const DefaultTimeout = 60 * time.Second

type Orchestrator struct {
	registry *registry.Registry
	provider agent.Provider
	gateway  *store.Gateway

	timeout       time.Duration
	now           func() time.Time
	publisher     Publisher
	notifier      notify.Notifier
	notifySuccess bool
	recorder      Recorder
	log           *slog.Logger

	started time.Time
	mu      sync.Mutex
	stats   map[string]*agentStats

	// pending tracks background notifications.
	pending sync.WaitGroup
}

func New(reg *registry.Registry, provider agent.Provider, gateway *store.Gateway, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: reg,
		provider: provider,
		gateway:  gateway,
		timeout:  DefaultTimeout,
		now:      time.Now,
		log:      slog.Default(),
		stats:    make(map[string]*agentStats),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.started = o.now()
	return o
}

// Invoke runs one agent. It never returns an error: failures are reported
// in the Response.
func (o *Orchestrator) Invoke(ctx context.Context, name string, payload agent.Payload) Response {
	return o.invoke(ctx, Request{Agent: name, Payload: payload})
}

// Handle runs a transport request, keeping its request id when set.
func (o *Orchestrator) Handle(ctx context.Context, req Request) Response {
	return o.invoke(ctx, req)
}

func (o *Orchestrator) invoke(ctx context.Context, req Request) Response {
	start := o.now()
	resp := Response{
		RequestID: req.RequestID,
		Agent:     req.Agent,
		Timestamp: start,
	}
	if resp.RequestID == "" {
		resp.RequestID = uuid.New().String()
	}

	a, ok := o.registry.Get(req.Agent)
	if !ok {
		o.fail(&resp, apperr.UnknownAgent(req.Agent))
		resp.DurationMs = o.now().Sub(start).Milliseconds()
		o.log.Warn("unknown agent", "agent", req.Agent, "request_id", resp.RequestID)
		o.finish(ctx, resp, false)
		return resp
	}

	payload := req.Payload.Clone()
	if payload == nil {
		payload = agent.Payload{}
	}

	result, err := o.run(ctx, a, payload)
	if err == nil && result == nil {
		err = apperr.New(apperr.KindInternal, "agent returned no result")
	}
	if err != nil {
		o.fail(&resp, err)
	} else {
		resp.Status = StatusSuccess
		resp.Result = result
		o.persist(ctx, a.Name(), payload, &resp)
	}
	resp.DurationMs = o.now().Sub(start).Milliseconds()

	if resp.Status == StatusSuccess {
		o.log.Info("agent invocation succeeded",
			"agent", req.Agent, "request_id", resp.RequestID,
			"duration_ms", resp.DurationMs, "persisted", len(resp.Persisted))
	} else {
		o.log.Warn("agent invocation failed",
			"agent", req.Agent, "request_id", resp.RequestID,
			"kind", resp.ErrorKind, "error", resp.ErrorMessage)
	}

	o.recordExecution(ctx, req.Payload, resp)
	o.finish(ctx, resp, a.Capabilities().Notify)
	return resp
}

type outcome struct {
	result agent.Result
	err    error
}

// run executes the agent under the per-call timeout. On timeout the
// agent goroutine is abandoned with its context cancelled.
func (o *Orchestrator) run(ctx context.Context, a agent.Agent, payload agent.Payload) (agent.Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				o.log.Error("agent panicked", "agent", a.Name(), "panic", r)
				done <- outcome{err: apperr.Newf(apperr.KindInternal, "agent %s panicked: %v", a.Name(), r)}
			}
		}()
		res, err := a.Process(runCtx, payload)
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.KindCancelled, ctx.Err(), "request cancelled")
		}
		return nil, apperr.Newf(apperr.KindTimeout, "agent %s did not finish within %s", a.Name(), o.timeout).
			WithRemedy("retry later or raise orchestrator.timeout")
	}
}

func (o *Orchestrator) fail(resp *Response, err error) {
	resp.Status = StatusError
	resp.Result = nil
	resp.ErrorKind = apperr.KindOf(err)
	resp.ErrorMessage = err.Error()
	resp.Remedy = apperr.RemedyOf(err)
}

func (o *Orchestrator) recordExecution(ctx context.Context, input agent.Payload, resp Response) {
	if o.gateway == nil {
		return
	}
	exec := store.Execution{
		RequestID:    resp.RequestID,
		Agent:        resp.Agent,
		Success:      resp.Status == StatusSuccess,
		ErrorKind:    string(resp.ErrorKind),
		ErrorMessage: resp.ErrorMessage,
		DurationMs:   resp.DurationMs,
		Input:        marshalRaw(input),
		Output:       marshalRaw(resp.Result),
		CreatedAt:    resp.Timestamp,
	}
	if err := o.gateway.RecordExecution(context.WithoutCancel(ctx), exec); err != nil {
		o.log.Warn("record execution failed", "agent", resp.Agent, "request_id", resp.RequestID, "error", err)
	}
}

func marshalRaw(v any) json.RawMessage {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}

// finish updates stats and metrics, publishes the event and sends
// notifications.
func (o *Orchestrator) finish(ctx context.Context, resp Response, notifyOnSuccess bool) {
	o.track(resp)

	if o.recorder != nil {
		o.recorder.ObserveInvocation(resp.Agent, string(resp.Status), string(resp.ErrorKind),
			time.Duration(resp.DurationMs)*time.Millisecond)
	}

	if o.publisher != nil {
		evt := Event{
			Type:       "agent.invocation",
			RequestID:  resp.RequestID,
			Agent:      resp.Agent,
			Status:     resp.Status,
			ErrorKind:  resp.ErrorKind,
			DurationMs: resp.DurationMs,
			Persisted:  len(resp.Persisted),
			Timestamp:  resp.Timestamp,
		}
		if err := o.publisher.PublishJSON(natsbus.TopicEventsAgent(resp.Agent), evt); err != nil {
			o.log.Warn("publish agent event failed", "agent", resp.Agent, "error", err)
		}
	}

	if o.notifier == nil {
		return
	}
	var n notify.Notification
	switch {
	case resp.Status == StatusError && resp.ErrorKind != apperr.KindValidation && resp.ErrorKind != apperr.KindUnknownAgent:
		msg := resp.ErrorMessage
		if resp.Remedy != "" {
			msg += "\nRemedy: " + resp.Remedy
		}
		n = notify.Notification{Title: resp.Agent + " failed", Message: msg, Level: "error", Source: resp.Agent}
	case resp.Status == StatusSuccess && notifyOnSuccess && o.notifySuccess:
		n = notify.Notification{Title: resp.Agent + " finished", Message: summarize(resp), Level: "success", Source: resp.Agent}
	default:
		return
	}

	o.pending.Add(1)
	go func() {
		defer o.pending.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := o.notifier.Send(sendCtx, n); err != nil {
			o.log.Warn("send notification failed", "agent", resp.Agent, "error", err)
		}
	}()
}

func summarize(resp Response) string {
	s := fmt.Sprintf("request %s completed in %dms", resp.RequestID, resp.DurationMs)
	if len(resp.Persisted) > 0 {
		s += fmt.Sprintf(", %d records saved", len(resp.Persisted))
	}
	if title := resp.Result.String("title"); title != "" {
		s = title + "\n" + s
	}
	if label := resp.Result.String("label"); label != "" {
		s = "Sentiment: " + label + "\n" + s
	}
	return s
}

// Wait blocks until background notifications are delivered.
func (o *Orchestrator) Wait() {
	o.pending.Wait()
}
