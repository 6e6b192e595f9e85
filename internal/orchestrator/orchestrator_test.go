package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtzanidakis/studioflow/internal/agent"
	"github.com/mtzanidakis/studioflow/internal/apperr"
	"github.com/mtzanidakis/studioflow/internal/notify"
	"github.com/mtzanidakis/studioflow/internal/registry"
	"github.com/mtzanidakis/studioflow/internal/store"
)

type fakeProvider struct {
	reply string
	err   error
	calls atomic.Int32
}

func (p *fakeProvider) Call(context.Context, string, string) (string, error) {
	p.calls.Add(1)
	return p.reply, p.err
}

func (p *fakeProvider) Configured() bool { return true }

// fakeAgent lets a test script Process directly.
type fakeAgent struct {
	name    string
	notify  bool
	process func(ctx context.Context, in agent.Payload) (agent.Result, error)

	mu    sync.Mutex
	calls []agent.Payload
}

func (a *fakeAgent) Name() string { return a.name }

func (a *fakeAgent) Process(ctx context.Context, in agent.Payload) (agent.Result, error) {
	a.mu.Lock()
	a.calls = append(a.calls, in)
	a.mu.Unlock()
	return a.process(ctx, in)
}

func (a *fakeAgent) Capabilities() agent.Capabilities {
	return agent.Capabilities{Name: a.name, Description: "fake " + a.name, Notify: a.notify}
}

func (a *fakeAgent) Health() agent.Health { return agent.Health{Healthy: true, ProviderConfigured: true} }

func (a *fakeAgent) payloads() []agent.Payload {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]agent.Payload(nil), a.calls...)
}

func returning(r agent.Result) func(context.Context, agent.Payload) (agent.Result, error) {
	return func(context.Context, agent.Payload) (agent.Result, error) { return r, nil }
}

// countingBackend counts every storage call.
type countingBackend struct {
	*store.Memory
	calls atomic.Int32
}

func (b *countingBackend) Put(ctx context.Context, rec store.Record) error {
	b.calls.Add(1)
	return b.Memory.Put(ctx, rec)
}

func (b *countingBackend) Fetch(ctx context.Context, kind store.Kind, id string) (*store.Record, error) {
	b.calls.Add(1)
	return b.Memory.Fetch(ctx, kind, id)
}

func (b *countingBackend) Find(ctx context.Context, kind store.Kind, f store.Filter) ([]store.Record, error) {
	b.calls.Add(1)
	return b.Memory.Find(ctx, kind, f)
}

func (b *countingBackend) SaveExecution(ctx context.Context, e store.Execution) error {
	b.calls.Add(1)
	return b.Memory.SaveExecution(ctx, e)
}

type recordingPublisher struct {
	mu     sync.Mutex
	topics []string
	events []any
}

func (p *recordingPublisher) PublishJSON(topic string, v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.events = append(p.events, v)
	return nil
}

type recordingNotifier struct {
	mu  sync.Mutex
	got []notify.Notification
}

func (n *recordingNotifier) Name() string { return "recording" }

func (n *recordingNotifier) Send(_ context.Context, msg notify.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, msg)
	return nil
}

type recordingRecorder struct {
	mu          sync.Mutex
	invocations []string
	persisted   map[string]int
}

func (r *recordingRecorder) ObserveInvocation(agentName, status, errorKind string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.invocations = append(r.invocations, agentName+"/"+status+"/"+errorKind)
}

func (r *recordingRecorder) ObservePersisted(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.persisted == nil {
		r.persisted = make(map[string]int)
	}
	r.persisted[kind]++
}

// steppingClock advances one millisecond per call so saves are ordered.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Millisecond)
		return t
	}
}

type harness struct {
	orch      *Orchestrator
	backend   *countingBackend
	gateway   *store.Gateway
	publisher *recordingPublisher
	notifier  *recordingNotifier
	recorder  *recordingRecorder
}

func newHarness(t *testing.T, agents []agent.Agent, opts ...Option) *harness {
	t.Helper()
	reg, err := registry.New(agents...)
	require.NoError(t, err)

	h := &harness{
		backend:   &countingBackend{Memory: store.NewMemory()},
		publisher: &recordingPublisher{},
		notifier:  &recordingNotifier{},
		recorder:  &recordingRecorder{},
	}
	h.gateway = store.NewGateway(h.backend, store.WithClock(steppingClock()))
	opts = append([]Option{
		WithPublisher(h.publisher),
		WithNotifier(h.notifier, true),
		WithRecorder(h.recorder),
	}, opts...)
	h.orch = New(reg, &fakeProvider{}, h.gateway, opts...)
	return h
}

func TestInvokeUnknownAgent(t *testing.T) {
	provider := &fakeProvider{reply: `{}`}
	reg, err := registry.New(agent.Catalog(provider, nil)...)
	require.NoError(t, err)
	backend := &countingBackend{Memory: store.NewMemory()}
	o := New(reg, provider, store.NewGateway(backend))

	resp := o.Invoke(context.Background(), "nonexistent_agent", agent.Payload{"text": "hi"})

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, apperr.KindUnknownAgent, resp.ErrorKind)
	assert.NotEmpty(t, resp.Remedy)
	assert.NotEmpty(t, resp.RequestID)
	assert.Nil(t, resp.Result)
	assert.Zero(t, provider.calls.Load(), "provider must not be called")
	assert.Zero(t, backend.calls.Load(), "storage must not be touched")
}

func TestInvokeValidationSkipsProvider(t *testing.T) {
	provider := &fakeProvider{reply: `{"project_title":"x","requirements":["y"]}`}
	reg, err := registry.New(agent.Catalog(provider, nil)...)
	require.NoError(t, err)
	o := New(reg, provider, store.NewGateway(store.NewMemory()))

	resp := o.Invoke(context.Background(), agent.CreativeBriefParser, agent.Payload{})

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, apperr.KindValidation, resp.ErrorKind)
	assert.Zero(t, provider.calls.Load())
}

func TestInvokeBriefCreatesProject(t *testing.T) {
	provider := &fakeProvider{reply: `{"project_title":"Logo Redesign","client_name":"Acme","project_type":"logo","requirements":["new logo"]}`}
	reg, err := registry.New(agent.Catalog(provider, nil)...)
	require.NoError(t, err)
	gw := store.NewGateway(store.NewMemory())
	o := New(reg, provider, gw)

	ctx := context.Background()
	resp := o.Invoke(ctx, agent.CreativeBriefParser, agent.Payload{"text": "Client wants a logo redesign by Friday"})

	require.Equal(t, StatusSuccess, resp.Status, resp.ErrorMessage)
	require.NotNil(t, resp.Result)
	assert.NotEmpty(t, resp.Result.String("project_title"))
	assert.NotEmpty(t, resp.Result.List("requirements"))
	require.Len(t, resp.Persisted, 1)
	assert.Equal(t, store.KindProject, resp.Persisted[0].Kind)
	assert.Equal(t, resp.Persisted[0].ID, resp.Result.String("project_id"))

	proj, err := gw.Project(ctx, resp.Persisted[0].ID)
	require.NoError(t, err)
	require.NotNil(t, proj)
	assert.Equal(t, "Logo Redesign", proj.Name)
	assert.Equal(t, "Acme", proj.ClientName)

	execs, err := gw.Executions(ctx, agent.CreativeBriefParser, 10)
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.True(t, execs[0].Success)
	assert.Equal(t, resp.RequestID, execs[0].RequestID)
}

func TestInvokeTimeout(t *testing.T) {
	slow := &fakeAgent{name: "slow", process: func(ctx context.Context, _ agent.Payload) (agent.Result, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return agent.Result{"late": true}, nil
	}}
	h := newHarness(t, []agent.Agent{slow}, WithTimeout(20*time.Millisecond))

	resp := h.orch.Invoke(context.Background(), "slow", nil)

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, apperr.KindTimeout, resp.ErrorKind)
	assert.Nil(t, resp.Result)
	assert.NotEmpty(t, resp.Remedy)
}

func TestInvokeCancelled(t *testing.T) {
	blocked := &fakeAgent{name: "blocked", process: func(ctx context.Context, _ agent.Payload) (agent.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	h := newHarness(t, []agent.Agent{blocked})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	resp := h.orch.Invoke(ctx, "blocked", nil)

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, apperr.KindCancelled, resp.ErrorKind)
}

func TestInvokeRecoversPanic(t *testing.T) {
	boom := &fakeAgent{name: "boom", process: func(context.Context, agent.Payload) (agent.Result, error) {
		panic("nil map write")
	}}
	h := newHarness(t, []agent.Agent{boom})

	resp := h.orch.Invoke(context.Background(), "boom", nil)

	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, apperr.KindInternal, resp.ErrorKind)
	assert.Contains(t, resp.ErrorMessage, "panicked")
}

func TestInvokeNilResultIsError(t *testing.T) {
	empty := &fakeAgent{name: "empty", process: returning(nil)}
	h := newHarness(t, []agent.Agent{empty})

	resp := h.orch.Invoke(context.Background(), "empty", nil)
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, apperr.KindInternal, resp.ErrorKind)
}

func TestInvokeDoesNotMutateCallerPayload(t *testing.T) {
	mutating := &fakeAgent{name: "mutating", process: func(_ context.Context, in agent.Payload) (agent.Result, error) {
		in["injected"] = true
		return agent.Result{"ok": true}, nil
	}}
	h := newHarness(t, []agent.Agent{mutating})

	payload := agent.Payload{"text": "x"}
	h.orch.Invoke(context.Background(), "mutating", payload)
	assert.NotContains(t, payload, "injected")
}

func TestInvokeProviderErrorNotifies(t *testing.T) {
	failing := &fakeAgent{name: agent.SentimentAnalyzer, process: func(context.Context, agent.Payload) (agent.Result, error) {
		return nil, apperr.New(apperr.KindProviderUnavailable, "AI provider unavailable").WithRemedy("set GEMINI_API_KEY")
	}}
	h := newHarness(t, []agent.Agent{failing})

	resp := h.orch.Invoke(context.Background(), agent.SentimentAnalyzer, agent.Payload{"communications": []any{"hi"}})
	h.orch.Wait()

	assert.Equal(t, apperr.KindProviderUnavailable, resp.ErrorKind)
	assert.Equal(t, "set GEMINI_API_KEY", resp.Remedy)

	require.Len(t, h.notifier.got, 1)
	assert.Equal(t, "error", h.notifier.got[0].Level)
	assert.Contains(t, h.notifier.got[0].Message, "Remedy: set GEMINI_API_KEY")

	assert.Equal(t, []string{"events.agent.sentiment_analyzer"}, h.publisher.topics)
	assert.Equal(t, []string{"sentiment_analyzer/error/provider_unavailable"}, h.recorder.invocations)
}

func TestInvokeSuccessNotifiesFlaggedAgents(t *testing.T) {
	flagged := &fakeAgent{name: "flagged", notify: true, process: returning(agent.Result{"title": "Website proposal"})}
	quiet := &fakeAgent{name: "quiet", process: returning(agent.Result{"title": "x"})}
	h := newHarness(t, []agent.Agent{flagged, quiet})

	h.orch.Invoke(context.Background(), "flagged", nil)
	h.orch.Invoke(context.Background(), "quiet", nil)
	h.orch.Wait()

	require.Len(t, h.notifier.got, 1)
	assert.Equal(t, "success", h.notifier.got[0].Level)
	assert.Contains(t, h.notifier.got[0].Message, "Website proposal")
}

func TestPersistenceWarningsKeepSuccess(t *testing.T) {
	meeting := &fakeAgent{name: agent.MeetingNotesProcessor, process: returning(agent.Result{
		"summary":      "Kickoff",
		"action_items": []any{map[string]any{"task": "Send moodboard", "assignee": "ana"}},
	})}
	h := newHarness(t, []agent.Agent{meeting})

	resp := h.orch.Invoke(context.Background(), agent.MeetingNotesProcessor, agent.Payload{"meeting_notes": "notes"})

	assert.Equal(t, StatusSuccess, resp.Status)
	assert.Empty(t, resp.Persisted)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "no project_id")
}

func TestPersistMeetingActionItems(t *testing.T) {
	meeting := &fakeAgent{name: agent.MeetingNotesProcessor, process: returning(agent.Result{
		"summary": "Kickoff",
		"action_items": []any{
			map[string]any{"task": "Send moodboard", "assignee": "ana", "due_date": "TBD", "priority": "high"},
			map[string]any{"task": "Book shoot", "assignee": "TBD"},
		},
	})}
	h := newHarness(t, []agent.Agent{meeting})
	ctx := context.Background()

	resp := h.orch.Invoke(ctx, agent.MeetingNotesProcessor, agent.Payload{"meeting_notes": "notes", "project_id": "p1"})
	require.Equal(t, StatusSuccess, resp.Status)
	require.Len(t, resp.Persisted, 2)

	tasks, err := h.gateway.Tasks(ctx, store.Filter{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "Send moodboard", tasks[0].Title)
	assert.Equal(t, "ana", tasks[0].Assignee)
	assert.Empty(t, tasks[0].DueDate)
	assert.Equal(t, "todo", tasks[0].Status)
	assert.Empty(t, tasks[1].Assignee)
	assert.Equal(t, 2, h.recorder.persisted["task"])
}

func TestPersistSentiment(t *testing.T) {
	sentiment := &fakeAgent{name: agent.SentimentAnalyzer, process: returning(agent.Result{
		"overall_score": -0.4,
		"label":         "negative",
		"messages": []any{
			map[string]any{"index": 0, "score": 0.2, "label": "neutral"},
			map[string]any{"index": 1, "score": -1.0, "label": "negative"},
		},
	})}
	h := newHarness(t, []agent.Agent{sentiment})
	ctx := context.Background()

	resp := h.orch.Invoke(ctx, agent.SentimentAnalyzer, agent.Payload{
		"project_id": "p1",
		"client_id":  "acme",
		"communications": []any{
			"Thanks for the drafts",
			map[string]any{"message": "This is late again", "channel": "slack"},
		},
	})
	require.Equal(t, StatusSuccess, resp.Status)
	assert.Len(t, resp.Persisted, 3)

	comms, err := h.gateway.Communications(ctx, store.Filter{ProjectID: "p1"})
	require.NoError(t, err)
	require.Len(t, comms, 2)
	assert.Equal(t, "email", comms[0].Channel)
	assert.Equal(t, "slack", comms[1].Channel)
	require.NotNil(t, comms[1].SentimentScore)
	assert.InDelta(t, -1.0, *comms[1].SentimentScore, 1e-9)
	assert.Equal(t, "acme", comms[1].ClientID)

	metrics, err := h.gateway.Metrics(ctx, store.Filter{Name: "client_sentiment"})
	require.NoError(t, err)
	require.Len(t, metrics, 1)
	assert.InDelta(t, -0.4, metrics[0].Value, 1e-9)
}

func TestPersistTaskUpdates(t *testing.T) {
	ctx := context.Background()
	optimizer := &fakeAgent{name: agent.WorkflowOptimizer}
	h := newHarness(t, []agent.Agent{optimizer})

	id, err := h.gateway.Save(ctx, &store.Task{ProjectID: "p1", Title: "Wireframes", Status: "todo", Priority: "low"})
	require.NoError(t, err)

	optimizer.process = returning(agent.Result{
		"recommendations": []any{"parallelise reviews"},
		"task_updates": []any{
			map[string]any{"task_id": id, "status": "in_progress", "priority": "high"},
			map[string]any{"task_id": "missing", "status": "done"},
		},
	})
	resp := h.orch.Invoke(ctx, agent.WorkflowOptimizer, agent.Payload{"project_data": map[string]any{"id": "p1"}})
	require.Equal(t, StatusSuccess, resp.Status)
	require.Len(t, resp.Persisted, 1)
	require.Len(t, resp.Warnings, 1)
	assert.Contains(t, resp.Warnings[0], "missing not found")

	task, err := h.gateway.Task(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "in_progress", task.Status)
	assert.Equal(t, "high", task.Priority)

	tasks, err := h.gateway.Tasks(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestPersistEstimateAndProposal(t *testing.T) {
	estimator := &fakeAgent{name: agent.AnalyticsEstimator, process: returning(agent.Result{
		"estimated_hours": 42.0, "estimated_cost": 4200.0, "currency": "EUR",
	})}
	proposal := &fakeAgent{name: agent.ProposalGenerator, process: returning(agent.Result{
		"title": "Rebrand", "scope": []any{"logo"}, "pricing": map[string]any{"total": "$4,500"},
	})}
	h := newHarness(t, []agent.Agent{estimator, proposal})
	ctx := context.Background()

	h.orch.Invoke(ctx, agent.AnalyticsEstimator, agent.Payload{"brief": "x", "project_id": "p1"})
	h.orch.Invoke(ctx, agent.ProposalGenerator, agent.Payload{"brief": "x", "project_id": "p1"})

	metrics, err := h.gateway.Metrics(ctx, store.Filter{ProjectID: "p1"})
	require.NoError(t, err)
	got := map[string]float64{}
	for _, m := range metrics {
		got[m.Name] = m.Value
	}
	assert.Equal(t, map[string]float64{
		"estimated_hours": 42,
		"estimated_cost":  4200,
		"proposal_value":  4500,
	}, got)
}

func TestRunWorkflowChainsResults(t *testing.T) {
	provider := &fakeProvider{reply: `{"project_title":"Site","requirements":["homepage"]}`}
	brief := agent.New(agent.Definitions()[1], provider, nil)
	require.Equal(t, agent.CreativeBriefParser, brief.Name())
	board := &fakeAgent{name: agent.TaskboardGenerator, process: returning(agent.Result{
		"tasks": []any{map[string]any{"title": "Design homepage", "priority": "high", "status": "todo"}},
	})}
	h := newHarness(t, []agent.Agent{brief, board})
	ctx := context.Background()

	res, err := h.orch.RunWorkflow(ctx, Workflow{
		Name: "kickoff",
		Steps: []Step{
			{Agent: agent.CreativeBriefParser, Payload: agent.Payload{"text": "We need a site"}},
			{Agent: agent.TaskboardGenerator, Payload: agent.Payload{"brief": "from brief"}, UsePrevious: true},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 2, res.Completed)
	require.Len(t, res.Steps, 2)

	projectID := res.Steps[0].Result.String("project_id")
	require.NotEmpty(t, projectID)

	calls := board.payloads()
	require.Len(t, calls, 1)
	assert.Equal(t, projectID, calls[0].String("project_id"))
	prev := calls[0].Object(PreviousResultsKey)
	require.Contains(t, prev, agent.CreativeBriefParser)

	tasks, err := h.gateway.Tasks(ctx, store.Filter{ProjectID: projectID})
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
	assert.Contains(t, h.publisher.topics, "events.workflow")
}

func TestRunWorkflowStopOnError(t *testing.T) {
	bad := &fakeAgent{name: "bad", process: func(context.Context, agent.Payload) (agent.Result, error) {
		return nil, errors.New("boom")
	}}
	good := &fakeAgent{name: "good", process: returning(agent.Result{"ok": true})}
	h := newHarness(t, []agent.Agent{bad, good})
	ctx := context.Background()

	steps := []Step{{Agent: "bad"}, {Agent: "good"}}

	res, err := h.orch.RunWorkflow(ctx, Workflow{Steps: steps})
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Len(t, res.Steps, 1)
	assert.Empty(t, good.payloads())

	cont := false
	res, err = h.orch.RunWorkflow(ctx, Workflow{Steps: steps, StopOnError: &cont})
	require.NoError(t, err)
	assert.Equal(t, StatusPartial, res.Status)
	assert.Len(t, res.Steps, 2)
	assert.Equal(t, 1, res.Failed)
}

func TestRunWorkflowRejectsEmpty(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.orch.RunWorkflow(context.Background(), Workflow{})
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

func TestRunWorkflowRunsTierConcurrently(t *testing.T) {
	var started sync.WaitGroup
	started.Add(2)
	allStarted := make(chan struct{})
	go func() { started.Wait(); close(allStarted) }()

	barrier := func(name string) *fakeAgent {
		return &fakeAgent{name: name, process: func(context.Context, agent.Payload) (agent.Result, error) {
			started.Done()
			select {
			case <-allStarted:
				return agent.Result{"from": name}, nil
			case <-time.After(2 * time.Second):
				return nil, errors.New("sibling step never started")
			}
		}}
	}
	root := &fakeAgent{name: "root", process: returning(agent.Result{"project_id": "p-1"})}
	left, right := barrier("left"), barrier("right")
	join := &fakeAgent{name: "join", process: returning(agent.Result{"done": true})}
	h := newHarness(t, []agent.Agent{root, left, right, join})

	res, err := h.orch.RunWorkflow(context.Background(), Workflow{Steps: []Step{
		{Agent: "root"},
		{Agent: "left", After: []string{"root"}},
		{Agent: "right", After: []string{"root"}},
		{Agent: "join", After: []string{"left", "right"}, UsePrevious: true},
	}})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	require.Len(t, res.Steps, 4)
	assert.Equal(t, "left", res.Steps[1].Agent)
	assert.Equal(t, "right", res.Steps[2].Agent)

	calls := join.payloads()
	require.Len(t, calls, 1)
	assert.Equal(t, "p-1", calls[0].String("project_id"))
	prev := calls[0].Object(PreviousResultsKey)
	assert.Contains(t, prev, "left")
	assert.Contains(t, prev, "right")
}

func TestRunWorkflowRejectsCycle(t *testing.T) {
	a := &fakeAgent{name: "a", process: returning(agent.Result{})}
	b := &fakeAgent{name: "b", process: returning(agent.Result{})}
	h := newHarness(t, []agent.Agent{a, b})

	_, err := h.orch.RunWorkflow(context.Background(), Workflow{Steps: []Step{
		{Agent: "a", After: []string{"b"}},
		{Agent: "b", After: []string{"a"}},
	}})
	assert.ErrorIs(t, err, apperr.ErrValidation)
	assert.Empty(t, a.payloads())
}

func TestConcurrentInvocationsAreIndependent(t *testing.T) {
	echo := &fakeAgent{name: "echo", process: func(_ context.Context, in agent.Payload) (agent.Result, error) {
		return agent.Result{"n": in["n"]}, nil
	}}
	h := newHarness(t, []agent.Agent{echo})

	var wg sync.WaitGroup
	results := make([]Response, 20)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.orch.Invoke(context.Background(), "echo", agent.Payload{"n": i})
		}()
	}
	wg.Wait()

	ids := map[string]bool{}
	for i, r := range results {
		require.Equal(t, StatusSuccess, r.Status)
		assert.Equal(t, i, r.Result["n"])
		ids[r.RequestID] = true
	}
	assert.Len(t, ids, len(results))
	assert.Equal(t, int64(20), h.orch.SystemMetrics().Invocations)
}

func TestStatusAndMetrics(t *testing.T) {
	ok := &fakeAgent{name: "ok", process: returning(agent.Result{"x": 1})}
	bad := &fakeAgent{name: "bad", process: func(context.Context, agent.Payload) (agent.Result, error) {
		return nil, apperr.Validation("missing field")
	}}
	h := newHarness(t, []agent.Agent{ok, bad})
	ctx := context.Background()

	h.orch.Invoke(ctx, "ok", nil)
	h.orch.Invoke(ctx, "bad", nil)
	h.orch.Invoke(ctx, "nope", nil)

	st := h.orch.Status(ctx)
	assert.Equal(t, "healthy", st.Status)
	assert.Equal(t, "memory", st.Storage.Tier)
	require.Len(t, st.Agents, 2)
	assert.Equal(t, "bad", st.Agents[0].Name)
	assert.Equal(t, int64(1), st.Agents[0].Stats.Failures)
	assert.Equal(t, "missing field", st.Agents[0].Stats.LastError)

	m := h.orch.SystemMetrics()
	assert.Equal(t, 2, m.Agents)
	assert.Equal(t, int64(2), m.Invocations)
	assert.Equal(t, int64(1), m.Failures)
	assert.InDelta(t, 0.5, m.SuccessRate, 1e-9)
	assert.Len(t, h.orch.Agents(), 2)
}
