package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mtzanidakis/studioflow/internal/agent"
	"github.com/mtzanidakis/studioflow/internal/apperr"
	"github.com/mtzanidakis/studioflow/internal/config"
	"github.com/mtzanidakis/studioflow/internal/metrics"
	"github.com/mtzanidakis/studioflow/internal/orchestrator"
	"github.com/mtzanidakis/studioflow/internal/registry"
	"github.com/mtzanidakis/studioflow/internal/store"
)

type stubProvider struct{ reply string }

func (p stubProvider) Call(context.Context, string, string) (string, error) { return p.reply, nil }
func (p stubProvider) Configured() bool                                     { return true }

type testEnv struct {
	srv     *Server
	handler http.Handler
	gateway *store.Gateway
}

func newTestEnv(t *testing.T, auth string) *testEnv {
	t.Helper()
	provider := stubProvider{reply: `{"project_title":"Logo Redesign","requirements":["new logo"]}`}
	reg, err := registry.New(agent.Catalog(provider, nil)...)
	require.NoError(t, err)

	promReg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(promReg)

	gw := store.NewGateway(store.NewMemory())
	orch := orchestrator.New(reg, provider, gw, orchestrator.WithRecorder(rec))

	cfg := &config.Config{}
	srv := NewServer(orch, gw, config.WebConfig{Auth: auth},
		WithGatherer(promReg),
		WithValidation(cfg.Validate()),
		WithVersion("test"))
	return &testEnv{srv: srv, handler: srv.Handler(), gateway: gw}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStatusAndAgents(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[map[string]any](t, rec)
	assert.Equal(t, "healthy", status["status"])
	assert.Equal(t, "test", status["version"])

	rec = env.do(t, http.MethodGet, "/api/agents", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]agent.Capabilities](t, rec), 12)

	rec = env.do(t, http.MethodGet, "/api/agents/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]orchestrator.AgentStatus](t, rec), 12)
}

func TestInvokeAgent(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/api/agents/creative_brief_parser/invoke",
		`{"text":"Client wants a logo redesign by Friday"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[orchestrator.Response](t, rec)
	assert.Equal(t, orchestrator.StatusSuccess, resp.Status)
	assert.NotEmpty(t, resp.Result["project_title"])

	projects, err := env.gateway.Projects(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Len(t, projects, 1)
}

func TestInvokeReportsErrorsWith200(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/api/agents/creative_brief_parser/invoke", "")
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[orchestrator.Response](t, rec)
	assert.Equal(t, orchestrator.StatusError, resp.Status)
	assert.Equal(t, apperr.KindValidation, resp.ErrorKind)

	rec = env.do(t, http.MethodPost, "/api/agents/nope/invoke", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, apperr.KindUnknownAgent, decode[orchestrator.Response](t, rec).ErrorKind)

	rec = env.do(t, http.MethodPost, "/api/agents/creative_brief_parser/invoke", `["not","an","object"]`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkflowEndpoint(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/api/workflows",
		`{"steps":[{"agent":"creative_brief_parser","payload":{"text":"New site"}}]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, orchestrator.StatusSuccess, decode[orchestrator.WorkflowResult](t, rec).Status)

	rec = env.do(t, http.MethodPost, "/api/workflows", `{"steps":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode[map[string]string](t, rec)["kind"])
}

func TestEntityEndpoints(t *testing.T) {
	env := newTestEnv(t, "")

	rec := env.do(t, http.MethodPost, "/api/projects", `{"name":"Spring campaign","client_name":"Acme","status":"active"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	project := decode[store.Project](t, rec)
	require.NotEmpty(t, project.ID)

	rec = env.do(t, http.MethodGet, "/api/projects/"+project.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme", decode[store.Project](t, rec).ClientName)

	rec = env.do(t, http.MethodGet, "/api/projects/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/tasks", `{"project_id":"`+project.ID+`","title":"Storyboard","status":"todo"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	task := decode[store.Task](t, rec)

	rec = env.do(t, http.MethodPost, "/api/tasks", `{"title":"Orphan"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/projects/"+project.ID+"/tasks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	tasks := decode[[]store.Task](t, rec)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)

	rec = env.do(t, http.MethodGet, "/api/tasks/"+task.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/tasks?status=done", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]store.Task](t, rec))

	rec = env.do(t, http.MethodPost, "/api/communications", `{"project_id":"`+project.ID+`","message":"Looks great","channel":"email"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/communications?channel=email", "")
	assert.Len(t, decode[[]store.Communication](t, rec), 1)

	rec = env.do(t, http.MethodPost, "/api/metrics/records", `{"project_id":"`+project.ID+`","name":"estimated_hours","value":12.5}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/metrics/records?name=estimated_hours&since=2000-01-01", "")
	metricsList := decode[[]store.Metric](t, rec)
	require.Len(t, metricsList, 1)
	assert.InDelta(t, 12.5, metricsList[0].Value, 1e-9)

	rec = env.do(t, http.MethodGet, "/api/tasks?limit=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = env.do(t, http.MethodGet, "/api/tasks?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExecutionsAndValidation(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/agents/creative_brief_parser/invoke", `{"text":"hi"}`)

	rec := env.do(t, http.MethodGet, "/api/executions?agent=creative_brief_parser", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]store.Execution](t, rec), 1)

	rec = env.do(t, http.MethodGet, "/api/config/validation", "")
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode[config.Validation](t, rec)
	assert.False(t, v.Valid)

	rec = env.do(t, http.MethodGet, "/api/schedules", "")
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	env.do(t, http.MethodPost, "/api/agents/nope/invoke", `{}`)

	rec := env.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `studioflow_agent_invocations_total{agent="nope",error_kind="unknown_agent",status="error"} 1`)
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, "s3cret")

	rec := env.do(t, http.MethodGet, "/api/status", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.SetBasicAuth("admin", "s3cret")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/login", `{"password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/login", `{"password":"s3cret"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/agents", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/auth/check", nil)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebSocketBroadcast(t *testing.T) {
	env := newTestEnv(t, "")
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go env.srv.hub.Run(ctx)

	ts := httptest.NewServer(env.handler)
	t.Cleanup(ts.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/api/ws", nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return env.srv.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	env.srv.hub.Broadcast(Event{Type: "events.agent.sentiment_analyzer", Payload: map[string]string{"status": "success"}})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"events.agent.sentiment_analyzer","payload":{"status":"success"}}`, string(data))
}
