package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mtzanidakis/studioflow/internal/agent"
	"github.com/mtzanidakis/studioflow/internal/apperr"
	"github.com/mtzanidakis/studioflow/internal/orchestrator"
	"github.com/mtzanidakis/studioflow/internal/store"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
	maxBodyBytes = 4 << 20
)

func (s *Server) registerAPI(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.getStatus)

		r.Get("/agents", s.listAgents)
		r.Get("/agents/status", s.agentStatus)
		r.Post("/agents/{name}/invoke", s.invokeAgent)

		r.Post("/workflows", s.runWorkflow)

		r.Get("/projects", s.listProjects)
		r.Post("/projects", s.createProject)
		r.Get("/projects/{id}", s.getProject)
		r.Get("/projects/{id}/tasks", s.listProjectTasks)

		r.Get("/tasks", s.listTasks)
		r.Post("/tasks", s.createTask)
		r.Get("/tasks/{id}", s.getTask)

		r.Get("/communications", s.listCommunications)
		r.Post("/communications", s.createCommunication)

		r.Get("/metrics/records", s.listMetrics)
		r.Post("/metrics/records", s.createMetric)

		r.Get("/executions", s.listExecutions)
		r.Get("/schedules", s.listSchedules)
		r.Get("/config/validation", s.configValidation)
	})
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	status := s.orch.Status(r.Context())
	jsonResponse(w, map[string]any{
		"status":              status.Status,
		"version":             s.version,
		"uptime":              time.Since(s.startedAt).Round(time.Second).String(),
		"provider_configured": status.ProviderConfigured,
		"storage":             status.Storage,
		"metrics":             s.orch.SystemMetrics(),
		"websocket_clients":   s.hub.Len(),
		"timestamp":           status.Timestamp,
	})
}

func (s *Server) listAgents(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, s.orch.Agents())
}

func (s *Server) agentStatus(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, s.orch.Status(r.Context()).Agents)
}

// invokeAgent always answers 200 with the agent response, errors
// included; only an undecodable body is a 400.
func (s *Server) invokeAgent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var payload agent.Payload
	if err := decodeBody(r, &payload, true); err != nil {
		jsonError(w, "payload must be a JSON object: "+err.Error(), http.StatusBadRequest)
		return
	}
	if payload == nil {
		payload = agent.Payload{}
	}
	payload["_source"] = "http"

	jsonResponse(w, s.orch.Invoke(r.Context(), name, payload))
}

func (s *Server) runWorkflow(w http.ResponseWriter, r *http.Request) {
	var wf orchestrator.Workflow
	if err := decodeBody(r, &wf, false); err != nil {
		jsonError(w, "invalid workflow: "+err.Error(), http.StatusBadRequest)
		return
	}
	res, err := s.orch.RunWorkflow(r.Context(), wf)
	if err != nil {
		appError(w, err)
		return
	}
	jsonResponse(w, res)
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := s.gateway.Projects(r.Context(), f)
	respond(w, list, err)
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var p store.Project
	s.create(w, r, &p)
}

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.gateway.Project(r.Context(), chi.URLParam(r, "id"))
	if err == nil && p == nil {
		jsonError(w, "project not found", http.StatusNotFound)
		return
	}
	respond(w, p, err)
}

func (s *Server) listProjectTasks(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.ProjectID = chi.URLParam(r, "id")
	list, err := s.gateway.Tasks(r.Context(), f)
	respond(w, list, err)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := s.gateway.Tasks(r.Context(), f)
	respond(w, list, err)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	var t store.Task
	s.create(w, r, &t)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	t, err := s.gateway.Task(r.Context(), chi.URLParam(r, "id"))
	if err == nil && t == nil {
		jsonError(w, "task not found", http.StatusNotFound)
		return
	}
	respond(w, t, err)
}

func (s *Server) listCommunications(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ch := r.URL.Query().Get("channel"); ch != "" {
		f.Status = ch
	}
	list, err := s.gateway.Communications(r.Context(), f)
	respond(w, list, err)
}

func (s *Server) createCommunication(w http.ResponseWriter, r *http.Request) {
	var c store.Communication
	s.create(w, r, &c)
}

func (s *Server) listMetrics(w http.ResponseWriter, r *http.Request) {
	f, err := parseFilter(r.URL.Query())
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := s.gateway.Metrics(r.Context(), f)
	respond(w, list, err)
}

func (s *Server) createMetric(w http.ResponseWriter, r *http.Request) {
	var m store.Metric
	s.create(w, r, &m)
}

func (s *Server) create(w http.ResponseWriter, r *http.Request, e store.Entity) {
	if err := decodeBody(r, e, false); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := s.gateway.Save(r.Context(), e); err != nil {
		appError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(e)
}

func (s *Server) listExecutions(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}
	list, err := s.gateway.Executions(r.Context(), r.URL.Query().Get("agent"), limit)
	respond(w, list, err)
}

func (s *Server) listSchedules(w http.ResponseWriter, _ *http.Request) {
	if s.schedules == nil {
		jsonResponse(w, []any{})
		return
	}
	jsonResponse(w, s.schedules.Entries())
}

func (s *Server) configValidation(w http.ResponseWriter, _ *http.Request) {
	if s.validation == nil {
		jsonError(w, "validation report not available", http.StatusNotFound)
		return
	}
	jsonResponse(w, s.validation)
}

// parseFilter reads project_id, status, name, since, until and limit.
// since and until accept RFC 3339 timestamps or YYYY-MM-DD dates.
func parseFilter(q url.Values) (store.Filter, error) {
	f := store.Filter{
		ProjectID: q.Get("project_id"),
		Status:    q.Get("status"),
		Name:      q.Get("name"),
	}
	var err error
	if f.CreatedAfter, err = parseTime(q.Get("since")); err != nil {
		return f, fmt.Errorf("invalid since: %w", err)
	}
	if f.CreatedBefore, err = parseTime(q.Get("until")); err != nil {
		return f, fmt.Errorf("invalid until: %w", err)
	}
	if f.Limit, err = parseLimit(q.Get("limit")); err != nil {
		return f, err
	}
	return f, nil
}

func parseTime(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, v)
}

func parseLimit(v string) (int, error) {
	if v == "" {
		return defaultLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return min(n, maxLimit), nil
}

// decodeBody decodes a JSON body into v. An empty body is accepted when
// allowEmpty is set.
func decodeBody(r *http.Request, v any, allowEmpty bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) && allowEmpty {
			return nil
		}
		return err
	}
	return nil
}

func respond(w http.ResponseWriter, data any, err error) {
	if err != nil {
		appError(w, err)
		return
	}
	jsonResponse(w, data)
}

// appError maps an error kind to an HTTP status.
func appError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		code = http.StatusBadRequest
	case apperr.KindUnknownAgent:
		code = http.StatusNotFound
	case apperr.KindStorageUnavailable, apperr.KindProviderUnavailable:
		code = http.StatusServiceUnavailable
	case apperr.KindTimeout:
		code = http.StatusGatewayTimeout
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":  err.Error(),
		"kind":   string(apperr.KindOf(err)),
		"remedy": apperr.RemedyOf(err),
	})
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
