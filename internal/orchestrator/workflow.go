package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mtzanidakis/studioflow/internal/agent"
	"github.com/mtzanidakis/studioflow/internal/apperr"
	"github.com/mtzanidakis/studioflow/internal/natsbus"
)

// PreviousResultsKey is the payload key carrying earlier step results,
// keyed by agent name.
const PreviousResultsKey = "_previous_results"

// Step is one agent invocation. After names the steps (by ID, or agent
// when no ID is set) that must finish first.
type Step struct {
	ID          string        `json:"id,omitempty"`
	Agent       string        `json:"agent"`
	Payload     agent.Payload `json:"payload"`
	UsePrevious bool          `json:"use_previous"`
	After       []string      `json:"after,omitempty"`
}

// Workflow is a set of agent invocations, run in order unless steps
// declare After dependencies. StopOnError defaults to true when unset.
type Workflow struct {
	Name        string `json:"name,omitempty"`
	Steps       []Step `json:"steps"`
	StopOnError *bool  `json:"stop_on_error,omitempty"`
}

func (w Workflow) stopOnError() bool {
	return w.StopOnError == nil || *w.StopOnError
}

type WorkflowResult struct {
	ID         string     `json:"workflow_id"`
	Name       string     `json:"name,omitempty"`
	Status     Status     `json:"status"`
	Steps      []Response `json:"steps"`
	Completed  int        `json:"completed"`
	Failed     int        `json:"failed"`
	DurationMs int64      `json:"duration_ms"`
	Timestamp  time.Time  `json:"timestamp"`
}

// RunWorkflow runs the steps tier by tier; steps in one tier run
// concurrently. A project created by an earlier tier is handed to later
// steps that do not name one.
func (o *Orchestrator) RunWorkflow(ctx context.Context, wf Workflow) (WorkflowResult, error) {
	if len(wf.Steps) == 0 {
		return WorkflowResult{}, apperr.Validation("workflow has no steps")
	}
	for i, s := range wf.Steps {
		if s.Agent == "" {
			return WorkflowResult{}, apperr.Validation("workflow step %d: agent is required", i+1)
		}
	}
	tiers, err := planTiers(wf.Steps)
	if err != nil {
		return WorkflowResult{}, err
	}

	start := o.now()
	res := WorkflowResult{
		ID:        uuid.New().String(),
		Name:      wf.Name,
		Timestamp: start,
	}
	o.log.Debug("workflow planned", "workflow", res.ID, "tiers", describeTiers(wf.Steps, tiers))

	previous := make(map[string]any)
	var projectID string

	for _, tier := range tiers {
		if ctx.Err() != nil {
			break
		}

		responses := make([]Response, len(tier))
		var wg sync.WaitGroup
		for j, idx := range tier {
			step := wf.Steps[idx]
			payload := step.Payload.Clone()
			if payload == nil {
				payload = agent.Payload{}
			}
			if step.UsePrevious {
				payload[PreviousResultsKey] = clonePrevious(previous)
			}
			if projectID != "" && payload.String("project_id") == "" {
				payload["project_id"] = projectID
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				responses[j] = o.Invoke(ctx, step.Agent, payload)
			}()
		}
		wg.Wait()

		failed := false
		for j, resp := range responses {
			step := wf.Steps[tier[j]]
			res.Steps = append(res.Steps, resp)
			if resp.Status != StatusSuccess {
				res.Failed++
				failed = true
				o.log.Warn("workflow step failed", "workflow", res.ID, "step", tier[j]+1, "agent", step.Agent, "kind", resp.ErrorKind)
				continue
			}
			res.Completed++
			previous[step.stepID()] = map[string]any(resp.Result)
			if id := resp.Result.String("project_id"); id != "" {
				projectID = id
			}
		}
		if failed && wf.stopOnError() {
			break
		}
	}

	switch {
	case res.Failed == 0 && res.Completed == len(wf.Steps):
		res.Status = StatusSuccess
	case res.Completed == 0:
		res.Status = StatusError
	default:
		res.Status = StatusPartial
	}
	res.DurationMs = o.now().Sub(start).Milliseconds()

	if o.publisher != nil {
		_ = o.publisher.PublishJSON(natsbus.TopicEventsWorkflow, map[string]any{
			"type":        "workflow.completed",
			"workflow_id": res.ID,
			"name":        res.Name,
			"status":      res.Status,
			"completed":   res.Completed,
			"failed":      res.Failed,
			"timestamp":   res.Timestamp,
		})
	}
	o.log.Info("workflow finished", "workflow", res.ID, "name", res.Name,
		"status", res.Status, "completed", res.Completed, "failed", res.Failed)
	return res, nil
}

func clonePrevious(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
