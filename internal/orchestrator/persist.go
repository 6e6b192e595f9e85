package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/mtzanidakis/studioflow/internal/agent"
	"github.com/mtzanidakis/studioflow/internal/store"
)

// persistFunc writes the entities derived from a successful run.
type persistFunc func(p *persister, in agent.Payload, out agent.Result)

var persisters = map[string]persistFunc{
	agent.MeetingNotesProcessor: persistActionItems,
	agent.CreativeBriefParser:   persistProject,
	agent.TaskboardGenerator:    persistTaskboard,
	agent.ProposalGenerator:     persistProposal,
	agent.ContentPlanGenerator:  persistCalendar,
	agent.AssetValidator:        persistAssetScore,
	agent.ClientPortalAssistant: persistPortalQuery,
	agent.AnalyticsEstimator:    persistEstimate,
	agent.WorkflowOptimizer:     persistTaskUpdates,
	agent.SentimentAnalyzer:     persistSentiment,
}

type persister struct {
	ctx       context.Context
	gateway   *store.Gateway
	recorder  Recorder
	agent     string
	projectID string

	refs     []PersistedRef
	warnings []string
}

// persist saves derived entities. Failures become warnings and never flip
// the response status.
func (o *Orchestrator) persist(ctx context.Context, name string, in agent.Payload, resp *Response) {
	fn, ok := persisters[name]
	if !ok || o.gateway == nil {
		return
	}
	p := &persister{
		ctx:       ctx,
		gateway:   o.gateway,
		recorder:  o.recorder,
		agent:     name,
		projectID: in.String("project_id"),
	}
	fn(p, in, resp.Result)

	resp.Persisted = p.refs
	resp.Warnings = append(resp.Warnings, p.warnings...)
	for _, w := range p.warnings {
		o.log.Warn("persist result", "agent", name, "request_id", resp.RequestID, "warning", w)
	}
}

func (p *persister) save(e store.Entity) string {
	id, err := p.gateway.Save(p.ctx, e)
	if err != nil {
		p.warn("save %s: %v", e.Kind(), err)
		return ""
	}
	p.refs = append(p.refs, PersistedRef{Kind: e.Kind(), ID: id})
	if p.recorder != nil {
		p.recorder.ObservePersisted(string(e.Kind()))
	}
	return id
}

func (p *persister) warn(format string, args ...any) {
	p.warnings = append(p.warnings, fmt.Sprintf(format, args...))
}

// needProject reports whether a project id is available, warning when not.
func (p *persister) needProject(what string) bool {
	if p.projectID != "" {
		return true
	}
	p.warn("%s not saved: payload has no project_id", what)
	return false
}

func (p *persister) metric(name string, value float64, unit string, meta map[string]any) {
	p.save(&store.Metric{
		ProjectID: p.projectID,
		Name:      name,
		Value:     value,
		Unit:      unit,
		Metadata:  meta,
	})
}

func persistProject(p *persister, in agent.Payload, out agent.Result) {
	client := out.String("client_name")
	if client == "" {
		client = in.String("client_name")
	}
	proj := &store.Project{
		Name:        out.String("project_title"),
		ClientName:  client,
		Description: truncate(in.String("text"), 2000),
		Status:      "planning",
		Metadata: map[string]any{
			"project_type": out["project_type"],
			"requirements": out["requirements"],
			"deliverables": out["deliverables"],
			"timeline":     out["timeline"],
			"source_agent": p.agent,
		},
	}
	if id := p.save(proj); id != "" {
		out["project_id"] = id
	}
}

func persistActionItems(p *persister, _ agent.Payload, out agent.Result) {
	items := agent.AsObjects(out["action_items"])
	if len(items) == 0 || !p.needProject("action items") {
		return
	}
	for _, item := range items {
		title := agent.Str(item, "task")
		if title == "" {
			title = agent.Str(item, "title")
		}
		if title == "" {
			continue
		}
		p.save(&store.Task{
			ProjectID: p.projectID,
			Title:     title,
			Assignee:  blankTBD(agent.Str(item, "assignee")),
			DueDate:   blankTBD(agent.Str(item, "due_date")),
			Priority:  agent.Str(item, "priority"),
			Status:    "todo",
			Metadata:  map[string]any{"source_agent": p.agent},
		})
	}
}

func persistTaskboard(p *persister, _ agent.Payload, out agent.Result) {
	tasks := agent.AsObjects(out["tasks"])
	if len(tasks) == 0 || !p.needProject("tasks") {
		return
	}
	for _, t := range tasks {
		title := agent.Str(t, "title")
		if title == "" {
			continue
		}
		hours, _ := agent.AsNumber(t["estimated_hours"])
		p.save(&store.Task{
			ProjectID:   p.projectID,
			Title:       title,
			Description: agent.Str(t, "description"),
			Assignee:    agent.Str(t, "assignee"),
			Status:      agent.Str(t, "status"),
			Priority:    agent.Str(t, "priority"),
			DueDate:     agent.Str(t, "due_date"),
			Hours:       hours,
			Metadata: map[string]any{
				"dependencies": t["dependencies"],
				"source_agent": p.agent,
			},
		})
	}
}

func persistCalendar(p *persister, _ agent.Payload, out agent.Result) {
	entries := agent.AsObjects(out["calendar"])
	if len(entries) == 0 || !p.needProject("calendar") {
		return
	}
	for _, e := range entries {
		title := agent.Str(e, "title")
		if title == "" {
			continue
		}
		if ch := agent.Str(e, "channel"); ch != "" {
			title = ch + ": " + title
		}
		p.save(&store.Task{
			ProjectID: p.projectID,
			Title:     title,
			Assignee:  agent.Str(e, "owner"),
			Status:    "planned",
			DueDate:   agent.Str(e, "date"),
			Metadata: map[string]any{
				"channel":      agent.Str(e, "channel"),
				"format":       agent.Str(e, "format"),
				"source_agent": p.agent,
			},
		})
	}
}

func persistProposal(p *persister, _ agent.Payload, out agent.Result) {
	pricing := out.Object("pricing")
	total, ok := agent.AsNumber(pricing["total"])
	if !ok || !p.needProject("proposal value") {
		return
	}
	currency := agent.Str(pricing, "currency")
	if currency == "" {
		currency = "USD"
	}
	p.metric("proposal_value", total, currency, map[string]any{"title": out.String("title")})
}

func persistAssetScore(p *persister, _ agent.Payload, out agent.Result) {
	score, ok := out.Number("overall_score")
	if !ok || !p.needProject("asset score") {
		return
	}
	p.metric("asset_quality_score", score, "score", map[string]any{
		"issues":             len(out.List("issues")),
		"ready_for_delivery": out["ready_for_delivery"],
	})
}

func persistEstimate(p *persister, _ agent.Payload, out agent.Result) {
	hours, okHours := out.Number("estimated_hours")
	cost, okCost := out.Number("estimated_cost")
	if (!okHours && !okCost) || !p.needProject("estimate") {
		return
	}
	meta := map[string]any{"confidence": out.String("confidence")}
	if okHours {
		p.metric("estimated_hours", hours, "hours", meta)
	}
	if okCost {
		currency := out.String("currency")
		if currency == "" {
			currency = "USD"
		}
		p.metric("estimated_cost", cost, currency, meta)
	}
}

func persistPortalQuery(p *persister, in agent.Payload, out agent.Result) {
	if !p.needProject("portal message") {
		return
	}
	p.save(&store.Communication{
		ProjectID: p.projectID,
		ClientID:  in.String("client_id"),
		Message:   in.String("query"),
		Channel:   "portal",
		Metadata: map[string]any{
			"response": out.String("response"),
			"escalate": out["escalate"],
		},
	})
}

// persistTaskUpdates applies the optimizer's task updates to existing
// tasks. Unknown ids are reported, never created.
func persistTaskUpdates(p *persister, _ agent.Payload, out agent.Result) {
	for _, u := range agent.AsObjects(out["task_updates"]) {
		id := agent.Str(u, "task_id")
		if id == "" {
			continue
		}
		task, err := p.gateway.Task(p.ctx, id)
		if err != nil {
			p.warn("load task %s: %v", id, err)
			continue
		}
		if task == nil {
			p.warn("task %s not found", id)
			continue
		}
		if s := agent.Str(u, "status"); s != "" {
			task.Status = s
		}
		if s := agent.Str(u, "priority"); s != "" {
			task.Priority = s
		}
		if s := agent.Str(u, "assignee"); s != "" {
			task.Assignee = s
		}
		p.save(task)
	}
}

func persistSentiment(p *persister, in agent.Payload, out agent.Result) {
	if !p.needProject("sentiment") {
		return
	}
	scores := agent.AsObjects(out["messages"])
	defaultChannel := in.String("channel")
	if defaultChannel == "" {
		defaultChannel = "email"
	}

	for i, item := range in.List("communications") {
		text := agent.CommunicationText(item)
		if text == "" {
			continue
		}
		c := &store.Communication{
			ProjectID: p.projectID,
			ClientID:  in.String("client_id"),
			Message:   text,
			Channel:   defaultChannel,
		}
		if obj, ok := item.(map[string]any); ok {
			if s := agent.Str(obj, "client_id"); s != "" {
				c.ClientID = s
			}
			if s := agent.Str(obj, "channel"); s != "" {
				c.Channel = s
			}
		}
		if i < len(scores) {
			if score, ok := agent.AsNumber(scores[i]["score"]); ok {
				c.SentimentScore = &score
			}
			c.Metadata = map[string]any{"label": agent.Str(scores[i], "label")}
		}
		p.save(c)
	}

	if score, ok := out.Number("overall_score"); ok {
		p.metric("client_sentiment", score, "score", map[string]any{
			"label":      out.String("label"),
			"risk_level": out.String("risk_level"),
		})
	}
}

func blankTBD(s string) string {
	if strings.EqualFold(s, "tbd") {
		return ""
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
