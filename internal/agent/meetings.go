package agent

import (
	"regexp"
	"strings"
)

var actionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?im)^\s*(?:[-*]\s*)?action(?: item)?:?\s+(.+)$`),
	regexp.MustCompile(`(?im)^\s*(?:[-*]\s*)?todo:?\s+(.+)$`),
	regexp.MustCompile(`(?im)^\s*(?:[-*]\s*)?follow up:?\s+(.+)$`),
	regexp.MustCompile(`(?im)^\s*(?:[-*]\s*)?next steps?:?\s+(.+)$`),
}

var assignedRe = regexp.MustCompile(`@(\w+)\s+will\s+([^.\n]+)`)

type actionItem struct {
	task     string
	assignee string
}

// extractActions finds action items written with the usual meeting
// shorthand ("TODO:", "Action:", "@sam will ...").
func extractActions(notes string) []actionItem {
	var out []actionItem
	seen := map[string]bool{}
	add := func(task, assignee string) {
		task = strings.TrimSpace(task)
		key := strings.ToLower(task)
		if task == "" || seen[key] {
			return
		}
		seen[key] = true
		out = append(out, actionItem{task: task, assignee: assignee})
	}
	for _, re := range actionPatterns {
		for _, m := range re.FindAllStringSubmatch(notes, -1) {
			add(m[1], "TBD")
		}
	}
	for _, m := range assignedRe.FindAllStringSubmatch(notes, -1) {
		add(m[2], m[1])
	}
	return out
}

// enrichMeeting adds regex-found action items the model missed.
func enrichMeeting(in Payload, out Result) {
	items := asList(out["action_items"])
	known := map[string]bool{}
	for _, item := range items {
		if m := asObject(item); m != nil {
			known[strings.ToLower(Str(m, "task"))] = true
			if Str(m, "priority") == "" {
				m["priority"] = "medium"
			}
		}
	}
	for _, a := range extractActions(in.String("meeting_notes")) {
		if known[strings.ToLower(a.task)] {
			continue
		}
		items = append(items, map[string]any{
			"task":     a.task,
			"assignee": a.assignee,
			"due_date": "TBD",
			"priority": "medium",
			"source":   "pattern",
		})
	}
	if items == nil {
		items = []any{}
	}
	out["action_items"] = items
}

func enrichTaskboard(_ Payload, out Result) {
	for _, t := range AsObjects(out["tasks"]) {
		if Str(t, "priority") == "" {
			t["priority"] = "medium"
		}
		if Str(t, "status") == "" {
			t["status"] = "todo"
		}
	}
}
