package agent

import (
	"regexp"
	"slices"
	"strings"
)

var (
	emailRe    = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	urlRe      = regexp.MustCompile(`https?://[^\s<>"')]+`)
	phoneRe    = regexp.MustCompile(`\b\d{3}[-.]?\d{3}[-.]?\d{4}\b`)
	sentenceRe = regexp.MustCompile(`[.!?\n]+`)
)

var briefKeywords = map[string][]string{
	"goals":        {"goal", "objective", "aim", "target", "achieve", "want", "need"},
	"deliverables": {"deliver", "create", "design", "build", "develop", "produce"},
	"timelines":    {"deadline", "due", "timeline", "schedule", "urgent", "asap", "by "},
	"constraints":  {"budget", "limitation", "constraint", "requirement", "must not"},
}

// quickAnalysis is the regex pass run over the raw client text alongside
// the model call.
func quickAnalysis(text string) map[string][]string {
	out := map[string][]string{
		"contact_info": append(emailRe.FindAllString(text, -1), phoneRe.FindAllString(text, -1)...),
		"urls":         urlRe.FindAllString(text, -1),
	}
	for _, sentence := range sentenceRe.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		lower := strings.ToLower(sentence) + " "
		for group, keywords := range briefKeywords {
			for _, kw := range keywords {
				if strings.Contains(lower, kw) {
					out[group] = append(out[group], sentence)
					break
				}
			}
		}
	}
	return out
}

func enrichBrief(in Payload, out Result) {
	qa := quickAnalysis(in.String("text"))

	if contacts := qa["contact_info"]; len(contacts) > 0 {
		out["contact_information"] = contacts
	}
	if urls := qa["urls"]; len(urls) > 0 {
		out["reference_materials"] = urls
	}
	if isEmpty(out["requirements"]) && len(qa["deliverables"]) > 0 {
		out["requirements"] = toAnyList(qa["deliverables"])
	}
	if out.String("client_name") == "" {
		if name := in.String("client_name"); name != "" {
			out["client_name"] = name
		}
	}
	if goals := qa["goals"]; len(goals) > 0 {
		out["goal_statements"] = goals
	}
	if deadlines := qa["timelines"]; len(deadlines) > 0 && out["timeline"] == nil {
		out["timeline"] = map[string]any{"mentions": deadlines}
	}
	out["suggested_folder_structure"] = folderStructure(out)
}

func rememberBrief(_ Payload, out Result) Preferences {
	return Preferences{
		"project_type": out.String("project_type"),
		"last_project": out.String("project_title"),
	}
}

// folderStructure suggests a project directory layout by project type.
func folderStructure(brief Result) map[string]any {
	projectType := strings.ToLower(brief.String("project_type"))
	structure := map[string][]string{
		"01_project_brief":      {"brief.md", "requirements.txt", "timeline.md"},
		"02_research":           {"competitor_analysis", "target_audience", "references"},
		"03_concepts":           {"wireframes", "mockups", "prototypes"},
		"04_assets":             {"images", "fonts", "icons", "logos"},
		"05_final_deliverables": {"exports", "source_files", "documentation"},
		"06_communication":      {"client_feedback", "meeting_notes", "approvals"},
	}
	switch {
	case strings.Contains(projectType, "web"):
		structure["03_concepts"] = append(structure["03_concepts"], "site_map", "user_flows")
		structure["04_assets"] = append(structure["04_assets"], "graphics", "videos")
	case strings.Contains(projectType, "brand"), strings.Contains(projectType, "logo"):
		structure["03_concepts"] = []string{"logo_concepts", "brand_guidelines", "color_palettes"}
		structure["04_assets"] = []string{"logo_files", "brand_assets", "templates"}
	case strings.Contains(projectType, "marketing"):
		structure["03_concepts"] = []string{"campaign_concepts", "ad_designs", "content_plans"}
		structure["04_assets"] = []string{"ad_materials", "social_media", "print_materials"}
	}

	client := slug(brief.String("client_name"), "client")
	title := slug(brief.String("project_title"), "project")
	return map[string]any{
		"root_folder":       client + "_" + title,
		"structure":         structure,
		"naming_convention": "lowercase_with_underscores",
	}
}

func slug(s, fallback string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return fallback
	}
	return strings.Join(strings.Fields(s), "_")
}

func toAnyList(items []string) []any {
	out := make([]any, 0, len(items))
	for _, s := range slices.Compact(items) {
		out = append(out, s)
	}
	return out
}
