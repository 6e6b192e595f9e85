package agent

import "strings"

// The twelve agent identifiers.
const (
	MeetingNotesProcessor = "meeting_notes_processor"
	CreativeBriefParser   = "creative_brief_parser"
	TaskboardGenerator    = "taskboard_generator"
	BrandingGenerator     = "branding_generator"
	ProposalGenerator     = "proposal_generator"
	ContentPlanGenerator  = "content_plan_generator"
	AssetValidator        = "asset_validator"
	ClientPortalAssistant = "client_portal_assistant"
	DeliverablesPackager  = "deliverables_packager"
	AnalyticsEstimator    = "analytics_estimator"
	WorkflowOptimizer     = "workflow_optimizer"
	SentimentAnalyzer     = "sentiment_analyzer"
)

var briefField = Field{Name: "brief", Shape: ShapeAny}

// Definitions returns the built-in agent definitions.
func Definitions() []Definition {
	return []Definition{
		{
			Name:        MeetingNotesProcessor,
			Description: "Turns raw meeting notes into a summary, decisions and assigned action items",
			Fields:      []Field{{Name: "meeting_notes", Shape: ShapeString, Aliases: []string{"text", "notes"}}},
			TextField:   "meeting_notes",
			ReplyKeys:   []string{"summary", "action_items"},
			Enrich:      enrichMeeting,
		},
		{
			Name:        CreativeBriefParser,
			Description: "Parses unstructured client communication into a structured creative brief",
			Fields:      []Field{{Name: "text", Shape: ShapeString, Aliases: []string{"client_input"}}},
			TextField:   "text",
			ReplyKeys:   []string{"project_title", "requirements"},
			NonEmpty:    []string{"project_title", "requirements"},
			MemoryKey:   "client_name",
			Enrich:      enrichBrief,
			Remember:    rememberBrief,
		},
		{
			Name:        TaskboardGenerator,
			Description: "Breaks a brief into a prioritised taskboard with estimates",
			Fields:      []Field{briefField},
			TextField:   "brief",
			ReplyKeys:   []string{"tasks"},
			Enrich:      enrichTaskboard,
		},
		{
			Name:        BrandingGenerator,
			Description: "Proposes brand names, colour palettes, typography and voice",
			Fields:      []Field{briefField},
			TextField:   "brief",
			ReplyKeys:   []string{"brand_names", "color_palette"},
		},
		{
			Name:        ProposalGenerator,
			Description: "Drafts a client proposal with scope, timeline and pricing",
			Fields:      []Field{briefField},
			TextField:   "brief",
			ReplyKeys:   []string{"title", "scope", "pricing"},
			Notify:      true,
		},
		{
			Name:        ContentPlanGenerator,
			Description: "Builds a content calendar across channels",
			Fields:      []Field{briefField},
			TextField:   "brief",
			ReplyKeys:   []string{"calendar"},
			MemoryKey:   "client_name",
			Remember:    rememberChannels,
		},
		{
			Name:        AssetValidator,
			Description: "Reviews delivered assets against the brief and scores their quality",
			Fields:      []Field{{Name: "assets", Shape: ShapeList}, briefField},
			TextField:   "assets",
			ReplyKeys:   []string{"overall_score", "issues"},
			Enrich:      enrichAssetScore,
		},
		{
			Name:        ClientPortalAssistant,
			Description: "Answers client questions about project status and next steps",
			Fields:      []Field{{Name: "query", Shape: ShapeString, Aliases: []string{"text", "question"}}},
			TextField:   "query",
			ReplyKeys:   []string{"response"},
		},
		{
			Name:        DeliverablesPackager,
			Description: "Plans the final delivery package, folder structure and handoff notes",
			Fields:      []Field{{Name: "assets", Shape: ShapeList}, {Name: "project_info", Shape: ShapeObject}},
			TextField:   "assets",
			ReplyKeys:   []string{"package_name", "structure"},
		},
		{
			Name:        AnalyticsEstimator,
			Description: "Estimates effort, cost and risk for a brief",
			Fields:      []Field{briefField},
			TextField:   "brief",
			ReplyKeys:   []string{"estimated_hours", "estimated_cost"},
		},
		{
			Name:        WorkflowOptimizer,
			Description: "Finds bottlenecks in a project's workflow and recommends task changes",
			Fields:      []Field{{Name: "project_data", Shape: ShapeObject}},
			TextField:   "project_data",
			ReplyKeys:   []string{"recommendations"},
		},
		{
			Name:        SentimentAnalyzer,
			Description: "Scores client communications for sentiment and relationship risk",
			Fields:      []Field{{Name: "communications", Shape: ShapeList}},
			TextField:   "communications",
			ReplyKeys:   []string{"overall_score", "label"},
			Notify:      true,
			Enrich:      enrichSentiment,
		},
	}
}

// Catalog builds every built-in agent.
func Catalog(provider Provider, memory Memory) []Agent {
	defs := Definitions()
	out := make([]Agent, 0, len(defs))
	for _, def := range defs {
		out = append(out, New(def, provider, memory))
	}
	return out
}

func rememberChannels(_ Payload, out Result) Preferences {
	var channels []string
	for _, item := range AsObjects(out["calendar"]) {
		if ch := Str(item, "channel"); ch != "" && !containsFold(channels, ch) {
			channels = append(channels, ch)
		}
	}
	if len(channels) == 0 {
		return nil
	}
	return Preferences{"channels": strings.Join(channels, ", ")}
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
