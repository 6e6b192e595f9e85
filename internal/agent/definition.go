package agent

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"github.com/mtzanidakis/studioflow/internal/apperr"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.New("prompts").Funcs(template.FuncMap{
	"render": render,
	"json":   toJSON,
}).ParseFS(promptFS, "prompts/*.tmpl"))

// render prints strings as-is and anything else as indented JSON.
func render(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return toJSON(v)
}

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Definition describes one agent. The prompt template is
// prompts/<Name>.tmpl, rendered with {Payload, Preferences}.
type Definition struct {
	Name        string
	Description string
	Fields      []Field
	// TextField receives free text from chat front-ends.
	TextField string
	// ReplyKeys must be present in the parsed reply; NonEmpty ones must
	// also hold a non-empty value.
	ReplyKeys []string
	NonEmpty  []string
	Model     string
	Notify    bool

	// MemoryKey names the payload field whose value keys remembered
	// preferences.
	MemoryKey string
	// Enrich adjusts the parsed reply before the reply keys are checked.
	Enrich func(in Payload, out Result)
	// Remember extracts the preferences to keep after a successful run.
	Remember func(in Payload, out Result) Preferences
}

type templateAgent struct {
	def      Definition
	provider Provider
	memory   Memory
}

// New builds an agent from def. A nil memory disables preference recall.
func New(def Definition, provider Provider, memory Memory) Agent {
	if memory == nil {
		memory = nopMemory{}
	}
	return &templateAgent{def: def, provider: provider, memory: memory}
}

func (a *templateAgent) Name() string { return a.def.Name }

func (a *templateAgent) Capabilities() Capabilities {
	return Capabilities{
		Name:        a.def.Name,
		Description: a.def.Description,
		Fields:      a.def.Fields,
		TextField:   a.def.TextField,
		ReplyKeys:   a.def.ReplyKeys,
		Notify:      a.def.Notify,
	}
}

func (a *templateAgent) Health() Health {
	if a.provider == nil || !a.provider.Configured() {
		return Health{Message: "AI provider not configured: set GEMINI_API_KEY"}
	}
	return Health{Healthy: true, ProviderConfigured: true}
}

func (a *templateAgent) Process(ctx context.Context, payload Payload) (Result, error) {
	in, err := validatePayload(a.def.Fields, payload)
	if err != nil {
		return nil, err
	}
	if a.provider == nil {
		return nil, apperr.New(apperr.KindProviderUnavailable, "AI provider is not configured").WithRemedy("set GEMINI_API_KEY")
	}

	memKey := ""
	if a.def.MemoryKey != "" {
		memKey = strings.ToLower(in.String(a.def.MemoryKey))
	}
	prefs, _ := a.memory.Recall(a.def.Name, memKey)

	prompt, err := a.prompt(in, prefs)
	if err != nil {
		return nil, err
	}

	reply, err := a.provider.Call(ctx, prompt, a.def.Model)
	if err != nil {
		return nil, err
	}

	out, err := parseReply(reply)
	if err != nil {
		slog.Debug("unparseable reply", "agent", a.def.Name, "reply", truncate(reply, 200))
		return nil, err
	}
	if a.def.Enrich != nil {
		a.def.Enrich(in, out)
	}
	if err := a.checkReply(out); err != nil {
		return nil, err
	}

	if a.def.Remember != nil && memKey != "" {
		a.memory.Remember(a.def.Name, memKey, a.def.Remember(in, out))
	}
	return out, nil
}

func (a *templateAgent) prompt(in Payload, prefs Preferences) (string, error) {
	var buf bytes.Buffer
	err := prompts.ExecuteTemplate(&buf, a.def.Name+".tmpl", map[string]any{
		"Payload":     map[string]any(in),
		"Preferences": prefs,
	})
	if err != nil {
		return "", fmt.Errorf("render prompt for %s: %w", a.def.Name, err)
	}
	return buf.String(), nil
}

func (a *templateAgent) checkReply(out Result) error {
	for _, key := range a.def.ReplyKeys {
		if _, ok := out[key]; !ok {
			return apperr.Parse(fmt.Errorf("missing key %q", key), "model reply is incomplete")
		}
	}
	for _, key := range a.def.NonEmpty {
		if isEmpty(out[key]) {
			return apperr.Parse(fmt.Errorf("empty value for %q", key), "model reply is incomplete")
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
