package provider

// ModelLimits describes the published quotas of a Gemini model.
type ModelLimits struct {
	MaxInputTokens    int `json:"max_input_tokens"`
	MaxOutputTokens   int `json:"max_output_tokens"`
	RequestsPerMinute int `json:"requests_per_minute"`
}

var modelLimits = map[string]ModelLimits{
	"gemini-2.5-flash": {MaxInputTokens: 1_000_000, MaxOutputTokens: 8192, RequestsPerMinute: 15},
	"gemini-2.5-pro":   {MaxInputTokens: 2_000_000, MaxOutputTokens: 8192, RequestsPerMinute: 2},
	"gemini-1.5-flash": {MaxInputTokens: 1_000_000, MaxOutputTokens: 8192, RequestsPerMinute: 15},
	"gemini-1.5-pro":   {MaxInputTokens: 2_000_000, MaxOutputTokens: 8192, RequestsPerMinute: 2},
}

// Limits returns the limits for model, falling back to the flash tier
// for unknown names.
func Limits(model string) ModelLimits {
	if l, ok := modelLimits[model]; ok {
		return l
	}
	return modelLimits["gemini-2.5-flash"]
}

// EstimateTokens is a rough token count (about four characters per token).
func EstimateTokens(text string) int {
	return len(text) / 4
}
