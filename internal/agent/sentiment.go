package agent

import (
	"strings"
)

var (
	positiveIndicators = []string{
		"excellent", "amazing", "perfect", "love", "great", "fantastic", "wonderful",
		"impressed", "exceeded expectations", "thrilled", "delighted", "outstanding",
	}
	negativeIndicators = []string{
		"disappointed", "frustrated", "concerned", "worried", "unhappy", "dissatisfied",
		"poor", "terrible", "awful", "unacceptable", "failed", "missed deadline",
	}
)

// indicatorScore scores text in [-1, 1] from indicator word counts.
func indicatorScore(text string) float64 {
	lower := strings.ToLower(text)
	var pos, neg int
	for _, w := range positiveIndicators {
		pos += strings.Count(lower, w)
	}
	for _, w := range negativeIndicators {
		neg += strings.Count(lower, w)
	}
	if pos+neg == 0 {
		return 0
	}
	return float64(pos-neg) / float64(pos+neg)
}

func sentimentLabel(score float64) string {
	switch {
	case score >= 0.25:
		return "positive"
	case score <= -0.25:
		return "negative"
	}
	return "neutral"
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(hi, v))
}

// CommunicationText returns the message text of a communication item,
// which is either a plain string or an object with a message/text field.
func CommunicationText(item any) string {
	if s, ok := item.(string); ok {
		return strings.TrimSpace(s)
	}
	m := asObject(item)
	if m == nil {
		return ""
	}
	if s := Str(m, "message"); s != "" {
		return s
	}
	return Str(m, "text")
}

// enrichSentiment clamps scores, derives missing labels and makes sure
// there is one per-message entry for every input communication.
func enrichSentiment(in Payload, out Result) {
	comms := in.List("communications")

	perMessage := AsObjects(out["messages"])
	if len(perMessage) != len(comms) {
		perMessage = make([]map[string]any, len(comms))
		for i, c := range comms {
			perMessage[i] = map[string]any{"index": i, "score": indicatorScore(CommunicationText(c))}
		}
	}
	var sum float64
	for _, m := range perMessage {
		score, _ := AsNumber(m["score"])
		score = clamp(score, -1, 1)
		m["score"] = score
		if Str(m, "label") == "" {
			m["label"] = sentimentLabel(score)
		}
		sum += score
	}
	list := make([]any, len(perMessage))
	for i, m := range perMessage {
		list[i] = m
	}
	out["messages"] = list

	score, ok := out.Number("overall_score")
	if !ok && len(perMessage) > 0 {
		score = sum / float64(len(perMessage))
	}
	score = clamp(score, -1, 1)
	out["overall_score"] = score
	if out.String("label") == "" {
		out["label"] = sentimentLabel(score)
	}
}

func enrichAssetScore(_ Payload, out Result) {
	if score, ok := out.Number("overall_score"); ok {
		out["overall_score"] = clamp(score, 0, 100)
	}
	if out["issues"] == nil {
		out["issues"] = []any{}
	}
}
