package agent

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"github.com/mtzanidakis/studioflow/internal/apperr"
)

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// parseReply extracts the JSON object from a model reply. Models sometimes
// wrap it in a markdown fence or surround it with prose.
func parseReply(text string) (Result, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.Parse(errors.New("empty reply"), "decode model reply")
	}
	text = stripFence(text)

	out, err := decodeObject(text)
	if err == nil {
		return out, nil
	}
	if m := jsonObject.FindString(text); m != "" && m != text {
		if out, err2 := decodeObject(m); err2 == nil {
			return out, nil
		}
	}
	return nil, apperr.Parse(err, "decode model reply")
}

func decodeObject(s string) (Result, error) {
	var out Result
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errors.New("reply is null")
	}
	return out, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
