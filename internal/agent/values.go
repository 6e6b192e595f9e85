package agent

import (
	"fmt"
	"strconv"
	"strings"
)

func asString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case float64, int, int64, bool:
		return fmt.Sprint(s)
	}
	return ""
}

// asList normalises the list shapes produced by JSON and YAML decoding.
func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}
		return out
	}
	return nil
}

func asObject(v any) map[string]any {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	if m, ok := v.(Payload); ok {
		return m
	}
	if m, ok := v.(Result); ok {
		return m
	}
	return nil
}

// AsNumber converts JSON numbers and numeric strings such as "$4,500" or
// "12.5 hours" to float64.
func AsNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(n)
		s = strings.TrimLeft(s, "$€£")
		s = strings.ReplaceAll(s, ",", "")
		if i := strings.IndexByte(s, ' '); i > 0 {
			s = s[:i]
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	return 0, false
}

// AsStrings returns the string elements of a list value.
func AsStrings(v any) []string {
	var out []string
	for _, item := range asList(v) {
		if s := strings.TrimSpace(asString(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AsObjects returns the object elements of a list value.
func AsObjects(v any) []map[string]any {
	var out []map[string]any
	for _, item := range asList(v) {
		if m := asObject(item); m != nil {
			out = append(out, m)
		}
	}
	return out
}

// Str reads a string field of a decoded JSON object.
func Str(m map[string]any, key string) string {
	return strings.TrimSpace(asString(m[key]))
}
