package agent

import (
	"strings"

	"github.com/mtzanidakis/studioflow/internal/apperr"
)

type Shape string

const (
	ShapeString Shape = "string"
	ShapeList   Shape = "list"
	ShapeObject Shape = "object"
	ShapeAny    Shape = "any"
)

// Field is a required payload field. Aliases are accepted in place of Name
// and normalised to it.
type Field struct {
	Name    string   `json:"name"`
	Shape   Shape    `json:"shape"`
	Aliases []string `json:"aliases,omitempty"`
}

// validatePayload checks that every required field is present, non-empty
// and of the expected shape. It returns a copy with aliases resolved.
func validatePayload(fields []Field, payload Payload) (Payload, error) {
	if payload == nil {
		payload = Payload{}
	}
	out := payload.Clone()

	var missing []string
	for _, f := range fields {
		v, ok := out[f.Name]
		if !ok || isEmpty(v) {
			for _, alias := range f.Aliases {
				if av, found := out[alias]; found && !isEmpty(av) {
					v, ok = av, true
					out[f.Name] = av
					break
				}
			}
		}
		if !ok || isEmpty(v) {
			missing = append(missing, f.Name)
			continue
		}
		if err := checkShape(f, v); err != nil {
			return nil, err
		}
	}
	if len(missing) > 0 {
		return nil, apperr.Validation("missing required fields: %s", strings.Join(missing, ", ")).
			WithRemedy("provide " + strings.Join(missing, ", ") + " in the payload")
	}
	return out, nil
}

func checkShape(f Field, v any) error {
	switch f.Shape {
	case ShapeString:
		if _, ok := v.(string); !ok {
			return apperr.Validation("field %q must be a string", f.Name)
		}
	case ShapeList:
		if asList(v) == nil {
			return apperr.Validation("field %q must be a list", f.Name)
		}
	case ShapeObject:
		if asObject(v) == nil {
			return apperr.Validation("field %q must be an object", f.Name)
		}
	}
	return nil
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case []string:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
}
