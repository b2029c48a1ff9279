package tool

import (
	"fmt"
	"math"
)

// Validate checks params against a tool's input contract and returns one
// message per violation; an empty slice means valid. The check is
// deliberately shallow — required presence, primitive type, enum
// membership — because the boundary is a fixed internal catalog, not an
// open API. Fields not declared in the schema are ignored so workers can
// accept superset payloads; nil values count as "not provided" and skip
// type and enum checks.
func Validate(params Params, schema InputSchema) []string {
	var errs []string

	for _, field := range schema.Required {
		if v, ok := params[field]; !ok || v == nil {
			msg := fmt.Sprintf("Missing required field: '%s'", field)
			if desc := schema.Properties[field].Description; desc != "" {
				msg += " (" + desc + ")"
			}
			errs = append(errs, msg)
		}
	}

	for field, prop := range schema.Properties {
		value, ok := params[field]
		if !ok || value == nil {
			continue
		}

		if !typeMatches(prop.Type, value) {
			errs = append(errs, fmt.Sprintf("Field '%s' must be a %s, got %T", field, prop.Type, value))
			continue
		}

		if len(prop.Enum) > 0 && !enumContains(prop.Enum, value) {
			errs = append(errs, fmt.Sprintf("Field '%s' must be one of %v, got '%v'", field, prop.Enum, value))
		}
	}

	return errs
}

// typeMatches checks a decoded JSON value against a declared primitive
// type. JSON numbers decode as float64, so "integer" accepts any
// whole-valued float.
func typeMatches(declared string, value any) bool {
	switch declared {
	case "string":
		_, ok := value.(string)
		return ok
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "number":
		return isNumber(value)
	case "integer":
		switch n := value.(type) {
		case int, int32, int64:
			return true
		case float64:
			return n == math.Trunc(n)
		case float32:
			return float64(n) == math.Trunc(float64(n))
		default:
			return false
		}
	case "object":
		_, ok := value.(map[string]any)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	default:
		// Unknown declared types never reject; the schema author owns them.
		return true
	}
}

func isNumber(value any) bool {
	switch value.(type) {
	case int, int32, int64, float32, float64:
		return true
	default:
		return false
	}
}

// enumContains compares by rendered literal so 2.0 matches an enum entry
// of 2 after a JSON round-trip.
func enumContains(enum []any, value any) bool {
	for _, allowed := range enum {
		if allowed == value {
			return true
		}
		if fmt.Sprintf("%v", allowed) == fmt.Sprintf("%v", value) {
			return true
		}
	}
	return false
}
