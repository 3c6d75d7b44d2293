package data

import (
	"strconv"
	"strings"
)

// Coerce converts a raw text cell into a typed value: numbers to float64,
// True/False to bool, None or empty to nil, "[a, b]" to a list. Anything else
// stays a string (labels, bus names, file references).
func Coerce(s string) any {
	s = strings.TrimSpace(s)
	switch s {
	case "", "None", "none", "null", "NULL":
		return nil
	case "True", "true", "TRUE":
		return true
	case "False", "false", "FALSE":
		return false
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if strings.HasPrefix(s, "[") && strings.HasSuffix(s, "]") {
		inner := strings.TrimSpace(s[1 : len(s)-1])
		if inner == "" {
			return []any{}
		}
		parts := strings.Split(inner, ",")
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = Coerce(strings.Trim(strings.TrimSpace(p), `'"`))
		}
		return out
	}
	return s
}

// normalize makes values decoded from YAML look like values decoded from
// JSON: integers become float64 and nested mappings use string keys.
func normalize(v any) any {
	switch x := v.(type) {
	case map[string]any:
		for k, vv := range x {
			x[k] = normalize(vv)
		}
		return x
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, vv := range x {
			out[toString(k)] = normalize(vv)
		}
		return out
	case []any:
		for i, vv := range x {
			x[i] = normalize(vv)
		}
		return x
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case uint64:
		return float64(x)
	default:
		return v
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		return strconv.FormatBool(x)
	default:
		return ""
	}
}
