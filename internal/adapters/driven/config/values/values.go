// Package values converts loosely typed configuration values, as decoded
// from TOML or set from the command line, to the types settings need.
// Every conversion yields the zero value when v does not fit.
package values

import (
	"fmt"
	"strings"
)

// String formats numbers and booleans; other non-strings yield "".
func String(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case int, int64, float64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

// Int accepts the integer types TOML and callers produce; floats truncate.
func Int(v any) int {
	switch v := v.(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Float widens integers, so "requests_per_second = 5" reads as 5.0.
func Float(v any) float64 {
	switch v := v.(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

func Bool(v any) bool {
	b, _ := v.(bool)
	return b
}

// Strings accepts []string, TOML arrays of strings and comma separated
// strings. Non-string array items and blank parts are dropped.
func Strings(v any) []string {
	switch v := v.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		var out []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		return out
	default:
		return nil
	}
}
