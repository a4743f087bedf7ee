package tools

import (
	"fmt"
	"strconv"
	"strings"
)

// StringArg returns input[key] as a trimmed string. Numbers are formatted;
// anything else counts as missing.
func StringArg(input map[string]any, key string) string {
	switch v := input[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	}
	return ""
}

// IntArg returns input[key] as an int, or def when the key is absent.
func IntArg(input map[string]any, key string, def int) (int, error) {
	v, ok := input[key]
	if !ok || v == nil {
		return def, nil
	}
	switch t := v.(type) {
	case float64:
		return int(t), nil
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, fmt.Errorf("%s must be an integer, got %q", key, t)
		}
		return n, nil
	}
	return 0, fmt.Errorf("%s must be an integer, got %T", key, v)
}

// CopyInput returns a shallow copy of input. A nil input becomes an empty map.
func CopyInput(input map[string]any) map[string]any {
	out := make(map[string]any, len(input))
	for k, v := range input {
		out[k] = v
	}
	return out
}
