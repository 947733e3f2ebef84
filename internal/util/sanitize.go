package util

import (
	"fmt"
	"html"
	"strings"
)

// SanitizeInput escapes HTML/script-like characters
func SanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return html.EscapeString(s)
}

// ContainsSuspicious reports whether a string carries injection-shaped
// content. Checked before generic payloads are accepted.
func ContainsSuspicious(s string) bool {
	badChars := []string{"<", ">", "$", "{", "}", "script", "onerror", "onload"}
	for _, c := range badChars {
		if strings.Contains(strings.ToLower(s), c) {
			return true
		}
	}
	return false
}

const maxSanitizeDepth = 8

// SanitizeMap walks an arbitrary payload and escapes every string value.
// Returns an error when a value carries suspicious content or the payload
// nests deeper than maxSanitizeDepth.
func SanitizeMap(payload map[string]any) (map[string]any, error) {
	return sanitizeMapDepth(payload, 0)
}

func sanitizeMapDepth(payload map[string]any, depth int) (map[string]any, error) {
	if payload == nil {
		return nil, nil
	}
	if depth >= maxSanitizeDepth {
		return nil, fmt.Errorf("payload nested deeper than %d levels", maxSanitizeDepth)
	}
	out := make(map[string]any, len(payload))
	for key, value := range payload {
		if ContainsSuspicious(key) {
			return nil, fmt.Errorf("suspicious content in key %q", key)
		}
		clean, err := sanitizeValue(value, depth+1)
		if err != nil {
			return nil, err
		}
		out[key] = clean
	}
	return out, nil
}

func sanitizeValue(value any, depth int) (any, error) {
	switch v := value.(type) {
	case string:
		if ContainsSuspicious(v) {
			return nil, fmt.Errorf("suspicious content in value %q", v)
		}
		return SanitizeInput(v), nil
	case map[string]any:
		return sanitizeMapDepth(v, depth)
	case []any:
		if depth >= maxSanitizeDepth {
			return nil, fmt.Errorf("payload nested deeper than %d levels", maxSanitizeDepth)
		}
		out := make([]any, len(v))
		for i, item := range v {
			clean, err := sanitizeValue(item, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = clean
		}
		return out, nil
	default:
		// numbers, bools, nils pass through untouched
		return value, nil
	}
}
