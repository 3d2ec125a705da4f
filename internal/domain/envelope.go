package domain

import (
	"encoding/json"
	"fmt"
)

// RequestEnvelope is the per-call payload sent to the AI service.
type RequestEnvelope map[string]any

// ResponseEnvelope is the decoded JSON object returned by the AI service.
// The client enforces no schema on it; every field may be absent.
type ResponseEnvelope map[string]any

// Value returns the raw value stored under key.
func (e ResponseEnvelope) Value(key string) (any, bool) {
	if e == nil {
		return nil, false
	}
	v, ok := e[key]
	return v, ok
}

// String returns the value under key as a string. Absent or null fields
// report false; non-string scalars are formatted.
func (e ResponseEnvelope) String(key string) (string, bool) {
	v, ok := e.Value(key)
	if !ok || v == nil {
		return "", false
	}
	switch t := v.(type) {
	case string:
		return t, true
	case json.Number:
		return t.String(), true
	case float64, bool, int, int64:
		return fmt.Sprint(t), true
	default:
		return "", false
	}
}

// FirstString returns the first key that holds a non-empty string.
func (e ResponseEnvelope) FirstString(keys ...string) string {
	for _, k := range keys {
		if s, ok := e.String(k); ok && s != "" {
			return s
		}
	}
	return ""
}
