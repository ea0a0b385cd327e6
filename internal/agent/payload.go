package agent

import "strings"

// Payload is the structured result of one stage attempt. Its schema is
// agent-defined and opaque to the audit log and orchestrator, except for the
// few well-known keys accessed through the helpers below.
type Payload map[string]any

// ErrKey marks a payload as an explicit error result.
const ErrKey = "error"

// VerifiedKey carries a checker's verdict.
const VerifiedKey = "verified"

// ErrIndicator returns the payload's error message, if any.
func (p Payload) ErrIndicator() (string, bool) {
	v, ok := p[ErrKey]
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, true
}

// Verified reports whether the payload carries an explicit verified=true.
func (p Payload) Verified() bool {
	return p.Bool(VerifiedKey)
}

// String returns the string value at key, or "" when absent or mistyped.
func (p Payload) String(key string) string {
	s, _ := p[key].(string)
	return s
}

// Bool returns the bool value at key, or false when absent or mistyped.
func (p Payload) Bool(key string) bool {
	b, _ := p[key].(bool)
	return b
}

// Float returns the numeric value at key. JSON round-trips turn all numbers
// into float64, so int values are accepted too.
func (p Payload) Float(key string) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

// Int returns the numeric value at key truncated to int.
func (p Payload) Int(key string) int {
	return int(p.Float(key))
}

// Slice returns the list value at key, or nil.
func (p Payload) Slice(key string) []any {
	s, _ := p[key].([]any)
	return s
}

// Map returns the nested map at key, or nil.
func (p Payload) Map(key string) map[string]any {
	m, _ := p[key].(map[string]any)
	return m
}

// At resolves a dot-separated path into nested maps, so acceptance rules can
// reach values like "processing_summary.processed_files".
func (p Payload) At(path string) (any, bool) {
	parts := strings.Split(path, ".")
	current := p
	for i, part := range parts {
		v, ok := current[part]
		if !ok {
			return nil, false
		}
		if i == len(parts)-1 {
			return v, true
		}
		switch m := v.(type) {
		case map[string]any:
			current = m
		case Payload:
			current = map[string]any(m)
		default:
			return nil, false
		}
	}
	return nil, false
}

// FloatAt is Float with dotted-path resolution.
func (p Payload) FloatAt(path string) float64 {
	v, ok := p.At(path)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	}
	return 0
}

// LenAt is Len with dotted-path resolution.
func (p Payload) LenAt(path string) int {
	v, ok := p.At(path)
	if !ok {
		return 0
	}
	switch s := v.(type) {
	case []any:
		return len(s)
	case []map[string]any:
		return len(s)
	case []string:
		return len(s)
	case map[string]any:
		return len(s)
	}
	return 0
}

// Len returns the length of the list at key, tolerating both []any (after a
// JSON round trip) and concrete slices of maps (freshly built payloads).
func (p Payload) Len(key string) int {
	switch v := p[key].(type) {
	case []any:
		return len(v)
	case []map[string]any:
		return len(v)
	case []string:
		return len(v)
	case map[string]any:
		return len(v)
	}
	return 0
}
