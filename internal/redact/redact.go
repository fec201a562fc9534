// Package redact implements the audit-log redaction rules from
// spec.md §6: email-like substrings and api_key|token|secret=<value>
// patterns are replaced before a ToolCallLog is written.
package redact

import "regexp"

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	tokenRe = regexp.MustCompile(`(?i)(api_key|token|secret)=([A-Za-z0-9_-]+)`)
)

// String redacts emails and api_key/token/secret assignments from s.
func String(s string) string {
	s = emailRe.ReplaceAllString(s, "[redacted-email]")
	s = tokenRe.ReplaceAllString(s, "${1}=[redacted]")
	return s
}

// Value recursively redacts a decoded JSON value (the output of
// json.Unmarshal into `any`): strings are redacted, maps and slices are
// walked, everything else is returned unchanged. Value is idempotent:
// Value(Value(x)) == Value(x) for all x, because redaction output never
// re-matches either pattern.
func Value(v any) any {
	switch val := v.(type) {
	case string:
		return String(val)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = Value(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = Value(item)
		}
		return out
	default:
		return v
	}
}
