package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the canonical placeholder used for sensitive fields in logs.
const RedactedValue = "[REDACTED]"

// sensitiveFragments mark attribute keys whose values must never reach a log
// sink, whatever package emits them.
var sensitiveFragments = []string{"secret", "token", "authorization", "password"}

// IsSensitive reports whether key names a credential.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, fragment := range sensitiveFragments {
		if strings.Contains(normalized, fragment) {
			return true
		}
	}
	return false
}

// MaskValue returns the canonical redacted placeholder for non-empty values. Empty values
// are returned unchanged to avoid introducing noise in logs.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

func redact(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) || attr.Value.Kind() != slog.KindString {
		return attr
	}
	return slog.String(attr.Key, MaskValue(attr.Value.String()))
}
