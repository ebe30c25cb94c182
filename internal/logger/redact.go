package logger

import (
	"regexp"
	"strings"
)

const redacted = "[REDACTED]"

// sensitivePatterns capture a prefix group that is kept and a secret that is replaced
var sensitivePatterns = []*regexp.Regexp{
	// Authorization: Bearer <token>
	regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9\-._~+/]+=*)`),
	// JWTs outside of an Authorization header
	regexp.MustCompile(`()(eyJ[a-zA-Z0-9_-]{5,}\.eyJ[a-zA-Z0-9_-]{5,}\.[a-zA-Z0-9_-]{5,})`),
	// Google API keys
	regexp.MustCompile(`()(AIza[0-9A-Za-z\-_]{30,})`),
	// OpenRouter keys
	regexp.MustCompile(`()(sk-or-v1-[0-9A-Za-z]{16,})`),
	// key=, api_key=, token=, password= in URLs, forms and key: value pairs
	regexp.MustCompile(`(?i)((?:api[_-]?key|key|token|secret|passw(?:or)?d)["']?\s*[:=]\s*["']?)([^&;,\s"']{4,})`),
}

// sensitiveKeys mark field names whose values are never logged
var sensitiveKeys = []string{
	"password", "passwd", "secret", "token", "apikey", "api_key", "authorization", "cookie", "session",
}

// RedactSensitiveData replaces credentials embedded in input with [REDACTED]
func RedactSensitiveData(input string) string {
	if input == "" {
		return input
	}
	for _, pattern := range sensitivePatterns {
		input = pattern.ReplaceAllString(input, "${1}"+redacted)
	}
	return input
}

// IsSensitiveKey reports whether a field name should have its value hidden
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(k, s) {
			return true
		}
	}
	return false
}

// Redacted returns a string field whose value is hidden when the key is
// sensitive and scrubbed of embedded credentials otherwise.
func Redacted(key, value string) Field {
	if IsSensitiveKey(key) && value != "" {
		return String(key, redacted)
	}
	return String(key, RedactSensitiveData(value))
}
