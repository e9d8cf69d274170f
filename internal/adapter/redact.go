package adapter

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "<redacted>"

var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`gsk_[A-Za-z0-9]{16,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9_-]{16,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/=-]{8,}`),
}

// sanitize strips apiKey and anything shaped like a provider key from msg
// and caps the result at maxLogRunes.
func sanitize(msg, apiKey string) string {
	if key := strings.TrimSpace(apiKey); key != "" {
		msg = strings.ReplaceAll(msg, key, redactedPlaceholder)
	}
	for _, p := range secretPatterns {
		msg = p.ReplaceAllString(msg, redactedPlaceholder)
	}
	return truncate(msg, maxLogRunes)
}

const maxLogRunes = 2000

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
