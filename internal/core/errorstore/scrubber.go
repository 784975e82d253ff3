package errorstore

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const redacted = "[REDACTED]"

var messageScrubPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|token|password|passwd|secret|credential)\s*[=:]\s*['"]?[^\s'",]+['"]?`),
	regexp.MustCompile(`(?i)(authorization|bearer)\s*[=:]\s*['"]?[\w\-.]+['"]?(\s+['"]?[\w\-.]+['"]?)?`),
	regexp.MustCompile(`(?i)sk-[a-zA-Z0-9_-]{20,}`),
	regexp.MustCompile(`gh[po]_[a-zA-Z0-9]{36}`),
	regexp.MustCompile(`github_pat_[a-zA-Z0-9_]{22,}`),
	regexp.MustCompile(`xox[baprs]-[a-zA-Z0-9\-]{10,}`),
	regexp.MustCompile(`eyJ[a-zA-Z0-9_-]*\.eyJ[a-zA-Z0-9_-]*\.[a-zA-Z0-9_-]*`),
}

var sensitiveKeys = []string{"token", "secret", "password", "passwd", "credential", "auth", "apikey", "api_key"}

// Scrubber removes credential-like substrings before records are persisted.
type Scrubber struct {
	maxMessage int
}

func NewScrubber() *Scrubber {
	return &Scrubber{maxMessage: 4096}
}

// ScrubMessage truncates and redacts msg.
func (s *Scrubber) ScrubMessage(msg string) string {
	if len(msg) > s.maxMessage {
		msg = truncateWithMarker(msg, s.maxMessage)
	}
	for _, p := range messageScrubPatterns {
		msg = p.ReplaceAllString(msg, redacted)
	}
	return msg
}

// ScrubContext redacts values under sensitive keys and scrubs the rest.
func (s *Scrubber) ScrubContext(ctx map[string]string) map[string]string {
	if ctx == nil {
		return nil
	}
	out := make(map[string]string, len(ctx))
	for k, v := range ctx {
		if isSensitiveKey(k) {
			out[k] = redacted
			continue
		}
		out[k] = s.ScrubMessage(v)
	}
	return out
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, p := range sensitiveKeys {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func truncateWithMarker(s string, maxLen int) string {
	const marker = "...[TRUNCATED]"
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= len(marker) {
		return marker[:maxLen]
	}
	cut := maxLen - len(marker)
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + marker
}
