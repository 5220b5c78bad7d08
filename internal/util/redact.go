package util

import "regexp"

var (
	reEmail    = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	reToken    = regexp.MustCompile(`(?i)\b(api[_-]?key|secret|token|password|key)(["']?\s*[=:]\s*["']?)[A-Za-z0-9/+_\-.]{8,}`)
	reAccessID = regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`)
)

// RedactPII masks e-mail addresses, AWS access key ids and values assigned
// to secret-looking keys.
func RedactPII(s string) string {
	s = reEmail.ReplaceAllString(s, "[redacted-email]")
	s = reAccessID.ReplaceAllString(s, "[redacted-key-id]")
	s = reToken.ReplaceAllString(s, "${1}${2}[redacted]")
	return s
}
