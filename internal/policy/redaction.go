package policy

import "regexp"

var (
	urlPasswordPattern = regexp.MustCompile(`([a-zA-Z][a-zA-Z0-9+.\-]*://[^:/@\s]+):[^@/\s]+@`)
	bearerPattern      = regexp.MustCompile(`(?i)(bearer\s+)[a-z0-9._\-~+/]+=*`)
	apiKeyPattern      = regexp.MustCompile(`(?i)((?:api[_-]?key|token|secret|password)["']?\s*[:=]\s*["']?)[^"'&\s,}]+`)
	emailPattern       = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// RedactSecrets masks credentials and addresses that upstream services
// echo back in error messages.
func RedactSecrets(input string) (redacted string, changed bool) {
	out := input

	// URL credentials first so the user@host part is not read as an email.
	next := urlPasswordPattern.ReplaceAllString(out, "${1}:[REDACTED]@")
	changed = changed || next != out
	out = next

	next = bearerPattern.ReplaceAllString(out, "${1}[REDACTED]")
	changed = changed || next != out
	out = next

	next = apiKeyPattern.ReplaceAllString(out, "${1}[REDACTED]")
	changed = changed || next != out
	out = next

	next = emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	return out, changed
}

// Redact is RedactSecrets without the change flag.
func Redact(input string) string {
	out, _ := RedactSecrets(input)
	return out
}
