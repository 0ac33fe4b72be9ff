package reliability

import "regexp"

var (
	googleKeyPattern = regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`)
	keyParamPattern  = regexp.MustCompile(`(?i)([?&](?:key|api_key|access_token)=)[^&\s"';]+`)
	bearerPattern    = regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9._\-]+`)
	emailPattern     = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// Redact masks credentials and email addresses in text that leaves the
// process, such as error details and log lines.
func Redact(input string) (redacted string, changed bool) {
	out := input

	// Query parameters first so the key pattern does not split them.
	next := keyParamPattern.ReplaceAllString(out, "${1}[REDACTED]")
	changed = changed || next != out
	out = next

	next = googleKeyPattern.ReplaceAllString(out, "[REDACTED_KEY]")
	changed = changed || next != out
	out = next

	next = bearerPattern.ReplaceAllString(out, "${1}[REDACTED]")
	changed = changed || next != out
	out = next

	next = emailPattern.ReplaceAllString(out, "[REDACTED_EMAIL]")
	changed = changed || next != out
	out = next

	return out, changed
}

// RedactedError returns err's message with Redact applied.
func RedactedError(err error) string {
	if err == nil {
		return ""
	}
	out, _ := Redact(err.Error())
	return out
}
