package policy

import "regexp"

type redactionRule struct {
	pattern *regexp.Regexp
	marker  string
}

// Rule order matters: cards run before phones so long digit runs are not
// reported as phone numbers.
var redactionRules = []redactionRule{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII masks common high-risk PII patterns.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, rule := range redactionRules {
		next := rule.pattern.ReplaceAllString(out, rule.marker)
		changed = changed || next != out
		out = next
	}
	return out, changed
}

// Redactor adapts RedactPII to the func(string) string hooks used when
// messages are persisted. A disabled Redactor returns input unchanged.
type Redactor struct {
	Enabled bool
}

func (r Redactor) Redact(input string) string {
	if !r.Enabled {
		return input
	}
	out, _ := RedactPII(input)
	return out
}
