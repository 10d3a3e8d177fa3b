// Package ingest turns chat turns into memories: cadence tracking, quality
// scoring, redaction, dedup and persistence, all off the chat hot path.
package ingest

import (
	"fmt"
	"regexp"
)

// Redaction runs before storage; raw PII never reaches a row. The map keeps
// placeholder -> kind so audits can report what was stripped without keeping
// the original value.
var redactionPatterns = []struct {
	kind string
	re   *regexp.Regexp
}{
	{"EMAIL", regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{"PHONE", regexp.MustCompile(`\+?\d{1,3}[\s.\-]?\(?\d{2,4}\)?[\s.\-]?\d{3,4}[\s.\-]?\d{3,4}`)},
	// Provider-style secret prefixes and long opaque tokens
	{"APIKEY", regexp.MustCompile(`\b(?:sk|pk|rk|ghp|gho|xox[bpas])[-_][A-Za-z0-9_\-]{16,}\b`)},
	{"APIKEY", regexp.MustCompile(`\b[A-Za-z0-9_\-]{32,}\b`)},
	{"CARD", regexp.MustCompile(`\b(?:\d[ \-]?){13,16}\b`)},
	{"SSN", regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
}

// Redact replaces PII spans with stable placeholders and returns the
// redaction map (placeholder -> kind).
func Redact(content string) (string, map[string]string) {
	redactionMap := make(map[string]string)
	counts := make(map[string]int)

	for _, p := range redactionPatterns {
		content = p.re.ReplaceAllStringFunc(content, func(string) string {
			counts[p.kind]++
			placeholder := fmt.Sprintf("[%s_%d]", p.kind, counts[p.kind])
			redactionMap[placeholder] = p.kind
			return placeholder
		})
	}

	if len(redactionMap) == 0 {
		return content, nil
	}
	return content, redactionMap
}
