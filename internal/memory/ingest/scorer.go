package ingest

import (
	"regexp"
	"strings"
	"unicode"
)

// QualityScore estimates how memory-worthy a message is, in [0,1]. It is a
// cheap heuristic: first-person facts and named entities up, questions and
// filler down. Messages scoring below the quality threshold are discarded
// before redaction.
func QualityScore(content string) float64 {
	text := strings.TrimSpace(content)
	if text == "" {
		return 0
	}

	words := strings.Fields(text)
	if len(words) < 3 {
		return 0.1
	}

	score := 0.2

	if factPattern.MatchString(text) {
		score += 0.4
	}
	if preferencePattern.MatchString(text) {
		score += 0.3
	}

	entities := ExtractEntities(text)
	switch {
	case len(entities) >= 3:
		score += 0.3
	case len(entities) >= 1:
		score += 0.2
	}

	if strings.HasSuffix(text, "?") || questionPattern.MatchString(text) {
		score -= 0.3
	}
	if fillerPattern.MatchString(text) {
		score -= 0.2
	}

	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

var (
	factPattern       = regexp.MustCompile(`(?i)\b(?:my|our)\s+\w[\w\s]{0,30}\s+(?:is|are|was|were)\b|\bi\s+(?:am|work|live|use|have|own|run)\b`)
	preferencePattern = regexp.MustCompile(`(?i)\bi\s+(?:prefer|like|love|hate|enjoy|want|always|never|usually)\b`)
	questionPattern   = regexp.MustCompile(`(?i)^(?:what|where|when|who|why|how|can|could|would|do|does|did|is|are)\b`)
	fillerPattern     = regexp.MustCompile(`(?i)^(?:ok|okay|thanks|thank you|yes|no|sure|got it|cool|nice|great)\b`)
)

// ExtractEntities pulls capitalized tokens and versioned names out of the
// text. These feed the keyword index and the quality score.
func ExtractEntities(text string) []string {
	var entities []string
	seen := make(map[string]bool)

	words := strings.Fields(text)
	for i, word := range words {
		trimmed := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(trimmed) < 2 {
			continue
		}

		// Sentence-initial capitals are ambiguous; skip them
		first := rune(trimmed[0])
		if i > 0 && unicode.IsUpper(first) && !seen[trimmed] {
			seen[trimmed] = true
			entities = append(entities, trimmed)
			continue
		}

		if versionedName.MatchString(trimmed) && !seen[trimmed] {
			seen[trimmed] = true
			entities = append(entities, trimmed)
		}
	}

	return entities
}

var versionedName = regexp.MustCompile(`^[a-zA-Z][a-zA-Z\-]*\d+(?:\.\d+)*$`)
