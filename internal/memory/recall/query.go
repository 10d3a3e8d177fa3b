// Package recall implements hybrid memory search: keyword and vector lookups
// fused under a hard deadline.
package recall

import (
	"regexp"
	"strings"
)

// ShapedQuery is the search-ready form of a raw user message.
type ShapedQuery struct {
	Terms    []string
	Phrases  []string
	FTSQuery string
}

var contractions = map[string]string{
	"what's":  "what is",
	"where's": "where is",
	"who's":   "who is",
	"how's":   "how is",
	"when's":  "when is",
	"it's":    "it is",
	"i'm":     "i am",
	"i've":    "i have",
	"don't":   "do not",
	"didn't":  "did not",
	"can't":   "can not",
	"won't":   "will not",
	"isn't":   "is not",
	"aren't":  "are not",
	"wasn't":  "was not",
}

// Interrogative scaffolding stripped before search; these words carry no
// signal about which memory to find.
var stopWords = map[string]bool{
	"what": true, "where": true, "when": true, "who": true, "why": true,
	"how": true, "which": true, "is": true, "are": true, "was": true,
	"were": true, "do": true, "does": true, "did": true, "the": true,
	"a": true, "an": true, "my": true, "me": true, "i": true, "you": true,
	"of": true, "in": true, "on": true, "at": true, "to": true, "for": true,
	"about": true, "tell": true, "again": true, "please": true, "can": true,
	"could": true, "would": true, "it": true, "that": true, "this": true,
	"am": true, "be": true, "have": true, "has": true, "not": true,
}

var (
	possessive = regexp.MustCompile(`(\w)'s\b`)
	quoted     = regexp.MustCompile(`"([^"]+)"`)
	nonWord    = regexp.MustCompile(`[^a-z0-9\s-]+`)
	spaces     = regexp.MustCompile(`\s+`)
)

// Shape normalizes a raw query: contractions expanded, possessives and
// punctuation dropped, interrogative scaffolding removed. Quoted spans
// survive as exact phrases.
func Shape(raw string) ShapedQuery {
	var shaped ShapedQuery

	for _, m := range quoted.FindAllStringSubmatch(raw, -1) {
		phrase := strings.TrimSpace(m[1])
		if phrase != "" {
			shaped.Phrases = append(shaped.Phrases, strings.ToLower(phrase))
		}
	}

	text := strings.ToLower(strings.TrimSpace(raw))
	for contraction, expansion := range contractions {
		text = strings.ReplaceAll(text, contraction, expansion)
	}
	text = possessive.ReplaceAllString(text, "$1")
	text = nonWord.ReplaceAllString(text, " ")
	text = spaces.ReplaceAllString(text, " ")

	seen := make(map[string]bool)
	for _, word := range strings.Fields(text) {
		if stopWords[word] || len(word) < 2 || seen[word] {
			continue
		}
		seen[word] = true
		shaped.Terms = append(shaped.Terms, word)
	}

	// Multi-word runs of surviving terms double as phrases for the boost
	if len(shaped.Phrases) == 0 && len(shaped.Terms) >= 2 {
		shaped.Phrases = append(shaped.Phrases, strings.Join(shaped.Terms, " "))
	}

	// websearch_to_tsquery ANDs bare words; one stray term would empty the
	// result set. Phrases stay quoted, everything joined with "or", and
	// ts_rank still puts multi-term matches first.
	parts := make([]string, 0, len(shaped.Phrases)+len(shaped.Terms))
	for _, phrase := range shaped.Phrases {
		parts = append(parts, `"`+phrase+`"`)
	}
	parts = append(parts, shaped.Terms...)
	shaped.FTSQuery = strings.Join(parts, " or ")
	return shaped
}

// PhraseHit reports whether any shaped phrase occurs verbatim in the content.
func (q ShapedQuery) PhraseHit(content string) bool {
	lower := strings.ToLower(content)
	for _, phrase := range q.Phrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Empty reports whether shaping left nothing searchable.
func (q ShapedQuery) Empty() bool {
	return len(q.Terms) == 0
}
