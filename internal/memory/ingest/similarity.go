package ingest

import (
	"regexp"
	"strings"
)

// SupersedeThreshold is the similarity above which a candidate updates an
// existing memory instead of creating a new row.
const SupersedeThreshold = 0.75

var (
	// Topic grammar fast path. "my favorite color is blue" -> topic
	// "favorite color"; "I prefer Go over Python" -> topic "go".
	myTopicPattern     = regexp.MustCompile(`(?i)\bmy\s+([\w\s]{1,40}?)\s+(?:is|are|was|were)\s+`)
	preferTopicPattern = regexp.MustCompile(`(?i)\bi\s+prefer\s+([\w\s]{1,30}?)\s+(?:over|to|instead of)\s+`)
)

// Topic extracts the grammar topic of a statement, or "" when the grammar
// does not apply.
func Topic(content string) string {
	if m := myTopicPattern.FindStringSubmatch(content); m != nil {
		return normalizeTopic(m[1])
	}
	if m := preferTopicPattern.FindStringSubmatch(content); m != nil {
		return normalizeTopic(m[1])
	}
	return ""
}

func normalizeTopic(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Similarity computes a cheap duplicate score in [0,1] between a candidate
// and a stored memory. Matching grammar topics short-circuit to 1; otherwise
// the score is 0.7*Jaccard keyword overlap + 0.3*length similarity.
func Similarity(candidate, existing string) float64 {
	if t1, t2 := Topic(candidate), Topic(existing); t1 != "" && t1 == t2 {
		return 1
	}

	a := keywordSet(candidate)
	b := keywordSet(existing)
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	intersection := 0
	for word := range a {
		if b[word] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	jaccard := float64(intersection) / float64(union)

	la, lb := float64(len(candidate)), float64(len(existing))
	lengthSim := la / lb
	if lb < la {
		lengthSim = lb / la
	}

	return 0.7*jaccard + 0.3*lengthSim
}

var similarityStopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "my": true, "i": true, "me": true, "to": true, "of": true,
	"in": true, "on": true, "at": true, "and": true, "or": true, "that": true,
	"this": true, "it": true, "for": true, "with": true, "have": true,
}

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

func keywordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, word := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if len(word) > 2 && !similarityStopWords[word] {
			set[word] = true
		}
	}
	return set
}
