// Package research is the hidden sidecar: it fetches and distills web
// results into small TTL'd capsules on the cache bus. Nothing here ever runs
// on the chat hot path.
package research

import (
	"sort"
	"strings"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

// Host authority table. Unknown hosts get a neutral score; the table biases
// toward primary sources over aggregators.
var hostAuthority = map[string]float64{
	"github.com":            1.0,
	"go.dev":                1.0,
	"kubernetes.io":         1.0,
	"postgresql.org":        1.0,
	"developer.mozilla.org": 1.0,
	"stackoverflow.com":     0.9,
	"arxiv.org":             0.9,
	"reuters.com":           0.9,
	"apnews.com":            0.9,
	"wikipedia.org":         0.8,
	"medium.com":            0.5,
	"reddit.com":            0.5,
}

const neutralAuthority = 0.7

// rankedResult is a fetched result with its composite score.
type rankedResult struct {
	ports.SearchResult
	score float64
}

// Rerank orders results by host-authority x freshness x topical-match x
// user-affinity. Affinity contributes only when the profile carries signals
// for the topic.
func Rerank(results []ports.SearchResult, topic string, profile *models.UserProfile, now time.Time) []rankedResult {
	ranked := make([]rankedResult, 0, len(results))
	for _, r := range results {
		score := authority(r.Host) * freshness(r.Date, now) * topicalMatch(r, topic)
		if boost := affinity(r, profile); boost > 0 {
			score *= 1 + boost
		}
		ranked = append(ranked, rankedResult{SearchResult: r, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	return ranked
}

func authority(host string) float64 {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if score, ok := hostAuthority[host]; ok {
		return score
	}
	for known, score := range hostAuthority {
		if strings.HasSuffix(host, "."+known) {
			return score
		}
	}
	return neutralAuthority
}

// freshness decays with result age. Undated results sit between fresh and
// stale so they neither dominate nor vanish.
func freshness(date string, now time.Time) float64 {
	parsed, err := time.Parse("Jan 2, 2006", date)
	if err != nil {
		return 0.6
	}
	age := now.Sub(parsed)
	switch {
	case age < 24*time.Hour:
		return 1.0
	case age < 7*24*time.Hour:
		return 0.9
	case age < 30*24*time.Hour:
		return 0.75
	case age < 365*24*time.Hour:
		return 0.5
	default:
		return 0.3
	}
}

func topicalMatch(r ports.SearchResult, topic string) float64 {
	text := strings.ToLower(r.Title + " " + r.Snippet)
	terms := strings.Fields(strings.ToLower(topic))
	if len(terms) == 0 {
		return 1
	}

	hits := 0
	for _, term := range terms {
		if strings.Contains(text, term) {
			hits++
		}
	}
	// A result matching nothing stays in the pool at a steep discount
	return 0.2 + 0.8*float64(hits)/float64(len(terms))
}

// affinity returns a boost in [0, 0.5] when the user's profile mentions
// terms appearing in the result.
func affinity(r ports.SearchResult, profile *models.UserProfile) float64 {
	if profile == nil || profile.IsEmpty() {
		return 0
	}
	text := strings.ToLower(r.Title + " " + r.Snippet)
	hits := 0
	for _, term := range append(profile.Stack, profile.Domains...) {
		if strings.Contains(text, strings.ToLower(term)) {
			hits++
		}
	}
	boost := 0.15 * float64(hits)
	if boost > 0.5 {
		boost = 0.5
	}
	return boost
}

// FreshnessHint derives the recency constraint from query keywords.
func FreshnessHint(query string) models.RecencyHint {
	lower := strings.ToLower(query)
	for _, kw := range []string{"latest", "today", "now", "breaking"} {
		if strings.Contains(lower, kw) {
			return models.RecencyDay
		}
	}
	for _, kw := range []string{"this week", "recently"} {
		if strings.Contains(lower, kw) {
			return models.RecencyWeek
		}
	}
	return models.RecencyMonth
}
