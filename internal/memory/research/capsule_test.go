package research

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
	"github.com/vmihailenco/msgpack/v5"
)

func ranked(host, date, snippet string) rankedResult {
	return rankedResult{
		SearchResult: ports.SearchResult{
			Title:   "title for " + host,
			Host:    host,
			Date:    date,
			Snippet: snippet,
		},
		score: 1,
	}
}

func TestCompose_Limits(t *testing.T) {
	var results []rankedResult
	for i := 0; i < 8; i++ {
		results = append(results, ranked("example.com", "Aug 20, 2026", "a useful claim about the topic"))
	}

	capsule := Compose("batch_1", "go releases", models.TTLReleases, models.RecencyWeek, results)
	if capsule == nil {
		t.Fatal("expected a capsule")
	}

	if len(capsule.Claims) > models.CapsuleMaxClaims {
		t.Errorf("too many claims: %d", len(capsule.Claims))
	}
	if len(capsule.Sources) > models.CapsuleMaxSources {
		t.Errorf("too many sources: %d", len(capsule.Sources))
	}
	for _, claim := range capsule.Claims {
		if len(claim) > models.CapsuleMaxClaimLen {
			t.Errorf("claim over %d chars: %q", models.CapsuleMaxClaimLen, claim)
		}
	}
}

func TestClaimFrom_MultibyteSnippetStaysValidUTF8(t *testing.T) {
	// The leading ASCII byte shifts every two-byte rune onto an odd offset,
	// so a byte-index cut at the cap would land mid-rune.
	snippet := "x" + strings.Repeat("é", models.CapsuleMaxClaimLen)
	claim := claimFrom(ranked("example.com", "Aug 20, 2026", snippet))

	if len(claim) > models.CapsuleMaxClaimLen {
		t.Errorf("claim over %d bytes: %d", models.CapsuleMaxClaimLen, len(claim))
	}
	if !utf8.ValidString(claim) {
		t.Errorf("claim is not valid UTF-8: %q", claim)
	}
}

func TestCompose_ConfidenceNeedsTwoHosts(t *testing.T) {
	single := Compose("b", "t", models.TTLGeneral, models.RecencyMonth, []rankedResult{
		ranked("only.com", "", "claim one"),
		ranked("only.com", "", "claim two"),
	})
	if single.Confidence != "med" {
		t.Errorf("expected med confidence for single host, got %s", single.Confidence)
	}

	multi := Compose("b", "t", models.TTLGeneral, models.RecencyMonth, []rankedResult{
		ranked("a.com", "", "claim one"),
		ranked("b.com", "", "claim two"),
	})
	if multi.Confidence != "high" {
		t.Errorf("expected high confidence for two hosts, got %s", multi.Confidence)
	}
}

func TestCompose_SizeCap(t *testing.T) {
	big := strings.Repeat("x", models.CapsuleMaxClaimLen)
	var results []rankedResult
	for i := 0; i < 4; i++ {
		results = append(results, ranked("example.com", "Aug 20, 2026", big))
	}

	capsule := Compose("batch_1", strings.Repeat("topic ", 100), models.TTLNews, models.RecencyDay, results)
	if capsule == nil {
		t.Fatal("expected a capsule")
	}

	raw, err := msgpack.Marshal(capsule)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) > models.CapsuleMaxBytes {
		t.Errorf("capsule over 4KB: %d bytes", len(raw))
	}
}

func TestCompose_NoUsableResults(t *testing.T) {
	capsule := Compose("b", "t", models.TTLGeneral, models.RecencyMonth, []rankedResult{
		{SearchResult: ports.SearchResult{Host: "empty.com"}},
	})
	if capsule != nil {
		t.Error("expected nil capsule for resultless input")
	}
}

func TestRerank_AuthorityAndFreshness(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	results := []ports.SearchResult{
		{Host: "medium.com", Date: "Aug 23, 2026", Snippet: "go generics deep dive"},
		{Host: "go.dev", Date: "Aug 23, 2026", Snippet: "go generics proposal accepted"},
	}

	ranked := Rerank(results, "go generics", nil, now)
	if ranked[0].Host != "go.dev" {
		t.Errorf("expected authoritative host first, got %s", ranked[0].Host)
	}
}

func TestRerank_FreshnessBeatsStale(t *testing.T) {
	now := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

	results := []ports.SearchResult{
		{Host: "example.com", Date: "Jan 2, 2020", Snippet: "kubernetes release notes"},
		{Host: "example.com", Date: "Aug 23, 2026", Snippet: "kubernetes release notes"},
	}

	ranked := Rerank(results, "kubernetes release", nil, now)
	if ranked[0].Date != "Aug 23, 2026" {
		t.Errorf("expected fresh result first, got %s", ranked[0].Date)
	}
}

func TestRerank_AffinityOnlyWithProfileSignals(t *testing.T) {
	now := time.Now()
	results := []ports.SearchResult{
		{Host: "example.com", Snippet: "postgres tuning guide"},
	}

	without := Rerank(results, "postgres tuning", &models.UserProfile{}, now)
	with := Rerank(results, "postgres tuning", &models.UserProfile{Stack: []string{"PostgreSQL", "postgres"}}, now)

	if with[0].score <= without[0].score {
		t.Errorf("expected affinity boost: %f vs %f", with[0].score, without[0].score)
	}
}

func TestFreshnessHint(t *testing.T) {
	tests := []struct {
		query string
		want  models.RecencyHint
	}{
		{"latest kubernetes release", models.RecencyDay},
		{"what happened today in go", models.RecencyDay},
		{"anything new this week", models.RecencyWeek},
		{"how do goroutines work", models.RecencyMonth},
	}
	for _, tt := range tests {
		if got := FreshnessHint(tt.query); got != tt.want {
			t.Errorf("FreshnessHint(%q) = %s, want %s", tt.query, got, tt.want)
		}
	}
}
