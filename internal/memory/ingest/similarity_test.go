package ingest

import "testing"

func TestTopic_Grammar(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"my favorite color is blue", "favorite color"},
		{"My favorite color is green now", "favorite color"},
		{"I prefer Go over Python", "go"},
		{"i prefer tabs to spaces", "tabs"},
		{"the weather is nice", ""},
	}

	for _, tt := range tests {
		if got := Topic(tt.content); got != tt.want {
			t.Errorf("Topic(%q) = %q, want %q", tt.content, got, tt.want)
		}
	}
}

func TestSimilarity_TopicFastPath(t *testing.T) {
	got := Similarity("my favorite color is blue", "my favorite color is red")
	if got != 1 {
		t.Errorf("expected topic match to short-circuit to 1, got %f", got)
	}
}

func TestSimilarity_SupersedeThreshold(t *testing.T) {
	// Near-duplicates clear the threshold
	a := "I work with PostgreSQL and Redis on the billing service"
	b := "I work with PostgreSQL and Redis on the billing platform"
	if got := Similarity(a, b); got < SupersedeThreshold {
		t.Errorf("expected near-duplicate above threshold, got %f", got)
	}

	// Unrelated content stays below
	c := "my dog is named Biscuit"
	if got := Similarity(a, c); got >= SupersedeThreshold {
		t.Errorf("expected unrelated content below threshold, got %f", got)
	}
}

func TestSimilarity_EmptyKeywords(t *testing.T) {
	if got := Similarity("a an is", "the of to"); got != 0 {
		t.Errorf("expected 0 for stopword-only inputs, got %f", got)
	}
}
