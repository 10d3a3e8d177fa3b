package recall

import (
	"testing"
)

func TestShape_StripsInterrogativeLeaders(t *testing.T) {
	shaped := Shape("what is my favorite color")

	if len(shaped.Terms) != 2 {
		t.Fatalf("expected 2 terms, got %v", shaped.Terms)
	}
	if shaped.Terms[0] != "favorite" || shaped.Terms[1] != "color" {
		t.Errorf("unexpected terms: %v", shaped.Terms)
	}
}

func TestShape_ExpandsContractions(t *testing.T) {
	shaped := Shape("what's my dog's name")

	for _, term := range shaped.Terms {
		if term == "whats" || term == "dogs" {
			t.Errorf("contraction or possessive leaked: %v", shaped.Terms)
		}
	}
	want := map[string]bool{"dog": true, "name": true}
	for _, term := range shaped.Terms {
		delete(want, term)
	}
	if len(want) != 0 {
		t.Errorf("missing terms %v in %v", want, shaped.Terms)
	}
}

func TestShape_QuotedPhrase(t *testing.T) {
	shaped := Shape(`did I mention "piano lessons" before`)

	if len(shaped.Phrases) == 0 || shaped.Phrases[0] != "piano lessons" {
		t.Errorf("expected quoted phrase, got %v", shaped.Phrases)
	}
}

func TestShape_PhraseHit(t *testing.T) {
	shaped := Shape("favorite color")

	if !shaped.PhraseHit("My favorite color is blue") {
		t.Error("expected phrase hit")
	}
	if shaped.PhraseHit("likes the color blue") {
		t.Error("did not expect phrase hit")
	}
}

func TestShape_FTSQueryORsTermsAndQuotesPhrases(t *testing.T) {
	shaped := Shape("what is my favorite color")

	want := `"favorite color" or favorite or color`
	if shaped.FTSQuery != want {
		t.Errorf("FTSQuery = %q, want %q", shaped.FTSQuery, want)
	}
}

func TestShape_SingleTermFTSQuery(t *testing.T) {
	shaped := Shape("kubernetes")

	if shaped.FTSQuery != "kubernetes" {
		t.Errorf("FTSQuery = %q, want plain term", shaped.FTSQuery)
	}
}

func TestShape_EmptyAfterStripping(t *testing.T) {
	shaped := Shape("what is it?")
	if !shaped.Empty() {
		t.Errorf("expected empty query, got %v", shaped.Terms)
	}
}
