package ingest

import "testing"

func TestQualityScore_FactBeatsFiller(t *testing.T) {
	fact := QualityScore("my favorite editor is Neovim and I use it daily")
	filler := QualityScore("ok thanks")

	if fact <= filler {
		t.Errorf("expected fact (%f) to outscore filler (%f)", fact, filler)
	}
	if fact < 0.3 {
		t.Errorf("expected a personal fact to clear the default threshold, got %f", fact)
	}
}

func TestQualityScore_QuestionsPenalized(t *testing.T) {
	statement := QualityScore("I work at a fintech startup in Berlin")
	question := QualityScore("what is the capital of France?")

	if question >= statement {
		t.Errorf("expected question (%f) below statement (%f)", question, statement)
	}
}

func TestQualityScore_Bounds(t *testing.T) {
	if got := QualityScore(""); got != 0 {
		t.Errorf("empty content should score 0, got %f", got)
	}
	inputs := []string{
		"ok",
		"my stack is Go, PostgreSQL, Redis and Kubernetes at ACME Corp",
		"what?",
	}
	for _, in := range inputs {
		got := QualityScore(in)
		if got < 0 || got > 1 {
			t.Errorf("score out of bounds for %q: %f", in, got)
		}
	}
}

func TestExtractEntities(t *testing.T) {
	entities := ExtractEntities("I use PostgreSQL and Redis with Go 1.22")

	want := map[string]bool{"PostgreSQL": true, "Redis": true, "Go": true}
	for _, e := range entities {
		delete(want, e)
	}
	if len(want) != 0 {
		t.Errorf("missing entities %v in %v", want, entities)
	}
}
