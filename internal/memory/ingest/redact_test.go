package ingest

import (
	"strings"
	"testing"
)

func TestRedact_Email(t *testing.T) {
	redacted, m := Redact("my work email is alice@example.com, use it")

	if strings.Contains(redacted, "alice@example.com") {
		t.Errorf("email survived redaction: %s", redacted)
	}
	if !strings.Contains(redacted, "[EMAIL_1]") {
		t.Errorf("expected placeholder in %s", redacted)
	}
	if m["[EMAIL_1]"] != "EMAIL" {
		t.Errorf("unexpected redaction map: %v", m)
	}
}

func TestRedact_APIKey(t *testing.T) {
	redacted, m := Redact("use sk-abcdefghijklmnopqrstuvwx for the staging env")

	if strings.Contains(redacted, "sk-abcdefghijklmnop") {
		t.Errorf("api key survived redaction: %s", redacted)
	}
	if len(m) != 1 {
		t.Errorf("expected 1 redaction, got %v", m)
	}
}

func TestRedact_Phone(t *testing.T) {
	redacted, _ := Redact("call me at +1 415 555 0192 tomorrow")

	if strings.Contains(redacted, "555") {
		t.Errorf("phone survived redaction: %s", redacted)
	}
}

func TestRedact_CleanContent(t *testing.T) {
	content := "I prefer dark roast coffee"
	redacted, m := Redact(content)

	if redacted != content {
		t.Errorf("clean content was altered: %s", redacted)
	}
	if m != nil {
		t.Errorf("expected nil map for clean content, got %v", m)
	}
}

func TestRedact_YearSurvives(t *testing.T) {
	redacted, _ := Redact("I started this job in 2023")
	if !strings.Contains(redacted, "2023") {
		t.Errorf("year was redacted: %s", redacted)
	}
}
