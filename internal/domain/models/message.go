package models

import (
	"time"
	"unicode/utf8"
)

// Message roles, OpenAI chat convention.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Attachment is an opaque reference to uploaded content. Only the MIME type
// matters to routing (image attachments select the vision provider).
type Attachment struct {
	ID       string `json:"id,omitempty"`
	MimeType string `json:"mime_type"`
	URL      string `json:"url,omitempty"`
}

func (a Attachment) IsImage() bool {
	return len(a.MimeType) >= 6 && a.MimeType[:6] == "image/"
}

// ChatMessage is one turn in a thread.
type ChatMessage struct {
	ID          string       `json:"id,omitempty"`
	UserID      string       `json:"user_id,omitempty"`
	ThreadID    string       `json:"thread_id,omitempty"`
	Role        string       `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at,omitempty"`
}

// EstimateTokens approximates token count at 4 chars per token.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// EstimateMessageTokens sums the estimate over a message slice.
func EstimateMessageTokens(msgs []ChatMessage) int {
	total := 0
	for _, m := range msgs {
		total += EstimateTokens(m.Content)
	}
	return total
}

// Clip truncates s to at most max bytes without splitting a UTF-8 rune.
func Clip(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
