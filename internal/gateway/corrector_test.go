package gateway

import (
	"context"
	"testing"

	"github.com/halcyon-ai/mnemo/internal/domain"
	"github.com/halcyon-ai/mnemo/internal/ports"
	"github.com/stretchr/testify/assert"
)

type fixedLLM struct {
	answer string
	err    error
}

func (f *fixedLLM) Complete(ctx context.Context, req ports.ChatRequest) (string, error) {
	return f.answer, f.err
}

func (f *fixedLLM) Stream(ctx context.Context, req ports.ChatRequest) (<-chan ports.StreamDelta, error) {
	return nil, f.err
}

func TestCorrect_PreservesYears(t *testing.T) {
	// A correction that rewrites 2025 to a past year must be discarded
	c := NewCorrector(&fixedLLM{answer: "latest React features in 2023"}, "m")

	got := c.Correct(context.Background(), "latest React featurs in 2025")
	assert.Contains(t, got, "2025")
	assert.Equal(t, "latest React featurs in 2025", got)
}

func TestCorrect_AcceptsYearPreservingFix(t *testing.T) {
	c := NewCorrector(&fixedLLM{answer: "latest React features in 2025"}, "m")

	got := c.Correct(context.Background(), "latest React featurs in 2025")
	assert.Equal(t, "latest React features in 2025", got)
}

func TestCorrect_FailureReturnsInput(t *testing.T) {
	c := NewCorrector(&fixedLLM{err: domain.ErrProviderUnavailable}, "m")

	got := c.Correct(context.Background(), "somthing misspelled")
	assert.Equal(t, "somthing misspelled", got)
}

func TestCorrect_NilLLMIsPassthrough(t *testing.T) {
	c := NewCorrector(nil, "m")
	assert.Equal(t, "query", c.Correct(context.Background(), "query"))
}
