package gateway

import (
	"log/slog"
	"regexp"

	"github.com/halcyon-ai/mnemo/internal/config"
	"github.com/halcyon-ai/mnemo/internal/domain/models"
)

// Route is the provider selection for one turn.
type Route struct {
	Model           string
	ModelSource     string
	MaxTokens       int
	MaxTokensSource string
}

// Router picks the provider model by rule: per-request override beats vision
// beats complexity beats the fast default.
type Router struct {
	cfg config.LLMConfig
}

func NewRouter(cfg config.LLMConfig) *Router {
	return &Router{cfg: cfg}
}

func (r *Router) Select(analysis Analysis, turns []models.ChatMessage, overrideModel string, overrideMaxTokens int, prompt *Prompt) Route {
	route := Route{Model: r.cfg.DefaultModel, ModelSource: "default"}

	switch {
	case overrideModel != "":
		route.Model = overrideModel
		route.ModelSource = "override"
	case hasImageAttachment(turns):
		route.Model = r.cfg.VisionModel
		route.ModelSource = "vision_attachment"
	case analysis.Intent == IntentComplexReasoning || analysis.Complexity == ComplexityComplex:
		route.Model = r.cfg.HighComplexityModel
		route.ModelSource = "high_complexity"
	}

	switch {
	case overrideMaxTokens > 0:
		route.MaxTokens = overrideMaxTokens
		route.MaxTokensSource = "override"
	case prompt.MaxTokens > 0:
		route.MaxTokens = prompt.MaxTokens
		route.MaxTokensSource = prompt.MaxTokensSource
	default:
		route.MaxTokens = r.cfg.MaxTokens
		route.MaxTokensSource = "global_default"
	}

	slog.Info("route selected",
		"model", route.Model,
		"model_source", route.ModelSource,
		"max_tokens", route.MaxTokens,
		"max_tokens_source", route.MaxTokensSource,
		"intent", analysis.Intent,
		"complexity", analysis.Complexity,
	)
	return route
}

func hasImageAttachment(turns []models.ChatMessage) bool {
	for _, t := range turns {
		for _, att := range t.Attachments {
			if att.IsImage() {
				return true
			}
		}
	}
	return false
}

var numericPattern = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// ExtractNumeric returns the first numeric literal in the accumulated
// response, for the simple_math canonical answer. Empty when none is found.
func ExtractNumeric(text string) string {
	return numericPattern.FindString(text)
}
