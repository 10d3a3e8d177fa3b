// Package gateway is the chat front door: per-turn context assembly, intent
// analysis, provider routing, SSE streaming, and early-window capsule
// injection. Memory lives behind the memory service; the gateway only talks
// to it over HTTP.
package gateway

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/halcyon-ai/mnemo/internal/domain/models"
	"github.com/halcyon-ai/mnemo/internal/ports"
)

// Intent classifies what the turn wants from the system.
type Intent string

const (
	IntentMemorySave       Intent = "memory_save"
	IntentWebSearch        Intent = "needs_web_search"
	IntentFollowup         Intent = "conversational_followup"
	IntentSimpleMath       Intent = "simple_math"
	IntentComplexReasoning Intent = "complex_reasoning"
	IntentFactual          Intent = "factual"
	IntentOther            Intent = "other"
)

// Complexity grades the turn for model selection.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// Analysis is the outcome of query analysis for one turn.
type Analysis struct {
	Intent     Intent
	Complexity Complexity
	// SaveContent is the extracted content for memory_save turns.
	SaveContent string
	// CorrectionCue marks messages that open by correcting the assistant.
	CorrectionCue bool
}

var (
	saveVerbs = `(?:remember|save|store|memorize|keep|note)`

	// Save detection. memory_save is checked before everything else so
	// "remember ..." never routes to search or recall.
	saveStartPattern = regexp.MustCompile(`(?i)^` + saveVerbs + `\b`)
	saveLeadPattern  = regexp.MustCompile(`(?i)^(?:can you|could you|would you|please)[ ,]+(?:please\s+)?` + saveVerbs + `\b`)
	saveTrailPattern = regexp.MustCompile(`(?i)[-,;:\x{2013}\x{2014}]\s*(?:please\s+)?(?:can you\s+|could you\s+)?` + saveVerbs + `\s+(?:this|that|it)?(?:\s+for me)?\s*[.!?]?$`)
	saveBodyPattern  = regexp.MustCompile(`(?i)\b` + saveVerbs + `\s+(?:this|that|it|my|i|me|for me|['"]|\w+)`)

	// Questions about memory ("did you remember that?") are recall, not save.
	saveQuestionPattern = regexp.MustCompile(`(?i)^(?:did|do|does|have|has|will|would) you\b`)

	// Extraction cases.
	bareObjectPattern  = regexp.MustCompile(`(?i)\b` + saveVerbs + `\s+(?:this|that|it)(?:\s+for me)?\s*[.!?]?$`)
	quotedPattern      = regexp.MustCompile(`"([^"]+)"`)
	myFactPattern      = regexp.MustCompile(`(?i)\b` + saveVerbs + `\s+that\s+(my\s+.+?)\s*[.!?]?$`)
	earlierIdeaPattern = regexp.MustCompile(`(?i)\b` + saveVerbs + `\s+(?:that\s+)?idea\s+(?:you\s+gave\s+me\s+)?(?:earlier\s+)?about\s+(.+?)\s*[.!?]?$`)
	requestLeadPattern = regexp.MustCompile(`(?i)^(?:can you|could you|would you|please)?[ ,]*(?:please\s+)?` + saveVerbs + `\s+(?:that\s+|this\s+|it\s+)?(?:for me\s*)?`)

	searchPattern = regexp.MustCompile(`(?i)\b(?:search(?:\s+for)?|look up|google|find out|what(?:'s| is) the latest|latest news|current (?:price|version|release)|news about|breaking news)\b`)
	// Conversation-management phrasings never trigger search.
	searchExcludePattern = regexp.MustCompile(`(?i)\b(?:rewrite|rephrase|make it more|store this as|did you remember)\b`)

	mathPattern = regexp.MustCompile(`(?i)^\s*(?:what\s+is|what's|calculate|compute)?\s*\(?-?\d+(?:\.\d+)?(?:\s*[-+*/^]\s*\(?-?\d+(?:\.\d+)?\)?)+\s*\??\s*$`)

	reasoningPattern = regexp.MustCompile(`(?i)\b(?:explain why|analyze|compare and contrast|trade-?offs?|design a|architect|prove|step by step|walk me through|derive)\b`)

	followupPattern = regexp.MustCompile(`(?i)^(?:and|what about|how about|why|which one|what else|ok(?:ay)? but|so|also|then)\b`)

	questionPattern = regexp.MustCompile(`(?i)^(?:what|who|when|where|which|how|why|is|are|does|do|did|can)\b`)

	correctionPattern = regexp.MustCompile(`(?i)^\s*(?:no\b|nope\b|wrong\b|that's (?:wrong|not)|not that\b|actually\b|rewrite\b|i meant\b|incorrect\b)`)
)

const (
	classifierBudget    = 250 * time.Millisecond
	classifierMaxTokens = 6

	classifierPrompt = "Classify the user message into exactly one label: memory_save, " +
		"needs_web_search, conversational_followup, simple_math, complex_reasoning, " +
		"factual, other. Reply with the label only."
)

// Analyzer classifies turns with a rule grammar, falling back to a small
// model call only on ambiguity.
type Analyzer struct {
	llm   ports.LLMService
	model string
}

func NewAnalyzer(llm ports.LLMService, model string) *Analyzer {
	return &Analyzer{llm: llm, model: model}
}

func (a *Analyzer) Analyze(ctx context.Context, message string, history []models.ChatMessage) Analysis {
	msg := strings.TrimSpace(message)
	analysis := Analysis{
		Intent:        a.classify(ctx, msg),
		CorrectionCue: correctionPattern.MatchString(msg),
	}
	if analysis.Intent == IntentMemorySave {
		analysis.SaveContent = extractSaveContent(msg, history)
	}
	analysis.Complexity = grade(analysis.Intent, msg)
	return analysis
}

func (a *Analyzer) classify(ctx context.Context, msg string) Intent {
	switch {
	case isMemorySave(msg):
		return IntentMemorySave
	case mathPattern.MatchString(msg):
		return IntentSimpleMath
	case searchPattern.MatchString(msg) && !searchExcludePattern.MatchString(msg):
		return IntentWebSearch
	case reasoningPattern.MatchString(msg):
		return IntentComplexReasoning
	case followupPattern.MatchString(msg) && len(strings.Fields(msg)) <= 12:
		return IntentFollowup
	case questionPattern.MatchString(msg) || strings.HasSuffix(msg, "?"):
		return IntentFactual
	}
	return a.classifyAmbiguous(ctx, msg)
}

// classifyAmbiguous asks the fast model for a label. Any failure or unknown
// answer stays "other".
func (a *Analyzer) classifyAmbiguous(ctx context.Context, msg string) Intent {
	if a.llm == nil || len(strings.Fields(msg)) < 4 {
		return IntentOther
	}

	ctx, cancel := context.WithTimeout(ctx, classifierBudget)
	defer cancel()

	answer, err := a.llm.Complete(ctx, ports.ChatRequest{
		Model: a.model,
		Messages: []models.ChatMessage{
			{Role: models.RoleSystem, Content: classifierPrompt},
			{Role: models.RoleUser, Content: msg},
		},
		MaxTokens: classifierMaxTokens,
	})
	if err != nil {
		return IntentOther
	}

	switch Intent(strings.ToLower(strings.TrimSpace(answer))) {
	case IntentMemorySave:
		return IntentMemorySave
	case IntentWebSearch:
		return IntentWebSearch
	case IntentFollowup:
		return IntentFollowup
	case IntentSimpleMath:
		return IntentSimpleMath
	case IntentComplexReasoning:
		return IntentComplexReasoning
	case IntentFactual:
		return IntentFactual
	}
	return IntentOther
}

func isMemorySave(msg string) bool {
	if saveQuestionPattern.MatchString(msg) {
		return false
	}
	return saveStartPattern.MatchString(msg) ||
		saveLeadPattern.MatchString(msg) ||
		saveTrailPattern.MatchString(msg) ||
		saveBodyPattern.MatchString(msg)
}

// extractSaveContent resolves what the user wants stored. Cases, in order:
// a bare "remember this" points at the last assistant message; quoted spans
// win; "remember that my X is Y" keeps the fact clause; a trailing remember
// clause keeps the content before it; "that idea about X" searches history;
// otherwise the request phrasing is stripped off.
func extractSaveContent(msg string, history []models.ChatMessage) string {
	if bareObjectPattern.MatchString(msg) && requestLeadPattern.MatchString(msg) {
		if prior := lastAssistant(history, ""); prior != "" {
			return prior
		}
	}

	if m := quotedPattern.FindStringSubmatch(msg); m != nil {
		return strings.TrimSpace(m[1])
	}

	if m := myFactPattern.FindStringSubmatch(msg); m != nil {
		return strings.TrimSpace(m[1])
	}

	if loc := saveTrailPattern.FindStringIndex(msg); loc != nil && loc[0] > 0 {
		if before := strings.TrimSpace(msg[:loc[0]]); before != "" {
			return before
		}
	}

	if m := earlierIdeaPattern.FindStringSubmatch(msg); m != nil {
		return lastAssistant(history, strings.TrimSpace(m[1]))
	}

	if stripped := strings.TrimSpace(requestLeadPattern.ReplaceAllString(msg, "")); stripped != "" && stripped != msg {
		return stripped
	}
	return lastAssistant(history, "")
}

// lastAssistant returns the newest assistant message, preferring one that
// mentions the topic when given.
func lastAssistant(history []models.ChatMessage, topic string) string {
	if topic != "" {
		lower := strings.ToLower(topic)
		for i := len(history) - 1; i >= 0; i-- {
			if history[i].Role == models.RoleAssistant &&
				strings.Contains(strings.ToLower(history[i].Content), lower) {
				return history[i].Content
			}
		}
	}
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == models.RoleAssistant {
			return history[i].Content
		}
	}
	return ""
}

func grade(intent Intent, msg string) Complexity {
	words := len(strings.Fields(msg))
	switch {
	case intent == IntentComplexReasoning || words > 80:
		return ComplexityComplex
	case intent == IntentSimpleMath || intent == IntentFollowup || words <= 8:
		return ComplexitySimple
	default:
		return ComplexityModerate
	}
}
