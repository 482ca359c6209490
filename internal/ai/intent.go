package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/curateops/curator/internal/types"
)

// Intent is a classified user request.
type Intent struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"` // 0.0 - 1.0
	Target     string  `json:"target,omitempty"`
	Reasoning  string  `json:"reasoning,omitempty"`
}

// Known intents, in rough priority order for the keyword fallback.
const (
	IntentCreateKB      = "create_kb"
	IntentCreateArticle = "create_article"
	IntentUpdateArticle = "update_article"
	IntentRetrieve      = "retrieve"
	IntentReview        = "review"
	IntentPlan          = "plan"
	IntentSetContext    = "set_context"
	IntentGeneral       = "general"
)

// ValidIntents lists every intent the classifier may return.
var ValidIntents = []string{
	IntentCreateKB, IntentCreateArticle, IntentUpdateArticle,
	IntentRetrieve, IntentReview, IntentPlan, IntentSetContext, IntentGeneral,
}

func isValidIntent(intent string) bool {
	for _, v := range ValidIntents {
		if intent == v {
			return true
		}
	}
	return false
}

// ClassifyIntent decides what the user is asking for. Uses the cheap
// model tier; when the model is unreachable (circuit open, budget
// exhausted) it degrades to keyword matching rather than failing the
// chat turn.
func (s *Supervisor) ClassifyIntent(ctx context.Context, message string, session *types.SessionContext) (*Intent, error) {
	prompt := buildIntentPrompt(message, session)

	response, err := s.callModel(ctx, "", "intent-classification", s.simpleModel, prompt, 1024)
	if err != nil {
		if errors.Is(err, ErrCircuitOpen) || errors.Is(err, ErrBudgetExceeded) {
			fallback := classifyByKeywords(message)
			fallback.Reasoning = fmt.Sprintf("keyword fallback (%v)", err)
			return fallback, nil
		}
		return nil, fmt.Errorf("intent classification: %w", err)
	}

	intent, err := parseInto[Intent](response, "intent classification response")
	if err != nil {
		return nil, err
	}
	if !isValidIntent(intent.Intent) {
		intent.Intent = IntentGeneral
		intent.Confidence = 0.1
	}
	if intent.Confidence < 0 {
		intent.Confidence = 0
	}
	if intent.Confidence > 1 {
		intent.Confidence = 1
	}
	return &intent, nil
}

func buildIntentPrompt(message string, session *types.SessionContext) string {
	var b strings.Builder
	b.WriteString(`You classify user requests for a knowledge base management system.

Intents:
- create_kb: create a new knowledge base
- create_article: create, add, or draft new articles or content
- update_article: edit, modify, or revise existing content
- retrieve: show, list, search, or browse existing content
- review: review, check, or assess content quality
- plan: plan structure, identify gaps, outline content strategy
- set_context: select or switch knowledge base or article focus
- general: anything else (help, questions about the system)

`)
	if session != nil {
		if session.KnowledgeBaseID != nil {
			fmt.Fprintf(&b, "Current knowledge base ID: %d\n", *session.KnowledgeBaseID)
		}
		if session.UserIntent != "" {
			fmt.Fprintf(&b, "Previous intent: %s\n", session.UserIntent)
		}
	}
	fmt.Fprintf(&b, `
User message:
%s

Respond with JSON only:
{"intent": "...", "confidence": 0.0-1.0, "target": "name or ID the request is about, if any", "reasoning": "one sentence"}`, message)
	return b.String()
}

// keywordRules maps fallback intents to trigger words, checked in
// order. Crude, but it keeps the REPL usable while the API is down.
var keywordRules = []struct {
	intent   string
	keywords []string
}{
	{IntentCreateKB, []string{"knowledge base", "new kb", "create kb"}},
	{IntentCreateArticle, []string{"create", "add", "write", "draft", "new article"}},
	{IntentUpdateArticle, []string{"update", "edit", "modify", "change", "revise"}},
	{IntentReview, []string{"review", "check quality", "assess"}},
	{IntentPlan, []string{"plan", "gap", "strategy", "outline", "structure"}},
	{IntentSetContext, []string{"switch", "select", "use kb", "focus on"}},
	{IntentRetrieve, []string{"show", "list", "search", "find", "display", "browse", "what articles"}},
}

// ClassifyOffline is the keyword-only classifier. The chat REPL uses
// it when no model gateway is configured at all.
func ClassifyOffline(message string) *Intent {
	return classifyByKeywords(message)
}

func classifyByKeywords(message string) *Intent {
	lower := strings.ToLower(message)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return &Intent{Intent: rule.intent, Confidence: 0.4}
			}
		}
	}
	return &Intent{Intent: IntentGeneral, Confidence: 0.2}
}
