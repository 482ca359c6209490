package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/curateops/curator/internal/types"
)

func TestClassifyByKeywords(t *testing.T) {
	tests := []struct {
		message string
		intent  string
	}{
		{"create a knowledge base for our onboarding docs", IntentCreateKB},
		{"write a new article about deployment", IntentCreateArticle},
		{"please revise the installation guide", IntentUpdateArticle},
		{"review the quality of the API docs", IntentReview},
		{"outline a content strategy for the wiki", IntentPlan},
		{"switch to the engineering wiki", IntentSetContext},
		{"show me all articles about testing", IntentRetrieve},
		{"what can you do?", IntentGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			got := classifyByKeywords(tt.message)
			assert.Equal(t, tt.intent, got.Intent)
		})
	}
}

func TestClassifyByKeywordsConfidence(t *testing.T) {
	matched := classifyByKeywords("list the knowledge bases")
	assert.InDelta(t, 0.4, matched.Confidence, 0.001)

	unmatched := classifyByKeywords("hmm")
	assert.Equal(t, IntentGeneral, unmatched.Intent)
	assert.InDelta(t, 0.2, unmatched.Confidence, 0.001)
}

func TestIsValidIntent(t *testing.T) {
	for _, intent := range ValidIntents {
		assert.True(t, isValidIntent(intent), intent)
	}
	assert.False(t, isValidIntent("delete_everything"))
	assert.False(t, isValidIntent(""))
}

func TestBuildIntentPromptIncludesSession(t *testing.T) {
	kbID := int64(9)
	session := &types.SessionContext{KnowledgeBaseID: &kbID, UserIntent: "retrieve"}
	prompt := buildIntentPrompt("find the style guide", session)
	assert.Contains(t, prompt, "Current knowledge base ID: 9")
	assert.Contains(t, prompt, "Previous intent: retrieve")
	assert.Contains(t, prompt, "find the style guide")
}
