package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/curateops/curator/internal/types"
)

// answerHistoryLimit bounds how much conversation goes into the
// prompt; older turns are covered by session summaries.
const answerHistoryLimit = 20

// Answer produces a direct conversational reply for chat messages
// that map to no specific workflow. The reply is plain text, not JSON.
func (s *Supervisor) Answer(ctx context.Context, message string, session *types.SessionContext, history []*types.ConversationMessage) (string, error) {
	var b strings.Builder
	b.WriteString("You are the conversational front end of a knowledge base curation system. ")
	b.WriteString("Answer the user's message helpfully and concisely. ")
	b.WriteString("You can search and read articles, plan KB structure, draft articles, and review content; ")
	b.WriteString("suggest those when the user's goal fits one.\n\n")

	if session != nil {
		if session.KnowledgeBaseID != nil {
			fmt.Fprintf(&b, "Active knowledge base ID: %d\n", *session.KnowledgeBaseID)
		}
		for k, v := range session.TaskContext {
			fmt.Fprintf(&b, "Task context %s: %v\n", k, v)
		}
	}

	if len(history) > 0 {
		start := 0
		if len(history) > answerHistoryLimit {
			start = len(history) - answerHistoryLimit
		}
		b.WriteString("\nRecent conversation:\n")
		for _, m := range history[start:] {
			fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
		}
	}

	fmt.Fprintf(&b, "\nUser message: %s\n", message)

	reply, err := s.callModel(ctx, "", "chat-answer", s.model, b.String(), 2048)
	if err != nil {
		return "", fmt.Errorf("chat answer: %w", err)
	}
	return strings.TrimSpace(reply), nil
}
