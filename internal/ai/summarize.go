package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/curateops/curator/internal/types"
)

const (
	// Conversations shorter than this are returned verbatim; a summary
	// would not save anything.
	summarizePassthroughChars = 600

	// Cap on how much transcript we feed the model. Oversized
	// conversations keep the head and tail and drop the middle.
	summarizeInputChars = 24000
)

// SummarizeSession condenses a conversation into a compact brief that
// can seed a fresh session context. Uses the cheap model tier since
// summarization does not need deep reasoning.
func (s *Supervisor) SummarizeSession(ctx context.Context, sessionID string, messages []*types.ConversationMessage) (string, error) {
	if len(messages) == 0 {
		return "", nil
	}

	transcript := renderTranscript(messages)
	if len(transcript) <= summarizePassthroughChars {
		return transcript, nil
	}
	if len(transcript) > summarizeInputChars {
		half := summarizeInputChars / 2
		transcript = transcript[:half] + "\n[... middle of conversation omitted ...]\n" + transcript[len(transcript)-half:]
	}

	prompt := fmt.Sprintf(`Summarize this conversation between a user and a knowledge-base
curation assistant. Capture: what the user is trying to accomplish,
decisions already made, named knowledge bases or articles, and any
unresolved questions. Be concise; plain prose, no preamble.

Conversation:
%s`, transcript)

	summary, err := s.callModel(ctx, "", "session-summary", s.simpleModel, prompt, 2048)
	if err != nil {
		return "", fmt.Errorf("summarize session %s: %w", sessionID, err)
	}
	return strings.TrimSpace(summary), nil
}

func renderTranscript(messages []*types.ConversationMessage) string {
	var b strings.Builder
	for _, m := range messages {
		speaker := m.Role
		if m.AgentName != "" {
			speaker = fmt.Sprintf("%s (%s)", m.Role, m.AgentName)
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.Content)
	}
	return b.String()
}
