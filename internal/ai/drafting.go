package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/curateops/curator/internal/types"
)

// ArticleDraft is the creator's output, ready to be written to
// storage once the content package approves its placement.
type ArticleDraft struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	ParentTitle string   `json:"parent_title,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Summary     string   `json:"summary,omitempty"`
}

// DraftArticle writes one article for a knowledge base, guided by the
// work request and the planner's strategy when one exists. existing
// lists current article titles so the model avoids duplicates.
func (s *Supervisor) DraftArticle(ctx context.Context, workID, request string, strategy *ContentStrategy, kb *types.KnowledgeBase, existing []string) (*ArticleDraft, error) {
	prompt := buildDraftingPrompt(request, strategy, kb, existing)

	response, err := s.callModel(ctx, workID, "article-drafting", s.model, prompt, 8192)
	if err != nil {
		return nil, fmt.Errorf("article drafting: %w", err)
	}

	draft, err := parseInto[ArticleDraft](response, "article draft response")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(draft.Title) == "" {
		return nil, fmt.Errorf("article draft has no title")
	}
	if strings.TrimSpace(draft.Content) == "" {
		return nil, fmt.Errorf("article draft %q has no content", draft.Title)
	}
	return &draft, nil
}

func buildDraftingPrompt(request string, strategy *ContentStrategy, kb *types.KnowledgeBase, existing []string) string {
	var b strings.Builder
	b.WriteString("You are writing an article for a knowledge base.\n\n")
	if kb != nil {
		fmt.Fprintf(&b, "Knowledge base: %s\n", kb.Name)
		if kb.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", kb.Description)
		}
	}
	if strategy != nil && len(strategy.Themes) > 0 {
		fmt.Fprintf(&b, "Planned themes: %s\n", strings.Join(strategy.Themes, ", "))
	}
	if len(existing) > 0 {
		fmt.Fprintf(&b, "Existing articles (do not duplicate):\n- %s\n", strings.Join(existing, "\n- "))
	}
	fmt.Fprintf(&b, `
Request:
%s

Write one complete article in Markdown. Pick the parent from the
existing articles if this article belongs under one, otherwise leave
parent_title empty for a root article. Tags are lowercase keywords.

Respond with JSON only:
{"title": "...", "content": "markdown body", "parent_title": "", "tags": ["..."], "summary": "one sentence"}`, request)
	return b.String()
}
