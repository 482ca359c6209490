package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/curateops/curator/internal/types"
)

// ContentStrategy is the planner's output: what a knowledge base
// should cover and in what shape.
type ContentStrategy struct {
	Themes              []string         `json:"themes"`
	Outline             []OutlineSection `json:"outline"`
	Priorities          []string         `json:"priorities,omitempty"`
	ClarificationNeeded bool             `json:"clarification_needed"`
	Questions           []string         `json:"questions,omitempty"`
}

// OutlineSection is one node of the planned article hierarchy.
type OutlineSection struct {
	Title    string           `json:"title"`
	Summary  string           `json:"summary,omitempty"`
	Priority int              `json:"priority"`
	Children []OutlineSection `json:"children,omitempty"`
}

// PlanContent produces a content strategy for a knowledge base from a
// free-form request (usually a planning issue's description).
func (s *Supervisor) PlanContent(ctx context.Context, workID, request string, kb *types.KnowledgeBase) (*ContentStrategy, error) {
	prompt := buildPlanningPrompt(request, kb)

	response, err := s.callModel(ctx, workID, "content-planning", s.model, prompt, 8192)
	if err != nil {
		return nil, fmt.Errorf("content planning: %w", err)
	}

	strategy, err := parseInto[ContentStrategy](response, "content strategy response")
	if err != nil {
		return nil, err
	}
	if len(strategy.Outline) == 0 && !strategy.ClarificationNeeded {
		return nil, fmt.Errorf("content strategy has no outline and no clarification request")
	}
	return &strategy, nil
}

func buildPlanningPrompt(request string, kb *types.KnowledgeBase) string {
	var b strings.Builder
	b.WriteString("You are planning the content of a knowledge base.\n\n")
	if kb != nil {
		fmt.Fprintf(&b, "Knowledge base: %s\n", kb.Name)
		if kb.Description != "" {
			fmt.Fprintf(&b, "Description: %s\n", kb.Description)
		}
	}
	fmt.Fprintf(&b, `
Request:
%s

Produce a content strategy. If the request is too vague to plan from,
set clarification_needed and list the questions instead of guessing.

Respond with JSON only:
{
  "themes": ["major topic areas"],
  "outline": [{"title": "...", "summary": "...", "priority": 0-4, "children": [...]}],
  "priorities": ["what to write first and why"],
  "clarification_needed": false,
  "questions": []
}`, request)
	return b.String()
}
