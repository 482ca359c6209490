package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/curateops/curator/internal/types"
)

// Review verdicts. Approve closes the work, revise files a revision,
// escalate raises a P0 issue for a human.
const (
	VerdictApprove  = "approve"
	VerdictRevise   = "revise"
	VerdictEscalate = "escalate"
)

// ReviewVerdict is the reviewer's or supervisor's judgment of a piece
// of content or an agent's work product.
type ReviewVerdict struct {
	Verdict              string   `json:"verdict"` // approve | revise | escalate
	Score                float64  `json:"score"`   // 0.0 - 1.0
	Issues               []string `json:"issues,omitempty"`
	RevisionRequirements string   `json:"revision_requirements,omitempty"`
	Reasoning            string   `json:"reasoning,omitempty"`
}

// Valid checks the verdict value.
func (v ReviewVerdict) Valid() bool {
	switch v.Verdict {
	case VerdictApprove, VerdictRevise, VerdictEscalate:
		return true
	}
	return false
}

// ReviewContent assesses an article against the given criteria
// (accuracy, completeness, consistency by default).
func (s *Supervisor) ReviewContent(ctx context.Context, workID string, article *types.Article, criteria []string) (*ReviewVerdict, error) {
	if len(criteria) == 0 {
		criteria = []string{"accuracy", "completeness", "consistency", "clarity"}
	}
	prompt := buildReviewPrompt(article, criteria)

	response, err := s.callModel(ctx, workID, "content-review", s.model, prompt, 4096)
	if err != nil {
		return nil, fmt.Errorf("content review: %w", err)
	}

	verdict, err := parseInto[ReviewVerdict](response, "review response")
	if err != nil {
		return nil, err
	}
	if !verdict.Valid() {
		return nil, fmt.Errorf("review returned unknown verdict %q", verdict.Verdict)
	}
	if verdict.Verdict == VerdictRevise && verdict.RevisionRequirements == "" {
		verdict.RevisionRequirements = strings.Join(verdict.Issues, "; ")
	}
	return &verdict, nil
}

// ReviewWorkProduct is the supervisor-stage review of another agent's
// result summary before the work item is closed.
func (s *Supervisor) ReviewWorkProduct(ctx context.Context, work *types.WorkItem, resultSummary string) (*ReviewVerdict, error) {
	prompt := fmt.Sprintf(`You supervise autonomous content agents. An agent finished a work
item; decide whether its result is acceptable.

Work item: %s
Title: %s
Description:
%s

Agent result:
%s

Verdicts:
- approve: the result accomplishes what the work item asked
- revise: fixable problems; describe them in revision_requirements
- escalate: the agent is stuck, looping, or doing damage; a human must look

Respond with JSON only:
{"verdict": "approve|revise|escalate", "score": 0.0-1.0, "issues": [], "revision_requirements": "", "reasoning": "one sentence"}`,
		work.ID, work.Title, work.Description, resultSummary)

	response, err := s.callModel(ctx, work.ID, "work-review", s.model, prompt, 4096)
	if err != nil {
		return nil, fmt.Errorf("work review: %w", err)
	}

	verdict, err := parseInto[ReviewVerdict](response, "work review response")
	if err != nil {
		return nil, err
	}
	if !verdict.Valid() {
		return nil, fmt.Errorf("work review returned unknown verdict %q", verdict.Verdict)
	}
	return &verdict, nil
}

func buildReviewPrompt(article *types.Article, criteria []string) string {
	return fmt.Sprintf(`You are reviewing a knowledge base article.

Criteria: %s

Title: %s

Content:
%s

Verdicts: approve (publishable), revise (fixable problems), escalate
(fundamentally wrong, needs a human).

Respond with JSON only:
{"verdict": "approve|revise|escalate", "score": 0.0-1.0, "issues": ["specific problems"], "revision_requirements": "what to change", "reasoning": "one sentence"}`,
		strings.Join(criteria, ", "), article.Title, article.Content)
}
