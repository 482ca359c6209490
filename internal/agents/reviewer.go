package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/curateops/curator/internal/ai"
	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/tracker"
	"github.com/curateops/curator/internal/types"
)

// reviewBatchSize is how many articles one review pass covers.
const reviewBatchSize = 3

// ReviewerAgent runs quality reviews over a KB's most recently
// updated articles and files revision work for what fails.
type ReviewerAgent struct {
	base
}

// NewReviewer creates the reviewer agent.
func NewReviewer(deps Deps) *ReviewerAgent {
	return &ReviewerAgent{base: newBase(deps, types.RoleReviewer)}
}

func (a *ReviewerAgent) Execute(ctx context.Context, work *types.WorkItem, session *types.SessionContext) (*Result, error) {
	if err := a.requireAI(); err != nil {
		return nil, err
	}

	kb, err := a.resolveKB(ctx, work, session)
	if err != nil {
		return nil, err
	}

	articles, err := a.recentArticles(ctx, kb.ID, reviewBatchSize)
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		summary := fmt.Sprintf("KB %q has no articles to review yet.", kb.Name)
		a.note(ctx, work, summary)
		return &Result{Summary: summary}, nil
	}

	var approved, flagged int
	var filed []string
	var lines []string
	for _, article := range articles {
		verdict, err := a.deps.AI.ReviewContent(ctx, work.ID, article, nil)
		if err != nil {
			return nil, fmt.Errorf("review of article %d failed: %w", article.ID, err)
		}

		switch verdict.Verdict {
		case ai.VerdictApprove:
			approved++
			lines = append(lines, fmt.Sprintf("- %q: approved (%.2f)", article.Title, verdict.Score))
		default:
			flagged++
			workID, err := a.fileRevision(ctx, work, kb, article, verdict)
			if err != nil {
				return nil, err
			}
			if workID != "" {
				filed = append(filed, workID)
			}
			lines = append(lines, fmt.Sprintf("- %q: %s (%.2f): %s",
				article.Title, verdict.Verdict, verdict.Score, strings.Join(verdict.Issues, "; ")))
		}

		if e, err := events.NewReviewEvent(work.ID, a.deps.WorkerID,
			fmt.Sprintf("article %q reviewed: %s", article.Title, verdict.Verdict),
			events.ReviewData{Verdict: verdict.Verdict, Score: verdict.Score, Issues: verdict.Issues}); err == nil {
			a.emit(ctx, e)
		}
	}

	summary := fmt.Sprintf("Reviewed %d article(s) in KB %q: %d approved, %d flagged.\n%s",
		len(articles), kb.Name, approved, flagged, strings.Join(lines, "\n"))
	a.note(ctx, work, summary)
	return &Result{Summary: summary, FiledWork: filed}, nil
}

// recentArticles returns the newest-updated active articles in the KB.
func (a *ReviewerAgent) recentArticles(ctx context.Context, kbID int64, limit int) ([]*types.Article, error) {
	roots, err := a.deps.Store.GetRootArticles(ctx, kbID)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles for KB %d: %w", kbID, err)
	}

	var all []*types.Article
	queue := roots
	for len(queue) > 0 {
		art := queue[0]
		queue = queue[1:]
		all = append(all, art)

		children, err := a.deps.Store.GetChildArticles(ctx, art.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list children of article %d: %w", art.ID, err)
		}
		queue = append(queue, children...)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// fileRevision creates follow-up work for a failed review: a creator
// revision issue, or a P0 escalation for escalate verdicts.
func (a *ReviewerAgent) fileRevision(ctx context.Context, work *types.WorkItem, kb *types.KnowledgeBase, article *types.Article, verdict *ai.ReviewVerdict) (string, error) {
	if a.deps.Tracker == nil {
		return "", nil
	}

	opts := tracker.CreateIssueOptions{
		Title: fmt.Sprintf("Revise article: %s", article.Title),
		Description: fmt.Sprintf("Review of article %d scored %.2f.\n\nRequired changes:\n%s",
			article.ID, verdict.Score, verdict.RevisionRequirements),
		Labels: []string{
			tracker.RoleLabel(types.RoleCreator),
			tracker.LabelRevision,
			tracker.PriorityLabel(1),
			"knowledge-base",
		},
	}
	if verdict.Verdict == ai.VerdictEscalate {
		opts.Title = fmt.Sprintf("Escalation: article %q needs human attention", article.Title)
		opts.Description = fmt.Sprintf("Review of article %d escalated (score %.2f).\n\n%s",
			article.ID, verdict.Score, verdict.Reasoning)
		opts.Labels = []string{
			tracker.RoleLabel(types.RoleManagement),
			tracker.LabelEscalation,
			tracker.PriorityLabel(0),
			"knowledge-base",
		}
	}

	issue, err := a.deps.Tracker.CreateIssue(ctx, work.ProjectID, opts)
	if err != nil {
		return "", fmt.Errorf("failed to file follow-up for article %d: %w", article.ID, err)
	}
	return types.WorkID(work.ProjectID, issue.IID), nil
}
