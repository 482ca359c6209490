package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/curateops/curator/internal/ai"
	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/tracker"
	"github.com/curateops/curator/internal/types"
)

// SupervisorAgent reviews other agents' results before their work
// items close. Approvals pass through; revisions reopen the item with
// requirements; escalations file a P0 for a human.
type SupervisorAgent struct {
	base
}

// NewSupervisor creates the supervisor agent.
func NewSupervisor(deps Deps) *SupervisorAgent {
	return &SupervisorAgent{base: newBase(deps, types.RoleSupervisor)}
}

// Review judges a finished result. The returned verdict tells the
// worker whether to complete the item; tracker side effects for
// revise and escalate have already happened when this returns.
func (a *SupervisorAgent) Review(ctx context.Context, work *types.WorkItem, result *Result) (*ai.ReviewVerdict, error) {
	if a.deps.AI == nil {
		// Degraded mode: without a reviewer every result passes, which
		// beats wedging the whole queue.
		return &ai.ReviewVerdict{Verdict: ai.VerdictApprove, Score: 0,
			Reasoning: "auto-approved: AI supervisor unavailable"}, nil
	}

	verdict, err := a.deps.AI.ReviewWorkProduct(ctx, work, result.Summary)
	if err != nil {
		return nil, fmt.Errorf("supervisor review of %s failed: %w", work.ID, err)
	}

	if e, err := events.NewReviewEvent(work.ID, a.deps.WorkerID,
		fmt.Sprintf("work product review: %s (%.2f)", verdict.Verdict, verdict.Score),
		events.ReviewData{Verdict: verdict.Verdict, Score: verdict.Score, Issues: verdict.Issues}); err == nil {
		a.emit(ctx, e)
	}

	switch verdict.Verdict {
	case ai.VerdictApprove:
		// The worker closes the item.
	case ai.VerdictRevise:
		if a.deps.Tracker != nil {
			if err := a.deps.Tracker.RequestRevision(ctx, work.ProjectID, work.IID, verdict.RevisionRequirements); err != nil {
				return nil, fmt.Errorf("failed to request revision on %s: %w", work.ID, err)
			}
		}
	case ai.VerdictEscalate:
		if err := a.escalate(ctx, work, verdict); err != nil {
			return nil, err
		}
	}
	return verdict, nil
}

// escalate files a P0 management item referencing the troubled work.
func (a *SupervisorAgent) escalate(ctx context.Context, work *types.WorkItem, verdict *ai.ReviewVerdict) error {
	if a.deps.Tracker == nil {
		return nil
	}

	issue, err := a.deps.Tracker.CreateIssue(ctx, work.ProjectID, tracker.CreateIssueOptions{
		Title: fmt.Sprintf("Escalation: %s", work.Title),
		Description: fmt.Sprintf("Work item %s escalated by supervisor review (score %.2f).\n\n%s\n\nIssues:\n- %s",
			work.ID, verdict.Score, verdict.Reasoning, strings.Join(verdict.Issues, "\n- ")),
		Labels: []string{
			tracker.RoleLabel(types.RoleManagement),
			tracker.LabelEscalation,
			tracker.PriorityLabel(0),
			"knowledge-base",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to file escalation for %s: %w", work.ID, err)
	}

	a.note(ctx, work, fmt.Sprintf("Escalated to %s for human review.", types.WorkID(work.ProjectID, issue.IID)))
	return nil
}

// Execute handles supervisor-routed queue work: a second opinion on an
// item another agent already attempted.
func (a *SupervisorAgent) Execute(ctx context.Context, work *types.WorkItem, session *types.SessionContext) (*Result, error) {
	history, err := a.deps.Store.GetExecutionHistory(ctx, work.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", work.ID, err)
	}
	if len(history) == 0 {
		summary := fmt.Sprintf("Nothing to review: %s has no prior attempts.", work.ID)
		a.note(ctx, work, summary)
		return &Result{Summary: summary}, nil
	}

	last := history[len(history)-1]
	verdict, err := a.Review(ctx, work, &Result{Summary: last.Summary})
	if err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("Reviewed prior attempt by %s: %s (%.2f). %s",
		last.AgentRole, verdict.Verdict, verdict.Score, verdict.Reasoning)
	a.note(ctx, work, summary)
	return &Result{Summary: summary}, nil
}
