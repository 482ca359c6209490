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

// followUpCap bounds how many creator issues one planning pass files.
const followUpCap = 8

// PlannerAgent turns planning work items into a content strategy and
// files creator work for the sections the KB does not cover yet.
type PlannerAgent struct {
	base
}

// NewPlanner creates the planner agent.
func NewPlanner(deps Deps) *PlannerAgent {
	return &PlannerAgent{base: newBase(deps, types.RolePlanner)}
}

func (a *PlannerAgent) Execute(ctx context.Context, work *types.WorkItem, session *types.SessionContext) (*Result, error) {
	if err := a.requireAI(); err != nil {
		return nil, err
	}

	kb, err := a.resolveKB(ctx, work, session)
	if err != nil {
		return nil, err
	}

	strategy, err := a.deps.AI.PlanContent(ctx, work.ID, workRequest(work), kb)
	if err != nil {
		return nil, fmt.Errorf("planning failed for %s: %w", work.ID, err)
	}

	if strategy.ClarificationNeeded {
		a.note(ctx, work, clarificationNote(strategy.Questions))
		return &Result{
			Summary: fmt.Sprintf("Planning for KB %q needs clarification: %s",
				kb.Name, strings.Join(strategy.Questions, "; ")),
		}, nil
	}

	a.emit(ctx, events.New(events.EventTypeStrategyPlanned, work.ID, a.deps.WorkerID,
		a.role.String(), events.SeverityInfo,
		fmt.Sprintf("content strategy for KB %q: %d themes, %d sections",
			kb.Name, len(strategy.Themes), len(strategy.Outline)),
		map[string]any{"kb_id": kb.ID, "themes": strategy.Themes}))

	filed, err := a.fileMissingSections(ctx, work, kb, strategy.Outline)
	if err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("Planned content for KB %q: themes [%s]; filed %d new article task(s).",
		kb.Name, strings.Join(strategy.Themes, ", "), len(filed))
	a.note(ctx, work, summary)
	return &Result{Summary: summary, FiledWork: filed}, nil
}

// fileMissingSections creates a creator work item per top-level outline
// section that has no article yet.
func (a *PlannerAgent) fileMissingSections(ctx context.Context, work *types.WorkItem, kb *types.KnowledgeBase, outline []ai.OutlineSection) ([]string, error) {
	if a.deps.Tracker == nil {
		return nil, nil
	}

	var filed []string
	for _, section := range outline {
		if len(filed) >= followUpCap {
			break
		}
		if err := a.deps.Guard.CheckDuplicateTitle(ctx, kb.ID, section.Title, 0); err != nil {
			continue // already covered, or the title itself is unusable
		}

		issue, err := a.deps.Tracker.CreateIssue(ctx, work.ProjectID, tracker.CreateIssueOptions{
			Title:       fmt.Sprintf("Write article: %s", section.Title),
			Description: section.Summary,
			Labels: []string{
				tracker.RoleLabel(types.RoleCreator),
				tracker.PriorityLabel(section.Priority),
				"knowledge-base",
			},
		})
		if err != nil {
			return filed, fmt.Errorf("failed to file creator work for %q: %w", section.Title, err)
		}

		workID := types.WorkID(work.ProjectID, issue.IID)
		filed = append(filed, workID)
		a.emit(ctx, events.New(events.EventTypeTrackerIssueCreated, workID, a.deps.WorkerID,
			a.role.String(), events.SeverityInfo,
			fmt.Sprintf("filed creator work for section %q", section.Title), nil))
	}
	return filed, nil
}

func clarificationNote(questions []string) string {
	var b strings.Builder
	b.WriteString("Planning needs clarification before content work can start:\n")
	for _, q := range questions {
		fmt.Fprintf(&b, "- %s\n", q)
	}
	return b.String()
}
