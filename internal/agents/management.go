package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/tracker"
	"github.com/curateops/curator/internal/types"
)

// ManagementAgent handles KB lifecycle work: activation, retirement,
// escalation triage, and the sweep that gives finished KBs a tracker
// project of their own.
type ManagementAgent struct {
	base
}

// NewManagement creates the management agent.
func NewManagement(deps Deps) *ManagementAgent {
	return &ManagementAgent{base: newBase(deps, types.RoleManagement)}
}

func (a *ManagementAgent) Execute(ctx context.Context, work *types.WorkItem, session *types.SessionContext) (*Result, error) {
	if work.HasLabel(tracker.LabelEscalation) {
		return a.triageEscalation(ctx, work)
	}

	kb, err := a.resolveKB(ctx, work, session)
	if err != nil {
		return nil, err
	}

	request := strings.ToLower(workRequest(work))
	switch {
	case containsAny(request, "deactivate", "retire", "archive", "mark done", "finish"):
		return a.setActive(ctx, work, kb, false)
	case containsAny(request, "activate", "reopen", "resume"):
		return a.setActive(ctx, work, kb, true)
	default:
		return a.validateContext(ctx, work, kb)
	}
}

// triageEscalation summarizes an escalated item's history so a human
// picking it up starts with context instead of raw event rows.
func (a *ManagementAgent) triageEscalation(ctx context.Context, work *types.WorkItem) (*Result, error) {
	history, err := a.deps.Store.GetExecutionHistory(ctx, work.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history for %s: %w", work.ID, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Escalation triage for %s (%d prior attempt(s)):\n", work.ID, len(history))
	for _, h := range history {
		fmt.Fprintf(&b, "- %s by %s ended %s", h.AgentRole, h.InstanceID, h.FinalState)
		if h.Summary != "" {
			fmt.Fprintf(&b, ": %s", h.Summary)
		}
		b.WriteString("\n")
	}
	b.WriteString("This item stays open for human review.")

	summary := b.String()
	a.note(ctx, work, summary)
	return &Result{Summary: summary}, nil
}

func (a *ManagementAgent) setActive(ctx context.Context, work *types.WorkItem, kb *types.KnowledgeBase, active bool) (*Result, error) {
	if kb.IsActive == active {
		summary := fmt.Sprintf("KB %q already %s.", kb.Name, activeWord(active))
		return &Result{Summary: summary}, nil
	}

	kb.IsActive = active
	if err := a.deps.Store.UpdateKnowledgeBase(ctx, kb); err != nil {
		return nil, fmt.Errorf("failed to update KB %d: %w", kb.ID, err)
	}

	eventType := events.EventTypeKBDone
	if active {
		eventType = events.EventTypeKBCreated
	}
	a.emit(ctx, events.New(eventType, work.ID, a.deps.WorkerID, a.role.String(),
		events.SeverityInfo, fmt.Sprintf("KB %q marked %s", kb.Name, activeWord(active)),
		map[string]any{"kb_id": kb.ID}))

	summary := fmt.Sprintf("KB %q is now %s.", kb.Name, activeWord(active))
	a.note(ctx, work, summary)
	return &Result{Summary: summary}, nil
}

// validateContext checks the KB's wiring: active flag, tracker link,
// article count. The standard deployment issue routes here.
func (a *ManagementAgent) validateContext(ctx context.Context, work *types.WorkItem, kb *types.KnowledgeBase) (*Result, error) {
	roots, err := a.deps.Store.GetRootArticles(ctx, kb.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles for KB %d: %w", kb.ID, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "KB %q status: %s, %d top-level article(s)", kb.Name, activeWord(kb.IsActive), len(roots))
	if kb.TrackerProjectID == "" {
		b.WriteString("; not linked to a tracker project")
	} else {
		fmt.Fprintf(&b, "; tracker project %s", kb.TrackerProjectID)
	}
	b.WriteString(".")

	summary := b.String()
	a.note(ctx, work, summary)
	return &Result{Summary: summary}, nil
}

// SweepDoneKBs gives every KB that was marked done without a tracker
// project one, with the standard issue set. The swarm runs this on an
// interval.
func (a *ManagementAgent) SweepDoneKBs(ctx context.Context) (int, error) {
	if err := a.requireTracker(); err != nil {
		return 0, err
	}

	kbs, err := a.deps.Store.GetDoneKnowledgeBases(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list done KBs: %w", err)
	}

	var created int
	for _, kb := range kbs {
		project, err := a.deps.Tracker.BootstrapKB(ctx, a.deps.Store, kb)
		if err != nil {
			return created, fmt.Errorf("failed to bootstrap KB %q: %w", kb.Name, err)
		}
		created++
		a.emit(ctx, events.New(events.EventTypeTrackerProjectCreated, "", a.deps.WorkerID,
			a.role.String(), events.SeverityInfo,
			fmt.Sprintf("created tracker project %d for done KB %q", project.ID, kb.Name),
			map[string]any{"kb_id": kb.ID, "project_id": project.ID}))
	}
	return created, nil
}

func activeWord(active bool) string {
	if active {
		return "active"
	}
	return "inactive"
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
