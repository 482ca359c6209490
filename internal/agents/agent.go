package agents

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/curateops/curator/internal/ai"
	"github.com/curateops/curator/internal/content"
	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/storage"
	"github.com/curateops/curator/internal/tracker"
	"github.com/curateops/curator/internal/types"
)

// Result is what an agent produced for a work item. The summary goes
// to the supervisor review and, on completion, into the tracker note.
type Result struct {
	Summary    string   `json:"summary"`
	ArticleIDs []int64  `json:"article_ids,omitempty"`
	FiledWork  []string `json:"filed_work,omitempty"` // work IDs of follow-ups this agent created
}

// Agent executes work items for one role.
type Agent interface {
	Role() types.AgentRole
	Execute(ctx context.Context, work *types.WorkItem, session *types.SessionContext) (*Result, error)
}

// Deps are the shared handles every agent gets. Tracker and AI may be
// nil when the worker is running degraded; agents that need them
// return an error rather than panicking.
type Deps struct {
	Store    storage.Storage
	Tracker  *tracker.Client
	AI       *ai.Supervisor
	Guard    *content.Guard
	WorkerID string
}

// base carries the shared handles and helpers. Role agents embed it.
type base struct {
	deps Deps
	role types.AgentRole
}

func newBase(deps Deps, role types.AgentRole) base {
	if deps.Guard == nil && deps.Store != nil {
		deps.Guard = content.NewGuard(deps.Store)
	}
	return base{deps: deps, role: role}
}

func (b *base) Role() types.AgentRole { return b.role }

func (b *base) requireAI() error {
	if b.deps.AI == nil {
		return fmt.Errorf("%s agent needs the AI supervisor, which is unavailable", b.role)
	}
	return nil
}

func (b *base) requireTracker() error {
	if b.deps.Tracker == nil {
		return fmt.Errorf("%s agent needs the tracker, which is unavailable", b.role)
	}
	return nil
}

// emit stores an agent event, warning instead of failing; events are
// observability, not control flow.
func (b *base) emit(ctx context.Context, e *events.AgentEvent) {
	if b.deps.Store == nil || e == nil {
		return
	}
	if err := b.deps.Store.StoreEvent(ctx, e); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to store %s event: %v\n", e.Type, err)
	}
}

// note posts a best-effort tracker note on the work item.
func (b *base) note(ctx context.Context, work *types.WorkItem, body string) {
	if b.deps.Tracker == nil || body == "" {
		return
	}
	if _, err := b.deps.Tracker.CreateNote(ctx, work.ProjectID, work.IID, body); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to post note on %s: %v\n", work.ID, err)
	}
}

// resolveKB finds the knowledge base a work item belongs to: the
// session's KB when set, then the work item's project link, then a
// kb- slug label match.
func (b *base) resolveKB(ctx context.Context, work *types.WorkItem, session *types.SessionContext) (*types.KnowledgeBase, error) {
	if session != nil && session.KnowledgeBaseID != nil {
		kb, err := b.deps.Store.GetKnowledgeBase(ctx, *session.KnowledgeBaseID)
		if err == nil {
			return kb, nil
		}
	}

	kbs, err := b.deps.Store.ListKnowledgeBases(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge bases: %w", err)
	}
	for _, kb := range kbs {
		if kb.TrackerProjectID != "" && kb.TrackerProjectID == work.ProjectID {
			return kb, nil
		}
	}
	for _, kb := range kbs {
		slug := tracker.SanitizeProjectName(kb.Name)
		for _, label := range work.Labels {
			if label == slug {
				return kb, nil
			}
		}
	}
	return nil, fmt.Errorf("no knowledge base matches work item %s: %w", work.ID, types.ErrNotFound)
}

// existingTitles walks the KB tree collecting titles, capped so a huge
// KB does not blow up a prompt.
func (b *base) existingTitles(ctx context.Context, kbID int64, max int) ([]string, error) {
	roots, err := b.deps.Store.GetRootArticles(ctx, kbID)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles for KB %d: %w", kbID, err)
	}

	var titles []string
	queue := roots
	for len(queue) > 0 && len(titles) < max {
		a := queue[0]
		queue = queue[1:]
		titles = append(titles, a.Title)

		children, err := b.deps.Store.GetChildArticles(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list children of article %d: %w", a.ID, err)
		}
		queue = append(queue, children...)
	}
	return titles, nil
}

// workRequest is the text the agent actually acts on: the description
// when present, otherwise the title.
func workRequest(work *types.WorkItem) string {
	if strings.TrimSpace(work.Description) != "" {
		return work.Description
	}
	return work.Title
}

// Registry maps roles to agents.
type Registry struct {
	agents map[types.AgentRole]Agent
}

// NewRegistry builds the full agent set from shared deps.
func NewRegistry(deps Deps) *Registry {
	r := &Registry{agents: make(map[types.AgentRole]Agent)}
	for _, a := range []Agent{
		NewManagement(deps),
		NewPlanner(deps),
		NewCreator(deps),
		NewReviewer(deps),
		NewRetrieval(deps),
		NewSupervisor(deps),
	} {
		r.agents[a.Role()] = a
	}
	return r
}

// ForRole returns the agent for a role.
func (r *Registry) ForRole(role types.AgentRole) (Agent, bool) {
	a, ok := r.agents[role]
	return a, ok
}

// ForWork picks the agent for a work item by its role label.
func (r *Registry) ForWork(work *types.WorkItem) (Agent, error) {
	if work.Role == "" {
		return nil, fmt.Errorf("work item %s has no role", work.ID)
	}
	a, ok := r.agents[work.Role]
	if !ok {
		return nil, fmt.Errorf("no agent registered for role %s", work.Role)
	}
	return a, nil
}

// Retrieval returns the retrieval agent, whose lookup helpers the
// chat REPL calls directly.
func (r *Registry) Retrieval() *RetrievalAgent {
	if a, ok := r.agents[types.RoleRetrieval]; ok {
		if ra, ok := a.(*RetrievalAgent); ok {
			return ra
		}
	}
	return nil
}

// Management returns the management agent, which carries maintenance
// entry points beyond the Agent interface.
func (r *Registry) Management() *ManagementAgent {
	if a, ok := r.agents[types.RoleManagement]; ok {
		if m, ok := a.(*ManagementAgent); ok {
			return m
		}
	}
	return nil
}

// Supervisor returns the completion reviewer.
func (r *Registry) Supervisor() *SupervisorAgent {
	if a, ok := r.agents[types.RoleSupervisor]; ok {
		if s, ok := a.(*SupervisorAgent); ok {
			return s
		}
	}
	return nil
}
