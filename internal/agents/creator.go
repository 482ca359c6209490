package agents

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/curateops/curator/internal/ai"
	"github.com/curateops/curator/internal/content"
	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/types"
)

// existingTitlesCap bounds how many current titles go into the
// drafting prompt.
const existingTitlesCap = 100

// CreatorAgent drafts articles and writes them through the hierarchy
// guard.
type CreatorAgent struct {
	base
}

// NewCreator creates the creator agent.
func NewCreator(deps Deps) *CreatorAgent {
	return &CreatorAgent{base: newBase(deps, types.RoleCreator)}
}

func (a *CreatorAgent) Execute(ctx context.Context, work *types.WorkItem, session *types.SessionContext) (*Result, error) {
	if err := a.requireAI(); err != nil {
		return nil, err
	}

	kb, err := a.resolveKB(ctx, work, session)
	if err != nil {
		return nil, err
	}

	existing, err := a.existingTitles(ctx, kb.ID, existingTitlesCap)
	if err != nil {
		return nil, err
	}

	draft, err := a.deps.AI.DraftArticle(ctx, work.ID, workRequest(work), nil, kb, existing)
	if err != nil {
		return nil, fmt.Errorf("drafting failed for %s: %w", work.ID, err)
	}

	article, err := a.writeDraft(ctx, work, kb, draft)
	if err != nil {
		return nil, err
	}

	summary := fmt.Sprintf("Created article %q (id %d) in KB %q.", article.Title, article.ID, kb.Name)
	if draft.Summary != "" {
		summary += " " + draft.Summary
	}
	a.note(ctx, work, summary)
	return &Result{Summary: summary, ArticleIDs: []int64{article.ID}}, nil
}

// writeDraft runs the draft through the guards and persists it.
func (a *CreatorAgent) writeDraft(ctx context.Context, work *types.WorkItem, kb *types.KnowledgeBase, draft *ai.ArticleDraft) (*types.Article, error) {
	if err := a.deps.Guard.CheckDuplicateTitle(ctx, kb.ID, draft.Title, 0); err != nil {
		return nil, fmt.Errorf("draft rejected: %w", err)
	}

	parentID, err := a.resolveParent(ctx, kb.ID, draft.ParentTitle)
	if err != nil {
		return nil, err
	}
	if err := a.deps.Guard.ValidatePlacement(ctx, kb.ID, 0, parentID); err != nil {
		if errors.Is(err, content.ErrTooDeep) || errors.Is(err, content.ErrCycle) {
			// Bad placement is the model's mistake, not a reason to
			// drop the content: fall back to the root.
			parentID = nil
		} else {
			return nil, fmt.Errorf("draft placement rejected: %w", err)
		}
	}

	article := &types.Article{
		KnowledgeBaseID: kb.ID,
		Title:           draft.Title,
		Content:         draft.Content,
		AuthorID:        a.deps.WorkerID,
		ParentID:        parentID,
		IsActive:        true,
	}
	if err := a.deps.Store.CreateArticle(ctx, article); err != nil {
		return nil, fmt.Errorf("failed to store article %q: %w", draft.Title, err)
	}

	for _, tag := range content.NormalizeTags(draft.Tags) {
		if err := a.deps.Store.AttachTag(ctx, article.ID, tag); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to tag article %d with %q: %v\n", article.ID, tag, err)
		}
	}

	if e, err := events.NewArticleEvent(events.EventTypeArticleCreated, work.ID, a.deps.WorkerID,
		a.role.String(), fmt.Sprintf("article %q created", article.Title), events.ArticleData{
			ArticleID:       article.ID,
			KnowledgeBaseID: kb.ID,
			Title:           article.Title,
			ParentID:        parentID,
		}); err == nil {
		a.emit(ctx, e)
	}
	return article, nil
}

// resolveParent finds the article named by the draft's parent title,
// nil (root) when the title is empty or matches nothing.
func (a *CreatorAgent) resolveParent(ctx context.Context, kbID int64, parentTitle string) (*int64, error) {
	if parentTitle == "" {
		return nil, nil
	}
	matches, err := a.deps.Store.SearchArticles(ctx, kbID, parentTitle, 5)
	if err != nil {
		return nil, fmt.Errorf("failed to search for parent %q: %w", parentTitle, err)
	}
	want := content.NormalizeTitle(parentTitle)
	for _, m := range matches {
		if content.NormalizeTitle(m.Title) == want {
			return &m.ID, nil
		}
	}
	return nil, nil
}
