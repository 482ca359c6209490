package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/types"
)

const searchResultLimit = 10

// RetrievalAgent answers search and browse requests from storage. It
// is the one role agent that works without the AI supervisor.
type RetrievalAgent struct {
	base
}

// NewRetrieval creates the retrieval agent.
func NewRetrieval(deps Deps) *RetrievalAgent {
	return &RetrievalAgent{base: newBase(deps, types.RoleRetrieval)}
}

func (a *RetrievalAgent) Execute(ctx context.Context, work *types.WorkItem, session *types.SessionContext) (*Result, error) {
	kb, err := a.resolveKB(ctx, work, session)
	if err != nil {
		return nil, err
	}

	query := ExtractQuery(workRequest(work))
	listing, count, err := a.Lookup(ctx, kb, query)
	if err != nil {
		return nil, err
	}

	a.emit(ctx, events.New(events.EventTypeRetrievalPerformed, work.ID, a.deps.WorkerID,
		a.role.String(), events.SeverityInfo,
		fmt.Sprintf("retrieval in KB %q matched %d article(s)", kb.Name, count),
		map[string]any{"kb_id": kb.ID, "query": query, "matches": count}))

	a.note(ctx, work, listing)
	return &Result{Summary: listing}, nil
}

// Lookup searches the KB (or lists the top level for an empty query)
// and formats the result. Also used directly by the chat REPL.
func (a *RetrievalAgent) Lookup(ctx context.Context, kb *types.KnowledgeBase, query string) (string, int, error) {
	var articles []*types.Article
	var err error
	if query == "" {
		articles, err = a.deps.Store.GetRootArticles(ctx, kb.ID)
	} else {
		articles, err = a.deps.Store.SearchArticles(ctx, kb.ID, query, searchResultLimit)
	}
	if err != nil {
		return "", 0, fmt.Errorf("retrieval in KB %d failed: %w", kb.ID, err)
	}

	return formatListing(kb, query, articles), len(articles), nil
}

// ReadArticle formats a single article with its children for display.
func (a *RetrievalAgent) ReadArticle(ctx context.Context, articleID int64) (string, error) {
	article, err := a.deps.Store.GetArticle(ctx, articleID)
	if err != nil {
		return "", fmt.Errorf("failed to load article %d: %w", articleID, err)
	}
	children, err := a.deps.Store.GetChildArticles(ctx, articleID)
	if err != nil {
		return "", fmt.Errorf("failed to list children of article %d: %w", articleID, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n%s\n", article.Title, article.Content)
	if len(children) > 0 {
		b.WriteString("\nSubsections:\n")
		for _, c := range children {
			fmt.Fprintf(&b, "- %s (id %d)\n", c.Title, c.ID)
		}
	}
	return b.String(), nil
}

func formatListing(kb *types.KnowledgeBase, query string, articles []*types.Article) string {
	var b strings.Builder
	if query == "" {
		fmt.Fprintf(&b, "Top-level articles in %q:\n", kb.Name)
	} else {
		fmt.Fprintf(&b, "Articles in %q matching %q:\n", kb.Name, query)
	}
	if len(articles) == 0 {
		b.WriteString("(none found)\n")
		return b.String()
	}
	for _, a := range articles {
		fmt.Fprintf(&b, "- %s (id %d, updated %s)\n", a.Title, a.ID, a.UpdatedAt.Format("2006-01-02"))
	}
	return b.String()
}

// ExtractQuery pulls the search terms out of a request phrased as an
// instruction ("search for X", "find articles about X").
func ExtractQuery(request string) string {
	q := strings.TrimSpace(request)
	lower := strings.ToLower(q)
	for _, prefix := range []string{
		"search for", "search", "find articles about", "find articles on",
		"find", "look up", "show me", "show", "list articles about", "list",
	} {
		if strings.HasPrefix(lower, prefix) {
			q = strings.TrimSpace(q[len(prefix):])
			break
		}
	}
	if strings.EqualFold(q, "all") || strings.EqualFold(q, "everything") {
		return ""
	}
	return q
}
