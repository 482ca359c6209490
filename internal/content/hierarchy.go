package content

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/curateops/curator/internal/types"
)

// DefaultMaxDepth is the deepest article nesting the guard allows.
// Deeper trees read as navigation mazes, not documentation.
const DefaultMaxDepth = 6

// Guard violations, distinguishable so agents can rephrase instead of
// retrying blindly.
var (
	ErrCycle          = errors.New("article hierarchy cycle")
	ErrTooDeep        = errors.New("article hierarchy too deep")
	ErrDuplicateTitle = errors.New("duplicate article title")
	ErrCrossKB        = errors.New("parent belongs to a different knowledge base")
)

// ArticleReader is the slice of storage the hierarchy guard needs.
type ArticleReader interface {
	GetArticle(ctx context.Context, id int64) (*types.Article, error)
	GetRootArticles(ctx context.Context, kbID int64) ([]*types.Article, error)
	GetChildArticles(ctx context.Context, parentID int64) ([]*types.Article, error)
}

// Guard validates article placement before writes. The creator and
// planner agents run every new or re-parented article through it.
type Guard struct {
	store    ArticleReader
	maxDepth int
}

// NewGuard creates a hierarchy guard. maxDepth <= 0 uses the default.
func NewGuard(store ArticleReader) *Guard {
	return &Guard{store: store, maxDepth: DefaultMaxDepth}
}

// WithMaxDepth overrides the depth limit.
func (g *Guard) WithMaxDepth(depth int) *Guard {
	if depth > 0 {
		g.maxDepth = depth
	}
	return g
}

// ValidatePlacement checks that attaching article (0 for a new one) under
// parentID (nil for root) is legal: parent exists, same KB, no cycle,
// within the depth limit.
func (g *Guard) ValidatePlacement(ctx context.Context, kbID, articleID int64, parentID *int64) error {
	if parentID == nil {
		return nil
	}
	if articleID != 0 && *parentID == articleID {
		return fmt.Errorf("article %d cannot be its own parent: %w", articleID, ErrCycle)
	}

	// Walk the parent chain to the root. The visited set catches
	// pre-existing corruption as well as the cycle this placement
	// would create.
	visited := map[int64]bool{}
	if articleID != 0 {
		visited[articleID] = true
	}

	depth := 1 // the article itself
	current := *parentID
	for {
		if visited[current] {
			return fmt.Errorf("article %d already appears in the parent chain: %w", current, ErrCycle)
		}
		visited[current] = true

		parent, err := g.store.GetArticle(ctx, current)
		if err != nil {
			return fmt.Errorf("failed to load parent article %d: %w", current, err)
		}
		if parent.KnowledgeBaseID != kbID {
			return fmt.Errorf("parent article %d is in KB %d, not KB %d: %w",
				parent.ID, parent.KnowledgeBaseID, kbID, ErrCrossKB)
		}

		depth++
		if depth > g.maxDepth {
			return fmt.Errorf("placement exceeds max depth %d: %w", g.maxDepth, ErrTooDeep)
		}
		if parent.ParentID == nil {
			return nil
		}
		current = *parent.ParentID
	}
}

// CheckDuplicateTitle reports ErrDuplicateTitle when another active
// article in the KB has the same normalized title. excludeID skips the
// article being updated.
func (g *Guard) CheckDuplicateTitle(ctx context.Context, kbID int64, title string, excludeID int64) error {
	want := NormalizeTitle(title)
	if want == "" {
		return fmt.Errorf("article title is empty")
	}

	roots, err := g.store.GetRootArticles(ctx, kbID)
	if err != nil {
		return fmt.Errorf("failed to list articles for KB %d: %w", kbID, err)
	}

	queue := roots
	for len(queue) > 0 {
		a := queue[0]
		queue = queue[1:]

		if a.ID != excludeID && NormalizeTitle(a.Title) == want {
			return fmt.Errorf("KB %d already has an article titled %q (id %d): %w",
				kbID, a.Title, a.ID, ErrDuplicateTitle)
		}

		children, err := g.store.GetChildArticles(ctx, a.ID)
		if err != nil {
			return fmt.Errorf("failed to list children of article %d: %w", a.ID, err)
		}
		queue = append(queue, children...)
	}
	return nil
}

// NormalizeTitle collapses whitespace and case for duplicate
// comparison. Display titles keep their original form.
func NormalizeTitle(title string) string {
	return strings.ToLower(strings.Join(strings.Fields(title), " "))
}
