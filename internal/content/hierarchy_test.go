package content

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateops/curator/internal/types"
)

// fakeStore is an in-memory ArticleReader.
type fakeStore struct {
	articles map[int64]*types.Article
}

func newFakeStore(articles ...*types.Article) *fakeStore {
	s := &fakeStore{articles: make(map[int64]*types.Article)}
	for _, a := range articles {
		s.articles[a.ID] = a
	}
	return s
}

func (s *fakeStore) GetArticle(_ context.Context, id int64) (*types.Article, error) {
	a, ok := s.articles[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	return a, nil
}

func (s *fakeStore) GetRootArticles(_ context.Context, kbID int64) ([]*types.Article, error) {
	var out []*types.Article
	for _, a := range s.articles {
		if a.KnowledgeBaseID == kbID && a.ParentID == nil {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) GetChildArticles(_ context.Context, parentID int64) ([]*types.Article, error) {
	var out []*types.Article
	for _, a := range s.articles {
		if a.ParentID != nil && *a.ParentID == parentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func ptr(v int64) *int64 { return &v }

func article(id, kbID int64, title string, parentID *int64) *types.Article {
	return &types.Article{ID: id, KnowledgeBaseID: kbID, Title: title, ParentID: parentID, IsActive: true}
}

func TestValidatePlacementRoot(t *testing.T) {
	g := NewGuard(newFakeStore())
	assert.NoError(t, g.ValidatePlacement(context.Background(), 1, 0, nil))
}

func TestValidatePlacementChain(t *testing.T) {
	store := newFakeStore(
		article(1, 1, "Root", nil),
		article(2, 1, "Guide", ptr(1)),
	)
	g := NewGuard(store)

	// New article under the guide: root -> guide -> new, depth 3.
	assert.NoError(t, g.ValidatePlacement(context.Background(), 1, 0, ptr(2)))
}

func TestValidatePlacementSelfParent(t *testing.T) {
	g := NewGuard(newFakeStore(article(1, 1, "Root", nil)))
	err := g.ValidatePlacement(context.Background(), 1, 1, ptr(1))
	assert.ErrorIs(t, err, ErrCycle)
}

func TestValidatePlacementCycle(t *testing.T) {
	// 1 -> 2 -> 3; re-parenting 1 under 3 closes the loop.
	store := newFakeStore(
		article(1, 1, "A", nil),
		article(2, 1, "B", ptr(1)),
		article(3, 1, "C", ptr(2)),
	)
	g := NewGuard(store)

	err := g.ValidatePlacement(context.Background(), 1, 1, ptr(3))
	assert.ErrorIs(t, err, ErrCycle)
}

func TestValidatePlacementDepthLimit(t *testing.T) {
	store := newFakeStore(
		article(1, 1, "L1", nil),
		article(2, 1, "L2", ptr(1)),
		article(3, 1, "L3", ptr(2)),
	)
	g := NewGuard(store).WithMaxDepth(3)

	// The chain is already at the limit; one more level is rejected.
	err := g.ValidatePlacement(context.Background(), 1, 0, ptr(3))
	assert.ErrorIs(t, err, ErrTooDeep)

	assert.NoError(t, g.ValidatePlacement(context.Background(), 1, 0, ptr(2)))
}

func TestValidatePlacementCrossKB(t *testing.T) {
	store := newFakeStore(article(1, 2, "Other KB root", nil))
	g := NewGuard(store)

	err := g.ValidatePlacement(context.Background(), 1, 0, ptr(1))
	assert.ErrorIs(t, err, ErrCrossKB)
}

func TestCheckDuplicateTitle(t *testing.T) {
	store := newFakeStore(
		article(1, 1, "Getting Started", nil),
		article(2, 1, "API Reference", ptr(1)),
	)
	g := NewGuard(store)
	ctx := context.Background()

	// Case and spacing differences still count as duplicates.
	err := g.CheckDuplicateTitle(ctx, 1, "getting  STARTED", 0)
	assert.ErrorIs(t, err, ErrDuplicateTitle)

	err = g.CheckDuplicateTitle(ctx, 1, "API Reference", 0)
	assert.ErrorIs(t, err, ErrDuplicateTitle)

	// Updating an article keeps its own title.
	require.NoError(t, g.CheckDuplicateTitle(ctx, 1, "API Reference", 2))

	require.NoError(t, g.CheckDuplicateTitle(ctx, 1, "Deployment", 0))

	// Same title in another KB is fine.
	require.NoError(t, g.CheckDuplicateTitle(ctx, 2, "Getting Started", 0))
}

func TestNormalizeTitle(t *testing.T) {
	assert.Equal(t, "getting started", NormalizeTitle("  Getting   Started "))
	assert.Equal(t, "", NormalizeTitle("   "))
}
