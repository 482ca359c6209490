package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateops/curator/internal/types"
)

func createTestKB(t *testing.T, s *SQLiteStorage) *types.KnowledgeBase {
	t.Helper()
	kb := &types.KnowledgeBase{Name: "Platform Runbooks", IsActive: true}
	require.NoError(t, s.CreateKnowledgeBase(context.Background(), kb))
	return kb
}

func TestKnowledgeBaseCRUD(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	kb := createTestKB(t, s)
	assert.NotZero(t, kb.ID)

	got, err := s.GetKnowledgeBase(ctx, kb.ID)
	require.NoError(t, err)
	assert.Equal(t, "Platform Runbooks", got.Name)

	got.Description = "On-call procedures"
	require.NoError(t, s.UpdateKnowledgeBase(ctx, got))

	kbs, err := s.ListKnowledgeBases(ctx, true)
	require.NoError(t, err)
	require.Len(t, kbs, 1)
	assert.Equal(t, "On-call procedures", kbs[0].Description)

	_, err = s.GetKnowledgeBase(ctx, 9999)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestDoneKnowledgeBaseSweep(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	kb := createTestKB(t, s)
	kb.IsActive = false
	require.NoError(t, s.UpdateKnowledgeBase(ctx, kb))

	done, err := s.GetDoneKnowledgeBases(ctx)
	require.NoError(t, err)
	require.Len(t, done, 1)

	// Linking a project removes it from the sweep.
	require.NoError(t, s.LinkTrackerProject(ctx, kb.ID, "314"))
	done, err = s.GetDoneKnowledgeBases(ctx)
	require.NoError(t, err)
	assert.Empty(t, done)

	got, err := s.GetKnowledgeBase(ctx, kb.ID)
	require.NoError(t, err)
	assert.Equal(t, "314", got.TrackerProjectID)
}

func TestArticleHierarchy(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	kb := createTestKB(t, s)

	root := &types.Article{KnowledgeBaseID: kb.ID, Title: "Incident Response", IsActive: true}
	require.NoError(t, s.CreateArticle(ctx, root))

	child := &types.Article{
		KnowledgeBaseID: kb.ID, Title: "Paging Policy",
		ParentID: &root.ID, IsActive: true,
	}
	require.NoError(t, s.CreateArticle(ctx, child))

	roots, err := s.GetRootArticles(ctx, kb.ID)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "Incident Response", roots[0].Title)

	children, err := s.GetChildArticles(ctx, root.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "Paging Policy", children[0].Title)

	// Inactive articles drop out of listings.
	child.IsActive = false
	require.NoError(t, s.UpdateArticle(ctx, child))
	children, err = s.GetChildArticles(ctx, root.ID)
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestSearchArticles(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	kb := createTestKB(t, s)

	for _, title := range []string{"Kafka Operations", "Postgres Tuning", "Kafka Consumer Lag"} {
		require.NoError(t, s.CreateArticle(ctx, &types.Article{
			KnowledgeBaseID: kb.ID, Title: title, IsActive: true,
		}))
	}

	found, err := s.SearchArticles(ctx, kb.ID, "kafka", 10)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = s.SearchArticles(ctx, kb.ID, "tuning", 10)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "Postgres Tuning", found[0].Title)
}

func TestTags(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	kb := createTestKB(t, s)

	a1 := &types.Article{KnowledgeBaseID: kb.ID, Title: "Kafka Operations", IsActive: true}
	a2 := &types.Article{KnowledgeBaseID: kb.ID, Title: "Kafka Consumer Lag", IsActive: true}
	require.NoError(t, s.CreateArticle(ctx, a1))
	require.NoError(t, s.CreateArticle(ctx, a2))

	// Names normalize to lowercase; double attach is a no-op.
	require.NoError(t, s.AttachTag(ctx, a1.ID, "  Kafka "))
	require.NoError(t, s.AttachTag(ctx, a1.ID, "kafka"))
	require.NoError(t, s.AttachTag(ctx, a1.ID, "streaming"))
	require.NoError(t, s.AttachTag(ctx, a2.ID, "kafka"))

	tags, err := s.GetArticleTags(ctx, a1.ID)
	require.NoError(t, err)
	require.Len(t, tags, 2)
	assert.Equal(t, "kafka", tags[0].Name)

	usage, err := s.ListTagsWithUsage(ctx)
	require.NoError(t, err)
	require.Len(t, usage, 2)
	assert.Equal(t, "kafka", usage[0].Name)
	assert.Equal(t, 2, usage[0].UsageCount)

	require.NoError(t, s.DetachTag(ctx, a1.ID, "KAFKA"))
	tags, err = s.GetArticleTags(ctx, a1.ID)
	require.NoError(t, err)
	require.Len(t, tags, 1)

	// Empty name rejected.
	assert.Error(t, s.AttachTag(ctx, a1.ID, "   "))
}
