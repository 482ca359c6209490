package agents

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateops/curator/internal/storage/sqlite"
	"github.com/curateops/curator/internal/types"
)

func newTestDeps(t *testing.T) Deps {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "curator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return Deps{Store: store, WorkerID: "worker-test"}
}

func seedKB(t *testing.T, deps Deps, name, projectID string) *types.KnowledgeBase {
	t.Helper()
	ctx := context.Background()
	kb := &types.KnowledgeBase{Name: name, IsActive: true}
	require.NoError(t, deps.Store.CreateKnowledgeBase(ctx, kb))
	if projectID != "" {
		require.NoError(t, deps.Store.LinkTrackerProject(ctx, kb.ID, projectID))
		kb.TrackerProjectID = projectID
	}
	return kb
}

func seedArticle(t *testing.T, deps Deps, kbID int64, title string, parentID *int64) *types.Article {
	t.Helper()
	a := &types.Article{
		KnowledgeBaseID: kbID,
		Title:           title,
		Content:         "content of " + title,
		IsActive:        true,
	}
	a.ParentID = parentID
	require.NoError(t, deps.Store.CreateArticle(context.Background(), a))
	return a
}

func workFor(projectID string, role types.AgentRole, title, description string) *types.WorkItem {
	return &types.WorkItem{
		ID:          types.WorkID(projectID, 1),
		ProjectID:   projectID,
		IID:         1,
		Title:       title,
		Description: description,
		Status:      types.StatusOpen,
		Priority:    2,
		Role:        role,
	}
}

func TestRegistryCoversAllRoles(t *testing.T) {
	r := NewRegistry(newTestDeps(t))
	for _, role := range types.AllRoles {
		a, ok := r.ForRole(role)
		require.True(t, ok, "missing agent for role %s", role)
		assert.Equal(t, role, a.Role())
	}
	require.NotNil(t, r.Supervisor())
}

func TestRegistryForWork(t *testing.T) {
	r := NewRegistry(newTestDeps(t))

	a, err := r.ForWork(workFor("42", types.RoleCreator, "Write article", ""))
	require.NoError(t, err)
	assert.Equal(t, types.RoleCreator, a.Role())

	_, err = r.ForWork(workFor("42", "", "No role", ""))
	assert.Error(t, err)
}

func TestResolveKBByProjectLink(t *testing.T) {
	deps := newTestDeps(t)
	kb := seedKB(t, deps, "Platform Docs", "42")
	b := newBase(deps, types.RoleRetrieval)

	got, err := b.resolveKB(context.Background(), workFor("42", types.RoleRetrieval, "t", ""), nil)
	require.NoError(t, err)
	assert.Equal(t, kb.ID, got.ID)
}

func TestResolveKBBySession(t *testing.T) {
	deps := newTestDeps(t)
	seedKB(t, deps, "Other", "7")
	kb := seedKB(t, deps, "Platform Docs", "")
	b := newBase(deps, types.RoleRetrieval)

	session := &types.SessionContext{SessionID: "s1", KnowledgeBaseID: &kb.ID}
	got, err := b.resolveKB(context.Background(), workFor("99", types.RoleRetrieval, "t", ""), session)
	require.NoError(t, err)
	assert.Equal(t, kb.ID, got.ID)
}

func TestResolveKBBySlugLabel(t *testing.T) {
	deps := newTestDeps(t)
	kb := seedKB(t, deps, "Platform Docs", "")
	b := newBase(deps, types.RoleRetrieval)

	work := workFor("99", types.RoleRetrieval, "t", "")
	work.Labels = []string{"knowledge-base", "kb-platform-docs"}
	got, err := b.resolveKB(context.Background(), work, nil)
	require.NoError(t, err)
	assert.Equal(t, kb.ID, got.ID)

	_, err = b.resolveKB(context.Background(), workFor("99", types.RoleRetrieval, "t", ""), nil)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestExistingTitlesWalksTree(t *testing.T) {
	deps := newTestDeps(t)
	kb := seedKB(t, deps, "Docs", "")
	root := seedArticle(t, deps, kb.ID, "Root", nil)
	seedArticle(t, deps, kb.ID, "Child", &root.ID)
	b := newBase(deps, types.RoleCreator)

	titles, err := b.existingTitles(context.Background(), kb.ID, 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Root", "Child"}, titles)

	capped, err := b.existingTitles(context.Background(), kb.ID, 1)
	require.NoError(t, err)
	assert.Len(t, capped, 1)
}

func TestWorkRequest(t *testing.T) {
	w := workFor("42", types.RoleCreator, "Title only", "")
	assert.Equal(t, "Title only", workRequest(w))

	w.Description = "The real request"
	assert.Equal(t, "The real request", workRequest(w))
}
