package agents

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateops/curator/internal/tracker"
	"github.com/curateops/curator/internal/types"
)

func TestManagementDeactivatesKB(t *testing.T) {
	deps := newTestDeps(t)
	kb := seedKB(t, deps, "Docs", "42")
	a := NewManagement(deps)

	work := workFor("42", types.RoleManagement, "Lifecycle", "please archive this knowledge base")
	result, err := a.Execute(context.Background(), work, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "inactive")

	got, err := deps.Store.GetKnowledgeBase(context.Background(), kb.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// Deactivating again is a no-op, not an error.
	result, err = a.Execute(context.Background(), work, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "already")
}

func TestManagementActivatesKB(t *testing.T) {
	deps := newTestDeps(t)
	kb := seedKB(t, deps, "Docs", "42")
	kb.IsActive = false
	require.NoError(t, deps.Store.UpdateKnowledgeBase(context.Background(), kb))

	a := NewManagement(deps)
	work := workFor("42", types.RoleManagement, "Lifecycle", "reopen the knowledge base")
	_, err := a.Execute(context.Background(), work, nil)
	require.NoError(t, err)

	got, err := deps.Store.GetKnowledgeBase(context.Background(), kb.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestManagementValidatesContext(t *testing.T) {
	deps := newTestDeps(t)
	kb := seedKB(t, deps, "Docs", "42")
	seedArticle(t, deps, kb.ID, "Overview", nil)

	a := NewManagement(deps)
	work := workFor("42", types.RoleManagement, "Deployment & Maintenance", "keep this KB healthy")
	result, err := a.Execute(context.Background(), work, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "1 top-level article")
	assert.Contains(t, result.Summary, "tracker project 42")
}

func TestManagementTriagesEscalation(t *testing.T) {
	deps := newTestDeps(t)
	seedKB(t, deps, "Docs", "42")
	ctx := context.Background()

	work := workFor("42", types.RoleManagement, "Escalation: broken article", "")
	work.Labels = []string{tracker.LabelEscalation}

	require.NoError(t, deps.Store.RecordExecutionAttempt(ctx, &types.ExecutionAttempt{
		WorkID:     work.ID,
		InstanceID: "worker-old",
		AgentRole:  types.RoleCreator,
		FinalState: types.ExecutionFailed,
		Summary:    "draft kept failing review",
		StartedAt:  time.Now().Add(-time.Hour),
		EndedAt:    time.Now(),
	}))

	a := NewManagement(deps)
	result, err := a.Execute(ctx, work, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "1 prior attempt")
	assert.Contains(t, result.Summary, "draft kept failing review")
	assert.Contains(t, result.Summary, "human review")
}

func TestSweepDoneKBsRequiresTracker(t *testing.T) {
	deps := newTestDeps(t)
	a := NewManagement(deps)

	_, err := a.SweepDoneKBs(context.Background())
	assert.Error(t, err)
}
