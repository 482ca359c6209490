package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateops/curator/internal/types"
)

func newTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "curator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func registerTestInstance(t *testing.T, s *SQLiteStorage, id string) {
	t.Helper()
	require.NoError(t, s.RegisterInstance(context.Background(), &types.WorkerInstance{
		InstanceID:    id,
		Hostname:      "test-host",
		PID:           1234,
		Roles:         []types.AgentRole{types.RoleCreator},
		Status:        types.InstanceRunning,
		StartedAt:     time.Now(),
		LastHeartbeat: time.Now(),
	}))
}

func insertTestWork(t *testing.T, s *SQLiteStorage, id string) {
	t.Helper()
	require.NoError(t, s.UpsertWorkItem(context.Background(), &types.WorkItem{
		ID:        id,
		ProjectID: "42",
		IID:       7,
		Title:     "Draft onboarding article",
		Status:    types.StatusOpen,
		Priority:  2,
		Role:      types.RoleCreator,
		CreatedAt: time.Now(),
	}))
}

func TestClaimWork(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	registerTestInstance(t, s, "worker-1")
	insertTestWork(t, s, "42#7")

	require.NoError(t, s.ClaimWork(ctx, "42#7", "worker-1"))

	st, err := s.GetExecutionState(ctx, "42#7")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "worker-1", st.InstanceID)
	assert.Equal(t, types.ExecutionClaimed, st.State)
	assert.Equal(t, 1, st.AttemptCount)

	w, err := s.GetWorkItem(ctx, "42#7")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, w.Status)
}

func TestClaimWorkContention(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	registerTestInstance(t, s, "worker-1")
	registerTestInstance(t, s, "worker-2")
	insertTestWork(t, s, "42#7")

	require.NoError(t, s.ClaimWork(ctx, "42#7", "worker-1"))

	err := s.ClaimWork(ctx, "42#7", "worker-2")
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrAlreadyClaimed)
}

func TestClaimRequiresOpenStatus(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	registerTestInstance(t, s, "worker-1")
	insertTestWork(t, s, "42#7")
	require.NoError(t, s.UpdateWorkStatus(ctx, "42#7", types.StatusBlocked))

	err := s.ClaimWork(ctx, "42#7", "worker-1")
	assert.ErrorIs(t, err, types.ErrNotClaimable)
}

func TestClaimRequiresRegisteredInstance(t *testing.T) {
	s := newTestStorage(t)
	insertTestWork(t, s, "42#7")

	err := s.ClaimWork(context.Background(), "42#7", "ghost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestReclaimAfterFailure(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	registerTestInstance(t, s, "worker-1")
	registerTestInstance(t, s, "worker-2")
	insertTestWork(t, s, "42#7")

	require.NoError(t, s.ClaimWork(ctx, "42#7", "worker-1"))
	require.NoError(t, s.UpdateExecutionState(ctx, "42#7", types.ExecutionFailed))
	require.NoError(t, s.UpdateWorkStatus(ctx, "42#7", types.StatusOpen))

	// A terminal-state row does not block a new claim; attempts count up.
	require.NoError(t, s.ClaimWork(ctx, "42#7", "worker-2"))
	st, err := s.GetExecutionState(ctx, "42#7")
	require.NoError(t, err)
	assert.Equal(t, "worker-2", st.InstanceID)
	assert.Equal(t, types.ExecutionClaimed, st.State)
	assert.Equal(t, 2, st.AttemptCount)
}

func TestUpdateExecutionState(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	registerTestInstance(t, s, "worker-1")
	insertTestWork(t, s, "42#7")
	require.NoError(t, s.ClaimWork(ctx, "42#7", "worker-1"))

	require.NoError(t, s.UpdateExecutionState(ctx, "42#7", types.ExecutionAssessing))
	require.NoError(t, s.UpdateExecutionState(ctx, "42#7", types.ExecutionExecuting))

	// Same-state update is a no-op, not an error.
	require.NoError(t, s.UpdateExecutionState(ctx, "42#7", types.ExecutionExecuting))

	// Skipping ahead is rejected with the valid set named.
	err := s.UpdateExecutionState(ctx, "42#7", types.ExecutionCompleted)
	require.Error(t, err)
	var te *types.TransitionError
	assert.ErrorAs(t, err, &te)

	// No state row at all.
	err = s.UpdateExecutionState(ctx, "99#1", types.ExecutionExecuting)
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestCheckpointRoundTrip(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	registerTestInstance(t, s, "worker-1")
	insertTestWork(t, s, "42#7")
	require.NoError(t, s.ClaimWork(ctx, "42#7", "worker-1"))

	require.NoError(t, s.SaveCheckpoint(ctx, "42#7", map[string]any{"phase": "outline", "sections": 3}))
	cp, err := s.GetCheckpoint(ctx, "42#7")
	require.NoError(t, err)
	assert.Contains(t, cp, `"phase":"outline"`)

	err = s.SaveCheckpoint(ctx, "99#1", map[string]any{})
	assert.ErrorIs(t, err, types.ErrNotFound)
}

func TestReleaseWorkIsIdempotent(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	registerTestInstance(t, s, "worker-1")
	insertTestWork(t, s, "42#7")
	require.NoError(t, s.ClaimWork(ctx, "42#7", "worker-1"))

	require.NoError(t, s.ReleaseWork(ctx, "42#7"))
	require.NoError(t, s.ReleaseWork(ctx, "42#7"), "second release must be a no-op")

	st, err := s.GetExecutionState(ctx, "42#7")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestReleaseWorkAndReopen(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	registerTestInstance(t, s, "worker-1")
	insertTestWork(t, s, "42#7")
	require.NoError(t, s.ClaimWork(ctx, "42#7", "worker-1"))

	require.NoError(t, s.ReleaseWorkAndReopen(ctx, "42#7", "worker-1", "model call failed"))

	w, err := s.GetWorkItem(ctx, "42#7")
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, w.Status)

	st, err := s.GetExecutionState(ctx, "42#7")
	require.NoError(t, err)
	assert.Nil(t, st)

	// Item is claimable again.
	require.NoError(t, s.ClaimWork(ctx, "42#7", "worker-1"))
}

func TestInterventionTracking(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	registerTestInstance(t, s, "worker-1")
	insertTestWork(t, s, "42#7")
	require.NoError(t, s.ClaimWork(ctx, "42#7", "worker-1"))

	count, last, err := s.GetLastIntervention(ctx, "42#7")
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.True(t, last.IsZero())

	n, err := s.RecordIntervention(ctx, "42#7")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = s.RecordIntervention(ctx, "42#7")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, last, err = s.GetLastIntervention(ctx, "42#7")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.WithinDuration(t, time.Now(), last, 5*time.Second)
}

func TestGetReadyWorkExcludesClaimed(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	registerTestInstance(t, s, "worker-1")
	insertTestWork(t, s, "42#7")
	require.NoError(t, s.UpsertWorkItem(ctx, &types.WorkItem{
		ID: "42#8", ProjectID: "42", IID: 8, Title: "Review style guide",
		Status: types.StatusOpen, Priority: 1, Role: types.RoleReviewer, CreatedAt: time.Now(),
	}))

	require.NoError(t, s.ClaimWork(ctx, "42#7", "worker-1"))

	ready, err := s.GetReadyWork(ctx, types.WorkFilter{MaxPriority: -1, Limit: 10})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, "42#8", ready[0].ID)

	// Role filter.
	ready, err = s.GetReadyWork(ctx, types.WorkFilter{
		Roles: []types.AgentRole{types.RoleCreator}, MaxPriority: -1, Limit: 10,
	})
	require.NoError(t, err)
	assert.Empty(t, ready)

	// Priority ceiling.
	ready, err = s.GetReadyWork(ctx, types.WorkFilter{MaxPriority: 0, Limit: 10})
	require.NoError(t, err)
	assert.Empty(t, ready)
}

func TestExecutionHistory(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	started := time.Now().Add(-time.Minute)

	require.NoError(t, s.RecordExecutionAttempt(ctx, &types.ExecutionAttempt{
		WorkID: "42#7", InstanceID: "worker-1", AgentRole: types.RoleCreator,
		FinalState: types.ExecutionFailed, Error: "model timeout",
		StartedAt: started, EndedAt: time.Now(),
	}))
	require.NoError(t, s.RecordExecutionAttempt(ctx, &types.ExecutionAttempt{
		WorkID: "42#7", InstanceID: "worker-2", AgentRole: types.RoleCreator,
		FinalState: types.ExecutionCompleted, Summary: "article published",
		StartedAt: time.Now(), EndedAt: time.Now(),
	}))

	history, err := s.GetExecutionHistory(ctx, "42#7")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, types.ExecutionFailed, history[0].FinalState)
	assert.Equal(t, types.ExecutionCompleted, history[1].FinalState)
}
