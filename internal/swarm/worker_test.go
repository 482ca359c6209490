package swarm

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateops/curator/internal/config"
	"github.com/curateops/curator/internal/control"
	"github.com/curateops/curator/internal/storage"
	"github.com/curateops/curator/internal/storage/sqlite"
	"github.com/curateops/curator/internal/types"
)

func newTestWorker(t *testing.T) (*Worker, storage.Storage) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "curator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	w, err := New(&Config{
		Store:         store,
		Version:       "test",
		ControlSocket: filepath.Join(t.TempDir(), "w.sock"),
	})
	require.NoError(t, err)
	return w, store
}

// registerInstance makes the worker claimable without starting the
// loops; the claim protocol refuses unregistered instances.
func registerInstance(t *testing.T, w *Worker, store storage.Storage) {
	t.Helper()
	require.NoError(t, store.RegisterInstance(context.Background(), &types.WorkerInstance{
		InstanceID:    w.instanceID,
		Hostname:      w.hostname,
		PID:           w.pid,
		Roles:         w.roles,
		Status:        types.InstanceRunning,
		StartedAt:     time.Now(),
		LastHeartbeat: time.Now(),
		Metadata:      "{}",
	}))
}

func seedRetrievalWork(t *testing.T, store storage.Storage) *types.WorkItem {
	t.Helper()
	ctx := context.Background()

	kb := &types.KnowledgeBase{Name: "Platform Docs", IsActive: true}
	require.NoError(t, store.CreateKnowledgeBase(ctx, kb))
	require.NoError(t, store.LinkTrackerProject(ctx, kb.ID, "42"))
	require.NoError(t, store.CreateArticle(ctx, &types.Article{
		KnowledgeBaseID: kb.ID, Title: "Deployment Guide",
		Content: "how to deploy", IsActive: true,
	}))

	work := &types.WorkItem{
		ID:        types.WorkID("42", 7),
		ProjectID: "42",
		IID:       7,
		Title:     "Find deployment docs",
		Status:    types.StatusOpen,
		Priority:  2,
		Role:      types.RoleRetrieval,
	}
	require.NoError(t, store.UpsertWorkItem(ctx, work))
	return work
}

func configWithRoles(roles ...string) config.SwarmConfig {
	return config.SwarmConfig{Roles: roles}
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(&Config{})
	assert.ErrorContains(t, err, "storage is required")
}

func TestNewRejectsUnknownRole(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "curator.db"))
	require.NoError(t, err)
	defer store.Close()

	_, err = New(&Config{Store: store, Swarm: configWithRoles("gardener")})
	assert.ErrorContains(t, err, "unknown agent role")
}

func TestWorkRolesDefaultsExcludeSupervisor(t *testing.T) {
	roles, err := workRoles(nil)
	require.NoError(t, err)
	assert.NotContains(t, roles, types.RoleSupervisor)
	assert.Contains(t, roles, types.RoleCreator)
	assert.Contains(t, roles, types.RoleRetrieval)
}

func TestProcessNextWorkCompletesRetrieval(t *testing.T) {
	w, store := newTestWorker(t)
	registerInstance(t, w, store)
	work := seedRetrievalWork(t, store)
	ctx := context.Background()

	claimed, err := w.processNextWork(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Degraded mode: no AI means the supervisor auto-approves and the
	// item closes.
	got, err := store.GetWorkItem(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusClosed, got.Status)

	state, err := store.GetExecutionState(ctx, work.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, types.ExecutionCompleted, state.State)

	history, err := store.GetExecutionHistory(ctx, work.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.ExecutionCompleted, history[0].FinalState)
	assert.Equal(t, types.RoleRetrieval, history[0].AgentRole)
	assert.NotEmpty(t, history[0].Summary)

	st := w.StatusSnapshot()
	assert.Equal(t, 1, st.Claimed)
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 0, st.Failed)
}

func TestProcessNextWorkIdleQueue(t *testing.T) {
	w, store := newTestWorker(t)
	registerInstance(t, w, store)

	claimed, err := w.processNextWork(context.Background())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestFailedWorkReopensWithAttempt(t *testing.T) {
	w, store := newTestWorker(t)
	registerInstance(t, w, store)
	ctx := context.Background()

	// Creator work without an AI supervisor fails and must come back
	// to the queue.
	work := &types.WorkItem{
		ID:        types.WorkID("42", 8),
		ProjectID: "42",
		IID:       8,
		Title:     "Draft onboarding article",
		Status:    types.StatusOpen,
		Priority:  1,
		Role:      types.RoleCreator,
	}
	require.NoError(t, store.UpsertWorkItem(ctx, work))

	claimed, err := w.processNextWork(ctx)
	require.NoError(t, err)
	assert.True(t, claimed)

	got, err := store.GetWorkItem(ctx, work.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, got.Status)

	state, err := store.GetExecutionState(ctx, work.ID)
	require.NoError(t, err)
	assert.Nil(t, state, "claim row should be released")

	history, err := store.GetExecutionHistory(ctx, work.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, types.ExecutionFailed, history[0].FinalState)
	assert.NotEmpty(t, history[0].Error)

	st := w.StatusSnapshot()
	assert.Equal(t, 1, st.Failed)
}

func TestWatchdogLeavesFreshClaimsAlone(t *testing.T) {
	w, store := newTestWorker(t)
	registerInstance(t, w, store)
	ctx := context.Background()

	work := seedRetrievalWork(t, store)
	require.NoError(t, store.ClaimWork(ctx, work.ID, w.instanceID))

	require.NoError(t, w.checkStalledWork(ctx))

	state, err := store.GetExecutionState(ctx, work.ID)
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, types.ExecutionClaimed, state.State)
	assert.Zero(t, state.Interventions)
}

func TestControlHandlerPauseResumeStatus(t *testing.T) {
	w, _ := newTestWorker(t)

	data, err := w.handleControl(control.Command{Type: control.CmdPause, Reason: "deploy"})
	require.NoError(t, err)
	assert.Equal(t, true, data["paused"])
	assert.True(t, w.isPaused())

	data, err = w.handleControl(control.Command{Type: control.CmdStatus})
	require.NoError(t, err)
	assert.Equal(t, true, data["paused"])
	assert.Equal(t, "deploy", data["pause_note"])

	_, err = w.handleControl(control.Command{Type: control.CmdResume})
	require.NoError(t, err)
	assert.False(t, w.isPaused())

	_, err = w.handleControl(control.Command{Type: "reboot"})
	assert.Error(t, err)
}

func TestControlStopSignalsShutdown(t *testing.T) {
	w, _ := newTestWorker(t)

	select {
	case <-w.ShutdownRequested():
		t.Fatal("shutdown channel closed too early")
	default:
	}

	_, err := w.handleControl(control.Command{Type: control.CmdStop})
	require.NoError(t, err)
	// Idempotent: a second stop command must not panic.
	_, err = w.handleControl(control.Command{Type: control.CmdStop})
	require.NoError(t, err)

	select {
	case <-w.ShutdownRequested():
	case <-time.After(time.Second):
		t.Fatal("shutdown was not signaled")
	}
}

func TestStartStopLifecycle(t *testing.T) {
	w, store := newTestWorker(t)
	ctx := context.Background()

	require.NoError(t, w.Start(ctx))
	assert.True(t, w.IsRunning())
	assert.Error(t, w.Start(ctx), "double start must fail")

	active, err := store.GetActiveInstances(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, w.InstanceID(), active[0].InstanceID)

	stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	require.NoError(t, w.Stop(stopCtx))
	assert.False(t, w.IsRunning())
	assert.Error(t, w.Stop(stopCtx), "double stop must fail")

	active, err = store.GetActiveInstances(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)
}
