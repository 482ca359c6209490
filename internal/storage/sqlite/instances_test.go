package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateops/curator/internal/events"
	"github.com/curateops/curator/internal/types"
)

func TestRegisterInstanceUpserts(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	registerTestInstance(t, s, "worker-1")

	// Re-registering the same ID refreshes rather than erroring.
	require.NoError(t, s.RegisterInstance(ctx, &types.WorkerInstance{
		InstanceID: "worker-1", Hostname: "new-host", PID: 99,
		Status: types.InstanceRunning, StartedAt: time.Now(), LastHeartbeat: time.Now(),
	}))

	active, err := s.GetActiveInstances(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "new-host", active[0].Hostname)
}

func TestUpdateHeartbeat(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	registerTestInstance(t, s, "worker-1")

	require.NoError(t, s.UpdateHeartbeat(ctx, "worker-1"))
	assert.Error(t, s.UpdateHeartbeat(ctx, "ghost"))
}

func TestCleanupStaleInstancesReleasesClaims(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	// Stale instance holding a claim.
	require.NoError(t, s.RegisterInstance(ctx, &types.WorkerInstance{
		InstanceID: "dead-worker", Status: types.InstanceRunning,
		StartedAt:     time.Now().Add(-time.Hour),
		LastHeartbeat: time.Now().Add(-time.Hour),
	}))
	insertTestWork(t, s, "42#7")
	require.NoError(t, s.ClaimWork(ctx, "42#7", "dead-worker"))

	// Healthy instance untouched by cleanup.
	registerTestInstance(t, s, "live-worker")

	n, err := s.CleanupStaleInstances(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Claim released and work reopened.
	st, err := s.GetExecutionState(ctx, "42#7")
	require.NoError(t, err)
	assert.Nil(t, st)
	w, err := s.GetWorkItem(ctx, "42#7")
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, w.Status)

	// Dead instance marked crashed, live one still active.
	active, err := s.GetActiveInstances(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "live-worker", active[0].InstanceID)

	// Release event written for observability.
	evts, err := s.GetEvents(ctx, events.Filter{WorkID: "42#7", Types: []events.EventType{events.EventTypeWorkReleased}})
	require.NoError(t, err)
	require.Len(t, evts, 1)
	assert.Contains(t, evts[0].Message, "stopped heartbeating")
}

func TestCleanupStaleInstancesNoStale(t *testing.T) {
	s := newTestStorage(t)
	registerTestInstance(t, s, "worker-1")

	n, err := s.CleanupStaleInstances(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteOldStoppedInstancesKeepsNewest(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, id := range []string{"w1", "w2", "w3"} {
		require.NoError(t, s.RegisterInstance(ctx, &types.WorkerInstance{
			InstanceID: id, Status: types.InstanceRunning,
			StartedAt: time.Now(), LastHeartbeat: time.Now(),
		}))
		require.NoError(t, s.MarkInstanceStopped(ctx, id))
	}
	// Age the stop timestamps past the cutoff.
	_, err := s.db.ExecContext(ctx, `UPDATE worker_instances SET stopped_at = ?`, time.Now().Add(-48*time.Hour))
	require.NoError(t, err)

	n, err := s.DeleteOldStoppedInstances(ctx, 24*time.Hour, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, n, "keep floor preserves two records")

	// Disabled pruning.
	n, err = s.DeleteOldStoppedInstances(ctx, 0, 2)
	require.NoError(t, err)
	assert.Zero(t, n)
}
