package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateops/curator/internal/types"
)

func TestUpsertPropagatesClosedStatus(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	insertTestWork(t, s, "42#7")

	closedAt := time.Now()
	require.NoError(t, s.UpsertWorkItem(ctx, &types.WorkItem{
		ID:        "42#7",
		ProjectID: "42",
		IID:       7,
		Title:     "Draft onboarding article",
		Status:    types.StatusClosed,
		Priority:  2,
		Role:      types.RoleCreator,
		CreatedAt: time.Now(),
		ClosedAt:  &closedAt,
	}))

	w, err := s.GetWorkItem(ctx, "42#7")
	require.NoError(t, err)
	assert.Equal(t, types.StatusClosed, w.Status)
	require.NotNil(t, w.ClosedAt)
}

func TestUpsertPropagatesBlockedStatus(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	insertTestWork(t, s, "42#7")

	require.NoError(t, s.UpsertWorkItem(ctx, &types.WorkItem{
		ID:        "42#7",
		ProjectID: "42",
		IID:       7,
		Title:     "Draft onboarding article",
		Status:    types.StatusBlocked,
		Priority:  2,
		Role:      types.RoleCreator,
		Labels:    []string{"blocked"},
		CreatedAt: time.Now(),
	}))

	w, err := s.GetWorkItem(ctx, "42#7")
	require.NoError(t, err)
	assert.Equal(t, types.StatusBlocked, w.Status)
}

func TestUpsertOpenKeepsLocalClaim(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	registerTestInstance(t, s, "worker-1")
	insertTestWork(t, s, "42#7")
	require.NoError(t, s.ClaimWork(ctx, "42#7", "worker-1"))

	// The tracker still shows the issue open until the claim note lands;
	// refreshing the mirror must not reopen the claimed row.
	require.NoError(t, s.UpsertWorkItem(ctx, &types.WorkItem{
		ID:        "42#7",
		ProjectID: "42",
		IID:       7,
		Title:     "Draft onboarding article (renamed)",
		Status:    types.StatusOpen,
		Priority:  1,
		Role:      types.RoleCreator,
		CreatedAt: time.Now(),
	}))

	w, err := s.GetWorkItem(ctx, "42#7")
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, w.Status)
	assert.Equal(t, "Draft onboarding article (renamed)", w.Title)
	assert.Equal(t, 1, w.Priority)
}

func TestUpsertClosedOverridesLocalClaim(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()
	registerTestInstance(t, s, "worker-1")
	insertTestWork(t, s, "42#7")
	require.NoError(t, s.ClaimWork(ctx, "42#7", "worker-1"))

	// A human closing the issue wins over a live claim; the worker's
	// next status check sees closed and abandons the item.
	require.NoError(t, s.UpsertWorkItem(ctx, &types.WorkItem{
		ID:        "42#7",
		ProjectID: "42",
		IID:       7,
		Title:     "Draft onboarding article",
		Status:    types.StatusClosed,
		Priority:  2,
		Role:      types.RoleCreator,
		CreatedAt: time.Now(),
	}))

	w, err := s.GetWorkItem(ctx, "42#7")
	require.NoError(t, err)
	assert.Equal(t, types.StatusClosed, w.Status)
}
