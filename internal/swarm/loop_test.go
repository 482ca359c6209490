package swarm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateops/curator/internal/storage/sqlite"
	"github.com/curateops/curator/internal/tracker"
	"github.com/curateops/curator/internal/types"
)

func trackerStub(t *testing.T, issuesByProject map[string][]*tracker.Issue) *tracker.Client {
	t.Helper()
	// wireIssue adds the id field GitLab always sends; the client library
	// panics when decoding an issue response without it.
	type wireIssue struct {
		*tracker.Issue
		ID int `json:"id"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for projectID, issues := range issuesByProject {
			if r.URL.Path == "/api/v4/projects/"+projectID+"/issues" {
				wire := make([]wireIssue, len(issues))
				for i, issue := range issues {
					wire[i] = wireIssue{issue, issue.IID}
				}
				_ = json.NewEncoder(w).Encode(wire)
				return
			}
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	client, err := tracker.New(srv.URL, "token", 100)
	require.NoError(t, err)
	return client
}

func TestSyncTrackerMirrorsLinkedProjects(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "curator.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	kb := &types.KnowledgeBase{Name: "Platform Docs", IsActive: true}
	require.NoError(t, store.CreateKnowledgeBase(ctx, kb))
	require.NoError(t, store.LinkTrackerProject(ctx, kb.ID, "42"))

	// A KB without a tracker project must be skipped.
	unlinked := &types.KnowledgeBase{Name: "Drafts", IsActive: true}
	require.NoError(t, store.CreateKnowledgeBase(ctx, unlinked))

	now := time.Now()
	client := trackerStub(t, map[string][]*tracker.Issue{
		"42": {
			{IID: 1, Title: "Plan structure", State: "opened",
				Labels: []string{"role::planner", "priority::1"}, CreatedAt: now, UpdatedAt: now},
			{IID: 2, Title: "Old request", State: "closed",
				Labels: []string{"role::creator"}, CreatedAt: now, UpdatedAt: now},
		},
	})

	w, err := New(&Config{Store: store, Tracker: client,
		ControlSocket: filepath.Join(t.TempDir(), "w.sock")})
	require.NoError(t, err)

	synced, err := w.syncTracker(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, synced)

	open, err := store.GetWorkItem(ctx, types.WorkID("42", 1))
	require.NoError(t, err)
	assert.Equal(t, types.StatusOpen, open.Status)
	assert.Equal(t, types.RolePlanner, open.Role)
	assert.Equal(t, 1, open.Priority)

	closed, err := store.GetWorkItem(ctx, types.WorkID("42", 2))
	require.NoError(t, err)
	assert.Equal(t, types.StatusClosed, closed.Status)
}

func TestSyncTrackerKeepsLocalClaims(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "curator.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	kb := &types.KnowledgeBase{Name: "Platform Docs", IsActive: true}
	require.NoError(t, store.CreateKnowledgeBase(ctx, kb))
	require.NoError(t, store.LinkTrackerProject(ctx, kb.ID, "42"))

	now := time.Now()
	client := trackerStub(t, map[string][]*tracker.Issue{
		"42": {{IID: 5, Title: "Write guide", State: "opened",
			Labels: []string{"role::creator"}, CreatedAt: now, UpdatedAt: now}},
	})

	w, err := New(&Config{Store: store, Tracker: client,
		ControlSocket: filepath.Join(t.TempDir(), "w.sock")})
	require.NoError(t, err)
	registerInstance(t, w, store)

	// First sync mirrors the issue, then this worker claims it.
	_, err = w.syncTracker(ctx)
	require.NoError(t, err)
	workID := types.WorkID("42", 5)
	require.NoError(t, store.ClaimWork(ctx, workID, w.instanceID))

	// The tracker still reports the issue as open; the sync must not
	// flip the claimed mirror row back.
	_, err = w.syncTracker(ctx)
	require.NoError(t, err)

	got, err := store.GetWorkItem(ctx, workID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInProgress, got.Status)
}

func TestSyncTrackerPropagatesHumanClose(t *testing.T) {
	store, err := sqlite.New(filepath.Join(t.TempDir(), "curator.db"))
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	kb := &types.KnowledgeBase{Name: "Platform Docs", IsActive: true}
	require.NoError(t, store.CreateKnowledgeBase(ctx, kb))
	require.NoError(t, store.LinkTrackerProject(ctx, kb.ID, "42"))

	now := time.Now()
	issue := &tracker.Issue{IID: 5, Title: "Write guide", State: "opened",
		Labels: []string{"role::creator"}, CreatedAt: now, UpdatedAt: now}
	client := trackerStub(t, map[string][]*tracker.Issue{"42": {issue}})

	w, err := New(&Config{Store: store, Tracker: client,
		ControlSocket: filepath.Join(t.TempDir(), "w.sock")})
	require.NoError(t, err)

	_, err = w.syncTracker(ctx)
	require.NoError(t, err)
	workID := types.WorkID("42", 5)
	got, err := store.GetWorkItem(ctx, workID)
	require.NoError(t, err)
	require.Equal(t, types.StatusOpen, got.Status)

	// A human closes the issue on the tracker; the next sync must stop
	// the worker from ever claiming it again.
	issue.State = "closed"
	_, err = w.syncTracker(ctx)
	require.NoError(t, err)

	got, err = store.GetWorkItem(ctx, workID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusClosed, got.Status)
}

func TestSyncTrackerNilClient(t *testing.T) {
	w, _ := newTestWorker(t)
	synced, err := w.syncTracker(context.Background())
	require.NoError(t, err)
	assert.Zero(t, synced)
}
