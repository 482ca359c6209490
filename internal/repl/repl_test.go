package repl

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateops/curator/internal/storage/sqlite"
	"github.com/curateops/curator/internal/types"
)

func newTestREPL(t *testing.T) (*REPL, *bytes.Buffer) {
	t.Helper()
	store, err := sqlite.New(filepath.Join(t.TempDir(), "curator.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	r, err := New(&Config{Store: store})
	require.NoError(t, err)
	out := &bytes.Buffer{}
	r.out = out
	return r, out
}

func seedKBWithArticle(t *testing.T, r *REPL) *types.KnowledgeBase {
	t.Helper()
	ctx := context.Background()
	kb := &types.KnowledgeBase{Name: "Platform Docs", IsActive: true}
	require.NoError(t, r.store.CreateKnowledgeBase(ctx, kb))
	require.NoError(t, r.store.CreateArticle(ctx, &types.Article{
		KnowledgeBaseID: kb.ID,
		Title:           "Deployment Guide",
		Content:         "how to deploy the platform",
		IsActive:        true,
	}))
	return kb
}

func TestNewRequiresStore(t *testing.T) {
	_, err := New(&Config{})
	assert.ErrorContains(t, err, "storage is required")
}

func TestCreateKBThroughChat(t *testing.T) {
	r, out := newTestREPL(t)
	ctx := context.Background()

	// Offline classification: "create ... knowledge base" maps to the
	// create_kb workflow.
	require.NoError(t, r.handleMessage(ctx, `Create a knowledge base called "Go Basics"`))
	assert.Contains(t, out.String(), `Created knowledge base "Go Basics"`)

	kbs, err := r.store.ListKnowledgeBases(ctx, true)
	require.NoError(t, err)
	require.Len(t, kbs, 1)
	assert.Equal(t, "Go Basics", kbs[0].Name)

	// The new KB becomes the session target.
	sc, err := r.sessions.Load(ctx, r.sessionID)
	require.NoError(t, err)
	require.NotNil(t, sc.KnowledgeBaseID)
	assert.Equal(t, kbs[0].ID, *sc.KnowledgeBaseID)
}

func TestRetrieveThroughChat(t *testing.T) {
	r, out := newTestREPL(t)
	seedKBWithArticle(t, r)

	require.NoError(t, r.handleMessage(context.Background(), "find deployment"))
	assert.Contains(t, out.String(), "Deployment Guide")
}

func TestRetrieveWithoutKB(t *testing.T) {
	r, out := newTestREPL(t)

	require.NoError(t, r.handleMessage(context.Background(), "find the deployment guide"))
	assert.Contains(t, out.String(), "No knowledge base selected")
}

func TestChatRecordsConversation(t *testing.T) {
	r, _ := newTestREPL(t)
	seedKBWithArticle(t, r)
	ctx := context.Background()

	require.NoError(t, r.handleMessage(ctx, "find deployment"))

	history, err := r.sessions.History(ctx, r.sessionID, 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "find deployment", history[0].Content)
	assert.Equal(t, "assistant", history[1].Role)
}

func TestAIRequiredWorkflowsDegrade(t *testing.T) {
	r, out := newTestREPL(t)
	seedKBWithArticle(t, r)

	require.NoError(t, r.handleMessage(context.Background(), "write an article about testing"))
	assert.Contains(t, out.String(), "needs the AI supervisor")
}

func TestKBUseCommand(t *testing.T) {
	r, out := newTestREPL(t)
	kb := seedKBWithArticle(t, r)
	ctx := context.Background()

	require.NoError(t, r.processInput(ctx, "/kb use 1"))
	assert.Contains(t, out.String(), `Working in knowledge base "Platform Docs"`)

	sc, err := r.sessions.Load(ctx, r.sessionID)
	require.NoError(t, err)
	require.NotNil(t, sc.KnowledgeBaseID)
	assert.Equal(t, kb.ID, *sc.KnowledgeBaseID)

	// Listing marks the selected KB.
	out.Reset()
	require.NoError(t, r.processInput(ctx, "/kb"))
	assert.Contains(t, out.String(), "Platform Docs")
}

func TestUnknownCommand(t *testing.T) {
	r, _ := newTestREPL(t)
	err := r.processInput(context.Background(), "/reboot")
	assert.ErrorContains(t, err, "unknown command /reboot")
}

func TestClearCommand(t *testing.T) {
	r, out := newTestREPL(t)
	seedKBWithArticle(t, r)
	ctx := context.Background()

	require.NoError(t, r.handleMessage(ctx, "find deployment"))
	require.NoError(t, r.processInput(ctx, "/clear"))
	assert.Contains(t, out.String(), "Session cleared")

	history, err := r.sessions.History(ctx, r.sessionID, 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestQuitCommand(t *testing.T) {
	r, _ := newTestREPL(t)
	err := r.processInput(context.Background(), "/quit")
	assert.Equal(t, errQuit, err)
}

func TestExtractKBName(t *testing.T) {
	cases := []struct {
		message string
		want    string
	}{
		{`create a knowledge base called "Go Basics"`, "Go Basics"},
		{"create a kb named Platform Docs", "Platform Docs"},
		{"new knowledge base about deployments", "deployments"},
		{"make a knowledge base", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, extractKBName(tc.message), tc.message)
	}
}
