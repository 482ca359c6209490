package agents

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateops/curator/internal/types"
)

func TestExtractQuery(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"search for deployment", "deployment"},
		{"Find articles about testing", "testing"},
		{"show me kubernetes", "kubernetes"},
		{"list all", ""},
		{"deployment guide", "deployment guide"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractQuery(tt.in))
		})
	}
}

func TestRetrievalExecuteSearch(t *testing.T) {
	deps := newTestDeps(t)
	kb := seedKB(t, deps, "Docs", "42")
	seedArticle(t, deps, kb.ID, "Deployment Guide", nil)
	seedArticle(t, deps, kb.ID, "API Reference", nil)

	a := NewRetrieval(deps)
	work := workFor("42", types.RoleRetrieval, "Search", "search for deployment")

	result, err := a.Execute(context.Background(), work, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "Deployment Guide")
	assert.NotContains(t, result.Summary, "API Reference")
}

func TestRetrievalExecuteListsRoots(t *testing.T) {
	deps := newTestDeps(t)
	kb := seedKB(t, deps, "Docs", "42")
	root := seedArticle(t, deps, kb.ID, "Overview", nil)
	seedArticle(t, deps, kb.ID, "Details", &root.ID)

	a := NewRetrieval(deps)
	work := workFor("42", types.RoleRetrieval, "Browse", "list all")

	result, err := a.Execute(context.Background(), work, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "Top-level")
	assert.Contains(t, result.Summary, "Overview")
	assert.NotContains(t, result.Summary, "Details")
}

func TestRetrievalReadArticle(t *testing.T) {
	deps := newTestDeps(t)
	kb := seedKB(t, deps, "Docs", "42")
	root := seedArticle(t, deps, kb.ID, "Overview", nil)
	seedArticle(t, deps, kb.ID, "Details", &root.ID)

	a := NewRetrieval(deps)
	out, err := a.ReadArticle(context.Background(), root.ID)
	require.NoError(t, err)
	assert.Contains(t, out, "# Overview")
	assert.Contains(t, out, "content of Overview")
	assert.Contains(t, out, "Details")
}

func TestRetrievalNoMatches(t *testing.T) {
	deps := newTestDeps(t)
	seedKB(t, deps, "Docs", "42")

	a := NewRetrieval(deps)
	work := workFor("42", types.RoleRetrieval, "Search", "search for nothing-here")

	result, err := a.Execute(context.Background(), work, nil)
	require.NoError(t, err)
	assert.Contains(t, result.Summary, "none found")
}
