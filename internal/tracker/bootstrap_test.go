package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/curateops/curator/internal/types"
)

func TestSanitizeProjectName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Go Basics", "kb-go-basics"},
		{"Comprehensive Guide to Building AI Solutions", "kb-comprehensive-guide-to-building-ai-solutions"},
		{"  spaces  everywhere  ", "kb-spaces-everywhere"},
		{"Symbols! & Punctuation?", "kb-symbols-punctuation"},
		{"kb-already-prefixed", "kb-already-prefixed"},
		{"---leading-dashes", "kb-leading-dashes"},
	}
	for _, tt := range tests {
		got := SanitizeProjectName(tt.in)
		assert.Equal(t, tt.want, got, "input %q", tt.in)
		assert.LessOrEqual(t, len(got), 50)
	}
}

func TestSanitizeProjectNameTruncates(t *testing.T) {
	long := "An Extremely Long Knowledge Base Name That Goes On And On Forever"
	got := SanitizeProjectName(long)
	assert.LessOrEqual(t, len(got), 50)
	assert.True(t, len(got) > 3)
	assert.Contains(t, got, "kb-")
}

type fakeLinker struct {
	kbID      int64
	projectID string
}

func (f *fakeLinker) LinkTrackerProject(_ context.Context, kbID int64, projectID string) error {
	f.kbID = kbID
	f.projectID = projectID
	return nil
}

func TestBootstrapKB(t *testing.T) {
	var createdIssues []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v4/projects":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "kb-go-basics", body["name"])
			_ = json.NewEncoder(w).Encode(Project{ID: 42, Name: "kb-go-basics"})
		case r.Method == http.MethodPost && r.URL.Path == "/api/v4/projects/42/issues":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			createdIssues = append(createdIssues, body)
			_ = json.NewEncoder(w).Encode(wireIssue{Issue{IID: len(createdIssues), State: "opened"}, len(createdIssues)})
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	linker := &fakeLinker{}
	kb := &types.KnowledgeBase{ID: 5, Name: "Go Basics", IsActive: true}

	project, err := c.BootstrapKB(context.Background(), linker, kb)
	require.NoError(t, err)
	assert.Equal(t, 42, project.ID)
	assert.Equal(t, int64(5), linker.kbID)
	assert.Equal(t, "42", linker.projectID)

	require.Len(t, createdIssues, 4)
	titles := make([]string, len(createdIssues))
	for i, issue := range createdIssues {
		titles[i] = issue["title"].(string)
		assert.Contains(t, issue["labels"], "knowledge-base")
		assert.Contains(t, issue["labels"], "role::")
	}
	assert.Contains(t, titles[0], "Planning")
	assert.Contains(t, titles[1], "Content Generation")
	assert.Contains(t, titles[2], "Quality Review")
	assert.Contains(t, titles[3], "Deployment & Maintenance")
}
