package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(baseURL, "secret", 100)
	require.NoError(t, err)
	return c
}

// wireIssue adds the id field GitLab always sends; the client library
// panics when decoding an issue response without it.
type wireIssue struct {
	Issue
	ID int `json:"id"`
}

func TestClientSendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("PRIVATE-TOKEN"))
		assert.Equal(t, "/api/v4/projects/42", r.URL.Path)
		_ = json.NewEncoder(w).Encode(Project{ID: 42, Name: "kb-go-basics", Path: "kb-go-basics"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	p, err := c.GetProject(context.Background(), "42")
	require.NoError(t, err)
	assert.Equal(t, 42, p.ID)
	assert.Equal(t, "kb-go-basics", p.Name)
}

func TestClientNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"404 Project Not Found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.GetProject(context.Background(), "99")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClientRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.ListProjects(context.Background())
	require.ErrorIs(t, err, ErrRateLimited)
}

func TestClientAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"name already taken"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.CreateProject(context.Background(), CreateProjectOptions{Name: "kb-dup"})
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Contains(t, apiErr.Message, "name already taken")
}

func TestCreateIssueJoinsLabels(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(wireIssue{Issue{IID: 7, Title: "Quality Review", State: "opened"}, 7})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	issue, err := c.CreateIssue(context.Background(), "42", CreateIssueOptions{
		Title:  "Quality Review",
		Labels: []string{"quality-review", "knowledge-base"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, issue.IID)
	assert.Equal(t, "quality-review,knowledge-base", got["labels"])
}

func TestListIssuesFilters(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "opened", r.URL.Query().Get("state"))
		assert.Equal(t, "planning", r.URL.Query().Get("labels"))
		_ = json.NewEncoder(w).Encode([]wireIssue{{Issue{IID: 1, Title: "Planning", State: "opened"}, 1}})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	issues, err := c.ListIssues(context.Background(), "42", ListIssuesOptions{
		State:  "opened",
		Labels: []string{"planning"},
	})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "Planning", issues[0].Title)
}
