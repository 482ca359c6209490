package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// Issue is the subset of GitLab issue fields the swarm uses. IID is
// the project-scoped issue number shown in URLs.
type Issue struct {
	IID         int            `json:"iid"`
	ProjectID   int            `json:"project_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	State       string         `json:"state"` // opened | closed
	Labels      []string       `json:"labels"`
	WebURL      string         `json:"web_url"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	ClosedAt    *time.Time     `json:"closed_at"`
	Assignee    *IssueAssignee `json:"assignee"`
}

// IssueAssignee identifies the user an issue is assigned to.
type IssueAssignee struct {
	Username string `json:"username"`
}

func toIssue(gi *gitlab.Issue) *Issue {
	i := &Issue{
		IID:         gi.IID,
		ProjectID:   gi.ProjectID,
		Title:       gi.Title,
		Description: gi.Description,
		State:       gi.State,
		Labels:      []string(gi.Labels),
		WebURL:      gi.WebURL,
		ClosedAt:    gi.ClosedAt,
	}
	if gi.CreatedAt != nil {
		i.CreatedAt = *gi.CreatedAt
	}
	if gi.UpdatedAt != nil {
		i.UpdatedAt = *gi.UpdatedAt
	}
	if gi.Assignee != nil {
		i.Assignee = &IssueAssignee{Username: gi.Assignee.Username}
	}
	return i
}

// AssigneeName returns the assignee username, or "" when unassigned.
func (i *Issue) AssigneeName() string {
	if i.Assignee == nil {
		return ""
	}
	return i.Assignee.Username
}

// HasLabel reports whether the issue carries the given label.
func (i *Issue) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// CreateIssueOptions holds the writable fields for issue creation.
type CreateIssueOptions struct {
	Title       string
	Description string
	Labels      []string
}

// ListIssuesOptions filters an issue listing. Empty fields are not
// sent. Labels match issues carrying every listed label.
type ListIssuesOptions struct {
	State  string // opened | closed | all
	Labels []string
}

// UpdateIssueOptions holds issue fields an update may change. Nil or
// empty fields are left untouched. StateEvent is "close" or "reopen".
type UpdateIssueOptions struct {
	Title        *string
	Description  *string
	StateEvent   string
	Labels       []string // replaces the full label set when non-nil
	AddLabels    []string
	RemoveLabels []string
	AssigneeIDs  []int
}

func labelOptions(labels []string) *gitlab.LabelOptions {
	l := gitlab.LabelOptions(labels)
	return &l
}

// CreateIssue opens a new issue in a project.
func (c *Client) CreateIssue(ctx context.Context, projectID string, opts CreateIssueOptions) (*Issue, error) {
	if opts.Title == "" {
		return nil, fmt.Errorf("issue title is required")
	}
	opt := &gitlab.CreateIssueOptions{
		Title:       gitlab.Ptr(opts.Title),
		Description: gitlab.Ptr(opts.Description),
	}
	if len(opts.Labels) > 0 {
		opt.Labels = labelOptions(opts.Labels)
	}
	issue, resp, err := c.gl.Issues.CreateIssue(projectID, opt, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create issue %q: %w", opts.Title, wrapError(resp, err))
	}
	return toIssue(issue), nil
}

// ListIssues returns issues in a project matching the filter.
func (c *Client) ListIssues(ctx context.Context, projectID string, opts ListIssuesOptions) ([]*Issue, error) {
	opt := &gitlab.ListProjectIssuesOptions{
		ListOptions: gitlab.ListOptions{PerPage: 100},
	}
	if opts.State != "" {
		opt.State = gitlab.Ptr(opts.State)
	}
	if len(opts.Labels) > 0 {
		opt.Labels = labelOptions(opts.Labels)
	}
	list, resp, err := c.gl.Issues.ListProjectIssues(projectID, opt, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list issues in %s: %w", projectID, wrapError(resp, err))
	}
	issues := make([]*Issue, len(list))
	for i, gi := range list {
		issues[i] = toIssue(gi)
	}
	return issues, nil
}

// GetIssue fetches one issue by project-scoped iid.
func (c *Client) GetIssue(ctx context.Context, projectID string, iid int) (*Issue, error) {
	issue, resp, err := c.gl.Issues.GetIssue(projectID, iid, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get issue %s#%d: %w", projectID, iid, wrapError(resp, err))
	}
	return toIssue(issue), nil
}

// UpdateIssue changes issue fields.
func (c *Client) UpdateIssue(ctx context.Context, projectID string, iid int, opts UpdateIssueOptions) (*Issue, error) {
	opt := &gitlab.UpdateIssueOptions{
		Title:       opts.Title,
		Description: opts.Description,
	}
	changed := opts.Title != nil || opts.Description != nil
	if opts.StateEvent != "" {
		opt.StateEvent = gitlab.Ptr(opts.StateEvent)
		changed = true
	}
	if opts.Labels != nil {
		opt.Labels = labelOptions(opts.Labels)
		changed = true
	}
	if len(opts.AddLabels) > 0 {
		opt.AddLabels = labelOptions(opts.AddLabels)
		changed = true
	}
	if len(opts.RemoveLabels) > 0 {
		opt.RemoveLabels = labelOptions(opts.RemoveLabels)
		changed = true
	}
	if opts.AssigneeIDs != nil {
		opt.AssigneeIDs = &opts.AssigneeIDs
		changed = true
	}
	if !changed {
		return c.GetIssue(ctx, projectID, iid)
	}

	issue, resp, err := c.gl.Issues.UpdateIssue(projectID, iid, opt, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("update issue %s#%d: %w", projectID, iid, wrapError(resp, err))
	}
	return toIssue(issue), nil
}

// Note is a comment on an issue.
type Note struct {
	ID        int        `json:"id"`
	Body      string     `json:"body"`
	CreatedAt time.Time  `json:"created_at"`
	Author    NoteAuthor `json:"author"`
}

// NoteAuthor identifies who wrote a note.
type NoteAuthor struct {
	Username string `json:"username"`
}

func toNote(gn *gitlab.Note) *Note {
	n := &Note{ID: gn.ID, Body: gn.Body, Author: NoteAuthor{Username: gn.Author.Username}}
	if gn.CreatedAt != nil {
		n.CreatedAt = *gn.CreatedAt
	}
	return n
}

// CreateNote posts a comment on an issue.
func (c *Client) CreateNote(ctx context.Context, projectID string, iid int, body string) (*Note, error) {
	if strings.TrimSpace(body) == "" {
		return nil, fmt.Errorf("note body is required")
	}
	note, resp, err := c.gl.Notes.CreateIssueNote(projectID, iid, &gitlab.CreateIssueNoteOptions{
		Body: gitlab.Ptr(body),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create note on %s#%d: %w", projectID, iid, wrapError(resp, err))
	}
	return toNote(note), nil
}

// ListNotes returns the comments on an issue, oldest first.
func (c *Client) ListNotes(ctx context.Context, projectID string, iid int) ([]*Note, error) {
	list, resp, err := c.gl.Notes.ListIssueNotes(projectID, iid, &gitlab.ListIssueNotesOptions{
		ListOptions: gitlab.ListOptions{PerPage: 100},
		Sort:        gitlab.Ptr("asc"),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list notes on %s#%d: %w", projectID, iid, wrapError(resp, err))
	}
	notes := make([]*Note, len(list))
	for i, gn := range list {
		notes[i] = toNote(gn)
	}
	return notes, nil
}
