package tracker

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/curateops/curator/internal/types"
)

// Labels the claim workflow manages on issues. The in-progress label
// is a human-visible signal only; the database claim row is what
// actually prevents double execution.
const (
	LabelInProgress = "in-progress"
	LabelRevision   = "revision"
	LabelEscalation = "escalation"

	priorityLabelPrefix = "priority::"
	roleLabelPrefix     = "role::"
)

// PriorityLabel renders a scoped priority label for the given level.
func PriorityLabel(p int) string {
	return priorityLabelPrefix + strconv.Itoa(p)
}

// RoleLabel renders a scoped role label.
func RoleLabel(r types.AgentRole) string {
	return roleLabelPrefix + r.String()
}

// PriorityFromLabels extracts the priority from a scoped label,
// defaulting to 2 when no valid priority label is present.
func PriorityFromLabels(labels []string) int {
	for _, l := range labels {
		if !strings.HasPrefix(l, priorityLabelPrefix) {
			continue
		}
		p, err := strconv.Atoi(strings.TrimPrefix(l, priorityLabelPrefix))
		if err == nil && p >= 0 && p <= 4 {
			return p
		}
	}
	return 2
}

// RoleFromLabels decides which agent role an issue belongs to. An
// explicit role:: label wins; otherwise the first role whose work
// labels intersect the issue labels takes it.
func RoleFromLabels(labels []string) types.AgentRole {
	for _, l := range labels {
		if strings.HasPrefix(l, roleLabelPrefix) {
			if r, err := types.ParseRole(strings.TrimPrefix(l, roleLabelPrefix)); err == nil {
				return r
			}
		}
	}
	for _, role := range types.AllRoles {
		for _, want := range role.WorkLabels() {
			for _, have := range labels {
				if have == want {
					return role
				}
			}
		}
	}
	return ""
}

// ToWorkItem converts a tracker issue into a local mirror row.
func ToWorkItem(projectID string, issue *Issue) *types.WorkItem {
	status := types.StatusOpen
	if issue.State == "closed" {
		status = types.StatusClosed
	} else if issue.HasLabel("blocked") {
		status = types.StatusBlocked
	}
	return &types.WorkItem{
		ID:          types.WorkID(projectID, issue.IID),
		ProjectID:   projectID,
		IID:         issue.IID,
		Title:       issue.Title,
		Description: issue.Description,
		Status:      status,
		Priority:    PriorityFromLabels(issue.Labels),
		Role:        RoleFromLabels(issue.Labels),
		Labels:      issue.Labels,
		Assignee:    issue.AssigneeName(),
		WebURL:      issue.WebURL,
		CreatedAt:   issue.CreatedAt,
		UpdatedAt:   issue.UpdatedAt,
		ClosedAt:    issue.ClosedAt,
	}
}

// MarkClaimed flags an issue as being worked on.
func (c *Client) MarkClaimed(ctx context.Context, projectID string, iid int, workerID string) error {
	if _, err := c.UpdateIssue(ctx, projectID, iid, UpdateIssueOptions{
		AddLabels: []string{LabelInProgress},
	}); err != nil {
		return fmt.Errorf("mark claimed: %w", err)
	}
	_, err := c.CreateNote(ctx, projectID, iid, fmt.Sprintf("Claimed by worker `%s`.", workerID))
	if err != nil {
		return fmt.Errorf("mark claimed: %w", err)
	}
	return nil
}

// MarkCompleted closes an issue with a result note.
func (c *Client) MarkCompleted(ctx context.Context, projectID string, iid int, summary string) error {
	if summary != "" {
		if _, err := c.CreateNote(ctx, projectID, iid, summary); err != nil {
			return fmt.Errorf("mark completed: %w", err)
		}
	}
	if _, err := c.UpdateIssue(ctx, projectID, iid, UpdateIssueOptions{
		StateEvent:   "close",
		RemoveLabels: []string{LabelInProgress},
	}); err != nil {
		return fmt.Errorf("mark completed: %w", err)
	}
	return nil
}

// RequestRevision reopens (or keeps open) an issue with the revision
// label and a note describing what needs to change.
func (c *Client) RequestRevision(ctx context.Context, projectID string, iid int, requirements string) error {
	issue, err := c.GetIssue(ctx, projectID, iid)
	if err != nil {
		return fmt.Errorf("request revision: %w", err)
	}
	opts := UpdateIssueOptions{
		AddLabels:    []string{LabelRevision},
		RemoveLabels: []string{LabelInProgress},
	}
	if issue.State == "closed" {
		opts.StateEvent = "reopen"
	}
	if _, err := c.UpdateIssue(ctx, projectID, iid, opts); err != nil {
		return fmt.Errorf("request revision: %w", err)
	}
	if requirements != "" {
		if _, err := c.CreateNote(ctx, projectID, iid, "Revision requested:\n\n"+requirements); err != nil {
			return fmt.Errorf("request revision: %w", err)
		}
	}
	return nil
}

// ReleaseIssue removes the in-progress label so the issue reads as
// available again. Errors here are non-fatal to the caller; the
// database release is what matters.
func (c *Client) ReleaseIssue(ctx context.Context, projectID string, iid int) error {
	if _, err := c.UpdateIssue(ctx, projectID, iid, UpdateIssueOptions{
		RemoveLabels: []string{LabelInProgress},
	}); err != nil {
		return fmt.Errorf("release issue: %w", err)
	}
	return nil
}
