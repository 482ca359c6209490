package tracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/curateops/curator/internal/types"
)

func TestPriorityFromLabels(t *testing.T) {
	assert.Equal(t, 0, PriorityFromLabels([]string{"priority::0", "planning"}))
	assert.Equal(t, 4, PriorityFromLabels([]string{"priority::4"}))
	assert.Equal(t, 2, PriorityFromLabels([]string{"planning"}), "default when absent")
	assert.Equal(t, 2, PriorityFromLabels([]string{"priority::9"}), "out of range ignored")
	assert.Equal(t, 2, PriorityFromLabels(nil))
}

func TestRoleFromLabels(t *testing.T) {
	assert.Equal(t, types.RoleCreator, RoleFromLabels([]string{"content-generation", "knowledge-base"}))
	assert.Equal(t, types.RoleReviewer, RoleFromLabels([]string{"quality-review"}))
	assert.Equal(t, types.RolePlanner, RoleFromLabels([]string{"role::planner", "content-generation"}),
		"explicit role label wins over work-label match")
	assert.Equal(t, types.AgentRole(""), RoleFromLabels([]string{"unrelated"}))
}

func TestToWorkItem(t *testing.T) {
	now := time.Now()
	issue := &Issue{
		IID:       3,
		Title:     "Content Generation - Go Basics",
		State:     "opened",
		Labels:    []string{"content-generation", "priority::1"},
		WebURL:    "http://gitlab.local/kb-go-basics/-/issues/3",
		CreatedAt: now,
		UpdatedAt: now,
	}

	w := ToWorkItem("42", issue)
	assert.Equal(t, "42#3", w.ID)
	assert.Equal(t, "42", w.ProjectID)
	assert.Equal(t, 3, w.IID)
	assert.Equal(t, types.StatusOpen, w.Status)
	assert.Equal(t, 1, w.Priority)
	assert.Equal(t, types.RoleCreator, w.Role)
	assert.NoError(t, w.Validate())
}

func TestToWorkItemClosedAndBlocked(t *testing.T) {
	closedAt := time.Now()
	closed := &Issue{IID: 1, Title: "x", State: "closed", ClosedAt: &closedAt, CreatedAt: closedAt, UpdatedAt: closedAt}
	w := ToWorkItem("42", closed)
	assert.Equal(t, types.StatusClosed, w.Status)
	assert.NotNil(t, w.ClosedAt)

	blocked := &Issue{IID: 2, Title: "y", State: "opened", Labels: []string{"blocked"}, CreatedAt: closedAt, UpdatedAt: closedAt}
	assert.Equal(t, types.StatusBlocked, ToWorkItem("42", blocked).Status)
}
