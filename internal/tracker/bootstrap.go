package tracker

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/curateops/curator/internal/types"
)

var (
	projectNameJunk   = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	projectNameSpaces = regexp.MustCompile(`\s+`)
	projectNameLead   = regexp.MustCompile(`^[^a-z0-9]+`)
)

// SanitizeProjectName turns a knowledge base name into a valid
// tracker project slug: lowercase, hyphenated, kb- prefixed, at most
// 50 characters.
func SanitizeProjectName(kbName string) string {
	s := projectNameJunk.ReplaceAllString(kbName, "")
	s = projectNameSpaces.ReplaceAllString(s, "-")
	s = strings.ToLower(strings.Trim(s, "-"))
	s = projectNameLead.ReplaceAllString(s, "")
	if !strings.HasPrefix(s, "kb-") {
		s = "kb-" + s
	}
	if len(s) > 50 {
		s = strings.TrimRight(s[:50], "-")
	}
	return s
}

// ProjectLinker records a created tracker project against a knowledge
// base. Satisfied by the storage layer.
type ProjectLinker interface {
	LinkTrackerProject(ctx context.Context, kbID int64, projectID string) error
}

// standardIssue is one of the management issues every KB project
// starts with.
type standardIssue struct {
	title  string
	body   string
	labels []string
	role   types.AgentRole
}

func standardIssues(kbName string) []standardIssue {
	slug := strings.TrimPrefix(SanitizeProjectName(kbName), "kb-")
	return []standardIssue{
		{
			title: "Knowledge Base Planning - " + kbName,
			body: fmt.Sprintf("Tracks overall planning and structure for the **%s** knowledge base:\n\n"+
				"- Define scope and objectives\n"+
				"- Plan article structure and hierarchy\n"+
				"- Set content priorities\n", kbName),
			labels: []string{"planning", "knowledge-base", slug},
			role:   types.RolePlanner,
		},
		{
			title: "Content Generation - " + kbName,
			body: fmt.Sprintf("Tracks article creation for the **%s** knowledge base. "+
				"Drafts follow the strategy from the planning issue.\n", kbName),
			labels: []string{"content-generation", "knowledge-base", slug},
			role:   types.RoleCreator,
		},
		{
			title: "Quality Review - " + kbName,
			body: fmt.Sprintf("Tracks review of published articles in the **%s** knowledge base: "+
				"accuracy, consistency, completeness.\n", kbName),
			labels: []string{"quality-review", "knowledge-base", slug},
			role:   types.RoleReviewer,
		},
		{
			title: "Deployment & Maintenance - " + kbName,
			body: fmt.Sprintf("Tracks lifecycle operations for the **%s** knowledge base: "+
				"activation, archival, ongoing upkeep.\n", kbName),
			labels: []string{"kb-management", "maintenance", "knowledge-base", slug},
			role:   types.RoleManagement,
		},
	}
}

// BootstrapKB creates the tracker project for a knowledge base, links
// it, and opens the standard management issues that seed the agent
// work queue. Returns the created project. Issue creation failures do
// not roll back the project; the sweep that called us will retry the
// missing pieces on the next pass.
func (c *Client) BootstrapKB(ctx context.Context, linker ProjectLinker, kb *types.KnowledgeBase) (*Project, error) {
	name := SanitizeProjectName(kb.Name)
	project, err := c.CreateProject(ctx, CreateProjectOptions{
		Name:        name,
		Path:        name,
		Description: fmt.Sprintf("Work queue for the %q knowledge base", kb.Name),
		Visibility:  "private",
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap KB %q: %w", kb.Name, err)
	}

	projectID := ProjectIDString(project.ID)
	if err := linker.LinkTrackerProject(ctx, kb.ID, projectID); err != nil {
		return nil, fmt.Errorf("bootstrap KB %q: link project %s: %w", kb.Name, projectID, err)
	}

	var issueErrs []string
	for _, si := range standardIssues(kb.Name) {
		labels := append([]string{RoleLabel(si.role), PriorityLabel(si.role.MaxPriority())}, si.labels...)
		if _, err := c.CreateIssue(ctx, projectID, CreateIssueOptions{
			Title:       si.title,
			Description: si.body,
			Labels:      labels,
		}); err != nil {
			issueErrs = append(issueErrs, fmt.Sprintf("%q: %v", si.title, err))
		}
	}
	if len(issueErrs) > 0 {
		return project, fmt.Errorf("bootstrap KB %q: %d standard issues failed: %s",
			kb.Name, len(issueErrs), strings.Join(issueErrs, "; "))
	}
	return project, nil
}
