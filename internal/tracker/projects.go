package tracker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// Project is the subset of GitLab project fields the swarm uses.
type Project struct {
	ID                int       `json:"id"`
	Name              string    `json:"name"`
	Path              string    `json:"path"`
	PathWithNamespace string    `json:"path_with_namespace"`
	Description       string    `json:"description"`
	WebURL            string    `json:"web_url"`
	Archived          bool      `json:"archived"`
	CreatedAt         time.Time `json:"created_at"`
}

func toProject(p *gitlab.Project) *Project {
	out := &Project{
		ID:                p.ID,
		Name:              p.Name,
		Path:              p.Path,
		PathWithNamespace: p.PathWithNamespace,
		Description:       p.Description,
		WebURL:            p.WebURL,
		Archived:          p.Archived,
	}
	if p.CreatedAt != nil {
		out.CreatedAt = *p.CreatedAt
	}
	return out
}

// CreateProjectOptions holds the writable fields for project creation.
type CreateProjectOptions struct {
	Name        string
	Path        string
	Description string
	Visibility  string // private | internal | public
}

// UpdateProjectOptions holds the fields an update may change. Nil
// pointers are left untouched.
type UpdateProjectOptions struct {
	Name        *string
	Path        *string
	Description *string
}

// ListProjects returns projects the token is a member of.
func (c *Client) ListProjects(ctx context.Context) ([]*Project, error) {
	list, resp, err := c.gl.Projects.ListProjects(&gitlab.ListProjectsOptions{
		ListOptions: gitlab.ListOptions{PerPage: 100},
		Membership:  gitlab.Ptr(true),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", wrapError(resp, err))
	}
	projects := make([]*Project, len(list))
	for i, p := range list {
		projects[i] = toProject(p)
	}
	return projects, nil
}

// GetProject fetches one project by numeric ID or URL-encoded path.
func (c *Client) GetProject(ctx context.Context, projectID string) (*Project, error) {
	p, resp, err := c.gl.Projects.GetProject(projectID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get project %s: %w", projectID, wrapError(resp, err))
	}
	return toProject(p), nil
}

// CreateProject creates a project with issues enabled.
func (c *Client) CreateProject(ctx context.Context, opts CreateProjectOptions) (*Project, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("project name is required")
	}
	opt := &gitlab.CreateProjectOptions{
		Name:              gitlab.Ptr(opts.Name),
		IssuesAccessLevel: gitlab.Ptr(gitlab.EnabledAccessControl),
	}
	if opts.Path != "" {
		opt.Path = gitlab.Ptr(opts.Path)
	}
	if opts.Description != "" {
		opt.Description = gitlab.Ptr(opts.Description)
	}
	if opts.Visibility != "" {
		opt.Visibility = gitlab.Ptr(gitlab.VisibilityValue(opts.Visibility))
	}
	p, resp, err := c.gl.Projects.CreateProject(opt, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("create project %q: %w", opts.Name, wrapError(resp, err))
	}
	return toProject(p), nil
}

// UpdateProject changes project fields.
func (c *Client) UpdateProject(ctx context.Context, projectID string, opts UpdateProjectOptions) (*Project, error) {
	p, resp, err := c.gl.Projects.EditProject(projectID, &gitlab.EditProjectOptions{
		Name:        opts.Name,
		Path:        opts.Path,
		Description: opts.Description,
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("update project %s: %w", projectID, wrapError(resp, err))
	}
	return toProject(p), nil
}

// ArchiveProject archives a project, hiding it from active listings.
func (c *Client) ArchiveProject(ctx context.Context, projectID string) error {
	_, resp, err := c.gl.Projects.ArchiveProject(projectID, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("archive project %s: %w", projectID, wrapError(resp, err))
	}
	return nil
}

// DeleteProject permanently removes a project.
func (c *Client) DeleteProject(ctx context.Context, projectID string) error {
	resp, err := c.gl.Projects.DeleteProject(projectID, nil, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("delete project %s: %w", projectID, wrapError(resp, err))
	}
	return nil
}

// ProjectIDString renders a numeric project ID the way work item IDs
// and the knowledge_bases link column store it.
func ProjectIDString(id int) string {
	return strconv.Itoa(id)
}
