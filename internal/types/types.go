// Package types defines the core domain types shared across curator:
// knowledge bases and articles, tracker-backed work items, worker
// instances, and the execution state machine that governs claims.
package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// KnowledgeBase is a named collection of articles. When a KB is marked
// done, a tracker project is created and linked via TrackerProjectID so
// agents can coordinate follow-up work through the tracker.
type KnowledgeBase struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	AuthorID         string    `json:"author_id,omitempty"`
	IsActive         bool      `json:"is_active"`
	TrackerProjectID string    `json:"tracker_project_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Validate checks that the knowledge base is well-formed.
func (kb *KnowledgeBase) Validate() error {
	if strings.TrimSpace(kb.Name) == "" {
		return fmt.Errorf("knowledge base name is required")
	}
	if len(kb.Name) > 200 {
		return fmt.Errorf("knowledge base name exceeds 200 characters (got %d)", len(kb.Name))
	}
	return nil
}

// Article is a unit of KB content. ParentID forms a tree: nil means the
// article sits at the root level of its knowledge base.
type Article struct {
	ID              int64     `json:"id"`
	KnowledgeBaseID int64     `json:"knowledge_base_id"`
	Title           string    `json:"title"`
	Content         string    `json:"content"`
	AuthorID        string    `json:"author_id,omitempty"`
	ParentID        *int64    `json:"parent_id,omitempty"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Validate checks that the article is well-formed.
func (a *Article) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return fmt.Errorf("article title is required")
	}
	if len(a.Title) > 500 {
		return fmt.Errorf("article title exceeds 500 characters (got %d)", len(a.Title))
	}
	if a.KnowledgeBaseID == 0 {
		return fmt.Errorf("article must belong to a knowledge base")
	}
	return nil
}

// Tag is a normalized taxonomy label. Names are stored lowercase and
// trimmed; NormalizeTagName is the single place that rule lives.
type Tag struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// TagWithUsage pairs a tag with the number of articles carrying it.
type TagWithUsage struct {
	Tag
	UsageCount int `json:"usage_count"`
}

// NormalizeTagName lowercases and trims a tag name. Returns an error
// for names that normalize to empty.
func NormalizeTagName(name string) (string, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	if n == "" {
		return "", fmt.Errorf("tag name cannot be empty")
	}
	return n, nil
}

// WorkStatus is the queue status of a work item's local mirror row.
type WorkStatus string

const (
	StatusOpen       WorkStatus = "open"
	StatusInProgress WorkStatus = "in_progress"
	StatusBlocked    WorkStatus = "blocked"
	StatusClosed     WorkStatus = "closed"
)

// IsValid checks if the status is a known value.
func (s WorkStatus) IsValid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusBlocked, StatusClosed:
		return true
	}
	return false
}

// WorkItem mirrors a tracker issue locally so the claim transaction
// stays inside one database. The tracker remains authoritative for the
// human-visible queue; the mirror is authoritative for claims.
type WorkItem struct {
	ID          string     `json:"id"` // "<project>#<iid>"
	ProjectID   string     `json:"project_id"`
	IID         int        `json:"iid"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      WorkStatus `json:"status"`
	Priority    int        `json:"priority"` // 0 (highest) through 4
	Role        AgentRole  `json:"role"`     // which agent should take this
	Labels      []string   `json:"labels,omitempty"`
	Assignee    string     `json:"assignee,omitempty"`
	WebURL      string     `json:"web_url,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

// Validate checks that the work item is well-formed.
func (w *WorkItem) Validate() error {
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("work item ID is required")
	}
	if strings.TrimSpace(w.Title) == "" {
		return fmt.Errorf("work item title is required")
	}
	if len(w.Title) > 500 {
		return fmt.Errorf("work item title exceeds 500 characters (got %d)", len(w.Title))
	}
	if w.Priority < 0 || w.Priority > 4 {
		return fmt.Errorf("work item priority must be 0-4 (got %d)", w.Priority)
	}
	if !w.Status.IsValid() {
		return fmt.Errorf("invalid work item status: %q", w.Status)
	}
	if w.Role != "" && !w.Role.IsValid() {
		return fmt.Errorf("invalid agent role: %q", w.Role)
	}
	return nil
}

// HasLabel reports whether the work item carries the given label.
func (w *WorkItem) HasLabel(label string) bool {
	for _, l := range w.Labels {
		if l == label {
			return true
		}
	}
	return false
}

// WorkID builds the canonical work item ID from a project and issue iid.
func WorkID(projectID string, iid int) string {
	return fmt.Sprintf("%s#%d", projectID, iid)
}

// WorkerInstance represents a running (or formerly running) swarm
// worker process. Instances heartbeat while alive; the cleanup pass
// releases claims held by instances whose heartbeat has gone stale.
type WorkerInstance struct {
	InstanceID    string         `json:"instance_id"`
	Hostname      string         `json:"hostname"`
	PID           int            `json:"pid"`
	Roles         []AgentRole    `json:"roles"`
	Version       string         `json:"version,omitempty"`
	Status        InstanceStatus `json:"status"`
	StartedAt     time.Time      `json:"started_at"`
	LastHeartbeat time.Time      `json:"last_heartbeat"`
	StoppedAt     *time.Time     `json:"stopped_at,omitempty"`
	Metadata      string         `json:"metadata,omitempty"` // JSON blob
}

// InstanceStatus is the lifecycle status of a worker instance.
type InstanceStatus string

const (
	InstanceRunning  InstanceStatus = "running"
	InstanceStopping InstanceStatus = "stopping"
	InstanceStopped  InstanceStatus = "stopped"
	InstanceCrashed  InstanceStatus = "crashed"
)

// IsValid checks if the instance status is a known value.
func (s InstanceStatus) IsValid() bool {
	switch s {
	case InstanceRunning, InstanceStopping, InstanceStopped, InstanceCrashed:
		return true
	}
	return false
}

// Validate checks that the instance record is well-formed. Metadata, if
// present, must be valid JSON so downstream consumers can parse it
// without guarding.
func (w *WorkerInstance) Validate() error {
	if strings.TrimSpace(w.InstanceID) == "" {
		return fmt.Errorf("instance ID is required")
	}
	if !w.Status.IsValid() {
		return fmt.Errorf("invalid instance status: %q", w.Status)
	}
	if w.Metadata != "" {
		var js json.RawMessage
		if err := json.Unmarshal([]byte(w.Metadata), &js); err != nil {
			return fmt.Errorf("instance metadata must be valid JSON: %w", err)
		}
	}
	return nil
}

// SortPolicy controls ordering of ready-work queries.
type SortPolicy string

const (
	// SortPolicyPriority orders by priority ascending (P0 first), then age.
	SortPolicyPriority SortPolicy = "priority"
	// SortPolicyOldest orders by creation time ascending.
	SortPolicyOldest SortPolicy = "oldest"
)

// WorkFilter narrows ready-work queries.
type WorkFilter struct {
	Roles       []AgentRole
	Labels      []string
	MaxPriority int // inclusive ceiling; -1 means no ceiling
	ProjectID   string
	Limit       int
	SortPolicy  SortPolicy
}
