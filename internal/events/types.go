// Package events defines the structured activity feed written by every
// agent and worker. Events are the system's observable channel: the
// activity CLI tails them, the watchdog reads them, and retention
// cleanup prunes them.
package events

import (
	"time"
)

// EventType identifies what kind of activity an event records.
type EventType string

const (
	// Work lifecycle
	EventTypeWorkClaimed         EventType = "work_claimed"
	EventTypeWorkReleased        EventType = "work_released"
	EventTypeWorkCompleted       EventType = "work_completed"
	EventTypeWorkFailed          EventType = "work_failed"
	EventTypeStateTransition     EventType = "state_transition"
	EventTypeAssessmentStarted   EventType = "assessment_started"
	EventTypeAssessmentCompleted EventType = "assessment_completed"

	// Content activity
	EventTypeKBCreated          EventType = "kb_created"
	EventTypeKBDone             EventType = "kb_done"
	EventTypeArticleCreated     EventType = "article_created"
	EventTypeArticleUpdated     EventType = "article_updated"
	EventTypeStrategyPlanned    EventType = "strategy_planned"
	EventTypeDraftProduced      EventType = "draft_produced"
	EventTypeReviewRequested    EventType = "review_requested"
	EventTypeReviewPassed       EventType = "review_passed"
	EventTypeRevisionRequested  EventType = "revision_requested"
	EventTypeEscalation         EventType = "escalation"
	EventTypeRetrievalPerformed EventType = "retrieval_performed"

	// Tracker activity
	EventTypeTrackerProjectCreated EventType = "tracker_project_created"
	EventTypeTrackerIssueCreated   EventType = "tracker_issue_created"
	EventTypeTrackerSyncCompleted  EventType = "tracker_sync_completed"

	// Session activity
	EventTypeSessionStarted EventType = "session_started"
	EventTypeSessionCleared EventType = "session_cleared"
	EventTypeIntentRouted   EventType = "intent_routed"

	// Worker lifecycle
	EventTypeWorkerStarted    EventType = "worker_started"
	EventTypeWorkerStopped    EventType = "worker_stopped"
	EventTypeHeartbeat        EventType = "heartbeat"
	EventTypeStaleCleanup     EventType = "stale_cleanup"
	EventTypeEventCleanup     EventType = "event_cleanup"
	EventTypeWatchdogWarning  EventType = "watchdog_warning"
	EventTypeWatchdogRelease  EventType = "watchdog_release"

	// Model usage
	EventTypeAIUsage       EventType = "ai_usage"
	EventTypeBudgetWarning EventType = "budget_warning"
)

// EventSeverity is the severity level of an event.
type EventSeverity string

const (
	SeverityInfo     EventSeverity = "info"
	SeverityWarning  EventSeverity = "warning"
	SeverityError    EventSeverity = "error"
	SeverityCritical EventSeverity = "critical"
)

// IsValid checks if the severity is a known value.
func (s EventSeverity) IsValid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// AgentEvent is a single entry in the activity feed.
type AgentEvent struct {
	ID        string        `json:"id"`
	Type      EventType     `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	WorkID    string        `json:"work_id,omitempty"`
	WorkerID  string        `json:"worker_id,omitempty"`
	AgentRole string        `json:"agent_role,omitempty"`
	Severity  EventSeverity `json:"severity"`
	Message   string        `json:"message"`
	// Data holds type-specific structured payload; must stay
	// JSON-serializable because it is persisted as a JSON column.
	Data map[string]any `json:"data,omitempty"`
}

// StateTransitionData is the payload for state_transition events.
type StateTransitionData struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// ArticleData is the payload for article_created/article_updated events.
type ArticleData struct {
	ArticleID       int64  `json:"article_id"`
	KnowledgeBaseID int64  `json:"knowledge_base_id"`
	Title           string `json:"title"`
	ParentID        *int64 `json:"parent_id,omitempty"`
}

// ReviewData is the payload for review outcome events.
type ReviewData struct {
	Verdict     string   `json:"verdict"` // approve, revise, escalate
	Score       float64  `json:"score"`
	Issues      []string `json:"issues,omitempty"`
	RevisionIID int      `json:"revision_iid,omitempty"`
}

// AIUsageData is the payload for ai_usage events.
type AIUsageData struct {
	Model        string `json:"model"`
	Operation    string `json:"operation"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	DurationMS   int64  `json:"duration_ms"`
}

// ReleaseData is the payload for work_released and watchdog_release events.
type ReleaseData struct {
	Reason   string `json:"reason"`
	Reopened bool   `json:"reopened"`
}

// Filter narrows event queries.
type Filter struct {
	WorkID    string
	WorkerID  string
	AgentRole string
	Types     []EventType
	Severity  EventSeverity
	Since     time.Time
	Limit     int
}
