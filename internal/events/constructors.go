package events

import (
	"time"

	"github.com/google/uuid"
)

// New creates an AgentEvent with a fresh ID and timestamp. Most call
// sites use this generic form; the typed constructors below exist for
// payloads that downstream code parses back out.
func New(eventType EventType, workID, workerID, agentRole string, severity EventSeverity, message string, data map[string]any) *AgentEvent {
	if data == nil {
		data = make(map[string]any)
	}
	return &AgentEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now(),
		WorkID:    workID,
		WorkerID:  workerID,
		AgentRole: agentRole,
		Severity:  severity,
		Message:   message,
		Data:      data,
	}
}

// NewStateTransition records a validated execution state change.
func NewStateTransition(workID, workerID, agentRole string, data StateTransitionData) (*AgentEvent, error) {
	e := New(EventTypeStateTransition, workID, workerID, agentRole, SeverityInfo,
		data.From+" → "+data.To, nil)
	if err := e.SetStateTransitionData(data); err != nil {
		return nil, err
	}
	return e, nil
}

// NewArticleEvent records an article create or update.
func NewArticleEvent(eventType EventType, workID, workerID, agentRole string, message string, data ArticleData) (*AgentEvent, error) {
	e := New(eventType, workID, workerID, agentRole, SeverityInfo, message, nil)
	if err := e.SetArticleData(data); err != nil {
		return nil, err
	}
	return e, nil
}

// NewReviewEvent records a supervisor review outcome. Severity follows
// the verdict: approvals are info, revisions warnings, escalations errors.
func NewReviewEvent(workID, workerID string, message string, data ReviewData) (*AgentEvent, error) {
	severity := SeverityInfo
	switch data.Verdict {
	case "revise":
		severity = SeverityWarning
	case "escalate":
		severity = SeverityError
	}
	e := New(EventTypeReviewPassed, workID, workerID, "supervisor", severity, message, nil)
	switch data.Verdict {
	case "revise":
		e.Type = EventTypeRevisionRequested
	case "escalate":
		e.Type = EventTypeEscalation
	}
	if err := e.SetReviewData(data); err != nil {
		return nil, err
	}
	return e, nil
}

// NewAIUsage records token consumption for one model call.
func NewAIUsage(workID, workerID, agentRole string, data AIUsageData) (*AgentEvent, error) {
	e := New(EventTypeAIUsage, workID, workerID, agentRole, SeverityInfo,
		data.Operation+" ("+data.Model+")", nil)
	if err := e.SetAIUsageData(data); err != nil {
		return nil, err
	}
	return e, nil
}

// NewRelease records a claim release, watchdog-driven or voluntary.
func NewRelease(eventType EventType, workID, workerID string, severity EventSeverity, message string, data ReleaseData) (*AgentEvent, error) {
	e := New(eventType, workID, workerID, "", severity, message, nil)
	if err := e.SetReleaseData(data); err != nil {
		return nil, err
	}
	return e, nil
}
