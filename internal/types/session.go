package types

import (
	"fmt"
	"time"
)

// ConversationState tracks where a chat session is in its lifecycle.
type ConversationState string

const (
	ConversationActive     ConversationState = "active"
	ConversationWaiting    ConversationState = "waiting_for_input"
	ConversationCompleted  ConversationState = "completed"
	ConversationErrored    ConversationState = "error"
)

// IsValid checks if the conversation state is a known value.
func (s ConversationState) IsValid() bool {
	switch s {
	case ConversationActive, ConversationWaiting, ConversationCompleted, ConversationErrored:
		return true
	}
	return false
}

// SessionContext is the durable per-session state: which KB and article
// the conversation is anchored to, the classified intent, and workflow
// progress. Saved with a per-field audit trail.
type SessionContext struct {
	SessionID         string            `json:"session_id"`
	KnowledgeBaseID   *int64            `json:"knowledge_base_id,omitempty"`
	ArticleID         *int64            `json:"article_id,omitempty"`
	UserIntent        string            `json:"user_intent,omitempty"`
	IntentConfidence  float64           `json:"intent_confidence"`
	TaskContext       map[string]any    `json:"task_context,omitempty"`
	ConversationState ConversationState `json:"conversation_state"`
	ActiveWorkflow    string            `json:"active_workflow,omitempty"`
	WorkflowStep      int               `json:"workflow_step"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// Validate checks that the session context is well-formed.
func (s *SessionContext) Validate() error {
	if s.SessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if s.ConversationState != "" && !s.ConversationState.IsValid() {
		return fmt.Errorf("invalid conversation state: %q", s.ConversationState)
	}
	if s.IntentConfidence < 0 || s.IntentConfidence > 1 {
		return fmt.Errorf("intent confidence must be in [0,1] (got %v)", s.IntentConfidence)
	}
	if s.WorkflowStep < 0 {
		return fmt.Errorf("workflow step cannot be negative (got %d)", s.WorkflowStep)
	}
	return nil
}

// AgentContext is the per-session agent bookkeeping: who handled the
// last message and the loop guards that stop runaway recursion.
type AgentContext struct {
	SessionID            string    `json:"session_id"`
	CurrentAgent         AgentRole `json:"current_agent,omitempty"`
	Recursions           int       `json:"recursions"`
	ConsecutiveToolCalls int       `json:"consecutive_tool_calls"`
	LastToolResult       string    `json:"last_tool_result,omitempty"`
	ProcessedMessages    int       `json:"processed_messages"`
	LastAgentSwitch      time.Time `json:"last_agent_switch"`
}

// ConversationMessage is one turn in a session, ordered by Order which
// is strictly increasing per session.
type ConversationMessage struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // user, assistant, system, tool
	Content   string    `json:"content"`
	AgentName string    `json:"agent_name,omitempty"`
	ToolCalls string    `json:"tool_calls,omitempty"` // JSON blob
	Metadata  string    `json:"metadata,omitempty"`   // JSON blob
	Order     int       `json:"message_order"`
	CreatedAt time.Time `json:"created_at"`
}

// AuditEntry records one field change in a session save. CorrelationID
// groups the entries written by a single save.
type AuditEntry struct {
	ID            int64     `json:"id"`
	SessionID     string    `json:"session_id"`
	ChangeType    string    `json:"change_type"` // session_context, agent_context, clear
	Path          string    `json:"path"`        // field path, e.g. "user_intent"
	OldValue      string    `json:"old_value,omitempty"`
	NewValue      string    `json:"new_value,omitempty"`
	AgentName     string    `json:"agent_name,omitempty"`
	CorrelationID string    `json:"correlation_id"`
	CreatedAt     time.Time `json:"created_at"`
}
