package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/curateops/curator/internal/storage"
	"github.com/curateops/curator/internal/types"
)

// Manager is the chat-facing layer over session storage: get-or-create
// semantics, validation before saves, and conversation bookkeeping.
// Persistence, audit, and message ordering live in the storage layer.
type Manager struct {
	store storage.Storage
}

// NewManager creates a session manager.
func NewManager(store storage.Storage) *Manager {
	return &Manager{store: store}
}

// NewSessionID mints a fresh session identifier.
func NewSessionID() string {
	return uuid.New().String()
}

// Load returns the session context, creating an active one on first
// use.
func (m *Manager) Load(ctx context.Context, sessionID string) (*types.SessionContext, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}

	sc, err := m.store.GetSessionContext(ctx, sessionID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}
	if sc != nil {
		return sc, nil
	}

	sc = &types.SessionContext{
		SessionID:         sessionID,
		ConversationState: types.ConversationActive,
	}
	if err := m.store.SaveSessionContext(ctx, sc, "session-manager"); err != nil {
		return nil, fmt.Errorf("failed to create session %s: %w", sessionID, err)
	}
	return sc, nil
}

// Save validates and persists the session context. agentName attributes
// the change in the audit trail.
func (m *Manager) Save(ctx context.Context, sc *types.SessionContext, agentName string) error {
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("invalid session context: %w", err)
	}
	if agentName == "" {
		agentName = "session-manager"
	}
	if err := m.store.SaveSessionContext(ctx, sc, agentName); err != nil {
		return fmt.Errorf("failed to save session %s: %w", sc.SessionID, err)
	}
	return nil
}

// AgentContext returns the per-session agent bookkeeping, zero-valued
// when none has been saved yet.
func (m *Manager) AgentContext(ctx context.Context, sessionID string) (*types.AgentContext, error) {
	ac, err := m.store.GetAgentContext(ctx, sessionID)
	if err != nil && !errors.Is(err, types.ErrNotFound) {
		return nil, fmt.Errorf("failed to load agent context for %s: %w", sessionID, err)
	}
	if ac == nil {
		ac = &types.AgentContext{SessionID: sessionID}
	}
	return ac, nil
}

// SaveAgentContext persists agent bookkeeping.
func (m *Manager) SaveAgentContext(ctx context.Context, ac *types.AgentContext, agentName string) error {
	if ac.SessionID == "" {
		return fmt.Errorf("session ID is required")
	}
	if err := m.store.SaveAgentContext(ctx, ac, agentName); err != nil {
		return fmt.Errorf("failed to save agent context for %s: %w", ac.SessionID, err)
	}
	return nil
}

// Append records a conversation turn. The storage layer assigns the
// strictly increasing message order.
func (m *Manager) Append(ctx context.Context, sessionID, role, content, agentName string) (*types.ConversationMessage, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session ID is required")
	}
	if content == "" {
		return nil, fmt.Errorf("message content is required")
	}

	msg := &types.ConversationMessage{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		AgentName: agentName,
	}
	if err := m.store.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("failed to append message to %s: %w", sessionID, err)
	}
	return msg, nil
}

// History returns the most recent limit messages in chronological
// order. limit <= 0 uses the storage default.
func (m *Manager) History(ctx context.Context, sessionID string, limit int) ([]*types.ConversationMessage, error) {
	msgs, err := m.store.GetConversation(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversation for %s: %w", sessionID, err)
	}
	return msgs, nil
}

// Audit returns the most recent audit entries for a session.
func (m *Manager) Audit(ctx context.Context, sessionID string, limit int) ([]*types.AuditEntry, error) {
	entries, err := m.store.GetAuditTrail(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit trail for %s: %w", sessionID, err)
	}
	return entries, nil
}

// Clear deactivates the session. Idempotent.
func (m *Manager) Clear(ctx context.Context, sessionID, agentName string) error {
	if agentName == "" {
		agentName = "session-manager"
	}
	if err := m.store.ClearSession(ctx, sessionID, agentName); err != nil {
		return fmt.Errorf("failed to clear session %s: %w", sessionID, err)
	}
	return nil
}
