package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/curateops/curator/internal/types"
)

// GetSessionContext returns the session context, or nil if the session
// does not exist or was cleared.
func (s *SQLiteStorage) GetSessionContext(ctx context.Context, sessionID string) (*types.SessionContext, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_context FROM session_states WHERE session_id = ? AND is_active = 1
	`, sessionID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session context: %w", err)
	}
	sc := &types.SessionContext{}
	if err := json.Unmarshal([]byte(raw), sc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session context: %w", err)
	}
	sc.SessionID = sessionID
	return sc, nil
}

// SaveSessionContext validates and persists the session context,
// writing one audit entry per changed field. All entries from a single
// save share a correlation ID.
func (s *SQLiteStorage) SaveSessionContext(ctx context.Context, sc *types.SessionContext, agentName string) error {
	if err := sc.Validate(); err != nil {
		return fmt.Errorf("invalid session context: %w", err)
	}

	return busyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		old := &types.SessionContext{}
		var oldRaw string
		err = tx.QueryRowContext(ctx, `
			SELECT session_context FROM session_states WHERE session_id = ?
		`, sc.SessionID).Scan(&oldRaw)
		exists := err != sql.ErrNoRows
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to read existing session: %w", err)
		}
		if exists {
			if err := json.Unmarshal([]byte(oldRaw), old); err != nil {
				return fmt.Errorf("failed to unmarshal existing session: %w", err)
			}
		}

		sc.UpdatedAt = time.Now()
		newRaw, err := json.Marshal(sc)
		if err != nil {
			return fmt.Errorf("failed to marshal session context: %w", err)
		}

		if exists {
			if _, err := tx.ExecContext(ctx, `
				UPDATE session_states SET session_context = ?, is_active = 1, updated_at = ? WHERE session_id = ?
			`, string(newRaw), sc.UpdatedAt, sc.SessionID); err != nil {
				return fmt.Errorf("failed to update session: %w", err)
			}
		} else {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO session_states (session_id, session_context, updated_at) VALUES (?, ?, ?)
			`, sc.SessionID, string(newRaw), sc.UpdatedAt); err != nil {
				return fmt.Errorf("failed to insert session: %w", err)
			}
		}

		correlationID := uuid.New().String()
		for _, change := range diffSessionContext(old, sc) {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO state_audit_log (session_id, change_type, path, old_value, new_value, agent_name, correlation_id)
				VALUES (?, 'session_context', ?, ?, ?, ?, ?)
			`, sc.SessionID, change.path, change.old, change.new, agentName, correlationID); err != nil {
				return fmt.Errorf("failed to write audit entry: %w", err)
			}
		}

		return tx.Commit()
	})
}

type fieldChange struct {
	path string
	old  string
	new  string
}

// diffSessionContext lists field-level changes between two contexts.
func diffSessionContext(old, new *types.SessionContext) []fieldChange {
	var changes []fieldChange
	add := func(path, o, n string) {
		if o != n {
			changes = append(changes, fieldChange{path: path, old: o, new: n})
		}
	}

	fmtID := func(p *int64) string {
		if p == nil {
			return ""
		}
		return fmt.Sprintf("%d", *p)
	}
	add("knowledge_base_id", fmtID(old.KnowledgeBaseID), fmtID(new.KnowledgeBaseID))
	add("article_id", fmtID(old.ArticleID), fmtID(new.ArticleID))
	add("user_intent", old.UserIntent, new.UserIntent)
	add("intent_confidence", fmt.Sprintf("%g", old.IntentConfidence), fmt.Sprintf("%g", new.IntentConfidence))
	add("conversation_state", string(old.ConversationState), string(new.ConversationState))
	add("active_workflow", old.ActiveWorkflow, new.ActiveWorkflow)
	add("workflow_step", fmt.Sprintf("%d", old.WorkflowStep), fmt.Sprintf("%d", new.WorkflowStep))

	oldTask, _ := json.Marshal(old.TaskContext)
	newTask, _ := json.Marshal(new.TaskContext)
	add("task_context", string(oldTask), string(newTask))

	return changes
}

// GetAgentContext returns agent bookkeeping for a session, or nil.
func (s *SQLiteStorage) GetAgentContext(ctx context.Context, sessionID string) (*types.AgentContext, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_context FROM session_states WHERE session_id = ? AND is_active = 1
	`, sessionID).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get agent context: %w", err)
	}
	if raw == "" || raw == "{}" {
		return nil, nil
	}
	ac := &types.AgentContext{}
	if err := json.Unmarshal([]byte(raw), ac); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent context: %w", err)
	}
	ac.SessionID = sessionID
	return ac, nil
}

// SaveAgentContext persists agent bookkeeping with a single audit entry.
func (s *SQLiteStorage) SaveAgentContext(ctx context.Context, ac *types.AgentContext, agentName string) error {
	if ac.SessionID == "" {
		return fmt.Errorf("agent context requires a session ID")
	}
	raw, err := json.Marshal(ac)
	if err != nil {
		return fmt.Errorf("failed to marshal agent context: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE session_states SET agent_context = ?, updated_at = ? WHERE session_id = ?
	`, string(raw), time.Now(), ac.SessionID)
	if err != nil {
		return fmt.Errorf("failed to save agent context: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		// Session row must exist before agent context attaches to it.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO session_states (session_id, agent_context) VALUES (?, ?)
		`, ac.SessionID, string(raw)); err != nil {
			return fmt.Errorf("failed to create session for agent context: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO state_audit_log (session_id, change_type, path, new_value, agent_name, correlation_id)
		VALUES (?, 'agent_context', 'agent_context', ?, ?, ?)
	`, ac.SessionID, string(raw), agentName, uuid.New().String()); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	return tx.Commit()
}

// AppendMessage appends a conversation turn, assigning the next
// message order inside the transaction so concurrent appenders cannot
// produce duplicate positions.
func (s *SQLiteStorage) AppendMessage(ctx context.Context, m *types.ConversationMessage) error {
	if m.SessionID == "" {
		return fmt.Errorf("conversation message requires a session ID")
	}
	if m.Role == "" {
		return fmt.Errorf("conversation message requires a role")
	}

	return busyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var next int
		if err := tx.QueryRowContext(ctx, `
			SELECT COALESCE(MAX(message_order), 0) + 1 FROM conversation_messages WHERE session_id = ?
		`, m.SessionID).Scan(&next); err != nil {
			return fmt.Errorf("failed to get next message order: %w", err)
		}

		now := time.Now()
		res, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_messages (session_id, role, content, agent_name, tool_calls, metadata, message_order, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, m.SessionID, m.Role, m.Content, m.AgentName, m.ToolCalls, m.Metadata, next, now)
		if err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get message ID: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		m.ID = id
		m.Order = next
		m.CreatedAt = now
		return nil
	})
}

// GetConversation returns the most recent limit messages in
// chronological order.
func (s *SQLiteStorage) GetConversation(ctx context.Context, sessionID string, limit int) ([]*types.ConversationMessage, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, agent_name, tool_calls, metadata, message_order, created_at
		FROM (
			SELECT * FROM conversation_messages
			WHERE session_id = ?
			ORDER BY message_order DESC
			LIMIT ?
		)
		ORDER BY message_order ASC
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	defer rows.Close()

	var msgs []*types.ConversationMessage
	for rows.Next() {
		m := &types.ConversationMessage{}
		if err := rows.Scan(&m.ID, &m.SessionID, &m.Role, &m.Content, &m.AgentName,
			&m.ToolCalls, &m.Metadata, &m.Order, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// GetAuditTrail returns the most recent audit entries, newest first.
func (s *SQLiteStorage) GetAuditTrail(ctx context.Context, sessionID string, limit int) ([]*types.AuditEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session_id, change_type, path, old_value, new_value, agent_name, correlation_id, created_at
		FROM state_audit_log
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer rows.Close()

	var entries []*types.AuditEntry
	for rows.Next() {
		e := &types.AuditEntry{}
		if err := rows.Scan(&e.ID, &e.SessionID, &e.ChangeType, &e.Path, &e.OldValue,
			&e.NewValue, &e.AgentName, &e.CorrelationID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ClearSession marks the session inactive, drops its conversation, and
// writes an audit entry. The audit trail survives the clear. Clearing
// an unknown session is a no-op.
func (s *SQLiteStorage) ClearSession(ctx context.Context, sessionID, agentName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE session_states SET is_active = 0, updated_at = ? WHERE session_id = ? AND is_active = 1
	`, time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return tx.Commit()
	}

	// A cleared session starts over; its old turns must not resurface
	// as model context on the next message.
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM conversation_messages WHERE session_id = ?
	`, sessionID); err != nil {
		return fmt.Errorf("failed to clear conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO state_audit_log (session_id, change_type, path, new_value, agent_name, correlation_id)
		VALUES (?, 'clear', 'is_active', 'false', ?, ?)
	`, sessionID, agentName, uuid.New().String()); err != nil {
		return fmt.Errorf("failed to write clear audit entry: %w", err)
	}

	return tx.Commit()
}
