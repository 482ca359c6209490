package sqlite

import (
	"context"
	"fmt"

	"github.com/curateops/curator/internal/types"
)

// RecordExecutionAttempt appends one attempt to the execution history.
func (s *SQLiteStorage) RecordExecutionAttempt(ctx context.Context, attempt *types.ExecutionAttempt) error {
	if attempt.WorkID == "" {
		return fmt.Errorf("execution attempt requires a work ID")
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO execution_history (work_id, instance_id, agent_role, final_state, summary, error, started_at, ended_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, attempt.WorkID, attempt.InstanceID, attempt.AgentRole, attempt.FinalState,
		attempt.Summary, attempt.Error, attempt.StartedAt, attempt.EndedAt)
	if err != nil {
		return fmt.Errorf("failed to record execution attempt: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get attempt ID: %w", err)
	}
	attempt.ID = id
	return nil
}

// GetExecutionHistory returns all attempts for a work item, oldest first.
func (s *SQLiteStorage) GetExecutionHistory(ctx context.Context, workID string) ([]*types.ExecutionAttempt, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, work_id, instance_id, agent_role, final_state, summary, error, started_at, ended_at
		FROM execution_history
		WHERE work_id = ?
		ORDER BY started_at
	`, workID)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution history: %w", err)
	}
	defer rows.Close()

	var attempts []*types.ExecutionAttempt
	for rows.Next() {
		a := &types.ExecutionAttempt{}
		if err := rows.Scan(&a.ID, &a.WorkID, &a.InstanceID, &a.AgentRole, &a.FinalState,
			&a.Summary, &a.Error, &a.StartedAt, &a.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
