package postgres

import (
	"context"
	"fmt"

	"github.com/curateops/curator/internal/types"
)

// RecordExecutionAttempt appends one attempt to the execution history.
func (s *PostgresStorage) RecordExecutionAttempt(ctx context.Context, attempt *types.ExecutionAttempt) error {
	if attempt.WorkID == "" {
		return fmt.Errorf("execution attempt requires a work ID")
	}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO execution_history (work_id, instance_id, agent_role, final_state, summary, error, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, attempt.WorkID, attempt.InstanceID, attempt.AgentRole, attempt.FinalState,
		attempt.Summary, attempt.Error, attempt.StartedAt, attempt.EndedAt).Scan(&attempt.ID)
	if err != nil {
		return fmt.Errorf("failed to record execution attempt: %w", err)
	}
	return nil
}

// GetExecutionHistory returns all attempts for a work item, oldest first.
func (s *PostgresStorage) GetExecutionHistory(ctx context.Context, workID string) ([]*types.ExecutionAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, work_id, instance_id, agent_role, final_state, summary, error, started_at, ended_at
		FROM execution_history
		WHERE work_id = $1
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
