package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/curateops/curator/internal/types"
)

// ClaimWork atomically claims a work item for a worker instance.
// Contention is expected when multiple workers poll the same queue, so
// callers should treat types.ErrAlreadyClaimed and
// types.ErrNotClaimable as a lost race, not a failure. The whole claim
// is one transaction wrapped in a busy-retry for lock contention.
func (s *SQLiteStorage) ClaimWork(ctx context.Context, workID, instanceID string) error {
	return busyRetry(ctx, func() error {
		return s.claimWorkAttempt(ctx, workID, instanceID)
	})
}

func (s *SQLiteStorage) claimWorkAttempt(ctx context.Context, workID, instanceID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Reject if another instance holds an active claim. A row in a
	// terminal state does not block; the upsert below recycles it.
	var existingInstance string
	var existingState types.ExecutionState
	err = tx.QueryRowContext(ctx, `
		SELECT instance_id, state FROM work_execution_state WHERE work_id = ?
	`, workID).Scan(&existingInstance, &existingState)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to check execution state: %w", err)
	}
	if err == nil && existingState.IsActive() {
		return fmt.Errorf("work %s held by %s in state %s: %w",
			workID, existingInstance, existingState, types.ErrAlreadyClaimed)
	}

	// Verify the instance is registered and running.
	var instanceStatus types.InstanceStatus
	err = tx.QueryRowContext(ctx, `
		SELECT status FROM worker_instances WHERE instance_id = ?
	`, instanceID).Scan(&instanceStatus)
	if err == sql.ErrNoRows {
		return fmt.Errorf("worker instance not registered: %s", instanceID)
	}
	if err != nil {
		return fmt.Errorf("failed to check worker instance: %w", err)
	}
	if instanceStatus != types.InstanceRunning {
		return fmt.Errorf("worker instance %s is %s, cannot claim", instanceID, instanceStatus)
	}

	// Upsert the claim row. The primary key on work_id makes a
	// concurrent insert race lose deterministically.
	now := time.Now()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO work_execution_state (work_id, instance_id, state, attempt_count, checkpoint, claimed_at, updated_at)
		VALUES (?, ?, ?, 1, '{}', ?, ?)
		ON CONFLICT(work_id) DO UPDATE SET
			instance_id = excluded.instance_id,
			state = excluded.state,
			attempt_count = work_execution_state.attempt_count + 1,
			last_error = '',
			claimed_at = excluded.claimed_at,
			updated_at = excluded.updated_at
	`, workID, instanceID, types.ExecutionClaimed, now, now)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("work %s: %w", workID, types.ErrAlreadyClaimed)
		}
		return fmt.Errorf("failed to claim work: %w", err)
	}

	// Guarded status flip: rows affected is the arbiter. If another
	// transaction moved the item out of open first, the claim loses.
	res, err := tx.ExecContext(ctx, `
		UPDATE work_items SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`, types.StatusInProgress, now, workID, types.StatusOpen)
	if err != nil {
		return fmt.Errorf("failed to update work status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM work_items WHERE id = ?`, workID).Scan(&status)
		if err == sql.ErrNoRows {
			return fmt.Errorf("work item %s: %w", workID, types.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to check work status: %w", err)
		}
		return fmt.Errorf("work %s is %s: %w", workID, status, types.ErrNotClaimable)
	}

	return tx.Commit()
}

// GetExecutionState returns the claim row for a work item, or nil if
// none exists.
func (s *SQLiteStorage) GetExecutionState(ctx context.Context, workID string) (*types.WorkExecutionState, error) {
	st := &types.WorkExecutionState{}
	var lastIntervention sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT work_id, instance_id, state, attempt_count, checkpoint, last_error, intervention_count, last_intervention_at, claimed_at, updated_at
		FROM work_execution_state WHERE work_id = ?
	`, workID).Scan(&st.WorkID, &st.InstanceID, &st.State, &st.AttemptCount, &st.Checkpoint,
		&st.LastError, &st.Interventions, &lastIntervention, &st.ClaimedAt, &st.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution state: %w", err)
	}
	return st, nil
}

// UpdateExecutionState moves a claim through the state machine. The
// WHERE clause re-checks the current state so a concurrent writer
// cannot slip a transition in between read and write. A same-state
// update succeeds without touching the row.
func (s *SQLiteStorage) UpdateExecutionState(ctx context.Context, workID string, newState types.ExecutionState) error {
	if !newState.IsValid() {
		return fmt.Errorf("invalid execution state: %q", newState)
	}

	current, err := s.GetExecutionState(ctx, workID)
	if err != nil {
		return fmt.Errorf("failed to get current state: %w", err)
	}
	if current == nil {
		return fmt.Errorf("work %s has no execution state: %w", workID, types.ErrNotFound)
	}
	if current.State == newState {
		return nil
	}
	if !current.State.CanTransitionTo(newState) {
		return &types.TransitionError{From: current.State, To: newState}
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE work_execution_state
		SET state = ?, updated_at = ?
		WHERE work_id = ? AND state = ?
	`, newState, time.Now(), workID, current.State)
	if err != nil {
		return fmt.Errorf("failed to update execution state: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		check, err := s.GetExecutionState(ctx, workID)
		if err != nil {
			return fmt.Errorf("failed to verify execution state: %w", err)
		}
		if check == nil {
			return fmt.Errorf("execution state disappeared for work %s", workID)
		}
		return fmt.Errorf("concurrent state modification on %s: expected %s, found %s",
			workID, current.State, check.State)
	}
	return nil
}

// SaveCheckpoint stores resumable progress for a claimed work item.
func (s *SQLiteStorage) SaveCheckpoint(ctx context.Context, workID string, checkpoint any) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE work_execution_state SET checkpoint = ?, updated_at = ? WHERE work_id = ?
	`, string(data), time.Now(), workID)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("no execution state for work %s: %w", workID, types.ErrNotFound)
	}
	return nil
}

// GetCheckpoint returns the checkpoint JSON for a claimed work item.
func (s *SQLiteStorage) GetCheckpoint(ctx context.Context, workID string) (string, error) {
	var checkpoint string
	err := s.db.QueryRowContext(ctx, `
		SELECT checkpoint FROM work_execution_state WHERE work_id = ?
	`, workID).Scan(&checkpoint)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("no execution state for work %s: %w", workID, types.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return checkpoint, nil
}

// ListActiveExecutions returns every live claim, oldest update first.
func (s *SQLiteStorage) ListActiveExecutions(ctx context.Context) ([]*types.WorkExecutionState, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT work_id, instance_id, state, attempt_count, checkpoint, last_error, intervention_count, last_intervention_at, claimed_at, updated_at
		FROM work_execution_state
		WHERE state IN (?, ?, ?, ?, ?)
		ORDER BY updated_at ASC
	`, types.ExecutionClaimed, types.ExecutionAssessing, types.ExecutionExecuting,
		types.ExecutionReviewing, types.ExecutionCommitting)
	if err != nil {
		return nil, fmt.Errorf("failed to list active executions: %w", err)
	}
	defer rows.Close()

	var states []*types.WorkExecutionState
	for rows.Next() {
		st := &types.WorkExecutionState{}
		var lastIntervention sql.NullTime
		if err := rows.Scan(&st.WorkID, &st.InstanceID, &st.State, &st.AttemptCount, &st.Checkpoint,
			&st.LastError, &st.Interventions, &lastIntervention, &st.ClaimedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution state: %w", err)
		}
		states = append(states, st)
	}
	return states, rows.Err()
}

// ReleaseWork drops the claim row. Releasing an unclaimed item is a
// no-op so retries and cleanup races stay harmless.
func (s *SQLiteStorage) ReleaseWork(ctx context.Context, workID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM work_execution_state WHERE work_id = ?`, workID)
	if err != nil {
		return fmt.Errorf("failed to release work: %w", err)
	}
	return nil
}

// ReleaseWorkAndReopen atomically drops the claim and flips the mirror
// status back to open so another worker can retry. Used on execution
// failure and by the stale-instance cleanup.
func (s *SQLiteStorage) ReleaseWorkAndReopen(ctx context.Context, workID, actor, reason string) error {
	return busyRetry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		res, err := tx.ExecContext(ctx, `DELETE FROM work_execution_state WHERE work_id = ?`, workID)
		if err != nil {
			return fmt.Errorf("failed to release work: %w", err)
		}
		if rows, err := res.RowsAffected(); err == nil && rows == 0 {
			// State may have been cleaned up already; still reopen.
			fmt.Fprintf(os.Stderr, "warning: no execution state found for %s during release\n", workID)
		}

		now := time.Now()
		if _, err := tx.ExecContext(ctx, `
			UPDATE work_items SET status = ?, updated_at = ? WHERE id = ?
		`, types.StatusOpen, now, workID); err != nil {
			return fmt.Errorf("failed to reopen work item: %w", err)
		}

		if err := storeReleaseEventTx(ctx, tx, workID, actor, reason, now); err != nil {
			return err
		}

		return tx.Commit()
	})
}

// RecordIntervention increments the watchdog intervention counter for
// a work item and stamps the time. Returns the new count.
func (s *SQLiteStorage) RecordIntervention(ctx context.Context, workID string) (int, error) {
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE work_execution_state
		SET intervention_count = intervention_count + 1, last_intervention_at = ?, updated_at = ?
		WHERE work_id = ?
	`, now, now, workID)
	if err != nil {
		return 0, fmt.Errorf("failed to record intervention: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return 0, fmt.Errorf("no execution state for work %s: %w", workID, types.ErrNotFound)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `
		SELECT intervention_count FROM work_execution_state WHERE work_id = ?
	`, workID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to read intervention count: %w", err)
	}
	return count, nil
}

// GetLastIntervention returns the intervention count and timestamp for
// a work item. A zero time means no intervention has happened.
func (s *SQLiteStorage) GetLastIntervention(ctx context.Context, workID string) (int, time.Time, error) {
	var count int
	var last sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT intervention_count, last_intervention_at FROM work_execution_state WHERE work_id = ?
	`, workID).Scan(&count, &last)
	if err == sql.ErrNoRows {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to get intervention info: %w", err)
	}
	if !last.Valid {
		return count, time.Time{}, nil
	}
	return count, last.Time, nil
}
