package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/curateops/curator/internal/types"
)

// ClaimWork atomically claims a work item for a worker instance.
// Contention is expected when multiple workers poll the same queue, so
// callers should treat types.ErrAlreadyClaimed and
// types.ErrNotClaimable as a lost race, not a failure. The whole claim
// is one transaction; the work_items row lock serializes racing
// claimers.
func (s *PostgresStorage) ClaimWork(ctx context.Context, workID, instanceID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Lock the mirror row first so concurrent claims queue up here
	// instead of racing the checks below.
	var status types.WorkStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM work_items WHERE id = $1 FOR UPDATE
	`, workID).Scan(&status)
	if noRows(err) {
		return fmt.Errorf("work item %s: %w", workID, types.ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to lock work item: %w", err)
	}
	if status != types.StatusOpen {
		return fmt.Errorf("work %s is %s: %w", workID, status, types.ErrNotClaimable)
	}

	// Reject if another instance holds an active claim. A row in a
	// terminal state does not block; the upsert below recycles it.
	var existingInstance string
	var existingState types.ExecutionState
	err = tx.QueryRow(ctx, `
		SELECT instance_id, state FROM work_execution_state WHERE work_id = $1
	`, workID).Scan(&existingInstance, &existingState)
	if err != nil && !noRows(err) {
		return fmt.Errorf("failed to check execution state: %w", err)
	}
	if err == nil && existingState.IsActive() {
		return fmt.Errorf("work %s held by %s in state %s: %w",
			workID, existingInstance, existingState, types.ErrAlreadyClaimed)
	}

	// Verify the instance is registered and running.
	var instanceStatus types.InstanceStatus
	err = tx.QueryRow(ctx, `
		SELECT status FROM worker_instances WHERE instance_id = $1
	`, instanceID).Scan(&instanceStatus)
	if noRows(err) {
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
	_, err = tx.Exec(ctx, `
		INSERT INTO work_execution_state (work_id, instance_id, state, attempt_count, checkpoint, claimed_at, updated_at)
		VALUES ($1, $2, $3, 1, '{}', $4, $4)
		ON CONFLICT (work_id) DO UPDATE SET
			instance_id = EXCLUDED.instance_id,
			state = EXCLUDED.state,
			attempt_count = work_execution_state.attempt_count + 1,
			last_error = '',
			claimed_at = EXCLUDED.claimed_at,
			updated_at = EXCLUDED.updated_at
	`, workID, instanceID, types.ExecutionClaimed, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("work %s: %w", workID, types.ErrAlreadyClaimed)
		}
		return fmt.Errorf("failed to claim work: %w", err)
	}

	// Guarded status flip: rows affected is the arbiter even with the
	// row lock held, same contract as the other backend.
	ct, err := tx.Exec(ctx, `
		UPDATE work_items SET status = $1, updated_at = $2
		WHERE id = $3 AND status = $4
	`, types.StatusInProgress, now, workID, types.StatusOpen)
	if err != nil {
		return fmt.Errorf("failed to update work status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("work %s is no longer open: %w", workID, types.ErrNotClaimable)
	}

	return tx.Commit(ctx)
}

// GetExecutionState returns the claim row for a work item, or nil if
// none exists.
func (s *PostgresStorage) GetExecutionState(ctx context.Context, workID string) (*types.WorkExecutionState, error) {
	st := &types.WorkExecutionState{}
	var checkpoint []byte
	var lastIntervention *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT work_id, instance_id, state, attempt_count, checkpoint, last_error, intervention_count, last_intervention_at, claimed_at, updated_at
		FROM work_execution_state WHERE work_id = $1
	`, workID).Scan(&st.WorkID, &st.InstanceID, &st.State, &st.AttemptCount, &checkpoint,
		&st.LastError, &st.Interventions, &lastIntervention, &st.ClaimedAt, &st.UpdatedAt)
	if noRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution state: %w", err)
	}
	st.Checkpoint = string(checkpoint)
	return st, nil
}

// UpdateExecutionState moves a claim through the state machine. The
// WHERE clause re-checks the current state so a concurrent writer
// cannot slip a transition in between read and write. A same-state
// update succeeds without touching the row.
func (s *PostgresStorage) UpdateExecutionState(ctx context.Context, workID string, newState types.ExecutionState) error {
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

	ct, err := s.pool.Exec(ctx, `
		UPDATE work_execution_state
		SET state = $1, updated_at = NOW()
		WHERE work_id = $2 AND state = $3
	`, newState, workID, current.State)
	if err != nil {
		return fmt.Errorf("failed to update execution state: %w", err)
	}
	if ct.RowsAffected() == 0 {
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
func (s *PostgresStorage) SaveCheckpoint(ctx context.Context, workID string, checkpoint any) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE work_execution_state SET checkpoint = $1, updated_at = NOW() WHERE work_id = $2
	`, data, workID)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("no execution state for work %s: %w", workID, types.ErrNotFound)
	}
	return nil
}

// GetCheckpoint returns the checkpoint JSON for a claimed work item.
func (s *PostgresStorage) GetCheckpoint(ctx context.Context, workID string) (string, error) {
	var checkpoint []byte
	err := s.pool.QueryRow(ctx, `
		SELECT checkpoint FROM work_execution_state WHERE work_id = $1
	`, workID).Scan(&checkpoint)
	if noRows(err) {
		return "", fmt.Errorf("no execution state for work %s: %w", workID, types.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return string(checkpoint), nil
}

// ReleaseWork drops the claim row. Releasing an unclaimed item is a
// no-op so retries and cleanup races stay harmless.
// ListActiveExecutions returns every live claim, oldest update first.
func (s *PostgresStorage) ListActiveExecutions(ctx context.Context) ([]*types.WorkExecutionState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT work_id, instance_id, state, attempt_count, checkpoint, last_error, intervention_count, last_intervention_at, claimed_at, updated_at
		FROM work_execution_state
		WHERE state IN ($1, $2, $3, $4, $5)
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
		var checkpoint []byte
		var lastIntervention *time.Time
		if err := rows.Scan(&st.WorkID, &st.InstanceID, &st.State, &st.AttemptCount, &checkpoint,
			&st.LastError, &st.Interventions, &lastIntervention, &st.ClaimedAt, &st.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan execution state: %w", err)
		}
		st.Checkpoint = string(checkpoint)
		states = append(states, st)
	}
	return states, rows.Err()
}

func (s *PostgresStorage) ReleaseWork(ctx context.Context, workID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM work_execution_state WHERE work_id = $1`, workID)
	if err != nil {
		return fmt.Errorf("failed to release work: %w", err)
	}
	return nil
}

// ReleaseWorkAndReopen atomically drops the claim and flips the mirror
// status back to open so another worker can retry. Used on execution
// failure and by the stale-instance cleanup.
func (s *PostgresStorage) ReleaseWorkAndReopen(ctx context.Context, workID, actor, reason string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM work_execution_state WHERE work_id = $1`, workID); err != nil {
		return fmt.Errorf("failed to release work: %w", err)
	}

	now := time.Now()
	if _, err := tx.Exec(ctx, `
		UPDATE work_items SET status = $1, updated_at = $2 WHERE id = $3
	`, types.StatusOpen, now, workID); err != nil {
		return fmt.Errorf("failed to reopen work item: %w", err)
	}

	if err := storeReleaseEventTx(ctx, tx, workID, actor, reason, now); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RecordIntervention increments the watchdog intervention counter for
// a work item and stamps the time. Returns the new count.
func (s *PostgresStorage) RecordIntervention(ctx context.Context, workID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		UPDATE work_execution_state
		SET intervention_count = intervention_count + 1, last_intervention_at = NOW(), updated_at = NOW()
		WHERE work_id = $1
		RETURNING intervention_count
	`, workID).Scan(&count)
	if noRows(err) {
		return 0, fmt.Errorf("no execution state for work %s: %w", workID, types.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to record intervention: %w", err)
	}
	return count, nil
}

// GetLastIntervention returns the intervention count and timestamp for
// a work item. A zero time means no intervention has happened.
func (s *PostgresStorage) GetLastIntervention(ctx context.Context, workID string) (int, time.Time, error) {
	var count int
	var last *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT intervention_count, last_intervention_at FROM work_execution_state WHERE work_id = $1
	`, workID).Scan(&count, &last)
	if noRows(err) {
		return 0, time.Time{}, nil
	}
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to get intervention info: %w", err)
	}
	if last == nil {
		return count, time.Time{}, nil
	}
	return count, *last, nil
}
