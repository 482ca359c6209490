package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/curateops/curator/internal/types"
)

// RegisterInstance registers a worker instance. Uses an upsert rather
// than INSERT OR REPLACE: REPLACE deletes the old row first, which
// would cascade into anything referencing the instance.
func (s *SQLiteStorage) RegisterInstance(ctx context.Context, inst *types.WorkerInstance) error {
	if err := inst.Validate(); err != nil {
		return fmt.Errorf("invalid worker instance: %w", err)
	}
	roles, err := json.Marshal(inst.Roles)
	if err != nil {
		return fmt.Errorf("failed to marshal roles: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO worker_instances (instance_id, hostname, pid, roles, version, status, started_at, last_heartbeat, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(instance_id) DO UPDATE SET
			hostname = excluded.hostname,
			pid = excluded.pid,
			roles = excluded.roles,
			version = excluded.version,
			status = excluded.status,
			last_heartbeat = excluded.last_heartbeat,
			stopped_at = NULL,
			metadata = excluded.metadata
	`, inst.InstanceID, inst.Hostname, inst.PID, string(roles), inst.Version,
		inst.Status, inst.StartedAt, inst.LastHeartbeat, inst.Metadata)
	if err != nil {
		return fmt.Errorf("failed to register worker instance: %w", err)
	}
	return nil
}

// UpdateHeartbeat stamps the instance as alive.
func (s *SQLiteStorage) UpdateHeartbeat(ctx context.Context, instanceID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE worker_instances SET last_heartbeat = ? WHERE instance_id = ?
	`, time.Now(), instanceID)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("worker instance not found: %s", instanceID)
	}
	return nil
}

// GetActiveInstances returns running instances, most recently alive first.
func (s *SQLiteStorage) GetActiveInstances(ctx context.Context) ([]*types.WorkerInstance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT instance_id, hostname, pid, roles, version, status, started_at, last_heartbeat, stopped_at, metadata
		FROM worker_instances
		WHERE status = 'running'
		ORDER BY last_heartbeat DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active instances: %w", err)
	}
	defer rows.Close()

	var instances []*types.WorkerInstance
	for rows.Next() {
		inst, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func scanInstance(rows *sql.Rows) (*types.WorkerInstance, error) {
	inst := &types.WorkerInstance{}
	var roles string
	var stoppedAt sql.NullTime
	if err := rows.Scan(&inst.InstanceID, &inst.Hostname, &inst.PID, &roles, &inst.Version,
		&inst.Status, &inst.StartedAt, &inst.LastHeartbeat, &stoppedAt, &inst.Metadata); err != nil {
		return nil, fmt.Errorf("failed to scan worker instance: %w", err)
	}
	if roles != "" {
		if err := json.Unmarshal([]byte(roles), &inst.Roles); err != nil {
			return nil, fmt.Errorf("failed to unmarshal roles for %s: %w", inst.InstanceID, err)
		}
	}
	if stoppedAt.Valid {
		inst.StoppedAt = &stoppedAt.Time
	}
	return inst, nil
}

// CleanupStaleInstances finds running instances whose heartbeat is
// older than staleThreshold, releases their claims, reopens the work,
// and marks the instances crashed. The whole sweep is one transaction
// so a crash mid-cleanup cannot strand half-released claims.
func (s *SQLiteStorage) CleanupStaleInstances(ctx context.Context, staleThreshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-staleThreshold)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT instance_id FROM worker_instances
		WHERE status = 'running' AND last_heartbeat < ?
	`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to find stale instances: %w", err)
	}
	var stale []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan stale instance: %w", err)
		}
		stale = append(stale, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	if len(stale) == 0 {
		return 0, tx.Commit()
	}

	now := time.Now()
	for _, instanceID := range stale {
		// Find claims held by the dead instance.
		claimRows, err := tx.QueryContext(ctx, `
			SELECT work_id FROM work_execution_state WHERE instance_id = ?
		`, instanceID)
		if err != nil {
			return 0, fmt.Errorf("failed to find claims for %s: %w", instanceID, err)
		}
		var claimed []string
		for claimRows.Next() {
			var workID string
			if err := claimRows.Scan(&workID); err != nil {
				claimRows.Close()
				return 0, fmt.Errorf("failed to scan claim: %w", err)
			}
			claimed = append(claimed, workID)
		}
		if err := claimRows.Err(); err != nil {
			claimRows.Close()
			return 0, err
		}
		claimRows.Close()

		for _, workID := range claimed {
			if _, err := tx.ExecContext(ctx, `
				DELETE FROM work_execution_state WHERE work_id = ?
			`, workID); err != nil {
				return 0, fmt.Errorf("failed to release claim on %s: %w", workID, err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE work_items SET status = ?, updated_at = ? WHERE id = ? AND status = ?
			`, types.StatusOpen, now, workID, types.StatusInProgress); err != nil {
				return 0, fmt.Errorf("failed to reopen %s: %w", workID, err)
			}
			reason := fmt.Sprintf("released: instance %s stopped heartbeating", instanceID)
			if err := storeReleaseEventTx(ctx, tx, workID, instanceID, reason, now); err != nil {
				return 0, err
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE worker_instances SET status = ?, stopped_at = ? WHERE instance_id = ?
		`, types.InstanceCrashed, now, instanceID); err != nil {
			return 0, fmt.Errorf("failed to mark %s crashed: %w", instanceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit stale cleanup: %w", err)
	}
	return len(stale), nil
}

// MarkInstanceStopped records a clean shutdown.
func (s *SQLiteStorage) MarkInstanceStopped(ctx context.Context, instanceID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE worker_instances SET status = ?, stopped_at = ? WHERE instance_id = ?
	`, types.InstanceStopped, time.Now(), instanceID)
	if err != nil {
		return fmt.Errorf("failed to mark instance stopped: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("worker instance not found: %s", instanceID)
	}
	return nil
}

// DeleteOldStoppedInstances prunes stopped/crashed instances older
// than olderThan, always keeping the newest keep records as history.
// Returns the number deleted. olderThan <= 0 disables pruning.
func (s *SQLiteStorage) DeleteOldStoppedInstances(ctx context.Context, olderThan time.Duration, keep int) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM worker_instances
		WHERE status IN ('stopped', 'crashed')
		  AND stopped_at IS NOT NULL
		  AND stopped_at < ?
		  AND instance_id NOT IN (
			SELECT instance_id FROM worker_instances
			WHERE status IN ('stopped', 'crashed')
			ORDER BY stopped_at DESC
			LIMIT ?
		  )
	`, cutoff, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old instances: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(rows), nil
}
