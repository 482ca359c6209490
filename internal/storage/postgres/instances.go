package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/curateops/curator/internal/types"
)

// RegisterInstance registers a worker instance. Upsert on instance_id
// so a restart with the same ID revives the old row instead of
// colliding with it.
func (s *PostgresStorage) RegisterInstance(ctx context.Context, inst *types.WorkerInstance) error {
	if err := inst.Validate(); err != nil {
		return fmt.Errorf("invalid worker instance: %w", err)
	}
	roles := inst.Roles
	if roles == nil {
		roles = []types.AgentRole{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO worker_instances (instance_id, hostname, pid, roles, version, status, started_at, last_heartbeat, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (instance_id) DO UPDATE SET
			hostname = EXCLUDED.hostname,
			pid = EXCLUDED.pid,
			roles = EXCLUDED.roles,
			version = EXCLUDED.version,
			status = EXCLUDED.status,
			last_heartbeat = EXCLUDED.last_heartbeat,
			stopped_at = NULL,
			metadata = EXCLUDED.metadata
	`, inst.InstanceID, inst.Hostname, inst.PID, roles, inst.Version,
		inst.Status, inst.StartedAt, inst.LastHeartbeat, inst.Metadata)
	if err != nil {
		return fmt.Errorf("failed to register worker instance: %w", err)
	}
	return nil
}

// UpdateHeartbeat stamps the instance as alive.
func (s *PostgresStorage) UpdateHeartbeat(ctx context.Context, instanceID string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE worker_instances SET last_heartbeat = NOW() WHERE instance_id = $1
	`, instanceID)
	if err != nil {
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("worker instance not found: %s", instanceID)
	}
	return nil
}

// GetActiveInstances returns running instances, most recently alive first.
func (s *PostgresStorage) GetActiveInstances(ctx context.Context) ([]*types.WorkerInstance, error) {
	rows, err := s.pool.Query(ctx, `
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

func scanInstance(rows pgx.Rows) (*types.WorkerInstance, error) {
	inst := &types.WorkerInstance{}
	var stoppedAt *time.Time
	if err := rows.Scan(&inst.InstanceID, &inst.Hostname, &inst.PID, &inst.Roles, &inst.Version,
		&inst.Status, &inst.StartedAt, &inst.LastHeartbeat, &stoppedAt, &inst.Metadata); err != nil {
		return nil, fmt.Errorf("failed to scan worker instance: %w", err)
	}
	inst.StoppedAt = stoppedAt
	return inst, nil
}

// CleanupStaleInstances finds running instances whose heartbeat is
// older than staleThreshold, releases their claims, reopens the work,
// and marks the instances crashed. The whole sweep is one transaction
// so a crash mid-cleanup cannot strand half-released claims.
func (s *PostgresStorage) CleanupStaleInstances(ctx context.Context, staleThreshold time.Duration) (int, error) {
	cutoff := time.Now().Add(-staleThreshold)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT instance_id FROM worker_instances
		WHERE status = 'running' AND last_heartbeat < $1
		FOR UPDATE SKIP LOCKED
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
		return 0, tx.Commit(ctx)
	}

	now := time.Now()
	for _, instanceID := range stale {
		claimRows, err := tx.Query(ctx, `
			SELECT work_id FROM work_execution_state WHERE instance_id = $1
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
			if _, err := tx.Exec(ctx, `
				DELETE FROM work_execution_state WHERE work_id = $1
			`, workID); err != nil {
				return 0, fmt.Errorf("failed to release claim on %s: %w", workID, err)
			}
			if _, err := tx.Exec(ctx, `
				UPDATE work_items SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4
			`, types.StatusOpen, now, workID, types.StatusInProgress); err != nil {
				return 0, fmt.Errorf("failed to reopen %s: %w", workID, err)
			}
			reason := fmt.Sprintf("released: instance %s stopped heartbeating", instanceID)
			if err := storeReleaseEventTx(ctx, tx, workID, instanceID, reason, now); err != nil {
				return 0, err
			}
		}

		if _, err := tx.Exec(ctx, `
			UPDATE worker_instances SET status = $1, stopped_at = $2 WHERE instance_id = $3
		`, types.InstanceCrashed, now, instanceID); err != nil {
			return 0, fmt.Errorf("failed to mark %s crashed: %w", instanceID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit stale cleanup: %w", err)
	}
	return len(stale), nil
}

// MarkInstanceStopped records a clean shutdown.
func (s *PostgresStorage) MarkInstanceStopped(ctx context.Context, instanceID string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE worker_instances SET status = $1, stopped_at = NOW() WHERE instance_id = $2
	`, types.InstanceStopped, instanceID)
	if err != nil {
		return fmt.Errorf("failed to mark instance stopped: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("worker instance not found: %s", instanceID)
	}
	return nil
}

// DeleteOldStoppedInstances prunes stopped/crashed instances older
// than olderThan, always keeping the newest keep records as history.
// Returns the number deleted. olderThan <= 0 disables pruning.
func (s *PostgresStorage) DeleteOldStoppedInstances(ctx context.Context, olderThan time.Duration, keep int) (int, error) {
	if olderThan <= 0 {
		return 0, nil
	}
	cutoff := time.Now().Add(-olderThan)

	ct, err := s.pool.Exec(ctx, `
		DELETE FROM worker_instances
		WHERE status IN ('stopped', 'crashed')
		  AND stopped_at IS NOT NULL
		  AND stopped_at < $1
		  AND instance_id NOT IN (
			SELECT instance_id FROM worker_instances
			WHERE status IN ('stopped', 'crashed')
			ORDER BY stopped_at DESC
			LIMIT $2
		  )
	`, cutoff, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old instances: %w", err)
	}
	return int(ct.RowsAffected()), nil
}
