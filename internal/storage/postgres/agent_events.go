package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/curateops/curator/internal/config"
	"github.com/curateops/curator/internal/events"
)

// StoreEvent appends one event to the activity feed.
func (s *PostgresStorage) StoreEvent(ctx context.Context, e *events.AgentEvent) error {
	data := e.Data
	if data == nil {
		data = map[string]any{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO agent_events (id, type, timestamp, work_id, worker_id, agent_role, severity, message, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.Type, e.Timestamp, e.WorkID, e.WorkerID, e.AgentRole, e.Severity, e.Message, data)
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// storeReleaseEventTx writes a work_released event inside an existing
// transaction, used by release and stale-cleanup paths.
func storeReleaseEventTx(ctx context.Context, tx pgx.Tx, workID, actor, reason string, now time.Time) error {
	e := events.New(events.EventTypeWorkReleased, workID, actor, "",
		events.SeverityWarning, reason, map[string]any{"reason": reason, "reopened": true})
	if _, err := tx.Exec(ctx, `
		INSERT INTO agent_events (id, type, timestamp, work_id, worker_id, agent_role, severity, message, data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, e.ID, e.Type, now, e.WorkID, e.WorkerID, e.AgentRole, e.Severity, e.Message, e.Data); err != nil {
		return fmt.Errorf("failed to store release event: %w", err)
	}
	return nil
}

// GetEvents returns events matching the filter, newest first.
func (s *PostgresStorage) GetEvents(ctx context.Context, filter events.Filter) ([]*events.AgentEvent, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, type, timestamp, work_id, worker_id, agent_role, severity, message, data
		FROM agent_events WHERE TRUE
	`)
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.WorkID != "" {
		sb.WriteString(" AND work_id = " + arg(filter.WorkID))
	}
	if filter.WorkerID != "" {
		sb.WriteString(" AND worker_id = " + arg(filter.WorkerID))
	}
	if filter.AgentRole != "" {
		sb.WriteString(" AND agent_role = " + arg(filter.AgentRole))
	}
	if len(filter.Types) > 0 {
		placeholders := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			placeholders[i] = arg(t)
		}
		sb.WriteString(" AND type IN (" + strings.Join(placeholders, ",") + ")")
	}
	if filter.Severity != "" {
		sb.WriteString(" AND severity = " + arg(filter.Severity))
	}
	if !filter.Since.IsZero() {
		sb.WriteString(" AND timestamp >= " + arg(filter.Since))
	}

	sb.WriteString(" ORDER BY timestamp DESC")
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	sb.WriteString(" LIMIT " + arg(limit))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var result []*events.AgentEvent
	for rows.Next() {
		e := &events.AgentEvent{}
		if err := rows.Scan(&e.ID, &e.Type, &e.Timestamp, &e.WorkID, &e.WorkerID,
			&e.AgentRole, &e.Severity, &e.Message, &e.Data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// CleanupEvents applies the retention policy: age-based deletion with
// a longer horizon for error/critical events, then per-work caps,
// then the global cap. Deletes run in batches to bound lock time.
// Returns total events deleted.
func (s *PostgresStorage) CleanupEvents(ctx context.Context, cfg config.EventRetentionConfig) (int, error) {
	if !cfg.CleanupEnabled {
		return 0, nil
	}
	total := 0

	regularCutoff := time.Now().AddDate(0, 0, -cfg.RetentionDays)
	criticalCutoff := time.Now().AddDate(0, 0, -cfg.RetentionCriticalDays)

	// Age-based: regular events first, then expired critical ones.
	n, err := s.deleteBatched(ctx, cfg.CleanupBatchSize, `
		DELETE FROM agent_events WHERE id IN (
			SELECT id FROM agent_events
			WHERE timestamp < $1 AND severity NOT IN ('error', 'critical')
			LIMIT $2
		)`, regularCutoff)
	if err != nil {
		return total, err
	}
	total += n

	n, err = s.deleteBatched(ctx, cfg.CleanupBatchSize, `
		DELETE FROM agent_events WHERE id IN (
			SELECT id FROM agent_events
			WHERE timestamp < $1 AND severity IN ('error', 'critical')
			LIMIT $2
		)`, criticalCutoff)
	if err != nil {
		return total, err
	}
	total += n

	// Per-work cap: trim the oldest non-critical events beyond the limit.
	if cfg.PerWorkLimitEvents > 0 {
		rows, err := s.pool.Query(ctx, `
			SELECT work_id FROM agent_events
			WHERE work_id != ''
			GROUP BY work_id
			HAVING COUNT(*) > $1
		`, cfg.PerWorkLimitEvents)
		if err != nil {
			return total, fmt.Errorf("failed to find over-limit work items: %w", err)
		}
		var overLimit []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return total, err
			}
			overLimit = append(overLimit, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return total, err
		}
		rows.Close()

		for _, workID := range overLimit {
			// Keep the newest rows up to the cap; older non-critical
			// rows past that offset go.
			ct, err := s.pool.Exec(ctx, `
				DELETE FROM agent_events WHERE id IN (
					SELECT id FROM agent_events
					WHERE work_id = $1 AND severity NOT IN ('error', 'critical')
					ORDER BY timestamp DESC
					OFFSET $2
				)
			`, workID, cfg.PerWorkLimitEvents)
			if err != nil {
				return total, fmt.Errorf("failed per-work cleanup for %s: %w", workID, err)
			}
			total += int(ct.RowsAffected())
		}
	}

	// Global cap.
	var count int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM agent_events`).Scan(&count); err != nil {
		return total, fmt.Errorf("failed to count events: %w", err)
	}
	if count > cfg.GlobalLimitEvents {
		excess := count - cfg.GlobalLimitEvents
		ct, err := s.pool.Exec(ctx, `
			DELETE FROM agent_events WHERE id IN (
				SELECT id FROM agent_events
				WHERE severity NOT IN ('error', 'critical')
				ORDER BY timestamp ASC
				LIMIT $1
			)
		`, excess)
		if err != nil {
			return total, fmt.Errorf("failed global cleanup: %w", err)
		}
		total += int(ct.RowsAffected())
	}

	return total, nil
}

// deleteBatched repeats a limited delete until it stops making
// progress, keeping each transaction short.
func (s *PostgresStorage) deleteBatched(ctx context.Context, batchSize int, query string, cutoff time.Time) (int, error) {
	total := 0
	for {
		ct, err := s.pool.Exec(ctx, query, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("failed batched delete: %w", err)
		}
		rows := int(ct.RowsAffected())
		total += rows
		if rows < batchSize {
			return total, nil
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
	}
}
