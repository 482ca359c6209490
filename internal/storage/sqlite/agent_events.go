package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/curateops/curator/internal/config"
	"github.com/curateops/curator/internal/events"
)

// StoreEvent appends one event to the activity feed.
func (s *SQLiteStorage) StoreEvent(ctx context.Context, e *events.AgentEvent) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_events (id, type, timestamp, work_id, worker_id, agent_role, severity, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Type, e.Timestamp, e.WorkID, e.WorkerID, e.AgentRole, e.Severity, e.Message, string(data))
	if err != nil {
		return fmt.Errorf("failed to store event: %w", err)
	}
	return nil
}

// storeReleaseEventTx writes a work_released event inside an existing
// transaction, used by release and stale-cleanup paths.
func storeReleaseEventTx(ctx context.Context, tx *sql.Tx, workID, actor, reason string, now time.Time) error {
	e := events.New(events.EventTypeWorkReleased, workID, actor, "",
		events.SeverityWarning, reason, map[string]any{"reason": reason, "reopened": true})
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal release event: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agent_events (id, type, timestamp, work_id, worker_id, agent_role, severity, message, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Type, now, e.WorkID, e.WorkerID, e.AgentRole, e.Severity, e.Message, string(data)); err != nil {
		return fmt.Errorf("failed to store release event: %w", err)
	}
	return nil
}

// GetEvents returns events matching the filter, newest first.
func (s *SQLiteStorage) GetEvents(ctx context.Context, filter events.Filter) ([]*events.AgentEvent, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT id, type, timestamp, work_id, worker_id, agent_role, severity, message, data
		FROM agent_events WHERE 1=1
	`)
	var args []any

	if filter.WorkID != "" {
		sb.WriteString(" AND work_id = ?")
		args = append(args, filter.WorkID)
	}
	if filter.WorkerID != "" {
		sb.WriteString(" AND worker_id = ?")
		args = append(args, filter.WorkerID)
	}
	if filter.AgentRole != "" {
		sb.WriteString(" AND agent_role = ?")
		args = append(args, filter.AgentRole)
	}
	if len(filter.Types) > 0 {
		placeholders := strings.Repeat("?,", len(filter.Types))
		sb.WriteString(" AND type IN (" + placeholders[:len(placeholders)-1] + ")")
		for _, t := range filter.Types {
			args = append(args, t)
		}
	}
	if filter.Severity != "" {
		sb.WriteString(" AND severity = ?")
		args = append(args, filter.Severity)
	}
	if !filter.Since.IsZero() {
		sb.WriteString(" AND timestamp >= ?")
		args = append(args, filter.Since)
	}

	sb.WriteString(" ORDER BY timestamp DESC")
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	sb.WriteString(" LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var result []*events.AgentEvent
	for rows.Next() {
		e := &events.AgentEvent{}
		var data string
		if err := rows.Scan(&e.ID, &e.Type, &e.Timestamp, &e.WorkID, &e.WorkerID,
			&e.AgentRole, &e.Severity, &e.Message, &data); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		if data != "" {
			if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// CleanupEvents applies the retention policy: age-based deletion with
// a longer horizon for error/critical events, then per-work caps,
// then the global cap. Deletes run in batches to bound lock time.
// Returns total events deleted.
func (s *SQLiteStorage) CleanupEvents(ctx context.Context, cfg config.EventRetentionConfig) (int, error) {
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
			WHERE timestamp < ? AND severity NOT IN ('error', 'critical')
			LIMIT ?
		)`, regularCutoff)
	if err != nil {
		return total, err
	}
	total += n

	n, err = s.deleteBatched(ctx, cfg.CleanupBatchSize, `
		DELETE FROM agent_events WHERE id IN (
			SELECT id FROM agent_events
			WHERE timestamp < ? AND severity IN ('error', 'critical')
			LIMIT ?
		)`, criticalCutoff)
	if err != nil {
		return total, err
	}
	total += n

	// Per-work cap: trim the oldest non-critical events beyond the limit.
	if cfg.PerWorkLimitEvents > 0 {
		rows, err := s.db.QueryContext(ctx, `
			SELECT work_id FROM agent_events
			WHERE work_id != ''
			GROUP BY work_id
			HAVING COUNT(*) > ?
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
			// Keep the newest PerWorkLimitEvents rows; everything past
			// that offset (non-critical only) goes.
			res, err := s.db.ExecContext(ctx, `
				DELETE FROM agent_events WHERE id IN (
					SELECT id FROM agent_events
					WHERE work_id = ? AND severity NOT IN ('error', 'critical')
					ORDER BY timestamp DESC
					LIMIT -1 OFFSET ?
				)
			`, workID, cfg.PerWorkLimitEvents)
			if err != nil {
				return total, fmt.Errorf("failed per-work cleanup for %s: %w", workID, err)
			}
			if rows, err := res.RowsAffected(); err == nil {
				total += int(rows)
			}
		}
	}

	// Global cap.
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM agent_events`).Scan(&count); err != nil {
		return total, fmt.Errorf("failed to count events: %w", err)
	}
	if count > cfg.GlobalLimitEvents {
		excess := count - cfg.GlobalLimitEvents
		res, err := s.db.ExecContext(ctx, `
			DELETE FROM agent_events WHERE id IN (
				SELECT id FROM agent_events
				WHERE severity NOT IN ('error', 'critical')
				ORDER BY timestamp ASC
				LIMIT ?
			)
		`, excess)
		if err != nil {
			return total, fmt.Errorf("failed global cleanup: %w", err)
		}
		if rows, err := res.RowsAffected(); err == nil {
			total += int(rows)
		}
	}

	return total, nil
}

// deleteBatched repeats a limited delete until it stops making
// progress, keeping each transaction short.
func (s *SQLiteStorage) deleteBatched(ctx context.Context, batchSize int, query string, cutoff time.Time) (int, error) {
	total := 0
	for {
		res, err := s.db.ExecContext(ctx, query, cutoff, batchSize)
		if err != nil {
			return total, fmt.Errorf("failed batched delete: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("failed to get rows affected: %w", err)
		}
		total += int(rows)
		if int(rows) < batchSize {
			return total, nil
		}
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
	}
}
