package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/curateops/curator/internal/types"
)

// UpsertWorkItem inserts or refreshes the local mirror row for a
// tracker issue. Status propagates on conflict so a human closing or
// blocking an issue on the tracker reaches the mirror, with one guard:
// an open incoming status never overwrites a live in_progress row —
// the claim protocol owns that transition.
func (s *SQLiteStorage) UpsertWorkItem(ctx context.Context, w *types.WorkItem) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid work item: %w", err)
	}
	labels, err := json.Marshal(w.Labels)
	if err != nil {
		return fmt.Errorf("failed to marshal labels: %w", err)
	}
	now := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO work_items (id, project_id, iid, title, description, status, priority, role, labels, assignee, web_url, created_at, updated_at, closed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = CASE
				WHEN excluded.status = 'open' AND work_items.status = 'in_progress'
					THEN work_items.status
				ELSE excluded.status
			END,
			title = excluded.title,
			description = excluded.description,
			priority = excluded.priority,
			role = excluded.role,
			labels = excluded.labels,
			assignee = excluded.assignee,
			web_url = excluded.web_url,
			updated_at = excluded.updated_at,
			closed_at = excluded.closed_at
	`, w.ID, w.ProjectID, w.IID, w.Title, w.Description, w.Status, w.Priority,
		w.Role, string(labels), w.Assignee, w.WebURL, w.CreatedAt, now, w.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert work item: %w", err)
	}
	return nil
}

// GetWorkItem fetches a mirror row by ID.
func (s *SQLiteStorage) GetWorkItem(ctx context.Context, id string) (*types.WorkItem, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, iid, title, description, status, priority, role, labels, assignee, web_url, created_at, updated_at, closed_at
		FROM work_items WHERE id = ?
	`, id)
	w, err := scanWorkItem(row)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work item: %w", err)
	}
	return w, nil
}

// UpdateWorkStatus sets the mirror status for a work item.
func (s *SQLiteStorage) UpdateWorkStatus(ctx context.Context, id string, status types.WorkStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid work status: %q", status)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE work_items SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update work status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return types.ErrNotFound
	}
	return nil
}

// GetReadyWork returns open, unclaimed work items matching the filter.
// A left join against work_execution_state excludes items with a live
// claim even when their mirror status lags.
func (s *SQLiteStorage) GetReadyWork(ctx context.Context, filter types.WorkFilter) ([]*types.WorkItem, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT w.id, w.project_id, w.iid, w.title, w.description, w.status, w.priority, w.role, w.labels, w.assignee, w.web_url, w.created_at, w.updated_at, w.closed_at
		FROM work_items w
		LEFT JOIN work_execution_state es ON es.work_id = w.id
			AND es.state IN ('claimed', 'assessing', 'executing', 'reviewing', 'committing')
		WHERE w.status = 'open' AND es.work_id IS NULL
	`)
	var args []any

	if len(filter.Roles) > 0 {
		placeholders := strings.Repeat("?,", len(filter.Roles))
		sb.WriteString(" AND w.role IN (" + placeholders[:len(placeholders)-1] + ")")
		for _, r := range filter.Roles {
			args = append(args, r)
		}
	}
	if filter.MaxPriority >= 0 {
		sb.WriteString(" AND w.priority <= ?")
		args = append(args, filter.MaxPriority)
	}
	if filter.ProjectID != "" {
		sb.WriteString(" AND w.project_id = ?")
		args = append(args, filter.ProjectID)
	}

	switch filter.SortPolicy {
	case types.SortPolicyOldest:
		sb.WriteString(" ORDER BY w.created_at")
	default:
		sb.WriteString(" ORDER BY w.priority, w.created_at")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	sb.WriteString(" LIMIT ?")
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query ready work: %w", err)
	}
	defer rows.Close()

	var items []*types.WorkItem
	for rows.Next() {
		w, err := scanWorkItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan work item: %w", err)
		}
		if len(filter.Labels) > 0 && !hasAnyLabel(w.Labels, filter.Labels) {
			continue
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

// hasAnyLabel reports whether item labels intersect the wanted set.
func hasAnyLabel(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkItem(row rowScanner) (*types.WorkItem, error) {
	w := &types.WorkItem{}
	var labels string
	var closedAt sql.NullTime
	err := row.Scan(&w.ID, &w.ProjectID, &w.IID, &w.Title, &w.Description, &w.Status,
		&w.Priority, &w.Role, &labels, &w.Assignee, &w.WebURL, &w.CreatedAt, &w.UpdatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	if labels != "" {
		if err := json.Unmarshal([]byte(labels), &w.Labels); err != nil {
			return nil, fmt.Errorf("failed to unmarshal labels for %s: %w", w.ID, err)
		}
	}
	if closedAt.Valid {
		w.ClosedAt = &closedAt.Time
	}
	return w, nil
}
