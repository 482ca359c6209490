package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/curateops/curator/internal/types"
)

// UpsertWorkItem inserts or refreshes the local mirror row for a
// tracker issue. Status propagates on conflict so a human closing or
// blocking an issue on the tracker reaches the mirror, with one guard:
// an open incoming status never overwrites a live in_progress row —
// the claim protocol owns that transition.
func (s *PostgresStorage) UpsertWorkItem(ctx context.Context, w *types.WorkItem) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("invalid work item: %w", err)
	}
	labels := w.Labels
	if labels == nil {
		labels = []string{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO work_items (id, project_id, iid, title, description, status, priority, role, labels, assignee, web_url, created_at, updated_at, closed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), $13)
		ON CONFLICT (id) DO UPDATE SET
			status = CASE
				WHEN EXCLUDED.status = 'open' AND work_items.status = 'in_progress'
					THEN work_items.status
				ELSE EXCLUDED.status
			END,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			priority = EXCLUDED.priority,
			role = EXCLUDED.role,
			labels = EXCLUDED.labels,
			assignee = EXCLUDED.assignee,
			web_url = EXCLUDED.web_url,
			updated_at = EXCLUDED.updated_at,
			closed_at = EXCLUDED.closed_at
	`, w.ID, w.ProjectID, w.IID, w.Title, w.Description, w.Status, w.Priority,
		w.Role, labels, w.Assignee, w.WebURL, w.CreatedAt, w.ClosedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert work item: %w", err)
	}
	return nil
}

// GetWorkItem fetches a mirror row by ID.
func (s *PostgresStorage) GetWorkItem(ctx context.Context, id string) (*types.WorkItem, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, project_id, iid, title, description, status, priority, role, labels, assignee, web_url, created_at, updated_at, closed_at
		FROM work_items WHERE id = $1
	`, id)
	w, err := scanWorkItem(row)
	if noRows(err) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get work item: %w", err)
	}
	return w, nil
}

// UpdateWorkStatus sets the mirror status for a work item.
func (s *PostgresStorage) UpdateWorkStatus(ctx context.Context, id string, status types.WorkStatus) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid work status: %q", status)
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE work_items SET status = $1, updated_at = NOW() WHERE id = $2
	`, status, id)
	if err != nil {
		return fmt.Errorf("failed to update work status: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

// GetReadyWork returns open, unclaimed work items matching the filter.
// A left join against work_execution_state excludes items with a live
// claim even when their mirror status lags.
func (s *PostgresStorage) GetReadyWork(ctx context.Context, filter types.WorkFilter) ([]*types.WorkItem, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT w.id, w.project_id, w.iid, w.title, w.description, w.status, w.priority, w.role, w.labels, w.assignee, w.web_url, w.created_at, w.updated_at, w.closed_at
		FROM work_items w
		LEFT JOIN work_execution_state es ON es.work_id = w.id
			AND es.state IN ('claimed', 'assessing', 'executing', 'reviewing', 'committing')
		WHERE w.status = 'open' AND es.work_id IS NULL
	`)
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.Roles) > 0 {
		placeholders := make([]string, len(filter.Roles))
		for i, r := range filter.Roles {
			placeholders[i] = arg(r)
		}
		sb.WriteString(" AND w.role IN (" + strings.Join(placeholders, ",") + ")")
	}
	if filter.MaxPriority >= 0 {
		sb.WriteString(" AND w.priority <= " + arg(filter.MaxPriority))
	}
	if filter.ProjectID != "" {
		sb.WriteString(" AND w.project_id = " + arg(filter.ProjectID))
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
	sb.WriteString(" LIMIT " + arg(limit))

	rows, err := s.pool.Query(ctx, sb.String(), args...)
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

func scanWorkItem(row pgx.Row) (*types.WorkItem, error) {
	w := &types.WorkItem{}
	var closedAt *time.Time
	err := row.Scan(&w.ID, &w.ProjectID, &w.IID, &w.Title, &w.Description, &w.Status,
		&w.Priority, &w.Role, &w.Labels, &w.Assignee, &w.WebURL, &w.CreatedAt, &w.UpdatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	w.ClosedAt = closedAt
	return w, nil
}
