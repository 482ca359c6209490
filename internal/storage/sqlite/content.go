package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/curateops/curator/internal/types"
)

// CreateKnowledgeBase inserts a new KB and sets its ID.
func (s *SQLiteStorage) CreateKnowledgeBase(ctx context.Context, kb *types.KnowledgeBase) error {
	if err := kb.Validate(); err != nil {
		return fmt.Errorf("invalid knowledge base: %w", err)
	}
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO knowledge_bases (name, description, author_id, is_active, tracker_project_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, kb.Name, kb.Description, kb.AuthorID, kb.IsActive, kb.TrackerProjectID, now, now)
	if err != nil {
		return fmt.Errorf("failed to create knowledge base: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get knowledge base ID: %w", err)
	}
	kb.ID = id
	kb.CreatedAt = now
	kb.UpdatedAt = now
	return nil
}

// GetKnowledgeBase fetches a KB by ID.
func (s *SQLiteStorage) GetKnowledgeBase(ctx context.Context, id int64) (*types.KnowledgeBase, error) {
	kb := &types.KnowledgeBase{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, author_id, is_active, tracker_project_id, created_at, updated_at
		FROM knowledge_bases WHERE id = ?
	`, id).Scan(&kb.ID, &kb.Name, &kb.Description, &kb.AuthorID, &kb.IsActive,
		&kb.TrackerProjectID, &kb.CreatedAt, &kb.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge base: %w", err)
	}
	return kb, nil
}

// ListKnowledgeBases returns KBs, optionally only active ones.
func (s *SQLiteStorage) ListKnowledgeBases(ctx context.Context, activeOnly bool) ([]*types.KnowledgeBase, error) {
	query := `
		SELECT id, name, description, author_id, is_active, tracker_project_id, created_at, updated_at
		FROM knowledge_bases
	`
	if activeOnly {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY created_at"

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list knowledge bases: %w", err)
	}
	defer rows.Close()

	var kbs []*types.KnowledgeBase
	for rows.Next() {
		kb := &types.KnowledgeBase{}
		if err := rows.Scan(&kb.ID, &kb.Name, &kb.Description, &kb.AuthorID, &kb.IsActive,
			&kb.TrackerProjectID, &kb.CreatedAt, &kb.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge base: %w", err)
		}
		kbs = append(kbs, kb)
	}
	return kbs, rows.Err()
}

// UpdateKnowledgeBase saves changed KB fields.
func (s *SQLiteStorage) UpdateKnowledgeBase(ctx context.Context, kb *types.KnowledgeBase) error {
	if err := kb.Validate(); err != nil {
		return fmt.Errorf("invalid knowledge base: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_bases
		SET name = ?, description = ?, author_id = ?, is_active = ?, tracker_project_id = ?, updated_at = ?
		WHERE id = ?
	`, kb.Name, kb.Description, kb.AuthorID, kb.IsActive, kb.TrackerProjectID, time.Now(), kb.ID)
	if err != nil {
		return fmt.Errorf("failed to update knowledge base: %w", err)
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

// LinkTrackerProject records the tracker project created for a KB.
func (s *SQLiteStorage) LinkTrackerProject(ctx context.Context, kbID int64, projectID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE knowledge_bases SET tracker_project_id = ?, updated_at = ? WHERE id = ?
	`, projectID, time.Now(), kbID)
	if err != nil {
		return fmt.Errorf("failed to link tracker project: %w", err)
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

// GetDoneKnowledgeBases returns inactive KBs that have no tracker
// project yet. The management agent bootstraps projects for these.
func (s *SQLiteStorage) GetDoneKnowledgeBases(ctx context.Context) ([]*types.KnowledgeBase, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, author_id, is_active, tracker_project_id, created_at, updated_at
		FROM knowledge_bases
		WHERE is_active = 0 AND tracker_project_id = ''
		ORDER BY updated_at
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query done knowledge bases: %w", err)
	}
	defer rows.Close()

	var kbs []*types.KnowledgeBase
	for rows.Next() {
		kb := &types.KnowledgeBase{}
		if err := rows.Scan(&kb.ID, &kb.Name, &kb.Description, &kb.AuthorID, &kb.IsActive,
			&kb.TrackerProjectID, &kb.CreatedAt, &kb.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan knowledge base: %w", err)
		}
		kbs = append(kbs, kb)
	}
	return kbs, rows.Err()
}

// CreateArticle inserts a new article and sets its ID.
func (s *SQLiteStorage) CreateArticle(ctx context.Context, a *types.Article) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid article: %w", err)
	}
	now := time.Now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (knowledge_base_id, title, content, author_id, parent_id, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, a.KnowledgeBaseID, a.Title, a.Content, a.AuthorID, a.ParentID, a.IsActive, now, now)
	if err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get article ID: %w", err)
	}
	a.ID = id
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// GetArticle fetches an article by ID.
func (s *SQLiteStorage) GetArticle(ctx context.Context, id int64) (*types.Article, error) {
	a := &types.Article{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, knowledge_base_id, title, content, author_id, parent_id, is_active, created_at, updated_at
		FROM articles WHERE id = ?
	`, id).Scan(&a.ID, &a.KnowledgeBaseID, &a.Title, &a.Content, &a.AuthorID,
		&a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return a, nil
}

// UpdateArticle saves changed article fields.
func (s *SQLiteStorage) UpdateArticle(ctx context.Context, a *types.Article) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid article: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE articles
		SET title = ?, content = ?, author_id = ?, parent_id = ?, is_active = ?, updated_at = ?
		WHERE id = ?
	`, a.Title, a.Content, a.AuthorID, a.ParentID, a.IsActive, time.Now(), a.ID)
	if err != nil {
		return fmt.Errorf("failed to update article: %w", err)
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

// GetRootArticles returns active top-level articles of a KB.
func (s *SQLiteStorage) GetRootArticles(ctx context.Context, kbID int64) ([]*types.Article, error) {
	return s.queryArticles(ctx, `
		SELECT id, knowledge_base_id, title, content, author_id, parent_id, is_active, created_at, updated_at
		FROM articles
		WHERE knowledge_base_id = ? AND parent_id IS NULL AND is_active = 1
		ORDER BY title
	`, kbID)
}

// GetChildArticles returns active children of an article.
func (s *SQLiteStorage) GetChildArticles(ctx context.Context, parentID int64) ([]*types.Article, error) {
	return s.queryArticles(ctx, `
		SELECT id, knowledge_base_id, title, content, author_id, parent_id, is_active, created_at, updated_at
		FROM articles
		WHERE parent_id = ? AND is_active = 1
		ORDER BY title
	`, parentID)
}

// SearchArticles finds active articles whose title or content matches
// the query substring, case-insensitively.
func (s *SQLiteStorage) SearchArticles(ctx context.Context, kbID int64, query string, limit int) ([]*types.Article, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + query + "%"
	return s.queryArticles(ctx, `
		SELECT id, knowledge_base_id, title, content, author_id, parent_id, is_active, created_at, updated_at
		FROM articles
		WHERE knowledge_base_id = ? AND is_active = 1
		  AND (title LIKE ? COLLATE NOCASE OR content LIKE ? COLLATE NOCASE)
		ORDER BY title
		LIMIT ?
	`, kbID, pattern, pattern, limit)
}

func (s *SQLiteStorage) queryArticles(ctx context.Context, query string, args ...any) ([]*types.Article, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var articles []*types.Article
	for rows.Next() {
		a := &types.Article{}
		if err := rows.Scan(&a.ID, &a.KnowledgeBaseID, &a.Title, &a.Content, &a.AuthorID,
			&a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// AttachTag attaches a tag (created on first use) to an article. The
// name is normalized before storage; attaching twice is a no-op.
func (s *SQLiteStorage) AttachTag(ctx context.Context, articleID int64, name string) error {
	normalized, err := types.NormalizeTagName(name)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING
	`, normalized); err != nil {
		return fmt.Errorf("failed to upsert tag: %w", err)
	}

	var tagID int64
	if err := tx.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, normalized).Scan(&tagID); err != nil {
		return fmt.Errorf("failed to look up tag: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO article_tags (article_id, tag_id) VALUES (?, ?)
		ON CONFLICT(article_id, tag_id) DO NOTHING
	`, articleID, tagID); err != nil {
		return fmt.Errorf("failed to attach tag: %w", err)
	}

	return tx.Commit()
}

// DetachTag removes a tag from an article. Detaching an absent tag is
// a no-op.
func (s *SQLiteStorage) DetachTag(ctx context.Context, articleID int64, name string) error {
	normalized, err := types.NormalizeTagName(name)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		DELETE FROM article_tags
		WHERE article_id = ? AND tag_id = (SELECT id FROM tags WHERE name = ?)
	`, articleID, normalized)
	if err != nil {
		return fmt.Errorf("failed to detach tag: %w", err)
	}
	return nil
}

// GetArticleTags returns the tags attached to an article.
func (s *SQLiteStorage) GetArticleTags(ctx context.Context, articleID int64) ([]*types.Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.created_at
		FROM tags t
		JOIN article_tags at ON at.tag_id = t.id
		WHERE at.article_id = ?
		ORDER BY t.name
	`, articleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query article tags: %w", err)
	}
	defer rows.Close()

	var tags []*types.Tag
	for rows.Next() {
		t := &types.Tag{}
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// ListTagsWithUsage returns all tags with how many articles carry each.
func (s *SQLiteStorage) ListTagsWithUsage(ctx context.Context) ([]*types.TagWithUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.created_at, COUNT(at.article_id)
		FROM tags t
		LEFT JOIN article_tags at ON at.tag_id = t.id
		GROUP BY t.id, t.name, t.created_at
		ORDER BY COUNT(at.article_id) DESC, t.name
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []*types.TagWithUsage
	for rows.Next() {
		t := &types.TagWithUsage{}
		if err := rows.Scan(&t.ID, &t.Name, &t.CreatedAt, &t.UsageCount); err != nil {
			return nil, fmt.Errorf("failed to scan tag usage: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
