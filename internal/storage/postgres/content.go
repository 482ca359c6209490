package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/curateops/curator/internal/types"
)

// CreateKnowledgeBase inserts a new KB and sets its ID.
func (s *PostgresStorage) CreateKnowledgeBase(ctx context.Context, kb *types.KnowledgeBase) error {
	if err := kb.Validate(); err != nil {
		return fmt.Errorf("invalid knowledge base: %w", err)
	}
	now := time.Now()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO knowledge_bases (name, description, author_id, is_active, tracker_project_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		RETURNING id
	`, kb.Name, kb.Description, kb.AuthorID, kb.IsActive, kb.TrackerProjectID, now).Scan(&kb.ID)
	if err != nil {
		return fmt.Errorf("failed to create knowledge base: %w", err)
	}
	kb.CreatedAt = now
	kb.UpdatedAt = now
	return nil
}

// GetKnowledgeBase fetches a KB by ID.
func (s *PostgresStorage) GetKnowledgeBase(ctx context.Context, id int64) (*types.KnowledgeBase, error) {
	kb := &types.KnowledgeBase{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, description, author_id, is_active, tracker_project_id, created_at, updated_at
		FROM knowledge_bases WHERE id = $1
	`, id).Scan(&kb.ID, &kb.Name, &kb.Description, &kb.AuthorID, &kb.IsActive,
		&kb.TrackerProjectID, &kb.CreatedAt, &kb.UpdatedAt)
	if noRows(err) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get knowledge base: %w", err)
	}
	return kb, nil
}

// ListKnowledgeBases returns KBs, optionally only active ones.
func (s *PostgresStorage) ListKnowledgeBases(ctx context.Context, activeOnly bool) ([]*types.KnowledgeBase, error) {
	query := `
		SELECT id, name, description, author_id, is_active, tracker_project_id, created_at, updated_at
		FROM knowledge_bases
	`
	if activeOnly {
		query += " WHERE is_active"
	}
	query += " ORDER BY created_at"

	rows, err := s.pool.Query(ctx, query)
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
func (s *PostgresStorage) UpdateKnowledgeBase(ctx context.Context, kb *types.KnowledgeBase) error {
	if err := kb.Validate(); err != nil {
		return fmt.Errorf("invalid knowledge base: %w", err)
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE knowledge_bases
		SET name = $1, description = $2, author_id = $3, is_active = $4, tracker_project_id = $5, updated_at = NOW()
		WHERE id = $6
	`, kb.Name, kb.Description, kb.AuthorID, kb.IsActive, kb.TrackerProjectID, kb.ID)
	if err != nil {
		return fmt.Errorf("failed to update knowledge base: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

// LinkTrackerProject records the tracker project created for a KB.
func (s *PostgresStorage) LinkTrackerProject(ctx context.Context, kbID int64, projectID string) error {
	ct, err := s.pool.Exec(ctx, `
		UPDATE knowledge_bases SET tracker_project_id = $1, updated_at = NOW() WHERE id = $2
	`, projectID, kbID)
	if err != nil {
		return fmt.Errorf("failed to link tracker project: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

// GetDoneKnowledgeBases returns inactive KBs with no tracker project.
func (s *PostgresStorage) GetDoneKnowledgeBases(ctx context.Context) ([]*types.KnowledgeBase, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, author_id, is_active, tracker_project_id, created_at, updated_at
		FROM knowledge_bases
		WHERE NOT is_active AND tracker_project_id = ''
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
func (s *PostgresStorage) CreateArticle(ctx context.Context, a *types.Article) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid article: %w", err)
	}
	now := time.Now()
	err := s.pool.QueryRow(ctx, `
		INSERT INTO articles (knowledge_base_id, title, content, author_id, parent_id, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id
	`, a.KnowledgeBaseID, a.Title, a.Content, a.AuthorID, a.ParentID, a.IsActive, now).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}
	a.CreatedAt = now
	a.UpdatedAt = now
	return nil
}

// GetArticle fetches an article by ID.
func (s *PostgresStorage) GetArticle(ctx context.Context, id int64) (*types.Article, error) {
	a := &types.Article{}
	err := s.pool.QueryRow(ctx, `
		SELECT id, knowledge_base_id, title, content, author_id, parent_id, is_active, created_at, updated_at
		FROM articles WHERE id = $1
	`, id).Scan(&a.ID, &a.KnowledgeBaseID, &a.Title, &a.Content, &a.AuthorID,
		&a.ParentID, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if noRows(err) {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return a, nil
}

// UpdateArticle saves changed article fields.
func (s *PostgresStorage) UpdateArticle(ctx context.Context, a *types.Article) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid article: %w", err)
	}
	ct, err := s.pool.Exec(ctx, `
		UPDATE articles
		SET title = $1, content = $2, author_id = $3, parent_id = $4, is_active = $5, updated_at = NOW()
		WHERE id = $6
	`, a.Title, a.Content, a.AuthorID, a.ParentID, a.IsActive, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update article: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return types.ErrNotFound
	}
	return nil
}

// GetRootArticles returns active top-level articles of a KB.
func (s *PostgresStorage) GetRootArticles(ctx context.Context, kbID int64) ([]*types.Article, error) {
	return s.queryArticles(ctx, `
		SELECT id, knowledge_base_id, title, content, author_id, parent_id, is_active, created_at, updated_at
		FROM articles
		WHERE knowledge_base_id = $1 AND parent_id IS NULL AND is_active
		ORDER BY title
	`, kbID)
}

// GetChildArticles returns active children of an article.
func (s *PostgresStorage) GetChildArticles(ctx context.Context, parentID int64) ([]*types.Article, error) {
	return s.queryArticles(ctx, `
		SELECT id, knowledge_base_id, title, content, author_id, parent_id, is_active, created_at, updated_at
		FROM articles
		WHERE parent_id = $1 AND is_active
		ORDER BY title
	`, parentID)
}

// SearchArticles finds active articles matching the query substring.
func (s *PostgresStorage) SearchArticles(ctx context.Context, kbID int64, query string, limit int) ([]*types.Article, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + query + "%"
	return s.queryArticles(ctx, `
		SELECT id, knowledge_base_id, title, content, author_id, parent_id, is_active, created_at, updated_at
		FROM articles
		WHERE knowledge_base_id = $1 AND is_active
		  AND (title ILIKE $2 OR content ILIKE $2)
		ORDER BY title
		LIMIT $3
	`, kbID, pattern, limit)
}

func (s *PostgresStorage) queryArticles(ctx context.Context, query string, args ...any) ([]*types.Article, error) {
	rows, err := s.pool.Query(ctx, query, args...)
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

// AttachTag attaches a tag (created on first use) to an article.
func (s *PostgresStorage) AttachTag(ctx context.Context, articleID int64, name string) error {
	normalized, err := types.NormalizeTagName(name)
	if err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var tagID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO tags (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id
	`, normalized).Scan(&tagID)
	if err != nil {
		return fmt.Errorf("failed to upsert tag: %w", err)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO article_tags (article_id, tag_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, articleID, tagID); err != nil {
		return fmt.Errorf("failed to attach tag: %w", err)
	}

	return tx.Commit(ctx)
}

// DetachTag removes a tag from an article.
func (s *PostgresStorage) DetachTag(ctx context.Context, articleID int64, name string) error {
	normalized, err := types.NormalizeTagName(name)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		DELETE FROM article_tags
		WHERE article_id = $1 AND tag_id = (SELECT id FROM tags WHERE name = $2)
	`, articleID, normalized)
	if err != nil {
		return fmt.Errorf("failed to detach tag: %w", err)
	}
	return nil
}

// GetArticleTags returns the tags attached to an article.
func (s *PostgresStorage) GetArticleTags(ctx context.Context, articleID int64) ([]*types.Tag, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, t.name, t.created_at
		FROM tags t
		JOIN article_tags at ON at.tag_id = t.id
		WHERE at.article_id = $1
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

// ListTagsWithUsage returns all tags with usage counts.
func (s *PostgresStorage) ListTagsWithUsage(ctx context.Context) ([]*types.TagWithUsage, error) {
	rows, err := s.pool.Query(ctx, `
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
