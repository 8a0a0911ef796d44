package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sylvanet/arbor/internal/apperr"
	"github.com/sylvanet/arbor/internal/models"
)

const commentCols = `id, creator_id, post_id, parent_id, content, removed, read, deleted, ap_id, local, published, updated`

func scanComment(row *sql.Row) (*models.Comment, error) {
	var c models.Comment
	var parent sql.NullInt64
	var updated sql.NullTime
	err := row.Scan(&c.ID, &c.CreatorID, &c.PostID, &parent, &c.Content,
		&c.Removed, &c.Read, &c.Deleted, &c.ApID, &c.Local, &c.Published, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan comment: %w", err)
	}
	if parent.Valid {
		c.ParentID = &parent.Int64
	}
	if updated.Valid {
		c.Updated = &updated.Time
	}
	return &c, nil
}

// Comment reads a comment by local id.
func (s *Store) Comment(ctx context.Context, id int64) (*models.Comment, error) {
	return scanComment(s.conn.QueryRowContext(ctx,
		`SELECT `+commentCols+` FROM comment WHERE id = ?`, id))
}

// CommentByApID reads a comment by protocol identifier.
func (s *Store) CommentByApID(ctx context.Context, apID string) (*models.Comment, error) {
	return scanComment(s.conn.QueryRowContext(ctx,
		`SELECT `+commentCols+` FROM comment WHERE ap_id = ?`, apID))
}

// UpsertComment inserts a comment or overwrites the mutable fields of the
// row with the same ap_id. The single statement keeps duplicate delivery
// idempotent under concurrent inserts of the same object.
func (s *Store) UpsertComment(ctx context.Context, form models.CommentForm) (*models.Comment, error) {
	var parent sql.NullInt64
	if form.ParentID != nil {
		parent = sql.NullInt64{Int64: *form.ParentID, Valid: true}
	}
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO comment (creator_id, post_id, parent_id, content, ap_id, local, published, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ap_id) DO UPDATE SET
			content = excluded.content,
			updated = excluded.updated
	`, form.CreatorID, form.PostID, parent, form.Content, form.ApID,
		form.Local, form.Published, nullTime(form.Updated))
	if err != nil {
		return nil, fmt.Errorf("store: upsert comment: %w", err)
	}
	return s.CommentByApID(ctx, form.ApID)
}

// MarkCommentDeleted flips the soft-delete flag. The row is kept.
func (s *Store) MarkCommentDeleted(ctx context.Context, id int64, deleted bool) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE comment SET deleted = ? WHERE id = ?`, deleted, id)
	if err != nil {
		return fmt.Errorf("store: mark comment deleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// Thread returns all comments on a post, oldest first.
func (s *Store) Thread(ctx context.Context, postID int64) ([]models.Comment, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+commentCols+` FROM comment WHERE post_id = ? ORDER BY published, id`, postID)
	if err != nil {
		return nil, fmt.Errorf("store: thread: %w", err)
	}
	defer rows.Close()

	var out []models.Comment
	for rows.Next() {
		var c models.Comment
		var parent sql.NullInt64
		var updated sql.NullTime
		if err := rows.Scan(&c.ID, &c.CreatorID, &c.PostID, &parent, &c.Content,
			&c.Removed, &c.Read, &c.Deleted, &c.ApID, &c.Local, &c.Published, &updated); err != nil {
			return nil, fmt.Errorf("store: scan thread row: %w", err)
		}
		if parent.Valid {
			c.ParentID = &parent.Int64
		}
		if updated.Valid {
			c.Updated = &updated.Time
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
