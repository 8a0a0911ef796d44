package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sylvanet/arbor/internal/apperr"
	"github.com/sylvanet/arbor/internal/models"
)

const postCols = `id, name, body, creator_id, community_id, locked, removed, deleted, ap_id, local, published, updated`

func scanPost(row *sql.Row) (*models.Post, error) {
	var p models.Post
	var updated sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.Body, &p.CreatorID, &p.CommunityID,
		&p.Locked, &p.Removed, &p.Deleted, &p.ApID, &p.Local, &p.Published, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan post: %w", err)
	}
	if updated.Valid {
		p.Updated = &updated.Time
	}
	return &p, nil
}

// Post reads a post by local id.
func (s *Store) Post(ctx context.Context, id int64) (*models.Post, error) {
	return scanPost(s.conn.QueryRowContext(ctx,
		`SELECT `+postCols+` FROM post WHERE id = ?`, id))
}

// PostByApID reads a post by protocol identifier.
func (s *Store) PostByApID(ctx context.Context, apID string) (*models.Post, error) {
	return scanPost(s.conn.QueryRowContext(ctx,
		`SELECT `+postCols+` FROM post WHERE ap_id = ?`, apID))
}

// UpsertPost inserts a post or overwrites the mutable fields of the row
// with the same ap_id.
func (s *Store) UpsertPost(ctx context.Context, form models.PostForm) (*models.Post, error) {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO post (name, body, creator_id, community_id, locked, ap_id, local, published, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ap_id) DO UPDATE SET
			name    = excluded.name,
			body    = excluded.body,
			locked  = excluded.locked,
			updated = excluded.updated
	`, form.Name, form.Body, form.CreatorID, form.CommunityID, form.Locked,
		form.ApID, form.Local, form.Published, nullTime(form.Updated))
	if err != nil {
		return nil, fmt.Errorf("store: upsert post: %w", err)
	}
	return s.PostByApID(ctx, form.ApID)
}
