package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sylvanet/arbor/internal/apperr"
	"github.com/sylvanet/arbor/internal/models"
)

const communityCols = `id, name, title, ap_id, local, posting_restricted, published, updated`

func scanCommunity(row *sql.Row) (*models.Community, error) {
	var c models.Community
	var updated sql.NullTime
	err := row.Scan(&c.ID, &c.Name, &c.Title, &c.ApID, &c.Local, &c.PostingRestricted, &c.Published, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan community: %w", err)
	}
	if updated.Valid {
		c.Updated = &updated.Time
	}
	return &c, nil
}

// Community reads a community by local id.
func (s *Store) Community(ctx context.Context, id int64) (*models.Community, error) {
	return scanCommunity(s.conn.QueryRowContext(ctx,
		`SELECT `+communityCols+` FROM community WHERE id = ?`, id))
}

// CommunityByApID reads a community by protocol identifier.
func (s *Store) CommunityByApID(ctx context.Context, apID string) (*models.Community, error) {
	return scanCommunity(s.conn.QueryRowContext(ctx,
		`SELECT `+communityCols+` FROM community WHERE ap_id = ?`, apID))
}

// UpsertCommunity inserts a community or refreshes the cached copy keyed by ap_id.
func (s *Store) UpsertCommunity(ctx context.Context, form models.CommunityForm) (*models.Community, error) {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO community (name, title, ap_id, local, posting_restricted, published, updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ap_id) DO UPDATE SET
			name               = excluded.name,
			title              = excluded.title,
			posting_restricted = excluded.posting_restricted,
			updated            = excluded.updated
	`, form.Name, form.Title, form.ApID, form.Local, form.PostingRestricted,
		form.Published, nullTime(form.Updated))
	if err != nil {
		return nil, fmt.Errorf("store: upsert community: %w", err)
	}
	return s.CommunityByApID(ctx, form.ApID)
}

// IsBanned reports whether the person is banned from the community.
func (s *Store) IsBanned(ctx context.Context, communityID, personID int64) (bool, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM community_ban WHERE community_id = ? AND person_id = ?`,
		communityID, personID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: ban lookup: %w", err)
	}
	return n > 0, nil
}

// IsMember reports whether the person holds membership in the community.
func (s *Store) IsMember(ctx context.Context, communityID, personID int64) (bool, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		`SELECT count(*) FROM community_member WHERE community_id = ? AND person_id = ?`,
		communityID, personID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: membership lookup: %w", err)
	}
	return n > 0, nil
}

// BanPerson records a community ban. Inserting twice is a no-op.
func (s *Store) BanPerson(ctx context.Context, communityID, personID int64) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO community_ban (community_id, person_id) VALUES (?, ?)`,
		communityID, personID)
	if err != nil {
		return fmt.Errorf("store: ban person: %w", err)
	}
	return nil
}

// AddMember records community membership. Inserting twice is a no-op.
func (s *Store) AddMember(ctx context.Context, communityID, personID int64) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO community_member (community_id, person_id) VALUES (?, ?)`,
		communityID, personID)
	if err != nil {
		return fmt.Errorf("store: add member: %w", err)
	}
	return nil
}
