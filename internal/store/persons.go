package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sylvanet/arbor/internal/apperr"
	"github.com/sylvanet/arbor/internal/models"
)

const personCols = `id, name, ap_id, local, published, updated`

func scanPerson(row *sql.Row) (*models.Person, error) {
	var p models.Person
	var updated sql.NullTime
	err := row.Scan(&p.ID, &p.Name, &p.ApID, &p.Local, &p.Published, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan person: %w", err)
	}
	if updated.Valid {
		p.Updated = &updated.Time
	}
	return &p, nil
}

// Person reads a person by local id.
func (s *Store) Person(ctx context.Context, id int64) (*models.Person, error) {
	return scanPerson(s.conn.QueryRowContext(ctx,
		`SELECT `+personCols+` FROM person WHERE id = ?`, id))
}

// PersonByApID reads a person by protocol identifier.
func (s *Store) PersonByApID(ctx context.Context, apID string) (*models.Person, error) {
	return scanPerson(s.conn.QueryRowContext(ctx,
		`SELECT `+personCols+` FROM person WHERE ap_id = ?`, apID))
}

// UpsertPerson inserts a person or refreshes the cached copy keyed by ap_id.
func (s *Store) UpsertPerson(ctx context.Context, form models.PersonForm) (*models.Person, error) {
	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO person (name, ap_id, local, published, updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(ap_id) DO UPDATE SET
			name    = excluded.name,
			updated = excluded.updated
	`, form.Name, form.ApID, form.Local, form.Published, nullTime(form.Updated))
	if err != nil {
		return nil, fmt.Errorf("store: upsert person: %w", err)
	}
	return s.PersonByApID(ctx, form.ApID)
}
