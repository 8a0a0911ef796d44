// Package store provides the SQLite-backed entity store.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/sylvanet/arbor/internal/models"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS person (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	name      TEXT NOT NULL,
	ap_id     TEXT NOT NULL UNIQUE,
	local     INTEGER NOT NULL DEFAULT 0,
	published DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated   DATETIME
);

CREATE TABLE IF NOT EXISTS community (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	name               TEXT NOT NULL,
	title              TEXT NOT NULL DEFAULT '',
	ap_id              TEXT NOT NULL UNIQUE,
	local              INTEGER NOT NULL DEFAULT 0,
	posting_restricted INTEGER NOT NULL DEFAULT 0,
	published          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated            DATETIME
);

CREATE TABLE IF NOT EXISTS post (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	name         TEXT NOT NULL,
	body         TEXT NOT NULL DEFAULT '',
	creator_id   INTEGER NOT NULL REFERENCES person(id),
	community_id INTEGER NOT NULL REFERENCES community(id),
	locked       INTEGER NOT NULL DEFAULT 0,
	removed      INTEGER NOT NULL DEFAULT 0,
	deleted      INTEGER NOT NULL DEFAULT 0,
	ap_id        TEXT NOT NULL UNIQUE,
	local        INTEGER NOT NULL DEFAULT 0,
	published    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated      DATETIME
);

CREATE TABLE IF NOT EXISTS comment (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	creator_id INTEGER NOT NULL REFERENCES person(id),
	post_id    INTEGER NOT NULL REFERENCES post(id),
	parent_id  INTEGER REFERENCES comment(id),
	content    TEXT NOT NULL,
	removed    INTEGER NOT NULL DEFAULT 0,
	read       INTEGER NOT NULL DEFAULT 0,
	deleted    INTEGER NOT NULL DEFAULT 0,
	ap_id      TEXT NOT NULL UNIQUE,
	local      INTEGER NOT NULL DEFAULT 0,
	published  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated    DATETIME
);

CREATE INDEX IF NOT EXISTS idx_comment_post   ON comment(post_id);
CREATE INDEX IF NOT EXISTS idx_comment_parent ON comment(parent_id);

CREATE TABLE IF NOT EXISTS community_ban (
	community_id INTEGER NOT NULL REFERENCES community(id),
	person_id    INTEGER NOT NULL REFERENCES person(id),
	published    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(community_id, person_id)
);

CREATE TABLE IF NOT EXISTS community_member (
	community_id INTEGER NOT NULL REFERENCES community(id),
	person_id    INTEGER NOT NULL REFERENCES person(id),
	published    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(community_id, person_id)
);
`

// Store wraps a sql.DB with entity operations.
type Store struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Store, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{conn: conn}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// EntityStore defines the storage operations the federation core depends
// on. Consumers should depend on this interface rather than the concrete
// *Store type to facilitate testing with mocks.
type EntityStore interface {
	Person(ctx context.Context, id int64) (*models.Person, error)
	PersonByApID(ctx context.Context, apID string) (*models.Person, error)
	UpsertPerson(ctx context.Context, form models.PersonForm) (*models.Person, error)

	Community(ctx context.Context, id int64) (*models.Community, error)
	CommunityByApID(ctx context.Context, apID string) (*models.Community, error)
	UpsertCommunity(ctx context.Context, form models.CommunityForm) (*models.Community, error)
	IsBanned(ctx context.Context, communityID, personID int64) (bool, error)
	IsMember(ctx context.Context, communityID, personID int64) (bool, error)

	Post(ctx context.Context, id int64) (*models.Post, error)
	PostByApID(ctx context.Context, apID string) (*models.Post, error)
	UpsertPost(ctx context.Context, form models.PostForm) (*models.Post, error)

	Comment(ctx context.Context, id int64) (*models.Comment, error)
	CommentByApID(ctx context.Context, apID string) (*models.Comment, error)
	UpsertComment(ctx context.Context, form models.CommentForm) (*models.Comment, error)
	MarkCommentDeleted(ctx context.Context, id int64, deleted bool) error
	Thread(ctx context.Context, postID int64) ([]models.Comment, error)
}

// Verify *Store satisfies EntityStore at compile time.
var _ EntityStore = (*Store)(nil)

// nullTime converts an optional timestamp for binding.
func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
