// Package testutil provides shared test helpers for setting up entity
// stores and federation fixtures.
package testutil

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/sylvanet/arbor/internal/models"
	"github.com/sylvanet/arbor/internal/store"
)

// TestStore creates a temporary SQLite store that is automatically
// cleaned up.
func TestStore(t *testing.T) *store.Store {
	t.Helper()
	dbFile, err := os.CreateTemp("", "arbor-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	st, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// SeedPerson inserts a person with the given protocol identifier.
func SeedPerson(t *testing.T, st *store.Store, apID string) *models.Person {
	t.Helper()
	p, err := st.UpsertPerson(context.Background(), models.PersonForm{
		Name:      fmt.Sprintf("user-%d", time.Now().UnixNano()),
		ApID:      apID,
		Local:     false,
		Published: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed person: %v", err)
	}
	return p
}

// SeedCommunity inserts a community.
func SeedCommunity(t *testing.T, st *store.Store, apID string, restricted bool) *models.Community {
	t.Helper()
	c, err := st.UpsertCommunity(context.Background(), models.CommunityForm{
		Name:              "testing",
		Title:             "Testing",
		ApID:              apID,
		Local:             true,
		PostingRestricted: restricted,
		Published:         time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed community: %v", err)
	}
	return c
}

// SeedPost inserts a post owned by the given creator and community.
func SeedPost(t *testing.T, st *store.Store, apID string, creatorID, communityID int64, locked bool) *models.Post {
	t.Helper()
	p, err := st.UpsertPost(context.Background(), models.PostForm{
		Name:        "a post",
		CreatorID:   creatorID,
		CommunityID: communityID,
		Locked:      locked,
		ApID:        apID,
		Local:       true,
		Published:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed post: %v", err)
	}
	return p
}

// SeedComment inserts a comment on the given post.
func SeedComment(t *testing.T, st *store.Store, apID string, creatorID, postID int64, local bool, body string) *models.Comment {
	t.Helper()
	c, err := st.UpsertComment(context.Background(), models.CommentForm{
		CreatorID: creatorID,
		PostID:    postID,
		Content:   body,
		ApID:      apID,
		Local:     local,
		Published: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed comment: %v", err)
	}
	return c
}
