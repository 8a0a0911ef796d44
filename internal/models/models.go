// Package models defines the domain types for Arbor.
package models

import "time"

// Person is a local user or a cached copy of a remote actor.
type Person struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	ApID      string     `json:"ap_id"`
	Local     bool       `json:"local"`
	Published time.Time  `json:"published"`
	Updated   *time.Time `json:"updated,omitempty"`
}

// Community is a local community or a cached copy of a remote one.
type Community struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Title             string     `json:"title,omitempty"`
	ApID              string     `json:"ap_id"`
	Local             bool       `json:"local"`
	PostingRestricted bool       `json:"posting_restricted"`
	Published         time.Time  `json:"published"`
	Updated           *time.Time `json:"updated,omitempty"`
}

// Post is a top-level submission that comments attach to.
type Post struct {
	ID          int64      `json:"id"`
	Name        string     `json:"name"`
	Body        string     `json:"body,omitempty"`
	CreatorID   int64      `json:"creator_id"`
	CommunityID int64      `json:"community_id"`
	Locked      bool       `json:"locked"`
	Removed     bool       `json:"removed"`
	Deleted     bool       `json:"deleted"`
	ApID        string     `json:"ap_id"`
	Local       bool       `json:"local"`
	Published   time.Time  `json:"published"`
	Updated     *time.Time `json:"updated,omitempty"`
}

// Comment is a reply to a post or to another comment.
//
// ParentID is nil for comments that reply directly to the post. Content
// is canonical Markdown; rendering to HTML happens only at the wire
// boundary. A non-local comment always carries the ap_id it was fetched
// under; a local comment's ap_id is derived from the instance domain at
// creation time. Rows are never hard-deleted by federation, only flagged.
type Comment struct {
	ID        int64      `json:"id"`
	CreatorID int64      `json:"creator_id"`
	PostID    int64      `json:"post_id"`
	ParentID  *int64     `json:"parent_id,omitempty"`
	Content   string     `json:"content"`
	Removed   bool       `json:"removed"`
	Read      bool       `json:"read"`
	Deleted   bool       `json:"deleted"`
	ApID      string     `json:"ap_id"`
	Local     bool       `json:"local"`
	Published time.Time  `json:"published"`
	Updated   *time.Time `json:"updated,omitempty"`
}

// CommentForm carries the writable fields for a comment upsert.
type CommentForm struct {
	CreatorID int64
	PostID    int64
	ParentID  *int64
	Content   string
	ApID      string
	Local     bool
	Published time.Time
	Updated   *time.Time
}

// PersonForm carries the writable fields for a person upsert.
type PersonForm struct {
	Name      string
	ApID      string
	Local     bool
	Published time.Time
	Updated   *time.Time
}

// CommunityForm carries the writable fields for a community upsert.
type CommunityForm struct {
	Name              string
	Title             string
	ApID              string
	Local             bool
	PostingRestricted bool
	Published         time.Time
	Updated           *time.Time
}

// PostForm carries the writable fields for a post upsert.
type PostForm struct {
	Name        string
	Body        string
	CreatorID   int64
	CommunityID int64
	Locked      bool
	ApID        string
	Local       bool
	Published   time.Time
	Updated     *time.Time
}
