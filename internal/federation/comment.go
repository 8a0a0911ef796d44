package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/sylvanet/arbor/internal/apperr"
	"github.com/sylvanet/arbor/internal/content"
	"github.com/sylvanet/arbor/internal/models"
	"github.com/sylvanet/arbor/internal/slurfilter"
	"github.com/sylvanet/arbor/internal/store"
)

// Converter maps comments to Notes and back. Inbound conversion resolves
// every reference the Note carries, verifies the author's standing in the
// community, and commits through a single idempotent upsert; nothing is
// persisted when any step fails.
type Converter struct {
	store    store.EntityStore
	resolver *Resolver
	slurs    *slurfilter.Filter
	domain   string
}

// NewConverter wires a converter and its resolver over the given
// collaborators. domain is this instance's own authority, used to derive
// protocol identifiers for locally authored comments.
func NewConverter(st store.EntityStore, fetch Fetcher, slurs *slurfilter.Filter, domain string) *Converter {
	c := &Converter{
		store:    st,
		resolver: &Resolver{store: st, fetch: fetch},
		slurs:    slurs,
		domain:   domain,
	}
	c.resolver.fromNote = c.fromNote
	return c
}

// Resolver exposes the dereference side for callers that resolve objects
// outside the comment path.
func (c *Converter) Resolver() *Resolver {
	return c.resolver
}

// LocalCommentApID derives the protocol identifier for a locally authored
// comment.
func (c *Converter) LocalCommentApID(id int64) string {
	return fmt.Sprintf("https://%s/comment/%d", c.domain, id)
}

// ToNote assembles the wire form of a comment. The body is rendered to
// HTML; the exact Markdown travels along only for locally authored
// comments, since content imported from a peer carries no source
// guarantee worth re-asserting.
func (c *Converter) ToNote(ctx context.Context, comment *models.Comment) (*Note, error) {
	creator, err := c.store.Person(ctx, comment.CreatorID)
	if err != nil {
		return nil, err
	}
	post, err := c.store.Post(ctx, comment.PostID)
	if err != nil {
		return nil, err
	}

	inReplyTo := post.ApID
	if comment.ParentID != nil {
		parent, err := c.store.Comment(ctx, *comment.ParentID)
		if err != nil {
			return nil, err
		}
		inReplyTo = parent.ApID
	}

	html, err := content.RenderMarkdown(comment.Content)
	if err != nil {
		return nil, err
	}
	source := DerivedOnly()
	if comment.Local {
		source = ExactSource(comment.Content)
	}

	published := comment.Published
	return &Note{
		Type:         KindNote,
		ID:           comment.ApID,
		AttributedTo: creator.ApID,
		To:           []string{PublicAudience},
		Content:      html,
		MediaType:    MediaTypeHTML,
		Source:       source,
		InReplyTo:    inReplyTo,
		Published:    &published,
		Updated:      comment.Updated,
	}, nil
}

// ToTombstone builds the deletion marker for a deleted or removed comment.
func (c *Converter) ToTombstone(comment *models.Comment) *Tombstone {
	deleted := comment.Published
	if comment.Updated != nil {
		deleted = *comment.Updated
	}
	return &Tombstone{
		Type:       KindTombstone,
		FormerType: KindNote,
		Deleted:    deleted,
	}
}

// FromNote converts an inbound Note into a persisted comment, fetching
// any entities it references that are not known locally. claimedDomain is
// the domain the delivery or fetch was performed against; budget bounds
// the total remote fetches of this call tree.
func (c *Converter) FromNote(ctx context.Context, note *Note, claimedDomain string, budget *Budget) (*models.Comment, error) {
	return c.fromNote(ctx, note, claimedDomain, budget)
}

func (c *Converter) fromNote(ctx context.Context, note *Note, claimedDomain string, budget *Budget) (*models.Comment, error) {
	if note.ID == "" || note.AttributedTo == "" || note.InReplyTo == "" {
		return nil, fmt.Errorf("federation: note missing required fields: %w", apperr.ErrMalformedPayload)
	}
	if err := verifyDomain(note.ID, claimedDomain); err != nil {
		return nil, err
	}

	creator, err := c.resolver.Person(ctx, note.AttributedTo, budget)
	if err != nil {
		return nil, err
	}
	target, err := c.resolver.PostOrComment(ctx, note.InReplyTo, budget)
	if err != nil {
		return nil, err
	}
	post := target.Post
	var parentID *int64
	if target.Comment != nil {
		parentID = &target.Comment.ID
	}

	community, err := c.store.Community(ctx, post.CommunityID)
	if err != nil {
		return nil, err
	}
	if err := VerifyPersonInCommunity(ctx, c.store, creator, community); err != nil {
		return nil, err
	}
	if post.Locked {
		return nil, fmt.Errorf("federation: post %q: %w", post.ApID, apperr.ErrThreadClosed)
	}

	body, exact := note.Source.Markdown()
	if !exact {
		if body, err = content.MarkdownFromHTML(note.Content); err != nil {
			return nil, err
		}
	}
	body = c.slurs.Apply(body)

	comment, err := c.store.UpsertComment(ctx, models.CommentForm{
		CreatorID: creator.ID,
		PostID:    post.ID,
		ParentID:  parentID,
		Content:   body,
		ApID:      note.ID,
		Local:     false,
		Published: publishedOrNow(note.Published),
		Updated:   note.Updated,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("comment upserted from wire",
		slog.String("ap_id", comment.ApID),
		slog.Int64("post_id", comment.PostID),
		slog.Int("fetches", budget.Used()))
	return comment, nil
}

// ApplyTombstone marks the comment with the given protocol identifier
// deleted. A tombstone for an unknown identifier is accepted as a no-op
// so duplicate or out-of-order deletes stay idempotent.
func (c *Converter) ApplyTombstone(ctx context.Context, apID string) error {
	comment, err := c.store.CommentByApID(ctx, apID)
	if errors.Is(err, apperr.ErrNotFound) {
		slog.Debug("tombstone for unknown object ignored", slog.String("ap_id", apID))
		return nil
	}
	if err != nil {
		return err
	}
	return c.store.MarkCommentDeleted(ctx, comment.ID, true)
}

// Delete soft-deletes a comment. Rows are never hard-deleted by federation.
func (c *Converter) Delete(ctx context.Context, comment *models.Comment) error {
	return c.store.MarkCommentDeleted(ctx, comment.ID, true)
}

// ReceiveRaw handles one inbound delivery payload: a bare object or an
// activity envelope wrapping one. Tombstones (and Delete activities) are
// applied idempotently; Notes run the full resolution path.
func (c *Converter) ReceiveRaw(ctx context.Context, payload []byte, claimedDomain string, budget *Budget) (*models.Comment, error) {
	var probe kindProbe
	if err := json.Unmarshal(payload, &probe); err != nil {
		return nil, fmt.Errorf("federation: decode delivery: %v: %w", err, apperr.ErrMalformedPayload)
	}

	switch probe.Type {
	case "Create", "Update", "Delete":
		var env envelope
		if err := json.Unmarshal(payload, &env); err != nil || len(env.Object) == 0 {
			return nil, fmt.Errorf("federation: activity without object: %w", apperr.ErrMalformedPayload)
		}
		if probe.Type == "Delete" {
			return nil, c.applyDelete(ctx, env.Object)
		}
		return c.ReceiveRaw(ctx, env.Object, claimedDomain, budget)

	case KindTombstone:
		return nil, c.applyDelete(ctx, payload)

	case KindNote:
		var note Note
		if err := json.Unmarshal(payload, &note); err != nil {
			return nil, fmt.Errorf("federation: decode note: %v: %w", err, apperr.ErrMalformedPayload)
		}
		return c.fromNote(ctx, &note, claimedDomain, budget)

	default:
		return nil, fmt.Errorf("federation: unsupported object kind %q: %w", probe.Type, apperr.ErrMalformedPayload)
	}
}

// applyDelete extracts the target identifier from a Delete activity's
// object, which may be a bare identifier string or a Tombstone object.
func (c *Converter) applyDelete(ctx context.Context, object []byte) error {
	var apID string
	if err := json.Unmarshal(object, &apID); err != nil {
		var t struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(object, &t); err != nil || t.ID == "" {
			return fmt.Errorf("federation: delete without target id: %w", apperr.ErrMalformedPayload)
		}
		apID = t.ID
	}
	return c.ApplyTombstone(ctx, apID)
}
