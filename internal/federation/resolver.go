package federation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sylvanet/arbor/internal/apperr"
	"github.com/sylvanet/arbor/internal/content"
	"github.com/sylvanet/arbor/internal/models"
	"github.com/sylvanet/arbor/internal/store"
)

// Target is a resolved reply-target: always the root post, plus the
// parent comment when the reply attaches to one instead of the post.
type Target struct {
	Post    *models.Post
	Comment *models.Comment
}

// Resolver materializes remote references. Every dereference first checks
// the local store by protocol identifier at zero cost; only unknown
// references spend budget and go over the wire. Each materialized entity
// is upserted before the resolver returns it, so the store doubles as the
// visited-set that lets cyclic graphs terminate.
type Resolver struct {
	store store.EntityStore
	fetch Fetcher

	// fromNote converts a fetched Note, resolving its own references
	// against the same budget. Wired by the Converter owning this resolver.
	fromNote func(ctx context.Context, note *Note, claimedDomain string, budget *Budget) (*models.Comment, error)
}

// Person dereferences an actor reference.
func (r *Resolver) Person(ctx context.Context, apID string, budget *Budget) (*models.Person, error) {
	if p, err := r.store.PersonByApID(ctx, apID); err == nil {
		return p, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	raw, host, err := r.fetchRaw(ctx, apID, budget)
	if err != nil {
		return nil, err
	}
	var actor Actor
	if err := json.Unmarshal(raw, &actor); err != nil {
		return nil, fmt.Errorf("federation: decode actor %q: %v: %w", apID, err, apperr.ErrMalformedPayload)
	}
	if actor.ID == "" || actor.PreferredUsername == "" {
		return nil, fmt.Errorf("federation: actor %q missing required fields: %w", apID, apperr.ErrMalformedPayload)
	}
	if err := verifyDomain(actor.ID, host); err != nil {
		return nil, err
	}
	slog.Debug("resolved remote person", slog.String("ap_id", actor.ID))
	return r.store.UpsertPerson(ctx, models.PersonForm{
		Name:      actor.PreferredUsername,
		ApID:      actor.ID,
		Published: publishedOrNow(actor.Published),
		Updated:   actor.Updated,
	})
}

// Community dereferences a community reference.
func (r *Resolver) Community(ctx context.Context, apID string, budget *Budget) (*models.Community, error) {
	if c, err := r.store.CommunityByApID(ctx, apID); err == nil {
		return c, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	raw, host, err := r.fetchRaw(ctx, apID, budget)
	if err != nil {
		return nil, err
	}
	var group Group
	if err := json.Unmarshal(raw, &group); err != nil {
		return nil, fmt.Errorf("federation: decode group %q: %v: %w", apID, err, apperr.ErrMalformedPayload)
	}
	if group.ID == "" || group.PreferredUsername == "" {
		return nil, fmt.Errorf("federation: group %q missing required fields: %w", apID, apperr.ErrMalformedPayload)
	}
	if err := verifyDomain(group.ID, host); err != nil {
		return nil, err
	}
	slog.Debug("resolved remote community", slog.String("ap_id", group.ID))
	return r.store.UpsertCommunity(ctx, models.CommunityForm{
		Name:              group.PreferredUsername,
		Title:             group.Name,
		ApID:              group.ID,
		PostingRestricted: group.PostingRestrictedToMods,
		Published:         publishedOrNow(group.Published),
		Updated:           group.Updated,
	})
}

// Post dereferences a post reference.
func (r *Resolver) Post(ctx context.Context, apID string, budget *Budget) (*models.Post, error) {
	if p, err := r.store.PostByApID(ctx, apID); err == nil {
		return p, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	raw, host, err := r.fetchRaw(ctx, apID, budget)
	if err != nil {
		return nil, err
	}
	var page Page
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("federation: decode page %q: %v: %w", apID, err, apperr.ErrMalformedPayload)
	}
	return r.pageToPost(ctx, &page, host, budget)
}

// Comment dereferences a comment reference, recursively resolving the
// chain of entities it depends on.
func (r *Resolver) Comment(ctx context.Context, apID string, budget *Budget) (*models.Comment, error) {
	if c, err := r.store.CommentByApID(ctx, apID); err == nil {
		return c, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	raw, host, err := r.fetchRaw(ctx, apID, budget)
	if err != nil {
		return nil, err
	}
	var note Note
	if err := json.Unmarshal(raw, &note); err != nil {
		return nil, fmt.Errorf("federation: decode note %q: %v: %w", apID, err, apperr.ErrMalformedPayload)
	}
	return r.fromNote(ctx, &note, host, budget)
}

// PostOrComment dereferences a reply-target whose kind is not known in
// advance. Locally known identifiers are matched against comments first,
// then posts, at zero budget cost. For unknown references the object is
// fetched once and dispatched on its declared type tag.
func (r *Resolver) PostOrComment(ctx context.Context, apID string, budget *Budget) (*Target, error) {
	if c, err := r.store.CommentByApID(ctx, apID); err == nil {
		return r.targetFromComment(ctx, c)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}
	if p, err := r.store.PostByApID(ctx, apID); err == nil {
		return &Target{Post: p}, nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return nil, err
	}

	raw, host, err := r.fetchRaw(ctx, apID, budget)
	if err != nil {
		return nil, err
	}
	var probe kindProbe
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, fmt.Errorf("federation: probe %q: %v: %w", apID, err, apperr.ErrMalformedPayload)
	}

	switch probe.Type {
	case KindPage:
		var page Page
		if err := json.Unmarshal(raw, &page); err != nil {
			return nil, fmt.Errorf("federation: decode page %q: %v: %w", apID, err, apperr.ErrMalformedPayload)
		}
		post, err := r.pageToPost(ctx, &page, host, budget)
		if err != nil {
			return nil, err
		}
		return &Target{Post: post}, nil

	case KindNote:
		var note Note
		if err := json.Unmarshal(raw, &note); err != nil {
			return nil, fmt.Errorf("federation: decode note %q: %v: %w", apID, err, apperr.ErrMalformedPayload)
		}
		parent, err := r.fromNote(ctx, &note, host, budget)
		if err != nil {
			return nil, err
		}
		return r.targetFromComment(ctx, parent)

	default:
		return nil, fmt.Errorf("federation: reply target %q has kind %q: %w",
			apID, probe.Type, apperr.ErrMalformedPayload)
	}
}

// targetFromComment loads the root post of a parent comment.
func (r *Resolver) targetFromComment(ctx context.Context, c *models.Comment) (*Target, error) {
	post, err := r.store.Post(ctx, c.PostID)
	if err != nil {
		return nil, err
	}
	return &Target{Post: post, Comment: c}, nil
}

// pageToPost converts a fetched Page, resolving its author and community.
func (r *Resolver) pageToPost(ctx context.Context, page *Page, claimedDomain string, budget *Budget) (*models.Post, error) {
	if page.ID == "" || page.AttributedTo == "" {
		return nil, fmt.Errorf("federation: page missing required fields: %w", apperr.ErrMalformedPayload)
	}
	if err := verifyDomain(page.ID, claimedDomain); err != nil {
		return nil, err
	}
	communityRef := page.CommunityID()
	if communityRef == "" {
		return nil, fmt.Errorf("federation: page %q names no community: %w", page.ID, apperr.ErrMalformedPayload)
	}

	creator, err := r.Person(ctx, page.AttributedTo, budget)
	if err != nil {
		return nil, err
	}
	community, err := r.Community(ctx, communityRef, budget)
	if err != nil {
		return nil, err
	}

	body := ""
	if page.Content != "" {
		if body, err = content.MarkdownFromHTML(page.Content); err != nil {
			return nil, err
		}
	}
	slog.Debug("resolved remote post", slog.String("ap_id", page.ID))
	return r.store.UpsertPost(ctx, models.PostForm{
		Name:        page.Name,
		Body:        body,
		CreatorID:   creator.ID,
		CommunityID: community.ID,
		Locked:      page.Locked(),
		ApID:        page.ID,
		Published:   publishedOrNow(page.Published),
		Updated:     page.Updated,
	})
}

// fetchRaw spends budget and retrieves the raw object plus the domain the
// fetch was performed against.
func (r *Resolver) fetchRaw(ctx context.Context, apID string, budget *Budget) ([]byte, string, error) {
	host, err := hostOf(apID)
	if err != nil {
		return nil, "", err
	}
	if err := budget.Spend(); err != nil {
		return nil, "", err
	}
	raw, err := r.fetch.Fetch(ctx, apID)
	if err != nil {
		return nil, "", err
	}
	return raw, host, nil
}

func publishedOrNow(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Now().UTC()
}
