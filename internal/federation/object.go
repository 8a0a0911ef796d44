// Package federation maps local entities to portable signed wire objects
// and resolves the remote references inbound objects carry.
package federation

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/sylvanet/arbor/internal/apperr"
)

// Wire type tags.
const (
	KindNote      = "Note"
	KindPage      = "Page"
	KindPerson    = "Person"
	KindGroup     = "Group"
	KindTombstone = "Tombstone"
)

// PublicAudience is the well-known collective addressing every object
// carries in its "to" list.
const PublicAudience = "https://www.w3.org/ns/activitystreams#Public"

// Media types used on the wire.
const (
	MediaTypeHTML     = "text/html"
	MediaTypeMarkdown = "text/markdown"
)

// Note is the wire form of a comment.
//
// Extra preserves fields this server does not understand so they survive
// a decode/encode round trip; known fields always win over Extra on
// marshal.
type Note struct {
	Type         string       `json:"type"`
	ID           string       `json:"id"`
	AttributedTo string       `json:"attributedTo"`
	To           []string     `json:"to"`
	Content      string       `json:"content"`
	MediaType    string       `json:"mediaType,omitempty"`
	Source       SourceCompat `json:"source"`
	InReplyTo    string       `json:"inReplyTo"`
	Published    *time.Time   `json:"published,omitempty"`
	Updated      *time.Time   `json:"updated,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type noteAlias Note

var noteKnownKeys = []string{
	"type", "id", "attributedTo", "to", "content", "mediaType",
	"source", "inReplyTo", "published", "updated",
}

// UnmarshalJSON decodes the known fields and stashes everything else in
// Extra verbatim.
func (n *Note) UnmarshalJSON(data []byte) error {
	var a noteAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var extra map[string]json.RawMessage
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	for _, k := range noteKnownKeys {
		delete(extra, k)
	}
	if len(extra) == 0 {
		extra = nil
	}
	a.Extra = extra
	*n = Note(a)
	return nil
}

// MarshalJSON emits the known fields merged with Extra. The source block
// is omitted entirely when no exact source is available.
func (n Note) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(noteAlias(n))
	if err != nil {
		return nil, err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(known, &m); err != nil {
		return nil, err
	}
	if _, exact := n.Source.Markdown(); !exact {
		delete(m, "source")
	}
	for k, v := range n.Extra {
		if _, ok := m[k]; !ok {
			m[k] = v
		}
	}
	return json.Marshal(m)
}

// SourceCompat is the two-variant source block of a Note: either the
// exact Markdown the author wrote, or nothing usable, in which case the
// body must be re-derived from the rendered HTML. Callers branch on the
// bool from Markdown rather than inspecting an optional field.
type SourceCompat struct {
	content string
	exact   bool
}

// ExactSource wraps author-written Markdown.
func ExactSource(markdown string) SourceCompat {
	return SourceCompat{content: markdown, exact: true}
}

// DerivedOnly is the variant for peers that attach no compatible source.
func DerivedOnly() SourceCompat {
	return SourceCompat{}
}

// Markdown returns the exact source and true, or "" and false when the
// body has to be derived from HTML.
func (s SourceCompat) Markdown() (string, bool) {
	return s.content, s.exact
}

type sourceBlock struct {
	Content   string `json:"content"`
	MediaType string `json:"mediaType"`
}

// MarshalJSON emits {content, mediaType} for the exact variant and null
// otherwise. Note.MarshalJSON drops the null.
func (s SourceCompat) MarshalJSON() ([]byte, error) {
	if !s.exact {
		return []byte("null"), nil
	}
	return json.Marshal(sourceBlock{Content: s.content, MediaType: MediaTypeMarkdown})
}

// UnmarshalJSON accepts the compatible {content, mediaType} shape and
// treats anything else (missing, null, foreign string forms, other media
// types) as derived-only rather than failing the whole object.
func (s *SourceCompat) UnmarshalJSON(data []byte) error {
	var block sourceBlock
	if err := json.Unmarshal(data, &block); err != nil {
		*s = DerivedOnly()
		return nil
	}
	if block.MediaType != MediaTypeMarkdown {
		*s = DerivedOnly()
		return nil
	}
	*s = ExactSource(block.Content)
	return nil
}

// Tombstone is the minimal wire form of a deleted comment.
type Tombstone struct {
	Type       string    `json:"type"`
	FormerType string    `json:"formerType,omitempty"`
	Deleted    time.Time `json:"deleted"`
}

// Actor is the wire form of a person, reduced to what resolution needs.
type Actor struct {
	Type              string     `json:"type"`
	ID                string     `json:"id"`
	PreferredUsername string     `json:"preferredUsername"`
	Name              string     `json:"name,omitempty"`
	Published         *time.Time `json:"published,omitempty"`
	Updated           *time.Time `json:"updated,omitempty"`
}

// Group is the wire form of a community.
type Group struct {
	Type                    string     `json:"type"`
	ID                      string     `json:"id"`
	PreferredUsername       string     `json:"preferredUsername"`
	Name                    string     `json:"name,omitempty"`
	PostingRestrictedToMods bool       `json:"postingRestrictedToMods"`
	Published               *time.Time `json:"published,omitempty"`
	Updated                 *time.Time `json:"updated,omitempty"`
}

// Page is the wire form of a post.
type Page struct {
	Type            string     `json:"type"`
	ID              string     `json:"id"`
	AttributedTo    string     `json:"attributedTo"`
	To              []string   `json:"to,omitempty"`
	Audience        string     `json:"audience,omitempty"`
	Name            string     `json:"name"`
	Content         string     `json:"content,omitempty"`
	CommentsEnabled *bool      `json:"commentsEnabled,omitempty"`
	Published       *time.Time `json:"published,omitempty"`
	Updated         *time.Time `json:"updated,omitempty"`
}

// CommunityID returns the community reference of a Page: the audience
// field when present, otherwise the first non-public "to" entry.
func (p *Page) CommunityID() string {
	if p.Audience != "" {
		return p.Audience
	}
	for _, t := range p.To {
		if t != PublicAudience {
			return t
		}
	}
	return ""
}

// Locked reports whether the post rejects new replies.
func (p *Page) Locked() bool {
	return p.CommentsEnabled != nil && !*p.CommentsEnabled
}

// envelope is the activity wrapper some peers deliver objects in.
type envelope struct {
	Type   string          `json:"type"`
	Actor  string          `json:"actor"`
	Object json.RawMessage `json:"object"`
}

// kindProbe peeks at the type tag of a raw object.
type kindProbe struct {
	Type string `json:"type"`
}

// verifyDomain checks that a wire identifier belongs to claimedDomain.
// A mismatch is a verification failure, never silently corrected.
func verifyDomain(apID, claimedDomain string) error {
	u, err := url.Parse(apID)
	if err != nil || u.Host == "" {
		return fmt.Errorf("federation: bad object id %q: %w", apID, apperr.ErrObjectMismatch)
	}
	if u.Host != claimedDomain {
		return fmt.Errorf("federation: object id %q not on domain %q: %w",
			apID, claimedDomain, apperr.ErrObjectMismatch)
	}
	return nil
}

// hostOf extracts the authority of a protocol identifier.
func hostOf(apID string) (string, error) {
	u, err := url.Parse(apID)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("federation: bad reference %q: %w", apID, apperr.ErrMalformedPayload)
	}
	return u.Host, nil
}
