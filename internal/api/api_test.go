package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sylvanet/arbor/internal/api"
	"github.com/sylvanet/arbor/internal/apperr"
	"github.com/sylvanet/arbor/internal/federation"
	"github.com/sylvanet/arbor/internal/models"
	"github.com/sylvanet/arbor/internal/slurfilter"
	"github.com/sylvanet/arbor/internal/store"
	"github.com/sylvanet/arbor/internal/testutil"
)

// noFetch fails every remote dereference; the fixtures keep everything local.
type noFetch struct{}

func (noFetch) Fetch(context.Context, string) ([]byte, error) {
	return nil, apperr.ErrUnreachable
}

type apiFixture struct {
	store   *store.Store
	person  *models.Person
	post    *models.Post
	handler http.Handler
}

func newAPIFixture(t *testing.T, locked bool, metricsToken string) *apiFixture {
	t.Helper()
	st := testutil.TestStore(t)
	person := testutil.SeedPerson(t, st, "https://remote.example/u/alice")
	community := testutil.SeedCommunity(t, st, "https://local.example/c/testing", false)
	post := testutil.SeedPost(t, st, "https://local.example/post/1", person.ID, community.ID, locked)

	slurs, err := slurfilter.New("")
	if err != nil {
		t.Fatal(err)
	}
	conv := federation.NewConverter(st, noFetch{}, slurs, "local.example")
	return &apiFixture{
		store:   st,
		person:  person,
		post:    post,
		handler: api.NewRouter(conv, st, 0, metricsToken),
	}
}

func noteJSON(t *testing.T, apID, inReplyTo string) string {
	t.Helper()
	note := &federation.Note{
		Type:         "Note",
		ID:           apID,
		AttributedTo: "https://remote.example/u/alice",
		To:           []string{federation.PublicAudience},
		Content:      "<p>hello</p>",
		Source:       federation.ExactSource("hello"),
		InReplyTo:    inReplyTo,
	}
	b, err := json.Marshal(note)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func postInbox(fx *apiFixture, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/inbox", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/activity+json")
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	return rec
}

func TestInboxAcceptsCreate(t *testing.T) {
	fx := newAPIFixture(t, false, "")
	activity := fmt.Sprintf(`{"type":"Create","actor":"https://remote.example/u/alice","object":%s}`,
		noteJSON(t, "https://remote.example/comment/1", fx.post.ApID))

	rec := postInbox(fx, activity)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var comment models.Comment
	if err := json.Unmarshal(rec.Body.Bytes(), &comment); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if comment.ApID != "https://remote.example/comment/1" || comment.Content != "hello" {
		t.Errorf("unexpected comment: %+v", comment)
	}
	if _, err := fx.store.CommentByApID(context.Background(), comment.ApID); err != nil {
		t.Errorf("comment not persisted: %v", err)
	}
}

func TestInboxRejectsInvalidJSON(t *testing.T) {
	fx := newAPIFixture(t, false, "")
	rec := postInbox(fx, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestInboxRejectsAnonymousDelivery(t *testing.T) {
	fx := newAPIFixture(t, false, "")
	rec := postInbox(fx, `{"type":"Note","id":"https://remote.example/comment/1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestInboxRejectsCrossDomainObject(t *testing.T) {
	fx := newAPIFixture(t, false, "")
	// The actor delivers an object claiming an id on another instance.
	activity := fmt.Sprintf(`{"type":"Create","actor":"https://other.example/u/mallory","object":%s}`,
		noteJSON(t, "https://remote.example/comment/1", fx.post.ApID))

	rec := postInbox(fx, activity)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestInboxLockedPostConflict(t *testing.T) {
	fx := newAPIFixture(t, true, "")
	activity := fmt.Sprintf(`{"type":"Create","actor":"https://remote.example/u/alice","object":%s}`,
		noteJSON(t, "https://remote.example/comment/1", fx.post.ApID))

	rec := postInbox(fx, activity)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestInboxUnknownTombstoneAccepted(t *testing.T) {
	fx := newAPIFixture(t, false, "")
	activity := `{"type":"Delete","actor":"https://remote.example/u/alice","object":"https://remote.example/comment/404"}`

	rec := postInbox(fx, activity)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 for idempotent delete", rec.Code)
	}
}

func TestInboxUnreachableParent(t *testing.T) {
	fx := newAPIFixture(t, false, "")
	activity := fmt.Sprintf(`{"type":"Create","actor":"https://remote.example/u/alice","object":%s}`,
		noteJSON(t, "https://remote.example/comment/1", "https://gone.example/post/9"))

	rec := postInbox(fx, activity)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestGetCommentRendersNote(t *testing.T) {
	fx := newAPIFixture(t, false, "")
	comment := testutil.SeedComment(t, fx.store, "https://local.example/comment/1", fx.person.ID, fx.post.ID, true, "hi *there*")

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/comment/%d", comment.ID), nil)
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/activity+json") {
		t.Errorf("content type = %q", ct)
	}
	var note federation.Note
	if err := json.Unmarshal(rec.Body.Bytes(), &note); err != nil {
		t.Fatalf("decode note: %v", err)
	}
	if note.ID != comment.ApID || note.InReplyTo != fx.post.ApID {
		t.Errorf("unexpected note: %+v", note)
	}
	if md, exact := note.Source.Markdown(); !exact || md != "hi *there*" {
		t.Errorf("source = (%q, %v), want exact local markdown", md, exact)
	}
}

func TestGetCommentRendersTombstoneWhenDeleted(t *testing.T) {
	fx := newAPIFixture(t, false, "")
	comment := testutil.SeedComment(t, fx.store, "https://local.example/comment/1", fx.person.ID, fx.post.ID, true, "bye")
	if err := fx.store.MarkCommentDeleted(context.Background(), comment.ID, true); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/comment/%d", comment.ID), nil)
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var ts federation.Tombstone
	if err := json.Unmarshal(rec.Body.Bytes(), &ts); err != nil {
		t.Fatalf("decode tombstone: %v", err)
	}
	if ts.Type != "Tombstone" || ts.FormerType != "Note" {
		t.Errorf("tombstone tags = %q/%q", ts.Type, ts.FormerType)
	}
	if strings.Contains(rec.Body.String(), "bye") {
		t.Error("tombstone leaked the deleted body")
	}
}

func TestGetCommentNotFound(t *testing.T) {
	fx := newAPIFixture(t, false, "")
	req := httptest.NewRequest(http.MethodGet, "/comment/9999", nil)
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/comment/abc", nil)
	rec = httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for bad id", rec.Code)
	}
}

func TestMetricsBearerAuth(t *testing.T) {
	fx := newAPIFixture(t, false, "sekret")

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec = httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d, want 401", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("Authorization", "Bearer sekret")
	rec = httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("valid token: status = %d, want 200", rec.Code)
	}

	body := rec.Body.String()
	if !strings.Contains(body, "arbor_inbox_total") && !strings.Contains(body, "go_goroutines") {
		t.Error("metrics exposition looks empty")
	}
}
