package federation

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sylvanet/arbor/internal/apperr"
	"github.com/sylvanet/arbor/internal/testutil"
)

func remoteActor(apID string) *Actor {
	published := time.Date(2021, 5, 1, 0, 0, 0, 0, time.UTC)
	return &Actor{
		Type:              KindPerson,
		ID:                apID,
		PreferredUsername: "bob",
		Published:         &published,
	}
}

func remoteGroup(apID string, restricted bool) *Group {
	return &Group{
		Type:                    KindGroup,
		ID:                      apID,
		PreferredUsername:       "town",
		Name:                    "Town Square",
		PostingRestrictedToMods: restricted,
	}
}

func remotePage(apID, author, community string) *Page {
	enabled := true
	return &Page{
		Type:            KindPage,
		ID:              apID,
		AttributedTo:    author,
		Audience:        community,
		Name:            "remote post",
		Content:         "<p>post body</p>",
		CommentsEnabled: &enabled,
	}
}

func remoteNote(apID, author, inReplyTo, body string) *Note {
	return &Note{
		Type:         KindNote,
		ID:           apID,
		AttributedTo: author,
		To:           []string{PublicAudience},
		Content:      "<p>" + body + "</p>",
		Source:       ExactSource(body),
		InReplyTo:    inReplyTo,
	}
}

func TestResolvePersonCachesLocally(t *testing.T) {
	st := testutil.TestStore(t)
	fetch := newFakeFetcher()
	conv := testConverter(t, st, fetch, "")
	const apID = "https://remote.example/u/bob"
	fetch.add(t, apID, remoteActor(apID))

	budget := NewBudget(5)
	p1, err := conv.Resolver().Person(context.Background(), apID, budget)
	if err != nil {
		t.Fatalf("Person: %v", err)
	}
	if p1.Name != "bob" || p1.Local {
		t.Errorf("unexpected person: %+v", p1)
	}
	if budget.Used() != 1 {
		t.Errorf("budget used = %d, want 1", budget.Used())
	}

	// Second dereference hits the store, not the network.
	p2, err := conv.Resolver().Person(context.Background(), apID, budget)
	if err != nil {
		t.Fatalf("Person again: %v", err)
	}
	if p2.ID != p1.ID {
		t.Errorf("cache returned a different row: %d vs %d", p2.ID, p1.ID)
	}
	if budget.Used() != 1 || fetch.calls != 1 {
		t.Errorf("cached dereference cost budget=%d calls=%d", budget.Used(), fetch.calls)
	}
}

func TestResolvePersonDomainMismatch(t *testing.T) {
	st := testutil.TestStore(t)
	fetch := newFakeFetcher()
	conv := testConverter(t, st, fetch, "")
	// The fetched document claims an id on a different domain.
	fetch.add(t, "https://remote.example/u/mallory", remoteActor("https://evil.example/u/mallory"))

	_, err := conv.Resolver().Person(context.Background(), "https://remote.example/u/mallory", NewBudget(5))
	if !errors.Is(err, apperr.ErrObjectMismatch) {
		t.Fatalf("err = %v, want ErrObjectMismatch", err)
	}
}

func TestResolveRemoteThread(t *testing.T) {
	st := testutil.TestStore(t)
	fetch := newFakeFetcher()
	conv := testConverter(t, st, fetch, "")

	const (
		actorID     = "https://remote.example/u/bob"
		groupID     = "https://remote.example/c/town"
		pageID      = "https://remote.example/post/1"
		parentID    = "https://remote.example/comment/1"
		deliveredID = "https://remote.example/comment/2"
	)
	fetch.add(t, actorID, remoteActor(actorID))
	fetch.add(t, groupID, remoteGroup(groupID, false))
	fetch.add(t, pageID, remotePage(pageID, actorID, groupID))
	fetch.add(t, parentID, remoteNote(parentID, actorID, pageID, "parent body"))

	budget := NewBudget(10)
	delivered := remoteNote(deliveredID, actorID, parentID, "child body")
	comment, err := conv.FromNote(context.Background(), delivered, "remote.example", budget)
	if err != nil {
		t.Fatalf("FromNote: %v", err)
	}

	if comment.ParentID == nil {
		t.Fatal("delivered comment lost its parent link")
	}
	parent, err := st.CommentByApID(context.Background(), parentID)
	if err != nil {
		t.Fatalf("parent not materialized: %v", err)
	}
	if *comment.ParentID != parent.ID {
		t.Errorf("parent id = %d, want %d", *comment.ParentID, parent.ID)
	}
	if comment.PostID != parent.PostID {
		t.Error("chain does not share one root post")
	}
	post, err := st.PostByApID(context.Background(), pageID)
	if err != nil {
		t.Fatalf("post not materialized: %v", err)
	}
	if comment.PostID != post.ID {
		t.Error("delivered comment attached to wrong post")
	}
	// actor + parent note + page + group, one fetch each.
	if budget.Used() != 4 {
		t.Errorf("budget used = %d, want 4", budget.Used())
	}
}

func TestResolveChainWithinBudget(t *testing.T) {
	st := testutil.TestStore(t)
	fetch := newFakeFetcher()
	conv := testConverter(t, st, fetch, "")

	const (
		actorID = "https://remote.example/u/bob"
		groupID = "https://remote.example/c/town"
		pageID  = "https://remote.example/post/1"
	)
	fetch.add(t, actorID, remoteActor(actorID))
	fetch.add(t, groupID, remoteGroup(groupID, false))
	fetch.add(t, pageID, remotePage(pageID, actorID, groupID))

	const depth = 5
	parent := pageID
	for i := 1; i <= depth; i++ {
		id := fmt.Sprintf("https://remote.example/comment/%d", i)
		fetch.add(t, id, remoteNote(id, actorID, parent, fmt.Sprintf("level %d", i)))
		parent = id
	}

	leaf := remoteNote("https://remote.example/comment/leaf", actorID, parent, "leaf")
	budget := NewBudget(DefaultFetchLimit)
	comment, err := conv.FromNote(context.Background(), leaf, "remote.example", budget)
	if err != nil {
		t.Fatalf("FromNote: %v", err)
	}
	if comment.ParentID == nil {
		t.Fatal("leaf lost its parent")
	}
	// depth notes + actor + page + group.
	if want := depth + 3; budget.Used() != want {
		t.Errorf("budget used = %d, want %d", budget.Used(), want)
	}
}

func TestResolveCycleExhaustsBudget(t *testing.T) {
	st := testutil.TestStore(t)
	fetch := newFakeFetcher()
	conv := testConverter(t, st, fetch, "")

	const (
		actorID = "https://remote.example/u/bob"
		aID     = "https://remote.example/comment/a"
		bID     = "https://remote.example/comment/b"
	)
	fetch.add(t, actorID, remoteActor(actorID))
	fetch.add(t, aID, remoteNote(aID, actorID, bID, "a"))
	fetch.add(t, bID, remoteNote(bID, actorID, aID, "b"))

	budget := NewBudget(6)
	_, err := conv.FromNote(context.Background(), remoteNote(aID, actorID, bID, "a"), "remote.example", budget)
	if !errors.Is(err, apperr.ErrBudgetExhausted) {
		t.Fatalf("err = %v, want ErrBudgetExhausted", err)
	}
	if budget.Used() != 6 {
		t.Errorf("budget used = %d, want the full ceiling", budget.Used())
	}
	// Nothing from the cycle may have been committed.
	if _, err := st.CommentByApID(context.Background(), aID); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("cycle member a persisted")
	}
	if _, err := st.CommentByApID(context.Background(), bID); !errors.Is(err, apperr.ErrNotFound) {
		t.Error("cycle member b persisted")
	}
}

// A note replying to itself is the duplicate-fetch edge case: the row is
// only cached after its own upsert, so resolution keeps re-fetching until
// the budget runs out instead of looping forever.
func TestResolveSelfReferentialComment(t *testing.T) {
	st := testutil.TestStore(t)
	fetch := newFakeFetcher()
	conv := testConverter(t, st, fetch, "")

	const (
		actorID = "https://remote.example/u/bob"
		selfID  = "https://remote.example/comment/self"
	)
	fetch.add(t, actorID, remoteActor(actorID))
	fetch.add(t, selfID, remoteNote(selfID, actorID, selfID, "me"))

	budget := NewBudget(4)
	_, err := conv.FromNote(context.Background(), remoteNote(selfID, actorID, selfID, "me"), "remote.example", budget)
	if !errors.Is(err, apperr.ErrBudgetExhausted) {
		t.Fatalf("err = %v, want ErrBudgetExhausted", err)
	}
}

func TestPostOrCommentPrefersLocalComment(t *testing.T) {
	st := testutil.TestStore(t)
	conv := testConverter(t, st, nil, "")
	person, _, post := seedThreadFixture(t, st, false, false)
	parent := testutil.SeedComment(t, st, "https://local.example/comment/1", person.ID, post.ID, true, "parent")

	budget := NewBudget(5)
	target, err := conv.Resolver().PostOrComment(context.Background(), parent.ApID, budget)
	if err != nil {
		t.Fatalf("PostOrComment: %v", err)
	}
	if target.Comment == nil || target.Comment.ID != parent.ID {
		t.Errorf("target comment = %+v, want local parent", target.Comment)
	}
	if target.Post == nil || target.Post.ID != post.ID {
		t.Errorf("target post = %+v, want root post", target.Post)
	}
	if budget.Used() != 0 {
		t.Errorf("local target cost %d fetches", budget.Used())
	}
}

func TestPostOrCommentRejectsOtherKinds(t *testing.T) {
	st := testutil.TestStore(t)
	fetch := newFakeFetcher()
	conv := testConverter(t, st, fetch, "")
	fetch.objects["https://remote.example/video/1"] = []byte(`{"type":"Video","id":"https://remote.example/video/1"}`)

	_, err := conv.Resolver().PostOrComment(context.Background(), "https://remote.example/video/1", NewBudget(5))
	if !errors.Is(err, apperr.ErrMalformedPayload) {
		t.Fatalf("err = %v, want ErrMalformedPayload", err)
	}
}

func TestResolveLockedRemotePage(t *testing.T) {
	st := testutil.TestStore(t)
	fetch := newFakeFetcher()
	conv := testConverter(t, st, fetch, "")

	const (
		actorID = "https://remote.example/u/bob"
		groupID = "https://remote.example/c/town"
		pageID  = "https://remote.example/post/locked"
	)
	fetch.add(t, actorID, remoteActor(actorID))
	fetch.add(t, groupID, remoteGroup(groupID, false))
	page := remotePage(pageID, actorID, groupID)
	disabled := false
	page.CommentsEnabled = &disabled
	fetch.add(t, pageID, page)

	note := remoteNote("https://remote.example/comment/9", actorID, pageID, "late reply")
	_, err := conv.FromNote(context.Background(), note, "remote.example", NewBudget(10))
	if !errors.Is(err, apperr.ErrThreadClosed) {
		t.Fatalf("err = %v, want ErrThreadClosed", err)
	}
}

func TestResolveUnreachableTarget(t *testing.T) {
	st := testutil.TestStore(t)
	fetch := newFakeFetcher()
	conv := testConverter(t, st, fetch, "")
	const actorID = "https://remote.example/u/bob"
	fetch.add(t, actorID, remoteActor(actorID))

	note := remoteNote("https://remote.example/comment/1", actorID, "https://gone.example/post/1", "hi")
	_, err := conv.FromNote(context.Background(), note, "remote.example", NewBudget(10))
	if !errors.Is(err, apperr.ErrUnreachable) {
		t.Fatalf("err = %v, want ErrUnreachable", err)
	}
}
