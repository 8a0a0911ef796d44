// Package apperr defines the sentinel errors shared across Arbor.
//
// Federation failures are deliberately distinct sentinels: the inbox maps
// each to a different HTTP status, and callers decide per-sentinel whether
// a delivery is dropped, reported, or retried upstream.
package apperr

import "errors"

var (
	// ErrNotFound is returned when an entity does not exist locally.
	ErrNotFound = errors.New("not found")

	// ErrObjectMismatch is returned when a wire object's identifier does
	// not belong to the domain the object was fetched from.
	ErrObjectMismatch = errors.New("object id does not match expected domain")

	// ErrBudgetExhausted is returned when a resolution call tree has spent
	// its entire fetch budget. The whole top-level operation aborts.
	ErrBudgetExhausted = errors.New("resolution fetch budget exhausted")

	// ErrNotPermitted is returned when the authoring actor has no standing
	// in the community (banned, or the community restricts posting).
	ErrNotPermitted = errors.New("actor not permitted in community")

	// ErrThreadClosed is returned when the target post is locked against replies.
	ErrThreadClosed = errors.New("post is locked")

	// Transport failures surfaced by the fetch collaborator.
	ErrUnreachable      = errors.New("remote object unreachable")
	ErrInvalidSignature = errors.New("remote object signature invalid")
	ErrMalformedPayload = errors.New("remote object payload malformed")
)
