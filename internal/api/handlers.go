package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sylvanet/arbor/internal/apperr"
	"github.com/sylvanet/arbor/internal/federation"
	"github.com/sylvanet/arbor/internal/metrics"
	"github.com/sylvanet/arbor/internal/store"
)

// Handler holds the federation route handlers.
type Handler struct {
	conv       *federation.Converter
	store      store.EntityStore
	fetchLimit int
}

// NewHandler creates a new Handler. fetchLimit is the per-delivery
// resolution budget ceiling.
func NewHandler(conv *federation.Converter, st store.EntityStore, fetchLimit int) *Handler {
	return &Handler{conv: conv, store: st, fetchLimit: fetchLimit}
}

// deliveryProbe pulls the fields needed to attribute a delivery before
// full decoding. The claimed domain comes from the delivering actor; the
// transport collaborator has already verified the request signature
// against that actor.
type deliveryProbe struct {
	Actor        string `json:"actor"`
	AttributedTo string `json:"attributedTo"`
}

func claimedDomain(payload []byte) (string, error) {
	var probe deliveryProbe
	if err := json.Unmarshal(payload, &probe); err != nil {
		return "", err
	}
	ref := probe.Actor
	if ref == "" {
		ref = probe.AttributedTo
	}
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return "", errors.New("delivery names no actor")
	}
	return u.Host, nil
}

// Inbox handles POST /inbox: a single-object federation delivery.
func (h *Handler) Inbox(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	deliveryID := uuid.NewString()

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	domain, err := claimedDomain(payload)
	if err != nil {
		metrics.InboxDeliveries.WithLabelValues(metrics.OutcomeRejected).Inc()
		writeJSON(w, http.StatusBadRequest, errorBody("invalid delivery"))
		return
	}

	budget := federation.NewBudget(h.fetchLimit)
	comment, err := h.conv.ReceiveRaw(r.Context(), payload, domain, budget)
	if err != nil {
		h.writeInboxError(w, deliveryID, domain, err)
		return
	}

	metrics.InboxDeliveries.WithLabelValues(metrics.OutcomeAccepted).Inc()
	slog.Info("delivery accepted",
		slog.String("delivery_id", deliveryID),
		slog.String("domain", domain),
		slog.Int("fetches", budget.Used()))
	if comment == nil {
		// Tombstone path: nothing to echo back.
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

func (h *Handler) writeInboxError(w http.ResponseWriter, deliveryID, domain string, err error) {
	outcome := metrics.OutcomeError
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, apperr.ErrObjectMismatch), errors.Is(err, apperr.ErrMalformedPayload):
		outcome, status, msg = metrics.OutcomeRejected, http.StatusBadRequest, "invalid object"
	case errors.Is(err, apperr.ErrNotPermitted):
		outcome, status, msg = metrics.OutcomeNotPermitted, http.StatusForbidden, "not permitted"
	case errors.Is(err, apperr.ErrThreadClosed):
		outcome, status, msg = metrics.OutcomeRejected, http.StatusConflict, "thread closed"
	case errors.Is(err, apperr.ErrBudgetExhausted):
		outcome, status, msg = metrics.OutcomeRejected, http.StatusUnprocessableEntity, "object graph too large"
	case errors.Is(err, apperr.ErrUnreachable), errors.Is(err, apperr.ErrInvalidSignature):
		outcome, status, msg = metrics.OutcomeError, http.StatusBadGateway, "upstream fetch failed"
	}

	metrics.InboxDeliveries.WithLabelValues(outcome).Inc()
	slog.Warn("delivery failed",
		slog.String("delivery_id", deliveryID),
		slog.String("domain", domain),
		slog.String("error", err.Error()))
	writeJSON(w, status, errorBody(msg))
}

// GetComment handles GET /comment/{id}: the outbound wire form of a
// comment, or its tombstone when the comment is deleted or removed.
func (h *Handler) GetComment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid id"))
		return
	}
	comment, err := h.store.Comment(r.Context(), id)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody("not found"))
		} else {
			slog.Error("get comment failed", slog.Int64("id", id), slog.String("error", err.Error()))
			writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		}
		return
	}

	if comment.Deleted || comment.Removed {
		writeActivityJSON(w, http.StatusOK, h.conv.ToTombstone(comment))
		return
	}
	note, err := h.conv.ToNote(r.Context(), comment)
	if err != nil {
		slog.Error("to note failed", slog.Int64("id", id), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeActivityJSON(w, http.StatusOK, note)
}
