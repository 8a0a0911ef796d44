package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sylvanet/arbor/internal/federation"
	"github.com/sylvanet/arbor/internal/metrics"
	"github.com/sylvanet/arbor/internal/store"
)

// NewRouter creates a chi router with the federation routes mounted.
// metricsToken, when non-empty, gates the /metrics endpoint.
func NewRouter(conv *federation.Converter, st store.EntityStore, fetchLimit int, metricsToken string) chi.Router {
	h := NewHandler(conv, st, fetchLimit)

	r := chi.NewRouter()

	r.Post("/inbox", h.Inbox)
	r.Get("/comment/{id}", h.GetComment)

	r.Group(func(r chi.Router) {
		r.Use(BearerMiddleware(metricsToken))
		r.Method(http.MethodGet, "/metrics", metrics.Handler())
	})

	return r
}
