// Package metrics exposes Prometheus counters for the federation core.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Inbox outcome labels.
const (
	OutcomeAccepted     = "accepted"
	OutcomeRejected     = "rejected"
	OutcomeNotPermitted = "not_permitted"
	OutcomeError        = "error"
)

var (
	// RemoteFetches counts outbound object fetches.
	RemoteFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "arbor_remote_fetches_total",
		Help: "Remote object fetches performed during resolution.",
	})

	// InboxDeliveries counts inbound deliveries by outcome.
	InboxDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "arbor_inbox_total",
		Help: "Inbound deliveries by outcome.",
	}, []string{"outcome"})
)

// Handler serves the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
