// Package metrics holds the process-wide Prometheus collectors. They are
// registered on the default registry and served by middleware.Metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CallTurns counts voice webhook turns by routing branch.
	CallTurns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotline_call_turns_total",
		Help: "Voice webhook turns by routing branch.",
	}, []string{"route"})

	// Classifications counts classifier outcomes by category.
	Classifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotline_classifications_total",
		Help: "Intent classification results by category.",
	}, []string{"category"})

	// RetrievalDuration measures knowledge retrieval latency.
	// Labels: outcome (answered|operator|ended|error)
	RetrievalDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hotline_retrieval_duration_seconds",
		Help:    "Knowledge retrieval latency.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"outcome"})

	// CallUpdates counts live call updates pushed to the telephony provider.
	CallUpdates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotline_call_updates_total",
		Help: "Live call updates by status.",
	}, []string{"status"})

	// GuestsDeleted counts registry deletions by job.
	GuestsDeleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotline_guests_deleted_total",
		Help: "Guest records deleted by maintenance jobs.",
	}, []string{"job"})

	// AlertsSent counts admin alerts by channel and status.
	AlertsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotline_admin_alerts_total",
		Help: "Admin alerts by channel and status.",
	}, []string{"channel", "status"})

	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hotline_http_requests_total",
		Help: "HTTP requests by method and status code.",
	}, []string{"method", "status"})
)
