package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summi_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "summi_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)

	// Pipeline metrics
	WebhookOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summi_webhook_outcomes_total",
			Help: "Webhook deliveries by outcome",
		},
		[]string{"outcome"}, // "stored", "not_stored" or an ignore reason
	)

	ConversationsClassified = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summi_conversations_classified_total",
			Help: "Conversations classified by resulting priority",
		},
		[]string{"priority"},
	)

	DigestOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summi_digest_outcomes_total",
			Help: "Per-subscriber tick outcomes",
		},
		[]string{"status"},
	)

	TickDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "summi_tick_duration_seconds",
			Help:    "Hourly tick duration",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	// Queue metrics
	JobsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summi_jobs_processed_total",
			Help: "Queue jobs by role and result",
		},
		[]string{"role", "result"}, // "ok", "error", "invalid", "unsupported", "panic"
	)

	JobsEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summi_jobs_enqueued_total",
			Help: "Jobs pushed to the work queues",
		},
		[]string{"type"},
	)
)
