package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	URLsInQueue = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "urls_in_queue",
			Help: "Current number of URLs in the fetch queue.",
		},
	)

	// FetchesTotal counts completed fetch sequences by terminal kind ("success" or a failure kind).
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetches_total",
			Help: "Total number of fetch sequences.",
		},
		[]string{"result"},
	)

	FetchAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_attempts_total",
			Help: "Total number of HTTP attempts issued by the fetch controller.",
		},
		[]string{"outcome"},
	)

	RetryDelay = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_retry_delay_seconds",
			Help:    "Delay applied before a fetch retry.",
			Buckets: []float64{0.1, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
		[]string{"reason"}, // status code or "network"
	)

	FetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fetch_duration_seconds",
			Help:    "Duration of whole fetch sequences, waits included.",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 15, 30, 60, 120},
		},
		[]string{"result"},
	)

	IdentityRotations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "identity_rotations_total",
			Help: "Total number of fetches re-invoked with a rotated identity.",
		},
	)

	URLsRequeued = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "urls_requeued_total",
			Help: "Total number of failed URLs pushed back onto the queue.",
		},
	)
)
