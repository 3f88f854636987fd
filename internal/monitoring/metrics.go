package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_synapse_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gemini_synapse_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"method", "path", "status_class"},
	)

	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gemini_synapse_http_inflight",
			Help: "Number of HTTP requests currently being processed",
		},
	)

	CredentialRotationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gemini_synapse_credential_rotations_total",
			Help: "Total number of credential rotations during relays",
		},
	)

	CredentialFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_synapse_credential_failures_total",
			Help: "Total number of recorded credential failures",
		},
		[]string{"status_class"},
	)

	RelayOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gemini_synapse_relay_outcomes_total",
			Help: "Relay results by terminal outcome",
		},
		[]string{"outcome"},
	)
)
