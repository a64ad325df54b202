package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"route", "method", "status"},
	)

	// Payment lifecycle
	PaymentsInitiated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_initiated_total",
			Help: "Payment initiations by gateway",
		},
		[]string{"gateway", "membership_type"},
	)
	PaymentsCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_completed_total",
			Help: "Payments reconciled to a terminal state",
		},
		[]string{"gateway", "status"}, // completed|failed
	)

	// Webhook deliveries
	WebhooksReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_received_total",
			Help: "Webhook deliveries by source and verification outcome",
		},
		[]string{"source", "outcome"}, // verified|rejected|duplicate|retried
	)
)

// Handler serves the /metrics endpoint.
var Handler = promhttp.Handler

func Init() {
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(PaymentsInitiated)
	prometheus.MustRegister(PaymentsCompleted)
	prometheus.MustRegister(WebhooksReceived)
}
