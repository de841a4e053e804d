package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_requests_latency_seconds",
			Help:    "Latency of HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)

	HTTPInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served.",
		},
	)

	HTTPPanics = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_panics_total",
			Help: "Handler panics recovered by middleware",
		},
		[]string{"route"},
	)

	// Webhook intake
	WebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhooks_total",
			Help: "Provider webhook deliveries by outcome",
		},
		[]string{"provider", "outcome"}, // applied|duplicate|recorded|not_found|invalid|error
	)

	// Intake API
	IntakeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "intake_requests_total",
			Help: "Cash-in and cash-out creation attempts",
		},
		[]string{"kind", "result"}, // kind: pix|withdrawal
	)

	BalanceMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "balance_mutations_total",
			Help: "Ledger operations applied to available balance",
		},
		[]string{"op"}, // credit|debit|refund
	)

	ProviderFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provider_failures_total",
			Help: "Failed outbound provider calls",
		},
		[]string{"provider", "op"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "merchant_notifications_total",
			Help: "Outbound merchant notifications",
		},
		[]string{"result"}, // sent|failed|dropped
	)

	// Worker queue
	WorkerQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_queue_depth",
			Help: "Current worker queue depth",
		},
	)

	initOnce sync.Once
)

var Handler = promhttp.Handler

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPLatency,
			HTTPInFlight,
			HTTPPanics,
			WebhooksTotal,
			IntakeTotal,
			BalanceMutations,
			ProviderFailures,
			NotificationsTotal,
			WorkerQueueDepth,
		)
	})
}
