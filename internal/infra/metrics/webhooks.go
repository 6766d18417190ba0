package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(
		webhookEventsTotal,
		webhookDuplicatesTotal,
		webhookProcessingSeconds,
	)
}

var (
	webhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Webhook events by provider, type and outcome.",
		},
		[]string{"provider", "type", "outcome"},
	)

	webhookDuplicatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_duplicates_total",
			Help: "Redelivered events ignored by the idempotency gate.",
		},
		[]string{"provider"},
	)

	webhookProcessingSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "webhook_processing_seconds",
			Help:    "Webhook processing latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

func ObserveWebhook(provider, eventType, outcome string, elapsed time.Duration) {
	webhookEventsTotal.WithLabelValues(norm(provider), norm(eventType), norm(outcome)).Inc()
	webhookProcessingSeconds.WithLabelValues(norm(provider)).Observe(elapsed.Seconds())
}

func IncWebhookDuplicate(provider string) {
	webhookDuplicatesTotal.WithLabelValues(norm(provider)).Inc()
}
