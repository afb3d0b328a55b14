package common

import "github.com/prometheus/client_golang/prometheus"

var (
	PayoutOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prizeloop",
		Name:      "payout_outcomes_total",
		Help:      "Terminal payout outcomes by type and status.",
	}, []string{"type", "status"})

	WebhookDeliveryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prizeloop",
		Name:      "webhook_deliveries_total",
		Help:      "Inbound webhook deliveries by event type and result.",
	}, []string{"event_type", "result"})

	WebhookRetryCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prizeloop",
		Name:      "webhook_retries_total",
		Help:      "Webhook handler retries scheduled by event type.",
	}, []string{"event_type"})

	EscrowHaltCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "prizeloop",
		Name:      "escrow_halts_total",
		Help:      "Escrow accounts halted on a consistency violation.",
	}, []string{"giveaway_id"})

	DrawLatencyHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "prizeloop",
		Name:      "draw_duration_seconds",
		Help:      "Wall time of the snapshot-and-select close path.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"result"})
)

var PromCounters = []*prometheus.CounterVec{
	PayoutOutcomeCounter,
	WebhookDeliveryCounter,
	WebhookRetryCounter,
	EscrowHaltCounter,
}

var PromHistograms = []*prometheus.HistogramVec{
	DrawLatencyHistogram,
}
