package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "artisan"

// Outcome labels shared by the purchase lifecycle counters.
const (
	OutcomeProcessed      = "processed"
	OutcomeDuplicate      = "duplicate"
	OutcomeIgnored        = "ignored"
	OutcomeRejected       = "rejected"
	OutcomeFailed         = "failed"
	OutcomeRefunded       = "refunded"
	OutcomeAlreadyDone    = "already_refunded"
	OutcomeProviderError  = "provider_error"
	OutcomeConfirmed      = "confirmed"
	OutcomeDelayed        = "delayed"
	OutcomeCanceled       = "canceled"
	OutcomeUnknownPayment = "unknown_payment_intent"
)

// PurchaseMetrics records reconciliation, refund and verification activity.
// A nil receiver or a zero value is a no-op.
type PurchaseMetrics struct {
	webhookEvents    *prometheus.CounterVec
	purchasesCreated prometheus.Counter
	refunds          *prometheus.CounterVec
	verifications    *prometheus.CounterVec
	verifyAttempts   prometheus.Histogram
	providerLatency  *prometheus.HistogramVec
}

// NewPurchaseMetrics registers the purchase metrics on the provided registerer.
func NewPurchaseMetrics(reg prometheus.Registerer) *PurchaseMetrics {
	if reg == nil {
		return &PurchaseMetrics{}
	}
	m := &PurchaseMetrics{
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Payment webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		purchasesCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_created_total",
			Help:      "Purchases recorded from completed checkout sessions.",
		}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refunds_total",
			Help:      "Refund transitions by source and outcome.",
		}, []string{"source", "outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_verifications_total",
			Help:      "Client checkout verification polls by outcome.",
		}, []string{"outcome"}),
		verifyAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_verification_attempts",
			Help:      "Lookups needed before a verification poll finished.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8, 13},
		}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "payment_provider_request_seconds",
			Help:      "Latency of payment provider calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "result"}),
	}
	reg.MustRegister(m.webhookEvents, m.purchasesCreated, m.refunds, m.verifications, m.verifyAttempts, m.providerLatency)
	return m
}

func (m *PurchaseMetrics) WebhookEvent(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

func (m *PurchaseMetrics) PurchaseCreated() {
	if m == nil || m.purchasesCreated == nil {
		return
	}
	m.purchasesCreated.Inc()
}

// Refund counts a refund outcome; source is "user" or "webhook".
func (m *PurchaseMetrics) Refund(source, outcome string) {
	if m == nil || m.refunds == nil {
		return
	}
	m.refunds.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

func (m *PurchaseMetrics) Verification(outcome string, attempts int) {
	if m == nil || m.verifications == nil {
		return
	}
	m.verifications.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.verifyAttempts.Observe(float64(attempts))
}

// ObserveProvider records the latency of a payment provider call.
func (m *PurchaseMetrics) ObserveProvider(operation string, started time.Time, err error) {
	if m == nil || m.providerLatency == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.providerLatency.WithLabelValues(normalizeLabel(operation), result).Observe(time.Since(started).Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
