package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// GatewayMetrics records webhook and publisher loop health.
type GatewayMetrics struct {
	webhookOutcomes *prometheus.CounterVec
	reconcileTotal  *prometheus.CounterVec
	publishSuccess  prometheus.Counter
	publishFailure  prometheus.Counter
	providerLatency *prometheus.HistogramVec
}

// NewGatewayMetrics registers the gateway metrics on the provided registerer.
func NewGatewayMetrics(reg prometheus.Registerer) *GatewayMetrics {
	if reg == nil {
		return &GatewayMetrics{}
	}
	webhookOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Webhook events by type and outcome.",
	}, []string{"event", "outcome"})
	reconcileTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_total",
		Help: "Confirmation reconciliations by entry path and outcome.",
	}, []string{"path", "outcome"})
	publishSuccess := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_success",
		Help: "Successfully published outbox events.",
	})
	publishFailure := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_failure",
		Help: "Failed outbox publish attempts.",
	})
	providerLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "provider_request_seconds",
		Help:    "Duration of Flutterwave API calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(webhookOutcomes, reconcileTotal, publishSuccess, publishFailure, providerLatency)
	return &GatewayMetrics{
		webhookOutcomes: webhookOutcomes,
		reconcileTotal:  reconcileTotal,
		publishSuccess:  publishSuccess,
		publishFailure:  publishFailure,
		providerLatency: providerLatency,
	}
}

// IncWebhook increments the webhook outcome counter.
func (g *GatewayMetrics) IncWebhook(event, outcome string) {
	if g == nil || g.webhookOutcomes == nil {
		return
	}
	g.webhookOutcomes.WithLabelValues(normalizeLabel(event), normalizeLabel(outcome)).Inc()
}

// IncReconcile increments the reconciliation counter for the given entry path.
func (g *GatewayMetrics) IncReconcile(path, outcome string) {
	if g == nil || g.reconcileTotal == nil {
		return
	}
	g.reconcileTotal.WithLabelValues(normalizeLabel(path), normalizeLabel(outcome)).Inc()
}

// IncPublishSuccess increments the publisher success counter.
func (g *GatewayMetrics) IncPublishSuccess() {
	if g == nil || g.publishSuccess == nil {
		return
	}
	g.publishSuccess.Inc()
}

// IncPublishFailure increments the publisher failure counter.
func (g *GatewayMetrics) IncPublishFailure() {
	if g == nil || g.publishFailure == nil {
		return
	}
	g.publishFailure.Inc()
}

// ObserveProviderLatency records the duration of a provider API call.
func (g *GatewayMetrics) ObserveProviderLatency(operation string, duration time.Duration) {
	if g == nil || g.providerLatency == nil {
		return
	}
	g.providerLatency.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
