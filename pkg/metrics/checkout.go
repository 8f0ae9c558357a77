package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	VerifyPathClient  = "client"
	VerifyPathWebhook = "webhook"
)

// CheckoutMetrics records order creation and payment reconciliation outcomes.
type CheckoutMetrics struct {
	ordersCreated     prometheus.Counter
	gatewayFailures   *prometheus.CounterVec
	orphanedOrders    prometheus.Counter
	paymentsVerified  *prometheus.CounterVec
	duplicateWebhooks prometheus.Counter
	gatewayLatency    prometheus.Histogram
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	m := &CheckoutMetrics{
		ordersCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_orders_created_total",
			Help: "Orders persisted after a successful gateway order.",
		}),
		gatewayFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_gateway_failures_total",
			Help: "Gateway order creation failures by reason.",
		}, []string{"reason"}),
		orphanedOrders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_orphaned_gateway_orders_total",
			Help: "Gateway orders created without a matching local order.",
		}),
		paymentsVerified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "checkout_payments_verified_total",
			Help: "Orders moved to PAID by verification path.",
		}, []string{"path"}),
		duplicateWebhooks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "checkout_duplicate_webhooks_total",
			Help: "Webhook deliveries dropped as redeliveries.",
		}),
		gatewayLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "checkout_gateway_request_seconds",
			Help:    "Latency of gateway order creation.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		m.ordersCreated,
		m.gatewayFailures,
		m.orphanedOrders,
		m.paymentsVerified,
		m.duplicateWebhooks,
		m.gatewayLatency,
	)
	return m
}

func (m *CheckoutMetrics) IncOrderCreated() {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.Inc()
}

// IncGatewayFailure counts a failed gateway call, e.g. "timeout" or "rejected".
func (m *CheckoutMetrics) IncGatewayFailure(reason string) {
	if m == nil || m.gatewayFailures == nil {
		return
	}
	m.gatewayFailures.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *CheckoutMetrics) IncOrphanedGatewayOrder() {
	if m == nil || m.orphanedOrders == nil {
		return
	}
	m.orphanedOrders.Inc()
}

// IncPaymentVerified counts a PENDING to PAID transition on the given path.
func (m *CheckoutMetrics) IncPaymentVerified(path string) {
	if m == nil || m.paymentsVerified == nil {
		return
	}
	m.paymentsVerified.WithLabelValues(normalizeLabel(path)).Inc()
}

func (m *CheckoutMetrics) IncDuplicateWebhook() {
	if m == nil || m.duplicateWebhooks == nil {
		return
	}
	m.duplicateWebhooks.Inc()
}

func (m *CheckoutMetrics) ObserveGatewayLatency(d time.Duration) {
	if m == nil || m.gatewayLatency == nil {
		return
	}
	m.gatewayLatency.Observe(d.Seconds())
}

func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
