package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records payment intent and confirmation outcomes.
type CheckoutMetrics struct {
	intents         *prometheus.CounterVec
	confirmations   *prometheus.CounterVec
	gatewayDuration *prometheus.HistogramVec
	orderTotal      prometheus.Histogram
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	intents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_payment_intents_total",
		Help: "Payment intent creation attempts by outcome.",
	}, []string{"outcome"})
	confirmations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_confirmations_total",
		Help: "Payment confirmations by outcome.",
	}, []string{"outcome"})
	gatewayDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "checkout_gateway_duration_seconds",
		Help:    "Latency of payment gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	orderTotal := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "checkout_order_total_dollars",
		Help:    "Order totals at confirmation.",
		Buckets: []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
	})
	reg.MustRegister(intents, confirmations, gatewayDuration, orderTotal)
	return &CheckoutMetrics{
		intents:         intents,
		confirmations:   confirmations,
		gatewayDuration: gatewayDuration,
		orderTotal:      orderTotal,
	}
}

// IncIntent counts a payment intent creation outcome.
func (m *CheckoutMetrics) IncIntent(outcome string) {
	if m == nil || m.intents == nil {
		return
	}
	m.intents.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncConfirmation counts a confirmation outcome.
func (m *CheckoutMetrics) IncConfirmation(outcome string) {
	if m == nil || m.confirmations == nil {
		return
	}
	m.confirmations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveGateway records how long a gateway operation took.
func (m *CheckoutMetrics) ObserveGateway(operation string, duration time.Duration) {
	if m == nil || m.gatewayDuration == nil {
		return
	}
	m.gatewayDuration.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

func (m *CheckoutMetrics) ObserveOrderTotal(total float64) {
	if m == nil || m.orderTotal == nil {
		return
	}
	m.orderTotal.Observe(total)
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
