package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Wallet Metrics
	walletSendsTotal    *prometheus.CounterVec
	walletDepositsTotal *prometheus.CounterVec
	walletVolumeTotal   *prometheus.CounterVec
	walletBalance       *prometheus.GaugeVec
	noticesPostedTotal  *prometheus.CounterVec

	// Payment Metrics
	paymentAttemptsTotal  *prometheus.CounterVec
	paymentDuration       *prometheus.HistogramVec
	paymentsAbandoned     prometheus.Counter
	paymentActivityErrors *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections prometheus.Gauge
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		walletSendsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_sends_total",
				Help: "Total number of send attempts by outcome",
			},
			[]string{"outcome"},
		),
		walletDepositsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_deposits_total",
				Help: "Total number of deposits applied by payment method",
			},
			[]string{"method"},
		),
		walletVolumeTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_volume_total",
				Help: "Sum of transaction amounts in the unit of account, by transaction type",
			},
			[]string{"type"},
		),
		walletBalance: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "wallet_balance",
				Help: "Current wallet balance in the unit of account",
			},
			[]string{"wallet_id"},
		),
		noticesPostedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "wallet_notices_posted_total",
				Help: "Total number of notices posted by kind",
			},
			[]string{"kind"},
		),

		paymentAttemptsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_attempts_total",
				Help: "Total number of card payment round trips by runner, outcome and final stage",
			},
			[]string{"runner", "outcome", "stage"},
		),
		paymentDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "payment_duration_seconds",
				Help:    "Duration of card payment round trips in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0},
			},
			[]string{"runner", "outcome"},
		),
		paymentsAbandoned: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "payments_abandoned_total",
				Help: "Total number of payment results dropped because the add-money panel was closed",
			},
		),
		paymentActivityErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "payment_activity_errors_total",
				Help: "Total number of payment workflow activity errors by activity",
			},
			[]string{"activity"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"event_type"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of messages published to NATS",
			},
			[]string{"status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
			},
			[]string{"status"},
		),
	}
}

// Wallet metric helpers

// RecordSend records the outcome of a send attempt.
func (m *Metrics) RecordSend(outcome string) {
	m.walletSendsTotal.WithLabelValues(outcome).Inc()
}

// RecordDeposit records an applied deposit.
func (m *Metrics) RecordDeposit(method string) {
	m.walletDepositsTotal.WithLabelValues(method).Inc()
}

// RecordVolume adds a transaction amount to the running volume.
func (m *Metrics) RecordVolume(txnType string, amount float64) {
	m.walletVolumeTotal.WithLabelValues(txnType).Add(amount)
}

// SetBalance records the current balance of a wallet.
func (m *Metrics) SetBalance(walletID string, balance float64) {
	m.walletBalance.WithLabelValues(walletID).Set(balance)
}

// RecordNotice records a posted notice.
func (m *Metrics) RecordNotice(kind string) {
	m.noticesPostedTotal.WithLabelValues(kind).Inc()
}

// Payment metric helpers

// RecordPaymentAttempt records one payment round trip.
func (m *Metrics) RecordPaymentAttempt(runner, outcome, stage string, duration float64) {
	m.paymentAttemptsTotal.WithLabelValues(runner, outcome, stage).Inc()
	m.paymentDuration.WithLabelValues(runner, outcome).Observe(duration)
}

// RecordPaymentAbandoned records a payment result dropped after the panel closed.
func (m *Metrics) RecordPaymentAbandoned() {
	m.paymentsAbandoned.Inc()
}

// RecordActivityError records a failed payment workflow activity.
func (m *Metrics) RecordActivityError(activity string) {
	m.paymentActivityErrors.WithLabelValues(activity).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration and status.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records an SSE connection opening (+1) or closing (-1).
func (m *Metrics) RecordSSEConnectionChange(delta float64) {
	m.sseActiveConnections.Add(delta)
}

// RecordSSEEventSent records an SSE event sent to a client.
func (m *Metrics) RecordSSEEventSent(eventType string) {
	m.sseEventsSent.WithLabelValues(eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(status).Inc()
	m.natsPublishDuration.WithLabelValues(status).Observe(duration)
}

// Helper functions

// statusCodeToString converts an HTTP status code to its class, e.g. "2xx".
func statusCodeToString(code int) string {
	if code < 100 || code > 599 {
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code/100) + "xx"
}
