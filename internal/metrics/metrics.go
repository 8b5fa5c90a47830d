// Package metrics exposes the engine's Prometheus instrumentation, the
// way the teacher's accounts-service wires promauto counters/histograms
// behind a registry and a Handler() (DimaJoyti-go-coffee
// accounts-service/internal/metrics, SPEC_FULL.md §11). Labels name
// wallet-domain events instead of generic HTTP/DB/Kafka ones.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	invoicesIssuedTotal  *prometheus.CounterVec
	invoicesSettledTotal *prometheus.CounterVec

	paymentsTotal       *prometheus.CounterVec
	paymentAmountMsat   *prometheus.HistogramVec
	paymentLatency      *prometheus.HistogramVec

	listenerReconnectsTotal *prometheus.CounterVec
	listenerEventsTotal     *prometheus.CounterVec

	walletBalanceMsat *prometheus.GaugeVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	f := promauto.With(registry)

	return &Metrics{
		registry: registry,

		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_http_requests_total",
			Help: "Total number of HTTP requests served by the engine.",
		}, []string{"method", "path", "status"}),

		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wallet_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),

		invoicesIssuedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_invoices_issued_total",
			Help: "Total number of invoices issued, by ledger.",
		}, []string{"ledger"}),

		invoicesSettledTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_invoices_settled_total",
			Help: "Total number of invoices settled, by ledger.",
		}, []string{"ledger"}),

		paymentsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_payments_total",
			Help: "Total number of outbound payments, by ledger and outcome.",
		}, []string{"ledger", "status"}),

		paymentAmountMsat: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wallet_payment_amount_msat",
			Help:    "Distribution of outbound payment amounts in millisatoshi.",
			Buckets: prometheus.ExponentialBuckets(1000, 4, 12),
		}, []string{"ledger"}),

		paymentLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wallet_payment_settlement_seconds",
			Help:    "Time from payment admission to terminal status.",
			Buckets: prometheus.DefBuckets,
		}, []string{"ledger", "status"}),

		listenerReconnectsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_listener_reconnects_total",
			Help: "Total number of node subscription stream reconnects.",
		}, []string{"stream"}),

		listenerEventsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "wallet_listener_events_total",
			Help: "Total number of node events consumed from subscription streams.",
		}, []string{"stream"}),

		walletBalanceMsat: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wallet_available_balance_msat",
			Help: "Most recently computed available balance for a wallet.",
		}, []string{"wallet_id"}),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, path, http.StatusText(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func (m *Metrics) InvoiceIssued(ledger string) {
	m.invoicesIssuedTotal.WithLabelValues(ledger).Inc()
}

func (m *Metrics) InvoiceSettled(ledger string) {
	m.invoicesSettledTotal.WithLabelValues(ledger).Inc()
}

func (m *Metrics) PaymentObserved(ledger, status string, amountMsat int64, latency time.Duration) {
	m.paymentsTotal.WithLabelValues(ledger, status).Inc()
	m.paymentAmountMsat.WithLabelValues(ledger).Observe(float64(amountMsat))
	m.paymentLatency.WithLabelValues(ledger, status).Observe(latency.Seconds())
}

func (m *Metrics) ListenerReconnect(stream string) {
	m.listenerReconnectsTotal.WithLabelValues(stream).Inc()
}

func (m *Metrics) ListenerEvent(stream string) {
	m.listenerEventsTotal.WithLabelValues(stream).Inc()
}

func (m *Metrics) SetWalletBalance(walletID string, availableMsat int64) {
	m.walletBalanceMsat.WithLabelValues(walletID).Set(float64(availableMsat))
}
