package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandlerServesExpositionFormat(t *testing.T) {
	m := New()
	m.ObserveHTTPRequest("GET", "/v1/invoices", http.StatusOK, 12*time.Millisecond)
	m.InvoiceIssued("BTC")
	m.InvoiceSettled("BTC")
	m.PaymentObserved("BTC", "settled", 21000, 340*time.Millisecond)
	m.ListenerReconnect("invoices")
	m.ListenerEvent("invoices")
	m.SetWalletBalance("wallet-1", 21000)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "wallet_http_requests_total")
	assert.Contains(t, body, "wallet_invoices_issued_total")
	assert.Contains(t, body, "wallet_invoices_settled_total")
	assert.Contains(t, body, "wallet_payments_total")
	assert.Contains(t, body, "wallet_listener_reconnects_total")
	assert.Contains(t, body, "wallet_listener_events_total")
	assert.Contains(t, body, "wallet_available_balance_msat")
}

func TestNewRegistersDistinctInstances(t *testing.T) {
	a := New()
	b := New()
	a.SetWalletBalance("wallet-1", 100)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	b.Handler().ServeHTTP(w, req)

	assert.NotContains(t, w.Body.String(), "wallet-1")
}
