package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"wallet-server/internal/engineerr"
	"wallet-server/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealthCheck(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, nil, nil, nil)
	router := h.NewRouter()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpointOnlyMountedWhenConfigured(t *testing.T) {
	without := NewHandler(nil, nil, nil, nil, nil, nil, nil).NewRouter()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	without.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	with := NewHandler(nil, nil, nil, nil, nil, nil, metrics.New()).NewRouter()
	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w = httptest.NewRecorder()
	with.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCreateInvoiceRequiresWalletIDWhenUnauthenticated(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, nil, nil, nil)
	router := h.NewRouter()

	body, _ := json.Marshal(createInvoiceRequest{AmountMsat: 1000})
	req := httptest.NewRequest(http.MethodPost, "/v1/invoices", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestCreatePaymentRejectsMissingInput(t *testing.T) {
	h := NewHandler(nil, nil, nil, nil, nil, nil, nil)
	router := h.NewRouter()

	body, _ := json.Marshal(createPaymentRequest{WalletID: "wallet-1"})
	req := httptest.NewRequest(http.MethodPost, "/v1/payments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestStatusForMapsEngineErrorKinds(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", engineerr.NewValidation("bad input"), http.StatusUnprocessableEntity},
		{"insufficient funds", engineerr.NewInsufficientFunds(5000), http.StatusUnprocessableEntity},
		{"not found", engineerr.NewNotFound("no such invoice"), http.StatusNotFound},
		{"conflict", engineerr.NewConflict("already settled"), http.StatusConflict},
		{"authentication", engineerr.NewAuthentication("bad token"), http.StatusUnauthorized},
		{"authorization", engineerr.NewAuthorization("not your wallet"), http.StatusForbidden},
		{"lightning user-attributable", engineerr.NewLightning("Pay", "no route", nil), http.StatusUnprocessableEntity},
		{"lightning operational", engineerr.NewLightning("HealthCheck", "node down", nil), http.StatusInternalServerError},
		{"bitcoin user-attributable", engineerr.NewBitcoin("address", "invalid address", nil), http.StatusUnprocessableEntity},
		{"bitcoin operational", engineerr.NewBitcoin("other", "rpc failure", nil), http.StatusInternalServerError},
		{"inconsistency", engineerr.NewInconsistency("ledger mismatch"), http.StatusInternalServerError},
		{"database", engineerr.NewDatabase("query", "timeout", nil), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, ok := engineerr.KindOf(tc.err)
			require.True(t, ok)
			assert.Equal(t, tc.want, statusFor(tc.err, kind))
		})
	}
}
