// Package httpapi is the thin JSON HTTP surface over the transaction
// engine (spec.md §6): routing and DTO shaping only, no business logic.
// Every handler delegates to a service and maps its *engineerr.Error to
// a status code in one place (spec.md §7), the way the teacher's
// handler.go keeps sendError/sendSuccess as the sole response path
// (DimaJoyti-go-coffee object-detection transport/http/handlers).
package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"wallet-server/internal/apikey"
	"wallet-server/internal/engineerr"
	"wallet-server/internal/invoicesvc"
	"wallet-server/internal/jwks"
	"wallet-server/internal/lnurl"
	"wallet-server/internal/metrics"
	"wallet-server/internal/paymentsvc"
	"wallet-server/internal/walletsvc"
	"wallet-server/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type Handler struct {
	wallets  *walletsvc.Service
	invoices *invoicesvc.Service
	payments *paymentsvc.Service
	apikeys  *apikey.Service
	lnurl    *lnurl.Service
	jwks     *jwks.Service
	metrics  *metrics.Metrics
}

func NewHandler(
	wallets *walletsvc.Service,
	invoices *invoicesvc.Service,
	payments *paymentsvc.Service,
	apikeys *apikey.Service,
	lnurlSvc *lnurl.Service,
	jwksSvc *jwks.Service,
	m *metrics.Metrics,
) *Handler {
	return &Handler{wallets: wallets, invoices: invoices, payments: payments, apikeys: apikeys, lnurl: lnurlSvc, jwks: jwksSvc, metrics: m}
}

// NewRouter builds the full gin.Engine: public LNURL routes, a health
// check, and the bearer-authenticated /v1 surface.
func (h *Handler) NewRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), h.accessLog)

	router.GET("/healthz", h.health)
	if h.metrics != nil {
		router.GET("/metrics", gin.WrapH(h.metrics.Handler()))
	}

	router.GET("/.well-known/lnurlp/:username", h.lnurlWellKnown)
	router.GET("/api/lnurlp/:username/callback", h.lnurlCallback)

	v1 := router.Group("/v1")
	if h.jwks != nil {
		v1.Use(h.authenticate)
	}
	{
		v1.POST("/invoices", h.createInvoice)
		v1.GET("/invoices", h.listInvoices)
		v1.GET("/invoices/:id", h.getInvoice)
		v1.DELETE("/invoices/:id", h.deleteInvoice)
		v1.DELETE("/invoices", h.deleteInvoices)

		v1.POST("/payments", h.createPayment)
		v1.GET("/payments", h.listPayments)
		v1.GET("/payments/:id", h.getPayment)
		v1.DELETE("/payments/:id", h.deletePayment)
		v1.DELETE("/payments", h.deletePayments)

		v1.POST("/lightning-addresses", h.createLnAddress)
		v1.POST("/me/bitcoin/address", h.depositAddress)
		v1.GET("/me/balance", h.balance)

		v1.POST("/api-keys", h.createApiKey)
		v1.GET("/api-keys", h.listApiKeys)
		v1.DELETE("/api-keys/:id", h.revokeApiKey)
	}
	return router
}

func (h *Handler) accessLog(c *gin.Context) {
	start := time.Now()
	c.Next()
	latency := time.Since(start)
	logger.Info("http request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("latency", latency),
	)
	if h.metrics != nil {
		h.metrics.ObserveHTTPRequest(c.Request.Method, c.FullPath(), c.Writer.Status(), latency)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

const (
	walletIDContextKey = "wallet_id"
	userIDContextKey   = "user_id"
)

// authenticate verifies the bearer token's signature against the JWKS
// snapshot and resolves (creating if necessary) the wallet owned by the
// token subject. It does not check scopes or audience — that remains
// the external auth collaborator's job (spec.md §6, SPEC_FULL.md §11).
func (h *Handler) authenticate(c *gin.Context) {
	header := c.GetHeader("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		writeError(c, engineerr.NewAuthentication("missing bearer token"))
		c.Abort()
		return
	}
	raw := strings.TrimPrefix(header, prefix)

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, h.jwks.Keyfunc)
	if err != nil || !token.Valid {
		writeError(c, engineerr.NewAuthentication("invalid bearer token"))
		c.Abort()
		return
	}

	subject, _ := claims["sub"].(string)
	if subject == "" {
		writeError(c, engineerr.NewAuthentication("token missing sub claim"))
		c.Abort()
		return
	}

	wallet, err := h.wallets.Create(c.Request.Context(), subject)
	if err != nil {
		writeError(c, err)
		c.Abort()
		return
	}
	c.Set(walletIDContextKey, wallet.ID)
	c.Set(userIDContextKey, subject)
	c.Next()
}

func userIDFromContext(c *gin.Context) (string, error) {
	v, ok := c.Get(userIDContextKey)
	if !ok {
		return "", engineerr.NewAuthentication("no authenticated user on request")
	}
	return v.(string), nil
}

// resolveWalletID prefers an explicit wallet_id from the request body
// (spec.md §6 "wallet_id?") and falls back to the authenticated
// subject's wallet.
func resolveWalletID(c *gin.Context, explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if v, ok := c.Get(walletIDContextKey); ok {
		return v.(string), nil
	}
	return "", engineerr.NewValidation("wallet_id is required")
}

// invalidBody wraps a JSON-binding error as a Validation error so it
// flows through the same status-code mapping as every other failure.
func invalidBody(err error) error {
	return engineerr.NewValidation(err.Error())
}

func writeError(c *gin.Context, err error) {
	kind, ok := engineerr.KindOf(err)
	if !ok {
		logger.Error("unmapped error reached http layer", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"status": http.StatusInternalServerError, "reason": "internal error"})
		return
	}

	status := statusFor(err, kind)
	c.JSON(status, gin.H{"status": status, "reason": err.Error()})
}

// statusFor realizes spec.md §7's Kind → status-code table.
func statusFor(err error, kind engineerr.Kind) int {
	switch kind {
	case engineerr.Validation, engineerr.InsufficientFunds:
		return http.StatusUnprocessableEntity
	case engineerr.NotFound:
		return http.StatusNotFound
	case engineerr.Conflict:
		return http.StatusConflict
	case engineerr.Authentication:
		return http.StatusUnauthorized
	case engineerr.Authorization:
		return http.StatusForbidden
	case engineerr.Lightning, engineerr.Bitcoin:
		var e *engineerr.Error
		if errors.As(err, &e) && engineerr.UserAttributable(e.Sub) {
			return http.StatusUnprocessableEntity
		}
		return http.StatusInternalServerError
	default: // Inconsistency, Database
		return http.StatusInternalServerError
	}
}
