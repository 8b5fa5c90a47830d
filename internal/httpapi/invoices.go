package httpapi

import (
	"net/http"
	"time"

	"wallet-server/internal/store"

	"github.com/gin-gonic/gin"
)

type createInvoiceRequest struct {
	WalletID    string `json:"wallet_id"`
	AmountMsat  int64  `json:"amount_msat"`
	Description string `json:"description"`
	ExpirySec   int64  `json:"expiry"`
}

type lnInvoiceResponse struct {
	Bolt11         string `json:"bolt11"`
	PaymentHash    string `json:"payment_hash"`
	ExpiryDuration int64  `json:"expiry"`
}

type invoiceResponse struct {
	ID                 string             `json:"id"`
	WalletID           string             `json:"wallet_id"`
	Ledger             store.Ledger       `json:"ledger"`
	Currency           string             `json:"currency"`
	AmountMsat         int64              `json:"amount_msat"`
	AmountReceivedMsat int64              `json:"amount_received_msat"`
	FeeMsat            int64              `json:"fee_msat"`
	Status             store.InvoiceStatus `json:"status"`
	Description        string             `json:"description"`
	PaymentTime        *time.Time         `json:"payment_time,omitempty"`
	ExpiresAt          time.Time          `json:"expires_at"`
	CreatedAt          time.Time          `json:"created_at"`
	LnInvoice          *lnInvoiceResponse `json:"ln_invoice,omitempty"`
}

func toInvoiceResponse(inv *store.Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:                 inv.ID,
		WalletID:           inv.WalletID,
		Ledger:             inv.Ledger,
		Currency:           inv.Currency,
		AmountMsat:         inv.AmountMsat,
		AmountReceivedMsat: inv.AmountReceivedMsat,
		FeeMsat:            inv.FeeMsat,
		Status:             inv.DerivedStatus(time.Now().UTC()),
		Description:        inv.Description,
		PaymentTime:        inv.PaymentTime,
		ExpiresAt:          inv.ExpiresAt,
		CreatedAt:          inv.CreatedAt,
	}
	if inv.LnInvoice != nil {
		resp.LnInvoice = &lnInvoiceResponse{
			Bolt11:         inv.LnInvoice.Bolt11,
			PaymentHash:    inv.LnInvoice.PaymentHash,
			ExpiryDuration: inv.LnInvoice.ExpiryDuration,
		}
	}
	return resp
}

func (h *Handler) createInvoice(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidBody(err))
		return
	}

	walletID, err := resolveWalletID(c, req.WalletID)
	if err != nil {
		writeError(c, err)
		return
	}

	var expiry time.Duration
	if req.ExpirySec > 0 {
		expiry = time.Duration(req.ExpirySec) * time.Second
	}

	inv, err := h.invoices.Invoice(c.Request.Context(), walletID, req.AmountMsat, req.Description, expiry)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) getInvoice(c *gin.Context) {
	inv, err := h.invoices.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toInvoiceResponse(inv))
}

func (h *Handler) listInvoices(c *gin.Context) {
	filter := store.InvoiceFilter{}
	if walletID := c.Query("wallet_id"); walletID != "" {
		filter.WalletID = &walletID
	} else if v, ok := c.Get(walletIDContextKey); ok {
		wid := v.(string)
		filter.WalletID = &wid
	}
	if ledger := c.Query("ledger"); ledger != "" {
		l := store.Ledger(ledger)
		filter.Ledger = &l
	}

	invoices, err := h.invoices.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	c.JSON(http.StatusOK, gin.H{"invoices": out})
}

func (h *Handler) deleteInvoice(c *gin.Context) {
	if err := h.invoices.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deleteInvoices(c *gin.Context) {
	ids := c.QueryArray("id")
	n, err := h.invoices.DeleteMany(c.Request.Context(), ids)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
