package httpapi

import (
	"net/http"
	"time"

	"wallet-server/internal/store"

	"github.com/gin-gonic/gin"
)

type createPaymentRequest struct {
	WalletID   string `json:"wallet_id"`
	Input      string `json:"input" binding:"required"`
	AmountMsat *int64 `json:"amount_msat"`
	Comment    string `json:"comment"`
}

type paymentResponse struct {
	ID          string              `json:"id"`
	WalletID    string              `json:"wallet_id"`
	Ledger      store.Ledger        `json:"ledger"`
	Currency    string              `json:"currency"`
	AmountMsat  int64               `json:"amount_msat"`
	FeeMsat     int64               `json:"fee_msat"`
	Status      store.PaymentStatus `json:"status"`
	Description string              `json:"description"`
	PaymentTime *time.Time          `json:"payment_time,omitempty"`
	Error       *string             `json:"error,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`

	PaymentHash        *string             `json:"payment_hash,omitempty"`
	DestinationAddress *string             `json:"destination_address,omitempty"`
	Txid               *string             `json:"txid,omitempty"`
	SuccessAction      *store.SuccessAction `json:"success_action,omitempty"`
}

func toPaymentResponse(p *store.Payment) paymentResponse {
	resp := paymentResponse{
		ID:          p.ID,
		WalletID:    p.WalletID,
		Ledger:      p.Ledger,
		Currency:    p.Currency,
		AmountMsat:  p.AmountMsat,
		FeeMsat:     p.FeeMsat,
		Status:      p.Status,
		Description: p.Description,
		PaymentTime: p.PaymentTime,
		Error:       p.Error,
		CreatedAt:   p.CreatedAt,
	}
	if p.Lightning != nil {
		resp.PaymentHash = p.Lightning.PaymentHash
		resp.SuccessAction = p.Lightning.SuccessAction
	}
	if p.Bitcoin != nil {
		resp.DestinationAddress = &p.Bitcoin.DestinationAddress
		resp.Txid = p.Bitcoin.Txid
	}
	return resp
}

func (h *Handler) createPayment(c *gin.Context) {
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidBody(err))
		return
	}

	walletID, err := resolveWalletID(c, req.WalletID)
	if err != nil {
		writeError(c, err)
		return
	}

	payment, err := h.payments.Pay(c.Request.Context(), walletID, req.Input, req.AmountMsat, req.Comment)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(payment))
}

func (h *Handler) getPayment(c *gin.Context) {
	p, err := h.payments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toPaymentResponse(p))
}

func (h *Handler) listPayments(c *gin.Context) {
	filter := store.PaymentFilter{}
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

	payments, err := h.payments.List(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err)
		return
	}

	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	c.JSON(http.StatusOK, gin.H{"payments": out})
}

func (h *Handler) deletePayment(c *gin.Context) {
	if err := h.payments.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) deletePayments(c *gin.Context) {
	ids := c.QueryArray("id")
	n, err := h.payments.DeleteMany(c.Request.Context(), ids)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
