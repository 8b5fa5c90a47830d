package httpapi

import (
	"errors"
	"io"
	"net/http"

	"wallet-server/internal/store"

	"github.com/gin-gonic/gin"
)

type createLnAddressRequest struct {
	WalletID    string  `json:"wallet_id"`
	Username    string  `json:"username" binding:"required"`
	AllowsNostr bool    `json:"allows_nostr"`
	NostrPubkey *string `json:"nostr_pubkey"`
}

type lnAddressResponse struct {
	ID          string  `json:"id"`
	WalletID    string  `json:"wallet_id"`
	Username    string  `json:"username"`
	Active      bool    `json:"active"`
	AllowsNostr bool    `json:"allows_nostr"`
	NostrPubkey *string `json:"nostr_pubkey,omitempty"`
}

func toLnAddressResponse(a *store.LnAddress) lnAddressResponse {
	return lnAddressResponse{
		ID:          a.ID,
		WalletID:    a.WalletID,
		Username:    a.Username,
		Active:      a.Active,
		AllowsNostr: a.AllowsNostr,
		NostrPubkey: a.NostrPubkey,
	}
}

func (h *Handler) createLnAddress(c *gin.Context) {
	var req createLnAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, invalidBody(err))
		return
	}

	walletID, err := resolveWalletID(c, req.WalletID)
	if err != nil {
		writeError(c, err)
		return
	}

	addr, err := h.wallets.CreateLnAddress(c.Request.Context(), walletID, req.Username, req.AllowsNostr, req.NostrPubkey)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLnAddressResponse(addr))
}

type depositAddressRequest struct {
	WalletID    string               `json:"wallet_id"`
	AddressType store.BtcAddressType `json:"address_type"`
}

type btcAddressResponse struct {
	ID          string               `json:"id"`
	WalletID    string               `json:"wallet_id"`
	Address     string               `json:"address"`
	AddressType store.BtcAddressType `json:"address_type"`
}

func (h *Handler) depositAddress(c *gin.Context) {
	var req depositAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(c, invalidBody(err))
		return
	}

	walletID, err := resolveWalletID(c, req.WalletID)
	if err != nil {
		writeError(c, err)
		return
	}

	addressType := req.AddressType
	if addressType == "" {
		addressType = store.AddressP2WPKH
	}

	addr, err := h.wallets.DepositAddress(c.Request.Context(), walletID, addressType)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, btcAddressResponse{
		ID:          addr.ID,
		WalletID:    addr.WalletID,
		Address:     addr.Address,
		AddressType: addr.AddressType,
	})
}

type balanceResponse struct {
	WalletID      string `json:"wallet_id"`
	ReceivedMsat  int64  `json:"received_msat"`
	SentMsat      int64  `json:"sent_msat"`
	FeesPaidMsat  int64  `json:"fees_paid_msat"`
	AvailableMsat int64  `json:"available_msat"`
}

func (h *Handler) balance(c *gin.Context) {
	walletID, err := resolveWalletID(c, c.Query("wallet_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	bal, err := h.wallets.Balance(c.Request.Context(), walletID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, balanceResponse{
		WalletID:      bal.WalletID,
		ReceivedMsat:  bal.ReceivedMsat,
		SentMsat:      bal.SentMsat,
		FeesPaidMsat:  bal.FeesPaidMsat,
		AvailableMsat: bal.AvailableMsat,
	})
}
