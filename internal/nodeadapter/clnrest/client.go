// Package clnrest adapts Core Lightning's REST plugin (CLNRest) to the
// nodeadapter.Client contract. Request/response calls go over plain HTTP
// with the operator-issued rune as a bearer credential; the long-lived
// subscription feeds use CLNRest's websocket notification stream instead
// of polling, grounded on
// original_source/src/infra/lightning/cln/websocket_listener.rs.
package clnrest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"wallet-server/internal/engineerr"
	"wallet-server/internal/nodeadapter"
	"wallet-server/pkg/logger"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Config mirrors config.EngineConfig.ClnRest.
type Config struct {
	BaseURL string
	Rune    string
}

type Client struct {
	cfg    Config
	http   *http.Client
	dialer *websocket.Dialer
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, engineerr.NewValidation("cln rest base_url is required")
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		dialer: websocket.DefaultDialer,
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal cln-rest request: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build cln-rest request: %w", err)
	}
	req.Header.Set("Rune", c.cfg.Rune)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return engineerr.NewLightning("Connect", "cln-rest request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return engineerr.NewLightning("Connect", fmt.Sprintf("cln-rest returned %d: %s", resp.StatusCode, respBody), nil)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode cln-rest response: %w", err)
		}
	}
	return nil
}

func (c *Client) Invoice(ctx context.Context, amountMsat int64, description, label string, expiry time.Duration, descHashOnly bool) (*nodeadapter.Invoice, error) {
	var resp struct {
		Bolt11      string `json:"bolt11"`
		PaymentHash string `json:"payment_hash"`
		ExpiresAt   int64  `json:"expires_at"`
	}
	req := map[string]any{
		"amount_msat": amountMsat,
		"label":       label,
		"description": description,
		"expiry":      int64(expiry.Seconds()),
	}
	if err := c.do(ctx, http.MethodPost, "/v1/invoice", req, &resp); err != nil {
		return nil, err
	}
	return &nodeadapter.Invoice{
		Bolt11:         resp.Bolt11,
		PaymentHash:    resp.PaymentHash,
		AmountMsat:     amountMsat,
		ExpiryDuration: int64(expiry.Seconds()),
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func (c *Client) Pay(ctx context.Context, bolt11 string, amountMsat int64, label string) (*nodeadapter.Payment, error) {
	var resp struct {
		PaymentHash     string `json:"payment_hash"`
		PaymentPreimage string `json:"payment_preimage"`
		Status          string `json:"status"`
		AmountSentMsat  int64  `json:"amount_sent_msat"`
		AmountMsat      int64  `json:"amount_msat"`
	}
	req := map[string]any{"bolt11": bolt11, "label": label}
	if amountMsat > 0 {
		req["amount_msat"] = amountMsat
	}
	if err := c.do(ctx, http.MethodPost, "/v1/pay", req, &resp); err != nil {
		return nil, engineerr.NewLightning("Pay", "cln-rest pay failed", err)
	}

	p := &nodeadapter.Payment{PaymentHash: resp.PaymentHash, PaymentPreimage: resp.PaymentPreimage}
	if resp.Status == "complete" {
		p.Settled = true
		p.FeeMsat = resp.AmountSentMsat - resp.AmountMsat
		p.SettledAt = time.Now().UTC()
	} else {
		p.Failed = true
		p.FailureReason = resp.Status
	}
	return p, nil
}

func (c *Client) InvoiceByHash(ctx context.Context, paymentHash string) (*nodeadapter.Invoice, error) {
	var resp struct {
		Invoices []struct {
			Bolt11      string `json:"bolt11"`
			PaymentHash string `json:"payment_hash"`
			Status      string `json:"status"`
			AmountMsat  int64  `json:"amount_msat"`
			PaidAtMsat  int64  `json:"amount_received_msat"`
			PaidAt      int64  `json:"paid_at"`
		} `json:"invoices"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/invoice/listByHash/"+paymentHash, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Invoices) == 0 {
		return nil, engineerr.NewNotFound(fmt.Sprintf("no cln invoice for hash %s", paymentHash))
	}
	inv := resp.Invoices[0]
	return &nodeadapter.Invoice{
		Bolt11:         inv.Bolt11,
		PaymentHash:    inv.PaymentHash,
		AmountMsat:     inv.AmountMsat,
		Settled:        inv.Status == "paid",
		AmountPaidMsat: inv.PaidAtMsat,
		SettledAt:      time.Unix(inv.PaidAt, 0).UTC(),
	}, nil
}

func (c *Client) PaymentByHash(ctx context.Context, paymentHash string) (*nodeadapter.Payment, error) {
	var resp struct {
		Payments []struct {
			Status          string `json:"status"`
			PaymentPreimage string `json:"payment_preimage"`
			AmountSentMsat  int64  `json:"amount_sent_msat"`
			AmountMsat      int64  `json:"amount_msat"`
		} `json:"payments"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/pay/listByHash/"+paymentHash, nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.Payments) == 0 {
		return nil, engineerr.NewNotFound(fmt.Sprintf("no cln payment for hash %s", paymentHash))
	}
	p := resp.Payments[0]
	out := &nodeadapter.Payment{PaymentHash: paymentHash, PaymentPreimage: p.PaymentPreimage}
	if p.Status == "complete" {
		out.Settled = true
		out.FeeMsat = p.AmountSentMsat - p.AmountMsat
	} else if p.Status == "failed" {
		out.Failed = true
	}
	return out, nil
}

func (c *Client) Health(ctx context.Context) (*nodeadapter.HealthStatus, error) {
	var resp struct {
		WarningLightningdSync bool   `json:"warning_lightningd_sync"`
		ID                    string `json:"id"`
		Alias                 string `json:"alias"`
		BlockHeight           uint32 `json:"blockheight"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/getinfo", nil, &resp); err != nil {
		return nil, engineerr.NewLightning("HealthCheck", "cln-rest getinfo failed", err)
	}
	return &nodeadapter.HealthStatus{
		Synced:      !resp.WarningLightningdSync,
		BlockHeight: resp.BlockHeight,
		Alias:       resp.Alias,
		PubKey:      resp.ID,
	}, nil
}

// wsURL rewrites the configured http(s) base URL to its ws(s) equivalent,
// since CLNRest serves its notification stream on the same host.
func (c *Client) wsURL(path string) string {
	url := strings.Replace(c.cfg.BaseURL, "https://", "wss://", 1)
	url = strings.Replace(url, "http://", "ws://", 1)
	return url + path
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Rune", c.cfg.Rune)
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL("/v1/notifications"), header)
	if err != nil {
		return nil, engineerr.NewLightning("Connect", "cln-rest notification websocket dial failed", err)
	}
	return conn, nil
}

func parseMsatField(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSuffix(s, "msat"), 10, 64)
	return n
}

// SubscribeInvoices streams CLNRest's invoice_payment notification, which
// fires once per settled invoice.
func (c *Client) SubscribeInvoices(ctx context.Context) (<-chan nodeadapter.InvoiceEvent, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan nodeadapter.InvoiceEvent)
	go func() {
		defer close(ch)
		defer conn.Close()
		for {
			var raw struct {
				InvoicePayment *struct {
					Label        string `json:"label"`
					PaymentHash  string `json:"payment_hash"`
					MsatReceived string `json:"msat"`
				} `json:"invoice_payment"`
			}
			if err := conn.ReadJSON(&raw); err != nil {
				logger.Warn("cln-rest invoice notification stream closed", zap.Error(err))
				return
			}
			if raw.InvoicePayment == nil {
				continue
			}
			event := nodeadapter.InvoiceEvent{
				PaymentHash:        raw.InvoicePayment.PaymentHash,
				AmountReceivedMsat: parseMsatField(raw.InvoicePayment.MsatReceived),
				SettledAt:          time.Now().UTC(),
			}
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// SubscribePayments streams sendpay_success/sendpay_failure notifications
// for outbound Lightning payments this node dispatched.
func (c *Client) SubscribePayments(ctx context.Context) (<-chan nodeadapter.PaymentEvent, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan nodeadapter.PaymentEvent)
	go func() {
		defer close(ch)
		defer conn.Close()
		for {
			var raw struct {
				SendpaySuccess *struct {
					PaymentHash     string `json:"payment_hash"`
					PaymentPreimage string `json:"payment_preimage"`
					AmountSentMsat  string `json:"amount_sent_msat"`
					AmountMsat      string `json:"amount_msat"`
				} `json:"sendpay_success"`
				SendpayFailure *struct {
					PaymentHash string `json:"payment_hash"`
					Message     string `json:"message"`
				} `json:"sendpay_failure"`
			}
			if err := conn.ReadJSON(&raw); err != nil {
				logger.Warn("cln-rest payment notification stream closed", zap.Error(err))
				return
			}

			var event nodeadapter.PaymentEvent
			switch {
			case raw.SendpaySuccess != nil:
				event = nodeadapter.PaymentEvent{
					PaymentHash: raw.SendpaySuccess.PaymentHash,
					Preimage:    raw.SendpaySuccess.PaymentPreimage,
					FeeMsat:     parseMsatField(raw.SendpaySuccess.AmountSentMsat) - parseMsatField(raw.SendpaySuccess.AmountMsat),
					SettledAt:   time.Now().UTC(),
				}
			case raw.SendpayFailure != nil:
				event = nodeadapter.PaymentEvent{
					PaymentHash: raw.SendpayFailure.PaymentHash,
					Failed:      true,
					Reason:      raw.SendpayFailure.Message,
				}
			default:
				continue
			}
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// SubscribeOnchainTx streams coin_movement notifications of type "deposit",
// CLNRest's on-chain receive event.
func (c *Client) SubscribeOnchainTx(ctx context.Context) (<-chan nodeadapter.OnchainEvent, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan nodeadapter.OnchainEvent)
	go func() {
		defer close(ch)
		defer conn.Close()
		for {
			var raw struct {
				CoinMovement *struct {
					Type        string `json:"type"`
					Txid        string `json:"txid"`
					OutputIndex int64  `json:"outnum"`
					Address     string `json:"address"`
					CreditMsat  string `json:"credit_msat"`
					BlockHeight int64  `json:"blockheight"`
				} `json:"coin_movement"`
			}
			if err := conn.ReadJSON(&raw); err != nil {
				logger.Warn("cln-rest onchain notification stream closed", zap.Error(err))
				return
			}
			if raw.CoinMovement == nil || raw.CoinMovement.Type != "deposit" {
				continue
			}
			event := nodeadapter.OnchainEvent{
				Txid:        raw.CoinMovement.Txid,
				OutputIndex: raw.CoinMovement.OutputIndex,
				Address:     raw.CoinMovement.Address,
				AmountSat:   parseMsatField(raw.CoinMovement.CreditMsat) / 1000,
				BlockHeight: raw.CoinMovement.BlockHeight,
			}
			select {
			case ch <- event:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (c *Client) Close() error { return nil }
