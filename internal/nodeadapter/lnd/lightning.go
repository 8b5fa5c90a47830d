package lnd

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"wallet-server/internal/engineerr"
	"wallet-server/internal/nodeadapter"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
)

// Invoice mints a new BOLT-11 via lnrpc.AddInvoice. label becomes the
// invoice memo when no description is given, so operators can still spot
// the engine's own invoice id in lncli listinvoices output.
func (c *Client) Invoice(ctx context.Context, amountMsat int64, description, label string, expiry time.Duration, descHashOnly bool) (*nodeadapter.Invoice, error) {
	req := &lnrpc.Invoice{
		ValueMsat: amountMsat,
		Memo:      description,
		Expiry:    int64(expiry.Seconds()),
	}
	if description == "" {
		req.Memo = label
	}
	if descHashOnly {
		req.DescriptionHash = []byte(description)
		req.Memo = ""
	}

	resp, err := c.lnClient.AddInvoice(ctx, req)
	if err != nil {
		return nil, engineerr.NewLightning("Invoice", "failed to create invoice", err)
	}

	return &nodeadapter.Invoice{
		Bolt11:         resp.PaymentRequest,
		PaymentHash:    hex.EncodeToString(resp.RHash),
		AmountMsat:     amountMsat,
		ExpiryDuration: int64(expiry.Seconds()),
		CreatedAt:      time.Now().UTC(),
	}, nil
}

// Pay dispatches the payment via the router sub-server's streaming
// SendPaymentV2, reading updates until a terminal state is reached
// (spec.md §4.3.5 Completion).
func (c *Client) Pay(ctx context.Context, bolt11 string, amountMsat int64, label string) (*nodeadapter.Payment, error) {
	req := &routerrpc.SendPaymentRequest{
		PaymentRequest: bolt11,
		AmtMsat:        amountMsat,
		TimeoutSeconds: int32(c.cfg.PaymentTimeoutSeconds),
		FeeLimitMsat:   0,
	}

	payCtx, cancel := context.WithTimeout(ctx, c.paymentTimeout())
	defer cancel()

	stream, err := c.routerClient.SendPaymentV2(payCtx, req)
	if err != nil {
		return nil, engineerr.NewLightning("Pay", "failed to initiate payment", err)
	}

	for {
		update, err := stream.Recv()
		if err != nil {
			return nil, engineerr.NewLightning("Pay", "payment stream error", err)
		}

		switch update.Status {
		case lnrpc.Payment_SUCCEEDED:
			return &nodeadapter.Payment{
				PaymentHash:     update.PaymentHash,
				PaymentPreimage: update.PaymentPreimage,
				FeeMsat:         update.FeeMsat,
				Settled:         true,
				SettledAt:       time.Now().UTC(),
			}, nil
		case lnrpc.Payment_FAILED:
			return &nodeadapter.Payment{
				PaymentHash:   update.PaymentHash,
				Failed:        true,
				FailureReason: update.FailureReason.String(),
			}, nil
		case lnrpc.Payment_IN_FLIGHT, lnrpc.Payment_INITIATED:
			continue
		default:
			return nil, engineerr.NewLightning("Pay", fmt.Sprintf("unexpected payment status %s", update.Status), nil)
		}
	}
}

// InvoiceByHash looks up invoice state via lnrpc.LookupInvoice, used by
// invoicesvc.Sync (spec.md §4.2).
func (c *Client) InvoiceByHash(ctx context.Context, paymentHash string) (*nodeadapter.Invoice, error) {
	hashBytes, err := hex.DecodeString(paymentHash)
	if err != nil {
		return nil, engineerr.NewValidation("payment hash must be hex")
	}

	resp, err := c.lnClient.LookupInvoice(ctx, &lnrpc.PaymentHash{RHash: hashBytes})
	if err != nil {
		return nil, engineerr.NewLightning("Invoice", "failed to look up invoice", err)
	}

	inv := &nodeadapter.Invoice{
		Bolt11:         resp.PaymentRequest,
		PaymentHash:    paymentHash,
		AmountMsat:     resp.ValueMsat,
		Settled:        resp.State == lnrpc.Invoice_SETTLED,
		AmountPaidMsat: resp.AmtPaidMsat,
		ExpiryDuration: resp.Expiry,
		CreatedAt:      time.Unix(resp.CreationDate, 0).UTC(),
	}
	if inv.Settled {
		inv.SettledAt = time.Unix(resp.SettleDate, 0).UTC()
	}
	return inv, nil
}

// PaymentByHash looks up a previously dispatched payment via the router
// sub-server's TrackPaymentV2, used by paymentsvc.Sync (spec.md §4.3.7).
func (c *Client) PaymentByHash(ctx context.Context, paymentHash string) (*nodeadapter.Payment, error) {
	hashBytes, err := hex.DecodeString(paymentHash)
	if err != nil {
		return nil, engineerr.NewValidation("payment hash must be hex")
	}

	stream, err := c.routerClient.TrackPaymentV2(ctx, &routerrpc.TrackPaymentRequest{PaymentHash: hashBytes, NoInflightUpdates: true})
	if err != nil {
		return nil, engineerr.NewLightning("Pay", "failed to track payment", err)
	}

	update, err := stream.Recv()
	if err != nil {
		return nil, engineerr.NewNotFound(fmt.Sprintf("no payment found for hash %s", paymentHash))
	}

	switch update.Status {
	case lnrpc.Payment_SUCCEEDED:
		return &nodeadapter.Payment{
			PaymentHash:     update.PaymentHash,
			PaymentPreimage: update.PaymentPreimage,
			FeeMsat:         update.FeeMsat,
			Settled:         true,
			SettledAt:       time.Now().UTC(),
		}, nil
	case lnrpc.Payment_FAILED:
		return &nodeadapter.Payment{PaymentHash: update.PaymentHash, Failed: true, FailureReason: update.FailureReason.String()}, nil
	default:
		return &nodeadapter.Payment{PaymentHash: update.PaymentHash}, nil
	}
}

// Health reports node sync state via lnrpc.GetInfo.
func (c *Client) Health(ctx context.Context) (*nodeadapter.HealthStatus, error) {
	resp, err := c.lnClient.GetInfo(ctx, &lnrpc.GetInfoRequest{})
	if err != nil {
		return nil, engineerr.NewLightning("HealthCheck", "failed to query node info", err)
	}
	return &nodeadapter.HealthStatus{
		Synced:      resp.SyncedToChain,
		BlockHeight: resp.BlockHeight,
		Alias:       resp.Alias,
		PubKey:      resp.IdentityPubkey,
	}, nil
}
