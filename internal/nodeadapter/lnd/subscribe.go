package lnd

import (
	"context"
	"encoding/hex"
	"time"

	"wallet-server/internal/nodeadapter"
	"wallet-server/pkg/logger"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/routerrpc"
	"go.uber.org/zap"
)

// SubscribeInvoices streams settlement updates via lnrpc.SubscribeInvoices,
// the long-lived feed the listener fans into the Event Service
// (spec.md §4.5).
func (c *Client) SubscribeInvoices(ctx context.Context) (<-chan nodeadapter.InvoiceEvent, error) {
	stream, err := c.lnClient.SubscribeInvoices(ctx, &lnrpc.InvoiceSubscription{})
	if err != nil {
		return nil, err
	}

	out := make(chan nodeadapter.InvoiceEvent)
	go func() {
		defer close(out)
		for {
			update, err := stream.Recv()
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("lnd invoice subscription ended", zap.Error(err))
				}
				return
			}
			if update.State != lnrpc.Invoice_SETTLED {
				continue
			}
			select {
			case out <- nodeadapter.InvoiceEvent{
				PaymentHash:        hex.EncodeToString(update.RHash),
				AmountReceivedMsat: update.AmtPaidMsat,
				SettledAt:          time.Unix(update.SettleDate, 0).UTC(),
			}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// SubscribePayments streams terminal payment updates via the router
// sub-server's TrackPayments (all in-flight and future payments).
func (c *Client) SubscribePayments(ctx context.Context) (<-chan nodeadapter.PaymentEvent, error) {
	stream, err := c.routerClient.TrackPayments(ctx, &routerrpc.TrackPaymentsRequest{NoInflightUpdates: true})
	if err != nil {
		return nil, err
	}

	out := make(chan nodeadapter.PaymentEvent)
	go func() {
		defer close(out)
		for {
			update, err := stream.Recv()
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("lnd payment subscription ended", zap.Error(err))
				}
				return
			}
			var ev nodeadapter.PaymentEvent
			switch update.Status {
			case lnrpc.Payment_SUCCEEDED:
				ev = nodeadapter.PaymentEvent{
					PaymentHash: update.PaymentHash,
					Preimage:    update.PaymentPreimage,
					FeeMsat:     update.FeeMsat,
					SettledAt:   time.Now().UTC(),
				}
			case lnrpc.Payment_FAILED:
				ev = nodeadapter.PaymentEvent{PaymentHash: update.PaymentHash, Failed: true, Reason: update.FailureReason.String()}
			default:
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// SubscribeOnchainTx streams wallet transaction updates via
// lnrpc.SubscribeTransactions, used to detect deposits to tracked
// addresses (spec.md §4.4 OnchainDeposit).
func (c *Client) SubscribeOnchainTx(ctx context.Context) (<-chan nodeadapter.OnchainEvent, error) {
	stream, err := c.lnClient.SubscribeTransactions(ctx, &lnrpc.GetTransactionsRequest{})
	if err != nil {
		return nil, err
	}

	out := make(chan nodeadapter.OnchainEvent)
	go func() {
		defer close(out)
		for {
			tx, err := stream.Recv()
			if err != nil {
				if ctx.Err() == nil {
					logger.Error("lnd transaction subscription ended", zap.Error(err))
				}
				return
			}
			for i, addr := range tx.DestAddresses {
				amount := tx.Amount
				if i > 0 {
					amount = 0
				}
				select {
				case out <- nodeadapter.OnchainEvent{
					Txid:        tx.TxHash,
					OutputIndex: int64(i),
					Address:     addr,
					AmountSat:   amount,
					BlockHeight: int64(tx.BlockHeight),
				}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
