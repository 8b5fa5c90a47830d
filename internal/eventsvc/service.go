// Package eventsvc applies node-originated state transitions atomically
// (spec.md §4.4). Every handler reads-then-writes a single row and is
// idempotent by construction: the repository's guarded UPDATE predicate
// (payment_time IS NULL / status = 'pending') is the actual enforcement
// point, not a check-then-act race in this package.
package eventsvc

import (
	"context"
	"fmt"
	"time"

	"wallet-server/internal/engineerr"
	"wallet-server/internal/metrics"
	"wallet-server/internal/store"

	"github.com/google/uuid"
)

type Service struct {
	invoices   *store.InvoiceRepository
	payments   *store.PaymentRepository
	btcOutputs *store.BtcOutputRepository
	btcAddrs   *store.BtcAddressRepository
	pool       store.Querier
	metrics    *metrics.Metrics
}

func New(invoices *store.InvoiceRepository, payments *store.PaymentRepository, btcOutputs *store.BtcOutputRepository, btcAddrs *store.BtcAddressRepository, pool store.Querier, m *metrics.Metrics) *Service {
	return &Service{invoices: invoices, payments: payments, btcOutputs: btcOutputs, btcAddrs: btcAddrs, pool: pool, metrics: m}
}

type InvoicePaidInput struct {
	PaymentHash        string
	AmountReceivedMsat int64
	FeeMsat            int64
	PaymentTime        time.Time
}

// InvoicePaid settles an invoice by payment hash. A second delivery for an
// already-settled invoice is a no-op because MarkSettled's WHERE clause
// only applies while payment_time is still NULL (spec.md §4.4, §8
// "idempotent settlement").
func (s *Service) InvoicePaid(ctx context.Context, in InvoicePaidInput) error {
	inv, err := s.invoices.GetByPaymentHash(ctx, in.PaymentHash)
	if err != nil {
		if err == store.ErrInvoiceNotFound {
			return engineerr.NewNotFound(fmt.Sprintf("no invoice for payment hash %s", in.PaymentHash))
		}
		return engineerr.NewDatabase("invoice", "failed to look up invoice by payment hash", err)
	}
	if inv.PaymentTime != nil {
		return nil
	}

	paymentTime := in.PaymentTime
	if paymentTime.IsZero() {
		paymentTime = time.Now().UTC()
	}
	if err := s.invoices.MarkSettled(ctx, s.pool, inv.ID, in.AmountReceivedMsat, in.FeeMsat, paymentTime); err != nil {
		return engineerr.NewDatabase("invoice", "failed to mark invoice settled", err)
	}
	if s.metrics != nil {
		s.metrics.InvoiceSettled(string(inv.Ledger))
	}
	return nil
}

type PaySuccessInput struct {
	PaymentHash string
	FeeMsat     int64
	Preimage    string
	PaymentTime time.Time
}

// PaySuccess settles an outbound Lightning payment by hash, idempotently.
func (s *Service) PaySuccess(ctx context.Context, in PaySuccessInput) error {
	p, err := s.payments.GetByPaymentHash(ctx, in.PaymentHash)
	if err != nil {
		if err == store.ErrPaymentNotFound {
			return engineerr.NewNotFound(fmt.Sprintf("no payment for payment hash %s", in.PaymentHash))
		}
		return engineerr.NewDatabase("payment", "failed to look up payment by payment hash", err)
	}
	if p.Status == store.PaymentStatusSettled {
		return nil
	}

	paymentTime := in.PaymentTime
	if paymentTime.IsZero() {
		paymentTime = time.Now().UTC()
	}
	preimage := in.Preimage
	if err := s.payments.Complete(ctx, s.pool, p.ID, store.PaymentStatusSettled, in.FeeMsat, &preimage, paymentTime, nil); err != nil {
		return engineerr.NewDatabase("payment", "failed to complete payment", err)
	}
	if s.metrics != nil {
		s.metrics.PaymentObserved(string(p.Ledger), string(store.PaymentStatusSettled), p.AmountMsat, paymentTime.Sub(p.CreatedAt))
	}
	return nil
}

type PayFailureInput struct {
	PaymentHash string
	Reason      string
}

// PayFailure fails an outbound Lightning payment by hash, idempotently.
func (s *Service) PayFailure(ctx context.Context, in PayFailureInput) error {
	p, err := s.payments.GetByPaymentHash(ctx, in.PaymentHash)
	if err != nil {
		if err == store.ErrPaymentNotFound {
			return engineerr.NewNotFound(fmt.Sprintf("no payment for payment hash %s", in.PaymentHash))
		}
		return engineerr.NewDatabase("payment", "failed to look up payment by payment hash", err)
	}
	if p.Status == store.PaymentStatusFailed {
		return nil
	}

	reason := in.Reason
	failedAt := time.Now().UTC()
	if err := s.payments.Complete(ctx, s.pool, p.ID, store.PaymentStatusFailed, 0, nil, failedAt, &reason); err != nil {
		return engineerr.NewDatabase("payment", "failed to fail payment", err)
	}
	if s.metrics != nil {
		s.metrics.PaymentObserved(string(p.Ledger), string(store.PaymentStatusFailed), p.AmountMsat, failedAt.Sub(p.CreatedAt))
	}
	return nil
}

type OnchainDepositInput struct {
	Txid        string
	OutputIndex int64
	Address     string
	AmountSat   int64
	BlockHeight int64
	Currency    string
}

// OnchainDeposit upserts a BtcOutput keyed by outpoint, marks the owning
// BtcAddress used, and either updates a previously-linked invoice or
// inserts a fresh one (spec.md §4.4). Addresses unknown to us are
// silently dropped — they belong to another instance or pre-date tracking.
func (s *Service) OnchainDeposit(ctx context.Context, in OnchainDepositInput) error {
	addr, err := s.btcAddrs.GetByAddress(ctx, in.Address)
	if err != nil {
		if err == store.ErrBtcAddressNotFound {
			return nil
		}
		return engineerr.NewDatabase("btc_address", "failed to look up bitcoin address", err)
	}

	status := store.BtcOutputUnconfirmed
	if in.BlockHeight > 0 {
		status = store.BtcOutputConfirmed
	}
	now := time.Now().UTC()
	output := &store.BtcOutput{
		ID:          uuid.NewString(),
		Outpoint:    fmt.Sprintf("%s:%d", in.Txid, in.OutputIndex),
		Txid:        in.Txid,
		OutputIndex: in.OutputIndex,
		Address:     in.Address,
		AmountSat:   in.AmountSat,
		Status:      status,
		BlockHeight: in.BlockHeight,
		Network:     in.Currency,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	outputID, err := s.btcOutputs.Upsert(ctx, s.pool, output)
	if err != nil {
		return engineerr.NewDatabase("btc_output", "failed to upsert bitcoin output", err)
	}

	if err := s.btcAddrs.MarkUsed(ctx, in.Address); err != nil {
		return engineerr.NewDatabase("btc_address", "failed to mark address used", err)
	}

	amountReceivedMsat := in.AmountSat * 1000
	existing, err := s.invoices.GetByBtcOutputID(ctx, outputID)
	if err == nil {
		if status == store.BtcOutputConfirmed && existing.PaymentTime == nil {
			if err := s.invoices.MarkSettled(ctx, s.pool, existing.ID, amountReceivedMsat, 0, now); err != nil {
				return engineerr.NewDatabase("invoice", "failed to settle onchain invoice", err)
			}
			if s.metrics != nil {
				s.metrics.InvoiceSettled(string(existing.Ledger))
			}
		}
		return nil
	}
	if err != store.ErrInvoiceNotFound {
		return engineerr.NewDatabase("invoice", "failed to look up invoice by btc output", err)
	}

	inv := &store.Invoice{
		ID:          uuid.NewString(),
		WalletID:    addr.WalletID,
		Ledger:      store.LedgerOnchain,
		Currency:    in.Currency,
		AmountMsat:  amountReceivedMsat,
		Status:      store.InvoiceStatusPending,
		Description: "Bitcoin onchain deposit",
		Timestamp:   now,
		ExpiresAt:   now,
		CreatedAt:   now,
		UpdatedAt:   now,
		BtcOutputID: &outputID,
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		return engineerr.NewDatabase("invoice", "failed to create onchain deposit invoice", err)
	}
	if status == store.BtcOutputConfirmed {
		if err := s.invoices.MarkSettled(ctx, s.pool, inv.ID, amountReceivedMsat, 0, now); err != nil {
			return engineerr.NewDatabase("invoice", "failed to settle onchain deposit invoice", err)
		}
		if s.metrics != nil {
			s.metrics.InvoiceSettled(string(inv.Ledger))
		}
	}
	return nil
}

type OnchainWithdrawalInput struct {
	Txid        string
	BtcOutputID string
	BlockHeight int64
	Timestamp   *time.Time
}

// OnchainWithdrawal settles an outbound on-chain payment once it reaches a
// block. payment_time is event.timestamp when the node supplies one, and
// now() otherwise — the §9 open-question resolution.
func (s *Service) OnchainWithdrawal(ctx context.Context, in OnchainWithdrawalInput) error {
	p, err := s.payments.GetByTxid(ctx, in.Txid)
	if err != nil {
		if err == store.ErrPaymentNotFound {
			return engineerr.NewNotFound(fmt.Sprintf("no payment for txid %s", in.Txid))
		}
		return engineerr.NewDatabase("payment", "failed to look up payment by txid", err)
	}
	if in.BlockHeight <= 0 {
		return nil
	}
	if p.Status == store.PaymentStatusSettled {
		return nil
	}

	paymentTime := time.Now().UTC()
	if in.Timestamp != nil {
		paymentTime = *in.Timestamp
	}
	if err := s.payments.Complete(ctx, s.pool, p.ID, store.PaymentStatusSettled, p.FeeMsat, nil, paymentTime, nil); err != nil {
		return engineerr.NewDatabase("payment", "failed to settle onchain withdrawal", err)
	}
	if err := s.payments.LinkBtcOutput(ctx, s.pool, p.ID, in.BtcOutputID, in.Txid, in.BlockHeight); err != nil {
		return engineerr.NewDatabase("payment", "failed to link spent output", err)
	}
	if s.metrics != nil {
		s.metrics.PaymentObserved(string(p.Ledger), string(store.PaymentStatusSettled), p.AmountMsat, paymentTime.Sub(p.CreatedAt))
	}
	return nil
}
