// Package invoicesvc issues, lists, deletes and reconciles invoices
// (spec.md §4.2). It is a thin orchestration layer over store.InvoiceRepository
// and the node adapter — the only tricky part is Sync's re-check of both
// Pending and Expired invoices (§9 open question).
package invoicesvc

import (
	"context"
	"time"

	"wallet-server/internal/engineerr"
	"wallet-server/internal/eventsvc"
	"wallet-server/internal/metrics"
	"wallet-server/internal/nodeadapter"
	"wallet-server/internal/store"
	"wallet-server/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Service struct {
	invoices      *store.InvoiceRepository
	node          nodeadapter.Client
	events        *eventsvc.Service
	defaultExpiry time.Duration
	metrics       *metrics.Metrics
}

func New(invoices *store.InvoiceRepository, node nodeadapter.Client, events *eventsvc.Service, defaultExpiry time.Duration, m *metrics.Metrics) *Service {
	return &Service{invoices: invoices, node: node, events: events, defaultExpiry: defaultExpiry, metrics: m}
}

// Invoice mints a BOLT-11 via the node adapter with a freshly generated id
// as the node-side label, then persists the pending invoice row
// (spec.md §4.2).
func (s *Service) Invoice(ctx context.Context, walletID string, amountMsat int64, description string, expiry time.Duration) (*store.Invoice, error) {
	if amountMsat < 0 {
		return nil, engineerr.NewValidation("amount_msat must not be negative")
	}
	if expiry <= 0 {
		expiry = s.defaultExpiry
	}

	id := uuid.NewString()
	nodeInv, err := s.node.Invoice(ctx, amountMsat, description, id, expiry, false)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	inv := &store.Invoice{
		ID:          id,
		WalletID:    walletID,
		Ledger:      store.LedgerLightning,
		Currency:    "BTC",
		AmountMsat:  amountMsat,
		Status:      store.InvoiceStatusPending,
		Description: description,
		Timestamp:   now,
		ExpiresAt:   now.Add(expiry),
		CreatedAt:   now,
		UpdatedAt:   now,
		LnInvoice: &store.LnInvoice{
			Bolt11:          nodeInv.Bolt11,
			PaymentHash:     nodeInv.PaymentHash,
			PayeePubkey:     strPtr(nodeInv.PayeePubkey),
			DescriptionHash: strPtr(nodeInv.DescriptionHash),
			PaymentSecret:   strPtr(nodeInv.PaymentSecret),
			ExpiryDuration:  int64(expiry.Seconds()),
		},
	}
	if nodeInv.MinFinalCltv > 0 {
		cltv := nodeInv.MinFinalCltv
		inv.LnInvoice.MinFinalCltv = &cltv
	}

	if err := s.invoices.Create(ctx, inv); err != nil {
		return nil, engineerr.NewDatabase("invoice", "failed to persist invoice", err)
	}
	if s.metrics != nil {
		s.metrics.InvoiceIssued(string(inv.Ledger))
	}
	return inv, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (s *Service) Get(ctx context.Context, id string) (*store.Invoice, error) {
	inv, err := s.invoices.GetByID(ctx, id)
	if err != nil {
		if err == store.ErrInvoiceNotFound {
			return nil, engineerr.NewNotFound("invoice not found")
		}
		return nil, engineerr.NewDatabase("invoice", "failed to get invoice", err)
	}
	return inv, nil
}

func (s *Service) List(ctx context.Context, filter store.InvoiceFilter) ([]*store.Invoice, error) {
	invoices, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, engineerr.NewDatabase("invoice", "failed to list invoices", err)
	}
	return invoices, nil
}

// Delete removes a single invoice. Deleting a Settled invoice logically
// reduces the owner's derived balance, so callers must treat this as
// privileged (spec.md §4.2).
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.invoices.Delete(ctx, id); err != nil {
		if err == store.ErrInvoiceNotFound {
			return engineerr.NewNotFound("invoice not found")
		}
		return engineerr.NewDatabase("invoice", "failed to delete invoice", err)
	}
	return nil
}

func (s *Service) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	n, err := s.invoices.DeleteMany(ctx, ids)
	if err != nil {
		return 0, engineerr.NewDatabase("invoice", "failed to delete invoices", err)
	}
	return n, nil
}

// Sync selects ledger=lightning invoices whose derived status is Pending
// or Expired, queries the node by payment hash, and republishes
// settlement through the Event Service when the node reports it Settled
// (spec.md §4.2, §9 open question: Expired rows are re-checked too).
func (s *Service) Sync(ctx context.Context) (int, error) {
	unresolved, err := s.invoices.ListUnresolved(ctx, store.LedgerLightning)
	if err != nil {
		return 0, engineerr.NewDatabase("invoice", "failed to list unresolved invoices", err)
	}

	now := time.Now().UTC()
	synced := 0
	for _, inv := range unresolved {
		status := inv.DerivedStatus(now)
		if status != store.InvoiceStatusPending && status != store.InvoiceStatusExpired {
			continue
		}
		if inv.LnInvoice == nil {
			continue
		}

		nodeInv, err := s.node.InvoiceByHash(ctx, inv.LnInvoice.PaymentHash)
		if err != nil {
			logger.Warn("invoice sync: node lookup failed", zap.String("invoice_id", inv.ID), zap.Error(err))
			continue
		}
		if !nodeInv.Settled {
			continue
		}

		settledAt := nodeInv.SettledAt
		if settledAt.IsZero() {
			settledAt = now
		}
		if err := s.events.InvoicePaid(ctx, eventsvc.InvoicePaidInput{
			PaymentHash:        inv.LnInvoice.PaymentHash,
			AmountReceivedMsat: nodeInv.AmountPaidMsat,
			FeeMsat:            nodeInv.FeeMsat,
			PaymentTime:        settledAt,
		}); err != nil {
			logger.Warn("invoice sync: failed to apply invoice-paid event", zap.String("invoice_id", inv.ID), zap.Error(err))
			continue
		}
		synced++
	}
	return synced, nil
}
