// Package paymentsvc implements the outbound side of the engine: payment
// input classification, admission control, and dispatch to whichever
// ledger the input resolves to (spec.md §4.3). It is the thickest
// component — the other services each own a single ledger operation,
// this one decides which operation applies and enforces the spendability
// invariant before any of them run.
package paymentsvc

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"wallet-server/internal/bolt11"
	"wallet-server/internal/btcwallet"
	"wallet-server/internal/engineerr"
	"wallet-server/internal/eventsvc"
	"wallet-server/internal/lnurl"
	"wallet-server/internal/lnurlclient"
	"wallet-server/internal/metrics"
	"wallet-server/internal/nodeadapter"
	"wallet-server/internal/store"
	"wallet-server/pkg/logger"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// defaultFeeRateSatPerByte is the flat fee rate used for treasury spends
// until a mempool fee-estimation source is wired in (spec.md Non-goals:
// no dynamic fee market integration).
const defaultFeeRateSatPerByte = 10

type Service struct {
	wallets      *store.WalletRepository
	payments     *store.PaymentRepository
	invoices     *store.InvoiceRepository
	lnAddresses  *store.LnAddressRepository
	btcAddresses *store.BtcAddressRepository
	node         nodeadapter.Client
	btcWallet    *btcwallet.Wallet
	lnurlClient  *lnurlclient.Client
	events       *eventsvc.Service
	domain       string
	feeBuffer    float64
	network      *chaincfg.Params
	metrics      *metrics.Metrics
}

func New(
	wallets *store.WalletRepository,
	payments *store.PaymentRepository,
	invoices *store.InvoiceRepository,
	lnAddresses *store.LnAddressRepository,
	btcAddresses *store.BtcAddressRepository,
	node nodeadapter.Client,
	btcWallet *btcwallet.Wallet,
	lnurlClient *lnurlclient.Client,
	events *eventsvc.Service,
	domain string,
	feeBuffer float64,
	network string,
	m *metrics.Metrics,
) *Service {
	return &Service{
		wallets:      wallets,
		payments:     payments,
		invoices:     invoices,
		lnAddresses:  lnAddresses,
		btcAddresses: btcAddresses,
		node:         node,
		btcWallet:    btcWallet,
		lnurlClient:  lnurlClient,
		events:       events,
		domain:       domain,
		feeBuffer:    feeBuffer,
		network:      networkParams(network),
		metrics:      m,
	}
}

func networkParams(network string) *chaincfg.Params {
	if network == "mainnet" {
		return &chaincfg.MainNetParams
	}
	return &chaincfg.TestNet3Params
}

// Pay classifies input and dispatches to the matching ledger operation, in
// the fixed order internal shortcut → BOLT-11 → LNURL-pay → Bitcoin
// address (spec.md §4.3).
func (s *Service) Pay(ctx context.Context, walletID, input string, amountMsat *int64, comment string) (*store.Payment, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, engineerr.NewValidation("payment input is required")
	}

	if user, ok := s.internalUser(input); ok {
		return s.payInternalLnAddress(ctx, walletID, user, amountMsat)
	}
	if looksLikeBolt11(input) {
		return s.payBolt11(ctx, walletID, input, amountMsat)
	}
	if identifier, ok := looksLikeLnUrl(input); ok {
		return s.payLnUrl(ctx, walletID, identifier, amountMsat, comment)
	}
	if s.btcWallet.ValidateAddress(input) {
		return s.payBitcoinAddress(ctx, walletID, input, amountMsat)
	}
	return nil, engineerr.NewValidation(fmt.Sprintf("unrecognized payment input %q", input))
}

func (s *Service) internalUser(input string) (string, bool) {
	at := strings.IndexByte(input, '@')
	if at <= 0 {
		return "", false
	}
	user, domain := input[:at], input[at+1:]
	if !strings.EqualFold(domain, s.domain) {
		return "", false
	}
	return user, true
}

func looksLikeBolt11(input string) bool {
	lower := strings.ToLower(input)
	for _, prefix := range []string{"lnbc", "lntb", "lntbs", "lnbcrt"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func looksLikeLnUrl(input string) (string, bool) {
	lower := strings.ToLower(input)
	if strings.HasPrefix(lower, "lnurl1") {
		return input, true
	}
	if at := strings.IndexByte(input, '@'); at > 0 {
		return input, true
	}
	return "", false
}

// payInternalLnAddress implements the internal-payment shortcut (spec.md
// §4.3 step 1): when the recipient is a Lightning Address on this same
// server, the node is skipped entirely and the transfer is a single pair
// of ledger rows.
func (s *Service) payInternalLnAddress(ctx context.Context, walletID, username string, amountMsat *int64) (*store.Payment, error) {
	addr, err := s.lnAddresses.GetByUsername(ctx, username)
	if err != nil {
		if err == store.ErrLnAddressNotFound {
			return nil, engineerr.NewNotFound(fmt.Sprintf("lightning address %q not found", username))
		}
		return nil, engineerr.NewDatabase("ln_address", "failed to look up lightning address", err)
	}
	if !addr.Active {
		return nil, engineerr.NewValidation(fmt.Sprintf("lightning address %q is inactive", username))
	}
	if addr.WalletID == walletID {
		return nil, engineerr.NewValidation("cannot pay your own lightning address")
	}
	if amountMsat == nil || *amountMsat <= 0 {
		return nil, engineerr.NewValidation("amount_msat is required for an internal payment")
	}

	payment := &store.Payment{
		ID:          uuid.NewString(),
		WalletID:    walletID,
		Ledger:      store.LedgerInternal,
		Currency:    "BTC",
		AmountMsat:  *amountMsat,
		Description: fmt.Sprintf("Payment to %s@%s", username, s.domain),
		Internal:    &store.InternalPayment{LnAddress: &username},
	}
	if err := s.settlePairImmediately(ctx, payment); err != nil {
		return nil, err
	}
	s.createPairedInvoice(ctx, addr.WalletID, store.LedgerInternal, *amountMsat, fmt.Sprintf("Payment from wallet %s", walletID))
	return s.Get(ctx, payment.ID)
}

// settlePairImmediately runs admission control and inserts an already-
// settled payment row in one transaction — the common body of every
// internal-settlement path (spec.md §4.3 "Internal payment shortcut").
func (s *Service) settlePairImmediately(ctx context.Context, payment *store.Payment) error {
	now := time.Now().UTC()
	payment.Status = store.PaymentStatusSettled
	payment.FeeMsat = 0
	payment.PaymentTime = &now
	payment.CreatedAt = now
	payment.UpdatedAt = now
	if err := s.admitAndInsert(ctx, payment, payment.AmountMsat); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.PaymentObserved(string(payment.Ledger), string(store.PaymentStatusSettled), payment.AmountMsat, 0)
	}
	return nil
}

// createPairedInvoice credits the counterparty wallet for an internally
// settled payment. It runs outside the admission transaction, matching the
// existing non-transactional invoice-creation precedent in eventsvc's
// OnchainDeposit handler — a failure here is logged, not propagated, since
// the payer's debit has already committed.
func (s *Service) createPairedInvoice(ctx context.Context, walletID string, ledger store.Ledger, amountMsat int64, description string) {
	now := time.Now().UTC()
	inv := &store.Invoice{
		ID:                 uuid.NewString(),
		WalletID:           walletID,
		Ledger:             ledger,
		Currency:           "BTC",
		AmountMsat:         amountMsat,
		AmountReceivedMsat: amountMsat,
		Status:             store.InvoiceStatusSettled,
		Description:        description,
		Timestamp:          now,
		PaymentTime:        &now,
		ExpiresAt:          now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.invoices.Create(ctx, inv); err != nil {
		logger.Error("failed to credit counterparty for internal payment", zap.String("wallet_id", walletID), zap.Error(err))
	}
}

// admitAndInsert is the admission-control transaction (spec.md §4.3 step
// 3, §5): it recomputes the spendable balance under RepeatableRead and
// inserts the payment row in the same transaction, so a concurrent Pay on
// the same wallet cannot double-spend the same funds.
func (s *Service) admitAndInsert(ctx context.Context, payment *store.Payment, requiredMsat int64) error {
	tx, err := s.wallets.Pool().BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return engineerr.NewDatabase("payment", "failed to begin admission transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	received, err := s.wallets.ReceivedMsat(ctx, tx, payment.WalletID)
	if err != nil {
		return engineerr.NewDatabase("wallet", "failed to sum received msat", err)
	}
	sent, fees, err := s.wallets.SentAndFeesMsat(ctx, tx, payment.WalletID)
	if err != nil {
		return engineerr.NewDatabase("wallet", "failed to sum sent msat", err)
	}
	available := received - (sent + fees)
	if available < requiredMsat {
		return engineerr.NewInsufficientFunds(requiredMsat)
	}

	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	if payment.Currency == "" {
		payment.Currency = "BTC"
	}
	if payment.CreatedAt.IsZero() {
		now := time.Now().UTC()
		payment.CreatedAt = now
		payment.UpdatedAt = now
	}
	if payment.Status == "" {
		payment.Status = store.PaymentStatusPending
	}
	if err := s.payments.Create(ctx, tx, payment); err != nil {
		return engineerr.NewDatabase("payment", "failed to insert payment", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return engineerr.NewDatabase("payment", "failed to commit admission transaction", err)
	}
	committed = true
	return nil
}

// estimatedFeeMsat is the routing-fee margin added on top of the payment
// amount during admission control, floored so tiny payments still reserve
// something for fees (spec.md §4.3 step 3).
func (s *Service) estimatedFeeMsat(amountMsat int64) int64 {
	fee := int64(math.Ceil(float64(amountMsat) * s.feeBuffer))
	if fee < 1000 {
		fee = 1000
	}
	return fee
}

// payBolt11 handles the BOLT-11 classification branch, including the
// degrade-to-internal case where the payer is settling an unpaid invoice
// this same server issued (spec.md §4.3 step 2).
func (s *Service) payBolt11(ctx context.Context, walletID, raw string, amountMsatOverride *int64) (*store.Payment, error) {
	decoded, err := bolt11.Decode(raw, s.network)
	if err != nil {
		return nil, err
	}
	if decoded.IsExpired(time.Now().UTC()) {
		return nil, engineerr.NewValidation("bolt11 invoice has expired")
	}

	owned, err := s.invoices.GetByPaymentHash(ctx, decoded.PaymentHash)
	if err != nil && err != store.ErrInvoiceNotFound {
		return nil, engineerr.NewDatabase("invoice", "failed to look up invoice by payment hash", err)
	}
	if err == nil {
		return s.payOwnBolt11(ctx, walletID, owned, decoded, amountMsatOverride)
	}

	amount, err := resolveBolt11Amount(decoded, amountMsatOverride)
	if err != nil {
		return nil, err
	}

	payment := &store.Payment{
		WalletID:    walletID,
		Ledger:      store.LedgerLightning,
		AmountMsat:  amount,
		Status:      store.PaymentStatusPending,
		Description: "Lightning payment",
		Lightning:   &store.LightningPayment{PaymentHash: &decoded.PaymentHash},
	}
	required := amount + s.estimatedFeeMsat(amount)
	if err := s.admitAndInsert(ctx, payment, required); err != nil {
		return nil, err
	}

	result, payErr := s.node.Pay(ctx, raw, amount, payment.ID)
	if err := s.completeLightning(ctx, payment, result, payErr); err != nil {
		return nil, err
	}
	return s.Get(ctx, payment.ID)
}

// payOwnBolt11 settles a payment against an invoice this server issued
// without involving the node at all (spec.md §4.3 step 2, "degrade to
// internal settlement, same pair as the shortcut case but preserving the
// invoice's ln_invoice").
func (s *Service) payOwnBolt11(ctx context.Context, walletID string, owned *store.Invoice, decoded *bolt11.Decoded, amountMsatOverride *int64) (*store.Payment, error) {
	if owned.WalletID == walletID {
		return nil, engineerr.NewValidation("cannot pay your own invoice")
	}
	status := owned.DerivedStatus(time.Now().UTC())
	if status != store.InvoiceStatusPending {
		return nil, engineerr.NewValidation(fmt.Sprintf("invoice is already %s", status))
	}

	amount := owned.AmountMsat
	if amount <= 0 {
		if amountMsatOverride == nil || *amountMsatOverride <= 0 {
			return nil, engineerr.NewValidation("amount_msat is required for a zero-amount invoice")
		}
		amount = *amountMsatOverride
	}

	payment := &store.Payment{
		WalletID:    walletID,
		Ledger:      store.LedgerLightning,
		AmountMsat:  amount,
		Description: "Lightning payment (settled internally)",
		Lightning:   &store.LightningPayment{PaymentHash: &decoded.PaymentHash},
	}
	if err := s.settlePairImmediately(ctx, payment); err != nil {
		return nil, err
	}
	if err := s.invoices.MarkSettled(ctx, s.wallets.Pool(), owned.ID, amount, 0, *payment.PaymentTime); err != nil {
		logger.Error("failed to settle invoice for internally-routed bolt11 payment", zap.String("invoice_id", owned.ID), zap.Error(err))
	}
	return s.Get(ctx, payment.ID)
}

// resolveBolt11Amount enforces spec.md §4.3's amount rules: the payer may
// not override an amount-carrying invoice, and must supply an amount for
// a zero-amount one.
func resolveBolt11Amount(decoded *bolt11.Decoded, override *int64) (int64, error) {
	if decoded.AmountMsat != nil {
		if override != nil && *override != *decoded.AmountMsat {
			return 0, engineerr.NewValidation("amount_msat override is not allowed for an amount-carrying invoice")
		}
		if *decoded.AmountMsat <= 0 {
			return 0, engineerr.NewValidation("invoice amount must be positive")
		}
		return *decoded.AmountMsat, nil
	}
	if override == nil || *override <= 0 {
		return 0, engineerr.NewValidation("amount_msat is required for a zero-amount invoice")
	}
	return *override, nil
}

// payLnUrl resolves an LNURL-pay identifier to a BOLT-11 via the
// recipient's callback, then dispatches exactly like an external BOLT-11
// payment, carrying any LUD-09/LUD-10 success action through to
// completion (spec.md §4.3 step 2 "LnUrlPay").
func (s *Service) payLnUrl(ctx context.Context, walletID, identifier string, amountMsat *int64, comment string) (*store.Payment, error) {
	if amountMsat == nil || *amountMsat <= 0 {
		return nil, engineerr.NewValidation("amount_msat is required for an lnurl payment")
	}

	url, err := lnurlclient.DecodeIdentifier(identifier)
	if err != nil {
		return nil, err
	}
	payReq, err := s.lnurlClient.FetchPayRequest(ctx, url)
	if err != nil {
		return nil, err
	}
	if *amountMsat < payReq.MinSendable || *amountMsat > payReq.MaxSendable {
		return nil, engineerr.NewValidation(fmt.Sprintf("amount_msat %d outside %s sendable bounds", *amountMsat, identifier))
	}
	if payReq.CommentAllowed > 0 && len(comment) > payReq.CommentAllowed {
		return nil, engineerr.NewValidation("comment exceeds recipient's commentAllowed length")
	}

	cbResp, err := s.lnurlClient.Callback(ctx, payReq.Callback, *amountMsat, comment)
	if err != nil {
		return nil, err
	}
	decoded, err := bolt11.Decode(cbResp.Bolt11, s.network)
	if err != nil {
		return nil, err
	}
	if decoded.AmountMsat != nil && *decoded.AmountMsat != *amountMsat {
		return nil, engineerr.NewLightning("Invoice", "lnurl callback invoice amount does not match requested amount", nil)
	}

	payment := &store.Payment{
		WalletID:    walletID,
		Ledger:      store.LedgerLightning,
		AmountMsat:  *amountMsat,
		Status:      store.PaymentStatusPending,
		Description: fmt.Sprintf("LNURL payment to %s", identifier),
		Lightning: &store.LightningPayment{
			PaymentHash:   &decoded.PaymentHash,
			LnAddress:     &identifier,
			SuccessAction: pendingSuccessAction(cbResp.SuccessAction),
		},
	}
	required := *amountMsat + s.estimatedFeeMsat(*amountMsat)
	if err := s.admitAndInsert(ctx, payment, required); err != nil {
		return nil, err
	}

	result, payErr := s.node.Pay(ctx, cbResp.Bolt11, *amountMsat, payment.ID)
	if err := s.completeLightning(ctx, payment, result, payErr); err != nil {
		return nil, err
	}
	return s.Get(ctx, payment.ID)
}

// pendingSuccessAction resolves message/url success actions immediately —
// they need no preimage — and carries an AES action through unresolved,
// since it can only be decrypted once the payment preimage is known
// (spec.md §4.3 step 6, §9).
func pendingSuccessAction(raw *lnurlclient.SuccessAction) *store.SuccessAction {
	if raw == nil {
		return nil
	}
	if raw.Tag == "aes" {
		return &store.SuccessAction{Tag: "aes", CiphertextB64: strPtr(raw.Ciphertext), IVB64: strPtr(raw.IV)}
	}
	return lnurl.ResolveSuccessAction(raw, "")
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// completeLightning maps a node dispatch outcome to the payment's terminal
// state and, on settlement, resolves any pending AES success action now
// that the preimage is known (spec.md §4.3 steps 5-6).
func (s *Service) completeLightning(ctx context.Context, payment *store.Payment, result *nodeadapter.Payment, payErr error) error {
	now := time.Now().UTC()
	pool := s.wallets.Pool()

	if payErr != nil {
		reason := payErr.Error()
		if err := s.payments.Complete(ctx, pool, payment.ID, store.PaymentStatusFailed, 0, nil, now, &reason); err != nil {
			return engineerr.NewDatabase("payment", "failed to record payment failure", err)
		}
		return nil
	}
	if result.Failed {
		reason := result.FailureReason
		if err := s.payments.Complete(ctx, pool, payment.ID, store.PaymentStatusFailed, 0, nil, now, &reason); err != nil {
			return engineerr.NewDatabase("payment", "failed to record payment failure", err)
		}
		return nil
	}

	settledAt := result.SettledAt
	if settledAt.IsZero() {
		settledAt = now
	}
	preimage := result.PaymentPreimage
	if err := s.payments.Complete(ctx, pool, payment.ID, store.PaymentStatusSettled, result.FeeMsat, &preimage, settledAt, nil); err != nil {
		return engineerr.NewDatabase("payment", "failed to settle payment", err)
	}

	if payment.Lightning != nil && payment.Lightning.SuccessAction != nil && payment.Lightning.SuccessAction.Tag == "aes" {
		resolved := lnurl.ResolveSuccessAction(&lnurlclient.SuccessAction{
			Tag:        "aes",
			Ciphertext: derefOrEmpty(payment.Lightning.SuccessAction.CiphertextB64),
			IV:         derefOrEmpty(payment.Lightning.SuccessAction.IVB64),
		}, preimage)
		if err := s.payments.UpdateSuccessAction(ctx, pool, payment.ID, resolved); err != nil {
			logger.Error("failed to persist resolved lnurl success action", zap.String("payment_id", payment.ID), zap.Error(err))
		}
	}
	return nil
}

func derefOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// payBitcoinAddress handles the BitcoinAddress classification branch: a
// transfer to another of our own users' deposit addresses settles
// internally, otherwise it leases UTXOs and broadcasts (spec.md §4.3 step
// 2 "BitcoinAddress").
func (s *Service) payBitcoinAddress(ctx context.Context, walletID, address string, amountMsat *int64) (*store.Payment, error) {
	if amountMsat == nil || *amountMsat <= 0 {
		return nil, engineerr.NewValidation("amount_msat is required for a bitcoin address payment")
	}
	if *amountMsat%1000 != 0 {
		return nil, engineerr.NewValidation("bitcoin payments must be a whole number of satoshis")
	}
	amountSat := *amountMsat / 1000

	owned, err := s.btcAddresses.GetByAddress(ctx, address)
	if err == nil {
		if owned.WalletID == walletID {
			return nil, engineerr.NewValidation("cannot pay your own deposit address")
		}
		return s.payInternalBtcAddress(ctx, walletID, owned, *amountMsat)
	}
	if err != store.ErrBtcAddressNotFound {
		return nil, engineerr.NewDatabase("btc_address", "failed to look up bitcoin address", err)
	}

	return s.payExternalBtcAddress(ctx, walletID, address, amountSat, *amountMsat)
}

func (s *Service) payInternalBtcAddress(ctx context.Context, walletID string, addr *store.BtcAddress, amountMsat int64) (*store.Payment, error) {
	payment := &store.Payment{
		WalletID:    walletID,
		Ledger:      store.LedgerInternal,
		AmountMsat:  amountMsat,
		Description: fmt.Sprintf("Payment to %s", addr.Address),
		Internal:    &store.InternalPayment{BtcAddress: &addr.Address},
	}
	if err := s.settlePairImmediately(ctx, payment); err != nil {
		return nil, err
	}
	s.createPairedInvoice(ctx, addr.WalletID, store.LedgerInternal, amountMsat, fmt.Sprintf("Payment from wallet %s", walletID))
	return s.Get(ctx, payment.ID)
}

// payExternalBtcAddress leases UTXOs under admission control and signs and
// broadcasts a real on-chain transaction. The payment stays Pending after
// broadcast — it settles later when the listener or Sync observes the
// spend confirmed (spec.md §4.3 step 2, §6 UTXO lease hygiene).
func (s *Service) payExternalBtcAddress(ctx context.Context, walletID, address string, amountSat, amountMsat int64) (*store.Payment, error) {
	fromAddress, err := s.btcWallet.NewAddress(ctx, btcwallet.P2WPKH, 0)
	if err != nil {
		return nil, engineerr.Wrap(engineerr.Bitcoin, "failed to derive treasury source address", err)
	}

	prepared, err := s.btcWallet.PrepareTransaction(ctx, fromAddress, address, amountSat, defaultFeeRateSatPerByte)
	if err != nil {
		return nil, err
	}

	feeSat := int64(len(prepared.UTXOs)*68+2*31+11) * defaultFeeRateSatPerByte
	feeMsat := feeSat * 1000
	required := amountMsat + feeMsat

	payment := &store.Payment{
		WalletID:    walletID,
		Ledger:      store.LedgerOnchain,
		AmountMsat:  amountMsat,
		FeeMsat:     feeMsat,
		Description: fmt.Sprintf("Bitcoin payment to %s", address),
		Bitcoin:     &store.BitcoinPayment{DestinationAddress: address},
	}
	if err := s.admitAndInsert(ctx, payment, required); err != nil {
		_ = s.btcWallet.ReleasePreparedTransaction(ctx, prepared.ID)
		return nil, err
	}

	txid, err := s.btcWallet.SignSendTransaction(ctx, prepared.ID, 0)
	if err != nil {
		reason := err.Error()
		now := time.Now().UTC()
		if cErr := s.payments.Complete(ctx, s.wallets.Pool(), payment.ID, store.PaymentStatusFailed, 0, nil, now, &reason); cErr != nil {
			logger.Error("failed to record onchain broadcast failure", zap.String("payment_id", payment.ID), zap.Error(cErr))
		}
		return s.Get(ctx, payment.ID)
	}

	if err := s.payments.SetTxid(ctx, s.wallets.Pool(), payment.ID, txid); err != nil {
		logger.Error("failed to record broadcast txid", zap.String("payment_id", payment.ID), zap.Error(err))
	}
	return s.Get(ctx, payment.ID)
}

func (s *Service) Get(ctx context.Context, id string) (*store.Payment, error) {
	p, err := s.payments.GetByID(ctx, id)
	if err != nil {
		if err == store.ErrPaymentNotFound {
			return nil, engineerr.NewNotFound("payment not found")
		}
		return nil, engineerr.NewDatabase("payment", "failed to get payment", err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, filter store.PaymentFilter) ([]*store.Payment, error) {
	payments, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, engineerr.NewDatabase("payment", "failed to list payments", err)
	}
	return payments, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.payments.Delete(ctx, id); err != nil {
		if err == store.ErrPaymentNotFound {
			return engineerr.NewNotFound("payment not found")
		}
		return engineerr.NewDatabase("payment", "failed to delete payment", err)
	}
	return nil
}

func (s *Service) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	n, err := s.payments.DeleteMany(ctx, ids)
	if err != nil {
		return 0, engineerr.NewDatabase("payment", "failed to delete payments", err)
	}
	return n, nil
}

// Sync reconciles payments left Pending across a restart: Lightning
// payments are re-queried by hash, on-chain payments by confirmation
// status (spec.md §4.3 step 7).
func (s *Service) Sync(ctx context.Context) (int, error) {
	synced := 0
	pool := s.wallets.Pool()

	pendingLn, err := s.payments.ListPending(ctx, store.LedgerLightning)
	if err != nil {
		return synced, engineerr.NewDatabase("payment", "failed to list pending lightning payments", err)
	}
	for _, p := range pendingLn {
		if p.Lightning == nil || p.Lightning.PaymentHash == nil {
			continue
		}
		result, err := s.node.PaymentByHash(ctx, *p.Lightning.PaymentHash)
		if err != nil {
			logger.Warn("payment sync: node lookup failed", zap.String("payment_id", p.ID), zap.Error(err))
			continue
		}
		switch {
		case result.Settled:
			if err := s.events.PaySuccess(ctx, eventsvc.PaySuccessInput{
				PaymentHash: *p.Lightning.PaymentHash,
				FeeMsat:     result.FeeMsat,
				Preimage:    result.PaymentPreimage,
				PaymentTime: result.SettledAt,
			}); err != nil {
				logger.Warn("payment sync: failed to apply pay-success event", zap.String("payment_id", p.ID), zap.Error(err))
				continue
			}
			synced++
		case result.Failed:
			if err := s.events.PayFailure(ctx, eventsvc.PayFailureInput{
				PaymentHash: *p.Lightning.PaymentHash,
				Reason:      result.FailureReason,
			}); err != nil {
				logger.Warn("payment sync: failed to apply pay-failure event", zap.String("payment_id", p.ID), zap.Error(err))
				continue
			}
			synced++
		}
	}

	pendingBtc, err := s.payments.ListPending(ctx, store.LedgerOnchain)
	if err != nil {
		return synced, engineerr.NewDatabase("payment", "failed to list pending onchain payments", err)
	}
	for _, p := range pendingBtc {
		if p.Bitcoin == nil || p.Bitcoin.Txid == nil {
			continue
		}
		confirmed, _, err := s.btcWallet.GetTransaction(ctx, *p.Bitcoin.Txid)
		if err != nil {
			logger.Warn("payment sync: chain lookup failed", zap.String("payment_id", p.ID), zap.Error(err))
			continue
		}
		if !confirmed {
			continue
		}
		if err := s.payments.Complete(ctx, pool, p.ID, store.PaymentStatusSettled, p.FeeMsat, nil, time.Now().UTC(), nil); err != nil {
			logger.Warn("payment sync: failed to settle onchain payment", zap.String("payment_id", p.ID), zap.Error(err))
			continue
		}
		synced++
	}

	return synced, nil
}
