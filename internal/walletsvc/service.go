// Package walletsvc owns wallet creation, Lightning/Bitcoin address
// minting, and the derived balance view (spec.md §4.1). The balance is
// never persisted — every read recomputes it from settled invoices and
// pending-or-settled payments, following the teacher's
// GetTotalReservedBalance aggregation style.
package walletsvc

import (
	"context"
	"fmt"

	"wallet-server/internal/btcwallet"
	"wallet-server/internal/engineerr"
	"wallet-server/internal/metrics"
	"wallet-server/internal/store"

	"github.com/google/uuid"
)

// Balance is the derived view for a single wallet (spec.md §4.1).
type Balance struct {
	WalletID      string
	ReceivedMsat  int64
	SentMsat      int64
	FeesPaidMsat  int64
	AvailableMsat int64
}

type Service struct {
	wallets      *store.WalletRepository
	lnAddresses  *store.LnAddressRepository
	btcAddresses *store.BtcAddressRepository
	btcWallet    *btcwallet.Wallet
	domain       string
	metrics      *metrics.Metrics
}

func New(wallets *store.WalletRepository, lnAddresses *store.LnAddressRepository, btcAddresses *store.BtcAddressRepository, btcWallet *btcwallet.Wallet, domain string, m *metrics.Metrics) *Service {
	return &Service{wallets: wallets, lnAddresses: lnAddresses, btcAddresses: btcAddresses, btcWallet: btcWallet, domain: domain, metrics: m}
}

// Create returns the wallet already provisioned for userID, or provisions
// a new one. It does not mint a Lightning
// Address or Bitcoin address — those are separate, optional operations
// (spec.md §4.6, §6 POST /v1/me/bitcoin/address).
func (s *Service) Create(ctx context.Context, userID string) (*store.Wallet, error) {
	existing, err := s.wallets.GetByUserID(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if err != store.ErrWalletNotFound {
		return nil, engineerr.NewDatabase("wallet", "failed to look up wallet by user", err)
	}

	w := &store.Wallet{ID: uuid.NewString(), UserID: userID}
	if err := s.wallets.Create(ctx, w); err != nil {
		return nil, engineerr.NewDatabase("wallet", "failed to create wallet", err)
	}
	return w, nil
}

func (s *Service) Get(ctx context.Context, walletID string) (*store.Wallet, error) {
	w, err := s.wallets.GetByID(ctx, walletID)
	if err != nil {
		if err == store.ErrWalletNotFound {
			return nil, engineerr.NewNotFound(fmt.Sprintf("wallet %s not found", walletID))
		}
		return nil, engineerr.NewDatabase("wallet", "failed to get wallet", err)
	}
	return w, nil
}

// Balance recomputes the spec.md §4.1 derivation outside of any admission
// transaction — used by read-only GET endpoints. paymentsvc recomputes it
// again inside the admission transaction itself (snapshot isolation),
// since this read and that one must not share a stale view.
func (s *Service) Balance(ctx context.Context, walletID string) (*Balance, error) {
	received, err := s.wallets.ReceivedMsat(ctx, s.wallets.Pool(), walletID)
	if err != nil {
		return nil, engineerr.NewDatabase("wallet", "failed to sum received msat", err)
	}
	sent, fees, err := s.wallets.SentAndFeesMsat(ctx, s.wallets.Pool(), walletID)
	if err != nil {
		return nil, engineerr.NewDatabase("wallet", "failed to sum sent msat", err)
	}
	bal := &Balance{
		WalletID:      walletID,
		ReceivedMsat:  received,
		SentMsat:      sent,
		FeesPaidMsat:  fees,
		AvailableMsat: received - (sent + fees),
	}
	if s.metrics != nil {
		s.metrics.SetWalletBalance(walletID, bal.AvailableMsat)
	}
	return bal, nil
}

// CreateLnAddress mints a new Lightning Address for a wallet, spec.md §3
// username pattern validation left to the HTTP layer's binding tags; this
// service only enforces the uniqueness and one-per-wallet invariants.
func (s *Service) CreateLnAddress(ctx context.Context, walletID, username string, allowsNostr bool, nostrPubkey *string) (*store.LnAddress, error) {
	if username == "" {
		return nil, engineerr.NewValidation("username is required")
	}
	if _, err := s.lnAddresses.GetByWalletID(ctx, walletID); err == nil {
		return nil, engineerr.NewConflict(fmt.Sprintf("wallet %s already has a lightning address", walletID))
	}

	a := &store.LnAddress{
		ID:          uuid.NewString(),
		WalletID:    walletID,
		Username:    username,
		Active:      true,
		AllowsNostr: allowsNostr,
		NostrPubkey: nostrPubkey,
	}
	if err := s.lnAddresses.Create(ctx, a); err != nil {
		if err == store.ErrUsernameTaken {
			return nil, engineerr.NewConflict(fmt.Sprintf("username %q already taken", username))
		}
		return nil, engineerr.NewDatabase("ln_address", "failed to create lightning address", err)
	}
	return a, nil
}

func (s *Service) LnAddressByUsername(ctx context.Context, username string) (*store.LnAddress, error) {
	a, err := s.lnAddresses.GetByUsername(ctx, username)
	if err != nil {
		if err == store.ErrLnAddressNotFound {
			return nil, engineerr.NewNotFound(fmt.Sprintf("lightning address %q not found", username))
		}
		return nil, engineerr.NewDatabase("ln_address", "failed to get lightning address", err)
	}
	return a, nil
}

// Domain returns the server's own domain, used by callers classifying
// internal-payment shortcuts (spec.md §4.3 step 1).
func (s *Service) Domain() string { return s.domain }

// DepositAddress returns the wallet's current unused on-chain deposit
// address, minting one by deriving the next HD index if none exists
// (spec.md §6 POST /v1/me/bitcoin/address: "one per {wallet, address-type}
// or generates one").
func (s *Service) DepositAddress(ctx context.Context, walletID string, addressType store.BtcAddressType) (*store.BtcAddress, error) {
	existing, err := s.btcAddresses.ListByWalletID(ctx, walletID)
	if err != nil {
		return nil, engineerr.NewDatabase("btc_address", "failed to list bitcoin addresses", err)
	}
	for _, a := range existing {
		if a.AddressType == addressType && !a.Used {
			return a, nil
		}
	}

	nextIndex := int64(len(existing))
	addrType := btcwallet.P2WPKH
	addrStr, err := s.btcWallet.NewAddress(ctx, addrType, uint32(nextIndex))
	if err != nil {
		return nil, engineerr.Wrap(engineerr.Bitcoin, "failed to derive deposit address", err)
	}

	a := &store.BtcAddress{
		ID:              uuid.NewString(),
		WalletID:        walletID,
		Address:         addrStr,
		AddressType:     addressType,
		DerivationIndex: &nextIndex,
	}
	if err := s.btcAddresses.Create(ctx, a); err != nil {
		return nil, engineerr.NewDatabase("btc_address", "failed to persist bitcoin address", err)
	}
	return a, nil
}

// TotalOutstandingMsat is an operator diagnostic: the sum of the derived
// available balances of the given wallets, for reconciling against the node's
// own reported liquidity — the same oversell-detection idea as the
// teacher's computeTreasuryBalance (spec.md §12).
func (s *Service) TotalOutstandingMsat(ctx context.Context, walletIDs []string) (int64, error) {
	var total int64
	for _, id := range walletIDs {
		b, err := s.Balance(ctx, id)
		if err != nil {
			return 0, err
		}
		total += b.AvailableMsat
	}
	return total, nil
}
