package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrLnAddressNotFound = errors.New("lightning address not found")
	ErrUsernameTaken     = errors.New("username already taken")
)

// LnAddressRepository handles database operations for Lightning Addresses
// (user@domain handles, spec.md §3/§4.6).
type LnAddressRepository struct {
	db *pgxpool.Pool
}

func NewLnAddressRepository(db *DB) *LnAddressRepository {
	return &LnAddressRepository{db: db.Pool}
}

func (r *LnAddressRepository) Create(ctx context.Context, a *LnAddress) error {
	query := `INSERT INTO ln_addresses (id, wallet_id, username, active, nostr_pubkey, allows_nostr)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Exec(ctx, query, a.ID, a.WalletID, a.Username, a.Active, a.NostrPubkey, a.AllowsNostr)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrUsernameTaken
		}
		return fmt.Errorf("failed to create lightning address: %w", err)
	}
	return nil
}

func (r *LnAddressRepository) GetByUsername(ctx context.Context, username string) (*LnAddress, error) {
	query := `SELECT id, wallet_id, username, active, nostr_pubkey, allows_nostr FROM ln_addresses WHERE username = $1`
	var a LnAddress
	err := r.db.QueryRow(ctx, query, username).Scan(&a.ID, &a.WalletID, &a.Username, &a.Active, &a.NostrPubkey, &a.AllowsNostr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLnAddressNotFound
		}
		return nil, fmt.Errorf("failed to get lightning address %s: %w", username, err)
	}
	return &a, nil
}

func (r *LnAddressRepository) GetByWalletID(ctx context.Context, walletID string) (*LnAddress, error) {
	query := `SELECT id, wallet_id, username, active, nostr_pubkey, allows_nostr FROM ln_addresses WHERE wallet_id = $1`
	var a LnAddress
	err := r.db.QueryRow(ctx, query, walletID).Scan(&a.ID, &a.WalletID, &a.Username, &a.Active, &a.NostrPubkey, &a.AllowsNostr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLnAddressNotFound
		}
		return nil, fmt.Errorf("failed to get lightning address for wallet %s: %w", walletID, err)
	}
	return &a, nil
}
