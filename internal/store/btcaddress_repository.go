package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrBtcAddressNotFound = errors.New("bitcoin address not found")

// BtcAddressRepository handles database operations for on-chain deposit
// addresses (spec.md §3/§4.1).
type BtcAddressRepository struct {
	db *pgxpool.Pool
}

func NewBtcAddressRepository(db *DB) *BtcAddressRepository {
	return &BtcAddressRepository{db: db.Pool}
}

func (r *BtcAddressRepository) Create(ctx context.Context, a *BtcAddress) error {
	query := `INSERT INTO btc_addresses (id, wallet_id, address, address_type, used, derivation_index)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := r.db.Exec(ctx, query, a.ID, a.WalletID, a.Address, a.AddressType, a.Used, a.DerivationIndex)
	if err != nil {
		return fmt.Errorf("failed to create bitcoin address: %w", err)
	}
	return nil
}

func (r *BtcAddressRepository) GetByAddress(ctx context.Context, address string) (*BtcAddress, error) {
	query := `SELECT id, wallet_id, address, address_type, used, derivation_index FROM btc_addresses WHERE address = $1`
	var a BtcAddress
	err := r.db.QueryRow(ctx, query, address).Scan(&a.ID, &a.WalletID, &a.Address, &a.AddressType, &a.Used, &a.DerivationIndex)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBtcAddressNotFound
		}
		return nil, fmt.Errorf("failed to get bitcoin address %s: %w", address, err)
	}
	return &a, nil
}

func (r *BtcAddressRepository) ListByWalletID(ctx context.Context, walletID string) ([]*BtcAddress, error) {
	query := `SELECT id, wallet_id, address, address_type, used, derivation_index FROM btc_addresses WHERE wallet_id = $1 ORDER BY derivation_index`
	rows, err := r.db.Query(ctx, query, walletID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bitcoin addresses for wallet %s: %w", walletID, err)
	}
	defer rows.Close()

	var addrs []*BtcAddress
	for rows.Next() {
		var a BtcAddress
		if err := rows.Scan(&a.ID, &a.WalletID, &a.Address, &a.AddressType, &a.Used, &a.DerivationIndex); err != nil {
			return nil, fmt.Errorf("failed to scan bitcoin address: %w", err)
		}
		addrs = append(addrs, &a)
	}
	return addrs, rows.Err()
}

func (r *BtcAddressRepository) MarkUsed(ctx context.Context, address string) error {
	query := `UPDATE btc_addresses SET used = true WHERE address = $1`
	_, err := r.db.Exec(ctx, query, address)
	if err != nil {
		return fmt.Errorf("failed to mark bitcoin address %s used: %w", address, err)
	}
	return nil
}
