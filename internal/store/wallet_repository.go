package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrWalletNotFound = errors.New("wallet not found")

// WalletRepository handles database operations for wallets. The balance
// itself is never stored here — see walletsvc for the derived aggregation.
type WalletRepository struct {
	db *pgxpool.Pool
}

func NewWalletRepository(db *DB) *WalletRepository {
	return &WalletRepository{db: db.Pool}
}

func (r *WalletRepository) Create(ctx context.Context, w *Wallet) error {
	query := `INSERT INTO wallets (id, user_id, created_at) VALUES ($1, $2, $3)`
	_, err := r.db.Exec(ctx, query, w.ID, w.UserID, w.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create wallet: %w", err)
	}
	return nil
}

func (r *WalletRepository) GetByID(ctx context.Context, id string) (*Wallet, error) {
	query := `SELECT id, user_id, created_at FROM wallets WHERE id = $1`
	var w Wallet
	err := r.db.QueryRow(ctx, query, id).Scan(&w.ID, &w.UserID, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet %s: %w", id, err)
	}
	return &w, nil
}

func (r *WalletRepository) GetByUserID(ctx context.Context, userID string) (*Wallet, error) {
	query := `SELECT id, user_id, created_at FROM wallets WHERE user_id = $1`
	var w Wallet
	err := r.db.QueryRow(ctx, query, userID).Scan(&w.ID, &w.UserID, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, fmt.Errorf("failed to get wallet for user %s: %w", userID, err)
	}
	return &w, nil
}

// ReceivedMsat sums amount_received_msat for settled invoices of a wallet,
// tolerating an empty result via COALESCE (spec.md §4.1), following the
// teacher's GetTotalReservedBalance pattern. q is the pool to run outside
// a transaction (e.g. read-only GET), or a pgx.Tx for the admission-control
// path in paymentsvc, which needs snapshot isolation with the Payment
// insert.
func (r *WalletRepository) ReceivedMsat(ctx context.Context, q Querier, walletID string) (int64, error) {
	query := `SELECT COALESCE(SUM(amount_received_msat), 0) FROM invoices WHERE wallet_id = $1 AND payment_time IS NOT NULL`
	var total int64
	if err := q.QueryRow(ctx, query, walletID).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum received msat for wallet %s: %w", walletID, err)
	}
	return total, nil
}

// SentAndFeesMsat sums amount_msat and fee_msat across settled+pending
// payments (the spendability invariant: pending outflows are debited).
func (r *WalletRepository) SentAndFeesMsat(ctx context.Context, q Querier, walletID string) (sentMsat int64, feesMsat int64, err error) {
	query := `SELECT COALESCE(SUM(amount_msat), 0), COALESCE(SUM(fee_msat), 0)
		FROM payments WHERE wallet_id = $1 AND status IN ('settled', 'pending')`
	if err := q.QueryRow(ctx, query, walletID).Scan(&sentMsat, &feesMsat); err != nil {
		return 0, 0, fmt.Errorf("failed to sum sent msat for wallet %s: %w", walletID, err)
	}
	return sentMsat, feesMsat, nil
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so balance
// aggregation can run either standalone or inside the admission-control
// transaction (spec.md §4.1/§5).
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Pool returns the underlying pool for transaction management in callers
// that need pgx.BeginTx with explicit isolation (admission control).
func (r *WalletRepository) Pool() *pgxpool.Pool { return r.db }
