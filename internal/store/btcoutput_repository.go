package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrBtcOutputNotFound = errors.New("bitcoin output not found")

// BtcOutputRepository tracks on-chain UTXOs observed by the node adapter
// (spec.md §3, §4.4). Rows are upserted by outpoint so a reorg'd or
// re-announced output never duplicates.
type BtcOutputRepository struct {
	db *pgxpool.Pool
}

func NewBtcOutputRepository(db *DB) *BtcOutputRepository {
	return &BtcOutputRepository{db: db.Pool}
}

// Upsert inserts a new output or updates its status/block height if the
// outpoint already exists, returning the row's ID either way.
func (r *BtcOutputRepository) Upsert(ctx context.Context, q Querier, o *BtcOutput) (string, error) {
	query := `INSERT INTO btc_outputs (
			id, outpoint, txid, output_index, address, amount_sat, status, block_height, network, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (outpoint) DO UPDATE SET
			status = EXCLUDED.status,
			block_height = EXCLUDED.block_height,
			updated_at = EXCLUDED.updated_at
		RETURNING id`
	var id string
	err := q.QueryRow(ctx, query,
		o.ID, o.Outpoint, o.Txid, o.OutputIndex, o.Address, o.AmountSat, o.Status, o.BlockHeight, o.Network, o.CreatedAt, o.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to upsert bitcoin output %s: %w", o.Outpoint, err)
	}
	return id, nil
}

func (r *BtcOutputRepository) GetByOutpoint(ctx context.Context, outpoint string) (*BtcOutput, error) {
	query := `SELECT id, outpoint, txid, output_index, address, amount_sat, status, block_height, network, created_at, updated_at
		FROM btc_outputs WHERE outpoint = $1`
	var o BtcOutput
	err := r.db.QueryRow(ctx, query, outpoint).Scan(
		&o.ID, &o.Outpoint, &o.Txid, &o.OutputIndex, &o.Address, &o.AmountSat, &o.Status, &o.BlockHeight, &o.Network, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBtcOutputNotFound
		}
		return nil, fmt.Errorf("failed to get bitcoin output %s: %w", outpoint, err)
	}
	return &o, nil
}

func (r *BtcOutputRepository) GetByID(ctx context.Context, id string) (*BtcOutput, error) {
	query := `SELECT id, outpoint, txid, output_index, address, amount_sat, status, block_height, network, created_at, updated_at
		FROM btc_outputs WHERE id = $1`
	var o BtcOutput
	err := r.db.QueryRow(ctx, query, id).Scan(
		&o.ID, &o.Outpoint, &o.Txid, &o.OutputIndex, &o.Address, &o.AmountSat, &o.Status, &o.BlockHeight, &o.Network, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBtcOutputNotFound
		}
		return nil, fmt.Errorf("failed to get bitcoin output %s: %w", id, err)
	}
	return &o, nil
}

// ListUnconfirmed returns outputs still awaiting confirmation, the
// candidate set for reconciliation against the node's current chain tip.
func (r *BtcOutputRepository) ListUnconfirmed(ctx context.Context) ([]*BtcOutput, error) {
	query := `SELECT id, outpoint, txid, output_index, address, amount_sat, status, block_height, network, created_at, updated_at
		FROM btc_outputs WHERE status = 'unconfirmed'`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list unconfirmed outputs: %w", err)
	}
	defer rows.Close()

	var outputs []*BtcOutput
	for rows.Next() {
		var o BtcOutput
		if err := rows.Scan(&o.ID, &o.Outpoint, &o.Txid, &o.OutputIndex, &o.Address, &o.AmountSat, &o.Status, &o.BlockHeight, &o.Network, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bitcoin output row: %w", err)
		}
		outputs = append(outputs, &o)
	}
	return outputs, rows.Err()
}
