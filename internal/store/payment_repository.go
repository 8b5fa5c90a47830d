package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrPaymentNotFound = errors.New("payment not found")

// PaymentRepository handles database operations for payments (spec.md §3,
// §4.3). Like invoices, the three ledger-specific payloads share one row.
type PaymentRepository struct {
	db *pgxpool.Pool
}

func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db.Pool}
}

const paymentColumns = `id, wallet_id, ledger, currency, amount_msat, fee_msat, status,
	description, payment_time, error, created_at, updated_at,
	payment_hash, payment_preimage, ln_address, success_action_json,
	destination_address, txid, btc_output_id, block_height,
	internal_ln_address, internal_btc_address, counter_payment_hash`

func (r *PaymentRepository) scanRow(row pgx.Row) (*Payment, error) {
	var p Payment
	var paymentHash, paymentPreimage, lnAddress, successActionJSON *string
	var destinationAddress *string
	var txid, btcOutputID *string
	var blockHeight *int64
	var internalLnAddress, internalBtcAddress, counterPaymentHash *string

	err := row.Scan(
		&p.ID, &p.WalletID, &p.Ledger, &p.Currency, &p.AmountMsat, &p.FeeMsat, &p.Status,
		&p.Description, &p.PaymentTime, &p.Error, &p.CreatedAt, &p.UpdatedAt,
		&paymentHash, &paymentPreimage, &lnAddress, &successActionJSON,
		&destinationAddress, &txid, &btcOutputID, &blockHeight,
		&internalLnAddress, &internalBtcAddress, &counterPaymentHash,
	)
	if err != nil {
		return nil, err
	}

	switch p.Ledger {
	case LedgerLightning:
		p.Lightning = &LightningPayment{
			PaymentHash:     paymentHash,
			PaymentPreimage: paymentPreimage,
			LnAddress:       lnAddress,
		}
		if successActionJSON != nil {
			sa, err := decodeSuccessAction(*successActionJSON)
			if err == nil {
				p.Lightning.SuccessAction = sa
			}
		}
	case LedgerOnchain:
		p.Bitcoin = &BitcoinPayment{
			Txid:        txid,
			BtcOutputID: btcOutputID,
		}
		if destinationAddress != nil {
			p.Bitcoin.DestinationAddress = *destinationAddress
		}
		if blockHeight != nil {
			p.Bitcoin.BlockHeight = *blockHeight
		}
	case LedgerInternal:
		p.Internal = &InternalPayment{
			LnAddress:   internalLnAddress,
			BtcAddress:  internalBtcAddress,
			PaymentHash: counterPaymentHash,
		}
	}
	return &p, nil
}

func (r *PaymentRepository) Create(ctx context.Context, q Querier, p *Payment) error {
	query := `INSERT INTO payments (
		id, wallet_id, ledger, currency, amount_msat, fee_msat, status,
		description, payment_time, error, created_at, updated_at,
		payment_hash, payment_preimage, ln_address, success_action_json,
		destination_address, txid, btc_output_id, block_height,
		internal_ln_address, internal_btc_address, counter_payment_hash
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`

	var paymentHash, paymentPreimage, lnAddress, successActionJSON *string
	var destinationAddress, txid, btcOutputID *string
	var blockHeight *int64
	var internalLnAddress, internalBtcAddress, counterPaymentHash *string

	if p.Lightning != nil {
		paymentHash = p.Lightning.PaymentHash
		paymentPreimage = p.Lightning.PaymentPreimage
		lnAddress = p.Lightning.LnAddress
		if p.Lightning.SuccessAction != nil {
			encoded, err := encodeSuccessAction(p.Lightning.SuccessAction)
			if err != nil {
				return fmt.Errorf("failed to encode success action: %w", err)
			}
			successActionJSON = &encoded
		}
	}
	if p.Bitcoin != nil {
		destinationAddress = &p.Bitcoin.DestinationAddress
		txid = p.Bitcoin.Txid
		btcOutputID = p.Bitcoin.BtcOutputID
		blockHeight = &p.Bitcoin.BlockHeight
	}
	if p.Internal != nil {
		internalLnAddress = p.Internal.LnAddress
		internalBtcAddress = p.Internal.BtcAddress
		counterPaymentHash = p.Internal.PaymentHash
	}

	_, err := q.Exec(ctx, query,
		p.ID, p.WalletID, p.Ledger, p.Currency, p.AmountMsat, p.FeeMsat, p.Status,
		p.Description, p.PaymentTime, p.Error, p.CreatedAt, p.UpdatedAt,
		paymentHash, paymentPreimage, lnAddress, successActionJSON,
		destinationAddress, txid, btcOutputID, blockHeight,
		internalLnAddress, internalBtcAddress, counterPaymentHash,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := r.scanRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment %s: %w", id, err)
	}
	return p, nil
}

func (r *PaymentRepository) GetByPaymentHash(ctx context.Context, paymentHash string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE payment_hash = $1`
	p, err := r.scanRow(r.db.QueryRow(ctx, query, paymentHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by payment hash %s: %w", paymentHash, err)
	}
	return p, nil
}

func (r *PaymentRepository) GetByTxid(ctx context.Context, txid string) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE txid = $1`
	p, err := r.scanRow(r.db.QueryRow(ctx, query, txid))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("failed to get payment by txid %s: %w", txid, err)
	}
	return p, nil
}

func (r *PaymentRepository) List(ctx context.Context, filter PaymentFilter) ([]*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE 1=1`
	var args []any
	n := 0

	if filter.WalletID != nil {
		n++
		query += fmt.Sprintf(" AND wallet_id = $%d", n)
		args = append(args, *filter.WalletID)
	}
	if filter.Ledger != nil {
		n++
		query += fmt.Sprintf(" AND ledger = $%d", n)
		args = append(args, *filter.Ledger)
	}
	if len(filter.IDs) > 0 {
		n++
		query += fmt.Sprintf(" AND id = ANY($%d)", n)
		args = append(args, filter.IDs)
	}
	query += " ORDER BY created_at DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// ListPending returns payments without a terminal status — the candidate
// set for the listener's startup Sync() and for retry-completion checks.
func (r *PaymentRepository) ListPending(ctx context.Context, ledger Ledger) ([]*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ledger = $1 AND status = 'pending'`
	rows, err := r.db.Query(ctx, query, ledger)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment row: %w", err)
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// Complete transitions a pending payment to settled or failed. Idempotent:
// only applies while status is still pending, so a duplicate PaySuccess or
// PayFailure event is a no-op (spec.md §4.4).
func (r *PaymentRepository) Complete(ctx context.Context, q Querier, id string, status PaymentStatus, feeMsat int64, preimage *string, paymentTime time.Time, failureReason *string) error {
	query := `UPDATE payments SET
			status = $2,
			fee_msat = $3,
			payment_preimage = COALESCE($4, payment_preimage),
			payment_time = $5,
			error = $6,
			updated_at = $5
		WHERE id = $1 AND status = 'pending'`
	_, err := q.Exec(ctx, query, id, status, feeMsat, preimage, paymentTime, failureReason)
	if err != nil {
		return fmt.Errorf("failed to complete payment %s: %w", id, err)
	}
	return nil
}

// UpdateSuccessAction overwrites the LNURL success action payload, used
// once a payment's preimage is known and the AES variant has been
// decrypted (spec.md §4.3 step 6).
func (r *PaymentRepository) UpdateSuccessAction(ctx context.Context, q Querier, id string, sa *SuccessAction) error {
	var encoded *string
	if sa != nil {
		s, err := encodeSuccessAction(sa)
		if err != nil {
			return fmt.Errorf("failed to encode success action: %w", err)
		}
		encoded = &s
	}
	_, err := q.Exec(ctx, `UPDATE payments SET success_action_json = $2, updated_at = now() WHERE id = $1`, id, encoded)
	if err != nil {
		return fmt.Errorf("failed to update success action for payment %s: %w", id, err)
	}
	return nil
}

// SetTxid records the broadcast txid for an outbound on-chain payment
// that has no associated tracked BtcOutput row (spec.md §4.3 step 2
// "BitcoinAddress" external dispatch).
func (r *PaymentRepository) SetTxid(ctx context.Context, q Querier, id, txid string) error {
	_, err := q.Exec(ctx, `UPDATE payments SET txid = $2, updated_at = now() WHERE id = $1`, id, txid)
	if err != nil {
		return fmt.Errorf("failed to set txid for payment %s: %w", id, err)
	}
	return nil
}

func (r *PaymentRepository) LinkBtcOutput(ctx context.Context, q Querier, id string, btcOutputID, txid string, blockHeight int64) error {
	query := `UPDATE payments SET btc_output_id = $2, txid = $3, block_height = $4, updated_at = now() WHERE id = $1`
	_, err := q.Exec(ctx, query, id, btcOutputID, txid, blockHeight)
	if err != nil {
		return fmt.Errorf("failed to link btc output to payment %s: %w", id, err)
	}
	return nil
}

func (r *PaymentRepository) Delete(ctx context.Context, id string) error {
	commandTag, err := r.db.Exec(ctx, `DELETE FROM payments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payment %s: %w", id, err)
	}
	if commandTag.RowsAffected() == 0 {
		return ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	commandTag, err := r.db.Exec(ctx, `DELETE FROM payments WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete payments: %w", err)
	}
	return commandTag.RowsAffected(), nil
}
