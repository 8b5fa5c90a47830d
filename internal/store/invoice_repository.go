package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInvoiceNotFound = errors.New("invoice not found")

// InvoiceRepository handles database operations for invoices (spec.md §3,
// §4.2). Ln invoice fields live in the same row; the Bitcoin ledger populates
// btc_output_id instead.
type InvoiceRepository struct {
	db *pgxpool.Pool
}

func NewInvoiceRepository(db *DB) *InvoiceRepository {
	return &InvoiceRepository{db: db.Pool}
}

const invoiceColumns = `id, wallet_id, ln_address_id, ledger, currency, amount_msat,
	amount_received_msat, fee_msat, status, description, timestamp, payment_time,
	expires_at, created_at, updated_at, btc_output_id,
	bolt11, payment_hash, payee_pubkey, description_hash, payment_secret, min_final_cltv, expiry_duration`

func (r *InvoiceRepository) scanRow(row pgx.Row) (*Invoice, error) {
	var inv Invoice
	var bolt11, paymentHash, payeePubkey, descriptionHash, paymentSecret *string
	var minFinalCltv *int32
	var expiryDuration *int64

	err := row.Scan(
		&inv.ID, &inv.WalletID, &inv.LnAddressID, &inv.Ledger, &inv.Currency, &inv.AmountMsat,
		&inv.AmountReceivedMsat, &inv.FeeMsat, &inv.Status, &inv.Description, &inv.Timestamp, &inv.PaymentTime,
		&inv.ExpiresAt, &inv.CreatedAt, &inv.UpdatedAt, &inv.BtcOutputID,
		&bolt11, &paymentHash, &payeePubkey, &descriptionHash, &paymentSecret, &minFinalCltv, &expiryDuration,
	)
	if err != nil {
		return nil, err
	}

	if inv.Ledger == LedgerLightning && bolt11 != nil {
		inv.LnInvoice = &LnInvoice{
			Bolt11:          *bolt11,
			PaymentHash:     *paymentHash,
			PayeePubkey:     payeePubkey,
			DescriptionHash: descriptionHash,
			PaymentSecret:   paymentSecret,
			MinFinalCltv:    minFinalCltv,
		}
		if expiryDuration != nil {
			inv.LnInvoice.ExpiryDuration = *expiryDuration
		}
	}
	return &inv, nil
}

func (r *InvoiceRepository) Create(ctx context.Context, inv *Invoice) error {
	query := `INSERT INTO invoices (
		id, wallet_id, ln_address_id, ledger, currency, amount_msat,
		amount_received_msat, fee_msat, status, description, timestamp, payment_time,
		expires_at, created_at, updated_at, btc_output_id,
		bolt11, payment_hash, payee_pubkey, description_hash, payment_secret, min_final_cltv, expiry_duration
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23)`

	var bolt11, paymentHash, payeePubkey, descriptionHash, paymentSecret *string
	var minFinalCltv *int32
	var expiryDuration *int64
	if inv.LnInvoice != nil {
		bolt11 = &inv.LnInvoice.Bolt11
		paymentHash = &inv.LnInvoice.PaymentHash
		payeePubkey = inv.LnInvoice.PayeePubkey
		descriptionHash = inv.LnInvoice.DescriptionHash
		paymentSecret = inv.LnInvoice.PaymentSecret
		minFinalCltv = inv.LnInvoice.MinFinalCltv
		expiryDuration = &inv.LnInvoice.ExpiryDuration
	}

	_, err := r.db.Exec(ctx, query,
		inv.ID, inv.WalletID, inv.LnAddressID, inv.Ledger, inv.Currency, inv.AmountMsat,
		inv.AmountReceivedMsat, inv.FeeMsat, inv.Status, inv.Description, inv.Timestamp, inv.PaymentTime,
		inv.ExpiresAt, inv.CreatedAt, inv.UpdatedAt, inv.BtcOutputID,
		bolt11, paymentHash, payeePubkey, descriptionHash, paymentSecret, minFinalCltv, expiryDuration,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("invoice already exists: %w", err)
		}
		return fmt.Errorf("failed to create invoice: %w", err)
	}
	return nil
}

func (r *InvoiceRepository) GetByID(ctx context.Context, id string) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	inv, err := r.scanRow(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice %s: %w", id, err)
	}
	return inv, nil
}

func (r *InvoiceRepository) GetByPaymentHash(ctx context.Context, paymentHash string) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE payment_hash = $1`
	inv, err := r.scanRow(r.db.QueryRow(ctx, query, paymentHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice by payment hash %s: %w", paymentHash, err)
	}
	return inv, nil
}

func (r *InvoiceRepository) GetByBtcOutputID(ctx context.Context, btcOutputID string) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE btc_output_id = $1`
	inv, err := r.scanRow(r.db.QueryRow(ctx, query, btcOutputID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvoiceNotFound
		}
		return nil, fmt.Errorf("failed to get invoice by btc output %s: %w", btcOutputID, err)
	}
	return inv, nil
}

// List returns invoices matching the filter, newest first.
func (r *InvoiceRepository) List(ctx context.Context, filter InvoiceFilter) ([]*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE 1=1`
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
	query += " ORDER BY timestamp DESC"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		inv, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice row: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ListUnresolved returns invoices without a payment_time whose deposit or
// payment may still land — the candidate set for the listener's startup
// Sync(). Pending and Expired are both re-checked (spec.md §9): an invoice
// can still be settled by a node event racing the expiry clock.
func (r *InvoiceRepository) ListUnresolved(ctx context.Context, ledger Ledger) ([]*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE ledger = $1 AND payment_time IS NULL`
	rows, err := r.db.Query(ctx, query, ledger)
	if err != nil {
		return nil, fmt.Errorf("failed to list unresolved invoices: %w", err)
	}
	defer rows.Close()

	var invoices []*Invoice
	for rows.Next() {
		inv, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice row: %w", err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// MarkSettled records receipt against an invoice. Idempotent: a second call
// for an already-settled invoice is a no-op (amount_received_msat/fee_msat
// is only applied while payment_time is still NULL), satisfying the
// idempotent event-handler invariant (spec.md §4.4).
func (r *InvoiceRepository) MarkSettled(ctx context.Context, q Querier, id string, amountReceivedMsat, feeMsat int64, paymentTime time.Time) error {
	query := `UPDATE invoices SET
			status = 'settled',
			amount_received_msat = $2,
			fee_msat = $3,
			payment_time = $4,
			updated_at = $4
		WHERE id = $1 AND payment_time IS NULL`
	_, err := q.Exec(ctx, query, id, amountReceivedMsat, feeMsat, paymentTime)
	if err != nil {
		return fmt.Errorf("failed to mark invoice %s settled: %w", id, err)
	}
	return nil
}

func (r *InvoiceRepository) LinkBtcOutput(ctx context.Context, q Querier, id string, btcOutputID string) error {
	query := `UPDATE invoices SET btc_output_id = $2, updated_at = now() WHERE id = $1`
	_, err := q.Exec(ctx, query, id, btcOutputID)
	if err != nil {
		return fmt.Errorf("failed to link btc output to invoice %s: %w", id, err)
	}
	return nil
}

func (r *InvoiceRepository) Delete(ctx context.Context, id string) error {
	commandTag, err := r.db.Exec(ctx, `DELETE FROM invoices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete invoice %s: %w", id, err)
	}
	if commandTag.RowsAffected() == 0 {
		return ErrInvoiceNotFound
	}
	return nil
}

func (r *InvoiceRepository) DeleteMany(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	commandTag, err := r.db.Exec(ctx, `DELETE FROM invoices WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to delete invoices: %w", err)
	}
	return commandTag.RowsAffected(), nil
}
