//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedWallet(t *testing.T, db *DB) string {
	t.Helper()
	walletID := uuid.New().String()
	err := NewWalletRepository(db).Create(context.Background(), &Wallet{
		ID:        walletID,
		UserID:    uuid.New().String(),
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	return walletID
}

func TestInvoiceRepository_CreateLightningAndGetByPaymentHash(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewInvoiceRepository(db)
	ctx := context.Background()
	walletID := seedWallet(t, db)

	now := time.Now().UTC()
	invID := uuid.New().String()
	inv := &Invoice{
		ID:         invID,
		WalletID:   walletID,
		Ledger:     LedgerLightning,
		Currency:   "BTC",
		AmountMsat: 21000,
		Status:     InvoiceStatusPending,
		Timestamp:  now,
		ExpiresAt:  now.Add(time.Hour),
		CreatedAt:  now,
		UpdatedAt:  now,
		LnInvoice: &LnInvoice{
			Bolt11:         "lnbc210n1p...",
			PaymentHash:    "deadbeef",
			ExpiryDuration: 3600,
		},
	}
	require.NoError(t, repo.Create(ctx, inv))

	byHash, err := repo.GetByPaymentHash(ctx, "deadbeef")
	require.NoError(t, err)
	require.NotNil(t, byHash.LnInvoice)
	assert.Equal(t, "lnbc210n1p...", byHash.LnInvoice.Bolt11)
	assert.Equal(t, InvoiceStatusPending, byHash.Status)
}

func TestInvoiceRepository_MarkSettledIsIdempotent(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewInvoiceRepository(db)
	ctx := context.Background()
	walletID := seedWallet(t, db)

	now := time.Now().UTC()
	invID := uuid.New().String()
	require.NoError(t, repo.Create(ctx, &Invoice{
		ID:         invID,
		WalletID:   walletID,
		Ledger:     LedgerOnchain,
		Currency:   "BTC",
		AmountMsat: 50000,
		Status:     InvoiceStatusPending,
		Timestamp:  now,
		ExpiresAt:  now.Add(time.Hour),
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	settleTime := now.Add(time.Minute)
	require.NoError(t, repo.MarkSettled(ctx, db.Pool, invID, 50000, 0, settleTime))

	// A duplicate settlement event with a different amount must not
	// overwrite the first one.
	require.NoError(t, repo.MarkSettled(ctx, db.Pool, invID, 999999, 100, now.Add(time.Hour)))

	got, err := repo.GetByID(ctx, invID)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), got.AmountReceivedMsat)
	require.NotNil(t, got.PaymentTime)
	assert.WithinDuration(t, settleTime, *got.PaymentTime, time.Second)
}

func TestInvoiceRepository_DerivedStatusExpiry(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewInvoiceRepository(db)
	ctx := context.Background()
	walletID := seedWallet(t, db)

	now := time.Now().UTC()
	invID := uuid.New().String()
	require.NoError(t, repo.Create(ctx, &Invoice{
		ID:         invID,
		WalletID:   walletID,
		Ledger:     LedgerOnchain,
		Currency:   "BTC",
		AmountMsat: 1000,
		Status:     InvoiceStatusPending,
		Timestamp:  now,
		ExpiresAt:  now.Add(-time.Minute),
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	got, err := repo.GetByID(ctx, invID)
	require.NoError(t, err)
	assert.Equal(t, InvoiceStatusExpired, got.DerivedStatus(time.Now().UTC()))
}

func TestInvoiceRepository_DeleteMany(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewInvoiceRepository(db)
	ctx := context.Background()
	walletID := seedWallet(t, db)

	now := time.Now().UTC()
	var ids []string
	for i := 0; i < 3; i++ {
		id := uuid.New().String()
		ids = append(ids, id)
		require.NoError(t, repo.Create(ctx, &Invoice{
			ID:         id,
			WalletID:   walletID,
			Ledger:     LedgerOnchain,
			Currency:   "BTC",
			AmountMsat: 1000,
			Status:     InvoiceStatusPending,
			Timestamp:  now,
			ExpiresAt:  now.Add(time.Hour),
			CreatedAt:  now,
			UpdatedAt:  now,
		}))
	}

	deleted, err := repo.DeleteMany(ctx, ids)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	for _, id := range ids {
		_, err := repo.GetByID(ctx, id)
		assert.ErrorIs(t, err, ErrInvoiceNotFound)
	}
}
