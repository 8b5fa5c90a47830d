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

func TestWalletRepository_CreateAndGet(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewWalletRepository(db)
	ctx := context.Background()

	walletID := uuid.New().String()
	w := &Wallet{
		ID:        walletID,
		UserID:    "user-1",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.Create(ctx, w))

	byID, err := repo.GetByID(ctx, walletID)
	require.NoError(t, err)
	assert.Equal(t, walletID, byID.ID)
	assert.Equal(t, "user-1", byID.UserID)

	byUser, err := repo.GetByUserID(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, walletID, byUser.ID)
}

func TestWalletRepository_GetByID_NotFound(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewWalletRepository(db)
	ctx := context.Background()

	w, err := repo.GetByID(ctx, uuid.New().String())
	assert.ErrorIs(t, err, ErrWalletNotFound)
	assert.Nil(t, w)
}

func TestWalletRepository_BalanceAggregation(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	walletRepo := NewWalletRepository(db)
	invoiceRepo := NewInvoiceRepository(db)
	paymentRepo := NewPaymentRepository(db)
	ctx := context.Background()

	walletID := uuid.New().String()
	require.NoError(t, walletRepo.Create(ctx, &Wallet{ID: walletID, UserID: "user-2", CreatedAt: time.Now().UTC()}))

	// Two settled invoices contribute to received msat.
	now := time.Now().UTC()
	for _, amount := range []int64{100000, 50000} {
		inv := &Invoice{
			ID:                 uuid.New().String(),
			WalletID:           walletID,
			Ledger:             LedgerOnchain,
			Currency:           "BTC",
			AmountMsat:         amount,
			AmountReceivedMsat: amount,
			Status:             InvoiceStatusSettled,
			Timestamp:          now,
			PaymentTime:        &now,
			ExpiresAt:          now.Add(time.Hour),
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		require.NoError(t, invoiceRepo.Create(ctx, inv))
	}

	// A pending invoice must not count yet.
	require.NoError(t, invoiceRepo.Create(ctx, &Invoice{
		ID:         uuid.New().String(),
		WalletID:   walletID,
		Ledger:     LedgerOnchain,
		Currency:   "BTC",
		AmountMsat: 999999,
		Status:     InvoiceStatusPending,
		Timestamp:  now,
		ExpiresAt:  now.Add(time.Hour),
		CreatedAt:  now,
		UpdatedAt:  now,
	}))

	received, err := walletRepo.ReceivedMsat(ctx, db.Pool, walletID)
	require.NoError(t, err)
	assert.Equal(t, int64(150000), received)

	// A settled and a pending payment both debit spendable balance.
	settled := &Payment{
		ID:          uuid.New().String(),
		WalletID:    walletID,
		Ledger:      LedgerOnchain,
		Currency:    "BTC",
		AmountMsat:  30000,
		FeeMsat:     500,
		Status:      PaymentStatusSettled,
		PaymentTime: &now,
		CreatedAt:   now,
		UpdatedAt:   now,
		Bitcoin:     &BitcoinPayment{DestinationAddress: "addr1"},
	}
	require.NoError(t, paymentRepo.Create(ctx, db.Pool, settled))

	pending := &Payment{
		ID:         uuid.New().String(),
		WalletID:   walletID,
		Ledger:     LedgerOnchain,
		Currency:   "BTC",
		AmountMsat: 10000,
		FeeMsat:    100,
		Status:     PaymentStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Bitcoin:    &BitcoinPayment{DestinationAddress: "addr2"},
	}
	require.NoError(t, paymentRepo.Create(ctx, db.Pool, pending))

	// A failed payment must not count.
	failed := &Payment{
		ID:         uuid.New().String(),
		WalletID:   walletID,
		Ledger:     LedgerOnchain,
		Currency:   "BTC",
		AmountMsat: 77777,
		Status:     PaymentStatusFailed,
		CreatedAt:  now,
		UpdatedAt:  now,
		Bitcoin:    &BitcoinPayment{DestinationAddress: "addr3"},
	}
	require.NoError(t, paymentRepo.Create(ctx, db.Pool, failed))

	sent, fees, err := walletRepo.SentAndFeesMsat(ctx, db.Pool, walletID)
	require.NoError(t, err)
	assert.Equal(t, int64(40000), sent)
	assert.Equal(t, int64(600), fees)

	balance := received - (sent + fees)
	assert.Equal(t, int64(109400), balance)
}
