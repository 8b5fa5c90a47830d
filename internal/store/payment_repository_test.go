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

func TestPaymentRepository_CreateLightningWithSuccessAction(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewPaymentRepository(db)
	ctx := context.Background()
	walletID := seedWallet(t, db)

	now := time.Now().UTC()
	paymentHash := "abc123"
	message := "thanks!"
	p := &Payment{
		ID:         uuid.New().String(),
		WalletID:   walletID,
		Ledger:     LedgerLightning,
		Currency:   "BTC",
		AmountMsat: 5000,
		Status:     PaymentStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Lightning: &LightningPayment{
			PaymentHash:   &paymentHash,
			SuccessAction: &SuccessAction{Tag: "message", Message: &message},
		},
	}
	require.NoError(t, repo.Create(ctx, db.Pool, p))

	got, err := repo.GetByPaymentHash(ctx, paymentHash)
	require.NoError(t, err)
	require.NotNil(t, got.Lightning)
	require.NotNil(t, got.Lightning.SuccessAction)
	assert.Equal(t, "message", got.Lightning.SuccessAction.Tag)
	require.NotNil(t, got.Lightning.SuccessAction.Message)
	assert.Equal(t, message, *got.Lightning.SuccessAction.Message)
}

func TestPaymentRepository_CompleteIsIdempotent(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewPaymentRepository(db)
	ctx := context.Background()
	walletID := seedWallet(t, db)

	now := time.Now().UTC()
	paymentHash := "xyz789"
	paymentID := uuid.New().String()
	require.NoError(t, repo.Create(ctx, db.Pool, &Payment{
		ID:         paymentID,
		WalletID:   walletID,
		Ledger:     LedgerLightning,
		Currency:   "BTC",
		AmountMsat: 7000,
		Status:     PaymentStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Lightning:  &LightningPayment{PaymentHash: &paymentHash},
	}))

	preimage := "feedface"
	settleTime := now.Add(time.Minute)
	require.NoError(t, repo.Complete(ctx, db.Pool, paymentID, PaymentStatusSettled, 42, &preimage, settleTime, nil))

	// A second completion (e.g. a duplicate PayFailure racing the settled
	// event) must not flip an already-settled payment to failed.
	reason := "timeout"
	require.NoError(t, repo.Complete(ctx, db.Pool, paymentID, PaymentStatusFailed, 0, nil, now.Add(time.Hour), &reason))

	got, err := repo.GetByID(ctx, paymentID)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusSettled, got.Status)
	assert.Equal(t, int64(42), got.FeeMsat)
	require.NotNil(t, got.Lightning.PaymentPreimage)
	assert.Equal(t, preimage, *got.Lightning.PaymentPreimage)
}

func TestPaymentRepository_ListPending(t *testing.T) {
	db := SetupTestDB(t)
	defer db.Close()
	defer CleanupTestDB(t, db)

	repo := NewPaymentRepository(db)
	ctx := context.Background()
	walletID := seedWallet(t, db)
	now := time.Now().UTC()

	pendingID := uuid.New().String()
	require.NoError(t, repo.Create(ctx, db.Pool, &Payment{
		ID:         pendingID,
		WalletID:   walletID,
		Ledger:     LedgerOnchain,
		Currency:   "BTC",
		AmountMsat: 1000,
		Status:     PaymentStatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
		Bitcoin:    &BitcoinPayment{DestinationAddress: "addr1"},
	}))
	require.NoError(t, repo.Create(ctx, db.Pool, &Payment{
		ID:         uuid.New().String(),
		WalletID:   walletID,
		Ledger:     LedgerOnchain,
		Currency:   "BTC",
		AmountMsat: 2000,
		Status:     PaymentStatusSettled,
		PaymentTime: &now,
		CreatedAt:  now,
		UpdatedAt:  now,
		Bitcoin:    &BitcoinPayment{DestinationAddress: "addr2"},
	}))

	pending, err := repo.ListPending(ctx, LedgerOnchain)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, pendingID, pending[0].ID)
}
