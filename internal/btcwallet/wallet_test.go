package btcwallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSeed() []byte {
	return []byte("01234567890123456789012345678901")
}

func TestNewWallet_InvalidNetwork(t *testing.T) {
	_, err := NewWallet(testSeed(), "regtest")
	assert.Error(t, err)
}

func TestNewAddress_DeterministicByIndex(t *testing.T) {
	w, err := NewWallet(testSeed(), "testnet")
	require.NoError(t, err)

	addr1, err := w.NewAddress(context.Background(), P2WPKH, 0)
	require.NoError(t, err)
	addr2, err := w.NewAddress(context.Background(), P2WPKH, 0)
	require.NoError(t, err)
	addr3, err := w.NewAddress(context.Background(), P2WPKH, 1)
	require.NoError(t, err)

	assert.Equal(t, addr1, addr2, "same index must derive the same address")
	assert.NotEqual(t, addr1, addr3, "different indices must derive different addresses")
	assert.True(t, w.ValidateAddress(addr1))
}

func TestNewAddress_RejectsUnsupportedType(t *testing.T) {
	w, err := NewWallet(testSeed(), "testnet")
	require.NoError(t, err)

	_, err = w.NewAddress(context.Background(), AddressType("p2tr"), 0)
	assert.Error(t, err)
}

func TestSelectCoins_PicksEnoughConfirmedInputs(t *testing.T) {
	utxos := []UTXO{
		{TxHash: "a", Vout: 0, Value: 10000, Confirmed: true},
		{TxHash: "b", Vout: 0, Value: 5000, Confirmed: false},
		{TxHash: "c", Vout: 0, Value: 20000, Confirmed: true},
	}

	selected, total, change, err := selectCoins(utxos, 15000, 1)
	require.NoError(t, err)
	assert.Len(t, selected, 2)
	assert.Equal(t, int64(30000), total)
	assert.Greater(t, change, int64(0))

	// The unconfirmed UTXO must never be selected.
	for _, u := range selected {
		assert.True(t, u.Confirmed)
	}
}

func TestSelectCoins_InsufficientFunds(t *testing.T) {
	utxos := []UTXO{{TxHash: "a", Vout: 0, Value: 1000, Confirmed: true}}

	_, _, _, err := selectCoins(utxos, 50000, 1)
	assert.Error(t, err)
}
