package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveKeyDeterministic(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	key1 := DeriveKey("correct-horse-battery-staple", salt)
	key2 := DeriveKey("correct-horse-battery-staple", salt)
	require.Equal(t, key1, key2)
	require.Len(t, key1, KeySize)
}

func TestDeriveKeyDifferentSaltDifferentKey(t *testing.T) {
	saltA, err := GenerateSalt()
	require.NoError(t, err)
	saltB, err := GenerateSalt()
	require.NoError(t, err)

	keyA := DeriveKey("same-password", saltA)
	keyB := DeriveKey("same-password", saltB)
	require.NotEqual(t, keyA, keyB)
}

func TestDeriveKeyDifferentPasswordDifferentKey(t *testing.T) {
	salt, err := GenerateSalt()
	require.NoError(t, err)

	require.NotEqual(t, DeriveKey("password-one", salt), DeriveKey("password-two", salt))
}

func TestGenerateSaltUnique(t *testing.T) {
	a, err := GenerateSalt()
	require.NoError(t, err)
	b, err := GenerateSalt()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Len(t, a, SaltSize)
}
