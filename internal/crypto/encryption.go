// Package crypto provides the one-way key derivation backing API-key
// hashing (internal/apikey). Reversible encryption of customer secrets
// is out of scope for this engine — the teacher's symmetric cipher
// helpers are dropped; see DESIGN.md.
package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/argon2"
)

const (
	SaltSize   = 16
	KeySize    = 32
	argonTime  = 1
	argonMemKB = 64 * 1024
	argonLanes = 4
)

// GenerateSalt returns a fresh random salt for DeriveKey.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.New("failed to generate salt")
	}
	return salt, nil
}

// DeriveKey runs Argon2id over password and salt, returning a
// KeySize-byte digest. Deterministic for a given (password, salt) pair,
// so a digest stored by internal/apikey can be recomputed from the
// plaintext key and its salt.
func DeriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, argonTime, argonMemKB, argonLanes, KeySize)
}
