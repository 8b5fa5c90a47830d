// Package apikey issues and revokes API keys, hashing the bearer secret
// with Argon2id before it ever reaches the database (spec.md §3,
// SPEC_FULL.md §12, grounded on
// original_source/src/domains/user/api_key_handler.rs's key-generation
// flow). Validating a presented key on an inbound request is the
// external auth collaborator's job — this package only ever writes
// ApiKey.hash, it never reads one back for comparison.
package apikey

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"wallet-server/internal/crypto"
	"wallet-server/internal/engineerr"
	"wallet-server/internal/store"

	"github.com/google/uuid"
)

const (
	keyPrefix     = "wsk"
	secretBytes   = 24
	hashSeparator = "$"
)

type Service struct {
	keys *store.ApiKeyRepository
}

func New(keys *store.ApiKeyRepository) *Service {
	return &Service{keys: keys}
}

// Create generates a new API key, persists its Argon2id hash, and
// returns the plaintext key exactly once — it cannot be recovered
// after this call returns.
func (s *Service) Create(ctx context.Context, userID, name string, permissions []string, expiresAt *time.Time) (string, *store.ApiKey, error) {
	if userID == "" {
		return "", nil, engineerr.NewValidation("user_id is required")
	}

	id := uuid.NewString()
	secret, err := randomSecret()
	if err != nil {
		return "", nil, engineerr.NewInconsistency("failed to generate api key secret")
	}

	salt, err := crypto.GenerateSalt()
	if err != nil {
		return "", nil, engineerr.NewInconsistency("failed to generate api key salt")
	}
	digest := crypto.DeriveKey(secret, salt)
	hash := encodeHash(salt, digest)

	record := &store.ApiKey{
		ID:          id,
		UserID:      userID,
		Name:        name,
		Hash:        hash,
		Permissions: permissions,
		ExpiresAt:   expiresAt,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.keys.Create(ctx, record); err != nil {
		return "", nil, engineerr.NewDatabase("api_key", "failed to persist api key", err)
	}

	plainKey := fmt.Sprintf("%s_%s_%s", keyPrefix, id, secret)
	return plainKey, record, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]*store.ApiKey, error) {
	keys, err := s.keys.ListByUserID(ctx, userID)
	if err != nil {
		return nil, engineerr.NewDatabase("api_key", "failed to list api keys", err)
	}
	return keys, nil
}

func (s *Service) Revoke(ctx context.Context, id string) error {
	if err := s.keys.Revoke(ctx, id); err != nil {
		if err == store.ErrApiKeyNotFound {
			return engineerr.NewNotFound("api key not found")
		}
		return engineerr.NewDatabase("api_key", "failed to revoke api key", err)
	}
	return nil
}

func randomSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func encodeHash(salt, digest []byte) string {
	return base64.RawURLEncoding.EncodeToString(salt) + hashSeparator + base64.RawURLEncoding.EncodeToString(digest)
}

// SplitKey recovers the key id embedded in a plaintext API key, the one
// lookup an external caller needs before it can fetch the stored hash
// for comparison.
func SplitKey(plainKey string) (id string, secret string, ok bool) {
	parts := strings.SplitN(plainKey, "_", 3)
	if len(parts) != 3 || parts[0] != keyPrefix {
		return "", "", false
	}
	return parts[1], parts[2], true
}
