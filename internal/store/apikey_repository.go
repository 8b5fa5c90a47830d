package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrApiKeyNotFound = errors.New("api key not found")

// ApiKeyRepository persists hashed API keys. The engine creates and revokes
// keys but never validates bearer tokens itself (spec.md §3, §6).
type ApiKeyRepository struct {
	db *pgxpool.Pool
}

func NewApiKeyRepository(db *DB) *ApiKeyRepository {
	return &ApiKeyRepository{db: db.Pool}
}

func (r *ApiKeyRepository) Create(ctx context.Context, k *ApiKey) error {
	query := `INSERT INTO api_keys (id, user_id, name, hash, permissions, expires_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`
	_, err := r.db.Exec(ctx, query, k.ID, k.UserID, k.Name, k.Hash, k.Permissions, k.ExpiresAt, k.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create api key: %w", err)
	}
	return nil
}

func (r *ApiKeyRepository) GetByHash(ctx context.Context, hash string) (*ApiKey, error) {
	query := `SELECT id, user_id, name, hash, permissions, expires_at, created_at FROM api_keys WHERE hash = $1`
	var k ApiKey
	err := r.db.QueryRow(ctx, query, hash).Scan(&k.ID, &k.UserID, &k.Name, &k.Hash, &k.Permissions, &k.ExpiresAt, &k.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrApiKeyNotFound
		}
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return &k, nil
}

func (r *ApiKeyRepository) ListByUserID(ctx context.Context, userID string) ([]*ApiKey, error) {
	query := `SELECT id, user_id, name, hash, permissions, expires_at, created_at FROM api_keys WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys for user %s: %w", userID, err)
	}
	defer rows.Close()

	var keys []*ApiKey
	for rows.Next() {
		var k ApiKey
		if err := rows.Scan(&k.ID, &k.UserID, &k.Name, &k.Hash, &k.Permissions, &k.ExpiresAt, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan api key row: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (r *ApiKeyRepository) Revoke(ctx context.Context, id string) error {
	commandTag, err := r.db.Exec(ctx, `DELETE FROM api_keys WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to revoke api key %s: %w", id, err)
	}
	if commandTag.RowsAffected() == 0 {
		return ErrApiKeyNotFound
	}
	return nil
}
