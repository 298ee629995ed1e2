package apikeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ttm0z/stock-analyzer-sub001/internal/common"
	"github.com/ttm0z/stock-analyzer-sub001/internal/dbx"
	"github.com/ttm0z/stock-analyzer-sub001/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, key *models.APIKey) (*models.APIKey, error) {
	query := `
		INSERT INTO api_keys (user_id, key_hash, key_prefix, label, expires_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		key.UserID, key.KeyHash, key.KeyPrefix, key.Label, key.ExpiresAt).Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return key, nil
}

func (r *PostgresRepository) FindByHash(ctx context.Context, hash string) (*models.APIKey, error) {
	query := `
		SELECT id, user_id, key_hash, key_prefix, label, created_at, expires_at, revoked, revoked_at
		FROM api_keys
		WHERE key_hash = $1
	`
	key, err := scanKey(r.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return key, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string) error {
	query := `
		UPDATE api_keys
		SET revoked = TRUE, revoked_at = COALESCE(revoked_at, now())
		WHERE id = $1
	`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*models.APIKey, error) {
	query := `
		SELECT id, user_id, key_hash, key_prefix, label, created_at, expires_at, revoked, revoked_at
		FROM api_keys
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select api keys: %w", err)
	}
	defer rows.Close()

	var result []*models.APIKey
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, key)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(s scanner) (*models.APIKey, error) {
	var (
		key       models.APIKey
		expiresAt sql.NullTime
		revokedAt sql.NullTime
	)
	if err := s.Scan(&key.ID, &key.UserID, &key.KeyHash, &key.KeyPrefix, &key.Label,
		&key.CreatedAt, &expiresAt, &key.Revoked, &revokedAt); err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		key.ExpiresAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		key.RevokedAt = &t
	}
	return &key, nil
}
