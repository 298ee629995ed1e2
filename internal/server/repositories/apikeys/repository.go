// Package apikeys declares the Identity Store contract for API keys.
package apikeys

import (
	"context"

	"github.com/ttm0z/stock-analyzer-sub001/internal/server/models"
)

// Repository stores API key metadata and hashes, never plaintext secrets.
type Repository interface {
	// Create inserts key and fills in its ID and CreatedAt.
	Create(ctx context.Context, key *models.APIKey) (*models.APIKey, error)

	// FindByHash returns the key whose stored hash equals hash, or
	// common.ErrorNotFound.
	FindByHash(ctx context.Context, hash string) (*models.APIKey, error)

	// Revoke flags the key as revoked. Revoking an already revoked key keeps
	// the original revoked_at. Unknown ids return common.ErrorNotFound.
	Revoke(ctx context.Context, id string) error

	// ListByUser returns the keys of userID, newest first.
	ListByUser(ctx context.Context, userID string) ([]*models.APIKey, error)
}
