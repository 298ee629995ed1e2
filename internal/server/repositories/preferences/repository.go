// Package preferences declares the Identity Store contract for per-user
// preference values.
package preferences

import (
	"context"

	"github.com/ttm0z/stock-analyzer-sub001/internal/server/models"
)

type Repository interface {
	// Get returns all preferences of userID. A user without preferences
	// yields an empty, non-nil map.
	Get(ctx context.Context, userID string) (*models.UserPreferences, error)
	// Set inserts or replaces one preference value.
	Set(ctx context.Context, userID, key, value string) error
}
