// Package users declares the Identity Store contract for user records.
package users

import (
	"context"

	"github.com/ttm0z/stock-analyzer-sub001/internal/server/models"
)

// Repository reads and writes users. Lookups of missing rows return
// common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetUserByLogin(ctx context.Context, login string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	SetActive(ctx context.Context, id string, active bool) error
}
