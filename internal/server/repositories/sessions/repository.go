// Package sessions declares the Identity Store contract for durable
// user session records.
package sessions

import (
	"context"
	"time"

	"github.com/ttm0z/stock-analyzer-sub001/internal/server/models"
)

// Repository stores UserSession rows.
type Repository interface {
	// Create inserts s and fills in its ID.
	Create(ctx context.Context, s *models.UserSession) (*models.UserSession, error)

	// Find returns the session with the given id, or common.ErrorNotFound.
	Find(ctx context.Context, id string) (*models.UserSession, error)

	// UpdateActivity records activity for an active session and moves its
	// expiry. Inactive or unknown sessions return common.ErrorNotFound.
	UpdateActivity(ctx context.Context, id string, lastActivity, expiresAt time.Time) error

	// Deactivate marks the session inactive and reports whether it was active.
	Deactivate(ctx context.Context, id string) (bool, error)

	// LockDevice serializes session starts for (userID, fingerprint) until
	// the surrounding transaction ends. It must run inside a transaction.
	LockDevice(ctx context.Context, userID, fingerprint string) error

	// DeactivateActiveByDevice deactivates the user's active sessions for a
	// device fingerprint and returns their ids.
	DeactivateActiveByDevice(ctx context.Context, userID, fingerprint string) ([]string, error)

	// DeactivateAllForUser deactivates every active session of the user and
	// returns their ids.
	DeactivateAllForUser(ctx context.Context, userID string) ([]string, error)

	// DeleteExpired removes sessions that expired before cutoff and inactive
	// sessions last used before cutoff.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
