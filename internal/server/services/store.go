// Package services contains the authentication core: API keys, sessions,
// the credential Authenticator and the user-facing login flow.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/ttm0z/stock-analyzer-sub001/internal/common"
)

// storeError translates an Identity Store error into a reason-carrying
// failure. Anything but a missing row counts as the store being unavailable.
func storeError(err error) error {
	if errors.Is(err, common.ErrorNotFound) {
		return common.Wrap(common.ReasonNotFound, err)
	}
	return common.Wrap(common.ReasonStoreUnavailable, err)
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d)
}

// validID reports whether id can name a stored row. Ids are UUIDs; anything
// else cannot exist and need not reach the store.
func validID(id string) bool {
	return uuid.Validate(id) == nil
}
