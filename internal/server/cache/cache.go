// Package cache defines the Session Cache contract and its Redis
// implementation.
//
// Every failure returned by an implementation wraps common.ErrCacheUnavailable
// so callers can degrade to the Identity Store without inspecting driver
// errors. A missing key is not a failure.
package cache

import (
	"context"
	"time"
)

// Cache is a key-value store with per-key TTLs.
type Cache interface {
	// Set stores value under key. A zero ttl means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetIfAbsent stores value only when key does not exist and reports
	// whether it did.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Get returns the value under key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, keys ...string) error
	// Expire resets the TTL of key and reports whether the key exists.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// AddToSet adds member to setKey with its own ttl.
	AddToSet(ctx context.Context, setKey, member string, ttl time.Duration) error
	// SetContains reports whether member is in setKey and has not expired.
	SetContains(ctx context.Context, setKey, member string) (bool, error)

	Ping(ctx context.Context) error
}

// MemberKey is the key under which a set member is stored. Members are
// individual keys so each can carry its own TTL.
func MemberKey(setKey, member string) string {
	return setKey + ":" + member
}
