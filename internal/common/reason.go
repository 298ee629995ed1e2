package common

import (
	"errors"
	"fmt"
)

// Reason is a stable, enumerable failure code. Transport adapters translate
// reasons into their own status codes; the cause of a failure never leaves
// the process.
type Reason string

const (
	ReasonInvalidSignature   Reason = "INVALID_SIGNATURE"
	ReasonExpired            Reason = "EXPIRED"
	ReasonRevoked            Reason = "REVOKED"
	ReasonNotFound           Reason = "NOT_FOUND"
	ReasonStoreUnavailable   Reason = "STORE_UNAVAILABLE"
	ReasonCacheUnavailable   Reason = "CACHE_UNAVAILABLE"
	ReasonInvalidCredentials Reason = "INVALID_CREDENTIALS"
	ReasonInternal           Reason = "INTERNAL"
)

// Error is an authentication failure carrying a Reason and an optional cause.
type Error struct {
	Reason Reason
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Cause)
	}
	return string(e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same Reason, so errors.Is(err, ErrExpired)
// holds for wrapped failures too.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

// Wrap attaches a reason to cause.
func Wrap(reason Reason, cause error) error {
	return &Error{Reason: reason, Cause: cause}
}

var (
	ErrInvalidSignature   = &Error{Reason: ReasonInvalidSignature}
	ErrExpired            = &Error{Reason: ReasonExpired}
	ErrRevoked            = &Error{Reason: ReasonRevoked}
	ErrNotFound           = &Error{Reason: ReasonNotFound}
	ErrStoreUnavailable   = &Error{Reason: ReasonStoreUnavailable}
	ErrCacheUnavailable   = &Error{Reason: ReasonCacheUnavailable}
	ErrInvalidCredentials = &Error{Reason: ReasonInvalidCredentials}
)

// ReasonFor returns the reason carried by err, or ReasonInternal when err is
// not an authentication failure. A nil error has no reason.
func ReasonFor(err error) Reason {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ReasonInternal
}
