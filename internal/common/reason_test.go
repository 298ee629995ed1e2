package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByReason(t *testing.T) {
	err := Wrap(ReasonStoreUnavailable, errors.New("connection refused"))

	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.NotErrorIs(t, err, ErrCacheUnavailable)

	wrapped := fmt.Errorf("find user: %w", err)
	assert.ErrorIs(t, wrapped, ErrStoreUnavailable)
}

func TestError_UnwrapKeepsCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ReasonCacheUnavailable, cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "CACHE_UNAVAILABLE: boom", err.Error())
	assert.Equal(t, "EXPIRED", ErrExpired.Error())
}

func TestReasonFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Reason
	}{
		{name: "nil", err: nil, want: ""},
		{name: "sentinel", err: ErrRevoked, want: ReasonRevoked},
		{name: "wrapped", err: fmt.Errorf("verify: %w", ErrExpired), want: ReasonExpired},
		{name: "with cause", err: Wrap(ReasonInvalidSignature, errors.New("bad alg")), want: ReasonInvalidSignature},
		{name: "foreign", err: errors.New("plain"), want: ReasonInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReasonFor(tt.err))
		})
	}
}
