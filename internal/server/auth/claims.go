// Package auth implements the Token Service: HS256-signed bearer tokens
// with a revocation set kept in the Session Cache.
package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed claim set of an access token. RegisteredClaims.ID is
// the token id used for revocation; Subject mirrors UserID.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	// SessionID binds the token to a tracked session when set.
	SessionID string `json:"sid,omitempty"`
	jwt.RegisteredClaims
}

// TokenID returns the revocation identifier of the token.
func (c *Claims) TokenID() string {
	return c.ID
}
