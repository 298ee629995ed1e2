// Package common contains shared constants, reason codes and sentinel errors
// used across the authentication core.
package common

const (
	// AuthorizationHeaderName is the metadata key carrying "Bearer <token>".
	AuthorizationHeaderName = "authorization"

	// APIKeyHeaderName is the metadata key carrying a raw API key secret.
	APIKeyHeaderName = "x-api-key"

	// BearerPrefix precedes the token in the authorization header.
	BearerPrefix = "Bearer "
)
