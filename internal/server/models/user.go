// Package models defines server-side data models persisted in the Identity
// Store.
package models

import "time"

// User is an identity record. PasswordHash is an opaque bcrypt hash and is
// never serialized.
type User struct {
	ID           string    `json:"id"`
	UserName     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	IsActive     bool      `json:"is_active"`
}

// UserPreferences maps preference keys to values for one user.
type UserPreferences struct {
	UserID string            `json:"user_id"`
	Values map[string]string `json:"values"`
}
