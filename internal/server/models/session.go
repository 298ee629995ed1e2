package models

import "time"

// ClientMetadata identifies the client a session was started from.
type ClientMetadata struct {
	DeviceFingerprint string
	UserAgent         string
	IPAddress         string
}

// UserSession is the durable record of a tracked session.
type UserSession struct {
	ID           string
	UserID       string
	CreatedAt    time.Time
	LastActivity time.Time
	ExpiresAt    time.Time
	ClientMetadata
	IsActive bool
}

// Live reports whether the session is active and not yet expired at now.
func (s *UserSession) Live(now time.Time) bool {
	return s.IsActive && now.Before(s.ExpiresAt)
}
