package models

import "time"

// Session backs one issued refresh token. It is the unit of revocation:
// logout, rotation and password changes all deactivate sessions.
type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash string // SHA-256 of the refresh token, never plaintext
	DeviceName       string
	IPAddress        string
	UserAgent        string
	Active           bool
	LastAccessedAt   time.Time
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

// Usable reports whether the session can still authenticate a request.
// Both conditions are checked here; the background reaper only cleans up
// rows, it is not the source of truth for expiry.
func (s *Session) Usable() bool {
	return s.Active && time.Now().Before(s.ExpiresAt)
}
