package models

import "github.com/golang-jwt/jwt/v5"

// AccessClaims ride in the stateless access token. TwofaPending marks the
// interim token handed out between a correct password and a verified 2FA
// challenge; it identifies the user but does not authorize protected
// routes.
type AccessClaims struct {
	UserID       string `json:"user_id"`
	Role         string `json:"role"`
	Email        string `json:"email,omitempty"`
	TwofaPending bool   `json:"twofa_pending,omitempty"`
	jwt.RegisteredClaims
}

// RefreshClaims ride in the refresh token. The token itself is stateful:
// its hash is bound to one Session row.
type RefreshClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// ResetClaims ride in the password-reset token. Deliberately narrow; the
// token is not session-backed and cannot be revoked before expiry.
type ResetClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}
