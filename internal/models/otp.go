package models

import "time"

// OTPType classifies what a one-time code proves.
type OTPType string

const (
	OTPTypeEmailVerification  OTPType = "email_verification"
	OTPTypeMobileVerification OTPType = "mobile_verification"
	OTPTypePasswordReset      OTPType = "password_reset"
	OTPTypeTwofaChallenge     OTPType = "twofa_challenge"
)

// OneTimeCode is a short-lived, single-use numeric code. Only the bcrypt
// hash of the code is stored; the plaintext exists once, at issuance.
type OneTimeCode struct {
	ID        string
	UserID    string
	Type      OTPType
	CodeHash  string
	Used      bool
	Attempts  int // recorded but not enforced
	ExpiresAt time.Time
	CreatedAt time.Time
	Metadata  map[string]string
}

func (c *OneTimeCode) IsExpired() bool {
	return time.Now().After(c.ExpiresAt)
}
