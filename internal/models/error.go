package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrValidation     = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternalServer = errors.New("internal server error")

	// Login failures. ErrInvalidCredentials covers unknown identifier,
	// deleted account and wrong password with one uniform message;
	// blocked and deactivated accounts intentionally get their own.
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrAccountBlocked       = errors.New("account is blocked")
	ErrAccountDeactivated   = errors.New("account is deactivated")
	ErrVerificationRequired = errors.New("email or mobile verification required")
	ErrRoleRejected         = errors.New("role request was rejected")

	// Password change failures
	ErrPasswordReused   = errors.New("password was used recently")
	ErrPasswordMismatch = errors.New("passwords do not match")

	// One-time code verification failures, one sentinel per reason
	ErrOTPNotFound = errors.New("code not found")
	ErrOTPUsed     = errors.New("code already used")
	ErrOTPExpired  = errors.New("code expired")
	ErrOTPMismatch = errors.New("code does not match")
)
