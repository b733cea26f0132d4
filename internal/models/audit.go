package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// Security event types written to the audit trail
const (
	AuditEventRegister            = "REGISTER"
	AuditEventLogin               = "LOGIN"
	AuditEventLoginFailed         = "LOGIN_FAILED"
	AuditEventLogout              = "LOGOUT"
	AuditEventPasswordChange      = "PASSWORD_CHANGE"
	AuditEventOTPSent             = "OTP_SENT"
	AuditEventOTPVerified         = "OTP_VERIFIED"
	AuditEventRefreshTokenSuccess = "REFRESH_TOKEN_SUCCESS"
	AuditEventRefreshTokenInvalid = "REFRESH_TOKEN_INVALID"
	AuditEventTwofaRequired       = "2FA_REQUIRED"
	AuditEventRoleApproved        = "ROLE_APPROVED"
)

// AuditEvent is one append-only entry in the security audit trail.
// Entries are never updated or deleted by application logic.
type AuditEvent struct {
	ID        string
	UserID    *string
	EventType string
	IPAddress string
	UserAgent string
	Metadata  AuditMetadata
	CreatedAt time.Time
}

// AuditMetadata holds free-form context for an audit event
type AuditMetadata map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (am *AuditMetadata) Scan(value interface{}) error {
	if value == nil {
		*am = make(AuditMetadata)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrValidation
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*am = AuditMetadata(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (am AuditMetadata) Value() (driver.Value, error) {
	if am == nil {
		return nil, nil
	}
	return json.Marshal(am)
}
