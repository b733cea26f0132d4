package models

import (
	"fmt"
	"strings"
	"time"
)

type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// RoleStatus is the moderation state of an instructor or admin account.
// Student accounts carry no role status.
type RoleStatus string

const (
	RoleStatusPending  RoleStatus = "pending"
	RoleStatusApproved RoleStatus = "approved"
	RoleStatusRejected RoleStatus = "rejected"
)

const (
	// PasswordHistoryLimit caps how many previous hashes are retained.
	PasswordHistoryLimit = 5
	// PasswordReuseDepth is how many of those are consulted by the reuse
	// check. Smaller than the retention cap on purpose.
	PasswordReuseDepth = 3
)

// PasswordHistoryEntry is one superseded hash, kept for the reuse check.
type PasswordHistoryEntry struct {
	Hash      string
	Version   int
	ChangedAt time.Time
}

// Credential is the durable identity record for one user, including its
// password material. It is never physically removed; Deleted is terminal.
type Credential struct {
	ID     string
	Name   string
	Email  *string // unique, stored lower-case
	Mobile *string // unique

	PasswordHash        string
	PasswordHashVersion int
	PasswordChangedAt   time.Time

	EmailVerified bool
	PhoneVerified bool
	TwofaEnabled  bool
	Blocked       bool
	Active        bool
	Deleted       bool

	FailedLoginAttempts int
	LastFailedLoginAt   *time.Time
	LastLoginAt         *time.Time

	Role       Role
	RoleStatus *RoleStatus

	CreatedAt time.Time
	UpdatedAt time.Time

	// NeedsRehash is set by password verification when the stored hash
	// predates the current algorithm version. Never persisted.
	NeedsRehash bool `json:"-"`
}

// NewCredential builds a credential and enforces creation invariants:
// at least one of email/mobile, a known role, and a pending role status
// for instructor/admin accounts.
func NewCredential(name string, email, mobile *string, role Role) (*Credential, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	if email != nil {
		normalized := strings.ToLower(strings.TrimSpace(*email))
		if normalized == "" {
			email = nil
		} else {
			email = &normalized
		}
	}
	if mobile != nil {
		normalized := strings.TrimSpace(*mobile)
		if normalized == "" {
			mobile = nil
		} else {
			mobile = &normalized
		}
	}
	if email == nil && mobile == nil {
		return nil, fmt.Errorf("%w: either email or mobile is required", ErrValidation)
	}

	if role == "" {
		role = RoleStudent
	}

	cred := &Credential{
		Name:   name,
		Email:  email,
		Mobile: mobile,
		Role:   role,
		Active: true,
	}

	switch role {
	case RoleStudent:
		// no moderation for students
	case RoleInstructor, RoleAdmin:
		pending := RoleStatusPending
		cred.RoleStatus = &pending
	default:
		return nil, fmt.Errorf("%w: unknown role %q", ErrValidation, role)
	}

	return cred, nil
}

// HasVerifiedContact reports whether at least one contact channel has been
// verified. Login requires this.
func (c *Credential) HasVerifiedContact() bool {
	return c.EmailVerified || c.PhoneVerified
}

// SetPassword writes the hash and its version together and stamps the
// change time. The two fields are never written separately.
func (c *Credential) SetPassword(hash string, version int, at time.Time) {
	c.PasswordHash = hash
	c.PasswordHashVersion = version
	c.PasswordChangedAt = at
}

// EmailOrEmpty is a convenience for claims and mail addressing.
func (c *Credential) EmailOrEmpty() string {
	if c.Email == nil {
		return ""
	}
	return *c.Email
}
