package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestNewCredential_RequiresContact(t *testing.T) {
	_, err := NewCredential("Maya", nil, nil, RoleStudent)
	assert.ErrorIs(t, err, ErrValidation)

	empty := "   "
	_, err = NewCredential("Maya", &empty, nil, RoleStudent)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewCredential_NormalizesEmail(t *testing.T) {
	cred, err := NewCredential("Maya", strPtr("  Maya@Example.COM "), nil, RoleStudent)
	require.NoError(t, err)
	require.NotNil(t, cred.Email)
	assert.Equal(t, "maya@example.com", *cred.Email)
	assert.True(t, cred.Active)
	assert.Nil(t, cred.RoleStatus, "students carry no role status")
}

func TestNewCredential_DefaultsToStudent(t *testing.T) {
	cred, err := NewCredential("Maya", strPtr("maya@example.com"), nil, "")
	require.NoError(t, err)
	assert.Equal(t, RoleStudent, cred.Role)
}

func TestNewCredential_ModeratedRolesStartPending(t *testing.T) {
	for _, role := range []Role{RoleInstructor, RoleAdmin} {
		cred, err := NewCredential("Iris", strPtr("iris@example.com"), nil, role)
		require.NoError(t, err)
		require.NotNil(t, cred.RoleStatus)
		assert.Equal(t, RoleStatusPending, *cred.RoleStatus)
	}
}

func TestNewCredential_RejectsUnknownRole(t *testing.T) {
	_, err := NewCredential("Maya", strPtr("maya@example.com"), nil, "superuser")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestHasVerifiedContact(t *testing.T) {
	cred := &Credential{}
	assert.False(t, cred.HasVerifiedContact())

	cred.EmailVerified = true
	assert.True(t, cred.HasVerifiedContact())

	cred.EmailVerified = false
	cred.PhoneVerified = true
	assert.True(t, cred.HasVerifiedContact())
}

func TestSetPassword(t *testing.T) {
	cred := &Credential{}
	at := time.Now()
	cred.SetPassword("hash", 2, at)
	assert.Equal(t, "hash", cred.PasswordHash)
	assert.Equal(t, 2, cred.PasswordHashVersion)
	assert.Equal(t, at, cred.PasswordChangedAt)
}

func TestSessionUsable(t *testing.T) {
	session := &Session{Active: true, ExpiresAt: time.Now().Add(time.Hour)}
	assert.True(t, session.Usable())

	session.Active = false
	assert.False(t, session.Usable())

	// An expired row that still exists must not be usable.
	session.Active = true
	session.ExpiresAt = time.Now().Add(-time.Second)
	assert.False(t, session.Usable())
}

func TestOneTimeCodeIsExpired(t *testing.T) {
	code := &OneTimeCode{ExpiresAt: time.Now().Add(time.Minute)}
	assert.False(t, code.IsExpired())

	code.ExpiresAt = time.Now().Add(-time.Second)
	assert.True(t, code.IsExpired())
}
