package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyceum-io/identity/internal/models"
)

func newTestPasswordService(t *testing.T, store CredentialStore) *PasswordService {
	t.Helper()
	svc, err := NewPasswordService("unit-test-pepper", store, NewTestLogger())
	require.NoError(t, err)
	return svc
}

func TestNewPasswordService_RequiresPepper(t *testing.T) {
	_, err := NewPasswordService("", NewMemCredentialStore(), NewTestLogger())
	assert.Error(t, err)
}

func TestHashAndVerifyPassword(t *testing.T) {
	svc := newTestPasswordService(t, NewMemCredentialStore())

	hash, version, err := svc.HashPassword("Correct-Horse-9")
	require.NoError(t, err)
	assert.Equal(t, CurrentPasswordHashVersion, version)
	assert.NotContains(t, hash, "Correct-Horse-9")

	cred := &models.Credential{PasswordHash: hash, PasswordHashVersion: version}
	assert.True(t, svc.VerifyPassword("Correct-Horse-9", cred))
	assert.False(t, cred.NeedsRehash)
	assert.False(t, svc.VerifyPassword("wrong-password", cred))
}

func TestHashPassword_RejectsEmpty(t *testing.T) {
	svc := newTestPasswordService(t, NewMemCredentialStore())

	_, _, err := svc.HashPassword("")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestHashPassword_OverlongIsValidationError(t *testing.T) {
	svc := newTestPasswordService(t, NewMemCredentialStore())

	// bcrypt caps input at 72 bytes; the failure must surface as bad
	// input, not a crypto error.
	_, _, err := svc.HashPassword("Aa1!" + strings.Repeat("x", 96))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestHashPassword_PepperCountsTowardLimit(t *testing.T) {
	store := NewMemCredentialStore()
	longPepper := strings.Repeat("p", 32)
	svc, err := NewPasswordService(longPepper, store, NewTestLogger())
	require.NoError(t, err)

	// 64 password bytes plus a 32-byte pepper exceeds the bcrypt limit.
	_, _, err = svc.HashPassword("Aa1!" + strings.Repeat("x", 60))
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestVerifyPassword_PepperMatters(t *testing.T) {
	store := NewMemCredentialStore()
	svc := newTestPasswordService(t, store)
	other, err := NewPasswordService("a-different-pepper", store, NewTestLogger())
	require.NoError(t, err)

	hash, version, err := svc.HashPassword("Correct-Horse-9")
	require.NoError(t, err)

	cred := &models.Credential{PasswordHash: hash, PasswordHashVersion: version}
	assert.False(t, other.VerifyPassword("Correct-Horse-9", cred))
}

func TestVerifyPassword_FlagsOutdatedVersion(t *testing.T) {
	svc := newTestPasswordService(t, NewMemCredentialStore())

	hash, _, err := svc.HashPassword("Correct-Horse-9")
	require.NoError(t, err)

	cred := &models.Credential{
		PasswordHash:        hash,
		PasswordHashVersion: CurrentPasswordHashVersion - 1,
	}
	require.True(t, svc.VerifyPassword("Correct-Horse-9", cred))
	assert.True(t, cred.NeedsRehash)
}

func TestRehashIfNeeded_UpgradesAndRecordsHistory(t *testing.T) {
	store := NewMemCredentialStore()
	svc := newTestPasswordService(t, store)
	ctx := context.Background()

	cred, err := models.NewCredential("Maya", strPtr("maya@example.com"), nil, models.RoleStudent)
	require.NoError(t, err)

	oldHash, _, err := svc.HashPassword("Correct-Horse-9")
	require.NoError(t, err)
	cred.SetPassword(oldHash, CurrentPasswordHashVersion-1, time.Now().Add(-time.Hour))
	_, err = store.Create(ctx, cred)
	require.NoError(t, err)

	require.True(t, svc.VerifyPassword("Correct-Horse-9", cred))
	require.True(t, cred.NeedsRehash)

	require.NoError(t, svc.RehashIfNeeded(ctx, cred, "Correct-Horse-9"))

	assert.Equal(t, CurrentPasswordHashVersion, cred.PasswordHashVersion)
	assert.NotEqual(t, oldHash, cred.PasswordHash)
	assert.False(t, cred.NeedsRehash)

	history, err := store.ListPasswordHistory(ctx, cred.ID, models.PasswordHistoryLimit)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, oldHash, history[0].Hash)
	assert.Equal(t, CurrentPasswordHashVersion-1, history[0].Version)

	// Verifies at the new version without flagging again.
	assert.True(t, svc.VerifyPassword("Correct-Horse-9", cred))
	assert.False(t, cred.NeedsRehash)
}

func TestRehashIfNeeded_NoopWithoutFlag(t *testing.T) {
	store := NewMemCredentialStore()
	svc := newTestPasswordService(t, store)
	ctx := context.Background()

	cred := &models.Credential{ID: "missing", PasswordHash: "x"}
	assert.NoError(t, svc.RehashIfNeeded(ctx, cred, "irrelevant"))
	assert.Equal(t, "x", cred.PasswordHash)
}

func TestIsPasswordReused_ChecksOnlyRecentEntries(t *testing.T) {
	store := NewMemCredentialStore()
	svc := newTestPasswordService(t, store)
	ctx := context.Background()

	cred := &models.Credential{ID: "cred-1"}

	// Oldest to newest: p1 ends up outside the reuse window once four
	// newer entries are pushed on top of it.
	passwords := []string{"Old-Pass-1!", "Old-Pass-2!", "Old-Pass-3!", "Old-Pass-4!", "Old-Pass-5!"}
	for _, p := range passwords {
		hash, version, err := svc.HashPassword(p)
		require.NoError(t, err)
		require.NoError(t, store.PushPasswordHistory(ctx, cred.ID, models.PasswordHistoryEntry{
			Hash:      hash,
			Version:   version,
			ChangedAt: time.Now(),
		}))
	}

	reused, err := svc.IsPasswordReused(ctx, "Old-Pass-5!", cred)
	require.NoError(t, err)
	assert.True(t, reused, "newest history entry is inside the reuse window")

	reused, err = svc.IsPasswordReused(ctx, "Old-Pass-3!", cred)
	require.NoError(t, err)
	assert.True(t, reused, "third newest entry is the edge of the window")

	reused, err = svc.IsPasswordReused(ctx, "Old-Pass-2!", cred)
	require.NoError(t, err)
	assert.False(t, reused, "fourth newest entry is retained but not checked")

	reused, err = svc.IsPasswordReused(ctx, "Never-Used-9!", cred)
	require.NoError(t, err)
	assert.False(t, reused)
}

func strPtr(s string) *string {
	return &s
}
