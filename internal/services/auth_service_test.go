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

const testPassword = "Vault-Horse-42!"

type authStack struct {
	creds     *MemCredentialStore
	sessions  *MemSessionStore
	otps      *MemOTPStore
	audits    *MemAuditStore
	mailer    *MemMailer
	passwords *PasswordService
	tokens    *TokenService
	svc       *AuthService
}

func newAuthStack(t *testing.T) *authStack {
	t.Helper()

	creds := NewMemCredentialStore()
	sessions := NewMemSessionStore()
	otps := NewMemOTPStore()
	audits := NewMemAuditStore()
	mailer := NewMemMailer()
	logger := NewTestLogger()

	passwords, err := NewPasswordService("unit-test-pepper", creds, logger)
	require.NoError(t, err)
	tokens := newTestTokenService(sessions)
	otpSvc := NewOTPService(otps, time.Minute, logger)
	audit := NewAuditService(audits, logger)

	return &authStack{
		creds:     creds,
		sessions:  sessions,
		otps:      otps,
		audits:    audits,
		mailer:    mailer,
		passwords: passwords,
		tokens:    tokens,
		svc:       NewAuthService(creds, passwords, otpSvc, tokens, audit, mailer, logger),
	}
}

func (st *authStack) register(t *testing.T, email string) *RegisterResult {
	t.Helper()
	result, err := st.svc.Register(context.Background(), RegisterInput{
		Name:            "Maya",
		Email:           email,
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	require.NoError(t, err)
	return result
}

// registerActivated registers and activates a credential, returning its id.
func (st *authStack) registerActivated(t *testing.T, email string) string {
	t.Helper()
	result := st.register(t, email)

	mail := st.mailer.LastSend()
	require.NotNil(t, mail)
	_, err := st.svc.Activate(context.Background(), result.OTPID, mail.Data["Code"], DeviceInfo{})
	require.NoError(t, err)
	return result.Credential.ID
}

func TestRegister(t *testing.T) {
	st := newAuthStack(t)
	result := st.register(t, "maya@example.com")

	require.NotNil(t, result.Credential)
	assert.NotEmpty(t, result.OTPID, "registration with email returns the activation otp id")
	assert.False(t, result.Credential.EmailVerified)

	mail := st.mailer.LastSend()
	require.NotNil(t, mail)
	assert.Equal(t, "maya@example.com", mail.To)
	assert.Equal(t, MailTemplateActivationCode, mail.Template)
	assert.Len(t, mail.Data["Code"], DefaultOTPLength)
}

func TestRegister_PasswordMismatch(t *testing.T) {
	st := newAuthStack(t)
	_, err := st.svc.Register(context.Background(), RegisterInput{
		Name:            "Maya",
		Email:           "maya@example.com",
		Password:        testPassword,
		ConfirmPassword: "Different-Pass-1!",
	})
	assert.ErrorIs(t, err, models.ErrPasswordMismatch)
}

func TestRegister_WeakPassword(t *testing.T) {
	st := newAuthStack(t)
	_, err := st.svc.Register(context.Background(), RegisterInput{
		Name:            "Maya",
		Email:           "maya@example.com",
		Password:        "password",
		ConfirmPassword: "password",
	})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRegister_OverlongPasswordIsValidationError(t *testing.T) {
	st := newAuthStack(t)

	// Long enough that the peppered input would exceed bcrypt's 72-byte
	// limit; the caller must see bad input, never an internal error.
	long := "Aa1!" + strings.Repeat("x", 96)
	_, err := st.svc.Register(context.Background(), RegisterInput{
		Name:            "Maya",
		Email:           "maya@example.com",
		Password:        long,
		ConfirmPassword: long,
	})
	assert.ErrorIs(t, err, models.ErrValidation)
	assert.NotErrorIs(t, err, models.ErrInternalServer)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	st := newAuthStack(t)
	st.register(t, "maya@example.com")

	_, err := st.svc.Register(context.Background(), RegisterInput{
		Name:            "Other",
		Email:           "maya@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestRegister_ActivationMailFailureFailsRegistration(t *testing.T) {
	st := newAuthStack(t)
	st.mailer.Fail = true

	_, err := st.svc.Register(context.Background(), RegisterInput{
		Name:            "Maya",
		Email:           "maya@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
	})
	assert.Error(t, err)
}

func TestRegistrationActivationScenario(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()

	result := st.register(t, "maya@example.com")
	code := st.mailer.LastSend().Data["Code"]

	cred, err := st.svc.Activate(ctx, result.OTPID, code, DeviceInfo{})
	require.NoError(t, err)
	assert.True(t, cred.EmailVerified)

	// Re-presenting the same consumed code.
	_, err = st.svc.Activate(ctx, result.OTPID, code, DeviceInfo{})
	assert.ErrorIs(t, err, models.ErrOTPUsed)
}

func TestLogin_Success(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()
	id := st.registerActivated(t, "maya@example.com")

	result, err := st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.False(t, result.TwofaRequired)
	assert.NotEmpty(t, result.AccessToken)
	assert.NotEmpty(t, result.RefreshToken)
	assert.NotEmpty(t, result.SessionID)

	stored, err := st.creds.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLoginAttempts)
	assert.NotNil(t, stored.LastLoginAt)
}

func TestLogin_UnknownIdentifier(t *testing.T) {
	st := newAuthStack(t)
	_, err := st.svc.Login(context.Background(), LoginInput{Identifier: "nobody@example.com", Password: testPassword})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestLogin_WrongPasswordIncrementsAttempts(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()
	id := st.registerActivated(t, "maya@example.com")

	_, err := st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: "Wrong-Pass-1!"})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)

	stored, err := st.creds.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.FailedLoginAttempts)
	assert.NotNil(t, stored.LastFailedLoginAt)
}

func TestLogin_NoLockoutAfterRepeatedFailures(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()
	id := st.registerActivated(t, "maya@example.com")

	for i := 0; i < 5; i++ {
		_, err := st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: "Wrong-Pass-1!"})
		require.ErrorIs(t, err, models.ErrInvalidCredentials)
	}

	stored, err := st.creds.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 5, stored.FailedLoginAttempts)

	// The attempt counter gates nothing.
	result, err := st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)
}

func TestLogin_AccountStateGates(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()
	id := st.registerActivated(t, "maya@example.com")

	cred, err := st.creds.GetByID(ctx, id)
	require.NoError(t, err)

	cred.Blocked = true
	_, err = st.creds.Update(ctx, cred)
	require.NoError(t, err)
	_, err = st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	assert.ErrorIs(t, err, models.ErrAccountBlocked)

	cred.Blocked = false
	cred.Active = false
	_, err = st.creds.Update(ctx, cred)
	require.NoError(t, err)
	_, err = st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	assert.ErrorIs(t, err, models.ErrAccountDeactivated)

	// A deleted account is indistinguishable from a wrong password.
	cred.Active = true
	cred.Deleted = true
	_, err = st.creds.Update(ctx, cred)
	require.NoError(t, err)
	_, err = st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestLogin_RequiresVerifiedContact(t *testing.T) {
	st := newAuthStack(t)
	st.register(t, "maya@example.com")

	_, err := st.svc.Login(context.Background(), LoginInput{Identifier: "maya@example.com", Password: testPassword})
	assert.ErrorIs(t, err, models.ErrVerificationRequired)
}

func TestLogin_RoleStatusHandling(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()

	result, err := st.svc.Register(ctx, RegisterInput{
		Name:            "Iris",
		Email:           "iris@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
		Role:            models.RoleInstructor,
	})
	require.NoError(t, err)
	code := st.mailer.LastSend().Data["Code"]
	_, err = st.svc.Activate(ctx, result.OTPID, code, DeviceInfo{})
	require.NoError(t, err)

	// Pending approval: login succeeds with a notice.
	login, err := st.svc.Login(ctx, LoginInput{Identifier: "iris@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.Contains(t, login.Notice, "awaiting approval")

	// Rejected: login refused.
	cred, err := st.creds.GetByID(ctx, result.Credential.ID)
	require.NoError(t, err)
	rejected := models.RoleStatusRejected
	cred.RoleStatus = &rejected
	_, err = st.creds.Update(ctx, cred)
	require.NoError(t, err)

	_, err = st.svc.Login(ctx, LoginInput{Identifier: "iris@example.com", Password: testPassword})
	assert.ErrorIs(t, err, models.ErrRoleRejected)

	// Approved: no notice.
	approved := models.RoleStatusApproved
	cred.RoleStatus = &approved
	_, err = st.creds.Update(ctx, cred)
	require.NoError(t, err)

	login, err = st.svc.Login(ctx, LoginInput{Identifier: "iris@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.Empty(t, login.Notice)
}

func TestLogin_TransparentRehash(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()
	id := st.registerActivated(t, "maya@example.com")

	// Age the stored hash back one version.
	cred, err := st.creds.GetByID(ctx, id)
	require.NoError(t, err)
	oldHash := cred.PasswordHash
	cred.PasswordHashVersion = CurrentPasswordHashVersion - 1
	_, err = st.creds.Update(ctx, cred)
	require.NoError(t, err)

	_, err = st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	require.NoError(t, err)

	upgraded, err := st.creds.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, CurrentPasswordHashVersion, upgraded.PasswordHashVersion)
	assert.NotEqual(t, oldHash, upgraded.PasswordHash)

	history, err := st.creds.ListPasswordHistory(ctx, id, models.PasswordHistoryLimit)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, oldHash, history[0].Hash)
}

func TestTwofaGateScenario(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()
	id := st.registerActivated(t, "maya@example.com")

	cred, err := st.creds.GetByID(ctx, id)
	require.NoError(t, err)
	cred.TwofaEnabled = true
	_, err = st.creds.Update(ctx, cred)
	require.NoError(t, err)

	login, err := st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	require.NoError(t, err)
	assert.True(t, login.TwofaRequired)
	assert.NotEmpty(t, login.TempToken)
	assert.NotEmpty(t, login.OTPID)
	assert.Empty(t, login.AccessToken, "no session before the challenge is answered")
	assert.Empty(t, login.SessionID)

	// The interim token is refused by access-token verification gates.
	claims, err := st.tokens.VerifyAccessToken(login.TempToken)
	require.NoError(t, err)
	assert.True(t, claims.TwofaPending)

	mail := st.mailer.LastSend()
	require.Equal(t, MailTemplateTwofaCode, mail.Template)

	completed, err := st.svc.CompleteTwofa(ctx, login.OTPID, mail.Data["Code"], DeviceInfo{})
	require.NoError(t, err)
	assert.NotEmpty(t, completed.AccessToken)
	assert.NotEmpty(t, completed.SessionID)

	// The challenge is single-use.
	_, err = st.svc.CompleteTwofa(ctx, login.OTPID, mail.Data["Code"], DeviceInfo{})
	assert.ErrorIs(t, err, models.ErrOTPUsed)
}

func TestRefresh_RotationInvalidation(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()
	st.registerActivated(t, "maya@example.com")

	login, err := st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	require.NoError(t, err)

	rotated, err := st.svc.Refresh(ctx, login.RefreshToken, login.SessionID, DeviceInfo{})
	require.NoError(t, err)
	assert.NotEqual(t, login.SessionID, rotated.SessionID)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	// Re-presenting the rotated-out pair fails.
	_, err = st.svc.Refresh(ctx, login.RefreshToken, login.SessionID, DeviceInfo{})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	// The fresh pair works exactly once.
	rotatedAgain, err := st.svc.Refresh(ctx, rotated.RefreshToken, rotated.SessionID, DeviceInfo{})
	require.NoError(t, err)
	_, err = st.svc.Refresh(ctx, rotated.RefreshToken, rotated.SessionID, DeviceInfo{})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_ = rotatedAgain
}

func TestRefresh_KeepsDeviceMetadata(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()
	st.registerActivated(t, "maya@example.com")

	device := DeviceInfo{Name: "Mac", IPAddress: "10.0.0.1", UserAgent: "test-agent"}
	login, err := st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword, Device: device})
	require.NoError(t, err)

	rotated, err := st.svc.Refresh(ctx, login.RefreshToken, login.SessionID, DeviceInfo{Name: "Other", IPAddress: "9.9.9.9"})
	require.NoError(t, err)

	session, err := st.sessions.GetByID(ctx, rotated.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Mac", session.DeviceName)
	assert.Equal(t, "10.0.0.1", session.IPAddress)
}

func TestLogout(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()
	st.registerActivated(t, "maya@example.com")

	login, err := st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	require.NoError(t, err)

	require.NoError(t, st.svc.Logout(ctx, login.RefreshToken, login.SessionID, DeviceInfo{}))

	// The session no longer authenticates anything.
	_, err = st.svc.Refresh(ctx, login.RefreshToken, login.SessionID, DeviceInfo{})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	err = st.svc.Logout(ctx, login.RefreshToken, login.SessionID, DeviceInfo{})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestChangePassword_RevokesAllSessionsAndBlocksReuse(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()
	id := st.registerActivated(t, "maya@example.com")

	loginA, err := st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	require.NoError(t, err)
	loginB, err := st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	require.NoError(t, err)

	cred, err := st.creds.GetByID(ctx, id)
	require.NoError(t, err)

	const nextPassword = "Second-Pass-77!"
	require.NoError(t, st.svc.ChangePassword(ctx, cred, testPassword, nextPassword, nextPassword, DeviceInfo{}))

	// Revoke-all: both previously active sessions are dead.
	_, err = st.svc.Refresh(ctx, loginA.RefreshToken, loginA.SessionID, DeviceInfo{})
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	_, err = st.svc.Refresh(ctx, loginB.RefreshToken, loginB.SessionID, DeviceInfo{})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	// Old password no longer logs in; the new one does.
	_, err = st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
	_, err = st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: nextPassword})
	require.NoError(t, err)

	// Reuse: the original password is now in the history window.
	cred, err = st.creds.GetByID(ctx, id)
	require.NoError(t, err)
	err = st.svc.ChangePassword(ctx, cred, nextPassword, testPassword, testPassword, DeviceInfo{})
	assert.ErrorIs(t, err, models.ErrPasswordReused)
}

func TestChangePassword_WrongOldPassword(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()
	id := st.registerActivated(t, "maya@example.com")

	cred, err := st.creds.GetByID(ctx, id)
	require.NoError(t, err)

	err = st.svc.ChangePassword(ctx, cred, "Wrong-Pass-1!", "Second-Pass-77!", "Second-Pass-77!", DeviceInfo{})
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestForgotResetFlow(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()
	st.registerActivated(t, "maya@example.com")

	login, err := st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	require.NoError(t, err)

	otpID, err := st.svc.ForgotSend(ctx, "maya@example.com", DeviceInfo{})
	require.NoError(t, err)

	mail := st.mailer.LastSend()
	require.Equal(t, MailTemplateResetCode, mail.Template)

	resetToken, err := st.svc.ForgotVerify(ctx, otpID, mail.Data["Code"], DeviceInfo{})
	require.NoError(t, err)
	require.NotEmpty(t, resetToken)

	const nextPassword = "Second-Pass-77!"
	require.NoError(t, st.svc.ResetPassword(ctx, resetToken, nextPassword, nextPassword, DeviceInfo{}))

	// All sessions revoked by the reset.
	_, err = st.svc.Refresh(ctx, login.RefreshToken, login.SessionID, DeviceInfo{})
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: nextPassword})
	require.NoError(t, err)
}

func TestForgotVerify_ActivationCodeNotConsumed(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()

	result := st.register(t, "maya@example.com")
	activationCode := st.mailer.LastSend().Data["Code"]

	// The activation code presented to the reset flow is rejected
	// without being burned; activation still works afterwards.
	_, err := st.svc.ForgotVerify(ctx, result.OTPID, activationCode, DeviceInfo{})
	require.ErrorIs(t, err, models.ErrOTPMismatch)

	cred, err := st.svc.Activate(ctx, result.OTPID, activationCode, DeviceInfo{})
	require.NoError(t, err)
	assert.True(t, cred.EmailVerified)
}

func TestForgotSend_UnknownIdentifier(t *testing.T) {
	st := newAuthStack(t)
	_, err := st.svc.ForgotSend(context.Background(), "nobody@example.com", DeviceInfo{})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestAcceptVerification(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()

	result, err := st.svc.Register(ctx, RegisterInput{
		Name:            "Iris",
		Email:           "iris@example.com",
		Password:        testPassword,
		ConfirmPassword: testPassword,
		Role:            models.RoleInstructor,
	})
	require.NoError(t, err)

	approved, err := st.svc.AcceptVerification(ctx, result.Credential.ID, DeviceInfo{})
	require.NoError(t, err)
	require.NotNil(t, approved.RoleStatus)
	assert.Equal(t, string(models.RoleStatusApproved), *approved.RoleStatus)
}

func TestAcceptVerification_StudentHasNoRoleRequest(t *testing.T) {
	st := newAuthStack(t)
	id := st.registerActivated(t, "maya@example.com")

	_, err := st.svc.AcceptVerification(context.Background(), id, DeviceInfo{})
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestListAndRevokeOwnSessions(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()
	id := st.registerActivated(t, "maya@example.com")
	otherID := st.registerActivated(t, "iris@example.com")

	login, err := st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	require.NoError(t, err)

	sessions, err := st.svc.ListSessions(ctx, id)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	// Another user cannot revoke it.
	err = st.svc.RevokeOwnSession(ctx, otherID, login.SessionID, DeviceInfo{})
	assert.ErrorIs(t, err, models.ErrForbidden)

	require.NoError(t, st.svc.RevokeOwnSession(ctx, id, login.SessionID, DeviceInfo{}))

	sessions, err = st.svc.ListSessions(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestAuditTrailRecordsLogin(t *testing.T) {
	st := newAuthStack(t)
	ctx := context.Background()
	id := st.registerActivated(t, "maya@example.com")

	_, err := st.svc.Login(ctx, LoginInput{Identifier: "maya@example.com", Password: testPassword})
	require.NoError(t, err)

	// Audit writes happen on a detached goroutine.
	assert.Eventually(t, func() bool {
		for _, event := range st.audits.Events() {
			if event.EventType == models.AuditEventLogin && event.UserID != nil && *event.UserID == id {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)
}
