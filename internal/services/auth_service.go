package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lyceum-io/identity/internal/models"
	pkglogger "github.com/lyceum-io/identity/pkg/logger"
	"github.com/lyceum-io/identity/pkg/password"
)

// CredentialRepository defines the credential persistence used by the
// auth gateway.
type CredentialRepository interface {
	Create(ctx context.Context, cred *models.Credential) (*models.Credential, error)
	GetByID(ctx context.Context, id string) (*models.Credential, error)
	GetByEmail(ctx context.Context, email string) (*models.Credential, error)
	GetByMobile(ctx context.Context, mobile string) (*models.Credential, error)
	Update(ctx context.Context, cred *models.Credential) (*models.Credential, error)
	ListPasswordHistory(ctx context.Context, credentialID string, limit int) ([]models.PasswordHistoryEntry, error)
	PushPasswordHistory(ctx context.Context, credentialID string, entry models.PasswordHistoryEntry) error
}

// AuthService orchestrates the per-endpoint auth flows. It is the only
// layer that writes to the audit trail; the leaf services below it do
// not.
type AuthService struct {
	creds     CredentialRepository
	passwords *PasswordService
	otps      *OTPService
	tokens    *TokenService
	audit     *AuditService
	mailer    Mailer
	logger    *slog.Logger
}

func NewAuthService(
	creds CredentialRepository,
	passwords *PasswordService,
	otps *OTPService,
	tokens *TokenService,
	audit *AuditService,
	mailer Mailer,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		creds:     creds,
		passwords: passwords,
		otps:      otps,
		tokens:    tokens,
		audit:     audit,
		mailer:    mailer,
		logger:    logger,
	}
}

// CredentialResponse represents a credential in HTTP responses. Secret
// material never leaves the service layer.
type CredentialResponse struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Email         *string `json:"email,omitempty"`
	Mobile        *string `json:"mobile,omitempty"`
	EmailVerified bool    `json:"email_verified"`
	PhoneVerified bool    `json:"phone_verified"`
	TwofaEnabled  bool    `json:"twofa_enabled"`
	Role          string  `json:"role"`
	RoleStatus    *string `json:"role_status,omitempty"`
	CreatedAt     string  `json:"created_at"`
}

// RegisterInput carries the registration request.
type RegisterInput struct {
	Name            string
	Email           string
	Mobile          string
	Password        string
	ConfirmPassword string
	Role            models.Role
	Device          DeviceInfo
}

// RegisterResult is returned on successful registration. OTPID is set
// when an activation code was mailed.
type RegisterResult struct {
	Credential *CredentialResponse `json:"credential"`
	OTPID      string              `json:"otp_id,omitempty"`
}

// LoginInput carries the login request. Identifier is an email or a
// mobile number.
type LoginInput struct {
	Identifier string
	Password   string
	Device     DeviceInfo
}

// LoginResult is the outcome of login, 2FA completion and refresh. When
// TwofaRequired is set only TempToken and OTPID are populated; no
// session exists yet.
type LoginResult struct {
	TwofaRequired bool                `json:"twofa_required,omitempty"`
	TempToken     string              `json:"temp_token,omitempty"`
	OTPID         string              `json:"otp_id,omitempty"`
	AccessToken   string              `json:"access_token,omitempty"`
	RefreshToken  string              `json:"refresh_token,omitempty"`
	SessionID     string              `json:"session_id,omitempty"`
	Notice        string              `json:"notice,omitempty"`
	Credential    *CredentialResponse `json:"credential,omitempty"`
}

// Register validates identity and password policy, persists the
// credential and, when an email is present, issues and mails an
// activation code. A failed activation mail fails the whole
// registration; the user would otherwise be stranded unverified.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	if in.Password != in.ConfirmPassword {
		return nil, models.ErrPasswordMismatch
	}
	if err := password.Validate(in.Password); err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrValidation, err.Error())
	}

	var email, mobile *string
	if v := strings.TrimSpace(in.Email); v != "" {
		email = &v
	}
	if v := strings.TrimSpace(in.Mobile); v != "" {
		mobile = &v
	}

	cred, err := models.NewCredential(in.Name, email, mobile, in.Role)
	if err != nil {
		return nil, err
	}

	if cred.Email != nil {
		if _, err := s.creds.GetByEmail(ctx, *cred.Email); err == nil {
			return nil, models.ErrConflict
		} else if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to check email uniqueness", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}
	if cred.Mobile != nil {
		if _, err := s.creds.GetByMobile(ctx, *cred.Mobile); err == nil {
			return nil, models.ErrConflict
		} else if !errors.Is(err, models.ErrNotFound) {
			s.logger.Error("failed to check mobile uniqueness", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
	}

	hash, version, err := s.passwords.HashPassword(in.Password)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			return nil, err
		}
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	cred.SetPassword(hash, version, time.Now())

	created, err := s.creds.Create(ctx, cred)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrConflict
		}
		s.logger.Error("failed to create credential", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	result := &RegisterResult{Credential: NewCredentialResponse(created)}

	if created.Email != nil {
		otpID, err := s.issueAndMailOTP(ctx, created, models.OTPTypeEmailVerification,
			"Activate your account", MailTemplateActivationCode, in.Device)
		if err != nil {
			// The account exists but the activation code did not go
			// out; surface the failure to the caller.
			return nil, err
		}
		result.OTPID = otpID
	}

	s.logger.Info("credential registered", slog.String("credential_id", created.ID))
	s.audit.RecordForUser(created.ID, models.AuditEventRegister, in.Device, models.AuditMetadata{
		"role": string(created.Role),
	})

	return result, nil
}

// Activate consumes a verification code and marks the matching contact
// channel verified.
func (s *AuthService) Activate(ctx context.Context, otpID, code string, device DeviceInfo) (*CredentialResponse, error) {
	otp, err := s.otps.VerifyOTPOfType(ctx, otpID, code,
		models.OTPTypeEmailVerification, models.OTPTypeMobileVerification)
	if err != nil {
		return nil, err
	}

	cred, err := s.creds.GetByID(ctx, otp.UserID)
	if err != nil {
		s.logger.Error("failed to load credential for activation",
			slog.String("user_id", otp.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	switch otp.Type {
	case models.OTPTypeEmailVerification:
		cred.EmailVerified = true
	case models.OTPTypeMobileVerification:
		cred.PhoneVerified = true
	default:
		return nil, models.ErrOTPMismatch
	}

	updated, err := s.creds.Update(ctx, cred)
	if err != nil {
		s.logger.Error("failed to persist activation",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.RecordForUser(cred.ID, models.AuditEventOTPVerified, device, models.AuditMetadata{
		"type": string(otp.Type),
	})

	return NewCredentialResponse(updated), nil
}

// Login runs the credential check state machine and terminates either in
// an issued session or in a pending 2FA challenge.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	cred, err := s.resolveIdentifier(ctx, in.Identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Uniform message: an unknown identifier is
			// indistinguishable from a wrong password.
			s.audit.Record(models.AuditEvent{
				EventType: models.AuditEventLoginFailed,
				IPAddress: in.Device.IPAddress,
				UserAgent: in.Device.UserAgent,
				Metadata:  models.AuditMetadata{"reason": "unknown_identifier"},
			})
			return nil, models.ErrInvalidCredentials
		}
		s.logger.Error("failed to resolve login identifier", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if cred.Deleted {
		s.audit.RecordForUser(cred.ID, models.AuditEventLoginFailed, in.Device,
			models.AuditMetadata{"reason": "deleted"})
		return nil, models.ErrInvalidCredentials
	}
	if cred.Blocked {
		s.audit.RecordForUser(cred.ID, models.AuditEventLoginFailed, in.Device,
			models.AuditMetadata{"reason": "blocked"})
		return nil, models.ErrAccountBlocked
	}
	if !cred.Active {
		s.audit.RecordForUser(cred.ID, models.AuditEventLoginFailed, in.Device,
			models.AuditMetadata{"reason": "deactivated"})
		return nil, models.ErrAccountDeactivated
	}

	if !s.passwords.VerifyPassword(in.Password, cred) {
		now := time.Now()
		cred.FailedLoginAttempts++
		cred.LastFailedLoginAt = &now
		if _, err := s.creds.Update(ctx, cred); err != nil {
			s.logger.Error("failed to record failed login attempt",
				slog.String("credential_id", cred.ID), slog.Any("error", err))
		}
		s.audit.RecordForUser(cred.ID, models.AuditEventLoginFailed, in.Device,
			models.AuditMetadata{"reason": "wrong_password", "failed_attempts": cred.FailedLoginAttempts})
		return nil, models.ErrInvalidCredentials
	}

	// Opportunistic migration to the current hash version; a failure
	// here must not cost the user their login.
	if err := s.passwords.RehashIfNeeded(ctx, cred, in.Password); err != nil {
		s.logger.Error("failed to rehash password on login",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
	}

	if !cred.HasVerifiedContact() {
		return nil, models.ErrVerificationRequired
	}

	var notice string
	if cred.RoleStatus != nil {
		switch *cred.RoleStatus {
		case models.RoleStatusRejected:
			return nil, models.ErrRoleRejected
		case models.RoleStatusPending:
			notice = fmt.Sprintf("Your %s account is awaiting approval.", cred.Role)
		}
	}

	if cred.TwofaEnabled {
		return s.beginTwofaChallenge(ctx, cred, in.Device, notice)
	}

	result, err := s.issueSession(ctx, cred, in.Device)
	if err != nil {
		return nil, err
	}
	result.Notice = notice

	cred.FailedLoginAttempts = 0
	now := time.Now()
	cred.LastLoginAt = &now
	if updated, err := s.creds.Update(ctx, cred); err != nil {
		s.logger.Error("failed to record login bookkeeping",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
	} else {
		result.Credential = NewCredentialResponse(updated)
	}

	s.logger.Info("login succeeded", slog.String("credential_id", cred.ID))
	s.audit.RecordForUser(cred.ID, models.AuditEventLogin, in.Device, nil)

	return result, nil
}

// beginTwofaChallenge hands out a challenge code and an interim token.
// No session exists until the challenge is answered.
func (s *AuthService) beginTwofaChallenge(ctx context.Context, cred *models.Credential, device DeviceInfo, notice string) (*LoginResult, error) {
	plain, otpID, err := s.otps.CreateTwoFAChallenge(ctx, cred)
	if err != nil {
		s.logger.Error("failed to create 2FA challenge",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if cred.Email != nil {
		if err := s.mailer.Send(ctx, *cred.Email, "Your login code", MailTemplateTwofaCode, map[string]string{
			"Name": cred.Name,
			"Code": plain,
		}); err != nil {
			// Without the code the login cannot complete.
			return nil, models.ErrInternalServer
		}
	}
	s.audit.RecordForUser(cred.ID, models.AuditEventOTPSent, device, models.AuditMetadata{
		"type": string(models.OTPTypeTwofaChallenge),
	})

	tempToken, err := s.tokens.IssueTempToken(cred)
	if err != nil {
		s.logger.Error("failed to issue temp token",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.RecordForUser(cred.ID, models.AuditEventTwofaRequired, device, nil)

	return &LoginResult{
		TwofaRequired: true,
		TempToken:     tempToken,
		OTPID:         otpID,
		Notice:        notice,
	}, nil
}

// CompleteTwofa answers a pending 2FA challenge and issues the session
// the earlier password check earned.
func (s *AuthService) CompleteTwofa(ctx context.Context, otpID, code string, device DeviceInfo) (*LoginResult, error) {
	otp, err := s.otps.VerifyTwoFAChallenge(ctx, otpID, code)
	if err != nil {
		return nil, err
	}

	cred, err := s.creds.GetByID(ctx, otp.UserID)
	if err != nil {
		s.logger.Error("failed to load credential for 2FA completion",
			slog.String("user_id", otp.UserID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	// Account state may have changed since the password check.
	if cred.Deleted || cred.Blocked || !cred.Active {
		return nil, models.ErrInvalidCredentials
	}

	result, err := s.issueSession(ctx, cred, device)
	if err != nil {
		return nil, err
	}

	cred.FailedLoginAttempts = 0
	now := time.Now()
	cred.LastLoginAt = &now
	if updated, err := s.creds.Update(ctx, cred); err != nil {
		s.logger.Error("failed to record login bookkeeping",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
	} else {
		result.Credential = NewCredentialResponse(updated)
	}

	s.audit.RecordForUser(cred.ID, models.AuditEventLogin, device, models.AuditMetadata{
		"twofa": true,
	})

	return result, nil
}

// Logout revokes the session matching the presented refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken, sessionID string, device DeviceInfo) error {
	session, _, err := s.tokens.VerifyRefreshToken(ctx, refreshToken, sessionID)
	if err != nil {
		return models.ErrUnauthorized
	}

	if err := s.tokens.RevokeSession(ctx, session.ID); err != nil {
		s.logger.Error("failed to revoke session on logout",
			slog.String("session_id", session.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.RecordForUser(session.UserID, models.AuditEventLogout, device, nil)
	return nil
}

// Refresh rotates a refresh token: the presented session is revoked and
// a brand-new session plus token pair is issued against the same device
// metadata. Presenting an already-rotated token fails, and the session it
// named is revoked again to contain a suspected stolen token.
func (s *AuthService) Refresh(ctx context.Context, refreshToken, sessionID string, device DeviceInfo) (*LoginResult, error) {
	session, claims, err := s.tokens.VerifyRefreshToken(ctx, refreshToken, sessionID)
	if err != nil {
		// Best-effort containment; the session may already be gone.
		_ = s.tokens.RevokeSession(ctx, sessionID)
		s.audit.Record(models.AuditEvent{
			EventType: models.AuditEventRefreshTokenInvalid,
			IPAddress: device.IPAddress,
			UserAgent: device.UserAgent,
			Metadata:  models.AuditMetadata{"session_id": sessionID},
		})
		return nil, models.ErrUnauthorized
	}

	cred, err := s.creds.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, models.ErrUnauthorized
	}
	if cred.Deleted || cred.Blocked || !cred.Active {
		return nil, models.ErrUnauthorized
	}

	if err := s.tokens.RevokeSession(ctx, session.ID); err != nil {
		s.logger.Error("failed to revoke rotated session",
			slog.String("session_id", session.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	rotatedDevice := DeviceInfo{
		Name:      session.DeviceName,
		IPAddress: session.IPAddress,
		UserAgent: session.UserAgent,
	}

	result, err := s.issueSession(ctx, cred, rotatedDevice)
	if err != nil {
		return nil, err
	}
	result.Credential = NewCredentialResponse(cred)

	s.audit.RecordForUser(cred.ID, models.AuditEventRefreshTokenSuccess, device, models.AuditMetadata{
		"rotated_session_id": session.ID,
	})

	return result, nil
}

// ForgotSend starts a password reset by mailing a reset code.
func (s *AuthService) ForgotSend(ctx context.Context, identifier string, device DeviceInfo) (string, error) {
	cred, err := s.resolveIdentifier(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrNotFound
		}
		s.logger.Error("failed to resolve reset identifier", slog.Any("error", err))
		return "", models.ErrInternalServer
	}
	if cred.Deleted {
		return "", models.ErrNotFound
	}

	otpID, err := s.issueAndMailOTP(ctx, cred, models.OTPTypePasswordReset,
		"Reset your password", MailTemplateResetCode, device)
	if err != nil {
		return "", err
	}

	return otpID, nil
}

// ForgotVerify trades a correct reset code for a short-lived reset token.
func (s *AuthService) ForgotVerify(ctx context.Context, otpID, code string, device DeviceInfo) (string, error) {
	otp, err := s.otps.VerifyOTPOfType(ctx, otpID, code, models.OTPTypePasswordReset)
	if err != nil {
		return "", err
	}

	token, err := s.tokens.GeneratePasswordResetToken(otp.UserID)
	if err != nil {
		s.logger.Error("failed to generate reset token",
			slog.String("user_id", otp.UserID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.audit.RecordForUser(otp.UserID, models.AuditEventOTPVerified, device, models.AuditMetadata{
		"type": string(models.OTPTypePasswordReset),
	})

	return token, nil
}

// ResetPassword consumes a reset token and sets a new password. Every
// session of the user is revoked.
func (s *AuthService) ResetPassword(ctx context.Context, resetToken, newPassword, confirmPassword string, device DeviceInfo) error {
	userID, err := s.tokens.VerifyPasswordResetToken(resetToken)
	if err != nil {
		return models.ErrUnauthorized
	}

	cred, err := s.creds.GetByID(ctx, userID)
	if err != nil {
		return models.ErrUnauthorized
	}

	return s.changePassword(ctx, cred, newPassword, confirmPassword, device)
}

// ChangePassword is the authenticated variant: the old password must
// verify before the new one is accepted.
func (s *AuthService) ChangePassword(ctx context.Context, cred *models.Credential, oldPassword, newPassword, confirmPassword string, device DeviceInfo) error {
	if !s.passwords.VerifyPassword(oldPassword, cred) {
		return models.ErrInvalidCredentials
	}
	cred.NeedsRehash = false // the change below supersedes any migration

	return s.changePassword(ctx, cred, newPassword, confirmPassword, device)
}

func (s *AuthService) changePassword(ctx context.Context, cred *models.Credential, newPassword, confirmPassword string, device DeviceInfo) error {
	if newPassword != confirmPassword {
		return models.ErrPasswordMismatch
	}
	if err := password.Validate(newPassword); err != nil {
		return fmt.Errorf("%w: %s", models.ErrValidation, err.Error())
	}

	reused, err := s.passwords.IsPasswordReused(ctx, newPassword, cred)
	if err != nil {
		s.logger.Error("failed to check password reuse",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	if reused {
		return models.ErrPasswordReused
	}

	previous := models.PasswordHistoryEntry{
		Hash:      cred.PasswordHash,
		Version:   cred.PasswordHashVersion,
		ChangedAt: cred.PasswordChangedAt,
	}

	hash, version, err := s.passwords.HashPassword(newPassword)
	if err != nil {
		if errors.Is(err, models.ErrValidation) {
			return err
		}
		return models.ErrInternalServer
	}

	if err := s.creds.PushPasswordHistory(ctx, cred.ID, previous); err != nil {
		s.logger.Error("failed to record password history",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	cred.SetPassword(hash, version, time.Now())
	updated, err := s.creds.Update(ctx, cred)
	if err != nil {
		s.logger.Error("failed to persist password change",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}
	*cred = *updated

	if err := s.tokens.RevokeAllSessions(ctx, cred.ID); err != nil {
		s.logger.Error("failed to revoke sessions after password change",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	// Notification only; delivery failure does not undo the change.
	if cred.Email != nil {
		if err := s.mailer.Send(ctx, *cred.Email, "Your password was changed", MailTemplatePasswordChanged, map[string]string{
			"Name": cred.Name,
		}); err != nil {
			s.logger.Error("failed to send password change notice",
				slog.String("credential_id", cred.ID), slog.Any("error", err))
		}
	}

	s.audit.RecordForUser(cred.ID, models.AuditEventPasswordChange, device, nil)
	return nil
}

// SendVerification re-mails an activation code to an authenticated but
// unverified account.
func (s *AuthService) SendVerification(ctx context.Context, cred *models.Credential, device DeviceInfo) (string, error) {
	if cred.Email == nil {
		return "", fmt.Errorf("%w: no email on record", models.ErrValidation)
	}
	if cred.EmailVerified {
		return "", fmt.Errorf("%w: email already verified", models.ErrValidation)
	}

	plain, otpID, err := s.otps.ResendOTP(ctx, cred.ID, models.OTPTypeEmailVerification, nil)
	if err != nil {
		s.logger.Error("failed to reissue verification code",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if err := s.mailer.Send(ctx, *cred.Email, "Activate your account", MailTemplateActivationCode, map[string]string{
		"Name": cred.Name,
		"Code": plain,
	}); err != nil {
		return "", models.ErrInternalServer
	}

	s.audit.RecordForUser(cred.ID, models.AuditEventOTPSent, device, models.AuditMetadata{
		"type": string(models.OTPTypeEmailVerification),
	})

	return otpID, nil
}

// AcceptVerification approves a pending instructor/admin account. Caller
// must already be authorized as admin.
func (s *AuthService) AcceptVerification(ctx context.Context, targetUserID string, device DeviceInfo) (*CredentialResponse, error) {
	cred, err := s.creds.GetByID(ctx, targetUserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		return nil, models.ErrInternalServer
	}

	if cred.RoleStatus == nil {
		return nil, fmt.Errorf("%w: account has no pending role request", models.ErrValidation)
	}

	approved := models.RoleStatusApproved
	cred.RoleStatus = &approved

	updated, err := s.creds.Update(ctx, cred)
	if err != nil {
		s.logger.Error("failed to approve role",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.RecordForUser(cred.ID, models.AuditEventRoleApproved, device, models.AuditMetadata{
		"role": string(cred.Role),
	})

	return NewCredentialResponse(updated), nil
}

// SessionResponse represents one of the user's devices.
type SessionResponse struct {
	ID             string `json:"id"`
	DeviceName     string `json:"device_name"`
	IPAddress      string `json:"ip_address"`
	LastAccessedAt string `json:"last_accessed_at"`
	ExpiresAt      string `json:"expires_at"`
}

// ListSessions returns the user's active sessions.
func (s *AuthService) ListSessions(ctx context.Context, userID string) ([]*SessionResponse, error) {
	sessions, err := s.tokens.sessions.ListActiveByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list sessions",
			slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	out := make([]*SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, &SessionResponse{
			ID:             session.ID,
			DeviceName:     session.DeviceName,
			IPAddress:      session.IPAddress,
			LastAccessedAt: session.LastAccessedAt.Format(time.RFC3339),
			ExpiresAt:      session.ExpiresAt.Format(time.RFC3339),
		})
	}

	return out, nil
}

// RevokeOwnSession lets a user sign out one of their own devices.
func (s *AuthService) RevokeOwnSession(ctx context.Context, userID, sessionID string, device DeviceInfo) error {
	session, err := s.tokens.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return models.ErrInternalServer
	}
	if session.UserID != userID {
		return models.ErrForbidden
	}

	if err := s.tokens.RevokeSession(ctx, session.ID); err != nil {
		return models.ErrInternalServer
	}

	s.audit.RecordForUser(userID, models.AuditEventLogout, device, models.AuditMetadata{
		"revoked_session_id": session.ID,
	})

	return nil
}

// issueSession creates the session plus token pair for a fully
// authenticated credential.
func (s *AuthService) issueSession(ctx context.Context, cred *models.Credential, device DeviceInfo) (*LoginResult, error) {
	accessToken, err := s.tokens.IssueAccessToken(cred)
	if err != nil {
		s.logger.Error("failed to issue access token",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	refreshToken, session, err := s.tokens.IssueRefreshToken(ctx, cred, device)
	if err != nil {
		s.logger.Error("failed to issue refresh token",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &LoginResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		SessionID:    session.ID,
		Credential:   NewCredentialResponse(cred),
	}, nil
}

// issueAndMailOTP creates a code and delivers it; failure of either step
// is surfaced to the caller.
func (s *AuthService) issueAndMailOTP(ctx context.Context, cred *models.Credential, codeType models.OTPType, subject, templateName string, device DeviceInfo) (string, error) {
	plain, otpID, err := s.otps.CreateOTP(ctx, cred.ID, codeType, nil)
	if err != nil {
		s.logger.Error("failed to create one-time code",
			slog.String("credential_id", cred.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	if cred.Email == nil {
		return otpID, nil
	}

	if err := s.mailer.Send(ctx, *cred.Email, subject, templateName, map[string]string{
		"Name": cred.Name,
		"Code": plain,
	}); err != nil {
		s.logger.Error("failed to mail one-time code",
			slog.String("credential_id", cred.ID),
			slog.String("email", pkglogger.SanitizedEmail(*cred.Email)),
			slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.audit.RecordForUser(cred.ID, models.AuditEventOTPSent, device, models.AuditMetadata{
		"type": string(codeType),
	})

	return otpID, nil
}

// resolveIdentifier looks a credential up by email or mobile.
func (s *AuthService) resolveIdentifier(ctx context.Context, identifier string) (*models.Credential, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, models.ErrNotFound
	}

	if strings.Contains(identifier, "@") {
		return s.creds.GetByEmail(ctx, identifier)
	}
	return s.creds.GetByMobile(ctx, identifier)
}

// NewCredentialResponse converts a credential into its response shape.
// Hash material and internal counters are left behind.
func NewCredentialResponse(cred *models.Credential) *CredentialResponse {
	resp := &CredentialResponse{
		ID:            cred.ID,
		Name:          cred.Name,
		Email:         cred.Email,
		Mobile:        cred.Mobile,
		EmailVerified: cred.EmailVerified,
		PhoneVerified: cred.PhoneVerified,
		TwofaEnabled:  cred.TwofaEnabled,
		Role:          string(cred.Role),
		CreatedAt:     cred.CreatedAt.Format(time.RFC3339),
	}
	if cred.RoleStatus != nil {
		s := string(*cred.RoleStatus)
		resp.RoleStatus = &s
	}
	return resp
}
