package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/lyceum-io/identity/internal/config"
	"github.com/lyceum-io/identity/internal/models"
)

// SessionStore is the slice of session persistence the token service needs.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) (*models.Session, error)
	GetByID(ctx context.Context, id string) (*models.Session, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*models.Session, error)
	Deactivate(ctx context.Context, id string) error
	DeactivateAllForUser(ctx context.Context, userID string) error
	TouchLastAccessed(ctx context.Context, id string) error
}

// DeviceInfo is the client metadata recorded on each session.
type DeviceInfo struct {
	Name      string
	IPAddress string
	UserAgent string
}

// TokenService issues and verifies the three token kinds: stateless
// access tokens, session-backed refresh tokens, and narrow password-reset
// tokens. Each kind is signed with its own secret.
type TokenService struct {
	accessSecret  string
	refreshSecret string
	resetSecret   string
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	resetExpiry   time.Duration
	sessions      SessionStore
	logger        *slog.Logger
}

func NewTokenService(cfg *config.AuthConfig, sessions SessionStore, logger *slog.Logger) *TokenService {
	return &TokenService{
		accessSecret:  cfg.AccessTokenSecret,
		refreshSecret: cfg.RefreshTokenSecret,
		resetSecret:   cfg.ResetTokenSecret,
		accessExpiry:  cfg.AccessTokenExpiry,
		refreshExpiry: cfg.RefreshTokenExpiry,
		resetExpiry:   cfg.ResetTokenExpiry,
		sessions:      sessions,
		logger:        logger,
	}
}

// IssueAccessToken creates a short-lived stateless token embedding the
// credential's identity. Verified purely by signature and expiry.
func (s *TokenService) IssueAccessToken(cred *models.Credential) (string, error) {
	return s.signAccessClaims(cred, false, s.accessExpiry)
}

// IssueTempToken creates the interim token handed out when 2FA is still
// pending. Same shape as an access token, but flagged so the session gate
// refuses it.
func (s *TokenService) IssueTempToken(cred *models.Credential) (string, error) {
	return s.signAccessClaims(cred, true, 5*time.Minute)
}

func (s *TokenService) signAccessClaims(cred *models.Credential, twofaPending bool, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := &models.AccessClaims{
		UserID:       cred.ID,
		Role:         string(cred.Role),
		Email:        cred.EmailOrEmpty(),
		TwofaPending: twofaPending,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.accessSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}

	return signed, nil
}

// VerifyAccessToken checks signature and expiry; no store lookup.
func (s *TokenService) VerifyAccessToken(tokenString string) (*models.AccessClaims, error) {
	claims := &models.AccessClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.accessSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, models.ErrUnauthorized
	}

	return claims, nil
}

// IssueRefreshToken signs a fresh refresh token and persists a new
// Session holding its hash and the device metadata. The plaintext token
// is returned once and never stored.
func (s *TokenService) IssueRefreshToken(ctx context.Context, cred *models.Credential, device DeviceInfo) (string, *models.Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.refreshExpiry)

	claims := &models.RefreshClaims{
		UserID: cred.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.refreshSecret))
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign refresh token: %w", err)
	}

	session := &models.Session{
		UserID:           cred.ID,
		RefreshTokenHash: hashToken(signed),
		DeviceName:       device.Name,
		IPAddress:        device.IPAddress,
		UserAgent:        device.UserAgent,
		ExpiresAt:        expiresAt,
	}

	created, err := s.sessions.Create(ctx, session)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create session: %w", err)
	}

	return signed, created, nil
}

// VerifyRefreshToken validates a presented refresh token against the
// named session. Fails closed: a missing session, an inactive or expired
// one, a hash mismatch and a bad signature all come back as the same
// ErrUnauthorized, so callers cannot be used as a state oracle.
func (s *TokenService) VerifyRefreshToken(ctx context.Context, plainToken, sessionID string) (*models.Session, *models.RefreshClaims, error) {
	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		return nil, nil, models.ErrUnauthorized
	}

	if !session.Usable() {
		return nil, nil, models.ErrUnauthorized
	}

	if session.RefreshTokenHash != hashToken(plainToken) {
		return nil, nil, models.ErrUnauthorized
	}

	claims := &models.RefreshClaims{}
	token, err := jwt.ParseWithClaims(plainToken, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.refreshSecret), nil
	})
	if err != nil || !token.Valid || claims.UserID != session.UserID {
		return nil, nil, models.ErrUnauthorized
	}

	return session, claims, nil
}

// RevokeSession deactivates one session.
func (s *TokenService) RevokeSession(ctx context.Context, sessionID string) error {
	if err := s.sessions.Deactivate(ctx, sessionID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAllSessions deactivates every session for the user. Used on
// password changes.
func (s *TokenService) RevokeAllSessions(ctx context.Context, userID string) error {
	if err := s.sessions.DeactivateAllForUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}

	s.logger.Info("all sessions revoked", slog.String("user_id", userID))
	return nil
}

// GeneratePasswordResetToken signs a narrow token carrying only the user
// id. Independent of the session store; expiry is the only revocation.
func (s *TokenService) GeneratePasswordResetToken(userID string) (string, error) {
	now := time.Now()
	claims := &models.ResetClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.resetExpiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.resetSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign reset token: %w", err)
	}

	return signed, nil
}

// VerifyPasswordResetToken returns the user id a valid reset token was
// issued for.
func (s *TokenService) VerifyPasswordResetToken(tokenString string) (string, error) {
	claims := &models.ResetClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.resetSecret), nil
	})
	if err != nil || !token.Valid || claims.UserID == "" {
		return "", models.ErrUnauthorized
	}

	return claims.UserID, nil
}

// hashToken is the storable fingerprint of a refresh token
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
