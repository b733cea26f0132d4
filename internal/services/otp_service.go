package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/lyceum-io/identity/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// DefaultOTPLength is the number of digits in a generated code
const DefaultOTPLength = 6

// OTPStore is the slice of one-time-code persistence the OTP service needs.
type OTPStore interface {
	Create(ctx context.Context, code *models.OneTimeCode) (*models.OneTimeCode, error)
	GetByID(ctx context.Context, id string) (*models.OneTimeCode, error)
	GetLatestPending(ctx context.Context, userID string, codeType models.OTPType) (*models.OneTimeCode, error)
	MarkUsed(ctx context.Context, id string) error
}

// OTPService issues and verifies short-lived one-time codes. Codes are
// stored hashed; the plaintext is returned exactly once, for delivery.
type OTPService struct {
	repo   OTPStore
	ttl    time.Duration
	logger *slog.Logger
}

func NewOTPService(repo OTPStore, ttl time.Duration, logger *slog.Logger) *OTPService {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &OTPService{
		repo:   repo,
		ttl:    ttl,
		logger: logger,
	}
}

// GenerateCode draws a zero-padded numeric code from a cryptographically
// secure source.
func (s *OTPService) GenerateCode(length int) (string, error) {
	if length <= 0 {
		length = DefaultOTPLength
	}

	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}

	return fmt.Sprintf("%0*d", length, n), nil
}

// CreateOTP issues a new code for the user. The returned plaintext is for
// the caller to deliver; only the bcrypt hash is persisted.
func (s *OTPService) CreateOTP(ctx context.Context, userID string, codeType models.OTPType, metadata map[string]string) (string, string, error) {
	plain, err := s.GenerateCode(DefaultOTPLength)
	if err != nil {
		return "", "", err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", "", fmt.Errorf("failed to hash code: %w", err)
	}

	code := &models.OneTimeCode{
		UserID:    userID,
		Type:      codeType,
		CodeHash:  string(hash),
		ExpiresAt: time.Now().Add(s.ttl),
		Metadata:  metadata,
	}

	created, err := s.repo.Create(ctx, code)
	if err != nil {
		return "", "", fmt.Errorf("failed to store code: %w", err)
	}

	s.logger.Info("one-time code issued",
		slog.String("code_id", created.ID),
		slog.String("user_id", userID),
		slog.String("type", string(codeType)))

	return plain, created.ID, nil
}

// ResendOTP soft-invalidates the most recently issued pending code of the
// same type, then issues a fresh one. Only the single newest pending row
// is looked at; an older still-valid code of the same type survives.
func (s *OTPService) ResendOTP(ctx context.Context, userID string, codeType models.OTPType, metadata map[string]string) (string, string, error) {
	previous, err := s.repo.GetLatestPending(ctx, userID, codeType)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return "", "", fmt.Errorf("failed to check pending codes: %w", err)
	}

	if previous != nil {
		if err := s.repo.MarkUsed(ctx, previous.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
			return "", "", fmt.Errorf("failed to invalidate previous code: %w", err)
		}
	}

	return s.CreateOTP(ctx, userID, codeType, metadata)
}

// VerifyOTP checks a presented code against its stored record and
// consumes it on success. Each failure path has its own sentinel so the
// caller can surface the reason; none are retried.
func (s *OTPService) VerifyOTP(ctx context.Context, codeID, plain string) (*models.OneTimeCode, error) {
	return s.verifyOTP(ctx, codeID, plain, nil)
}

// VerifyOTPOfType additionally requires the code to have been issued for
// one of the given purposes. The type check runs before anything is
// consumed: a mismatch must not burn a live code from another flow.
func (s *OTPService) VerifyOTPOfType(ctx context.Context, codeID, plain string, want ...models.OTPType) (*models.OneTimeCode, error) {
	return s.verifyOTP(ctx, codeID, plain, want)
}

func (s *OTPService) verifyOTP(ctx context.Context, codeID, plain string, want []models.OTPType) (*models.OneTimeCode, error) {
	code, err := s.repo.GetByID(ctx, codeID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrOTPNotFound
		}
		return nil, fmt.Errorf("failed to load code: %w", err)
	}

	if len(want) > 0 && !typeAllowed(code.Type, want) {
		return nil, models.ErrOTPMismatch
	}

	if code.Used {
		return nil, models.ErrOTPUsed
	}
	if code.IsExpired() {
		return nil, models.ErrOTPExpired
	}

	if bcrypt.CompareHashAndPassword([]byte(code.CodeHash), []byte(plain)) != nil {
		return nil, models.ErrOTPMismatch
	}

	if err := s.repo.MarkUsed(ctx, code.ID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// consumed concurrently
			return nil, models.ErrOTPUsed
		}
		return nil, fmt.Errorf("failed to consume code: %w", err)
	}
	code.Used = true

	s.logger.Info("one-time code verified",
		slog.String("code_id", code.ID),
		slog.String("user_id", code.UserID),
		slog.String("type", string(code.Type)))

	return code, nil
}

func typeAllowed(got models.OTPType, want []models.OTPType) bool {
	for _, w := range want {
		if got == w {
			return true
		}
	}
	return false
}

// CreateTwoFAChallenge issues a login challenge code for the credential.
func (s *OTPService) CreateTwoFAChallenge(ctx context.Context, cred *models.Credential) (string, string, error) {
	return s.CreateOTP(ctx, cred.ID, models.OTPTypeTwofaChallenge, nil)
}

// VerifyTwoFAChallenge verifies a login challenge code, rejecting codes
// issued for any other purpose.
func (s *OTPService) VerifyTwoFAChallenge(ctx context.Context, codeID, plain string) (*models.OneTimeCode, error) {
	return s.VerifyOTPOfType(ctx, codeID, plain, models.OTPTypeTwofaChallenge)
}
