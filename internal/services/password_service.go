package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lyceum-io/identity/internal/models"
	"golang.org/x/crypto/bcrypt"
)

const (
	// CurrentPasswordHashVersion is bumped whenever the hashing scheme
	// changes. Hashes at older versions are upgraded lazily on login.
	CurrentPasswordHashVersion = 2

	passwordHashCost = 12
)

// CredentialStore is the slice of credential persistence the password
// service needs.
type CredentialStore interface {
	Update(ctx context.Context, cred *models.Credential) (*models.Credential, error)
	ListPasswordHistory(ctx context.Context, credentialID string, limit int) ([]models.PasswordHistoryEntry, error)
	PushPasswordHistory(ctx context.Context, credentialID string, entry models.PasswordHistoryEntry) error
}

// PasswordService hashes, verifies and migrates password material. All
// hashing appends the server-held pepper; the pepper never leaves the
// service.
type PasswordService struct {
	pepper  string
	cost    int
	version int
	repo    CredentialStore
	logger  *slog.Logger
}

// NewPasswordService fails fast on a missing pepper: without it no stored
// hash can ever verify, so there is nothing sensible to degrade to.
func NewPasswordService(pepper string, repo CredentialStore, logger *slog.Logger) (*PasswordService, error) {
	if pepper == "" {
		return nil, fmt.Errorf("password pepper is not configured")
	}

	return &PasswordService{
		pepper:  pepper,
		cost:    passwordHashCost,
		version: CurrentPasswordHashVersion,
		repo:    repo,
		logger:  logger,
	}, nil
}

// HashPassword derives a salted hash of the peppered password at the
// current cost and version.
func (s *PasswordService) HashPassword(plain string) (string, int, error) {
	if plain == "" {
		return "", 0, fmt.Errorf("%w: password cannot be empty", models.ErrValidation)
	}

	// bcrypt reads at most 72 bytes and the pepper eats into that
	// budget; overlong input is the caller's mistake, not a crypto
	// failure.
	if len(s.peppered(plain)) > 72 {
		return "", 0, fmt.Errorf("%w: password is too long", models.ErrValidation)
	}

	hashed, err := bcrypt.GenerateFromPassword(s.peppered(plain), s.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", 0, fmt.Errorf("%w: password is too long", models.ErrValidation)
		}
		return "", 0, fmt.Errorf("failed to hash password: %w", err)
	}

	return string(hashed), s.version, nil
}

// VerifyPassword compares the peppered plaintext against the stored hash.
// On a match with an outdated hash version it flags the credential for
// rehash; the flag lives only on the in-memory record.
func (s *PasswordService) VerifyPassword(plain string, cred *models.Credential) bool {
	if err := bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), s.peppered(plain)); err != nil {
		return false
	}

	if cred.PasswordHashVersion != s.version {
		cred.NeedsRehash = true
	}

	return true
}

// RehashIfNeeded upgrades a verified credential's hash to the current
// version. The superseded hash is pushed into the password history before
// the new one is persisted. No-op unless VerifyPassword flagged the
// credential during this request.
func (s *PasswordService) RehashIfNeeded(ctx context.Context, cred *models.Credential, plain string) error {
	if !cred.NeedsRehash {
		return nil
	}

	previous := models.PasswordHistoryEntry{
		Hash:      cred.PasswordHash,
		Version:   cred.PasswordHashVersion,
		ChangedAt: cred.PasswordChangedAt,
	}

	hash, version, err := s.HashPassword(plain)
	if err != nil {
		return err
	}

	if err := s.repo.PushPasswordHistory(ctx, cred.ID, previous); err != nil {
		return fmt.Errorf("failed to record password history: %w", err)
	}

	cred.SetPassword(hash, version, time.Now())
	cred.NeedsRehash = false

	updated, err := s.repo.Update(ctx, cred)
	if err != nil {
		return fmt.Errorf("failed to persist rehashed password: %w", err)
	}
	*cred = *updated

	s.logger.Info("password hash upgraded",
		slog.String("credential_id", cred.ID),
		slog.Int("version", version))

	return nil
}

// IsPasswordReused reports whether the plaintext matches any of the most
// recent PasswordReuseDepth history entries. The store retains
// PasswordHistoryLimit entries but only this shallower window is checked.
func (s *PasswordService) IsPasswordReused(ctx context.Context, plain string, cred *models.Credential) (bool, error) {
	history, err := s.repo.ListPasswordHistory(ctx, cred.ID, models.PasswordReuseDepth)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load password history: %w", err)
	}

	peppered := s.peppered(plain)
	for _, entry := range history {
		if bcrypt.CompareHashAndPassword([]byte(entry.Hash), peppered) == nil {
			return true, nil
		}
	}

	return false, nil
}

func (s *PasswordService) peppered(plain string) []byte {
	return []byte(plain + s.pepper)
}
