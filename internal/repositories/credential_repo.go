package repositories

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lyceum-io/identity/internal/database"
	"github.com/lyceum-io/identity/internal/models"
)

const credentialColumns = `id, name, email, mobile, password_hash, password_hash_version, password_changed_at,
		email_verified, phone_verified, twofa_enabled, blocked, active, deleted,
		failed_login_attempts, last_failed_login_at, last_login_at, role, role_status, created_at, updated_at`

type CredentialRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewCredentialRepository(db *database.DB) *CredentialRepository {
	return &CredentialRepository{db: db, pool: db.Pool}
}

// rowScanner interface for scanning rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanCredentialRow handles nullable fields and populates a Credential from a database row
func scanCredentialRow(scanner rowScanner) (*models.Credential, error) {
	var cred models.Credential
	var roleStatus *string

	err := scanner.Scan(
		&cred.ID, &cred.Name, &cred.Email, &cred.Mobile,
		&cred.PasswordHash, &cred.PasswordHashVersion, &cred.PasswordChangedAt,
		&cred.EmailVerified, &cred.PhoneVerified, &cred.TwofaEnabled,
		&cred.Blocked, &cred.Active, &cred.Deleted,
		&cred.FailedLoginAttempts, &cred.LastFailedLoginAt, &cred.LastLoginAt,
		&cred.Role, &roleStatus,
		&cred.CreatedAt, &cred.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if roleStatus != nil {
		rs := models.RoleStatus(*roleStatus)
		cred.RoleStatus = &rs
	}

	return &cred, nil
}

func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	query := fmt.Sprintf(`SELECT %s FROM credentials WHERE id = $1`, credentialColumns)
	return scanCredentialRow(r.pool.QueryRow(ctx, query, id))
}

func (r *CredentialRepository) GetByEmail(ctx context.Context, email string) (*models.Credential, error) {
	query := fmt.Sprintf(`SELECT %s FROM credentials WHERE email = $1`, credentialColumns)
	return scanCredentialRow(r.pool.QueryRow(ctx, query, strings.ToLower(strings.TrimSpace(email))))
}

func (r *CredentialRepository) GetByMobile(ctx context.Context, mobile string) (*models.Credential, error) {
	query := fmt.Sprintf(`SELECT %s FROM credentials WHERE mobile = $1`, credentialColumns)
	return scanCredentialRow(r.pool.QueryRow(ctx, query, strings.TrimSpace(mobile)))
}

func (r *CredentialRepository) Create(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	cred.ID = uuid.New().String()

	now := time.Now()
	cred.CreatedAt = now
	cred.UpdatedAt = now
	if cred.PasswordChangedAt.IsZero() {
		cred.PasswordChangedAt = now
	}

	query := fmt.Sprintf(`
		INSERT INTO credentials (id, name, email, mobile, password_hash, password_hash_version, password_changed_at,
			email_verified, phone_verified, twofa_enabled, blocked, active, deleted,
			failed_login_attempts, role, role_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING %s
	`, credentialColumns)

	var roleStatus *string
	if cred.RoleStatus != nil {
		s := string(*cred.RoleStatus)
		roleStatus = &s
	}

	return scanCredentialRow(r.pool.QueryRow(ctx, query,
		cred.ID, cred.Name, cred.Email, cred.Mobile,
		cred.PasswordHash, cred.PasswordHashVersion, cred.PasswordChangedAt,
		cred.EmailVerified, cred.PhoneVerified, cred.TwofaEnabled,
		cred.Blocked, cred.Active, cred.Deleted,
		cred.FailedLoginAttempts, cred.Role, roleStatus,
		cred.CreatedAt, cred.UpdatedAt,
	))
}

// Update writes the whole record back. The caller loaded the credential,
// mutated it as a value and hands it here; hash and version travel
// together in one statement.
func (r *CredentialRepository) Update(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	cred.UpdatedAt = time.Now()

	query := fmt.Sprintf(`
		UPDATE credentials SET name = $1, email = $2, mobile = $3,
			password_hash = $4, password_hash_version = $5, password_changed_at = $6,
			email_verified = $7, phone_verified = $8, twofa_enabled = $9,
			blocked = $10, active = $11, deleted = $12,
			failed_login_attempts = $13, last_failed_login_at = $14, last_login_at = $15,
			role = $16, role_status = $17, updated_at = $18
		WHERE id = $19
		RETURNING %s
	`, credentialColumns)

	var roleStatus *string
	if cred.RoleStatus != nil {
		s := string(*cred.RoleStatus)
		roleStatus = &s
	}

	return scanCredentialRow(r.pool.QueryRow(ctx, query,
		cred.Name, cred.Email, cred.Mobile,
		cred.PasswordHash, cred.PasswordHashVersion, cred.PasswordChangedAt,
		cred.EmailVerified, cred.PhoneVerified, cred.TwofaEnabled,
		cred.Blocked, cred.Active, cred.Deleted,
		cred.FailedLoginAttempts, cred.LastFailedLoginAt, cred.LastLoginAt,
		cred.Role, roleStatus, cred.UpdatedAt, cred.ID,
	))
}

// ListPasswordHistory returns up to limit previous hashes, newest first.
func (r *CredentialRepository) ListPasswordHistory(ctx context.Context, credentialID string, limit int) ([]models.PasswordHistoryEntry, error) {
	query := `
		SELECT hash, version, changed_at
		FROM password_history
		WHERE credential_id = $1
		ORDER BY changed_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, credentialID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query password history: %w", err)
	}
	defer rows.Close()

	entries := make([]models.PasswordHistoryEntry, 0, limit)
	for rows.Next() {
		var e models.PasswordHistoryEntry
		if err := rows.Scan(&e.Hash, &e.Version, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("failed to scan password history: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating password history rows: %w", err)
	}

	return entries, nil
}

// PushPasswordHistory records a superseded hash and trims the retained
// set to PasswordHistoryLimit, evicting the oldest entries.
func (r *CredentialRepository) PushPasswordHistory(ctx context.Context, credentialID string, entry models.PasswordHistoryEntry) error {
	insert := `
		INSERT INTO password_history (credential_id, hash, version, changed_at)
		VALUES ($1, $2, $3, $4)
	`
	trim := `
		DELETE FROM password_history
		WHERE credential_id = $1 AND id NOT IN (
			SELECT id FROM password_history
			WHERE credential_id = $1
			ORDER BY changed_at DESC
			LIMIT $2
		)
	`

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insert, credentialID, entry.Hash, entry.Version, entry.ChangedAt); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, trim, credentialID, models.PasswordHistoryLimit)
		return err
	})
	return database.MapPostgresError(err)
}

// List returns credentials ordered by creation time, for admin tooling.
func (r *CredentialRepository) List(ctx context.Context, limit, offset int) ([]*models.Credential, error) {
	query := fmt.Sprintf(`SELECT %s FROM credentials ORDER BY created_at DESC LIMIT $1 OFFSET $2`, credentialColumns)

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query credentials: %w", err)
	}

	return scanCredentialRows(rows)
}

func scanCredentialRows(rows pgx.Rows) ([]*models.Credential, error) {
	defer rows.Close()

	creds := make([]*models.Credential, 0)
	for rows.Next() {
		cred, err := scanCredentialRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return creds, nil
}
