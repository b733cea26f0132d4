package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lyceum-io/identity/internal/database"
	"github.com/lyceum-io/identity/internal/models"
)

const sessionColumns = `id, user_id, refresh_token_hash, device_name, ip_address, user_agent,
		active, last_accessed_at, expires_at, created_at`

type SessionRepository struct {
	pool *pgxpool.Pool
}

func NewSessionRepository(db *database.DB) *SessionRepository {
	return &SessionRepository{pool: db.Pool}
}

func scanSessionRow(scanner rowScanner) (*models.Session, error) {
	var s models.Session

	err := scanner.Scan(
		&s.ID, &s.UserID, &s.RefreshTokenHash, &s.DeviceName, &s.IPAddress, &s.UserAgent,
		&s.Active, &s.LastAccessedAt, &s.ExpiresAt, &s.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &s, nil
}

func scanSessionRows(rows pgx.Rows) ([]*models.Session, error) {
	defer rows.Close()

	sessions := make([]*models.Session, 0)
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating session rows: %w", err)
	}

	return sessions, nil
}

func (r *SessionRepository) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	session.ID = uuid.New().String()

	now := time.Now()
	session.CreatedAt = now
	session.LastAccessedAt = now
	session.Active = true

	query := fmt.Sprintf(`
		INSERT INTO sessions (id, user_id, refresh_token_hash, device_name, ip_address, user_agent,
			active, last_accessed_at, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING %s
	`, sessionColumns)

	return scanSessionRow(r.pool.QueryRow(ctx, query,
		session.ID, session.UserID, session.RefreshTokenHash,
		session.DeviceName, session.IPAddress, session.UserAgent,
		session.Active, session.LastAccessedAt, session.ExpiresAt, session.CreatedAt,
	))
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns)
	return scanSessionRow(r.pool.QueryRow(ctx, query, id))
}

// ListActiveByUser returns the user's active sessions, newest first.
func (r *SessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM sessions
		WHERE user_id = $1 AND active
		ORDER BY created_at DESC
	`, sessionColumns)

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}

	return scanSessionRows(rows)
}

func (r *SessionRepository) Deactivate(ctx context.Context, id string) error {
	query := `UPDATE sessions SET active = FALSE WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

func (r *SessionRepository) DeactivateAllForUser(ctx context.Context, userID string) error {
	query := `UPDATE sessions SET active = FALSE WHERE user_id = $1 AND active`

	_, err := r.pool.Exec(ctx, query, userID)
	return database.MapPostgresError(err)
}

// TouchLastAccessed stamps session activity; failures here are not fatal
// to the request.
func (r *SessionRepository) TouchLastAccessed(ctx context.Context, id string) error {
	query := `UPDATE sessions SET last_accessed_at = NOW() WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id)
	return database.MapPostgresError(err)
}

// DeleteExpired removes sessions past their expiry (call periodically)
func (r *SessionRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < NOW()`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
