package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lyceum-io/identity/internal/database"
	"github.com/lyceum-io/identity/internal/models"
)

const otpColumns = `id, user_id, type, code_hash, used, attempts, expires_at, created_at, metadata`

// OTPRepository handles one-time code data access
type OTPRepository struct {
	pool *pgxpool.Pool
}

func NewOTPRepository(db *database.DB) *OTPRepository {
	return &OTPRepository{pool: db.Pool}
}

func scanOTPRow(scanner rowScanner) (*models.OneTimeCode, error) {
	var code models.OneTimeCode
	var metadata []byte

	err := scanner.Scan(
		&code.ID, &code.UserID, &code.Type, &code.CodeHash,
		&code.Used, &code.Attempts, &code.ExpiresAt, &code.CreatedAt, &metadata,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if metadata != nil {
		if err := json.Unmarshal(metadata, &code.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode code metadata: %w", err)
		}
	}

	return &code, nil
}

func (r *OTPRepository) Create(ctx context.Context, code *models.OneTimeCode) (*models.OneTimeCode, error) {
	code.ID = uuid.New().String()
	code.CreatedAt = time.Now()

	var metadata []byte
	if code.Metadata != nil {
		var err error
		metadata, err = json.Marshal(code.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode code metadata: %w", err)
		}
	}

	query := fmt.Sprintf(`
		INSERT INTO one_time_codes (id, user_id, type, code_hash, used, attempts, expires_at, created_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING %s
	`, otpColumns)

	return scanOTPRow(r.pool.QueryRow(ctx, query,
		code.ID, code.UserID, code.Type, code.CodeHash,
		code.Used, code.Attempts, code.ExpiresAt, code.CreatedAt, metadata,
	))
}

func (r *OTPRepository) GetByID(ctx context.Context, id string) (*models.OneTimeCode, error) {
	query := fmt.Sprintf(`SELECT %s FROM one_time_codes WHERE id = $1`, otpColumns)
	return scanOTPRow(r.pool.QueryRow(ctx, query, id))
}

// GetLatestPending returns the most recently created unused, unexpired
// code for a (user, type) pair. Older pending codes are not considered.
func (r *OTPRepository) GetLatestPending(ctx context.Context, userID string, codeType models.OTPType) (*models.OneTimeCode, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM one_time_codes
		WHERE user_id = $1 AND type = $2 AND NOT used AND expires_at > NOW()
		ORDER BY created_at DESC
		LIMIT 1
	`, otpColumns)

	return scanOTPRow(r.pool.QueryRow(ctx, query, userID, codeType))
}

// MarkUsed flips the single-use flag. Returns ErrNotFound if the code was
// already consumed or never existed.
func (r *OTPRepository) MarkUsed(ctx context.Context, id string) error {
	query := `UPDATE one_time_codes SET used = TRUE WHERE id = $1 AND NOT used`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// DeleteExpired removes codes past their expiry (call periodically)
func (r *OTPRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM one_time_codes WHERE expires_at < NOW()`

	result, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
