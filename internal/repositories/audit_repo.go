package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lyceum-io/identity/internal/database"
	"github.com/lyceum-io/identity/internal/models"
)

const auditColumns = `id, user_id, event_type, ip_address, user_agent, metadata, created_at`

// AuditRepository handles audit trail data access. The table is
// append-only; there are no update or delete methods.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{pool: db.Pool}
}

func scanAuditRow(scanner rowScanner) (*models.AuditEvent, error) {
	var event models.AuditEvent

	err := scanner.Scan(
		&event.ID, &event.UserID, &event.EventType,
		&event.IPAddress, &event.UserAgent, &event.Metadata, &event.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &event, nil
}

func scanAuditRows(rows pgx.Rows) ([]*models.AuditEvent, error) {
	defer rows.Close()

	events := make([]*models.AuditEvent, 0)
	for rows.Next() {
		event, err := scanAuditRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit rows: %w", err)
	}

	return events, nil
}

func (r *AuditRepository) Append(ctx context.Context, event *models.AuditEvent) (*models.AuditEvent, error) {
	event.ID = uuid.New().String()

	query := fmt.Sprintf(`
		INSERT INTO audit_events (id, user_id, event_type, ip_address, user_agent, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING %s
	`, auditColumns)

	result, err := scanAuditRow(r.pool.QueryRow(ctx, query,
		event.ID, event.UserID, event.EventType,
		event.IPAddress, event.UserAgent, event.Metadata,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to append audit event: %w", err)
	}

	return result, nil
}

// ListByUser retrieves a user's audit trail, newest first.
func (r *AuditRepository) ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_events
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, auditColumns)

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}

	return scanAuditRows(rows)
}

// ListByEventType retrieves events of one type, newest first.
func (r *AuditRepository) ListByEventType(ctx context.Context, eventType string, limit, offset int) ([]*models.AuditEvent, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM audit_events
		WHERE event_type = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, auditColumns)

	rows, err := r.pool.Query(ctx, query, eventType, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}

	return scanAuditRows(rows)
}
