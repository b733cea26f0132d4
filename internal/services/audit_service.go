package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/lyceum-io/identity/internal/models"
)

// AuditStore is the append-only side of the audit trail.
type AuditStore interface {
	Append(ctx context.Context, event *models.AuditEvent) (*models.AuditEvent, error)
}

// AuditService records security events best-effort. Writes happen on a
// detached goroutine with their own deadline so an audit failure can
// neither block nor mask the caller's result.
type AuditService struct {
	repo    AuditStore
	logger  *slog.Logger
	timeout time.Duration
}

func NewAuditService(repo AuditStore, logger *slog.Logger) *AuditService {
	return &AuditService{
		repo:    repo,
		logger:  logger,
		timeout: 5 * time.Second,
	}
}

// Record appends an event without reporting errors to the caller.
func (s *AuditService) Record(event models.AuditEvent) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if _, err := s.repo.Append(ctx, &event); err != nil {
			s.logger.Error("failed to write audit event",
				slog.String("event_type", event.EventType),
				slog.Any("error", err))
		}
	}()
}

// RecordForUser is Record with the common case of a known actor.
func (s *AuditService) RecordForUser(userID, eventType string, device DeviceInfo, metadata models.AuditMetadata) {
	s.Record(models.AuditEvent{
		UserID:    &userID,
		EventType: eventType,
		IPAddress: device.IPAddress,
		UserAgent: device.UserAgent,
		Metadata:  metadata,
	})
}
