package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lyceum-io/identity/internal/models"
)

// In-memory fakes for the store interfaces. Shared by the service tests
// in this package and the handler tests one level up.

func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MemCredentialStore is an in-memory CredentialRepository.
type MemCredentialStore struct {
	mu      sync.Mutex
	byID    map[string]*models.Credential
	history map[string][]models.PasswordHistoryEntry
}

func NewMemCredentialStore() *MemCredentialStore {
	return &MemCredentialStore{
		byID:    make(map[string]*models.Credential),
		history: make(map[string][]models.PasswordHistoryEntry),
	}
}

func (s *MemCredentialStore) Create(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.byID {
		if cred.Email != nil && existing.Email != nil && *cred.Email == *existing.Email {
			return nil, models.ErrConflict
		}
		if cred.Mobile != nil && existing.Mobile != nil && *cred.Mobile == *existing.Mobile {
			return nil, models.ErrConflict
		}
	}

	cred.ID = uuid.NewString()
	cred.CreatedAt = time.Now()
	cred.UpdatedAt = cred.CreatedAt
	copied := *cred
	s.byID[cred.ID] = &copied
	return cred, nil
}

func (s *MemCredentialStore) GetByID(ctx context.Context, id string) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cred, ok := s.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *cred
	return &copied, nil
}

func (s *MemCredentialStore) GetByEmail(ctx context.Context, email string) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cred := range s.byID {
		if cred.Email != nil && *cred.Email == email {
			copied := *cred
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemCredentialStore) GetByMobile(ctx context.Context, mobile string) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cred := range s.byID {
		if cred.Mobile != nil && *cred.Mobile == mobile {
			copied := *cred
			return &copied, nil
		}
	}
	return nil, models.ErrNotFound
}

func (s *MemCredentialStore) Update(ctx context.Context, cred *models.Credential) (*models.Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[cred.ID]; !ok {
		return nil, models.ErrNotFound
	}
	cred.UpdatedAt = time.Now()
	copied := *cred
	s.byID[cred.ID] = &copied
	return cred, nil
}

func (s *MemCredentialStore) ListPasswordHistory(ctx context.Context, credentialID string, limit int) ([]models.PasswordHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.history[credentialID]
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	out := make([]models.PasswordHistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (s *MemCredentialStore) PushPasswordHistory(ctx context.Context, credentialID string, entry models.PasswordHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Newest first, trimmed to the retention cap.
	entries := append([]models.PasswordHistoryEntry{entry}, s.history[credentialID]...)
	if len(entries) > models.PasswordHistoryLimit {
		entries = entries[:models.PasswordHistoryLimit]
	}
	s.history[credentialID] = entries
	return nil
}

// MemSessionStore is an in-memory SessionStore.
type MemSessionStore struct {
	mu   sync.Mutex
	byID map[string]*models.Session
}

func NewMemSessionStore() *MemSessionStore {
	return &MemSessionStore{byID: make(map[string]*models.Session)}
}

func (s *MemSessionStore) Create(ctx context.Context, session *models.Session) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session.ID = uuid.NewString()
	session.Active = true
	session.CreatedAt = time.Now()
	session.LastAccessedAt = session.CreatedAt
	copied := *session
	s.byID[session.ID] = &copied
	return session, nil
}

func (s *MemSessionStore) GetByID(ctx context.Context, id string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *MemSessionStore) ListActiveByUser(ctx context.Context, userID string) ([]*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Session
	for _, session := range s.byID {
		if session.UserID == userID && session.Active {
			copied := *session
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *MemSessionStore) Deactivate(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	session.Active = false
	return nil
}

func (s *MemSessionStore) DeactivateAllForUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, session := range s.byID {
		if session.UserID == userID {
			session.Active = false
		}
	}
	return nil
}

func (s *MemSessionStore) TouchLastAccessed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.byID[id]
	if !ok {
		return models.ErrNotFound
	}
	session.LastAccessedAt = time.Now()
	return nil
}

// MemOTPStore is an in-memory OTPStore.
type MemOTPStore struct {
	mu   sync.Mutex
	byID map[string]*models.OneTimeCode
}

func NewMemOTPStore() *MemOTPStore {
	return &MemOTPStore{byID: make(map[string]*models.OneTimeCode)}
}

func (s *MemOTPStore) Create(ctx context.Context, code *models.OneTimeCode) (*models.OneTimeCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code.ID = uuid.NewString()
	code.CreatedAt = time.Now()
	copied := *code
	s.byID[code.ID] = &copied
	return code, nil
}

func (s *MemOTPStore) GetByID(ctx context.Context, id string) (*models.OneTimeCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.byID[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *code
	return &copied, nil
}

func (s *MemOTPStore) GetLatestPending(ctx context.Context, userID string, codeType models.OTPType) (*models.OneTimeCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var latest *models.OneTimeCode
	for _, code := range s.byID {
		if code.UserID != userID || code.Type != codeType || code.Used || time.Now().After(code.ExpiresAt) {
			continue
		}
		if latest == nil || code.CreatedAt.After(latest.CreatedAt) {
			latest = code
		}
	}
	if latest == nil {
		return nil, models.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *MemOTPStore) MarkUsed(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.byID[id]
	if !ok || code.Used {
		return models.ErrNotFound
	}
	code.Used = true
	return nil
}

// MemAuditStore is an in-memory AuditStore.
type MemAuditStore struct {
	mu     sync.Mutex
	events []*models.AuditEvent
}

func NewMemAuditStore() *MemAuditStore {
	return &MemAuditStore{}
}

func (s *MemAuditStore) Append(ctx context.Context, event *models.AuditEvent) (*models.AuditEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	event.ID = uuid.NewString()
	event.CreatedAt = time.Now()
	copied := *event
	s.events = append(s.events, &copied)
	return event, nil
}

func (s *MemAuditStore) Events() []*models.AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.AuditEvent, len(s.events))
	copy(out, s.events)
	return out
}

// MemMailer records sends instead of delivering them.
type MemMailer struct {
	mu    sync.Mutex
	Fail  bool
	Sends []RecordedMail
}

// RecordedMail is one captured Send call.
type RecordedMail struct {
	To       string
	Subject  string
	Template string
	Data     map[string]string
}

func NewMemMailer() *MemMailer {
	return &MemMailer{}
}

func (m *MemMailer) Send(ctx context.Context, to, subject, templateName string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Fail {
		return models.ErrInternalServer
	}
	m.Sends = append(m.Sends, RecordedMail{To: to, Subject: subject, Template: templateName, Data: data})
	return nil
}

// LastSend returns the most recent captured mail, or nil.
func (m *MemMailer) LastSend() *RecordedMail {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.Sends) == 0 {
		return nil
	}
	last := m.Sends[len(m.Sends)-1]
	return &last
}
