package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/lyceum-io/identity/internal/auth"
	"github.com/lyceum-io/identity/internal/models"
	"github.com/lyceum-io/identity/internal/services"
	pkghttp "github.com/lyceum-io/identity/pkg/http"
)

// AuditReader is the audit query surface exposed to admins.
type AuditReader interface {
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]*models.AuditEvent, error)
}

// AccountHandler handles the authenticated account endpoints.
type AccountHandler struct {
	service  AuthGateway
	audits   AuditReader
	ipConfig *pkghttp.IPConfig
}

func NewAccountHandler(service AuthGateway, audits AuditReader, ipConfig *pkghttp.IPConfig) *AccountHandler {
	return &AccountHandler{
		service:  service,
		audits:   audits,
		ipConfig: ipConfig,
	}
}

// Me handles GET /me.
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	sc, ok := auth.GetSessionContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	writeJSON(w, http.StatusOK, services.NewCredentialResponse(sc.Credential))
}

// SendVerification handles POST /send-verification, reissuing the
// activation code for the caller's email.
func (h *AccountHandler) SendVerification(w http.ResponseWriter, r *http.Request) {
	sc, ok := auth.GetSessionContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	otpID, err := h.service.SendVerification(r.Context(), sc.Credential, deviceFromRequest(r, h.ipConfig))
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"otpId": otpID})
}

// AcceptVerification handles PATCH /accept-verification/{userId}
// (admin only; the route applies RequireAdmin).
func (h *AccountHandler) AcceptVerification(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if _, err := uuid.Parse(userID); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid user id")
		return
	}

	cred, err := h.service.AcceptVerification(r.Context(), userID, deviceFromRequest(r, h.ipConfig))
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cred)
}

// ListSessions handles GET /sessions.
func (h *AccountHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sc, ok := auth.GetSessionContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	sessions, err := h.service.ListSessions(r.Context(), sc.Credential.ID)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// RevokeSession handles DELETE /sessions/{sessionId}.
func (h *AccountHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	sc, ok := auth.GetSessionContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	sessionID := chi.URLParam(r, "sessionId")
	if _, err := uuid.Parse(sessionID); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid session id")
		return
	}

	err := h.service.RevokeOwnSession(r.Context(), sc.Credential.ID, sessionID, deviceFromRequest(r, h.ipConfig))
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Session revoked"})
}

// ListUserAudit handles GET /admin/audit/{userId} (admin only).
func (h *AccountHandler) ListUserAudit(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userId")
	if _, err := uuid.Parse(userID); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid user id")
		return
	}

	events, err := h.audits.ListByUser(r.Context(), userID, 100, 0)
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"events": events})
}
