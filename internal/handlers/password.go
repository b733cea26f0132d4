package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/lyceum-io/identity/internal/auth"
	"github.com/lyceum-io/identity/internal/services"
	pkghttp "github.com/lyceum-io/identity/pkg/http"
)

// PasswordHandler handles the forgot/reset/change password endpoints.
type PasswordHandler struct {
	service  AuthGateway
	ipConfig *pkghttp.IPConfig
	cookies  auth.CookieConfig
}

func NewPasswordHandler(service AuthGateway, ipConfig *pkghttp.IPConfig, cookies auth.CookieConfig) *PasswordHandler {
	return &PasswordHandler{
		service:  service,
		ipConfig: ipConfig,
		cookies:  cookies,
	}
}

// ForgotSendRequest represents the request body for starting a reset.
type ForgotSendRequest struct {
	Identifier string `json:"identifier" validate:"required"`
}

// ForgotVerifyRequest represents the request body for verifying a reset
// code.
type ForgotVerifyRequest struct {
	OTPID string `json:"otpId" validate:"required,uuid"`
	OTP   string `json:"otp" validate:"required,len=6"`
}

// ResetPasswordRequest represents the request body for /password/reset.
type ResetPasswordRequest struct {
	ResetToken      string `json:"resetToken" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// ChangePasswordRequest represents the request body for the
// authenticated password change.
type ChangePasswordRequest struct {
	OldPassword     string `json:"oldPassword" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
}

// ForgotSend handles POST /forgot/send.
func (h *PasswordHandler) ForgotSend(w http.ResponseWriter, r *http.Request) {
	var req ForgotSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	otpID, err := h.service.ForgotSend(r.Context(),
		strings.ToLower(strings.TrimSpace(req.Identifier)), h.device(r))
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"otpId": otpID})
}

// ForgotVerify handles POST /forgot/verify, trading a correct code for a
// short-lived reset token.
func (h *PasswordHandler) ForgotVerify(w http.ResponseWriter, r *http.Request) {
	var req ForgotVerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	resetToken, err := h.service.ForgotVerify(r.Context(), req.OTPID, req.OTP, h.device(r))
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"resetToken": resetToken})
}

// ResetPassword handles POST /password/reset.
func (h *PasswordHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ResetPassword(r.Context(),
		req.ResetToken, req.Password, req.ConfirmPassword, h.device(r)); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Password has been reset"})
}

// ChangePassword handles PATCH /change-password. Every session of the
// user is revoked, including the current one, so the cookies are cleared.
func (h *PasswordHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	sc, ok := auth.GetSessionContext(r.Context())
	if !ok {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	if err := h.service.ChangePassword(r.Context(), sc.Credential,
		req.OldPassword, req.Password, req.ConfirmPassword, h.device(r)); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	auth.ClearAuthCookies(w, h.cookies)
	writeJSON(w, http.StatusOK, map[string]string{"message": "Password changed. Please log in again."})
}

func (h *PasswordHandler) device(r *http.Request) services.DeviceInfo {
	return deviceFromRequest(r, h.ipConfig)
}
