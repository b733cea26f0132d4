package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/lyceum-io/identity/internal/auth"
	"github.com/lyceum-io/identity/internal/models"
	"github.com/lyceum-io/identity/internal/services"
	pkghttp "github.com/lyceum-io/identity/pkg/http"
)

// AuthGateway is the slice of the auth service the HTTP layer consumes.
type AuthGateway interface {
	Register(ctx context.Context, in services.RegisterInput) (*services.RegisterResult, error)
	Activate(ctx context.Context, otpID, code string, device services.DeviceInfo) (*services.CredentialResponse, error)
	Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	CompleteTwofa(ctx context.Context, otpID, code string, device services.DeviceInfo) (*services.LoginResult, error)
	Logout(ctx context.Context, refreshToken, sessionID string, device services.DeviceInfo) error
	Refresh(ctx context.Context, refreshToken, sessionID string, device services.DeviceInfo) (*services.LoginResult, error)
	ForgotSend(ctx context.Context, identifier string, device services.DeviceInfo) (string, error)
	ForgotVerify(ctx context.Context, otpID, code string, device services.DeviceInfo) (string, error)
	ResetPassword(ctx context.Context, resetToken, newPassword, confirmPassword string, device services.DeviceInfo) error
	ChangePassword(ctx context.Context, cred *models.Credential, oldPassword, newPassword, confirmPassword string, device services.DeviceInfo) error
	SendVerification(ctx context.Context, cred *models.Credential, device services.DeviceInfo) (string, error)
	AcceptVerification(ctx context.Context, targetUserID string, device services.DeviceInfo) (*services.CredentialResponse, error)
	ListSessions(ctx context.Context, userID string) ([]*services.SessionResponse, error)
	RevokeOwnSession(ctx context.Context, userID, sessionID string, device services.DeviceInfo) error
}

// AuthHandler handles the unauthenticated auth endpoints plus logout and
// refresh, which authenticate via the refresh token itself.
type AuthHandler struct {
	service       AuthGateway
	ipConfig      *pkghttp.IPConfig
	cookies       auth.CookieConfig
	accessExpiry  time.Duration
	refreshExpiry time.Duration
}

func NewAuthHandler(service AuthGateway, ipConfig *pkghttp.IPConfig, cookies auth.CookieConfig, accessExpiry, refreshExpiry time.Duration) *AuthHandler {
	return &AuthHandler{
		service:       service,
		ipConfig:      ipConfig,
		cookies:       cookies,
		accessExpiry:  accessExpiry,
		refreshExpiry: refreshExpiry,
	}
}

// RegisterRequest represents the request body for registration.
type RegisterRequest struct {
	Name            string `json:"name" validate:"required,min=1,max=100"`
	Email           string `json:"email" validate:"omitempty,email"`
	Mobile          string `json:"mobile" validate:"omitempty,min=7,max=20"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required"`
	Role            string `json:"role" validate:"omitempty,oneof=student instructor admin"`
}

// ActivateRequest represents the request body for account activation.
type ActivateRequest struct {
	OTPID string `json:"otpId" validate:"required,uuid"`
	OTP   string `json:"otp" validate:"required,len=6"`
}

// LoginRequest represents the request body for login. Identifier is an
// email address or a mobile number.
type LoginRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// VerifyTwofaRequest represents the request body for completing a 2FA
// challenge.
type VerifyTwofaRequest struct {
	OTPID string `json:"otpId" validate:"required,uuid"`
	OTP   string `json:"otp" validate:"required,len=6"`
}

func (h *AuthHandler) device(r *http.Request) services.DeviceInfo {
	return deviceFromRequest(r, h.ipConfig)
}

// deviceFromRequest builds the device metadata recorded on sessions and
// audit events.
func deviceFromRequest(r *http.Request, ipConfig *pkghttp.IPConfig) services.DeviceInfo {
	return services.DeviceInfo{
		Name:      deviceNameFromUserAgent(r.Header.Get("User-Agent")),
		IPAddress: pkghttp.ExtractClientIP(r, ipConfig),
		UserAgent: r.Header.Get("User-Agent"),
	}
}

// Register handles POST /register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}
	if req.Email == "" && req.Mobile == "" {
		pkghttp.WriteBadRequest(w, "Either email or mobile is required")
		return
	}

	result, err := h.service.Register(r.Context(), services.RegisterInput{
		Name:            strings.TrimSpace(req.Name),
		Email:           strings.ToLower(strings.TrimSpace(req.Email)),
		Mobile:          strings.TrimSpace(req.Mobile),
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		Role:            models.Role(req.Role),
		Device:          h.device(r),
	})
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

// Activate handles POST /activate-user.
func (h *AuthHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	cred, err := h.service.Activate(r.Context(), req.OTPID, req.OTP, h.device(r))
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, cred)
}

// Login handles POST /login. On full success the three auth cookies are
// set; when 2FA is pending the body carries tempToken and otpId and no
// cookies are issued.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.Login(r.Context(), services.LoginInput{
		Identifier: strings.ToLower(strings.TrimSpace(req.Identifier)),
		Password:   req.Password,
		Device:     h.device(r),
	})
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	if !result.TwofaRequired {
		auth.SetAuthCookies(w, h.cookies,
			result.AccessToken, result.RefreshToken, result.SessionID,
			h.accessExpiry, h.refreshExpiry)
	}

	writeJSON(w, http.StatusOK, result)
}

// VerifyTwofa handles POST /verify-2fa, completing a pending login.
func (h *AuthHandler) VerifyTwofa(w http.ResponseWriter, r *http.Request) {
	var req VerifyTwofaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	result, err := h.service.CompleteTwofa(r.Context(), req.OTPID, req.OTP, h.device(r))
	if err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	auth.SetAuthCookies(w, h.cookies,
		result.AccessToken, result.RefreshToken, result.SessionID,
		h.accessExpiry, h.refreshExpiry)

	writeJSON(w, http.StatusOK, result)
}

// Logout handles POST /logout. The refresh token and session id come
// from cookies; the cookies are cleared regardless of outcome.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	refreshToken := auth.ReadCookie(r, auth.RefreshTokenCookie)
	sessionID := auth.ReadCookie(r, auth.SessionIDCookie)

	auth.ClearAuthCookies(w, h.cookies)

	if refreshToken == "" || sessionID == "" {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	if err := h.service.Logout(r.Context(), refreshToken, sessionID, h.device(r)); err != nil {
		pkghttp.WriteServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Refresh handles POST /refresh, rotating the session and reissuing all
// three cookies.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	refreshToken := auth.ReadCookie(r, auth.RefreshTokenCookie)
	sessionID := auth.ReadCookie(r, auth.SessionIDCookie)

	if refreshToken == "" || sessionID == "" {
		pkghttp.WriteUnauthorized(w, "Authentication required")
		return
	}

	result, err := h.service.Refresh(r.Context(), refreshToken, sessionID, h.device(r))
	if err != nil {
		auth.ClearAuthCookies(w, h.cookies)
		pkghttp.WriteServiceError(w, err)
		return
	}

	auth.SetAuthCookies(w, h.cookies,
		result.AccessToken, result.RefreshToken, result.SessionID,
		h.accessExpiry, h.refreshExpiry)

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// deviceNameFromUserAgent derives a coarse device label for the session
// list.
func deviceNameFromUserAgent(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case ua == "":
		return "Unknown device"
	case strings.Contains(ua, "iphone"), strings.Contains(ua, "ipad"):
		return "iOS device"
	case strings.Contains(ua, "android"):
		return "Android device"
	case strings.Contains(ua, "macintosh"):
		return "Mac"
	case strings.Contains(ua, "windows"):
		return "Windows PC"
	case strings.Contains(ua, "linux"):
		return "Linux PC"
	default:
		return "Unknown device"
	}
}
