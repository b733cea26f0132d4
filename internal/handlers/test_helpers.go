package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lyceum-io/identity/internal/models"
	"github.com/lyceum-io/identity/internal/services"
	pkghttp "github.com/lyceum-io/identity/pkg/http"
)

// NewTestRequest creates an HTTP request with a JSON body.
func NewTestRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// AssertJSONResponse checks status and decodes the JSON body into target.
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target interface{}) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "failed to decode response JSON")
	}
}

// AssertErrorResponse checks the status and error code of a failure body.
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) {
	t.Helper()
	assert.Equal(t, expectedStatus, w.Code, "response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "failed to decode error response")
	assert.Equal(t, expectedError, resp.Error)
	assert.NotEmpty(t, resp.Message)
}

// ResponseCookie returns the named Set-Cookie from a recorder, or nil.
func ResponseCookie(w *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, cookie := range w.Result().Cookies() {
		if cookie.Name == name {
			return cookie
		}
	}
	return nil
}

// MockAuthGateway implements AuthGateway with function fields.
type MockAuthGateway struct {
	RegisterFunc           func(ctx context.Context, in services.RegisterInput) (*services.RegisterResult, error)
	ActivateFunc           func(ctx context.Context, otpID, code string, device services.DeviceInfo) (*services.CredentialResponse, error)
	LoginFunc              func(ctx context.Context, in services.LoginInput) (*services.LoginResult, error)
	CompleteTwofaFunc      func(ctx context.Context, otpID, code string, device services.DeviceInfo) (*services.LoginResult, error)
	LogoutFunc             func(ctx context.Context, refreshToken, sessionID string, device services.DeviceInfo) error
	RefreshFunc            func(ctx context.Context, refreshToken, sessionID string, device services.DeviceInfo) (*services.LoginResult, error)
	ForgotSendFunc         func(ctx context.Context, identifier string, device services.DeviceInfo) (string, error)
	ForgotVerifyFunc       func(ctx context.Context, otpID, code string, device services.DeviceInfo) (string, error)
	ResetPasswordFunc      func(ctx context.Context, resetToken, newPassword, confirmPassword string, device services.DeviceInfo) error
	ChangePasswordFunc     func(ctx context.Context, cred *models.Credential, oldPassword, newPassword, confirmPassword string, device services.DeviceInfo) error
	SendVerificationFunc   func(ctx context.Context, cred *models.Credential, device services.DeviceInfo) (string, error)
	AcceptVerificationFunc func(ctx context.Context, targetUserID string, device services.DeviceInfo) (*services.CredentialResponse, error)
	ListSessionsFunc       func(ctx context.Context, userID string) ([]*services.SessionResponse, error)
	RevokeOwnSessionFunc   func(ctx context.Context, userID, sessionID string, device services.DeviceInfo) error
}

func (m *MockAuthGateway) Register(ctx context.Context, in services.RegisterInput) (*services.RegisterResult, error) {
	return m.RegisterFunc(ctx, in)
}

func (m *MockAuthGateway) Activate(ctx context.Context, otpID, code string, device services.DeviceInfo) (*services.CredentialResponse, error) {
	return m.ActivateFunc(ctx, otpID, code, device)
}

func (m *MockAuthGateway) Login(ctx context.Context, in services.LoginInput) (*services.LoginResult, error) {
	return m.LoginFunc(ctx, in)
}

func (m *MockAuthGateway) CompleteTwofa(ctx context.Context, otpID, code string, device services.DeviceInfo) (*services.LoginResult, error) {
	return m.CompleteTwofaFunc(ctx, otpID, code, device)
}

func (m *MockAuthGateway) Logout(ctx context.Context, refreshToken, sessionID string, device services.DeviceInfo) error {
	return m.LogoutFunc(ctx, refreshToken, sessionID, device)
}

func (m *MockAuthGateway) Refresh(ctx context.Context, refreshToken, sessionID string, device services.DeviceInfo) (*services.LoginResult, error) {
	return m.RefreshFunc(ctx, refreshToken, sessionID, device)
}

func (m *MockAuthGateway) ForgotSend(ctx context.Context, identifier string, device services.DeviceInfo) (string, error) {
	return m.ForgotSendFunc(ctx, identifier, device)
}

func (m *MockAuthGateway) ForgotVerify(ctx context.Context, otpID, code string, device services.DeviceInfo) (string, error) {
	return m.ForgotVerifyFunc(ctx, otpID, code, device)
}

func (m *MockAuthGateway) ResetPassword(ctx context.Context, resetToken, newPassword, confirmPassword string, device services.DeviceInfo) error {
	return m.ResetPasswordFunc(ctx, resetToken, newPassword, confirmPassword, device)
}

func (m *MockAuthGateway) ChangePassword(ctx context.Context, cred *models.Credential, oldPassword, newPassword, confirmPassword string, device services.DeviceInfo) error {
	return m.ChangePasswordFunc(ctx, cred, oldPassword, newPassword, confirmPassword, device)
}

func (m *MockAuthGateway) SendVerification(ctx context.Context, cred *models.Credential, device services.DeviceInfo) (string, error) {
	return m.SendVerificationFunc(ctx, cred, device)
}

func (m *MockAuthGateway) AcceptVerification(ctx context.Context, targetUserID string, device services.DeviceInfo) (*services.CredentialResponse, error) {
	return m.AcceptVerificationFunc(ctx, targetUserID, device)
}

func (m *MockAuthGateway) ListSessions(ctx context.Context, userID string) ([]*services.SessionResponse, error) {
	return m.ListSessionsFunc(ctx, userID)
}

func (m *MockAuthGateway) RevokeOwnSession(ctx context.Context, userID, sessionID string, device services.DeviceInfo) error {
	return m.RevokeOwnSessionFunc(ctx, userID, sessionID, device)
}
