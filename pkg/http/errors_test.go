package http_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyceum-io/identity/internal/models"
	pkghttp "github.com/lyceum-io/identity/pkg/http"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) pkghttp.ErrorResponse {
	t.Helper()
	var resp pkghttp.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestWriteError_SetsStatusAndBody(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteError(w, http.StatusTeapot, "teapot", "short and stout")

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	resp := decodeError(t, w)
	assert.Equal(t, "teapot", resp.Error)
	assert.Equal(t, "short and stout", resp.Message)
}

func TestWriteServiceError_Taxonomy(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid credentials", models.ErrInvalidCredentials, http.StatusUnauthorized, "unauthorized"},
		{"blocked account", models.ErrAccountBlocked, http.StatusForbidden, "forbidden"},
		{"deactivated account", models.ErrAccountDeactivated, http.StatusForbidden, "forbidden"},
		{"verification required", models.ErrVerificationRequired, http.StatusForbidden, "forbidden"},
		{"role rejected", models.ErrRoleRejected, http.StatusForbidden, "forbidden"},
		{"otp used", models.ErrOTPUsed, http.StatusBadRequest, "bad_request"},
		{"otp expired", models.ErrOTPExpired, http.StatusBadRequest, "bad_request"},
		{"otp mismatch", models.ErrOTPMismatch, http.StatusBadRequest, "bad_request"},
		{"password reused", models.ErrPasswordReused, http.StatusBadRequest, "bad_request"},
		{"unauthorized", models.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"not found", models.ErrNotFound, http.StatusNotFound, "not_found"},
		{"conflict", models.ErrConflict, http.StatusConflict, "conflict"},
		{"unknown error", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			pkghttp.WriteServiceError(w, tc.err)

			assert.Equal(t, tc.wantStatus, w.Code)
			assert.Equal(t, tc.wantCode, decodeError(t, w).Error)
		})
	}
}

func TestWriteServiceError_WrappedSentinelsStillMap(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteServiceError(w, fmt.Errorf("context: %w", models.ErrConflict))

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestWriteServiceError_ValidationMessagePassedThrough(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteServiceError(w, fmt.Errorf("%w: name is required", models.ErrValidation))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "name is required")
}

func TestWriteServiceError_UnknownErrorLeaksNothing(t *testing.T) {
	w := httptest.NewRecorder()
	pkghttp.WriteServiceError(w, errors.New("pq: duplicate key value violates unique constraint"))

	resp := decodeError(t, w)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, resp.Message, "pq:")
}
