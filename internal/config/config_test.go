package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_PASSWORD", "db-password-for-tests")
	t.Setenv("PASSWORD_PEPPER", "pepper-for-tests-0123456789")
	t.Setenv("ACCESS_TOKEN_SECRET", "access-secret-for-tests-0123456789")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh-secret-for-tests-0123456789")
	t.Setenv("RESET_TOKEN_SECRET", "reset-secret-for-tests-0123456789")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.RefreshTokenExpiry)
	assert.Equal(t, 10*time.Minute, cfg.Auth.ResetTokenExpiry)
	assert.Equal(t, 5*time.Minute, cfg.Auth.OTPExpiry)
	assert.False(t, cfg.Auth.CookieSecure, "cookies are Secure only in production")
}

func TestLoad_RequiresPepper(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PASSWORD_PEPPER", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PASSWORD_PEPPER")
}

func TestLoad_SecureCookiesInProduction(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Auth.CookieSecure)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.Server.AllowedOrigins)
}

func TestValidateSecret(t *testing.T) {
	assert.Error(t, validateSecret("ACCESS_TOKEN_SECRET", "", "development"))
	assert.Error(t, validateSecret("ACCESS_TOKEN_SECRET", "too-short", "development"))
	assert.NoError(t, validateSecret("ACCESS_TOKEN_SECRET", "sixteen-chars-ok", "development"))

	// Production raises the bar.
	assert.Error(t, validateSecret("ACCESS_TOKEN_SECRET", "sixteen-chars-ok", "production"))
	assert.NoError(t, validateSecret("ACCESS_TOKEN_SECRET", "thirty-two-characters-long-value", "production"))
}

func TestDSN(t *testing.T) {
	cfg := &DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "identity",
		Password: "pw",
		Name:     "identity",
		SSLMode:  "require",
	}
	assert.Equal(t,
		"host=db.internal port=5432 user=identity password=pw dbname=identity sslmode=require",
		cfg.DSN())
}
