package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/lyceum-io/identity/internal/auth"
	"github.com/lyceum-io/identity/internal/config"
	"github.com/lyceum-io/identity/internal/database"
	"github.com/lyceum-io/identity/internal/handlers"
	middlewareCustom "github.com/lyceum-io/identity/internal/middleware"
	"github.com/lyceum-io/identity/internal/routes"
	"github.com/lyceum-io/identity/internal/services"
	pkghttp "github.com/lyceum-io/identity/pkg/http"
)

// SentMail is a captured outbound message.
type SentMail struct {
	To       string
	Subject  string
	Template string
	Data     map[string]string
}

// CaptureMailer records sent mail for test assertions instead of
// talking to SES.
type CaptureMailer struct {
	mu   sync.Mutex
	Sent []SentMail
}

func (m *CaptureMailer) Send(ctx context.Context, to, subject, templateName string, data map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sent = append(m.Sent, SentMail{To: to, Subject: subject, Template: templateName, Data: data})
	return nil
}

// LastMail returns the most recent message, or nil.
func (m *CaptureMailer) LastMail() *SentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Sent) == 0 {
		return nil
	}
	return &m.Sent[len(m.Sent)-1]
}

// LastCode returns the one-time code from the most recent message.
func (m *CaptureMailer) LastCode() string {
	mail := m.LastMail()
	if mail == nil {
		return ""
	}
	return mail.Data["Code"]
}

// TestServer wraps httptest.Server with the full handler stack wired
// against a real database and a captured mailer.
type TestServer struct {
	Server *httptest.Server
	DB     *database.DB
	Mailer *CaptureMailer
	Config *config.Config

	// Client carries a cookie jar so the auth cookie flows work the
	// way a browser client would drive them.
	Client *http.Client
}

// NewTestServer builds the production handler stack on top of the
// given database.
func NewTestServer(db *database.DB) (*TestServer, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg := &config.Config{
		Auth: config.AuthConfig{
			Pepper:             "integration-pepper-0123456789abcdef",
			AccessTokenSecret:  "integration-access-secret-0123456789abcdef",
			RefreshTokenSecret: "integration-refresh-secret-0123456789abcdef",
			ResetTokenSecret:   "integration-reset-secret-0123456789abcdef",
			AccessTokenExpiry:  15 * time.Minute,
			RefreshTokenExpiry: 7 * 24 * time.Hour,
			ResetTokenExpiry:   10 * time.Minute,
			OTPExpiry:          5 * time.Minute,
			ReaperInterval:     time.Hour,
		},
	}

	credRepo, sessionRepo, otpRepo, auditRepo := InitializeRepositories(db)

	passwordService, err := services.NewPasswordService(cfg.Auth.Pepper, credRepo, logger)
	if err != nil {
		return nil, err
	}
	otpService := services.NewOTPService(otpRepo, cfg.Auth.OTPExpiry, logger)
	tokenService := services.NewTokenService(&cfg.Auth, sessionRepo, logger)
	auditService := services.NewAuditService(auditRepo, logger)

	mailer := &CaptureMailer{}

	authService := services.NewAuthService(
		credRepo,
		passwordService,
		otpService,
		tokenService,
		auditService,
		mailer,
		logger,
	)

	ipConfig := pkghttp.NewIPConfig(nil)
	cookieConfig := auth.CookieConfig{}

	authHandler := handlers.NewAuthHandler(authService, ipConfig, cookieConfig,
		cfg.Auth.AccessTokenExpiry, cfg.Auth.RefreshTokenExpiry)
	passwordHandler := handlers.NewPasswordHandler(authService, ipConfig, cookieConfig)
	accountHandler := handlers.NewAccountHandler(authService, auditRepo, ipConfig)

	gate := auth.NewGate(tokenService, credRepo, sessionRepo, logger)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: "test"}))
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(r, authHandler, passwordHandler, accountHandler, gate)

	server := httptest.NewServer(r)

	jar, err := cookiejar.New(nil)
	if err != nil {
		server.Close()
		return nil, err
	}

	return &TestServer{
		Server: server,
		DB:     db,
		Mailer: mailer,
		Config: cfg,
		Client: &http.Client{Jar: jar},
	}, nil
}

// Close shuts down the test server.
func (ts *TestServer) Close() {
	if ts.Server != nil {
		ts.Server.Close()
	}
}

// ResetClient drops all cookies, simulating a fresh browser.
func (ts *TestServer) ResetClient() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	ts.Client.Jar = jar
	return nil
}

// Request makes a JSON request through the cookie-carrying client.
func (ts *TestServer) Request(method, path string, body interface{}, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequest(method, ts.Server.URL+path, bodyReader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	return ts.Client.Do(req)
}

// RequestWithAuth makes a request with a bearer access token instead
// of cookies.
func (ts *TestServer) RequestWithAuth(method, path, accessToken string, body interface{}) (*http.Response, error) {
	return ts.Request(method, path, body, map[string]string{
		"Authorization": "Bearer " + accessToken,
	})
}

// Cookie returns the named cookie currently held for the server, or
// nil.
func (ts *TestServer) Cookie(name string) *http.Cookie {
	u, err := url.Parse(ts.Server.URL)
	if err != nil {
		return nil
	}
	for _, c := range ts.Client.Jar.Cookies(u) {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ParseJSONResponse decodes the response body into target.
func ParseJSONResponse(resp *http.Response, target interface{}) error {
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(target)
}

// GetErrorMessage extracts the message from an error response body.
func GetErrorMessage(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	var errResp map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return "", err
	}
	if msg, ok := errResp["message"].(string); ok {
		return msg, nil
	}
	return "", nil
}
