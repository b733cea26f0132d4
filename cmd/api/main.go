package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lyceum-io/identity/internal/auth"
	"github.com/lyceum-io/identity/internal/background"
	"github.com/lyceum-io/identity/internal/config"
	"github.com/lyceum-io/identity/internal/database"
	"github.com/lyceum-io/identity/internal/handlers"
	middlewareCustom "github.com/lyceum-io/identity/internal/middleware"
	"github.com/lyceum-io/identity/internal/models"
	"github.com/lyceum-io/identity/internal/repositories"
	"github.com/lyceum-io/identity/internal/routes"
	"github.com/lyceum-io/identity/internal/services"
	pkghttp "github.com/lyceum-io/identity/pkg/http"
	pkglogger "github.com/lyceum-io/identity/pkg/logger"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	startCtx, startCancel := context.WithTimeout(context.Background(), 60*time.Second)
	if err := database.Migrate(startCtx, cfg.Database.DSN(), logger); err != nil {
		startCancel()
		logger.Error("failed to run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := database.NewConnection(startCtx, &cfg.Database, logger)
	startCancel()
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	credRepo := repositories.NewCredentialRepository(db)
	sessionRepo := repositories.NewSessionRepository(db)
	otpRepo := repositories.NewOTPRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Services
	passwordService, err := services.NewPasswordService(cfg.Auth.Pepper, credRepo, logger)
	if err != nil {
		logger.Error("failed to initialize password service", slog.Any("error", err))
		os.Exit(1)
	}
	otpService := services.NewOTPService(otpRepo, cfg.Auth.OTPExpiry, logger)
	tokenService := services.NewTokenService(&cfg.Auth, sessionRepo, logger)
	auditService := services.NewAuditService(auditRepo, logger)

	mailer, err := services.NewSESMailer(cfg.Email.AWSRegion, cfg.Email.FromAddress, logger)
	if err != nil {
		logger.Error("failed to initialize mailer", slog.Any("error", err))
		os.Exit(1)
	}

	authService := services.NewAuthService(
		credRepo, passwordService, otpService, tokenService, auditService, mailer, logger)

	// Bootstrap the first admin credential if configured
	bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminCredential(bootstrapCtx, credRepo, passwordService, cfg.Server.Env, logger); err != nil {
		logger.Error("failed to ensure admin credential", slog.Any("error", err))
	}
	bootstrapCancel()

	// Handlers
	ipConfig := pkghttp.NewIPConfig(cfg.Server.TrustedProxies)
	cookieConfig := auth.CookieConfig{
		Domain: cfg.Auth.CookieDomain,
		Secure: cfg.Auth.CookieSecure,
	}
	authHandler := handlers.NewAuthHandler(authService, ipConfig, cookieConfig,
		cfg.Auth.AccessTokenExpiry, cfg.Auth.RefreshTokenExpiry)
	passwordHandler := handlers.NewPasswordHandler(authService, ipConfig, cookieConfig)
	accountHandler := handlers.NewAccountHandler(authService, auditRepo, ipConfig)

	gate := auth.NewGate(tokenService, credRepo, sessionRepo, logger)

	reaper := background.NewReaper(sessionRepo, otpRepo, logger, cfg.Auth.ReaperInterval)

	// Router
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(middlewareCustom.DefaultCORSConfig(cfg.Server.AllowedOrigins)))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(60 * time.Second))

	routes.RegisterRoutes(router, authHandler, passwordHandler, accountHandler, gate)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := db.HealthCheck(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","database":"up"}`))
	})

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	reaperCtx, reaperCancel := context.WithCancel(context.Background())
	defer reaperCancel()
	go reaper.Start(reaperCtx)

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	reaperCancel()
	reaper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminCredential creates the first admin if ADMIN_EMAIL and
// ADMIN_PASSWORD are set and no matching credential exists.
func ensureAdminCredential(ctx context.Context, credRepo *repositories.CredentialRepository, passwords *services.PasswordService, env string, logger *slog.Logger) error {
	adminEmail := os.Getenv("ADMIN_EMAIL")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminEmail == "" || adminPassword == "" {
		logger.Info("no ADMIN_EMAIL or ADMIN_PASSWORD set, skipping admin bootstrap")
		return nil
	}

	_, err := credRepo.GetByEmail(ctx, adminEmail)
	if err == nil {
		logger.Info("admin credential already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check for existing admin: %w", err)
	}

	admin, err := models.NewCredential("Admin", &adminEmail, nil, models.RoleAdmin)
	if err != nil {
		return fmt.Errorf("failed to build admin credential: %w", err)
	}

	hash, version, err := passwords.HashPassword(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}
	admin.SetPassword(hash, version, time.Now())
	admin.EmailVerified = true

	approved := models.RoleStatusApproved
	admin.RoleStatus = &approved

	if _, err := credRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin credential: %w", err)
	}

	logger.LogAttrs(ctx, slog.LevelInfo, "admin credential created",
		pkglogger.RedactedAttr("email", adminEmail, env))
	return nil
}
