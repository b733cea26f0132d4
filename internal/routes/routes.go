package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/lyceum-io/identity/internal/auth"
	"github.com/lyceum-io/identity/internal/handlers"
	"github.com/lyceum-io/identity/internal/middleware"
)

// RegisterRoutes wires all application routes.
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	passwordHandler *handlers.PasswordHandler,
	accountHandler *handlers.AccountHandler,
	gate *auth.Gate,
) {
	authLimit := middleware.RateLimitByIP(middleware.DefaultAuthRateLimit())
	publicLimit := middleware.RateLimitByIP(middleware.DefaultPublicRateLimit())

	// Public routes. The credential-guessing surfaces get the tighter
	// limit.
	router.With(publicLimit).Post("/register", authHandler.Register)
	router.With(authLimit).Post("/activate-user", authHandler.Activate)
	router.With(authLimit).Post("/login", authHandler.Login)
	router.With(authLimit).Post("/verify-2fa", authHandler.VerifyTwofa)
	router.With(publicLimit).Post("/forgot/send", passwordHandler.ForgotSend)
	router.With(authLimit).Post("/forgot/verify", passwordHandler.ForgotVerify)
	router.With(authLimit).Post("/password/reset", passwordHandler.ResetPassword)

	// Logout and refresh authenticate via the refresh token cookie, not
	// the access token; an expired access token must not block either.
	router.With(publicLimit).Post("/logout", authHandler.Logout)
	router.With(publicLimit).Post("/refresh", authHandler.Refresh)

	// Protected routes.
	router.Group(func(r chi.Router) {
		r.Use(gate.Authenticate)

		r.Get("/me", accountHandler.Me)
		r.Patch("/change-password", passwordHandler.ChangePassword)
		r.Post("/send-verification", accountHandler.SendVerification)
		r.Get("/sessions", accountHandler.ListSessions)
		r.Delete("/sessions/{sessionId}", accountHandler.RevokeSession)

		// Admin-only routes.
		r.Group(func(r chi.Router) {
			r.Use(gate.RequireAdmin)
			r.Patch("/accept-verification/{userId}", accountHandler.AcceptVerification)
			r.Get("/admin/audit/{userId}", accountHandler.ListUserAudit)
		})
	})
}
