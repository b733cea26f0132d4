package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/lyceum-io/identity/internal/models"
	pkghttp "github.com/lyceum-io/identity/pkg/http"
)

type contextKey string

const sessionContextKey contextKey = "session_context"

// SessionContext is what the gate attaches to authenticated requests.
// Session is nil for bearer-token clients that carry no session cookie.
type SessionContext struct {
	Credential *models.Credential
	Claims     *models.AccessClaims
	Session    *models.Session
}

// TokenVerifier validates access tokens.
type TokenVerifier interface {
	VerifyAccessToken(tokenString string) (*models.AccessClaims, error)
}

// CredentialLoader fetches the credential behind a verified token.
type CredentialLoader interface {
	GetByID(ctx context.Context, id string) (*models.Credential, error)
}

// SessionLoader fetches and touches browser sessions.
type SessionLoader interface {
	GetByID(ctx context.Context, id string) (*models.Session, error)
	TouchLastAccessed(ctx context.Context, id string) error
}

// Gate authenticates requests. The token comes from the accessToken
// cookie or an Authorization bearer header; every failure path returns
// the same 401.
type Gate struct {
	tokens   TokenVerifier
	creds    CredentialLoader
	sessions SessionLoader
	logger   *slog.Logger
}

func NewGate(tokens TokenVerifier, creds CredentialLoader, sessions SessionLoader, logger *slog.Logger) *Gate {
	return &Gate{
		tokens:   tokens,
		creds:    creds,
		sessions: sessions,
		logger:   logger,
	}
}

// Authenticate rejects the request unless it carries a valid access
// token bound to a live account. A pending 2FA token does not pass.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := extractToken(r)
		if tokenString == "" {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}

		claims, err := g.tokens.VerifyAccessToken(tokenString)
		if err != nil {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}
		if claims.TwofaPending {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}

		cred, err := g.creds.GetByID(r.Context(), claims.UserID)
		if err != nil {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}
		if cred.Deleted || cred.Blocked || !cred.Active {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}

		sc := &SessionContext{Credential: cred, Claims: claims}

		if sessionID := ReadCookie(r, SessionIDCookie); sessionID != "" {
			session, err := g.sessions.GetByID(r.Context(), sessionID)
			if err != nil || !session.Usable() || session.UserID != cred.ID {
				pkghttp.WriteUnauthorized(w, "Authentication required")
				return
			}
			if err := g.sessions.TouchLastAccessed(r.Context(), session.ID); err != nil {
				g.logger.Warn("failed to touch session",
					slog.String("session_id", session.ID), slog.Any("error", err))
			}
			sc.Session = session
		}

		ctx := context.WithValue(r.Context(), sessionContextKey, sc)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin must run after Authenticate.
func (g *Gate) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sc, ok := GetSessionContext(r.Context())
		if !ok {
			pkghttp.WriteUnauthorized(w, "Authentication required")
			return
		}
		if sc.Credential.Role != models.RoleAdmin {
			pkghttp.WriteForbidden(w, "Admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetSessionContext returns the authenticated session context, if any.
func GetSessionContext(ctx context.Context) (*SessionContext, bool) {
	sc, ok := ctx.Value(sessionContextKey).(*SessionContext)
	return sc, ok
}

func extractToken(r *http.Request) string {
	if v := ReadCookie(r, AccessTokenCookie); v != "" {
		return v
	}
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}
