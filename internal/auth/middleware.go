package auth

import (
	"log/slog"
	"net/http"

	"github.com/hanifrahman/talenthub-payments/internal/transport"
)

// Middleware validates bearer tokens and injects the caller into the request
// context. AdminPrincipals drives RequireAdmin; the set comes from config so
// authorization is data-driven rather than compiled-in.
type Middleware struct {
	*transport.BaseHandler
	validator       TokenValidatorAPI
	adminPrincipals map[string]struct{}
}

func NewMiddleware(baseHandler *transport.BaseHandler, validator TokenValidatorAPI, adminPrincipals []string) *Middleware {
	admins := make(map[string]struct{}, len(adminPrincipals))
	for _, p := range adminPrincipals {
		admins[p] = struct{}{}
	}
	return &Middleware{
		BaseHandler:     baseHandler,
		validator:       validator,
		adminPrincipals: admins,
	}
}

func (m *Middleware) IsAdmin(userID string) bool {
	_, ok := m.adminPrincipals[userID]
	return ok
}

func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := m.ExtractTokenFromHeader(r)
		if token == "" {
			m.Logger.Error("auth middleware: missing authorization token")
			m.WriteError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		claims, err := m.validator.ValidateToken(token)
		if err != nil {
			m.Logger.Error("auth middleware: token validation failed", "error", err)
			m.WriteError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		user := &User{ID: claims.UserID, Email: claims.Email}
		ctx := ContextWithUser(r.Context(), user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		if !ok || user == nil {
			m.WriteError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !m.IsAdmin(user.ID) {
			slog.Warn("admin access denied", "user_id", user.ID)
			m.WriteError(w, http.StatusForbidden, "administrator access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
