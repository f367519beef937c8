package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	apperrors "github.com/alexjbarnes/fittrack/internal/errors"
	"github.com/alexjbarnes/fittrack/internal/models"
)

type contextKey struct{}

var claimsKey contextKey

// ClaimsFromContext returns the session claims stored by RequireAuth,
// or nil when the request was not authenticated.
func ClaimsFromContext(ctx context.Context) *Claims {
	claims, _ := ctx.Value(claimsKey).(*Claims)

	return claims
}

// BearerToken extracts the token from an Authorization header, either
// "Bearer <token>" or the raw token. Returns empty string when absent.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}

	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return token
	}

	return header
}

func writeAuthError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// RequireAuth rejects requests without a valid bearer token and stores
// the claims in the request context for downstream handlers.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := BearerToken(r)
		if token == "" {
			writeAuthError(w, http.StatusUnauthorized, "authorization token required")

			return
		}

		claims, err := m.Validate(token)
		if err != nil {
			writeAuthError(w, http.StatusUnauthorized, "invalid or expired token")

			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
	})
}

// RequireAdmin rejects authenticated requests whose session does not
// carry the admin role. Must run inside RequireAuth.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := ClaimsFromContext(r.Context())
		if claims == nil || claims.Role != models.RoleAdmin {
			writeAuthError(w, http.StatusForbidden, apperrors.ErrForbidden.Error())

			return
		}

		next.ServeHTTP(w, r)
	})
}
